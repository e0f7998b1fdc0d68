package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront/internal/metrics"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/repository"
	"github.com/mmeshcher/storefront/internal/validation"
	"github.com/mmeshcher/storefront/internal/yookassa"
)

const (
	defaultOrderDescription   = "Оплата заказа"
	defaultDepositDescription = "Пополнение баланса"
)

// PaymentInput описывает запрос на оплату заказа.
type PaymentInput struct {
	UserID      int64
	OrderID     int64
	Amount      decimal.Decimal
	Description *string
	ReturnURL   string
}

// DepositInput — запрос на пополнение баланса. PayerID задаётся, когда платит другой пользователь.
type DepositInput struct {
	UserID      int64
	PayerID     *int64
	Amount      decimal.Decimal
	Description *string
	ReturnURL   string
}

// PaymentResult содержит данные открытой платёжной сессии.
type PaymentResult struct {
	ConfirmationURL string              `json:"confirmation_url"`
	PaymentID       string              `json:"payment_id"`
	Status          model.PaymentStatus `json:"status"`
	TransactionID   int64               `json:"transaction_id"`
}

// CreatePayment открывает платёжную сессию для заказа в статусе pending_payment.
// Если шлюз отказал, транзакция не создаётся.
func (s *Service) CreatePayment(ctx context.Context, in PaymentInput) (*PaymentResult, error) {
	if in.OrderID <= 0 {
		return nil, fmt.Errorf("%w: order_id is required", ErrValidation)
	}
	if strings.TrimSpace(in.ReturnURL) == "" {
		return nil, fmt.Errorf("%w: return_url is required", ErrValidation)
	}
	if in.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	order, err := s.repo.GetOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	// Чужой заказ не раскрываем: ответ такой же, как для отсутствующего.
	if order.UserID != in.UserID {
		return nil, repository.ErrOrderNotFound
	}
	if order.Status != model.OrderStatusPendingPayment {
		return nil, ErrOrderNotPayable
	}

	amount := in.Amount
	if amount.IsZero() {
		amount = order.TotalAmount
	}

	customer, err := s.receiptCustomer(ctx, order)
	if err != nil {
		return nil, err
	}

	description := describe(in.Description, defaultOrderDescription)
	orderID := order.ID

	return s.openSession(ctx, "order", yookassa.SessionRequest{
		Amount:      amount,
		Currency:    yookassa.DefaultCurrency,
		ReturnURL:   in.ReturnURL,
		Description: description,
		Receipt:     &yookassa.Receipt{Customer: customer, Item: description},
	}, model.Transaction{
		UserID:      order.UserID,
		OrderID:     &orderID,
		Amount:      amount,
		Description: &description,
	})
}

// receiptCustomer собирает данные покупателя для чека: контакты заказа, затем телефон из профиля.
func (s *Service) receiptCustomer(ctx context.Context, order *model.Order) (yookassa.Customer, error) {
	var c yookassa.Customer

	if order.Contact.Email != nil {
		c.Email = strings.TrimSpace(*order.Contact.Email)
	}
	if order.Contact.Phone != nil {
		c.Phone = validation.NormalizePhone(*order.Contact.Phone)
	}
	if order.Contact.FIO != nil {
		c.FullName = strings.TrimSpace(*order.Contact.FIO)
	}

	if c.Phone == "" {
		u, err := s.repo.GetUser(ctx, order.UserID)
		switch {
		case err == nil:
			if u.PhoneNumber != nil {
				c.Phone = validation.NormalizePhone(*u.PhoneNumber)
			}
		case !errors.Is(err, repository.ErrUserNotFound):
			return c, err
		}
	}

	if c.Email == "" && c.Phone == "" {
		return c, ErrReceiptContact
	}
	return c, nil
}

// CreateDeposit открывает платёжную сессию пополнения баланса пользователя.
func (s *Service) CreateDeposit(ctx context.Context, in DepositInput) (*PaymentResult, error) {
	if in.UserID <= 0 {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if strings.TrimSpace(in.ReturnURL) == "" {
		return nil, fmt.Errorf("%w: return_url is required", ErrValidation)
	}

	u, err := s.repo.GetUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	description := describe(in.Description, defaultDepositDescription)

	req := yookassa.SessionRequest{
		Amount:      in.Amount,
		Currency:    yookassa.DefaultCurrency,
		ReturnURL:   in.ReturnURL,
		Description: description,
	}
	if u.PhoneNumber != nil {
		if phone := validation.NormalizePhone(*u.PhoneNumber); phone != "" {
			req.Receipt = &yookassa.Receipt{Customer: yookassa.Customer{Phone: phone}, Item: description}
		}
	}

	return s.openSession(ctx, "deposit", req, model.Transaction{
		UserID:      u.UserID,
		PayerID:     in.PayerID,
		Amount:      in.Amount,
		Description: &description,
	})
}

func (s *Service) openSession(ctx context.Context, kind string, req yookassa.SessionRequest, t model.Transaction) (*PaymentResult, error) {
	session, err := s.gateway.CreateSession(ctx, req)
	if err != nil {
		metrics.PaymentsCreated.WithLabelValues(kind, "gateway_error").Inc()
		return nil, err
	}

	t.PaymentID = session.ID
	t.Status = model.PaymentStatus(session.Status)
	if t.Status == "" {
		t.Status = model.PaymentStatusPending
	}
	t.Type = model.TransactionTypeYooKassa

	saved, err := s.repo.CreateTransaction(ctx, t)
	if err != nil {
		metrics.PaymentsCreated.WithLabelValues(kind, "store_error").Inc()
		return nil, err
	}

	metrics.PaymentsCreated.WithLabelValues(kind, "ok").Inc()

	return &PaymentResult{
		ConfirmationURL: session.ConfirmationURL,
		PaymentID:       saved.PaymentID,
		Status:          saved.Status,
		TransactionID:   saved.ID,
	}, nil
}

// GetUserTransactions возвращает историю платежей пользователя.
func (s *Service) GetUserTransactions(ctx context.Context, userID int64) ([]model.Transaction, error) {
	return s.repo.GetTransactionsByUser(ctx, userID)
}

func describe(v *string, fallback string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return fallback
	}
	return strings.TrimSpace(*v)
}
