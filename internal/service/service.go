// Package service реализует бизнес-логику витрины: заказы, платежи, обработку уведомлений шлюза.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/repository"
	"github.com/mmeshcher/storefront/internal/validation"
	"github.com/mmeshcher/storefront/internal/yookassa"
)

var (
	// ErrValidation оборачивает ошибки проверки входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrOrderNotPayable возвращается при попытке оплатить заказ не в статусе pending_payment.
	ErrOrderNotPayable = errors.New("order is not awaiting payment")
	// ErrReceiptContact возвращается, если для чека нельзя определить ни email, ни телефон.
	ErrReceiptContact = errors.New("email or phone is required for receipt")
	// ErrForbiddenSource возвращается для уведомлений шлюза с недоверенного адреса.
	ErrForbiddenSource = errors.New("callback source is not allowed")
	// ErrInvalidPayload возвращается для уведомлений шлюза с нарушенной структурой.
	ErrInvalidPayload = errors.New("invalid callback payload")
	// ErrNoRecipients возвращается, если рассылке некому доставлять сообщение.
	ErrNoRecipients = errors.New("no recipients")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	UpsertUser(ctx context.Context, u model.User) (*model.User, error)
	GetUser(ctx context.Context, userID int64) (*model.User, error)
	GetActiveUsers(ctx context.Context) ([]model.User, error)

	ListProducts(ctx context.Context) ([]model.Product, error)
	AddCartItem(ctx context.Context, item model.CartItem) (*model.CartItem, error)
	GetCart(ctx context.Context, userID int64) ([]model.CartItem, error)
	DeleteCartItem(ctx context.Context, id int64) error

	CreateOrder(ctx context.Context, order model.Order, schedule []time.Time) (*model.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*model.Order, error)
	ListOrders(ctx context.Context, exclude []model.OrderStatus) ([]model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) (*model.Order, error)
	GetOrderDeliveries(ctx context.Context, orderID int64) ([]model.Delivery, error)
	UpdateDeliveryDate(ctx context.Context, deliveryID int64, date time.Time) (*model.Delivery, error)
	UpdateDeliveryStatus(ctx context.Context, deliveryID int64, status model.DeliveryStatus) (*model.Delivery, error)

	CreateTransaction(ctx context.Context, t model.Transaction) (*model.Transaction, error)
	GetTransactionsByUser(ctx context.Context, userID int64) ([]model.Transaction, error)
	WithPaymentTx(ctx context.Context, fn func(tx repository.PaymentTx) error) error

	CreateSource(ctx context.Context, startParam, note string) (*model.Source, error)
	ListSources(ctx context.Context) ([]model.Source, error)
	LogSourceVisit(ctx context.Context, startParam string, userID int64, phone *string) (bool, error)
	CreateActionLog(ctx context.Context, entry model.UserActionLog) (*model.UserActionLog, error)
	ListActionLogs(ctx context.Context, userID *int64, action *string) ([]model.UserActionLog, error)
}

// Gateway открывает платёжные сессии во внешнем шлюзе.
type Gateway interface {
	CreateSession(ctx context.Context, req yookassa.SessionRequest) (*yookassa.Session, error)
}

// Notifier публикует уведомления в шину.
type Notifier interface {
	Publish(ctx context.Context, n model.Notification) error
}

// Service содержит бизнес-логику витрины.
type Service struct {
	repo      Repository
	gateway   Gateway
	notifier  Notifier
	allowList *validation.IPAllowList
	logger    *zap.Logger
	now       func() time.Time
}

// NewService создаёт сервис. allowList задаёт адреса, с которых принимаются уведомления шлюза.
func NewService(repo Repository, gateway Gateway, notifier Notifier, allowList *validation.IPAllowList, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		gateway:   gateway,
		notifier:  notifier,
		allowList: allowList,
		logger:    logger,
		now:       time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// publish отправляет уведомление в шину. Ошибки только логируются: доставка уведомлений
// не влияет на результат операции.
func (s *Service) publish(ctx context.Context, n model.Notification) bool {
	if s.notifier == nil {
		return false
	}
	if err := s.notifier.Publish(context.WithoutCancel(ctx), n); err != nil {
		s.logger.Warn("publish notification error", zap.Error(err), zap.Int64("userID", n.UserID))
		return false
	}
	return true
}

func textNotification(userID int64, text string) model.Notification {
	return model.Notification{
		UserID:    userID,
		Text:      text,
		MediaType: model.MediaNone,
	}
}
