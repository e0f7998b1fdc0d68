package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/metrics"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/repository"
)

var validate = validator.New()

type callbackObject struct {
	ID     string `json:"id" validate:"required"`
	Status string `json:"status" validate:"required"`
}

type callbackPayload struct {
	Event  string          `json:"event" validate:"required"`
	Object *callbackObject `json:"object" validate:"required"`
}

// callbackEffects собирает результат применения уведомления внутри транзакции БД.
// Уведомления пользователям строятся по нему только после коммита.
type callbackEffects struct {
	outcome     string
	paidOrder   *model.Order
	canceled    *model.Order
	deposit     *model.Transaction
	transaction *model.Transaction
}

// HandleCallback обрабатывает уведомление платёжного шлюза.
//
// Порядок проверок: адрес отправителя (ErrForbiddenSource), структура (ErrInvalidPayload),
// поиск транзакции (repository.ErrTransactionNotFound). Изменения применяются одним коммитом
// и не более одного раза на пару (payment_id, status); после терминального статуса
// транзакции другие статусы игнорируются.
func (s *Service) HandleCallback(ctx context.Context, payload []byte, sourceIP string) error {
	if !s.allowList.Contains(sourceIP) {
		metrics.WebhookEvents.WithLabelValues(metrics.WebhookRejected, "").Inc()
		s.logger.Warn("payment callback from untrusted source", zap.String("ip", sourceIP))
		return ErrForbiddenSource
	}

	var p callbackPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		metrics.WebhookEvents.WithLabelValues(metrics.WebhookRejected, "").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(p); err != nil {
		metrics.WebhookEvents.WithLabelValues(metrics.WebhookRejected, "").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	paymentID := p.Object.ID
	status := model.PaymentStatus(p.Object.Status)

	var fx callbackEffects
	err := s.repo.WithPaymentTx(ctx, func(tx repository.PaymentTx) error {
		fx = callbackEffects{}
		return s.applyCallback(ctx, tx, paymentID, status, &fx)
	})
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			metrics.WebhookEvents.WithLabelValues(metrics.WebhookRejected, string(status)).Inc()
			s.logger.Warn("payment callback for unknown transaction",
				zap.String("paymentID", paymentID), zap.String("status", string(status)))
			return err
		}
		metrics.WebhookEvents.WithLabelValues(metrics.WebhookFailed, string(status)).Inc()
		s.logger.Error("payment callback error", zap.Error(err),
			zap.String("paymentID", paymentID), zap.String("status", string(status)))
		return err
	}

	metrics.WebhookEvents.WithLabelValues(fx.outcome, string(status)).Inc()
	s.logger.Info("payment callback processed",
		zap.String("paymentID", paymentID),
		zap.String("event", p.Event),
		zap.String("status", string(status)),
		zap.String("outcome", fx.outcome),
	)

	s.notifyCallback(ctx, fx)
	return nil
}

func (s *Service) applyCallback(ctx context.Context, tx repository.PaymentTx, paymentID string, status model.PaymentStatus, fx *callbackEffects) error {
	t, err := tx.LockTransaction(ctx, paymentID)
	if err != nil {
		return err
	}

	fresh, err := tx.MarkEventApplied(ctx, paymentID, status)
	if err != nil {
		return err
	}
	if !fresh {
		fx.outcome = metrics.WebhookDuplicate
		return nil
	}

	if t.Status.Terminal() && t.Status != status {
		fx.outcome = metrics.WebhookStale
		return nil
	}

	if err := tx.SetTransactionStatus(ctx, t.ID, status); err != nil {
		return err
	}
	t.Status = status
	fx.transaction = t
	fx.outcome = metrics.WebhookApplied

	if t.OrderID != nil {
		return s.applyOrderEffects(ctx, tx, *t.OrderID, status, fx)
	}

	if status == model.PaymentStatusSucceeded {
		if _, err := tx.CreditBalance(ctx, t.UserID, t.Amount); err != nil {
			return err
		}
		fx.deposit = t
	}
	return nil
}

func (s *Service) applyOrderEffects(ctx context.Context, tx repository.PaymentTx, orderID int64, status model.PaymentStatus, fx *callbackEffects) error {
	order, err := tx.LockOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			s.logger.Warn("payment callback for missing order", zap.Int64("orderID", orderID))
			return nil
		}
		return err
	}

	switch status {
	case model.PaymentStatusSucceeded, model.PaymentStatusCanceled:
	default:
		s.logger.Info("payment status does not change order",
			zap.Int64("orderID", orderID), zap.String("status", string(status)))
		return nil
	}

	if order.Status != model.OrderStatusPendingPayment {
		s.logger.Info("order is not awaiting payment, callback ignored",
			zap.Int64("orderID", orderID),
			zap.String("orderStatus", string(order.Status)),
			zap.String("status", string(status)),
		)
		return nil
	}

	if status == model.PaymentStatusCanceled {
		if err := tx.SetOrderStatus(ctx, order.ID, model.OrderStatusCanceled); err != nil {
			return err
		}
		order.Status = model.OrderStatusCanceled
		fx.canceled = order
		return nil
	}

	if err := tx.SetOrderStatus(ctx, order.ID, model.OrderStatusCreated); err != nil {
		return err
	}
	if err := tx.ClearCart(ctx, order.UserID); err != nil {
		return err
	}
	order.Status = model.OrderStatusCreated
	fx.paidOrder = order
	return nil
}

func (s *Service) notifyCallback(ctx context.Context, fx callbackEffects) {
	switch {
	case fx.paidOrder != nil:
		s.publish(ctx, textNotification(fx.paidOrder.UserID, fmt.Sprintf(
			"Ваш заказ #%d успешно оплачен!\n\nВы можете следить за его статусом в разделе Профиль Mini App🤍",
			fx.paidOrder.ID)))
	case fx.canceled != nil:
		s.publish(ctx, textNotification(fx.canceled.UserID,
			fmt.Sprintf("Оплата заказа #%d была отменена.", fx.canceled.ID)))
	case fx.deposit != nil:
		t := fx.deposit
		amount := t.Amount.StringFixed(2)
		s.publish(ctx, textNotification(t.UserID,
			fmt.Sprintf("Ваш баланс успешно пополнен на %s₽!", amount)))

		if t.PayerID != nil && *t.PayerID != t.UserID {
			s.publish(ctx, textNotification(*t.PayerID,
				fmt.Sprintf("Ваш платёж %s₽ успешно зачислен на баланс пользователя %s.",
					amount, s.displayName(ctx, t.UserID))))
		}
	}
}

// displayName возвращает @username пользователя, а если его нет, то идентификатор.
func (s *Service) displayName(ctx context.Context, userID int64) string {
	u, err := s.repo.GetUser(ctx, userID)
	if err == nil && u.Username != nil && *u.Username != "" {
		return "@" + *u.Username
	}
	return fmt.Sprintf("%d", userID)
}
