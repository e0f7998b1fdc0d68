package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront/internal/model"
)

// CreateOrderInput содержит данные оформления заказа.
type CreateOrderInput struct {
	UserID      int64
	Items       []model.OrderItem
	TotalAmount decimal.Decimal
	OrderType   model.OrderType
	Contact     model.ContactInfo
}

// Статусы, скрытые из административного списка по умолчанию.
var defaultListExclude = []model.OrderStatus{model.OrderStatusPendingPayment, model.OrderStatusCanceled}

// CreateOrder сохраняет заказ в статусе pending_payment вместе с графиком доставок
// и уведомляет пользователя. Корзина при этом не очищается.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	if in.UserID <= 0 {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: items must not be empty", ErrValidation)
	}
	if !in.TotalAmount.IsPositive() {
		return nil, fmt.Errorf("%w: total_amount must be positive", ErrValidation)
	}
	if in.OrderType == "" {
		in.OrderType = model.OrderTypeOneTime
	}
	if !in.OrderType.Valid() {
		return nil, fmt.Errorf("%w: unknown order_type %q", ErrValidation, in.OrderType)
	}

	createdAt := s.now().UTC().Truncate(time.Microsecond)

	order := model.Order{
		UserID:      in.UserID,
		Status:      model.OrderStatusPendingPayment,
		TotalAmount: in.TotalAmount,
		Items:       in.Items,
		OrderType:   in.OrderType,
		Contact:     in.Contact,
		CreatedAt:   createdAt,
	}

	saved, err := s.repo.CreateOrder(ctx, order, deliverySchedule(order))
	if err != nil {
		return nil, err
	}

	s.publish(ctx, textNotification(saved.UserID,
		fmt.Sprintf("Создан новый заказ #%d на сумму %s₽", saved.ID, saved.TotalAmount.String())))

	return saved, nil
}

// deliverySchedule строит даты доставок заказа. Параметры подписки берутся из первой позиции.
// Разовый заказ получает одну доставку, если в первой позиции указана корректная дата.
func deliverySchedule(order model.Order) []time.Time {
	first := order.Items[0]

	if order.OrderType == model.OrderTypeSubscription {
		return ScheduleDeliveries(order.CreatedAt,
			positiveOrOne(first.DeliveriesPerMonth), positiveOrOne(first.SubscriptionMonths))
	}

	if first.DeliveryDate == nil || strings.TrimSpace(*first.DeliveryDate) == "" {
		return nil
	}
	date, err := ParseDate(*first.DeliveryDate)
	if err != nil {
		return nil
	}
	return []time.Time{date}
}

// GetOrder возвращает заказ по идентификатору.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

// UpdateOrderStatus безусловно перезаписывает статус заказа. Используется администратором,
// поэтому таблица переходов не проверяется.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*model.Order, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		return nil, fmt.Errorf("%w: status is required", ErrValidation)
	}
	return s.repo.UpdateOrderStatus(ctx, orderID, model.OrderStatus(status))
}

// ListOrders возвращает заказы для администратора. По умолчанию неоплаченные
// и отменённые заказы скрыты; includeAll отключает фильтр.
func (s *Service) ListOrders(ctx context.Context, includeAll bool) ([]model.Order, error) {
	exclude := defaultListExclude
	if includeAll {
		exclude = nil
	}
	return s.repo.ListOrders(ctx, exclude)
}

// GetOrdersForUser возвращает заказы пользователя с доставками.
func (s *Service) GetOrdersForUser(ctx context.Context, userID int64) ([]model.Order, error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.GetOrdersByUser(ctx, userID)
}

// GetOrderDeliveries возвращает график доставок заказа.
func (s *Service) GetOrderDeliveries(ctx context.Context, orderID int64) ([]model.Delivery, error) {
	return s.repo.GetOrderDeliveries(ctx, orderID)
}

// UpdateDeliveryDate переносит доставку. Количество доставок заказа не меняется.
func (s *Service) UpdateDeliveryDate(ctx context.Context, deliveryID int64, date string) (*model.Delivery, error) {
	parsed, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	return s.repo.UpdateDeliveryDate(ctx, deliveryID, parsed)
}

// UpdateDeliveryStatus меняет статус доставки.
func (s *Service) UpdateDeliveryStatus(ctx context.Context, deliveryID int64, status string) (*model.Delivery, error) {
	st := model.DeliveryStatus(strings.TrimSpace(status))
	if !st.Valid() {
		return nil, fmt.Errorf("%w: unknown delivery status %q", ErrValidation, status)
	}
	return s.repo.UpdateDeliveryStatus(ctx, deliveryID, st)
}
