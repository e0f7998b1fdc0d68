// Package model содержит доменные сущности витрины: пользователей, корзину, заказы, доставки и платежи.
package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// User представляет пользователя бота. UserID — идентификатор на платформе (Telegram).
type User struct {
	ID          int64
	UserID      int64
	Username    *string
	PhoneNumber *string
	FirstName   *string
	LastName    *string
	Avatar      *string
	Balance     decimal.Decimal
	Blocked     bool
	SourceParam *string
	JoinTime    time.Time
}

// Product описывает позицию каталога.
type Product struct {
	ID               int64
	Title            string
	Description      *string
	Photos           []string
	PricePerDelivery decimal.Decimal
	MaxDeliveries    int
	MaxMonths        int
	Type             string
	Size             *string
}

// CartItemType различает разовую покупку и подписку.
type CartItemType string

const (
	CartItemOneTime      CartItemType = "one-time"
	CartItemSubscription CartItemType = "subscription"
)

// CartItem описывает строку корзины до оформления заказа.
type CartItem struct {
	ID                 int64
	UserID             int64
	ItemID             string
	Quantity           int
	Price              decimal.Decimal
	Type               CartItemType
	DeliveriesPerMonth int
	SubscriptionMonths int
	DeliveryDate       *time.Time
	Title              string
	Photos             []string
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusCreated        OrderStatus = "created"
	OrderStatusCanceled       OrderStatus = "canceled"
)

// OrderType описывает тип заказа.
type OrderType string

const (
	OrderTypeOneTime      OrderType = "one-time"
	OrderTypeSubscription OrderType = "subscription"
)

// Valid сообщает, известен ли тип заказа.
func (t OrderType) Valid() bool {
	return t == OrderTypeOneTime || t == OrderTypeSubscription
}

// OrderItem — снимок позиции заказа на момент оформления. С каталогом повторно не сверяется.
type OrderItem struct {
	ProductID          int64       `json:"product_id"`
	DeliveriesPerMonth *int        `json:"deliveries_per_month,omitempty"`
	SubscriptionMonths *int        `json:"subscription_months,omitempty"`
	DeliveryDate       *string     `json:"deliveryDate,omitempty"`
	Price              json.Number `json:"price"`
	Title              string      `json:"title"`
}

// ContactInfo содержит контактные данные покупателя, указанные при оформлении.
type ContactInfo struct {
	FIO     *string
	Phone   *string
	Email   *string
	Comment *string
}

// Order — заказ пользователя. TotalAmount задаётся при создании и больше не пересчитывается.
type Order struct {
	ID          int64
	UserID      int64
	Status      OrderStatus
	TotalAmount decimal.Decimal
	Items       []OrderItem
	OrderType   OrderType
	Contact     ContactInfo
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	Deliveries  []Delivery

	// OwnerPhone заполняется только в административном списке заказов.
	OwnerPhone *string
}

// DeliveryStatus описывает статус отдельной доставки.
type DeliveryStatus string

const (
	DeliveryStatusScheduled DeliveryStatus = "scheduled"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusCanceled  DeliveryStatus = "canceled"
)

// Valid сообщает, известен ли статус доставки.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusScheduled, DeliveryStatusDelivered, DeliveryStatusCanceled:
		return true
	}
	return false
}

// Delivery описывает одну запланированную доставку заказа.
type Delivery struct {
	ID      int64
	OrderID int64
	Date    time.Time
	Status  DeliveryStatus
}

// PaymentStatus повторяет словарь статусов платёжного шлюза.
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusWaitingForCapture PaymentStatus = "waiting_for_capture"
	PaymentStatusSucceeded         PaymentStatus = "succeeded"
	PaymentStatusCanceled          PaymentStatus = "canceled"
)

// Terminal сообщает, что после этого статуса шлюз уже не меняет состояние платежа.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusCanceled
}

// TransactionTypeYooKassa обозначает платежи через ЮKassa.
const TransactionTypeYooKassa = "yookassa"

// Transaction — запись об одной платёжной сессии шлюза. OrderID == nil означает пополнение баланса.
type Transaction struct {
	ID          int64
	UserID      int64
	PayerID     *int64
	OrderID     *int64
	Amount      decimal.Decimal
	Status      PaymentStatus
	PaymentID   string
	Type        string
	Description *string
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

// Source — метка рекламного источника (start-параметр бота).
type Source struct {
	ID         int64
	StartParam string
	Note       string
	CreatedAt  time.Time
	Visits     int
}

// SourceVisit фиксирует первый заход пользователя по метке источника.
type SourceVisit struct {
	SourceID    int64
	UserID      int64
	PhoneNumber *string
	VisitedAt   time.Time
}

// UserActionLog описывает запись журнала действий пользователя.
type UserActionLog struct {
	ID          int64
	UserID      int64
	PhoneNumber *string
	Action      string
	Data        json.RawMessage
	Timestamp   time.Time
}

// MediaType описывает вложение уведомления.
type MediaType string

const (
	MediaNone  MediaType = "none"
	MediaPhoto MediaType = "photo"
	MediaVideo MediaType = "video"
)

// Notification — сообщение шины уведомлений между API и ботом.
type Notification struct {
	UserID      int64     `json:"user_id" validate:"required"`
	Text        string    `json:"text" validate:"required"`
	MediaType   MediaType `json:"media_type" validate:"omitempty,oneof=none photo video"`
	MediaURL    *string   `json:"media_url,omitempty"`
	ButtonTitle *string   `json:"button_title,omitempty"`
	ButtonURL   *string   `json:"button_url,omitempty"`
}
