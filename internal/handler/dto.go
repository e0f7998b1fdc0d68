package handler

import (
	"encoding/json"
	"time"

	"github.com/mmeshcher/storefront/internal/model"
)

type deliveryResponse struct {
	ID           int64                `json:"id"`
	OrderID      int64                `json:"order_id"`
	DeliveryDate time.Time            `json:"delivery_date"`
	Status       model.DeliveryStatus `json:"status"`
}

type orderResponse struct {
	ID          int64              `json:"id"`
	UserID      int64              `json:"user_id"`
	Status      model.OrderStatus  `json:"status"`
	TotalAmount float64            `json:"total_amount"`
	Items       []model.OrderItem  `json:"items"`
	OrderType   model.OrderType    `json:"order_type"`
	FIO         *string            `json:"fio"`
	Phone       *string            `json:"phone"`
	Email       *string            `json:"email"`
	Comment     *string            `json:"comment"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   *string            `json:"updated_at"`
	Deliveries  []deliveryResponse `json:"deliveries"`
	UserPhone   *string            `json:"user_phone,omitempty"`
}

type userResponse struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Username    *string   `json:"username"`
	PhoneNumber *string   `json:"phone_number"`
	FirstName   *string   `json:"first_name"`
	LastName    *string   `json:"last_name"`
	Avatar      *string   `json:"avatar"`
	Balance     float64   `json:"balance"`
	Blocked     bool      `json:"blocked"`
	SourceParam *string   `json:"source_param"`
	JoinTime    time.Time `json:"join_time"`
}

type productResponse struct {
	ID               int64    `json:"id"`
	Title            string   `json:"title"`
	Description      *string  `json:"description"`
	Photos           []string `json:"photos"`
	PricePerDelivery float64  `json:"price_per_delivery"`
	MaxDeliveries    int      `json:"max_deliveries"`
	MaxMonths        int      `json:"max_months"`
	Type             string   `json:"type"`
	Size             *string  `json:"size"`
}

type cartItemResponse struct {
	ID                 int64              `json:"id"`
	UserID             int64              `json:"user_id"`
	ItemID             string             `json:"item_id"`
	Quantity           int                `json:"quantity"`
	Price              float64            `json:"price"`
	Type               model.CartItemType `json:"type"`
	DeliveriesPerMonth int                `json:"deliveries_per_month"`
	SubscriptionMonths int                `json:"subscription_months"`
	DeliveryDate       *string            `json:"delivery_date"`
	Title              string             `json:"title"`
	Photos             []string           `json:"photos"`
}

type transactionResponse struct {
	ID          int64               `json:"id"`
	UserID      int64               `json:"user_id"`
	PayerID     *int64              `json:"payer_id"`
	OrderID     *int64              `json:"order_id"`
	Amount      float64             `json:"amount"`
	Status      model.PaymentStatus `json:"status"`
	PaymentID   string              `json:"payment_id"`
	Type        string              `json:"transaction_type"`
	Description *string             `json:"description"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   *string             `json:"updated_at"`
}

type sourceResponse struct {
	ID         int64     `json:"id"`
	StartParam string    `json:"start_param"`
	Note       string    `json:"note"`
	CreatedAt  time.Time `json:"created_at"`
	Visits     int       `json:"visits"`
}

type actionLogResponse struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	PhoneNumber *string         `json:"phone_number"`
	Action      string          `json:"action"`
	Data        json.RawMessage `json:"data,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

func toDeliveries(ds []model.Delivery) []deliveryResponse {
	res := make([]deliveryResponse, 0, len(ds))
	for _, d := range ds {
		res = append(res, deliveryResponse{
			ID:           d.ID,
			OrderID:      d.OrderID,
			DeliveryDate: d.Date,
			Status:       d.Status,
		})
	}
	return res
}

func toOrder(o model.Order) orderResponse {
	items := o.Items
	if items == nil {
		items = []model.OrderItem{}
	}
	return orderResponse{
		ID:          o.ID,
		UserID:      o.UserID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount.InexactFloat64(),
		Items:       items,
		OrderType:   o.OrderType,
		FIO:         o.Contact.FIO,
		Phone:       o.Contact.Phone,
		Email:       o.Contact.Email,
		Comment:     o.Contact.Comment,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   formatTime(o.UpdatedAt),
		Deliveries:  toDeliveries(o.Deliveries),
		UserPhone:   o.OwnerPhone,
	}
}

func toOrders(orders []model.Order) []orderResponse {
	res := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		res = append(res, toOrder(o))
	}
	return res
}

func toUser(u model.User) userResponse {
	return userResponse{
		ID:          u.ID,
		UserID:      u.UserID,
		Username:    u.Username,
		PhoneNumber: u.PhoneNumber,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Avatar:      u.Avatar,
		Balance:     u.Balance.InexactFloat64(),
		Blocked:     u.Blocked,
		SourceParam: u.SourceParam,
		JoinTime:    u.JoinTime,
	}
}

func toProducts(ps []model.Product) []productResponse {
	res := make([]productResponse, 0, len(ps))
	for _, p := range ps {
		photos := p.Photos
		if photos == nil {
			photos = []string{}
		}
		res = append(res, productResponse{
			ID:               p.ID,
			Title:            p.Title,
			Description:      p.Description,
			Photos:           photos,
			PricePerDelivery: p.PricePerDelivery.InexactFloat64(),
			MaxDeliveries:    p.MaxDeliveries,
			MaxMonths:        p.MaxMonths,
			Type:             p.Type,
			Size:             p.Size,
		})
	}
	return res
}

func toCartItem(c model.CartItem) cartItemResponse {
	photos := c.Photos
	if photos == nil {
		photos = []string{}
	}
	return cartItemResponse{
		ID:                 c.ID,
		UserID:             c.UserID,
		ItemID:             c.ItemID,
		Quantity:           c.Quantity,
		Price:              c.Price.InexactFloat64(),
		Type:               c.Type,
		DeliveriesPerMonth: c.DeliveriesPerMonth,
		SubscriptionMonths: c.SubscriptionMonths,
		DeliveryDate:       formatTime(c.DeliveryDate),
		Title:              c.Title,
		Photos:             photos,
	}
}

func toTransactions(ts []model.Transaction) []transactionResponse {
	res := make([]transactionResponse, 0, len(ts))
	for _, t := range ts {
		res = append(res, transactionResponse{
			ID:          t.ID,
			UserID:      t.UserID,
			PayerID:     t.PayerID,
			OrderID:     t.OrderID,
			Amount:      t.Amount.InexactFloat64(),
			Status:      t.Status,
			PaymentID:   t.PaymentID,
			Type:        t.Type,
			Description: t.Description,
			CreatedAt:   t.CreatedAt,
			UpdatedAt:   formatTime(t.UpdatedAt),
		})
	}
	return res
}

func toSource(s model.Source) sourceResponse {
	return sourceResponse{
		ID:         s.ID,
		StartParam: s.StartParam,
		Note:       s.Note,
		CreatedAt:  s.CreatedAt,
		Visits:     s.Visits,
	}
}

func toActionLog(l model.UserActionLog) actionLogResponse {
	return actionLogResponse{
		ID:          l.ID,
		UserID:      l.UserID,
		PhoneNumber: l.PhoneNumber,
		Action:      l.Action,
		Data:        l.Data,
		Timestamp:   l.Timestamp,
	}
}
