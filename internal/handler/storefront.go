package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/service"
)

type userRequest struct {
	UserID      int64   `json:"user_id" validate:"required,gt=0"`
	Username    *string `json:"username"`
	PhoneNumber *string `json:"phone_number"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Avatar      *string `json:"avatar"`
	SourceParam *string `json:"source_param"`
}

// RegisterUser создаёт или обновляет профиль пользователя бота.
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}

	u, err := h.service.RegisterUser(r.Context(), model.User{
		UserID:      req.UserID,
		Username:    req.Username,
		PhoneNumber: req.PhoneNumber,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Avatar:      req.Avatar,
		SourceParam: req.SourceParam,
	})
	if err != nil {
		h.writeError(w, err, "register user", zap.Int64("userID", req.UserID))
		return
	}

	h.writeJSON(w, http.StatusOK, toUser(*u))
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "user_id")
	if err != nil {
		badRequest(w, err)
		return
	}

	u, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get user", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusOK, toUser(*u))
}

// GetUserOrders возвращает заказы пользователя вместе с доставками.
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "user_id")
	if err != nil {
		badRequest(w, err)
		return
	}

	orders, err := h.service.GetOrdersForUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get user orders", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusOK, toOrders(orders))
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, err, "list products")
		return
	}

	h.writeJSON(w, http.StatusOK, toProducts(products))
}

type cartItemRequest struct {
	UserID             int64              `json:"user_id" validate:"required,gt=0"`
	ItemID             string             `json:"item_id" validate:"required"`
	Quantity           int                `json:"quantity" validate:"gte=0"`
	Price              decimal.Decimal    `json:"price"`
	Type               model.CartItemType `json:"type"`
	DeliveriesPerMonth int                `json:"deliveries_per_month"`
	SubscriptionMonths int                `json:"subscription_months"`
	DeliveryDate       *string            `json:"delivery_date"`
	Title              string             `json:"title"`
	Photos             []string           `json:"photos"`
}

// AddCartItem добавляет позицию в корзину пользователя.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}

	var deliveryDate *time.Time
	if req.DeliveryDate != nil && *req.DeliveryDate != "" {
		d, err := service.ParseDate(*req.DeliveryDate)
		if err != nil {
			badRequest(w, err)
			return
		}
		deliveryDate = &d
	}

	item, err := h.service.AddCartItem(r.Context(), model.CartItem{
		UserID:             req.UserID,
		ItemID:             req.ItemID,
		Quantity:           req.Quantity,
		Price:              req.Price,
		Type:               req.Type,
		DeliveriesPerMonth: req.DeliveriesPerMonth,
		SubscriptionMonths: req.SubscriptionMonths,
		DeliveryDate:       deliveryDate,
		Title:              req.Title,
		Photos:             req.Photos,
	})
	if err != nil {
		h.writeError(w, err, "add cart item", zap.Int64("userID", req.UserID))
		return
	}

	h.writeJSON(w, http.StatusCreated, toCartItem(*item))
}

// GetCart возвращает корзину пользователя из параметра user_id.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, err := queryID(r, "user_id")
	if err != nil {
		badRequest(w, err)
		return
	}
	if userID == nil {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	items, err := h.service.GetCart(r.Context(), *userID)
	if err != nil {
		h.writeError(w, err, "get cart", zap.Int64("userID", *userID))
		return
	}

	res := make([]cartItemResponse, 0, len(items))
	for _, it := range items {
		res = append(res, toCartItem(it))
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) DeleteCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, err)
		return
	}

	if err := h.service.DeleteCartItem(r.Context(), id); err != nil {
		h.writeError(w, err, "delete cart item", zap.Int64("itemID", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type sourceVisitRequest struct {
	StartParam  string  `json:"start_param" validate:"required"`
	UserID      int64   `json:"user_id" validate:"required,gt=0"`
	PhoneNumber *string `json:"phone_number"`
}

// LogSourceVisit фиксирует заход пользователя по рекламной метке.
// Повторный заход того же пользователя не учитывается.
func (h *Handler) LogSourceVisit(w http.ResponseWriter, r *http.Request) {
	var req sourceVisitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}

	created, err := h.service.LogSourceVisit(r.Context(), req.StartParam, req.UserID, req.PhoneNumber)
	if err != nil {
		h.writeError(w, err, "log source visit", zap.String("startParam", req.StartParam))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"created": created})
}

type sourceRequest struct {
	StartParam string `json:"start_param" validate:"required"`
	Note       string `json:"note"`
}

func (h *Handler) CreateSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}

	src, err := h.service.CreateSource(r.Context(), req.StartParam, req.Note)
	if err != nil {
		h.writeError(w, err, "create source", zap.String("startParam", req.StartParam))
		return
	}

	h.writeJSON(w, http.StatusCreated, toSource(*src))
}

func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.service.ListSources(r.Context())
	if err != nil {
		h.writeError(w, err, "list sources")
		return
	}

	res := make([]sourceResponse, 0, len(sources))
	for _, s := range sources {
		res = append(res, toSource(s))
	}
	h.writeJSON(w, http.StatusOK, res)
}

type actionRequest struct {
	UserID      int64           `json:"user_id" validate:"required,gt=0"`
	PhoneNumber *string         `json:"phone_number"`
	Action      string          `json:"action" validate:"required"`
	Data        json.RawMessage `json:"data"`
}

// LogAction пишет действие пользователя в журнал.
func (h *Handler) LogAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}

	entry, err := h.service.LogAction(r.Context(), model.UserActionLog{
		UserID:      req.UserID,
		PhoneNumber: req.PhoneNumber,
		Action:      req.Action,
		Data:        req.Data,
	})
	if err != nil {
		h.writeError(w, err, "log action", zap.Int64("userID", req.UserID))
		return
	}

	h.writeJSON(w, http.StatusCreated, toActionLog(*entry))
}

// ListActions возвращает журнал действий, фильтруя по user_id и action.
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	userID, err := queryID(r, "user_id")
	if err != nil {
		badRequest(w, err)
		return
	}

	var action *string
	if v := r.URL.Query().Get("action"); v != "" {
		action = &v
	}

	logs, err := h.service.ListActions(r.Context(), userID, action)
	if err != nil {
		h.writeError(w, err, "list actions")
		return
	}

	res := make([]actionLogResponse, 0, len(logs))
	for _, l := range logs {
		res = append(res, toActionLog(l))
	}
	h.writeJSON(w, http.StatusOK, res)
}

type broadcastRequest struct {
	UserID      *int64          `json:"user_id" validate:"omitempty,gt=0"`
	Message     string          `json:"message" validate:"required"`
	MediaType   model.MediaType `json:"media_type" validate:"omitempty,oneof=none photo video"`
	MediaURL    *string         `json:"media_url" validate:"omitempty,url"`
	ButtonTitle *string         `json:"button_title"`
	ButtonURL   *string         `json:"button_url" validate:"omitempty,url"`
}

// Broadcast рассылает сообщение одному пользователю или всем незаблокированным.
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}

	sent, err := h.service.Broadcast(r.Context(), service.BroadcastInput{
		UserID:      req.UserID,
		Text:        req.Message,
		MediaType:   req.MediaType,
		MediaURL:    req.MediaURL,
		ButtonTitle: req.ButtonTitle,
		ButtonURL:   req.ButtonURL,
	})
	if err != nil {
		h.writeError(w, err, "broadcast")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}
