package handler

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/middleware"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/service"
)

type createOrderRequest struct {
	UserID      int64             `json:"user_id" validate:"required,gt=0"`
	Items       []model.OrderItem `json:"items" validate:"required,min=1"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	OrderType   model.OrderType   `json:"order_type"`
	FIO         *string           `json:"fio"`
	Phone       *string           `json:"phone"`
	Email       *string           `json:"email"`
	Comment     *string           `json:"comment"`
}

// CreateOrder оформляет заказ со статусом pending_payment и графиком доставок.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}

	order, err := h.service.CreateOrder(r.Context(), service.CreateOrderInput{
		UserID:      req.UserID,
		Items:       req.Items,
		TotalAmount: req.TotalAmount,
		OrderType:   req.OrderType,
		Contact: model.ContactInfo{
			FIO:     req.FIO,
			Phone:   req.Phone,
			Email:   req.Email,
			Comment: req.Comment,
		},
	})
	if err != nil {
		h.writeError(w, err, "create order", zap.Int64("userID", req.UserID))
		return
	}

	h.writeJSON(w, http.StatusCreated, toOrder(*order))
}

// ListOrders возвращает заказы для администратора. По умолчанию неоплаченные и отменённые
// заказы скрыты; ?all=true возвращает все.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	includeAll := false
	if raw := r.URL.Query().Get("all"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "invalid all", http.StatusBadRequest)
			return
		}
		includeAll = v
	}

	orders, err := h.service.ListOrders(r.Context(), includeAll)
	if err != nil {
		h.writeError(w, err, "list orders")
		return
	}

	h.writeJSON(w, http.StatusOK, toOrders(orders))
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateOrderStatus безусловно выставляет статус заказа.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, err)
		return
	}

	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}

	order, err := h.service.UpdateOrderStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeError(w, err, "update order status", zap.Int64("orderID", id))
		return
	}

	if admin, ok := middleware.GetAdminFromContext(r.Context()); ok {
		h.logger.Info("order status changed",
			zap.Int64("orderID", id),
			zap.String("status", req.Status),
			zap.String("admin", admin),
		)
	}

	h.writeJSON(w, http.StatusOK, toOrder(*order))
}

// GetOrderDeliveries возвращает доставки заказа.
func (h *Handler) GetOrderDeliveries(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, err)
		return
	}

	deliveries, err := h.service.GetOrderDeliveries(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get order deliveries", zap.Int64("orderID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, toDeliveries(deliveries))
}

type deliveryDateRequest struct {
	DeliveryDate string `json:"delivery_date" validate:"required"`
}

// UpdateDeliveryDate переносит доставку на другую дату.
func (h *Handler) UpdateDeliveryDate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, err)
		return
	}

	var req deliveryDateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}

	d, err := h.service.UpdateDeliveryDate(r.Context(), id, req.DeliveryDate)
	if err != nil {
		h.writeError(w, err, "update delivery date", zap.Int64("deliveryID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, toDeliveries([]model.Delivery{*d})[0])
}

// UpdateDeliveryStatus меняет статус доставки.
func (h *Handler) UpdateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, err)
		return
	}

	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}

	d, err := h.service.UpdateDeliveryStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeError(w, err, "update delivery status", zap.Int64("deliveryID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, toDeliveries([]model.Delivery{*d})[0])
}
