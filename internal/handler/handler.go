// Package handler содержит HTTP-обработчики API витрины.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/middleware"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/repository"
	"github.com/mmeshcher/storefront/internal/service"
	"github.com/mmeshcher/storefront/internal/validation"
	"github.com/mmeshcher/storefront/internal/yookassa"
)

const maxBodySize = 1 << 20

var validate = validator.New()

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, u model.User) (*model.User, error)
	GetUser(ctx context.Context, userID int64) (*model.User, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	AddCartItem(ctx context.Context, item model.CartItem) (*model.CartItem, error)
	GetCart(ctx context.Context, userID int64) ([]model.CartItem, error)
	DeleteCartItem(ctx context.Context, id int64) error

	CreateOrder(ctx context.Context, in service.CreateOrderInput) (*model.Order, error)
	ListOrders(ctx context.Context, includeAll bool) ([]model.Order, error)
	GetOrdersForUser(ctx context.Context, userID int64) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*model.Order, error)
	GetOrderDeliveries(ctx context.Context, orderID int64) ([]model.Delivery, error)
	UpdateDeliveryDate(ctx context.Context, deliveryID int64, date string) (*model.Delivery, error)
	UpdateDeliveryStatus(ctx context.Context, deliveryID int64, status string) (*model.Delivery, error)

	CreatePayment(ctx context.Context, in service.PaymentInput) (*service.PaymentResult, error)
	CreateDeposit(ctx context.Context, in service.DepositInput) (*service.PaymentResult, error)
	GetUserTransactions(ctx context.Context, userID int64) ([]model.Transaction, error)
	HandleCallback(ctx context.Context, payload []byte, sourceIP string) error

	CreateSource(ctx context.Context, startParam, note string) (*model.Source, error)
	ListSources(ctx context.Context) ([]model.Source, error)
	LogSourceVisit(ctx context.Context, startParam string, userID int64, phone *string) (bool, error)
	LogAction(ctx context.Context, entry model.UserActionLog) (*model.UserActionLog, error)
	ListActions(ctx context.Context, userID *int64, action *string) ([]model.UserActionLog, error)
	Broadcast(ctx context.Context, in service.BroadcastInput) (int, error)
}

// Handler реализует HTTP-обработчики API витрины.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	trustedProxies *validation.IPAllowList
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов. trustedProxies задаёт
// прокси, которым разрешено передавать адрес клиента в X-Forwarded-For и X-Real-IP;
// nil означает, что заголовки игнорируются.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, trustedProxies *validation.IPAllowList) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		trustedProxies: trustedProxies,
	}
}

// decodeJSON читает тело запроса в v и проверяет теги validate.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return err
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// writeError переводит ошибку сервиса в HTTP-статус. Неизвестные ошибки логируются как 500.
func (h *Handler) writeError(w http.ResponseWriter, err error, op string, fields ...zap.Field) {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidPayload),
		errors.Is(err, service.ErrReceiptContact),
		errors.Is(err, yookassa.ErrGateway):
		http.Error(w, err.Error(), http.StatusBadRequest)

	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrDeliveryNotFound),
		errors.Is(err, repository.ErrTransactionNotFound),
		errors.Is(err, repository.ErrCartItemNotFound),
		errors.Is(err, repository.ErrSourceNotFound),
		errors.Is(err, service.ErrNoRecipients):
		http.Error(w, err.Error(), http.StatusNotFound)

	case errors.Is(err, service.ErrOrderNotPayable),
		errors.Is(err, repository.ErrSourceExists),
		errors.Is(err, repository.ErrTransactionExists):
		http.Error(w, err.Error(), http.StatusConflict)

	case errors.Is(err, service.ErrForbiddenSource),
		errors.Is(err, repository.ErrUserBlocked):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)

	default:
		h.logger.Error(op+" error", append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func queryID(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid %s", name)
	}
	return &id, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
