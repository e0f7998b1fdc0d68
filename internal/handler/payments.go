package handler

import (
	"io"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/service"
	"github.com/mmeshcher/storefront/internal/validation"
)

type payRequest struct {
	UserID      int64           `json:"user_id" validate:"required,gt=0"`
	OrderID     int64           `json:"order_id" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	Description *string         `json:"description"`
	ReturnURL   string          `json:"return_url" validate:"required,url"`
}

// Pay открывает платёжную сессию для оплаты заказа.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}

	res, err := h.service.CreatePayment(r.Context(), service.PaymentInput{
		UserID:      req.UserID,
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Description: req.Description,
		ReturnURL:   req.ReturnURL,
	})
	if err != nil {
		h.writeError(w, err, "create payment", zap.Int64("orderID", req.OrderID))
		return
	}

	h.writeJSON(w, http.StatusOK, res)
}

type depositRequest struct {
	UserID      int64           `json:"user_id" validate:"required,gt=0"`
	PayerID     *int64          `json:"payer_id" validate:"omitempty,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	Description *string         `json:"description"`
	ReturnURL   string          `json:"return_url" validate:"required,url"`
}

// DepositPay открывает платёжную сессию пополнения баланса. Пополнять можно и чужой
// баланс: payer_id указывает плательщика.
func (h *Handler) DepositPay(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}

	res, err := h.service.CreateDeposit(r.Context(), service.DepositInput{
		UserID:      req.UserID,
		PayerID:     req.PayerID,
		Amount:      req.Amount,
		Description: req.Description,
		ReturnURL:   req.ReturnURL,
	})
	if err != nil {
		h.writeError(w, err, "create deposit", zap.Int64("userID", req.UserID))
		return
	}

	h.writeJSON(w, http.StatusOK, res)
}

// Webhook принимает уведомления платёжного шлюза об изменении статуса платежа.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ip := validation.ClientIP(r.RemoteAddr, r.Header.Get("X-Forwarded-For"), r.Header.Get("X-Real-IP"), h.trustedProxies)

	if err := h.service.HandleCallback(r.Context(), body, ip); err != nil {
		h.writeError(w, err, "handle webhook", zap.String("ip", ip))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// MisroutedWebhook отвечает на уведомления, отправленные на корень сервиса.
func (h *Handler) MisroutedWebhook(w http.ResponseWriter, r *http.Request) {
	h.logger.Warn("webhook posted to root", zap.String("remote", r.RemoteAddr))
	http.Error(w, "use /api/yookassa/webhook", http.StatusBadRequest)
}

// GetUserTransactions возвращает историю платежей пользователя.
func (h *Handler) GetUserTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "user_id")
	if err != nil {
		badRequest(w, err)
		return
	}

	txs, err := h.service.GetUserTransactions(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get transactions", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusOK, toTransactions(txs))
}
