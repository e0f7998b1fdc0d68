// Package yookassa предоставляет клиент платёжного шлюза ЮKassa (API v3).
package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultCurrency — валюта всех платежей витрины.
const DefaultCurrency = "RUB"

// ErrGateway оборачивает любые отказы шлюза при создании платежа.
var ErrGateway = errors.New("payment gateway error")

// Client инкапсулирует HTTP-взаимодействие с ЮKassa.
type Client struct {
	baseURL    string
	shopID     string
	secretKey  string
	httpClient *http.Client
}

// NewClient создаёт клиент шлюза с ограничением времени на каждый запрос.
func NewClient(baseURL, shopID, secretKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		shopID:    shopID,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Customer содержит данные покупателя для чека.
type Customer struct {
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// Receipt — фискальный чек, передаваемый вместе с платежом.
type Receipt struct {
	Customer Customer
	Item     string
}

// SessionRequest описывает создание платёжной сессии.
type SessionRequest struct {
	Amount      decimal.Decimal
	Currency    string
	ReturnURL   string
	Description string
	Receipt     *Receipt
}

// Session — ответ шлюза: адрес подтверждения, идентификатор платежа и его начальный статус.
type Session struct {
	ID              string
	Status          string
	ConfirmationURL string
}

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type receiptItem struct {
	Description    string  `json:"description"`
	Quantity       float64 `json:"quantity"`
	Amount         amount  `json:"amount"`
	VatCode        int     `json:"vat_code"`
	PaymentMode    string  `json:"payment_mode"`
	PaymentSubject string  `json:"payment_subject"`
}

type receiptPayload struct {
	Customer Customer      `json:"customer"`
	Items    []receiptItem `json:"items"`
}

type createPaymentRequest struct {
	Amount       amount          `json:"amount"`
	Confirmation confirmation    `json:"confirmation"`
	Capture      bool            `json:"capture"`
	Description  string          `json:"description,omitempty"`
	Receipt      *receiptPayload `json:"receipt,omitempty"`
}

type paymentResponse struct {
	ID           string       `json:"id"`
	Status       string       `json:"status"`
	Confirmation confirmation `json:"confirmation"`
}

type errorResponse struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

// CreateSession создаёт платёж с редиректом на страницу оплаты.
func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("%w: client not configured", ErrGateway)
	}

	currency := req.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	sum := amount{Value: req.Amount.StringFixed(2), Currency: currency}

	payload := createPaymentRequest{
		Amount:       sum,
		Confirmation: confirmation{Type: "redirect", ReturnURL: req.ReturnURL},
		Capture:      true,
		Description:  req.Description,
	}
	if req.Receipt != nil {
		payload.Receipt = &receiptPayload{
			Customer: req.Receipt.Customer,
			Items: []receiptItem{{
				Description:    req.Receipt.Item,
				Quantity:       1,
				Amount:         sum,
				VatCode:        1,
				PaymentMode:    "full_payment",
				PaymentSubject: "service",
			}},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.SetBasicAuth(c.shopID, c.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotence-Key", uuid.NewString())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrGateway, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e errorResponse
		if json.Unmarshal(raw, &e) == nil && e.Description != "" {
			return nil, fmt.Errorf("%w: %s", ErrGateway, e.Description)
		}
		return nil, fmt.Errorf("%w: unexpected status %d", ErrGateway, resp.StatusCode)
	}

	var p paymentResponse
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrGateway, err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("%w: empty payment id", ErrGateway)
	}

	return &Session{
		ID:              p.ID,
		Status:          p.Status,
		ConfirmationURL: p.Confirmation.ConfirmationURL,
	}, nil
}
