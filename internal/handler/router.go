package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/storefront/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware API витрины.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Post("/", h.MisroutedWebhook)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/orders", h.CreateOrder)

	r.Post("/users", h.RegisterUser)
	r.Get("/users/{user_id}", h.GetUser)
	r.Get("/users/{user_id}/orders", h.GetUserOrders)

	r.Get("/products", h.ListProducts)

	r.Post("/cart_items", h.AddCartItem)
	r.Get("/cart_items", h.GetCart)
	r.Delete("/cart_items/{id}", h.DeleteCartItem)

	r.Post("/source_visit", h.LogSourceVisit)
	r.Post("/user_action", h.LogAction)

	r.Route("/api", func(r chi.Router) {
		r.Post("/pay", h.Pay)
		r.Post("/deposit_pay", h.DepositPay)
		r.Post("/deposit_pay_web", h.DepositPay)
		r.Post("/yookassa/webhook", h.Webhook)
		r.Get("/user/{user_id}/transactions", h.GetUserTransactions)

		r.With(h.authMiddleware.Middleware).Post("/broadcast", h.Broadcast)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Get("/orders", h.ListOrders)
		r.Patch("/orders/{id}/status", h.UpdateOrderStatus)
		r.Get("/orders/{id}/deliveries", h.GetOrderDeliveries)

		r.Patch("/deliveries/{id}/date", h.UpdateDeliveryDate)
		r.Patch("/deliveries/{id}/status", h.UpdateDeliveryStatus)

		r.Post("/sources", h.CreateSource)
		r.Get("/sources", h.ListSources)

		r.Get("/user_actions", h.ListActions)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
