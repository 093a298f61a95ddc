package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Orders
	mux.Handle("POST /api/v1/orders", chain(http.HandlerFunc(h.SubmitOrder)))
	mux.Handle("GET /api/v1/orders", chain(http.HandlerFunc(h.ListOrders)))
	mux.Handle("GET /api/v1/orders/{id}", chain(http.HandlerFunc(h.GetOrder)))
	mux.Handle("GET /api/v1/orders/{id}/status", chain(http.HandlerFunc(h.GetOrderStatus)))
	mux.Handle("GET /api/v1/orders/{id}/events", chain(http.HandlerFunc(h.ListOrderEvents)))

	// Services
	mux.Handle("GET /api/v1/services/health", chain(http.HandlerFunc(h.GetServiceHealth)))
	mux.Handle("POST /api/v1/services/{service}/recover", chain(http.HandlerFunc(h.RecoverService)))
}
