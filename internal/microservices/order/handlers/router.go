package handlers

import (
	"net/http"
	"time"

	"github.com/MySagra/mysagra-sub000/internal/common/logger"
)

// Router wires every endpoint. Streams are exempt from the request timeout.
func Router(h *Handler, lg *logger.Logger, requestTimeout time.Duration) http.Handler {
	api := func(fn http.HandlerFunc) http.Handler { return withTimeout(requestTimeout, fn) }

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/orders", api(h.OrderHandler.AddOrder))
	mux.Handle("GET /api/v1/orders/{id}", api(h.OrderHandler.GetOrder))
	mux.Handle("GET /api/v1/orders/{id}/timeline", api(h.OrderHandler.GetTimeline))
	mux.Handle("PATCH /api/v1/orders/{id}/confirm", api(h.OrderHandler.ConfirmOrder))
	mux.Handle("PATCH /api/v1/orders/{id}/status", api(h.OrderHandler.UpdateStatus))
	mux.Handle("DELETE /api/v1/orders/{id}", api(h.OrderHandler.DeleteOrder))
	mux.Handle("GET /api/v1/order-codes/{code}", api(h.OrderHandler.GetOrderByCode))
	mux.Handle("GET /healthz", api(h.OrderHandler.Health))

	mux.HandleFunc("GET /api/v1/events/{channel}", h.EventsHandler.ServeSSE)
	mux.HandleFunc("GET /ws/events/{channel}", h.EventsHandler.ServeWS)

	return withRequestContext(lg, mux)
}
