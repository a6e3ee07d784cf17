package handlers

import (
	"time"

	"github.com/MySagra/mysagra-sub000/internal/broadcast"
	"github.com/MySagra/mysagra-sub000/internal/microservices/order/service"
)

type Handler struct {
	OrderHandler  *OrderHandler
	EventsHandler *EventsHandler
}

func New(s *service.Service, hub *broadcast.Hub, heartbeat time.Duration) *Handler {
	return &Handler{
		OrderHandler:  NewOrderHandler(s.OrderService, hub),
		EventsHandler: NewEventsHandler(hub, heartbeat),
	}
}
