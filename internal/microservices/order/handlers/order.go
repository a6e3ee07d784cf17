package handlers

import (
	"net/http"

	"github.com/MySagra/mysagra-sub000/internal/broadcast"
	"github.com/MySagra/mysagra-sub000/internal/domain"
	dto "github.com/MySagra/mysagra-sub000/internal/microservices/order/domain/dto"
	"github.com/MySagra/mysagra-sub000/internal/microservices/order/service"
)

type OrderHandler struct {
	service service.OrderServiceInterface
	pub     service.Publisher
}

func NewOrderHandler(s service.OrderServiceInterface, pub service.Publisher) *OrderHandler {
	return &OrderHandler{service: s, pub: pub}
}

func (oh *OrderHandler) AddOrder(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateOrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	creation, err := req.ToDomain()
	if err != nil {
		oh.fail(w, r, err)
		return
	}
	o, err := retryConflict(r.Context(), "create_order", func() (domain.Order, error) {
		return oh.service.CreateOrder(r.Context(), creation)
	})
	if err != nil {
		oh.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (oh *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	o, err := oh.service.GetOrder(r.Context(), id)
	if err != nil {
		oh.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (oh *OrderHandler) GetOrderByCode(w http.ResponseWriter, r *http.Request) {
	o, err := oh.service.GetOrderByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		oh.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (oh *OrderHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	limit := atoiDefault(r.URL.Query().Get("limit"), service.DefaultTimelineLimit)
	offset := atoiDefault(r.URL.Query().Get("offset"), 0)
	events, err := oh.service.Timeline(r.Context(), id, limit, offset)
	if err != nil {
		oh.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.TimelineResponse{OrderID: id, Events: events})
}

func (oh *OrderHandler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	var req dto.ConfirmRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	c, err := req.ToDomain()
	if err != nil {
		oh.fail(w, r, err)
		return
	}
	o, err := retryConflict(r.Context(), "confirm_order", func() (domain.Order, error) {
		return oh.service.ConfirmOrder(r.Context(), id, c)
	})
	if err != nil {
		oh.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (oh *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	var req dto.UpdateStatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		oh.fail(w, r, err)
		return
	}
	o, err := oh.service.UpdateStatus(r.Context(), id, status)
	if err != nil {
		oh.fail(w, r, err)
		return
	}
	oh.pub.PublishToMany([]broadcast.Channel{broadcast.Cashier, broadcast.Display},
		domain.EventStatusUpdated, domain.StatusUpdatedEventFrom(o))
	writeJSON(w, http.StatusOK, o)
}

func (oh *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := oh.service.DeleteOrder(r.Context(), id); err != nil {
		oh.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (oh *OrderHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := oh.service.Ready(r.Context()); err != nil {
		oh.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (oh *OrderHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, typ := problemFor(err)
	lg := requestLogger(r.Context())
	if code >= http.StatusInternalServerError {
		lg.Error("request_failed", err, map[string]any{"path": r.URL.Path, "status": code})
	} else {
		lg.Debug("request_rejected", map[string]any{"path": r.URL.Path, "status": code, "reason": err.Error()})
	}
	writeProblem(w, code, typ, err.Error())
}
