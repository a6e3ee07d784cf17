package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MySagra/mysagra-sub000/internal/broadcast"
)

const (
	wsWriteWait = 10 * time.Second
	sseRetryMs  = 3000
)

// EventsHandler streams hub messages to SSE and WebSocket clients. Each
// connection is one subscriber for its lifetime.
type EventsHandler struct {
	hub       *broadcast.Hub
	heartbeat time.Duration
	upgrader  websocket.Upgrader
}

func NewEventsHandler(hub *broadcast.Hub, heartbeat time.Duration) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &EventsHandler{
		hub:       hub,
		heartbeat: heartbeat,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (eh *EventsHandler) channel(w http.ResponseWriter, r *http.Request) (broadcast.Channel, bool) {
	ch, err := broadcast.ParseChannel(r.PathValue("channel"))
	if err != nil {
		writeProblem(w, http.StatusNotFound, "unknown_channel", err.Error())
		return "", false
	}
	return ch, true
}

func (eh *EventsHandler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	ch, ok := eh.channel(w, r)
	if !ok {
		return
	}
	sub, err := eh.hub.Subscribe(ch)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "unknown_channel", err.Error())
		return
	}
	defer eh.hub.Unsubscribe(ch, sub)

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintf(w, "retry: %d\n\n", sseRetryMs); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		requestLogger(r.Context()).Error("sse_flush_unsupported", err, nil)
		return
	}

	ticker := time.NewTicker(eh.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		case msg := <-sub.Events():
			if err := writeSSE(w, msg); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// writeSSE frames msg as one SSE event whose data is the JSON envelope.
func writeSSE(w io.Writer, msg broadcast.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, b)
	return err
}

func (eh *EventsHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ch, ok := eh.channel(w, r)
	if !ok {
		return
	}
	conn, err := eh.upgrader.Upgrade(w, r, nil)
	if err != nil {
		requestLogger(r.Context()).Warn("ws_upgrade_failed", map[string]any{"error": err.Error()})
		return
	}
	defer conn.Close()

	sub, err := eh.hub.Subscribe(ch)
	if err != nil {
		return
	}
	defer eh.hub.Unsubscribe(ch, sub)

	// Clients only ever send control frames; reading is how pongs and close
	// frames get processed.
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(2 * eh.heartbeat))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * eh.heartbeat))
	})
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eh.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case <-sub.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(wsWriteWait))
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case msg := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}
