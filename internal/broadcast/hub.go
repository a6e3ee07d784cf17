// Package broadcast fans order lifecycle events out to the live connections
// of the cashier, display and printer endpoints.
//
// A Hub is constructed once per process and injected where needed. It does
// not span processes on its own; attach a Forwarder (see Relay) for that.
package broadcast

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/MySagra/mysagra-sub000/internal/common/logger"
)

type Channel string

const (
	Cashier Channel = "cashier"
	Display Channel = "display"
	Printer Channel = "printer"
)

var channels = map[Channel]struct{}{Cashier: {}, Display: {}, Printer: {}}

func ParseChannel(s string) (Channel, error) {
	ch := Channel(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := channels[ch]; !ok {
		return "", fmt.Errorf("unknown channel %q", s)
	}
	return ch, nil
}

// Message is what a subscriber receives. Data is serialized once per publish
// and shared by every subscriber.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Forwarder carries locally published messages to other processes. Forward
// must not block.
type Forwarder interface {
	Forward(ch Channel, msg Message)
}

type Subscriber struct {
	id      uint64
	channel Channel
	events  chan Message
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

func (s *Subscriber) ID() uint64             { return s.id }
func (s *Subscriber) Channel() Channel       { return s.channel }
func (s *Subscriber) Events() <-chan Message { return s.events }
func (s *Subscriber) Done() <-chan struct{}  { return s.done }
func (s *Subscriber) Dropped() uint64        { return s.dropped.Load() }
func (s *Subscriber) close()                 { s.once.Do(func() { close(s.done) }) }

type Option func(*Hub)

// WithBuffer sets how many undelivered messages a subscriber may hold before
// new ones are dropped for it.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

func WithForwarder(f Forwarder) Option { return func(h *Hub) { h.forward = f } }

type Hub struct {
	mu      sync.RWMutex
	subs    map[Channel]map[*Subscriber]struct{}
	nextID  atomic.Uint64
	buffer  int
	forward Forwarder
	log     *logger.Logger
}

func NewHub(lg *logger.Logger, opts ...Option) *Hub {
	if lg == nil {
		lg = logger.Nop()
	}
	h := &Hub{
		subs:   make(map[Channel]map[*Subscriber]struct{}),
		buffer: 32,
		log:    lg,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Subscribe registers a new subscriber. The channel entry is created lazily
// and kept for the life of the process.
func (h *Hub) Subscribe(ch Channel) (*Subscriber, error) {
	if _, ok := channels[ch]; !ok {
		return nil, fmt.Errorf("subscribe: unknown channel %q", ch)
	}
	s := &Subscriber{
		id:      h.nextID.Add(1),
		channel: ch,
		events:  make(chan Message, h.buffer),
		done:    make(chan struct{}),
	}
	h.mu.Lock()
	set := h.subs[ch]
	if set == nil {
		set = make(map[*Subscriber]struct{})
		h.subs[ch] = set
	}
	set[s] = struct{}{}
	n := len(set)
	h.mu.Unlock()

	h.log.Info("subscriber_added", map[string]any{"channel": ch, "subscriber": s.id, "subscribers": n})
	return s, nil
}

// Unsubscribe is safe to call more than once and with a subscriber that was
// never registered.
func (h *Hub) Unsubscribe(ch Channel, s *Subscriber) {
	if s == nil {
		return
	}
	h.mu.Lock()
	set := h.subs[ch]
	_, ok := set[s]
	if ok {
		delete(set, s)
	}
	n := len(set)
	h.mu.Unlock()

	s.close()
	if ok {
		h.log.Info("subscriber_removed", map[string]any{
			"channel": ch, "subscriber": s.id, "subscribers": n, "dropped": s.Dropped(),
		})
	}
}

func (h *Hub) SubscriberCount(ch Channel) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[ch])
}

// Publish delivers event to every current subscriber of ch and forwards it to
// other processes when a Forwarder is attached. It never fails the caller.
func (h *Hub) Publish(ch Channel, event string, data any) {
	msg, ok := h.encode(ch, event, data)
	if !ok {
		return
	}
	h.Deliver(ch, msg)
	if h.forward != nil {
		h.forward.Forward(ch, msg)
	}
}

// PublishToMany serializes data once and publishes it on each channel.
func (h *Hub) PublishToMany(chs []Channel, event string, data any) {
	if len(chs) == 0 {
		return
	}
	msg, ok := h.encode(chs[0], event, data)
	if !ok {
		return
	}
	for _, ch := range chs {
		h.Deliver(ch, msg)
		if h.forward != nil {
			h.forward.Forward(ch, msg)
		}
	}
}

// Deliver hands an already encoded message to local subscribers only. The
// relay uses it for messages that came from another process.
func (h *Hub) Deliver(ch Channel, msg Message) int {
	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.subs[ch]))
	for s := range h.subs[ch] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		select {
		case <-s.done:
			continue
		default:
		}
		select {
		case s.events <- msg:
			delivered++
		case <-s.done:
		default:
			s.dropped.Add(1)
			h.log.Warn("event_dropped", map[string]any{
				"channel": ch, "event": msg.Event, "subscriber": s.id, "reason": "buffer_full",
			})
		}
	}
	h.log.Debug("event_published", map[string]any{
		"channel": ch, "event": msg.Event, "subscribers": len(targets), "delivered": delivered,
	})
	return delivered
}

func (h *Hub) encode(ch Channel, event string, data any) (Message, bool) {
	b, err := json.Marshal(data)
	if err != nil {
		h.log.Error("event_encode_failed", err, map[string]any{"channel": ch, "event": event})
		return Message{}, false
	}
	return Message{Event: event, Data: b}, true
}
