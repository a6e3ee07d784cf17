package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/MySagra/mysagra-sub000/internal/common/logger"
)

// Bus is the part of the AMQP client the relay uses.
type Bus interface {
	Publish(ctx context.Context, exchange, key string, body []byte, headers amqp.Table) error
	ConsumeExclusive(exchange, consumer string) (<-chan amqp.Delivery, error)
}

// Envelope is the wire form of a message on the fanout exchange.
type Envelope struct {
	Origin  string          `json:"origin"`
	Channel Channel         `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

const (
	relayBuffer         = 256
	relayPublishTimeout = 5 * time.Second
)

// Relay mirrors local publishes onto a fanout exchange and feeds what other
// processes published into the local hub. It is a Forwarder.
type Relay struct {
	bus      Bus
	exchange string
	origin   string
	out      chan Envelope
	log      *logger.Logger
}

func NewRelay(bus Bus, exchange string, lg *logger.Logger) *Relay {
	if lg == nil {
		lg = logger.Nop()
	}
	return &Relay{
		bus:      bus,
		exchange: exchange,
		origin:   uuid.NewString(),
		out:      make(chan Envelope, relayBuffer),
		log:      lg,
	}
}

func (r *Relay) Origin() string { return r.origin }

// Forward queues msg for the exchange. When the queue is full the message
// stays local.
func (r *Relay) Forward(ch Channel, msg Message) {
	env := Envelope{Origin: r.origin, Channel: ch, Event: msg.Event, Data: msg.Data}
	select {
	case r.out <- env:
	default:
		r.log.Warn("relay_dropped", map[string]any{"channel": ch, "event": msg.Event, "reason": "queue_full"})
	}
}

// Run consumes the exchange into hub and publishes forwarded messages until
// ctx is done or the broker closes the delivery channel.
func (r *Relay) Run(ctx context.Context, hub *Hub) error {
	deliveries, err := r.bus.ConsumeExclusive(r.exchange, "relay-"+r.origin)
	if err != nil {
		return fmt.Errorf("relay consume: %w", err)
	}
	r.log.Info("relay_started", map[string]any{"exchange": r.exchange, "origin": r.origin})

	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-r.out:
			r.publish(ctx, env)
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("relay: delivery channel closed")
			}
			r.receive(hub, d.Body)
		}
	}
}

func (r *Relay) publish(ctx context.Context, env Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		r.log.Error("relay_encode_failed", err, map[string]any{"event": env.Event})
		return
	}
	pctx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
	defer cancel()
	if err := r.bus.Publish(pctx, r.exchange, "", body, amqp.Table{"x-origin": r.origin}); err != nil {
		r.log.Error("relay_publish_failed", err, map[string]any{"channel": env.Channel, "event": env.Event})
	}
}

// receive delivers a foreign envelope locally. Our own envelopes come back
// through the fanout too and are skipped.
func (r *Relay) receive(hub *Hub, body []byte) bool {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		r.log.Warn("relay_bad_envelope", map[string]any{"error": err.Error()})
		return false
	}
	if env.Origin == r.origin {
		return false
	}
	ch, err := ParseChannel(string(env.Channel))
	if err != nil {
		r.log.Warn("relay_bad_envelope", map[string]any{"error": err.Error(), "origin": env.Origin})
		return false
	}
	hub.Deliver(ch, Message{Event: env.Event, Data: env.Data})
	return true
}
