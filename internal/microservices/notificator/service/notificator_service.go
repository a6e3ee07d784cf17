package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/MySagra/mysagra-sub000/internal/broadcast"
	"github.com/MySagra/mysagra-sub000/internal/common/logger"
)

type Consumer interface {
	ConsumeExclusive(exchange, consumer string) (<-chan amqp.Delivery, error)
}

// NotificatorService tails the event fanout and logs every event on the
// channels it was asked to watch.
type NotificatorService struct {
	consumer Consumer
	exchange string
	channels map[broadcast.Channel]struct{}
	log      *logger.Logger
}

func NewNotificatorService(c Consumer, exchange string, lg *logger.Logger) *NotificatorService {
	if lg == nil {
		lg = logger.Nop()
	}
	return &NotificatorService{consumer: c, exchange: exchange, channels: map[broadcast.Channel]struct{}{}, log: lg}
}

// Watch limits the logged channels. Without it every channel is logged.
func (ns *NotificatorService) Watch(chs ...broadcast.Channel) {
	for _, ch := range chs {
		ns.channels[ch] = struct{}{}
	}
}

func (ns *NotificatorService) Notify(ctx context.Context) error {
	deliveries, err := ns.consumer.ConsumeExclusive(ns.exchange, "notificator-"+uuid.NewString())
	if err != nil {
		return fmt.Errorf("consume %s: %w", ns.exchange, err)
	}
	ns.log.Info("notificator_listening", map[string]any{"exchange": ns.exchange, "channels": len(ns.channels)})
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("notificator: delivery channel closed")
			}
			ns.handle(d.Body)
		}
	}
}

func (ns *NotificatorService) handle(body []byte) bool {
	var env broadcast.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		ns.log.Warn("notification_malformed", map[string]any{"error": err.Error()})
		return false
	}
	if len(ns.channels) > 0 {
		if _, ok := ns.channels[env.Channel]; !ok {
			return false
		}
	}
	ns.log.Info("notification_received", map[string]any{
		"channel": env.Channel,
		"event":   env.Event,
		"origin":  env.Origin,
		"data":    string(env.Data),
	})
	return true
}
