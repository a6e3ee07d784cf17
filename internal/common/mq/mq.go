package mq

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/MySagra/mysagra-sub000/internal/common/config"
)

const ackBuffer = 16

type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	acks <-chan amqp.Confirmation
	mu   sync.Mutex // one publish in flight at a time
}

func URL(cfg config.MQ) string {
	scheme := "amqp"
	if cfg.UseTLS {
		scheme = "amqps"
	}
	vhost := strings.TrimPrefix(cfg.VHost, "/")
	return fmt.Sprintf("%s://%s:%s@%s:%d/%s",
		scheme, url.QueryEscape(cfg.User), url.QueryEscape(cfg.Pass), cfg.Host, cfg.Port, url.PathEscape(vhost))
}

func Dial(cfg config.MQ) (*Client, error) {
	var (
		conn *amqp.Connection
		err  error
	)
	if cfg.UseTLS {
		conn, err = amqp.DialTLS(URL(cfg), &tls.Config{MinVersion: tls.VersionTLS12})
	} else {
		conn, err = amqp.Dial(URL(cfg))
	}
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, ackBuffer))

	return &Client{conn: conn, ch: ch, acks: acks}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Client) Ping() error {
	if c == nil || c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

// NotifyClose reports the connection going away.
func (c *Client) NotifyClose() <-chan *amqp.Error {
	return c.conn.NotifyClose(make(chan *amqp.Error, 1))
}

func (c *Client) DeclareFanout(exchange string) error {
	if c == nil || c.ch == nil {
		return errors.New("nil channel")
	}
	return c.ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil)
}

// ConsumeExclusive binds a server-named, exclusive, auto-delete queue to the
// fanout exchange and starts consuming it with auto-ack. The queue goes away
// with the connection.
func (c *Client) ConsumeExclusive(exchange, consumer string) (<-chan amqp.Delivery, error) {
	if err := c.DeclareFanout(exchange); err != nil {
		return nil, fmt.Errorf("declare %s: %w", exchange, err)
	}
	q, err := c.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := c.ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind %s to %s: %w", q.Name, exchange, err)
	}
	return c.ch.Consume(q.Name, consumer, true, true, false, false, nil)
}

// Publish sends a transient message and waits for the broker's ack.
func (c *Client) Publish(ctx context.Context, exchange, key string, body []byte, headers amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.ch.GetNextPublishSeqNo()
	if err := c.ch.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Transient,
		ContentType:  "application/json",
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         body,
	}); err != nil {
		return err
	}
	return awaitConfirm(ctx, c.acks, seq)
}

// awaitConfirm waits for the confirmation carrying delivery tag seq.
// Confirmations with lower tags belong to publishes that stopped waiting
// and are discarded.
func awaitConfirm(ctx context.Context, acks <-chan amqp.Confirmation, seq uint64) error {
	for {
		select {
		case conf, ok := <-acks:
			if !ok {
				return errors.New("rabbitmq channel closed before confirming publish")
			}
			switch {
			case conf.DeliveryTag < seq:
				continue
			case conf.DeliveryTag > seq:
				return fmt.Errorf("confirmation for publish %d missed, got %d", seq, conf.DeliveryTag)
			case conf.Ack:
				return nil
			default:
				return fmt.Errorf("publish %d NACK from broker", seq)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
