package order

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/MySagra/mysagra-sub000/internal/broadcast"
	"github.com/MySagra/mysagra-sub000/internal/common/config"
	"github.com/MySagra/mysagra-sub000/internal/common/db"
	"github.com/MySagra/mysagra-sub000/internal/common/displaycode"
	"github.com/MySagra/mysagra-sub000/internal/common/httpx"
	"github.com/MySagra/mysagra-sub000/internal/common/logger"
	"github.com/MySagra/mysagra-sub000/internal/common/mq"
	"github.com/MySagra/mysagra-sub000/internal/microservices/order/handlers"
	"github.com/MySagra/mysagra-sub000/internal/microservices/order/repository"
	"github.com/MySagra/mysagra-sub000/internal/microservices/order/service"
	"github.com/MySagra/mysagra-sub000/internal/ticket"
)

// Run serves the order API and the event streams until ctx is done. With
// RabbitMQ enabled the hub is relayed through the fanout exchange so every
// instance sees every event.
func Run(ctx context.Context, cfg config.App, lg *logger.Logger) error {
	loc, err := cfg.Tickets.Location()
	if err != nil {
		return err
	}
	codes, err := displaycode.New(cfg.DisplayCode.Alphabet, cfg.DisplayCode.MinLength)
	if err != nil {
		return err
	}

	pool, err := db.Connect(ctx, cfg.Database, lg)
	if err != nil {
		return err
	}
	defer pool.Close()

	opts := []broadcast.Option{broadcast.WithBuffer(cfg.Broadcast.Buffer)}
	var relay *broadcast.Relay
	if cfg.Rabbit.Enabled {
		rmq, err := mq.Dial(cfg.Rabbit)
		if err != nil {
			return err
		}
		defer rmq.Close()
		lg.Info("rabbitmq_connected", map[string]any{"host": cfg.Rabbit.Host, "exchange": cfg.Rabbit.Exchange})
		relay = broadcast.NewRelay(rmq, cfg.Rabbit.Exchange, lg)
		opts = append(opts, broadcast.WithForwarder(relay))
	}
	hub := broadcast.NewHub(lg, opts...)

	repo := repository.New(pool)
	svc := service.New(repo, ticket.NewSequencer(loc, nil), codes, hub, lg)
	h := handlers.New(svc, hub, cfg.Broadcast.Heartbeat)
	srv := httpx.New(fmt.Sprintf(":%d", cfg.Server.Port), handlers.Router(h, lg, cfg.Server.RequestTimeout), cfg.Server.ShutdownTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx, hub) })
	}
	lg.Info("service_started", map[string]any{
		"port": cfg.Server.Port, "tickets_timezone": cfg.Tickets.Timezone, "relay": relay != nil,
	})
	return g.Wait()
}
