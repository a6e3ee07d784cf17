package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/MySagra/mysagra-sub000/internal/broadcast"
	"github.com/MySagra/mysagra-sub000/internal/common/config"
	"github.com/MySagra/mysagra-sub000/internal/common/db"
	"github.com/MySagra/mysagra-sub000/internal/common/logger"
	"github.com/MySagra/mysagra-sub000/internal/microservices/notificator"
	"github.com/MySagra/mysagra-sub000/internal/microservices/order"
)

const modes = "order-service | notification-subscriber | migrate"

func main() {
	mode := pflag.String("mode", "", modes)
	cfgPath := pflag.String("config", "", "path to YAML config (default: config.yaml or deploy/config.example.yaml if present)")
	port := pflag.Int("port", 0, "order-service: HTTP port, overrides the config")
	channels := pflag.StringSlice("channels", nil, "notification-subscriber: channels to log (cashier,display,printer); empty logs all")
	logLevel := pflag.String("log-level", "", "debug | info | warn | error, overrides the config")
	pflag.Parse()

	lg := logger.New("bootstrap")
	defer lg.Sync()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		lg.Error("config_load_failed", err, nil)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		lg.Error("bad_log_level", err, map[string]any{"level": cfg.Log.Level})
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch *mode {
	case "order-service":
		exitOn(lg, cfg.Validate())
		svcLog := logger.New("order-service")
		defer svcLog.Sync()
		exitOn(svcLog, order.Run(ctx, cfg, svcLog))
	case "notification-subscriber":
		exitOn(lg, cfg.Rabbit.Validate())
		chs, err := parseChannels(*channels)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		subLog := logger.New("notification-subscriber")
		defer subLog.Sync()
		exitOn(subLog, notificator.Start(ctx, cfg.Rabbit, chs, subLog))
	case "migrate":
		exitOn(lg, cfg.Validate())
		pool, err := db.Connect(ctx, cfg.Database, lg)
		exitOn(lg, err)
		err = db.Migrate(ctx, pool, lg)
		pool.Close()
		exitOn(lg, err)
	default:
		fmt.Fprintln(os.Stderr, "--mode is required: "+modes)
		pflag.Usage()
		os.Exit(2)
	}
}

func loadConfig(path string) (config.App, error) {
	if path == "" {
		found, err := config.FindConfig()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.App{}, err
		}
		path = found
	}
	return config.Load(path)
}

func parseChannels(names []string) ([]broadcast.Channel, error) {
	chs := make([]broadcast.Channel, 0, len(names))
	for _, n := range names {
		ch, err := broadcast.ParseChannel(n)
		if err != nil {
			return nil, err
		}
		chs = append(chs, ch)
	}
	return chs, nil
}

func exitOn(lg *logger.Logger, err error) {
	if err == nil {
		return
	}
	lg.Error("fatal", err, nil)
	lg.Sync()
	os.Exit(1)
}
