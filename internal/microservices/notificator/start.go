package notificator

import (
	"context"

	"github.com/MySagra/mysagra-sub000/internal/broadcast"
	"github.com/MySagra/mysagra-sub000/internal/common/config"
	"github.com/MySagra/mysagra-sub000/internal/common/logger"
	"github.com/MySagra/mysagra-sub000/internal/common/mq"
	"github.com/MySagra/mysagra-sub000/internal/microservices/notificator/service"
)

func Start(ctx context.Context, cfg config.MQ, channels []broadcast.Channel, lg *logger.Logger) error {
	rmq, err := mq.Dial(cfg)
	if err != nil {
		return err
	}
	defer rmq.Close()

	svc := service.New(rmq, cfg.Exchange, lg)
	svc.NotificatorService.Watch(channels...)
	return svc.NotificatorService.Notify(ctx)
}
