package service

import "github.com/MySagra/mysagra-sub000/internal/common/logger"

type Service struct {
	NotificatorService *NotificatorService
}

func New(c Consumer, exchange string, lg *logger.Logger) *Service {
	return &Service{NotificatorService: NewNotificatorService(c, exchange, lg)}
}
