package service

import (
	"github.com/MySagra/mysagra-sub000/internal/common/displaycode"
	"github.com/MySagra/mysagra-sub000/internal/common/logger"
	"github.com/MySagra/mysagra-sub000/internal/microservices/order/repository"
	"github.com/MySagra/mysagra-sub000/internal/ticket"
)

type Service struct {
	OrderService OrderServiceInterface
}

func New(repo *repository.Repository, seq *ticket.Sequencer, codes *displaycode.Codec, pub Publisher, lg *logger.Logger) *Service {
	return &Service{
		OrderService: NewOrderService(repo.OrderRepo, seq, codes, pub, lg),
	}
}
