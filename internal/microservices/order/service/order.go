package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/MySagra/mysagra-sub000/internal/broadcast"
	"github.com/MySagra/mysagra-sub000/internal/common/displaycode"
	"github.com/MySagra/mysagra-sub000/internal/common/logger"
	"github.com/MySagra/mysagra-sub000/internal/domain"
	"github.com/MySagra/mysagra-sub000/internal/microservices/order/repository"
	"github.com/MySagra/mysagra-sub000/internal/ticket"
)

const (
	DefaultTimelineLimit = 50
	MaxTimelineLimit     = 500
)

// Publisher is the hub surface the service needs.
type Publisher interface {
	Publish(ch broadcast.Channel, event string, data any)
	PublishToMany(chs []broadcast.Channel, event string, data any)
}

type OrderServiceInterface interface {
	CreateOrder(ctx context.Context, req domain.OrderCreation) (domain.Order, error)
	ConfirmOrder(ctx context.Context, id int64, c domain.Confirmation) (domain.Order, error)
	UpdateStatus(ctx context.Context, id int64, status domain.Status) (domain.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
	GetOrder(ctx context.Context, id int64) (domain.Order, error)
	GetOrderByCode(ctx context.Context, code string) (domain.Order, error)
	Timeline(ctx context.Context, id int64, limit, offset int) ([]domain.StatusChange, error)
	Ready(ctx context.Context) error
}

type OrderService struct {
	repo  repository.OrderRepositoryInterface
	seq   *ticket.Sequencer
	codes *displaycode.Codec
	pub   Publisher
	now   func() time.Time
	log   *logger.Logger
}

func NewOrderService(repo repository.OrderRepositoryInterface, seq *ticket.Sequencer, codes *displaycode.Codec, pub Publisher, lg *logger.Logger) *OrderService {
	if lg == nil {
		lg = logger.Nop()
	}
	return &OrderService{repo: repo, seq: seq, codes: codes, pub: pub, now: time.Now, log: lg}
}

func (s *OrderService) CreateOrder(ctx context.Context, req domain.OrderCreation) (domain.Order, error) {
	if err := domain.ValidateCreation(req); err != nil {
		return domain.Order{}, err
	}
	iso := pgx.ReadCommitted
	if req.Confirmation != nil {
		iso = pgx.Serializable
	}
	actor := domain.ActorFrom(ctx)

	var out domain.Order
	err := s.repo.InTx(ctx, iso, func(tx repository.OrderTx) error {
		menu, err := tx.MenuItems(ctx, domain.MenuIDs(req.Items))
		if err != nil {
			return err
		}
		items := domain.ToOrderItems(req.Items)
		subtotal, err := domain.PriceItems(items, menu, false)
		if err != nil {
			return err
		}

		o := domain.Order{
			Table:    strings.TrimSpace(req.Table),
			Customer: strings.TrimSpace(req.Customer),
			Subtotal: subtotal,
			Total:    domain.OrderTotal(subtotal, decimal.Zero, decimal.Zero),
			Status:   domain.StatusPending,
		}
		if req.Confirmation != nil {
			if err := s.confirm(ctx, tx, &o, *req.Confirmation); err != nil {
				return err
			}
		} else {
			clearSnapshots(items)
		}

		if err := tx.InsertOrder(ctx, &o); err != nil {
			return err
		}
		if o.DisplayCode, err = s.codes.Encode(o.ID); err != nil {
			return err
		}
		if err := tx.SetDisplayCode(ctx, o.ID, o.DisplayCode); err != nil {
			return err
		}
		if err := tx.InsertItems(ctx, o.ID, items); err != nil {
			return err
		}
		o.Items = items
		if err := tx.LogStatus(ctx, domain.StatusChange{OrderID: o.ID, Status: o.Status, ChangedBy: actor, Notes: "created"}); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	s.log.Info("order_created", map[string]any{
		"order_id": out.ID, "display_code": out.DisplayCode, "status": out.Status,
		"subtotal": out.Subtotal.String(), "items": len(out.Items),
	})
	s.pub.Publish(broadcast.Cashier, domain.EventNewOrder, domain.NewOrderEventFrom(out))
	if out.Status.Confirmed() {
		s.publishConfirmed(out)
	}
	return out, nil
}

func (s *OrderService) ConfirmOrder(ctx context.Context, id int64, c domain.Confirmation) (domain.Order, error) {
	if err := domain.ValidateConfirmation(c); err != nil {
		return domain.Order{}, err
	}
	actor := domain.ActorFrom(ctx)

	var out domain.Order
	err := s.repo.InTx(ctx, pgx.Serializable, func(tx repository.OrderTx) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if o.Status != domain.StatusPending {
			return fmt.Errorf("order %d is %s: %w", id, o.Status, domain.ErrAlreadyConfirmed)
		}

		items := o.Items
		replace := c.Items != nil
		ids := itemMenuIDs(items)
		if replace {
			if err := tx.DeleteItems(ctx, o.ID); err != nil {
				return err
			}
			items = domain.ToOrderItems(c.Items)
			ids = domain.MenuIDs(c.Items)
		}
		menu, err := tx.MenuItems(ctx, ids)
		if err != nil {
			return err
		}
		if o.Subtotal, err = domain.PriceItems(items, menu, replace); err != nil {
			return err
		}

		if err := s.confirm(ctx, tx, &o, c); err != nil {
			return err
		}
		if err := tx.SaveConfirmation(ctx, &o); err != nil {
			return err
		}
		if replace {
			err = tx.InsertItems(ctx, o.ID, items)
		} else {
			err = tx.UpdateItemSnapshots(ctx, items)
		}
		if err != nil {
			return err
		}
		o.Items = items
		if err := tx.LogStatus(ctx, domain.StatusChange{OrderID: o.ID, Status: o.Status, ChangedBy: actor}); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("confirm order %d: %w", id, err)
	}

	s.log.Info("order_confirmed", map[string]any{
		"order_id": out.ID, "ticket_number": *out.TicketNumber, "total": out.Total.String(),
		"payment_method": *out.PaymentMethod,
	})
	s.publishConfirmed(out)
	return out, nil
}

// confirm fills the confirmation fields of o and takes the next ticket from
// the sequencer inside tx. o.Subtotal must already be priced.
func (s *OrderService) confirm(ctx context.Context, tx repository.OrderTx, o *domain.Order, c domain.Confirmation) error {
	n, err := s.seq.Next(ctx, tx)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	pm := c.PaymentMethod
	o.Discount = c.Discount.Round(2)
	o.Surcharge = c.Surcharge.Round(2)
	o.Total = domain.OrderTotal(o.Subtotal, o.Surcharge, o.Discount)
	o.Status = domain.StatusConfirmed
	o.TicketNumber = &n
	o.ConfirmedAt = &now
	o.PaymentMethod = &pm
	return nil
}

func (s *OrderService) UpdateStatus(ctx context.Context, id int64, status domain.Status) (domain.Order, error) {
	if _, err := domain.ParseStatus(string(status)); err != nil {
		return domain.Order{}, err
	}
	actor := domain.ActorFrom(ctx)

	var out domain.Order
	err := s.repo.InTx(ctx, pgx.ReadCommitted, func(tx repository.OrderTx) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if !o.Status.CanMoveTo(status) {
			return fmt.Errorf("order %d: %s -> %s: %w", id, o.Status, status, domain.ErrInvalidTransition)
		}
		if o.UpdatedAt, err = tx.UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		o.Status = status
		if err := tx.LogStatus(ctx, domain.StatusChange{OrderID: id, Status: status, ChangedBy: actor}); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("update status of order %d: %w", id, err)
	}
	s.log.Info("order_status_updated", map[string]any{"order_id": id, "status": status, "changed_by": actor})
	return out, nil
}

func (s *OrderService) DeleteOrder(ctx context.Context, id int64) error {
	err := s.repo.InTx(ctx, pgx.ReadCommitted, func(tx repository.OrderTx) error {
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete order %d: %w", id, err)
	}
	s.log.Info("order_deleted", map[string]any{"order_id": id, "changed_by": domain.ActorFrom(ctx)})
	return nil
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

func (s *OrderService) GetOrderByCode(ctx context.Context, code string) (domain.Order, error) {
	code = strings.TrimSpace(code)
	id, err := s.codes.Decode(code)
	if err != nil {
		return domain.Order{}, fmt.Errorf("display code %q: %w", code, domain.ErrNotFound)
	}
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !strings.EqualFold(o.DisplayCode, code) {
		return domain.Order{}, fmt.Errorf("display code %q: %w", code, domain.ErrNotFound)
	}
	return o, nil
}

func (s *OrderService) Timeline(ctx context.Context, id int64, limit, offset int) ([]domain.StatusChange, error) {
	if limit <= 0 {
		limit = DefaultTimelineLimit
	}
	if limit > MaxTimelineLimit {
		limit = MaxTimelineLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.Timeline(ctx, id, limit, offset)
}

func (s *OrderService) Ready(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return errors.Join(domain.ErrTransient, err)
	}
	return nil
}

func (s *OrderService) publishConfirmed(o domain.Order) {
	s.pub.PublishToMany([]broadcast.Channel{broadcast.Cashier, broadcast.Display},
		domain.EventConfirmedOrder, domain.ConfirmedOrderEventFrom(o))
	s.pub.Publish(broadcast.Printer, domain.EventConfirmedOrder, domain.PrintJob{Order: o})
}

func itemMenuIDs(items []domain.OrderItem) []int64 {
	ids := make([]int64, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it.MenuItemID]; !ok {
			seen[it.MenuItemID] = struct{}{}
			ids = append(ids, it.MenuItemID)
		}
	}
	return ids
}

// clearSnapshots drops the prices PriceItems captured: a pending order only
// fixes its prices when it is confirmed.
func clearSnapshots(items []domain.OrderItem) {
	for i := range items {
		items[i].UnitPrice = nil
		items[i].UnitSurcharge = nil
		items[i].Total = nil
	}
}
