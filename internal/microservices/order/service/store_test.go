package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MySagra/mysagra-sub000/internal/broadcast"
	"github.com/MySagra/mysagra-sub000/internal/domain"
	"github.com/MySagra/mysagra-sub000/internal/microservices/order/repository"
)

// memStore is an in-memory OrderRepositoryInterface. Transactions run one at
// a time on a copy of the state that replaces it only when fn succeeds, which
// is what serializable isolation plus rollback look like from the outside.
// Because nothing actually overlaps here, the ticket counter refuses to move
// in a transaction weaker than serializable: on a real store two such
// transactions for the same day would race.
type memStore struct {
	mu         sync.Mutex
	st         *memState
	commitErr  error
	txCount    int
	isolations []pgx.TxIsoLevel
}

type memState struct {
	nextOrder int64
	nextItem  int64
	menu      map[int64]domain.MenuItem
	orders    map[int64]domain.Order
	counters  map[string]int
	log       []domain.StatusChange
}

func newMemStore(menu ...domain.MenuItem) *memStore {
	st := &memState{
		menu:     map[int64]domain.MenuItem{},
		orders:   map[int64]domain.Order{},
		counters: map[string]int{},
	}
	for _, m := range menu {
		st.menu[m.ID] = m
	}
	return &memStore{st: st}
}

func (s *memState) clone() *memState {
	c := &memState{
		nextOrder: s.nextOrder,
		nextItem:  s.nextItem,
		menu:      make(map[int64]domain.MenuItem, len(s.menu)),
		orders:    make(map[int64]domain.Order, len(s.orders)),
		counters:  make(map[string]int, len(s.counters)),
		log:       append([]domain.StatusChange(nil), s.log...),
	}
	for k, v := range s.menu {
		c.menu[k] = v
	}
	for k, v := range s.orders {
		v.Items = append([]domain.OrderItem(nil), v.Items...)
		c.orders[k] = v
	}
	for k, v := range s.counters {
		c.counters[k] = v
	}
	return c
}

func (m *memStore) InTx(ctx context.Context, iso pgx.TxIsoLevel, fn func(repository.OrderTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++
	m.isolations = append(m.isolations, iso)

	work := m.st.clone()
	if err := fn(&memTx{st: work, iso: iso}); err != nil {
		return err
	}
	if m.commitErr != nil {
		return fmt.Errorf("commit: %w", m.commitErr)
	}
	m.st = work
	return nil
}

func (m *memStore) GetOrder(_ context.Context, id int64) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{st: m.st.clone()}).LockOrder(context.Background(), id)
}

func (m *memStore) Timeline(_ context.Context, id int64, limit, offset int) ([]domain.StatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.orders[id]; !ok {
		return nil, fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	out := []domain.StatusChange{}
	for _, c := range m.st.log {
		if c.OrderID == id {
			out = append(out, c)
		}
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) setPrice(id int64, price string, available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.st.menu[id]
	it.Price = dec(price)
	it.Available = available
	m.st.menu[id] = it
}

func (m *memStore) counter(day string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.counters[day]
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.st.orders)
}

type memTx struct {
	st  *memState
	iso pgx.TxIsoLevel
}

func (t *memTx) MenuItems(_ context.Context, ids []int64) (map[int64]domain.MenuItem, error) {
	out := map[int64]domain.MenuItem{}
	for _, id := range ids {
		if m, ok := t.st.menu[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func (t *memTx) InsertOrder(_ context.Context, o *domain.Order) error {
	t.st.nextOrder++
	o.ID = t.st.nextOrder
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	stored := *o
	stored.Items = nil
	t.st.orders[o.ID] = stored
	return nil
}

func (t *memTx) SetDisplayCode(_ context.Context, id int64, code string) error {
	o, ok := t.st.orders[id]
	if !ok || o.DisplayCode != "" {
		return fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	o.DisplayCode = code
	t.st.orders[id] = o
	return nil
}

func (t *memTx) InsertItems(_ context.Context, orderID int64, items []domain.OrderItem) error {
	o, ok := t.st.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, domain.ErrNotFound)
	}
	for i := range items {
		if _, ok := t.st.menu[items[i].MenuItemID]; !ok {
			return fmt.Errorf("foreign key violation on menu item %d", items[i].MenuItemID)
		}
		t.st.nextItem++
		items[i].ID = t.st.nextItem
		items[i].OrderID = orderID
		stored := items[i]
		stored.Menu = nil
		o.Items = append(o.Items, stored)
	}
	t.st.orders[orderID] = o
	return nil
}

func (t *memTx) DeleteItems(_ context.Context, orderID int64) error {
	o := t.st.orders[orderID]
	o.Items = nil
	t.st.orders[orderID] = o
	return nil
}

func (t *memTx) UpdateItemSnapshots(_ context.Context, items []domain.OrderItem) error {
	for _, it := range items {
		o := t.st.orders[it.OrderID]
		for i := range o.Items {
			if o.Items[i].ID == it.ID {
				o.Items[i].UnitPrice, o.Items[i].UnitSurcharge, o.Items[i].Total = it.UnitPrice, it.UnitSurcharge, it.Total
			}
		}
		t.st.orders[it.OrderID] = o
	}
	return nil
}

func (t *memTx) LockOrder(_ context.Context, id int64) (domain.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	items := make([]domain.OrderItem, len(o.Items))
	for i, it := range o.Items {
		m := t.st.menu[it.MenuItemID]
		it.Menu = &m
		items[i] = it
	}
	o.Items = items
	return o, nil
}

func (t *memTx) SaveConfirmation(_ context.Context, o *domain.Order) error {
	stored, ok := t.st.orders[o.ID]
	if !ok {
		return fmt.Errorf("order %d: %w", o.ID, domain.ErrNotFound)
	}
	o.UpdatedAt = time.Now()
	items := stored.Items
	stored = *o
	stored.Items = items
	t.st.orders[o.ID] = stored
	return nil
}

func (t *memTx) UpdateStatus(_ context.Context, id int64, status domain.Status) (time.Time, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return time.Time{}, fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	t.st.orders[id] = o
	return o.UpdatedAt, nil
}

func (t *memTx) DeleteOrder(_ context.Context, id int64) error {
	if _, ok := t.st.orders[id]; !ok {
		return fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	delete(t.st.orders, id)
	kept := t.st.log[:0]
	for _, c := range t.st.log {
		if c.OrderID != id {
			kept = append(kept, c)
		}
	}
	t.st.log = kept
	return nil
}

func (t *memTx) LogStatus(_ context.Context, c domain.StatusChange) error {
	c.ChangedAt = time.Now()
	t.st.log = append(t.st.log, c)
	return nil
}

func (t *memTx) IncrementTicketCounter(_ context.Context, day string) (int, error) {
	if t.iso != pgx.Serializable {
		return 0, fmt.Errorf("ticket counter %s in %s transaction: %w", day, t.iso, domain.ErrConflict)
	}
	t.st.counters[day]++
	return t.st.counters[day], nil
}

type published struct {
	channel broadcast.Channel
	event   string
	data    any
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []published
}

func (p *recordingPublisher) Publish(ch broadcast.Channel, event string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, published{ch, event, data})
}

func (p *recordingPublisher) PublishToMany(chs []broadcast.Channel, event string, data any) {
	for _, ch := range chs {
		p.Publish(ch, event, data)
	}
}

func (p *recordingPublisher) events() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.got...)
}

func (p *recordingPublisher) on(ch broadcast.Channel) []published {
	var out []published
	for _, e := range p.events() {
		if e.channel == ch {
			out = append(out, e)
		}
	}
	return out
}
