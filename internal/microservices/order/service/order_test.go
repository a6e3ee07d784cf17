package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/MySagra/mysagra-sub000/internal/broadcast"
	"github.com/MySagra/mysagra-sub000/internal/common/displaycode"
	"github.com/MySagra/mysagra-sub000/internal/domain"
	"github.com/MySagra/mysagra-sub000/internal/microservices/order/repository"
	"github.com/MySagra/mysagra-sub000/internal/ticket"
)

const (
	pizza int64 = 1
	beer  int64 = 2
	gone  int64 = 3
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fixture struct {
	svc   *OrderService
	store *memStore
	pub   *recordingPublisher
	clock *clock
	codes *displaycode.Codec
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore(
		domain.MenuItem{ID: pizza, Name: "Margherita", Category: "Pizze", Price: dec("8.50"), Available: true},
		domain.MenuItem{ID: beer, Name: "Birra", Category: "Bevande", Price: dec("1.00"), Surcharge: dec("0.20"), Available: true},
		domain.MenuItem{ID: gone, Name: "Tiramisu", Category: "Dolci", Price: dec("4.00"), Available: false},
	)
	codes, err := displaycode.New("K3GQ7XMT2WZ9BHNC5RJ8LPV4FYD6S", 6)
	if err != nil {
		t.Fatal(err)
	}
	clk := &clock{t: time.Date(2026, 10, 15, 19, 30, 0, 0, time.UTC)}
	pub := &recordingPublisher{}
	svc := NewOrderService(store, ticket.NewSequencer(time.UTC, clk.Now), codes, pub, nil)
	svc.now = clk.Now
	return &fixture{svc: svc, store: store, pub: pub, clock: clk, codes: codes}
}

func (f *fixture) createPending(t *testing.T, items ...domain.ItemRequest) domain.Order {
	t.Helper()
	if len(items) == 0 {
		items = []domain.ItemRequest{{MenuItemID: pizza, Quantity: 2}}
	}
	o, err := f.svc.CreateOrder(context.Background(), domain.OrderCreation{Table: "12", Customer: "Rossi", Items: items})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return o
}

func cash(discount, surcharge string) domain.Confirmation {
	return domain.Confirmation{PaymentMethod: domain.PaymentCash, Discount: dec(discount), Surcharge: dec(surcharge)}
}

func TestCreateOrderUsesMenuPrices(t *testing.T) {
	f := newFixture(t)
	o := f.createPending(t)

	if !o.Subtotal.Equal(dec("17")) || !o.Total.Equal(dec("17")) {
		t.Errorf("subtotal/total = %s/%s, want 17/17", o.Subtotal, o.Total)
	}
	if o.Status != domain.StatusPending || o.TicketNumber != nil || o.ConfirmedAt != nil || o.PaymentMethod != nil {
		t.Errorf("pending order carries confirmation data: %+v", o)
	}
	for _, it := range o.Items {
		if it.UnitPrice != nil || it.Total != nil {
			t.Errorf("pending item has a price snapshot: %+v", it)
		}
	}
	id, err := f.codes.Decode(o.DisplayCode)
	if err != nil || id != o.ID {
		t.Errorf("display code %q decodes to %d (%v), want %d", o.DisplayCode, id, err, o.ID)
	}
	if got := f.store.isolations[0]; got != pgx.ReadCommitted {
		t.Errorf("isolation = %s, want read committed", got)
	}

	evs := f.pub.events()
	if len(evs) != 1 || evs[0].channel != broadcast.Cashier || evs[0].event != domain.EventNewOrder {
		t.Fatalf("events = %+v, want one new-order on cashier", evs)
	}
	if ev := evs[0].data.(domain.NewOrderEvent); ev.Subtotal != "17.00" || ev.ID != o.ID {
		t.Errorf("new-order payload = %+v", ev)
	}
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateOrder(ctx, domain.OrderCreation{Table: "1", Customer: "x", Items: []domain.ItemRequest{{MenuItemID: 99, Quantity: 1}}})
	if !errors.Is(err, domain.ErrInvalidReference) {
		t.Errorf("unknown menu item: err = %v", err)
	}
	_, err = f.svc.CreateOrder(ctx, domain.OrderCreation{Table: "1", Customer: "x", Items: []domain.ItemRequest{{MenuItemID: pizza, Quantity: 0}}})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("zero quantity: err = %v", err)
	}
	if n := f.store.orderCount(); n != 0 {
		t.Errorf("orders stored = %d, want 0", n)
	}
	if f.store.txCount != 1 {
		t.Errorf("transactions = %d, validation must fail before opening one", f.store.txCount)
	}
	if evs := f.pub.events(); len(evs) != 0 {
		t.Errorf("events on failure: %+v", evs)
	}
}

func TestCreateOrderAcceptsSoldOutItems(t *testing.T) {
	f := newFixture(t)
	o := f.createPending(t, domain.ItemRequest{MenuItemID: gone, Quantity: 1})
	if !o.Subtotal.Equal(dec("4")) {
		t.Errorf("subtotal = %s", o.Subtotal)
	}
}

func TestCreateConfirmedOrder(t *testing.T) {
	f := newFixture(t)
	c := cash("5", "2")
	o, err := f.svc.CreateOrder(context.Background(), domain.OrderCreation{
		Table: "3", Customer: "Bianchi",
		Items:        []domain.ItemRequest{{MenuItemID: pizza, Quantity: 2}},
		Confirmation: &c,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if o.Status != domain.StatusConfirmed || o.TicketNumber == nil || *o.TicketNumber != 1 || o.ConfirmedAt == nil {
		t.Fatalf("order not confirmed: %+v", o)
	}
	if !o.Total.Equal(dec("14")) {
		t.Errorf("total = %s, want 14", o.Total)
	}
	if o.Items[0].UnitPrice == nil || !o.Items[0].UnitPrice.Equal(dec("8.5")) {
		t.Errorf("snapshot missing: %+v", o.Items[0])
	}
	if got := f.store.isolations[0]; got != pgx.Serializable {
		t.Errorf("isolation = %s, want serializable", got)
	}

	cashier := f.pub.on(broadcast.Cashier)
	if len(cashier) != 2 || cashier[0].event != domain.EventNewOrder || cashier[1].event != domain.EventConfirmedOrder {
		t.Errorf("cashier events = %+v", cashier)
	}
	if d := f.pub.on(broadcast.Display); len(d) != 1 || d[0].data.(domain.ConfirmedOrderEvent).TicketNumber != 1 {
		t.Errorf("display events = %+v", d)
	}
	if p := f.pub.on(broadcast.Printer); len(p) != 1 || p[0].data.(domain.PrintJob).Order.Items[0].Menu.Name != "Margherita" {
		t.Errorf("printer events = %+v", p)
	}
}

func TestConfirmOrderTotals(t *testing.T) {
	tests := []struct {
		name      string
		discount  string
		surcharge string
		want      string
	}{
		{"no adjustments", "0", "0", "17"},
		{"discount and surcharge", "5", "2", "14"},
		{"discount above subtotal floors at zero", "25", "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			o := f.createPending(t)
			got, err := f.svc.ConfirmOrder(context.Background(), o.ID, cash(tt.discount, tt.surcharge))
			if err != nil {
				t.Fatalf("ConfirmOrder: %v", err)
			}
			if !got.Total.Equal(dec(tt.want)) {
				t.Errorf("total = %s, want %s", got.Total, tt.want)
			}
			if iso := f.store.isolations[len(f.store.isolations)-1]; iso != pgx.Serializable {
				t.Errorf("confirm isolation = %s, want serializable", iso)
			}
			want := domain.OrderTotal(got.Subtotal, got.Surcharge, got.Discount)
			if !got.Total.Equal(want) || got.Total.IsNegative() {
				t.Errorf("total %s breaks max(0, subtotal+surcharge-discount) = %s", got.Total, want)
			}
		})
	}
}

func TestConfirmOrderTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createPending(t)

	first, err := f.svc.ConfirmOrder(ctx, o.ID, cash("1", "0"))
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	_, err = f.svc.ConfirmOrder(ctx, o.ID, cash("10", "0"))
	if !errors.Is(err, domain.ErrAlreadyConfirmed) {
		t.Fatalf("second confirm: err = %v, want ErrAlreadyConfirmed", err)
	}

	stored, err := f.svc.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if *stored.TicketNumber != *first.TicketNumber || !stored.Total.Equal(first.Total) || !stored.Discount.Equal(dec("1")) {
		t.Errorf("second confirm changed the order: %+v", stored)
	}
	if n := f.store.counter("2026-10-15"); n != 1 {
		t.Errorf("counter = %d, want 1", n)
	}
}

func TestConfirmOrderNotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.ConfirmOrder(context.Background(), 404, cash("0", "0")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if n := f.store.counter("2026-10-15"); n != 0 {
		t.Errorf("counter = %d, a failed confirm must not consume a ticket", n)
	}
}

func TestConfirmOrderRepricesExistingItems(t *testing.T) {
	f := newFixture(t)
	o := f.createPending(t)
	f.store.setPrice(pizza, "9.00", true)

	got, err := f.svc.ConfirmOrder(context.Background(), o.ID, cash("0", "0"))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Subtotal.Equal(dec("18")) {
		t.Errorf("subtotal = %s, want current price 2 x 9.00", got.Subtotal)
	}
	stored, _ := f.svc.GetOrder(context.Background(), o.ID)
	if stored.Items[0].UnitPrice == nil || !stored.Items[0].UnitPrice.Equal(dec("9")) {
		t.Errorf("stored snapshot = %+v", stored.Items[0])
	}
}

func TestConfirmOrderReplacesItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createPending(t)

	c := cash("0", "0")
	c.Items = []domain.ItemRequest{{MenuItemID: gone, Quantity: 1}}
	if _, err := f.svc.ConfirmOrder(ctx, o.ID, c); !errors.Is(err, domain.ErrInvalidReference) {
		t.Fatalf("unavailable replacement: err = %v", err)
	}
	stored, _ := f.svc.GetOrder(ctx, o.ID)
	if stored.Status != domain.StatusPending || len(stored.Items) != 1 || stored.Items[0].MenuItemID != pizza {
		t.Errorf("failed confirm left partial state: %+v", stored)
	}
	if n := f.store.counter("2026-10-15"); n != 0 {
		t.Errorf("counter = %d after rollback, want 0", n)
	}

	c.Items = []domain.ItemRequest{{MenuItemID: pizza, Quantity: 2}, {MenuItemID: beer, Quantity: 3}}
	got, err := f.svc.ConfirmOrder(ctx, o.ID, c)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Subtotal.Equal(dec("20.6")) || len(got.Items) != 2 {
		t.Errorf("subtotal = %s items = %d, want 20.60 over 2 lines", got.Subtotal, len(got.Items))
	}
	if *got.TicketNumber != 1 {
		t.Errorf("ticket = %d, want 1", *got.TicketNumber)
	}
}

func TestTicketsContiguousPerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var tickets []int
	for i := 0; i < 5; i++ {
		o := f.createPending(t)
		got, err := f.svc.ConfirmOrder(ctx, o.ID, cash("0", "0"))
		if err != nil {
			t.Fatal(err)
		}
		tickets = append(tickets, *got.TicketNumber)
	}
	for i, n := range tickets {
		if n != i+1 {
			t.Fatalf("tickets = %v, want 1..5", tickets)
		}
	}

	f.clock.Set(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC))
	o := f.createPending(t)
	got, err := f.svc.ConfirmOrder(ctx, o.ID, cash("0", "0"))
	if err != nil {
		t.Fatal(err)
	}
	if *got.TicketNumber != 1 {
		t.Errorf("first ticket of the new day = %d, want 1", *got.TicketNumber)
	}
}

func TestConcurrentConfirmations(t *testing.T) {
	f := newFixture(t)
	a := f.createPending(t)
	b := f.createPending(t)

	var mu sync.Mutex
	var tickets []int
	g, ctx := errgroup.WithContext(context.Background())
	for _, id := range []int64{a.ID, b.ID} {
		id := id
		g.Go(func() error {
			o, err := f.svc.ConfirmOrder(ctx, id, cash("0", "0"))
			if err != nil {
				return err
			}
			mu.Lock()
			tickets = append(tickets, *o.TicketNumber)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	sort.Ints(tickets)
	if len(tickets) != 2 || tickets[0] != 1 || tickets[1] != 2 {
		t.Errorf("tickets = %v, want [1 2]", tickets)
	}
	if n := f.store.counter("2026-10-15"); n != 2 {
		t.Errorf("counter = %d, want 2", n)
	}
	for i, iso := range f.store.isolations[2:] {
		if iso != pgx.Serializable {
			t.Errorf("confirmation %d ran at %s, want serializable", i+1, iso)
		}
	}
}

func TestTicketCounterNeedsSerializable(t *testing.T) {
	f := newFixture(t)
	seq := ticket.NewSequencer(time.UTC, f.clock.Now)

	err := f.store.InTx(context.Background(), pgx.ReadCommitted, func(tx repository.OrderTx) error {
		_, err := seq.Next(context.Background(), tx)
		return err
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("read committed ticket: err = %v, want ErrConflict", err)
	}
	if n := f.store.counter("2026-10-15"); n != 0 {
		t.Errorf("counter = %d after rejected increment", n)
	}
}

func TestCommitFailureLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	o := f.createPending(t)
	before := len(f.pub.events())
	f.store.commitErr = domain.ErrConflict

	_, err := f.svc.ConfirmOrder(context.Background(), o.ID, cash("0", "0"))
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if n := f.store.counter("2026-10-15"); n != 0 {
		t.Errorf("counter = %d, the ticket increment must roll back", n)
	}
	if got := len(f.pub.events()); got != before {
		t.Errorf("events published for a rolled back confirmation")
	}
	f.store.commitErr = nil
	stored, _ := f.svc.GetOrder(context.Background(), o.ID)
	if stored.Status != domain.StatusPending {
		t.Errorf("status = %s", stored.Status)
	}
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createPending(t)

	if _, err := f.svc.UpdateStatus(ctx, o.ID, domain.StatusCompleted); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("pending -> completed: err = %v", err)
	}
	if _, err := f.svc.ConfirmOrder(ctx, o.ID, cash("0", "0")); err != nil {
		t.Fatal(err)
	}
	before := len(f.pub.events())

	steps := []struct {
		to      domain.Status
		wantErr error
	}{
		{domain.StatusConfirmed, domain.ErrInvalidTransition},
		{domain.StatusPending, domain.ErrInvalidTransition},
		{domain.StatusCompleted, nil},
		{domain.StatusCompleted, domain.ErrInvalidTransition},
		{domain.StatusPickedUp, nil},
		{domain.StatusCompleted, domain.ErrInvalidTransition},
		{"COOKING", domain.ErrValidation},
	}
	for _, st := range steps {
		got, err := f.svc.UpdateStatus(ctx, o.ID, st.to)
		if st.wantErr != nil {
			if !errors.Is(err, st.wantErr) {
				t.Errorf("-> %s: err = %v, want %v", st.to, err, st.wantErr)
			}
			continue
		}
		if err != nil || got.Status != st.to || got.TicketNumber == nil {
			t.Errorf("-> %s: %+v, %v", st.to, got, err)
		}
	}
	if got := len(f.pub.events()); got != before {
		t.Errorf("UpdateStatus published %d events, want none", got-before)
	}

	tl, err := f.svc.Timeline(ctx, o.ID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	var seen []domain.Status
	for _, c := range tl {
		seen = append(seen, c.Status)
	}
	want := []domain.Status{domain.StatusPending, domain.StatusConfirmed, domain.StatusCompleted, domain.StatusPickedUp}
	if len(seen) != len(want) {
		t.Fatalf("timeline = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("timeline = %v, want %v", seen, want)
		}
	}
}

func TestTimelineRecordsActor(t *testing.T) {
	f := newFixture(t)
	ctx := domain.WithActor(context.Background(), "cassa-1")
	o, err := f.svc.CreateOrder(ctx, domain.OrderCreation{Table: "1", Customer: "x", Items: []domain.ItemRequest{{MenuItemID: pizza, Quantity: 1}}})
	if err != nil {
		t.Fatal(err)
	}
	tl, err := f.svc.Timeline(ctx, o.ID, 1, 0)
	if err != nil || len(tl) != 1 || tl[0].ChangedBy != "cassa-1" {
		t.Fatalf("timeline = %+v, %v", tl, err)
	}
	if _, err := f.svc.Timeline(ctx, 999, 10, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("timeline of missing order: err = %v", err)
	}
}

func TestDeleteOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createPending(t)
	before := len(f.pub.events())

	if err := f.svc.DeleteOrder(ctx, o.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.GetOrder(ctx, o.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetOrder after delete: err = %v", err)
	}
	if err := f.svc.DeleteOrder(ctx, o.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second delete: err = %v", err)
	}
	if got := len(f.pub.events()); got != before {
		t.Error("delete must not publish")
	}
}

func TestGetOrderByCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createPending(t)

	for _, code := range []string{o.DisplayCode, "  " + o.DisplayCode, strings.ToLower(o.DisplayCode)} {
		got, err := f.svc.GetOrderByCode(ctx, code)
		if err != nil || got.ID != o.ID {
			t.Errorf("GetOrderByCode(%q) = %d, %v", code, got.ID, err)
		}
	}
	other, _ := f.codes.Encode(o.ID + 100)
	for _, code := range []string{"", "!!!", other} {
		if _, err := f.svc.GetOrderByCode(ctx, code); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("GetOrderByCode(%q): err = %v, want ErrNotFound", code, err)
		}
	}
}
