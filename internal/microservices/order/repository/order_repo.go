package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/MySagra/mysagra-sub000/internal/common/db"
	"github.com/MySagra/mysagra-sub000/internal/domain"
)

// OrderTx is what the service may do inside one store transaction.
type OrderTx interface {
	MenuItems(ctx context.Context, ids []int64) (map[int64]domain.MenuItem, error)
	InsertOrder(ctx context.Context, o *domain.Order) error
	SetDisplayCode(ctx context.Context, id int64, code string) error
	InsertItems(ctx context.Context, orderID int64, items []domain.OrderItem) error
	DeleteItems(ctx context.Context, orderID int64) error
	UpdateItemSnapshots(ctx context.Context, items []domain.OrderItem) error
	LockOrder(ctx context.Context, id int64) (domain.Order, error)
	SaveConfirmation(ctx context.Context, o *domain.Order) error
	UpdateStatus(ctx context.Context, id int64, status domain.Status) (time.Time, error)
	DeleteOrder(ctx context.Context, id int64) error
	LogStatus(ctx context.Context, c domain.StatusChange) error
	IncrementTicketCounter(ctx context.Context, day string) (int, error)
}

type OrderRepositoryInterface interface {
	// InTx runs fn in a transaction at iso. fn's error rolls it back; errors
	// come back classified onto the domain sentinels.
	InTx(ctx context.Context, iso pgx.TxIsoLevel, fn func(OrderTx) error) error
	GetOrder(ctx context.Context, id int64) (domain.Order, error)
	Timeline(ctx context.Context, id int64, limit, offset int) ([]domain.StatusChange, error)
	Ping(ctx context.Context) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) OrderRepositoryInterface {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) InTx(ctx context.Context, iso pgx.TxIsoLevel, fn func(OrderTx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: iso})
	if err != nil {
		return db.Classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(&orderTx{tx: tx}); err != nil {
		return db.Classify(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return db.Classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	o, err := loadOrder(ctx, r.pool, id, false)
	return o, db.Classify(err)
}

func (r *OrderRepository) Timeline(ctx context.Context, id int64, limit, offset int) ([]domain.StatusChange, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, db.Classify(err)
	}
	if !exists {
		return nil, fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}

	rows, err := r.pool.Query(ctx, `
SELECT order_id, status, changed_by, changed_at, notes
FROM order_status_log
WHERE order_id = $1
ORDER BY changed_at ASC, id ASC
LIMIT $2 OFFSET $3
`, id, limit, offset)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	out := []domain.StatusChange{}
	for rows.Next() {
		var c domain.StatusChange
		var status string
		if err := rows.Scan(&c.OrderID, &status, &c.ChangedBy, &c.ChangedAt, &c.Notes); err != nil {
			return nil, db.Classify(err)
		}
		c.Status = domain.Status(status)
		out = append(out, c)
	}
	return out, db.Classify(rows.Err())
}

func (r *OrderRepository) Ping(ctx context.Context) error { return r.pool.Ping(ctx) }

type orderTx struct {
	tx pgx.Tx
}

func (t *orderTx) MenuItems(ctx context.Context, ids []int64) (map[int64]domain.MenuItem, error) {
	rows, err := t.tx.Query(ctx, `
SELECT m.id, m.name, COALESCE(c.name, ''), m.price, m.surcharge, m.available
FROM menu_items m
LEFT JOIN categories c ON c.id = m.category_id
WHERE m.id = ANY($1)
`, ids)
	if err != nil {
		return nil, fmt.Errorf("load menu items: %w", err)
	}
	defer rows.Close()

	menu := make(map[int64]domain.MenuItem, len(ids))
	for rows.Next() {
		var m domain.MenuItem
		if err := rows.Scan(&m.ID, &m.Name, &m.Category, &m.Price, &m.Surcharge, &m.Available); err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		menu[m.ID] = m
	}
	return menu, rows.Err()
}

func (t *orderTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	err := t.tx.QueryRow(ctx, `
INSERT INTO orders
    (table_label, customer, subtotal, discount, surcharge, total, status, ticket_number, confirmed_at, payment_method)
VALUES
    ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id, created_at, updated_at
`,
		o.Table,
		o.Customer,
		o.Subtotal,
		o.Discount,
		o.Surcharge,
		o.Total,
		string(o.Status),
		o.TicketNumber,
		o.ConfirmedAt,
		paymentArg(o.PaymentMethod),
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *orderTx) SetDisplayCode(ctx context.Context, id int64, code string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE orders SET display_code = $2 WHERE id = $1 AND display_code IS NULL`, id, code)
	if err != nil {
		return fmt.Errorf("set display code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set display code for order %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (t *orderTx) InsertItems(ctx context.Context, orderID int64, items []domain.OrderItem) error {
	b := &pgx.Batch{}
	for i, it := range items {
		b.Queue(`
INSERT INTO order_items (order_id, menu_item_id, position, quantity, notes, unit_price, unit_surcharge, total)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id
`, orderID, it.MenuItemID, i, it.Quantity, it.Notes, it.UnitPrice, it.UnitSurcharge, it.Total)
	}
	br := t.tx.SendBatch(ctx, b)
	for i := range items {
		if err := br.QueryRow().Scan(&items[i].ID); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert order item %d: %w", i+1, err)
		}
		items[i].OrderID = orderID
	}
	return br.Close()
}

func (t *orderTx) DeleteItems(ctx context.Context, orderID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	return nil
}

func (t *orderTx) UpdateItemSnapshots(ctx context.Context, items []domain.OrderItem) error {
	b := &pgx.Batch{}
	for _, it := range items {
		b.Queue(`UPDATE order_items SET unit_price = $2, unit_surcharge = $3, total = $4 WHERE id = $1`,
			it.ID, it.UnitPrice, it.UnitSurcharge, it.Total)
	}
	br := t.tx.SendBatch(ctx, b)
	for range items {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("update item snapshot: %w", err)
		}
	}
	return br.Close()
}

func (t *orderTx) LockOrder(ctx context.Context, id int64) (domain.Order, error) {
	return loadOrder(ctx, t.tx, id, true)
}

func (t *orderTx) SaveConfirmation(ctx context.Context, o *domain.Order) error {
	err := t.tx.QueryRow(ctx, `
UPDATE orders
SET subtotal = $2, discount = $3, surcharge = $4, total = $5, status = $6,
    ticket_number = $7, confirmed_at = $8, payment_method = $9, updated_at = now()
WHERE id = $1
RETURNING updated_at
`, o.ID, o.Subtotal, o.Discount, o.Surcharge, o.Total, string(o.Status),
		o.TicketNumber, o.ConfirmedAt, paymentArg(o.PaymentMethod)).Scan(&o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save confirmation: %w", err)
	}
	return nil
}

func (t *orderTx) UpdateStatus(ctx context.Context, id int64, status domain.Status) (time.Time, error) {
	var at time.Time
	err := t.tx.QueryRow(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1 RETURNING updated_at`,
		id, string(status)).Scan(&at)
	if err != nil {
		return time.Time{}, fmt.Errorf("update status: %w", err)
	}
	return at, nil
}

func (t *orderTx) DeleteOrder(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (t *orderTx) LogStatus(ctx context.Context, c domain.StatusChange) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO order_status_log (order_id, status, changed_by, notes)
VALUES ($1, $2, $3, $4)
`, c.OrderID, string(c.Status), c.ChangedBy, c.Notes)
	if err != nil {
		return fmt.Errorf("insert order status log: %w", err)
	}
	return nil
}

func (t *orderTx) IncrementTicketCounter(ctx context.Context, day string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
INSERT INTO daily_ticket_counters (day, value)
VALUES ($1::date, 1)
ON CONFLICT (day) DO UPDATE SET value = daily_ticket_counters.value + 1
RETURNING value
`, day).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment ticket counter: %w", err)
	}
	return n, nil
}

func loadOrder(ctx context.Context, q querier, id int64, forUpdate bool) (domain.Order, error) {
	sql := `
SELECT id, COALESCE(display_code, ''), table_label, customer, subtotal, discount, surcharge, total,
       status, ticket_number, confirmed_at, payment_method, created_at, updated_at
FROM orders
WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	var (
		o       domain.Order
		status  string
		payment *string
	)
	err := q.QueryRow(ctx, sql, id).Scan(
		&o.ID, &o.DisplayCode, &o.Table, &o.Customer, &o.Subtotal, &o.Discount, &o.Surcharge, &o.Total,
		&status, &o.TicketNumber, &o.ConfirmedAt, &payment, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("load order %d: %w", id, err)
	}
	o.Status = domain.Status(status)
	if payment != nil {
		pm := domain.PaymentMethod(*payment)
		o.PaymentMethod = &pm
	}

	o.Items, err = loadItems(ctx, q, id)
	if err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func loadItems(ctx context.Context, q querier, orderID int64) ([]domain.OrderItem, error) {
	rows, err := q.Query(ctx, `
SELECT i.id, i.order_id, i.menu_item_id, i.quantity, i.notes, i.unit_price, i.unit_surcharge, i.total,
       m.name, COALESCE(c.name, ''), m.price, m.surcharge, m.available
FROM order_items i
JOIN menu_items m ON m.id = i.menu_item_id
LEFT JOIN categories c ON c.id = m.category_id
WHERE i.order_id = $1
ORDER BY i.position ASC
`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := []domain.OrderItem{}
	for rows.Next() {
		var (
			it                      domain.OrderItem
			m                       domain.MenuItem
			unitPrice, extra, total decimal.NullDecimal
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Quantity, &it.Notes,
			&unitPrice, &extra, &total,
			&m.Name, &m.Category, &m.Price, &m.Surcharge, &m.Available); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		m.ID = it.MenuItemID
		it.Menu = &m
		it.UnitPrice = nullable(unitPrice)
		it.UnitSurcharge = nullable(extra)
		it.Total = nullable(total)
		items = append(items, it)
	}
	return items, rows.Err()
}

func nullable(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func paymentArg(pm *domain.PaymentMethod) any {
	if pm == nil {
		return nil
	}
	return string(*pm)
}
