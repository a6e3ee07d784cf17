package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusPickedUp  Status = "PICKED_UP"
)

var statusRank = map[Status]int{
	StatusPending:   0,
	StatusConfirmed: 1,
	StatusCompleted: 2,
	StatusPickedUp:  3,
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := statusRank[st]; !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
	}
	return st, nil
}

// Confirmed reports whether the order carries a ticket number.
func (s Status) Confirmed() bool { return statusRank[s] >= statusRank[StatusConfirmed] }

// CanMoveTo allows forward moves after confirmation only. CONFIRMED itself is
// reachable exclusively through the confirmation engine.
func (s Status) CanMoveTo(next Status) bool {
	if !s.Confirmed() {
		return false
	}
	nr, ok := statusRank[next]
	if !ok || nr <= statusRank[StatusConfirmed] {
		return false
	}
	return nr > statusRank[s]
}

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "CASH"
	PaymentCard PaymentMethod = "CARD"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch pm := PaymentMethod(strings.ToUpper(strings.TrimSpace(s))); pm {
	case PaymentCash, PaymentCard:
		return pm, nil
	}
	return "", fmt.Errorf("%w: unknown payment method %q", ErrValidation, s)
}

type Order struct {
	ID            int64           `json:"id"`
	DisplayCode   string          `json:"displayCode"`
	Table         string          `json:"table"`
	Customer      string          `json:"customer"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Surcharge     decimal.Decimal `json:"surcharge"`
	Total         decimal.Decimal `json:"total"`
	Status        Status          `json:"status"`
	TicketNumber  *int            `json:"ticketNumber"`
	ConfirmedAt   *time.Time      `json:"confirmedAt"`
	PaymentMethod *PaymentMethod  `json:"paymentMethod"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Items         []OrderItem     `json:"items"`
}

type OrderItem struct {
	ID            int64            `json:"id"`
	OrderID       int64            `json:"orderId"`
	MenuItemID    int64            `json:"menuItemId"`
	Quantity      int              `json:"quantity"`
	Notes         string           `json:"notes,omitempty"`
	UnitPrice     *decimal.Decimal `json:"unitPrice"`
	UnitSurcharge *decimal.Decimal `json:"unitSurcharge"`
	Total         *decimal.Decimal `json:"total"`
	Menu          *MenuItem        `json:"menuItem,omitempty"`
}

// MenuItem is the authoritative price source. Menu management lives elsewhere;
// this service only reads it.
type MenuItem struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Surcharge decimal.Decimal `json:"surcharge"`
	Available bool            `json:"available"`
}

type StatusChange struct {
	OrderID   int64     `json:"orderId"`
	Status    Status    `json:"status"`
	ChangedBy string    `json:"changedBy"`
	ChangedAt time.Time `json:"changedAt"`
	Notes     string    `json:"notes,omitempty"`
}
