package domain

import "github.com/shopspring/decimal"

// ItemRequest is one requested line. Prices never travel with it; they are
// read from the menu.
type ItemRequest struct {
	MenuItemID int64
	Quantity   int
	Notes      string
}

type Confirmation struct {
	PaymentMethod PaymentMethod
	Discount      decimal.Decimal
	Surcharge     decimal.Decimal
	// Items replaces the order lines when non-nil.
	Items []ItemRequest
}

// OrderCreation creates a PENDING order, or a CONFIRMED one when Confirmation
// is set.
type OrderCreation struct {
	Table        string
	Customer     string
	Items        []ItemRequest
	Confirmation *Confirmation
}
