package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MaxItemQuantity = 999
	MaxLabelLen     = 100
)

// OrderTotal is subtotal + surcharge - discount, floored at zero and rounded
// to cents.
func OrderTotal(subtotal, surcharge, discount decimal.Decimal) decimal.Decimal {
	t := subtotal.Add(surcharge).Sub(discount)
	if t.IsNegative() {
		return decimal.Zero
	}
	return t.Round(2)
}

// PriceItems captures the current menu prices on every line and returns the
// subtotal. Every line must reference a menu entry; requireAvailable also
// rejects entries that are sold out.
func PriceItems(items []OrderItem, menu map[int64]MenuItem, requireAvailable bool) (decimal.Decimal, error) {
	subtotal := decimal.Zero
	for i := range items {
		m, ok := menu[items[i].MenuItemID]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: menu item %d does not exist", ErrInvalidReference, items[i].MenuItemID)
		}
		if requireAvailable && !m.Available {
			return decimal.Zero, fmt.Errorf("%w: menu item %d is not available", ErrInvalidReference, m.ID)
		}
		price, extra := m.Price, m.Surcharge
		line := price.Add(extra).Mul(decimal.NewFromInt(int64(items[i].Quantity))).Round(2)
		items[i].UnitPrice = &price
		items[i].UnitSurcharge = &extra
		items[i].Total = &line
		snap := m
		items[i].Menu = &snap
		subtotal = subtotal.Add(line)
	}
	return subtotal.Round(2), nil
}

func ValidateItems(items []ItemRequest) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrValidation)
	}
	for i, it := range items {
		if it.MenuItemID <= 0 {
			return fmt.Errorf("%w: item %d: menu item id is required", ErrValidation, i+1)
		}
		if it.Quantity < 1 || it.Quantity > MaxItemQuantity {
			return fmt.Errorf("%w: item %d: quantity %d must be in [1, %d]", ErrValidation, i+1, it.Quantity, MaxItemQuantity)
		}
	}
	return nil
}

func ValidateConfirmation(c Confirmation) error {
	if _, err := ParsePaymentMethod(string(c.PaymentMethod)); err != nil {
		return err
	}
	if c.Discount.IsNegative() {
		return fmt.Errorf("%w: discount cannot be negative", ErrValidation)
	}
	if c.Surcharge.IsNegative() {
		return fmt.Errorf("%w: surcharge cannot be negative", ErrValidation)
	}
	if c.Items != nil {
		return ValidateItems(c.Items)
	}
	return nil
}

func ValidateCreation(c OrderCreation) error {
	if strings.TrimSpace(c.Table) == "" || len(c.Table) > MaxLabelLen {
		return fmt.Errorf("%w: table must be 1..%d characters", ErrValidation, MaxLabelLen)
	}
	if strings.TrimSpace(c.Customer) == "" || len(c.Customer) > MaxLabelLen {
		return fmt.Errorf("%w: customer must be 1..%d characters", ErrValidation, MaxLabelLen)
	}
	if err := ValidateItems(c.Items); err != nil {
		return err
	}
	if c.Confirmation != nil {
		if c.Confirmation.Items != nil {
			return fmt.Errorf("%w: replacement items are only accepted when confirming an existing order", ErrValidation)
		}
		return ValidateConfirmation(*c.Confirmation)
	}
	return nil
}

// MenuIDs returns the distinct menu ids referenced by items.
func MenuIDs(items []ItemRequest) []int64 {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.MenuItemID]; ok {
			continue
		}
		seen[it.MenuItemID] = struct{}{}
		ids = append(ids, it.MenuItemID)
	}
	return ids
}

// ToOrderItems turns requests into unpriced order lines.
func ToOrderItems(reqs []ItemRequest) []OrderItem {
	out := make([]OrderItem, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, OrderItem{MenuItemID: r.MenuItemID, Quantity: r.Quantity, Notes: strings.TrimSpace(r.Notes)})
	}
	return out
}
