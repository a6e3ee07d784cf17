package dto

import (
	"github.com/shopspring/decimal"

	"github.com/MySagra/mysagra-sub000/internal/domain"
)

type OrderItemInput struct {
	MenuItemID int64  `json:"menuItemId"`
	Quantity   int    `json:"quantity"`
	Notes      string `json:"notes"`
}

type ConfirmRequest struct {
	PaymentMethod string          `json:"paymentMethod"`
	Discount      decimal.Decimal `json:"discount"`
	Surcharge     decimal.Decimal `json:"surcharge"`
	// Items, when present, replaces the order lines.
	Items []OrderItemInput `json:"items"`
}

type CreateOrderRequest struct {
	Table    string           `json:"table"`
	Customer string           `json:"customer"`
	Items    []OrderItemInput `json:"items"`
	Confirm  *ConfirmRequest  `json:"confirm"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type TimelineResponse struct {
	OrderID int64                 `json:"orderId"`
	Events  []domain.StatusChange `json:"events"`
}

// ConvertItems keeps nil distinct from empty: nil means "not sent".
func ConvertItems(inputs []OrderItemInput) []domain.ItemRequest {
	if inputs == nil {
		return nil
	}
	items := make([]domain.ItemRequest, 0, len(inputs))
	for _, in := range inputs {
		items = append(items, domain.ItemRequest{MenuItemID: in.MenuItemID, Quantity: in.Quantity, Notes: in.Notes})
	}
	return items
}

func (r ConfirmRequest) ToDomain() (domain.Confirmation, error) {
	pm, err := domain.ParsePaymentMethod(r.PaymentMethod)
	if err != nil {
		return domain.Confirmation{}, err
	}
	return domain.Confirmation{
		PaymentMethod: pm,
		Discount:      r.Discount,
		Surcharge:     r.Surcharge,
		Items:         ConvertItems(r.Items),
	}, nil
}

func (r CreateOrderRequest) ToDomain() (domain.OrderCreation, error) {
	c := domain.OrderCreation{
		Table:    r.Table,
		Customer: r.Customer,
		Items:    ConvertItems(r.Items),
	}
	if r.Confirm != nil {
		conf, err := r.Confirm.ToDomain()
		if err != nil {
			return domain.OrderCreation{}, err
		}
		c.Confirmation = &conf
	}
	return c, nil
}
