package domain

const (
	EventNewOrder       = "new-order"
	EventConfirmedOrder = "confirmed-order"
	EventStatusUpdated  = "status-updated"
)

// NewOrderEvent goes to the cashier channel.
type NewOrderEvent struct {
	ID          int64  `json:"id"`
	DisplayCode string `json:"displayCode"`
	Table       string `json:"table"`
	Customer    string `json:"customer"`
	Status      Status `json:"status"`
	Subtotal    string `json:"subtotal"`
}

// ConfirmedOrderEvent is the minimal payload for cashier and display.
type ConfirmedOrderEvent struct {
	ID           int64  `json:"id"`
	DisplayCode  string `json:"displayCode"`
	TicketNumber int    `json:"ticketNumber"`
}

// PrintJob is the printer payload: the whole order with menu snapshots on
// every line.
type PrintJob struct {
	Order Order `json:"order"`
}

type StatusUpdatedEvent struct {
	ID           int64  `json:"id"`
	DisplayCode  string `json:"displayCode"`
	TicketNumber *int   `json:"ticketNumber"`
	Status       Status `json:"status"`
}

func NewOrderEventFrom(o Order) NewOrderEvent {
	return NewOrderEvent{
		ID:          o.ID,
		DisplayCode: o.DisplayCode,
		Table:       o.Table,
		Customer:    o.Customer,
		Status:      o.Status,
		Subtotal:    o.Subtotal.StringFixed(2),
	}
}

func ConfirmedOrderEventFrom(o Order) ConfirmedOrderEvent {
	ev := ConfirmedOrderEvent{ID: o.ID, DisplayCode: o.DisplayCode}
	if o.TicketNumber != nil {
		ev.TicketNumber = *o.TicketNumber
	}
	return ev
}

func StatusUpdatedEventFrom(o Order) StatusUpdatedEvent {
	return StatusUpdatedEvent{ID: o.ID, DisplayCode: o.DisplayCode, TicketNumber: o.TicketNumber, Status: o.Status}
}
