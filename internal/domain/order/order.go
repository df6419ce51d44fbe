package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrNoChange may be returned from an Update callback to skip the write.
	ErrNoChange = errors.New("no change")
)

// Status is the payment status of an order as seen by the gateway.
type Status string

const (
	StatusUnpaid               Status = "unpaid"
	StatusPendingRemote        Status = "pending_remote"
	StatusAwaitingConfirmation Status = "awaiting_webhook_confirmation"
	StatusPaid                 Status = "paid"
	StatusFailed               Status = "failed"
)

// HostStatus maps the payment status to the order status used by the host
// order system.
func (s Status) HostStatus() string {
	switch s {
	case StatusAwaitingConfirmation:
		return "on-hold"
	case StatusPaid:
		return "processing"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusUnpaid, StatusPendingRemote, StatusAwaitingConfirmation, StatusPaid, StatusFailed:
		return true
	}
	return false
}

// Order is the slice of a host order that the payment gateway reads and mutates.
type Order struct {
	ID             int64
	Status         Status
	Currency       string
	BillingEmail   string
	UserID         int64
	Items          []Item
	ShippingTotal  decimal.Decimal
	ShippingMethod string
	DiscountTotal  decimal.Decimal
	TaxTotal       decimal.Decimal
	Payment        Payment
	Notes          []Note
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Item is an order line. LineTotal is the post-discount total for the whole
// line in major currency units.
type Item struct {
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	LineTotal      decimal.Decimal `json:"line_total"`
	Quantity       int             `json:"quantity"`
	CatalogPrice   decimal.Decimal `json:"catalog_price"`
	ImageURL       string          `json:"image_url,omitempty"`
	ProductID      string          `json:"product_id,omitempty"`
	ProductDeleted bool            `json:"product_deleted,omitempty"`
}

// Payment holds the provider metadata persisted on an order. An empty string
// means the value is not set.
type Payment struct {
	RemoteCustomerID string
	RemoteSessionID  string
	ReturnToken      string
	TransactionID    string
}

// Note is an audit entry attached to an order.
type Note struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// IsGuest reports whether the order was placed without a user account.
func (o *Order) IsGuest() bool {
	return o.UserID <= 0
}

// IsPaid reports whether the order reached the terminal paid state.
func (o *Order) IsPaid() bool {
	return o.Status == StatusPaid
}

// AddNote appends an audit note.
func (o *Order) AddNote(text string, at time.Time) {
	o.Notes = append(o.Notes, Note{Text: text, CreatedAt: at})
}

// PayableTotal is the amount the buyer pays through the provider: line
// totals plus shipping. Tax is collected by the provider and excluded.
func (o *Order) PayableTotal() decimal.Decimal {
	total := o.ShippingTotal
	for _, item := range o.Items {
		total = total.Add(item.LineTotal)
	}
	return total
}

// Repository defines persistence operations for orders.
type Repository interface {
	Get(ctx context.Context, id int64) (*Order, error)
	// Update loads the order while holding a per-order lock, applies fn and
	// persists the result. When fn returns ErrNoChange nothing is written and
	// Update returns the loaded order with a nil error. Any other fn error is
	// returned as is.
	Update(ctx context.Context, id int64, fn func(o *Order) error) (*Order, error)
}
