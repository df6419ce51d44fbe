package payment

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/breeze-gateway/internal/domain/order"
)

// EventType names a payment lifecycle event.
type EventType string

const (
	EventSessionCreated       EventType = "payment.session_created"
	EventAwaitingConfirmation EventType = "payment.awaiting_confirmation"
	EventCompleted            EventType = "payment.completed"
	EventFailed               EventType = "payment.failed"
	EventRefunded             EventType = "payment.refunded"
	EventCartClearRequested   EventType = "cart.clear_requested"
)

// Event is a payment lifecycle event.
type Event struct {
	ID         string       `json:"id"`
	Type       EventType    `json:"type"`
	OrderID    int64        `json:"order_id"`
	Status     order.Status `json:"status,omitempty"`
	HostStatus string       `json:"host_status,omitempty"`
	// Reference is the provider id tied to the event: session, transaction
	// or refund id.
	Reference   string    `json:"reference,omitempty"`
	AmountMinor int64     `json:"amount_minor,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (s *Service) newEvent(t EventType, o *order.Order, ref string) Event {
	e := Event{
		ID:         uuid.NewString(),
		Type:       t,
		Reference:  ref,
		OccurredAt: s.now().UTC(),
	}
	if o != nil {
		e.OrderID = o.ID
		e.Status = o.Status
		e.HostStatus = o.Status.HostStatus()
		e.Currency = o.Currency
	}
	return e
}

// publish emits e after the state change was committed. Failures are logged
// and never undo the change.
func (s *Service) publish(ctx context.Context, e Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		zctx.From(ctx).Warn("Publish payment event",
			zap.String("event_type", string(e.Type)),
			zap.Int64("order_id", e.OrderID),
			zap.Error(err),
		)
	}
}

func (s *Service) clearCart(ctx context.Context, orderID int64) {
	if err := s.cart.Clear(ctx, orderID); err != nil {
		zctx.From(ctx).Warn("Clear cart", zap.Int64("order_id", orderID), zap.Error(err))
	}
}
