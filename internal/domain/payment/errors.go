package payment

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/breeze-gateway/internal/domain/order"
)

var (
	// ErrUnsupportedCurrency is returned when the order currency is not
	// accepted by the gateway.
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	// ErrAlreadyPaid is returned when checkout is requested for a paid order.
	ErrAlreadyPaid = errors.New("order already paid")
	// ErrInvalidRefundAmount is returned for non-positive refund amounts.
	ErrInvalidRefundAmount = errors.New("refund amount must be positive")
	// ErrWebhookSecretMissing is returned when no webhook secret is configured.
	// Every webhook is rejected in that state.
	ErrWebhookSecretMissing = errors.New("webhook secret not configured")
	// ErrInvalidSignature is returned when a webhook signature does not match.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedWebhook is returned when a webhook body is not a valid envelope.
	ErrMalformedWebhook = errors.New("malformed webhook")
)

// CustomerResolutionError is returned when no remote customer could be found
// or created for an order.
type CustomerResolutionError struct {
	OrderID int64
	Err     error
}

func (e *CustomerResolutionError) Error() string {
	return fmt.Sprintf("resolve customer for order %d: %v", e.OrderID, e.Err)
}

func (e *CustomerResolutionError) Unwrap() error { return e.Err }

// LineItemBuildError is returned when an order yields no payable line items.
type LineItemBuildError struct {
	OrderID int64
}

func (e *LineItemBuildError) Error() string {
	return fmt.Sprintf("order %d has no payable line items", e.OrderID)
}

// SessionCreationError is returned when the provider did not create a usable
// checkout session.
type SessionCreationError struct {
	OrderID int64
	Err     error
}

func (e *SessionCreationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("create session for order %d: no session url", e.OrderID)
	}
	return fmt.Sprintf("create session for order %d: %v", e.OrderID, e.Err)
}

func (e *SessionCreationError) Unwrap() error { return e.Err }

// MissingSessionError is returned when refunding an order that has no
// remote session.
type MissingSessionError struct {
	OrderID int64
}

func (e *MissingSessionError) Error() string {
	return fmt.Sprintf("order %d has no remote session", e.OrderID)
}

// RefundError is returned when the provider rejected or failed a refund.
type RefundError struct {
	OrderID int64
	Err     error
}

func (e *RefundError) Error() string {
	return fmt.Sprintf("refund order %d: %v", e.OrderID, e.Err)
}

func (e *RefundError) Unwrap() error { return e.Err }

// UserMessage returns the single human readable message shown for err.
// Provider responses are never included.
func UserMessage(err error) string {
	var (
		custErr    *CustomerResolutionError
		itemsErr   *LineItemBuildError
		sessErr    *SessionCreationError
		missingErr *MissingSessionError
		refundErr  *RefundError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &custErr):
		return "Payment error: failed to create customer in Breeze."
	case errors.As(err, &itemsErr):
		return "Payment error: the order has no items that can be paid for."
	case errors.As(err, &sessErr):
		return "Payment error: failed to create payment page in Breeze."
	case errors.Is(err, ErrUnsupportedCurrency):
		return "Payment error: Breeze does not support the store currency."
	case errors.Is(err, ErrAlreadyPaid):
		return "This order has already been paid."
	case errors.As(err, &missingErr):
		return "This order was not paid through Breeze and cannot be refunded here."
	case errors.As(err, &refundErr):
		return "Refund failed. Please process the refund manually through your Breeze dashboard."
	case errors.Is(err, ErrInvalidRefundAmount):
		return "Refund amount must be greater than zero."
	case errors.Is(err, order.ErrNotFound):
		return "Order not found."
	default:
		return "Payment error: please try again or choose another payment method."
	}
}
