package payment

import (
	"context"
	"crypto/subtle"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/xenking/breeze-gateway/internal/domain/order"
)

// Return statuses carried on the return URL.
const (
	ReturnSuccess = "success"
	ReturnFailed  = "failed"
)

// FailureNotice is shown to the buyer after a failed or cancelled payment.
const FailureNotice = "Payment failed or was cancelled. Please try again."

// Redirect is where the buyer is sent after returning from checkout.
type Redirect string

const (
	RedirectCart         Redirect = "cart"
	RedirectCheckout     Redirect = "checkout"
	RedirectConfirmation Redirect = "confirmation"
)

// ReturnParams are the untrusted query parameters of a browser return.
type ReturnParams struct {
	OrderID string
	Status  string
	Token   string
}

// ReturnResult tells the transport where to redirect the buyer.
type ReturnResult struct {
	Redirect Redirect
	OrderID  int64
	// Notice is an optional message for the buyer.
	Notice string
}

var errTokenMismatch = errors.New("return token mismatch")

// HandleReturn processes the buyer's browser return. It never marks an order
// paid: a successful return only moves the order to awaiting confirmation.
// Any invalid input sends the buyer to the cart without touching the order.
func (s *Service) HandleReturn(ctx context.Context, p ReturnParams) ReturnResult {
	ctx, span := s.tracer.Start(ctx, "payment.HandleReturn")
	defer span.End()

	cart := ReturnResult{Redirect: RedirectCart}

	orderID, err := strconv.ParseInt(p.OrderID, 10, 64)
	if err != nil || orderID <= 0 {
		count(ctx, s.metrics.returns, attribute.String("result", "invalid_order"))
		return cart
	}
	span.SetAttributes(attribute.Int64("order.id", orderID))
	ctx = zctx.With(ctx, zap.Int64("order_id", orderID))
	lg := zctx.From(ctx)

	var (
		result  = cart
		evType  EventType
		changed bool
	)
	updated, err := s.orders.Update(ctx, orderID, func(o *order.Order) error {
		stored := o.Payment.ReturnToken
		if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(p.Token)) != 1 {
			return errTokenMismatch
		}
		o.Payment.ReturnToken = ""

		if p.Status == ReturnSuccess {
			result = ReturnResult{Redirect: RedirectConfirmation, OrderID: o.ID}
			if !o.IsPaid() {
				o.Status = order.StatusAwaitingConfirmation
				o.AddNote("Buyer returned from Breeze checkout. Awaiting payment confirmation.", s.now())
				evType, changed = EventAwaitingConfirmation, true
			}
			return nil
		}

		result = ReturnResult{Redirect: RedirectCheckout, OrderID: o.ID, Notice: FailureNotice}
		if !o.IsPaid() {
			o.Status = order.StatusFailed
			o.AddNote("Payment failed or cancelled by buyer.", s.now())
			evType, changed = EventFailed, true
		}
		return nil
	})
	switch {
	case errors.Is(err, order.ErrNotFound):
		count(ctx, s.metrics.returns, attribute.String("result", "order_not_found"))
		return cart
	case errors.Is(err, errTokenMismatch):
		lg.Warn("Return token mismatch")
		count(ctx, s.metrics.returns, attribute.String("result", "token_mismatch"))
		return cart
	case err != nil:
		lg.Error("Handle return", zap.Error(err))
		count(ctx, s.metrics.returns, attribute.String("result", "error"))
		return cart
	}

	count(ctx, s.metrics.returns, attribute.String("result", string(result.Redirect)))
	s.clearCart(ctx, orderID)
	if changed {
		s.publish(ctx, s.newEvent(evType, updated, updated.Payment.RemoteSessionID))
	}
	lg.Info("Buyer returned from checkout",
		zap.String("status", p.Status),
		zap.String("redirect", string(result.Redirect)),
	)
	return result
}
