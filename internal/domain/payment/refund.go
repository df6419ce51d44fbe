package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/xenking/breeze-gateway/internal/breeze"
	"github.com/xenking/breeze-gateway/internal/domain/order"
)

// RefundRequest is a merchant refund. Amount is in major currency units.
type RefundRequest struct {
	OrderID int64
	Amount  decimal.Decimal
	Reason  string
}

// RefundResult is a successful refund.
type RefundResult struct {
	RefundID    string
	AmountMinor int64
}

// Refund refunds part or all of an order paid through Breeze. Repeated
// partial refunds are allowed; the provider enforces the captured total.
func (s *Service) Refund(ctx context.Context, req RefundRequest) (_ *RefundResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "payment.Refund")
	defer func() {
		result := "ok"
		if rerr != nil {
			result = "error"
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		count(ctx, s.metrics.refunds, attribute.String("result", result))
		span.End()
	}()
	span.SetAttributes(attribute.Int64("order.id", req.OrderID))
	ctx = zctx.With(ctx, zap.Int64("order_id", req.OrderID))
	lg := zctx.From(ctx)

	if !req.Amount.IsPositive() {
		return nil, ErrInvalidRefundAmount
	}
	o, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	pageID := o.Payment.RemoteSessionID
	if pageID == "" {
		return nil, &MissingSessionError{OrderID: o.ID}
	}

	amount := MinorUnits(req.Amount)
	r, err := s.provider.Refund(ctx, pageID, breeze.RefundRequest{
		Amount: amount,
		Reason: req.Reason,
	})
	if err != nil {
		lg.Error("Breeze refund failed", zap.Error(err))
		return nil, &RefundError{OrderID: o.ID, Err: err}
	}

	refundID := r.ID
	if refundID == "" {
		refundID = "N/A"
	}
	reason := req.Reason
	if reason == "" {
		reason = "N/A"
	}
	note := "Refunded " + req.Amount.StringFixed(2) + " " + o.Currency +
		" via Breeze. Refund ID: " + refundID + ". Reason: " + reason
	updated, err := s.orders.Update(ctx, o.ID, func(o *order.Order) error {
		o.AddNote(note, s.now())
		return nil
	})
	if err != nil {
		// The provider already accepted the refund.
		lg.Error("Record refund note", zap.String("refund_id", r.ID), zap.Error(err))
		updated = o
	}

	e := s.newEvent(EventRefunded, updated, r.ID)
	e.AmountMinor = amount
	s.publish(ctx, e)

	lg.Info("Refund processed", zap.String("refund_id", r.ID), zap.Int64("amount_minor", amount))
	return &RefundResult{RefundID: r.ID, AmountMinor: amount}, nil
}
