package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/breeze-gateway/internal/domain/order"
	"github.com/xenking/breeze-gateway/internal/domain/payment"
	"github.com/xenking/breeze-gateway/pkg/httpmiddleware"
)

const maxRefundBody = 4 << 10

// Checkout creates a hosted payment session for an order.
// POST /api/orders/{id}/checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(r)
	if !ok {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	sess, err := h.gateway.CreateCheckoutSession(r.Context(), id)
	if err != nil {
		h.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.FieldStart("url")
		e.Str(sess.URL)
		e.FieldStart("sessionId")
		e.Str(sess.ID)
	})
}

// Refund issues a provider refund for a paid order.
// POST /api/orders/{id}/refunds
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(r)
	if !ok {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRefundBody))
	if err != nil {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req, err := decodeRefundRequest(body)
	if err != nil {
		httpmiddleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.OrderID = id

	res, err := h.gateway.Refund(r.Context(), req)
	if err != nil {
		h.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.FieldStart("refundId")
		e.Str(res.RefundID)
		e.FieldStart("amountMinor")
		e.Int64(res.AmountMinor)
	})
}

// decodeRefundRequest parses {"amount": "12.34" | 12.34, "reason": "..."}.
// Amounts are parsed from their literal text so no float rounding happens.
func decodeRefundRequest(body []byte) (payment.RefundRequest, error) {
	var (
		req       payment.RefundRequest
		hasAmount bool
	)
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return req, errors.New("request body must be a JSON object")
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "amount":
			var raw string
			switch d.Next() {
			case jx.String:
				s, err := d.Str()
				if err != nil {
					return err
				}
				raw = s
			case jx.Number:
				n, err := d.Num()
				if err != nil {
					return err
				}
				raw = n.String()
			default:
				return errors.New("amount must be a number or a string")
			}
			amount, err := decimal.NewFromString(raw)
			if err != nil {
				return errors.Wrap(err, "parse amount")
			}
			req.Amount = amount
			hasAmount = true
			return nil
		case "reason":
			if d.Next() == jx.Null {
				return d.Null()
			}
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "reason")
			}
			req.Reason = s
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, errors.Wrap(err, "invalid refund request")
	}
	if !hasAmount {
		return req, errors.New("amount is required")
	}
	return req, nil
}

// PaymentStatus reports the payment state of an order.
// GET /api/orders/{id}/payment
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := orderIDParam(r)
	if !ok {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.orders.Get(ctx, id)
	if err != nil {
		h.writeGatewayError(w, r, err)
		return
	}
	var records []payment.WebhookRecord
	if h.history != nil {
		records, err = h.history.ListByOrder(ctx, id)
		if err != nil {
			zctx.From(ctx).Warn("List webhook events", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.FieldStart("orderId")
		e.Int64(o.ID)
		e.FieldStart("status")
		e.Str(string(o.Status))
		e.FieldStart("hostStatus")
		e.Str(o.Status.HostStatus())
		e.FieldStart("currency")
		e.Str(o.Currency)
		e.FieldStart("total")
		e.Str(o.PayableTotal().StringFixed(2))
		e.FieldStart("customerId")
		e.Str(o.Payment.RemoteCustomerID)
		e.FieldStart("sessionId")
		e.Str(o.Payment.RemoteSessionID)
		e.FieldStart("transactionId")
		e.Str(o.Payment.TransactionID)
		e.FieldStart("notes")
		e.ArrStart()
		for _, n := range o.Notes {
			e.ObjStart()
			e.FieldStart("text")
			e.Str(n.Text)
			e.FieldStart("createdAt")
			e.Str(n.CreatedAt.UTC().Format(time.RFC3339))
			e.ObjEnd()
		}
		e.ArrEnd()
		e.FieldStart("webhooks")
		e.ArrStart()
		for _, rec := range records {
			e.ObjStart()
			e.FieldStart("type")
			e.Str(rec.Type)
			e.FieldStart("outcome")
			e.Str(string(rec.Outcome))
			e.FieldStart("receivedAt")
			e.Str(rec.ReceivedAt.UTC().Format(time.RFC3339))
			e.ObjEnd()
		}
		e.ArrEnd()
	})
}

// writeGatewayError maps err to a status code and the user facing message.
func (h *Handler) writeGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	lg := zctx.From(r.Context())
	if status >= http.StatusInternalServerError {
		lg.Error("Payment request failed", zap.Error(err))
	} else {
		lg.Info("Payment request rejected", zap.Error(err))
	}
	httpmiddleware.WriteError(w, status, payment.UserMessage(err))
}

func statusFor(err error) int {
	var (
		custErr    *payment.CustomerResolutionError
		itemsErr   *payment.LineItemBuildError
		sessErr    *payment.SessionCreationError
		missingErr *payment.MissingSessionError
		refundErr  *payment.RefundError
	)
	switch {
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, payment.ErrAlreadyPaid):
		return http.StatusConflict
	case errors.Is(err, payment.ErrUnsupportedCurrency),
		errors.Is(err, payment.ErrInvalidRefundAmount),
		errors.As(err, &itemsErr),
		errors.As(err, &missingErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &custErr),
		errors.As(err, &sessErr),
		errors.As(err, &refundErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
