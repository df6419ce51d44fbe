package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/breeze-gateway/internal/domain/payment"
)

// Return handles the buyer's browser return from the hosted payment page.
// GET /breeze/return?orderId=..&status=..&token=..
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := h.gateway.HandleReturn(r.Context(), payment.ReturnParams{
		OrderID: q.Get("orderId"),
		Status:  q.Get("status"),
		Token:   q.Get("token"),
	})
	http.Redirect(w, r, h.redirectURL(res), http.StatusFound)
}

func (h *Handler) redirectURL(res payment.ReturnResult) string {
	switch res.Redirect {
	case payment.RedirectConfirmation:
		return withQuery(h.store.Confirmation, "order", strconv.FormatInt(res.OrderID, 10))
	case payment.RedirectCheckout:
		if res.Notice == "" {
			return h.store.Checkout
		}
		return withQuery(h.store.Checkout, "notice", res.Notice)
	default:
		return h.store.Cart
	}
}

// Webhook handles signed provider notifications.
// POST /breeze/webhook
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	lg := zctx.From(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "Webhook payload too large")
			return
		}
		lg.Warn("Read webhook body", zap.Error(err))
		writeMessage(w, http.StatusBadRequest, "Invalid webhook structure")
		return
	}

	if _, err := h.gateway.HandleWebhook(r.Context(), body); err != nil {
		switch {
		case errors.Is(err, payment.ErrMalformedWebhook):
			writeMessage(w, http.StatusBadRequest, "Invalid webhook structure")
		case errors.Is(err, payment.ErrInvalidSignature),
			errors.Is(err, payment.ErrWebhookSecretMissing):
			writeMessage(w, http.StatusBadRequest, "Invalid webhook signature")
		default:
			writeMessage(w, http.StatusInternalServerError, "Webhook processing failed")
		}
		return
	}
	writeMessage(w, http.StatusOK, "Webhook processed")
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.FieldStart("message")
		e.Str(message)
	})
}

// writeJSON writes a JSON object whose fields are produced by fields.
func writeJSON(w http.ResponseWriter, status int, fields func(e *jx.Encoder)) {
	var e jx.Encoder
	e.ObjStart()
	fields(&e)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
