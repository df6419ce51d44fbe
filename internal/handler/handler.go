// Package handler exposes the payment gateway over HTTP.
package handler

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/breeze-gateway/internal/domain/auth"
	"github.com/xenking/breeze-gateway/internal/domain/order"
	"github.com/xenking/breeze-gateway/internal/domain/payment"
	"github.com/xenking/breeze-gateway/pkg/httpmiddleware"
)

// StoreURLs are the storefront pages buyers are redirected to.
type StoreURLs struct {
	Cart         string
	Checkout     string
	Confirmation string
}

// WebhookHistory lists recorded webhook deliveries of an order.
type WebhookHistory interface {
	ListByOrder(ctx context.Context, orderID int64) ([]payment.WebhookRecord, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	Store StoreURLs
	// MaxWebhookBytes limits the webhook request body.
	MaxWebhookBytes int64
}

// Handler serves the buyer return, provider webhook and merchant API.
type Handler struct {
	gateway  payment.Gateway
	orders   order.Repository
	history  WebhookHistory
	store    StoreURLs
	maxBytes int64
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg Config, gateway payment.Gateway, orders order.Repository, history WebhookHistory) *Handler {
	maxBytes := cfg.MaxWebhookBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	return &Handler{
		gateway:  gateway,
		orders:   orders,
		history:  history,
		store:    cfg.Store,
		maxBytes: maxBytes,
	}
}

// Routes returns the router. public is applied to the unauthenticated
// provider-facing endpoints.
func (h *Handler) Routes(sec *Security, public ...httpmiddleware.Middleware) chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		for _, m := range public {
			r.Use(m)
		}
		r.Get("/breeze/return", h.Return)
		r.Post("/breeze/webhook", h.Webhook)
	})

	r.Route("/api/orders/{id}", func(r chi.Router) {
		r.Use(sec.Authenticate)
		r.With(RequireScope(auth.ScopeCheckout)).Post("/checkout", h.Checkout)
		r.With(RequireScope(auth.ScopeRefund)).Post("/refunds", h.Refund)
		r.With(RequireScope(auth.ScopeRead)).Get("/payment", h.PaymentStatus)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func orderIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// withQuery appends key=value to raw, keeping existing parameters.
func withQuery(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
