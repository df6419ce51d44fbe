// Package payment reconciles orders with Breeze hosted checkout sessions.
//
// Orders move between payment statuses through three entry points: checkout
// session creation, the buyer's browser return and the provider webhook.
// Only the webhook finalizes a payment.
package payment

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/breeze-gateway/internal/breeze"
	"github.com/xenking/breeze-gateway/internal/domain/customer"
	"github.com/xenking/breeze-gateway/internal/domain/order"
)

const instrumentationName = "github.com/xenking/breeze-gateway/internal/domain/payment"

// Gateway is the payment reconciliation API consumed by transport handlers.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, orderID int64) (*Session, error)
	HandleReturn(ctx context.Context, params ReturnParams) ReturnResult
	HandleWebhook(ctx context.Context, body []byte) (*WebhookResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	Available(currency string) bool
}

// Provider is the subset of the Breeze API used by the gateway.
type Provider interface {
	FindCustomerByEmail(ctx context.Context, email string) (*breeze.Customer, error)
	CreateCustomer(ctx context.Context, req breeze.CreateCustomerRequest) (*breeze.Customer, error)
	CreatePaymentPage(ctx context.Context, req breeze.PaymentPageRequest) (*breeze.PaymentPage, error)
	Refund(ctx context.Context, pageID string, req breeze.RefundRequest) (*breeze.Refund, error)
}

// Publisher emits payment lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Cart clears the buyer's cart once checkout is left.
type Cart interface {
	Clear(ctx context.Context, orderID int64) error
}

// EventLog records verified webhook deliveries.
type EventLog interface {
	Record(ctx context.Context, rec WebhookRecord) error
}

// Config is the immutable gateway configuration.
type Config struct {
	// ReturnURL is the absolute URL of the browser return endpoint.
	ReturnURL     string
	WebhookSecret string
	// PaymentMethods is the preferred payment method allow-list, for example
	// apple_pay, google_pay, card or crypto. Empty means provider defaults.
	PaymentMethods      []string
	SupportedCurrencies []string
}

// Service implements Gateway.
type Service struct {
	cfg       Config
	orders    order.Repository
	customers customer.Store
	provider  Provider
	publisher Publisher
	cart      Cart
	events    EventLog
	now       func() time.Time
	token     func() (string, error)
	tracer    trace.Tracer
	metrics   metrics
}

var _ Gateway = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTokenSource overrides the return token generator.
func WithTokenSource(fn func() (string, error)) Option {
	return func(s *Service) { s.token = fn }
}

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithCart sets the cart collaborator.
func WithCart(c Cart) Option {
	return func(s *Service) { s.cart = c }
}

// WithEventLog sets the webhook event log.
func WithEventLog(l EventLog) Option {
	return func(s *Service) { s.events = l }
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.metrics.meter = mp.Meter(instrumentationName) }
}

// NewService creates a Service.
func NewService(cfg Config, orders order.Repository, customers customer.Store, provider Provider, opts ...Option) (*Service, error) {
	if cfg.ReturnURL == "" {
		return nil, errors.New("return url is required")
	}
	s := &Service{
		cfg:       cfg,
		orders:    orders,
		customers: customers,
		provider:  provider,
		publisher: nopPublisher{},
		cart:      nopCart{},
		events:    nopEventLog{},
		now:       time.Now,
		token:     NewReturnToken,
		tracer:    tracenoop.NewTracerProvider().Tracer(instrumentationName),
	}
	s.metrics.meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	for _, o := range opts {
		o(s)
	}
	if err := s.metrics.init(); err != nil {
		return nil, errors.Wrap(err, "init metrics")
	}
	return s, nil
}

// Available reports whether checkout can be offered for currency.
func (s *Service) Available(currency string) bool {
	return slices.ContainsFunc(s.cfg.SupportedCurrencies, func(c string) bool {
		return strings.EqualFold(c, currency)
	})
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

type nopCart struct{}

func (nopCart) Clear(context.Context, int64) error { return nil }

type nopEventLog struct{}

func (nopEventLog) Record(context.Context, WebhookRecord) error { return nil }
