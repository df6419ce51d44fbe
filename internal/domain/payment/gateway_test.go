package payment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/xenking/breeze-gateway/internal/breeze"
	"github.com/xenking/breeze-gateway/internal/domain/order"
	"github.com/xenking/breeze-gateway/internal/domain/payment"
	"github.com/xenking/breeze-gateway/internal/storage/memory"
)

const testSecret = "whsec_test"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	svc       *payment.Service
	orders    *memory.OrderRepository
	customers *memory.CustomerStore
	provider  *mockProvider
	publisher *mockPublisher
	cart      *mockCart
	events    *memory.EventLog
}

func newTestEnv(t *testing.T, mutate ...func(*payment.Config)) *testEnv {
	t.Helper()
	env := &testEnv{
		orders:    memory.NewOrderRepository(),
		customers: memory.NewCustomerStore(),
		provider:  &mockProvider{},
		publisher: &mockPublisher{},
		cart:      &mockCart{},
		events:    &memory.EventLog{},
	}
	cfg := payment.Config{
		ReturnURL:           "https://shop.example/breeze/return",
		WebhookSecret:       testSecret,
		SupportedCurrencies: []string{"USD", "EUR"},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	svc, err := payment.NewService(cfg, env.orders, env.customers, env.provider,
		payment.WithClock(func() time.Time { return testNow }),
		payment.WithTokenSource(func() (string, error) { return "T", nil }),
		payment.WithPublisher(env.publisher),
		payment.WithCart(env.cart),
		payment.WithEventLog(env.events),
	)
	require.NoError(t, err)
	env.svc = svc
	return env
}

func (e *testEnv) createOrder(t *testing.T, o *order.Order) {
	t.Helper()
	require.NoError(t, e.orders.Create(context.Background(), o))
}

func (e *testEnv) order(t *testing.T, id int64) *order.Order {
	t.Helper()
	o, err := e.orders.Get(context.Background(), id)
	require.NoError(t, err)
	return o
}

// order42 is a single item order whose $100.00 item was discounted to $70.00.
func order42() *order.Order {
	return &order.Order{
		ID:           42,
		Status:       order.StatusUnpaid,
		Currency:     "USD",
		BillingEmail: "buyer@example.com",
		UserID:       7,
		Items: []order.Item{{
			Name:         "Widget",
			LineTotal:    decimal.RequireFromString("70.00"),
			Quantity:     1,
			CatalogPrice: decimal.RequireFromString("100.00"),
			ProductID:    "15",
		}},
		DiscountTotal: decimal.RequireFromString("30.00"),
		TaxTotal:      decimal.RequireFromString("5.60"),
	}
}

// --- Mock implementations ---

type mockProvider struct {
	mu sync.Mutex

	findFn   func(email string) (*breeze.Customer, error)
	createFn func(req breeze.CreateCustomerRequest) (*breeze.Customer, error)
	pageFn   func(req breeze.PaymentPageRequest) (*breeze.PaymentPage, error)
	refundFn func(pageID string, req breeze.RefundRequest) (*breeze.Refund, error)

	finds   []string
	creates []breeze.CreateCustomerRequest
	pages   []breeze.PaymentPageRequest
	refunds []string
}

func (m *mockProvider) FindCustomerByEmail(_ context.Context, email string) (*breeze.Customer, error) {
	m.mu.Lock()
	m.finds = append(m.finds, email)
	m.mu.Unlock()
	if m.findFn != nil {
		return m.findFn(email)
	}
	return nil, nil
}

func (m *mockProvider) CreateCustomer(_ context.Context, req breeze.CreateCustomerRequest) (*breeze.Customer, error) {
	m.mu.Lock()
	m.creates = append(m.creates, req)
	m.mu.Unlock()
	if m.createFn != nil {
		return m.createFn(req)
	}
	return &breeze.Customer{ID: "cus_new"}, nil
}

func (m *mockProvider) CreatePaymentPage(_ context.Context, req breeze.PaymentPageRequest) (*breeze.PaymentPage, error) {
	m.mu.Lock()
	m.pages = append(m.pages, req)
	m.mu.Unlock()
	if m.pageFn != nil {
		return m.pageFn(req)
	}
	return &breeze.PaymentPage{ID: "page_abc", URL: "https://pay.breeze.cash/page_abc"}, nil
}

func (m *mockProvider) Refund(_ context.Context, pageID string, req breeze.RefundRequest) (*breeze.Refund, error) {
	m.mu.Lock()
	m.refunds = append(m.refunds, pageID)
	m.mu.Unlock()
	if m.refundFn != nil {
		return m.refundFn(pageID, req)
	}
	return &breeze.Refund{ID: "rf_1"}, nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []payment.Event
}

func (m *mockPublisher) Publish(_ context.Context, e payment.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *mockPublisher) types() []payment.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]payment.EventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

type mockCart struct {
	mu      sync.Mutex
	cleared []int64
}

func (m *mockCart) Clear(_ context.Context, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = append(m.cleared, orderID)
	return nil
}
