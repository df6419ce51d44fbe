package breeze

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := Config{BaseURL: srv.URL, APIKey: "sk_test"}
	for _, o := range opts {
		o(&cfg)
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	return c
}

func writeData(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": v}))
}

func TestResolveBaseURL(t *testing.T) {
	hook := func(string) string { return "https://hook.example/" }

	assert.Equal(t, "https://override.example", ResolveBaseURL("https://override.example/", hook))
	assert.Equal(t, "https://hook.example", ResolveBaseURL("", hook))
	assert.Equal(t, DefaultBaseURL, ResolveBaseURL("", nil))
	assert.Equal(t, DefaultBaseURL, ResolveBaseURL("", func(string) string { return "" }))
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestClient_BasicAuth(t *testing.T) {
	var got string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		writeData(t, w, Customer{ID: "cus_1"})
	})

	_, err := c.FindCustomerByEmail(context.Background(), "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("sk_test:")), got)
}

func TestClient_FindCustomerByEmail(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/v1/customers", r.URL.Path)
			assert.Equal(t, "buyer+x@example.com", r.URL.Query().Get("email"))
			writeData(t, w, Customer{ID: "cus_1", Email: "buyer+x@example.com"})
		})

		cust, err := c.FindCustomerByEmail(context.Background(), "buyer+x@example.com")
		require.NoError(t, err)
		require.NotNil(t, cust)
		assert.Equal(t, "cus_1", cust.ID)
	})

	t.Run("not found status", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		})

		cust, err := c.FindCustomerByEmail(context.Background(), "x@example.com")
		require.NoError(t, err)
		assert.Nil(t, cust)
	})

	t.Run("null data", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"data":null}`)
		})

		cust, err := c.FindCustomerByEmail(context.Background(), "x@example.com")
		require.NoError(t, err)
		assert.Nil(t, cust)
	})

	t.Run("server error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})

		_, err := c.FindCustomerByEmail(context.Background(), "x@example.com")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
		assert.Equal(t, "/v1/customers", apiErr.Path)
		assert.NotContains(t, err.Error(), "x@example.com")
	})
}

func TestClient_CreateCustomer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/customers", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req CreateCustomerRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user-7", req.ReferenceID)
		assert.Equal(t, int64(1700000000000), req.SignupAt)
		writeData(t, w, Customer{ID: "cus_new", ReferenceID: req.ReferenceID})
	})

	cust, err := c.CreateCustomer(context.Background(), CreateCustomerRequest{
		ReferenceID: "user-7",
		Email:       "buyer@example.com",
		SignupAt:    1700000000000,
	})
	require.NoError(t, err)
	assert.Equal(t, "cus_new", cust.ID)
}

func TestClient_CreateCustomer_MissingID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(t, w, map[string]any{})
	})

	_, err := c.CreateCustomer(context.Background(), CreateCustomerRequest{ReferenceID: "guest-1"})
	require.Error(t, err)
}

func TestClient_CreatePaymentPage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_pages", r.URL.Path)

		var raw map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, "order-42", raw["clientReferenceId"])
		products := raw["products"].([]any)
		first := products[0].(map[string]any)
		assert.NotContains(t, first, "images")
		assert.Equal(t, float64(7000), first["amount"])
		writeData(t, w, PaymentPage{ID: "page_abc", URL: "https://pay.breeze.cash/page_abc"})
	})

	page, err := c.CreatePaymentPage(context.Background(), PaymentPageRequest{
		Products:          []Product{{Name: "Widget", Description: "Widget", Currency: "USD", Amount: 7000, Quantity: 1}},
		ClientReferenceID: "order-42",
		Customer:          CustomerRef{ID: "cus_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "page_abc", page.ID)
	assert.Equal(t, "https://pay.breeze.cash/page_abc", page.URL)
}

func TestClient_Refund(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_pages/page_abc123/refund", r.URL.Path)

		var req RefundRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(4999), req.Amount)
		assert.Equal(t, "damaged", req.Reason)
		writeData(t, w, Refund{ID: "rf_1", Status: "pending"})
	})

	r, err := c.Refund(context.Background(), "page_abc123", RefundRequest{Amount: 4999, Reason: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, "rf_1", r.ID)
}

func TestClient_RefundError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"amount exceeds captured"}`, http.StatusUnprocessableEntity)
	})

	_, err := c.Refund(context.Background(), "page_abc123", RefundRequest{Amount: 1})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.False(t, apiErr.Temporary())
	assert.Contains(t, apiErr.Body, "amount exceeds")
}

func TestClient_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeData(t, w, PaymentPage{ID: "late"})
	}, func(cfg *Config) { cfg.Timeout = 20 * time.Millisecond })

	_, err := c.CreatePaymentPage(context.Background(), PaymentPageRequest{})
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}, func(cfg *Config) {
		cfg.Breaker = BreakerConfig{Enabled: true, MaxFailures: 2, OpenTimeout: time.Minute}
	})

	ctx := context.Background()
	for range 2 {
		_, err := c.CreatePaymentPage(ctx, PaymentPageRequest{})
		require.Error(t, err)
	}
	_, err := c.CreatePaymentPage(ctx, PaymentPageRequest{})
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_BreakerIgnoresClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad", http.StatusBadRequest)
	}, func(cfg *Config) {
		cfg.Breaker = BreakerConfig{Enabled: true, MaxFailures: 1, OpenTimeout: time.Minute}
	})

	for range 3 {
		_, err := c.CreatePaymentPage(context.Background(), PaymentPageRequest{})
		require.Error(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
}
