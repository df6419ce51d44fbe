// Package breeze implements a client for the Breeze hosted checkout API.
package breeze

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the production Breeze API.
	DefaultBaseURL = "https://api.breeze.cash"
	// DefaultTimeout bounds every outbound request.
	DefaultTimeout = 45 * time.Second

	maxResponseBody = 1 << 20
)

// ResolveBaseURL picks the API base URL. An explicit override wins, then the
// hook (which receives the default and may return a replacement), then
// DefaultBaseURL.
func ResolveBaseURL(override string, hook func(string) string) string {
	if override != "" {
		return strings.TrimRight(override, "/")
	}
	if hook != nil {
		if v := hook(DefaultBaseURL); v != "" {
			return strings.TrimRight(v, "/")
		}
	}
	return DefaultBaseURL
}

// BreakerConfig controls the circuit breaker guarding outbound calls.
type BreakerConfig struct {
	Enabled     bool
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Breaker BreakerConfig
	// Transport overrides the HTTP transport. It is wrapped with otelhttp.
	Transport http.RoundTripper
}

// Client is a stateless Breeze API client. It is safe for concurrent use.
type Client struct {
	baseURL string
	auth    string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[[]byte]
}

// NewClient creates a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("breeze: api key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.APIKey+":")),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		},
	}
	if cfg.Breaker.Enabled {
		c.cb = newBreaker(cfg.Breaker)
	}
	return c, nil
}

func newBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker[[]byte] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "breeze",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Client errors are answers, not outages.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *APIError
			return errors.As(err, &apiErr) && !apiErr.Temporary()
		},
	})
}

// FindCustomerByEmail looks up a customer by email. It returns nil and no
// error when no customer exists.
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	path := "/v1/customers?" + url.Values{"email": {email}}.Encode()
	var cust Customer
	found, err := c.call(ctx, http.MethodGet, path, nil, &cust)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, "find customer")
	}
	if !found || cust.ID == "" {
		return nil, nil
	}
	return &cust, nil
}

// CreateCustomer creates a customer.
func (c *Client) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	var cust Customer
	found, err := c.call(ctx, http.MethodPost, "/v1/customers", req, &cust)
	if err != nil {
		return nil, errors.Wrap(err, "create customer")
	}
	if !found || cust.ID == "" {
		return nil, errors.New("create customer: response has no customer id")
	}
	return &cust, nil
}

// CreatePaymentPage creates a hosted checkout session.
func (c *Client) CreatePaymentPage(ctx context.Context, req PaymentPageRequest) (*PaymentPage, error) {
	var page PaymentPage
	if _, err := c.call(ctx, http.MethodPost, "/v1/payment_pages", req, &page); err != nil {
		return nil, errors.Wrap(err, "create payment page")
	}
	return &page, nil
}

// Refund refunds amount against the payment page pageID.
func (c *Client) Refund(ctx context.Context, pageID string, req RefundRequest) (*Refund, error) {
	if pageID == "" {
		return nil, errors.New("refund: empty payment page id")
	}
	var r Refund
	path := "/v1/payment_pages/" + url.PathEscape(pageID) + "/refund"
	if _, err := c.call(ctx, http.MethodPost, path, req, &r); err != nil {
		return nil, errors.Wrap(err, "refund")
	}
	return &r, nil
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// call performs the request and decodes the "data" member of the response
// envelope into out. It reports whether data was present and non-null.
func (c *Client) call(ctx context.Context, method, path string, body, out any) (bool, error) {
	raw, err := c.execute(ctx, method, path, body)
	if err != nil {
		return false, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return false, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, errors.Wrap(err, "decode response")
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return false, errors.Wrap(err, "decode response data")
	}
	return true, nil
}

func (c *Client) execute(ctx context.Context, method, path string, body any) ([]byte, error) {
	do := func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, body)
	}
	if c.cb == nil {
		return do()
	}
	raw, err := c.cb.Execute(do)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.Wrap(err, "breeze unavailable")
	}
	return raw, err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encode request")
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Query strings carry buyer emails.
	logPath, _, _ := strings.Cut(path, "?")
	lg := zctx.From(ctx).With(
		zap.String("method", method),
		zap.String("path", logPath),
	)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		lg.Warn("Breeze request failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return nil, errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	lg.Debug("Breeze request",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(method, logPath, resp.StatusCode, raw)
	}
	return raw, nil
}
