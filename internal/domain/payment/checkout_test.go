package payment_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/breeze-gateway/internal/breeze"
	"github.com/xenking/breeze-gateway/internal/domain/order"
	"github.com/xenking/breeze-gateway/internal/domain/payment"
)

func TestCreateCheckoutSession(t *testing.T) {
	env := newTestEnv(t)
	env.createOrder(t, order42())

	var tokenAtCreate string
	env.provider.pageFn = func(req breeze.PaymentPageRequest) (*breeze.PaymentPage, error) {
		tokenAtCreate = env.order(t, 42).Payment.ReturnToken
		return &breeze.PaymentPage{ID: "page_abc", URL: "https://pay.breeze.cash/page_abc"}, nil
	}

	sess, err := env.svc.CreateCheckoutSession(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "page_abc", sess.ID)
	assert.Equal(t, "https://pay.breeze.cash/page_abc", sess.URL)
	assert.Equal(t, "cus_new", sess.CustomerID)
	assert.Equal(t, "T", tokenAtCreate)

	require.Len(t, env.provider.pages, 1)
	req := env.provider.pages[0]
	assert.Equal(t, "order-42", req.ClientReferenceID)
	assert.Equal(t, "buyer@example.com", req.BillingEmail)
	assert.Equal(t, "cus_new", req.Customer.ID)
	require.Len(t, req.Products, 1)
	assert.Equal(t, int64(7000), req.Products[0].Amount)

	success, err := url.Parse(req.SuccessReturnURL)
	require.NoError(t, err)
	assert.Equal(t, "/breeze/return", success.Path)
	assert.Equal(t, "42", success.Query().Get("orderId"))
	assert.Equal(t, "success", success.Query().Get("status"))
	assert.Equal(t, "T", success.Query().Get("token"))

	fail, err := url.Parse(req.FailReturnURL)
	require.NoError(t, err)
	assert.Equal(t, "failed", fail.Query().Get("status"))

	o := env.order(t, 42)
	assert.Equal(t, order.StatusPendingRemote, o.Status)
	assert.Equal(t, "cus_new", o.Payment.RemoteCustomerID)
	assert.Equal(t, "page_abc", o.Payment.RemoteSessionID)
	assert.Equal(t, "T", o.Payment.ReturnToken)
	require.Len(t, o.Notes, 1)
	assert.Equal(t, []payment.EventType{payment.EventSessionCreated}, env.publisher.types())
}

func TestCreateCheckoutSession_PaymentMethods(t *testing.T) {
	env := newTestEnv(t, func(cfg *payment.Config) {
		cfg.PaymentMethods = []string{"apple_pay", "card"}
	})
	env.createOrder(t, order42())
	env.provider.pageFn = func(breeze.PaymentPageRequest) (*breeze.PaymentPage, error) {
		return &breeze.PaymentPage{ID: "page_abc", URL: "https://pay.breeze.cash/page_abc?locale=en"}, nil
	}

	sess, err := env.svc.CreateCheckoutSession(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.breeze.cash/page_abc?locale=en&preferred_payment_methods=apple_pay,card", sess.URL)
}

func TestCreateCheckoutSession_CustomerResolution(t *testing.T) {
	t.Run("cached known user", func(t *testing.T) {
		env := newTestEnv(t)
		env.createOrder(t, order42())
		require.NoError(t, env.customers.SetRemoteID(context.Background(), 7, "cus_cached"))

		sess, err := env.svc.CreateCheckoutSession(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, "cus_cached", sess.CustomerID)
		assert.Empty(t, env.provider.finds)
		assert.Empty(t, env.provider.creates)
	})

	t.Run("found by email is cached", func(t *testing.T) {
		env := newTestEnv(t)
		env.createOrder(t, order42())
		env.provider.findFn = func(string) (*breeze.Customer, error) {
			return &breeze.Customer{ID: "cus_found"}, nil
		}

		sess, err := env.svc.CreateCheckoutSession(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, "cus_found", sess.CustomerID)
		assert.Empty(t, env.provider.creates)

		id, err := env.customers.RemoteID(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, "cus_found", id)
	})

	t.Run("guest is created and never cached", func(t *testing.T) {
		env := newTestEnv(t)
		o := order42()
		o.UserID = 0
		env.createOrder(t, o)

		_, err := env.svc.CreateCheckoutSession(context.Background(), 42)
		require.NoError(t, err)
		require.Len(t, env.provider.creates, 1)
		assert.Equal(t, "guest-42", env.provider.creates[0].ReferenceID)
		assert.Equal(t, testNow.UnixMilli(), env.provider.creates[0].SignupAt)

		_, err = env.customers.RemoteID(context.Background(), 0)
		assert.Error(t, err)
	})

	t.Run("lookup error falls through to create", func(t *testing.T) {
		env := newTestEnv(t)
		env.createOrder(t, order42())
		env.provider.findFn = func(string) (*breeze.Customer, error) {
			return nil, errors.New("timeout")
		}

		sess, err := env.svc.CreateCheckoutSession(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, "cus_new", sess.CustomerID)
		require.Len(t, env.provider.creates, 1)
		assert.Equal(t, "user-7", env.provider.creates[0].ReferenceID)
	})

	t.Run("create fails", func(t *testing.T) {
		env := newTestEnv(t)
		env.createOrder(t, order42())
		env.provider.createFn = func(breeze.CreateCustomerRequest) (*breeze.Customer, error) {
			return nil, &breeze.APIError{StatusCode: 500, Body: "internal details"}
		}

		_, err := env.svc.CreateCheckoutSession(context.Background(), 42)
		var custErr *payment.CustomerResolutionError
		require.ErrorAs(t, err, &custErr)
		assert.NotContains(t, payment.UserMessage(err), "internal details")

		o := env.order(t, 42)
		assert.Equal(t, order.StatusUnpaid, o.Status)
		assert.Empty(t, o.Payment.ReturnToken)
		assert.Empty(t, env.provider.pages)
	})
}

func TestCreateCheckoutSession_Failures(t *testing.T) {
	t.Run("session without url", func(t *testing.T) {
		env := newTestEnv(t)
		env.createOrder(t, order42())
		env.provider.pageFn = func(breeze.PaymentPageRequest) (*breeze.PaymentPage, error) {
			return &breeze.PaymentPage{ID: "page_abc"}, nil
		}

		_, err := env.svc.CreateCheckoutSession(context.Background(), 42)
		var sessErr *payment.SessionCreationError
		require.ErrorAs(t, err, &sessErr)

		o := env.order(t, 42)
		assert.Equal(t, order.StatusUnpaid, o.Status)
		assert.Empty(t, o.Payment.RemoteSessionID)
		assert.Equal(t, "T", o.Payment.ReturnToken)
		assert.Empty(t, env.publisher.types())
	})

	t.Run("provider error", func(t *testing.T) {
		env := newTestEnv(t)
		env.createOrder(t, order42())
		env.provider.pageFn = func(breeze.PaymentPageRequest) (*breeze.PaymentPage, error) {
			return nil, errors.New("connection reset")
		}

		_, err := env.svc.CreateCheckoutSession(context.Background(), 42)
		var sessErr *payment.SessionCreationError
		require.ErrorAs(t, err, &sessErr)
		assert.Equal(t, "Payment error: failed to create payment page in Breeze.", payment.UserMessage(err))
	})

	t.Run("no payable items", func(t *testing.T) {
		env := newTestEnv(t)
		o := order42()
		o.Items[0].ProductDeleted = true
		env.createOrder(t, o)

		_, err := env.svc.CreateCheckoutSession(context.Background(), 42)
		var itemsErr *payment.LineItemBuildError
		require.ErrorAs(t, err, &itemsErr)
	})

	t.Run("unsupported currency", func(t *testing.T) {
		env := newTestEnv(t)
		o := order42()
		o.Currency = "JPY"
		env.createOrder(t, o)

		_, err := env.svc.CreateCheckoutSession(context.Background(), 42)
		require.ErrorIs(t, err, payment.ErrUnsupportedCurrency)
		assert.Empty(t, env.provider.creates)
	})

	t.Run("already paid", func(t *testing.T) {
		env := newTestEnv(t)
		o := order42()
		o.Status = order.StatusPaid
		env.createOrder(t, o)

		_, err := env.svc.CreateCheckoutSession(context.Background(), 42)
		require.ErrorIs(t, err, payment.ErrAlreadyPaid)
	})

	t.Run("unknown order", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.svc.CreateCheckoutSession(context.Background(), 404)
		require.ErrorIs(t, err, order.ErrNotFound)
		assert.Equal(t, "Order not found.", payment.UserMessage(err))
	})
}

func TestService_Available(t *testing.T) {
	env := newTestEnv(t)
	assert.True(t, env.svc.Available("usd"))
	assert.True(t, env.svc.Available("EUR"))
	assert.False(t, env.svc.Available("GBP"))
}
