package payment_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/breeze-gateway/internal/domain/order"
	"github.com/xenking/breeze-gateway/internal/domain/payment"
)

func signedWebhook(t *testing.T, secret, eventType, data string) []byte {
	t.Helper()
	sig, err := payment.Sign(secret, []byte(data))
	require.NoError(t, err)
	return fmt.Appendf(nil, `{"type":%q,"signature":%q,"data":%s}`, eventType, sig, data)
}

const succeeded42 = `{"clientReferenceId":"order-42","pageId":"page_abc"}`

func TestHandleWebhook_SuccessMarksPaid(t *testing.T) {
	env := newTestEnv(t)
	o := order42()
	o.Payment.RemoteSessionID = "page_abc"
	env.createOrder(t, o)

	res, err := env.svc.HandleWebhook(context.Background(), signedWebhook(t, testSecret, "PAYMENT_SUCCEEDED", succeeded42))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeCompleted, res.Outcome)
	assert.Equal(t, int64(42), res.OrderID)

	got := env.order(t, 42)
	assert.Equal(t, order.StatusPaid, got.Status)
	assert.Equal(t, "processing", got.Status.HostStatus())
	assert.Equal(t, "page_abc", got.Payment.TransactionID)
	require.Len(t, got.Notes, 1)
	assert.Contains(t, got.Notes[0].Text, "page_abc")

	require.Len(t, env.events.Records(), 1)
	assert.Equal(t, payment.OutcomeCompleted, env.events.Records()[0].Outcome)
	assert.Equal(t, []payment.EventType{payment.EventCompleted}, env.publisher.types())
}

func TestHandleWebhook_DuplicateSuccessIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.createOrder(t, order42())
	body := signedWebhook(t, testSecret, "payment.succeeded", succeeded42)

	_, err := env.svc.HandleWebhook(context.Background(), body)
	require.NoError(t, err)
	res, err := env.svc.HandleWebhook(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeDuplicate, res.Outcome)

	got := env.order(t, 42)
	assert.Len(t, got.Notes, 1)
	assert.Equal(t, []payment.EventType{payment.EventCompleted}, env.publisher.types())
}

func TestHandleWebhook_ConcurrentSuccessAppliesOnce(t *testing.T) {
	env := newTestEnv(t)
	env.createOrder(t, order42())
	body := signedWebhook(t, testSecret, "PAYMENT_SUCCEEDED", succeeded42)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.HandleWebhook(context.Background(), body)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, env.order(t, 42).Notes, 1)
	assert.Equal(t, []payment.EventType{payment.EventCompleted}, env.publisher.types())
}

func TestHandleWebhook_FailureAfterPaidIsIgnored(t *testing.T) {
	for _, typ := range []string{"payment.failed", "PAYMENT_EXPIRED"} {
		t.Run(typ, func(t *testing.T) {
			env := newTestEnv(t)
			o := order42()
			o.Status = order.StatusPaid
			env.createOrder(t, o)

			res, err := env.svc.HandleWebhook(context.Background(), signedWebhook(t, testSecret, typ, succeeded42))
			require.NoError(t, err)
			assert.Equal(t, payment.OutcomeStaleFailure, res.Outcome)
			assert.Equal(t, order.StatusPaid, env.order(t, 42).Status)
		})
	}
}

func TestHandleWebhook_Failure(t *testing.T) {
	env := newTestEnv(t)
	o := order42()
	o.Status = order.StatusAwaitingConfirmation
	env.createOrder(t, o)

	res, err := env.svc.HandleWebhook(context.Background(), signedWebhook(t, testSecret, "PAYMENT_EXPIRED", succeeded42))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeFailed, res.Outcome)
	assert.Equal(t, order.StatusFailed, env.order(t, 42).Status)

	res, err = env.svc.HandleWebhook(context.Background(), signedWebhook(t, testSecret, "PAYMENT_EXPIRED", succeeded42))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeDuplicate, res.Outcome)
	assert.Len(t, env.order(t, 42).Notes, 1)
}

func TestHandleWebhook_LateSuccessResurrectsFailed(t *testing.T) {
	env := newTestEnv(t)
	o := order42()
	o.Status = order.StatusFailed
	env.createOrder(t, o)

	res, err := env.svc.HandleWebhook(context.Background(), signedWebhook(t, testSecret, "PAYMENT_SUCCEEDED", succeeded42))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeCompleted, res.Outcome)
	assert.Equal(t, order.StatusPaid, env.order(t, 42).Status)
}

func TestHandleWebhook_SessionMismatch(t *testing.T) {
	env := newTestEnv(t)
	o := order42()
	o.Payment.RemoteSessionID = "page_other"
	env.createOrder(t, o)

	res, err := env.svc.HandleWebhook(context.Background(), signedWebhook(t, testSecret, "PAYMENT_SUCCEEDED", succeeded42))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeSessionMismatch, res.Outcome)
	assert.Equal(t, order.StatusUnpaid, env.order(t, 42).Status)
	assert.Empty(t, env.publisher.types())
}

func TestHandleWebhook_AcknowledgedWithoutMutation(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		data    string
		outcome payment.Outcome
	}{
		{"unknown type", "payment.refunded", succeeded42, payment.OutcomeIgnoredType},
		{"missing type", "", succeeded42, payment.OutcomeIgnoredType},
		{"unknown order", "PAYMENT_SUCCEEDED", `{"clientReferenceId":"order-43"}`, payment.OutcomeOrderNotFound},
		{"zero order", "PAYMENT_SUCCEEDED", `{"clientReferenceId":"order-0"}`, payment.OutcomeOrderNotFound},
		{"garbage reference", "PAYMENT_SUCCEEDED", `{"clientReferenceId":"cart-x"}`, payment.OutcomeOrderNotFound},
		{"missing reference", "PAYMENT_SUCCEEDED", `{"pageId":"page_abc"}`, payment.OutcomeOrderNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.createOrder(t, order42())

			res, err := env.svc.HandleWebhook(context.Background(), signedWebhook(t, testSecret, tt.typ, tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, order.StatusUnpaid, env.order(t, 42).Status)
			assert.Empty(t, env.publisher.types())
		})
	}
}

func TestHandleWebhook_Rejected(t *testing.T) {
	t.Run("bad signature", func(t *testing.T) {
		env := newTestEnv(t)
		env.createOrder(t, order42())

		_, err := env.svc.HandleWebhook(context.Background(), signedWebhook(t, "wrong", "PAYMENT_SUCCEEDED", succeeded42))
		require.ErrorIs(t, err, payment.ErrInvalidSignature)
		assert.Equal(t, order.StatusUnpaid, env.order(t, 42).Status)
		assert.Empty(t, env.events.Records())
	})

	t.Run("no secret", func(t *testing.T) {
		env := newTestEnv(t, func(cfg *payment.Config) { cfg.WebhookSecret = "" })
		env.createOrder(t, order42())

		for _, secret := range []string{"", testSecret} {
			_, err := env.svc.HandleWebhook(context.Background(), signedWebhook(t, secret, "PAYMENT_SUCCEEDED", succeeded42))
			require.ErrorIs(t, err, payment.ErrWebhookSecretMissing)
		}
		assert.Equal(t, order.StatusUnpaid, env.order(t, 42).Status)
	})

	for _, body := range []string{
		``,
		`[]`,
		`{"type":"PAYMENT_SUCCEEDED"}`,
		`{"type":"PAYMENT_SUCCEEDED","signature":"abc"}`,
		`{"type":"PAYMENT_SUCCEEDED","data":{"clientReferenceId":"order-42"}}`,
		`{"type":"PAYMENT_SUCCEEDED","signature":"abc","data":"order-42"}`,
		`{"type":"PAYMENT_SUCCEEDED","signature":1,"data":{}}`,
		`{"type":"PAYMENT_SUCCEEDED","signature":"abc","data":{`,
	} {
		t.Run("malformed "+body, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.svc.HandleWebhook(context.Background(), []byte(body))
			require.ErrorIs(t, err, payment.ErrMalformedWebhook)
		})
	}
}

func TestParseClientReference(t *testing.T) {
	assert.Equal(t, int64(42), payment.ParseClientReference("order-42"))
	assert.Equal(t, int64(42), payment.ParseClientReference("42"))
	assert.Zero(t, payment.ParseClientReference("order--1"))
	assert.Zero(t, payment.ParseClientReference("order-abc"))
	assert.Zero(t, payment.ParseClientReference(""))
	assert.Equal(t, "order-42", payment.ClientReference(42))
}
