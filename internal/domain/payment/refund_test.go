package payment_test

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/breeze-gateway/internal/breeze"
	"github.com/xenking/breeze-gateway/internal/domain/order"
	"github.com/xenking/breeze-gateway/internal/domain/payment"
)

func paidOrder42() *order.Order {
	o := order42()
	o.Status = order.StatusPaid
	o.Payment.RemoteSessionID = "page_abc123"
	o.Payment.TransactionID = "page_abc123"
	return o
}

func TestRefund(t *testing.T) {
	env := newTestEnv(t)
	env.createOrder(t, paidOrder42())

	var got breeze.RefundRequest
	env.provider.refundFn = func(pageID string, req breeze.RefundRequest) (*breeze.Refund, error) {
		got = req
		return &breeze.Refund{ID: "rf_1"}, nil
	}

	res, err := env.svc.Refund(context.Background(), payment.RefundRequest{
		OrderID: 42,
		Amount:  decimal.RequireFromString("49.99"),
	})
	require.NoError(t, err)
	assert.Equal(t, "rf_1", res.RefundID)
	assert.Equal(t, int64(4999), res.AmountMinor)
	assert.Equal(t, []string{"page_abc123"}, env.provider.refunds)
	assert.Equal(t, breeze.RefundRequest{Amount: 4999}, got)

	o := env.order(t, 42)
	require.Len(t, o.Notes, 1)
	assert.Contains(t, o.Notes[0].Text, "rf_1")
	assert.Contains(t, o.Notes[0].Text, "Reason: N/A")
	assert.Equal(t, order.StatusPaid, o.Status)
	assert.Equal(t, []payment.EventType{payment.EventRefunded}, env.publisher.types())
}

func TestRefund_PartialRepeated(t *testing.T) {
	env := newTestEnv(t)
	env.createOrder(t, paidOrder42())
	env.provider.refundFn = func(string, breeze.RefundRequest) (*breeze.Refund, error) {
		return &breeze.Refund{}, nil
	}

	for range 2 {
		_, err := env.svc.Refund(context.Background(), payment.RefundRequest{
			OrderID: 42,
			Amount:  decimal.RequireFromString("10"),
			Reason:  "damaged",
		})
		require.NoError(t, err)
	}
	o := env.order(t, 42)
	require.Len(t, o.Notes, 2)
	assert.Contains(t, o.Notes[1].Text, "Refund ID: N/A")
	assert.Contains(t, o.Notes[1].Text, "Reason: damaged")
}

func TestRefund_Errors(t *testing.T) {
	t.Run("non positive amount", func(t *testing.T) {
		env := newTestEnv(t)
		env.createOrder(t, paidOrder42())

		for _, amount := range []string{"0", "-1"} {
			_, err := env.svc.Refund(context.Background(), payment.RefundRequest{OrderID: 42, Amount: decimal.RequireFromString(amount)})
			require.ErrorIs(t, err, payment.ErrInvalidRefundAmount)
		}
		assert.Empty(t, env.provider.refunds)
	})

	t.Run("missing session", func(t *testing.T) {
		env := newTestEnv(t)
		env.createOrder(t, order42())

		_, err := env.svc.Refund(context.Background(), payment.RefundRequest{OrderID: 42, Amount: decimal.NewFromInt(1)})
		var missing *payment.MissingSessionError
		require.ErrorAs(t, err, &missing)
		assert.Empty(t, env.provider.refunds)
	})

	t.Run("provider failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.createOrder(t, paidOrder42())
		env.provider.refundFn = func(string, breeze.RefundRequest) (*breeze.Refund, error) {
			return nil, errors.New("declined")
		}

		_, err := env.svc.Refund(context.Background(), payment.RefundRequest{OrderID: 42, Amount: decimal.NewFromInt(1)})
		var refundErr *payment.RefundError
		require.ErrorAs(t, err, &refundErr)
		assert.Contains(t, payment.UserMessage(err), "Breeze dashboard")
		assert.Empty(t, env.order(t, 42).Notes)
		assert.Empty(t, env.publisher.types())
	})

	t.Run("unknown order", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.Refund(context.Background(), payment.RefundRequest{OrderID: 1, Amount: decimal.NewFromInt(1)})
		require.ErrorIs(t, err, order.ErrNotFound)
	})
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, payment.UserMessage(nil))
	assert.Equal(t, "Refund amount must be greater than zero.", payment.UserMessage(payment.ErrInvalidRefundAmount))
	assert.Equal(t, "Payment error: please try again or choose another payment method.",
		payment.UserMessage(errors.New("provider said: secret stuff")))
}
