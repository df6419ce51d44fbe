package payment

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	meter    metric.Meter
	sessions metric.Int64Counter
	webhooks metric.Int64Counter
	returns  metric.Int64Counter
	refunds  metric.Int64Counter
}

func (m *metrics) init() error {
	var err error
	if m.sessions, err = m.meter.Int64Counter("breeze.checkout.sessions",
		metric.WithDescription("Checkout session attempts by result"),
	); err != nil {
		return err
	}
	if m.webhooks, err = m.meter.Int64Counter("breeze.webhook.events",
		metric.WithDescription("Verified webhook events by type and outcome"),
	); err != nil {
		return err
	}
	if m.returns, err = m.meter.Int64Counter("breeze.return.visits",
		metric.WithDescription("Browser returns by result"),
	); err != nil {
		return err
	}
	if m.refunds, err = m.meter.Int64Counter("breeze.refunds",
		metric.WithDescription("Refund attempts by result"),
	); err != nil {
		return err
	}
	return nil
}

func count(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}
