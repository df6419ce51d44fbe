package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/breeze-gateway/internal/domain/payment"
)

const (
	insertWebhookEventSQL = `INSERT INTO webhook_events (id, type, order_id, page_id, outcome, received_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	listWebhookEventsSQL = `SELECT id, type, order_id, page_id, outcome, received_at
	FROM webhook_events WHERE order_id = $1 ORDER BY received_at, id`
)

var _ payment.EventLog = (*WebhookEventLog)(nil)

// WebhookEventLog stores verified webhook deliveries.
type WebhookEventLog struct {
	pool *pgxpool.Pool
}

// NewWebhookEventLog returns a WebhookEventLog that uses the given pool.
func NewWebhookEventLog(pool *pgxpool.Pool) *WebhookEventLog {
	return &WebhookEventLog{pool: pool}
}

// Record inserts rec.
func (l *WebhookEventLog) Record(ctx context.Context, rec payment.WebhookRecord) error {
	_, err := l.pool.Exec(ctx, insertWebhookEventSQL,
		rec.ID, rec.Type, rec.OrderID, rec.PageID, string(rec.Outcome), rec.ReceivedAt,
	)
	if err != nil {
		return errors.Wrap(err, "insert webhook event")
	}
	return nil
}

// ListByOrder returns the webhook deliveries recorded for an order, oldest
// first.
func (l *WebhookEventLog) ListByOrder(ctx context.Context, orderID int64) ([]payment.WebhookRecord, error) {
	rows, err := l.pool.Query(ctx, listWebhookEventsSQL, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "query webhook events")
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (payment.WebhookRecord, error) {
		var rec payment.WebhookRecord
		err := row.Scan(&rec.ID, &rec.Type, &rec.OrderID, &rec.PageID, &rec.Outcome, &rec.ReceivedAt)
		return rec, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "collect webhook events")
	}
	return records, nil
}
