package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/breeze-gateway/internal/domain/order"
)

const (
	orderColumns = `id, status, currency, billing_email, user_id, items,
	shipping_total, shipping_method, discount_total, tax_total,
	COALESCE(remote_customer_id, ''), COALESCE(remote_session_id, ''),
	COALESCE(return_token, ''), COALESCE(transaction_id, ''),
	notes, created_at, updated_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	lockOrderSQL = getOrderSQL + ` FOR UPDATE`

	createOrderSQL = `INSERT INTO orders (id, status, currency, billing_email, user_id, items,
	shipping_total, shipping_method, discount_total, tax_total,
	remote_customer_id, remote_session_id, return_token, transaction_id, notes)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
	NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, ''), $15)
	RETURNING created_at, updated_at`

	updateOrderSQL = `UPDATE orders SET
	status = $2,
	remote_customer_id = NULLIF($3, ''),
	remote_session_id = NULLIF($4, ''),
	return_token = NULLIF($5, ''),
	transaction_id = NULLIF($6, ''),
	notes = $7,
	updated_at = now()
	WHERE id = $1
	RETURNING updated_at`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
// Updates lock the order row for the duration of the transaction.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Items and notes are stored as JSONB.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items, notes, err := marshalLists(o)
	if err != nil {
		return err
	}
	status := o.Status
	if status == "" {
		status = order.StatusUnpaid
	}

	err = r.pool.QueryRow(ctx, createOrderSQL,
		o.ID, status, o.Currency, o.BillingEmail, o.UserID, items,
		o.ShippingTotal, o.ShippingMethod, o.DiscountTotal, o.TaxTotal,
		o.Payment.RemoteCustomerID, o.Payment.RemoteSessionID,
		o.Payment.ReturnToken, o.Payment.TransactionID, notes,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "create order %d", o.ID)
	}
	o.Status = status
	return nil
}

// Get returns the order with the given id.
func (r *OrderRepository) Get(ctx context.Context, id int64) (*order.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, getOrderSQL, id))
	if err != nil {
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	return o, nil
}

// Update applies fn to the order inside a transaction holding its row lock.
func (r *OrderRepository) Update(ctx context.Context, id int64, fn func(o *order.Order) error) (*order.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx, lockOrderSQL, id))
	if err != nil {
		return nil, errors.Wrapf(err, "lock order %d", id)
	}

	if err := fn(o); err != nil {
		if errors.Is(err, order.ErrNoChange) {
			return o, nil
		}
		return nil, err
	}

	_, notes, err := marshalLists(o)
	if err != nil {
		return nil, err
	}
	if err := tx.QueryRow(ctx, updateOrderSQL,
		o.ID, o.Status,
		o.Payment.RemoteCustomerID, o.Payment.RemoteSessionID,
		o.Payment.ReturnToken, o.Payment.TransactionID,
		notes,
	).Scan(&o.UpdatedAt); err != nil {
		return nil, errors.Wrapf(err, "update order %d", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit")
	}
	return o, nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o     order.Order
		items []byte
		notes []byte
	)
	err := row.Scan(
		&o.ID, &o.Status, &o.Currency, &o.BillingEmail, &o.UserID, &items,
		&o.ShippingTotal, &o.ShippingMethod, &o.DiscountTotal, &o.TaxTotal,
		&o.Payment.RemoteCustomerID, &o.Payment.RemoteSessionID,
		&o.Payment.ReturnToken, &o.Payment.TransactionID,
		&notes, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, errors.Wrap(err, "unmarshal items")
	}
	if err := json.Unmarshal(notes, &o.Notes); err != nil {
		return nil, errors.Wrap(err, "unmarshal notes")
	}
	return &o, nil
}

func marshalLists(o *order.Order) (items, notes []byte, err error) {
	if o.Items == nil {
		items = []byte("[]")
	} else if items, err = json.Marshal(o.Items); err != nil {
		return nil, nil, errors.Wrap(err, "marshal items")
	}
	if o.Notes == nil {
		notes = []byte("[]")
	} else if notes, err = json.Marshal(o.Notes); err != nil {
		return nil, nil, errors.Wrap(err, "marshal notes")
	}
	return items, notes, nil
}
