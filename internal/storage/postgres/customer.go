package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/breeze-gateway/internal/domain/customer"
)

const (
	getRemoteCustomerSQL = `SELECT remote_customer_id FROM user_remote_customers WHERE user_id = $1`

	upsertRemoteCustomerSQL = `INSERT INTO user_remote_customers (user_id, remote_customer_id)
	VALUES ($1, $2)
	ON CONFLICT (user_id) DO UPDATE
	SET remote_customer_id = EXCLUDED.remote_customer_id, updated_at = now()`
)

var _ customer.Store = (*CustomerStore)(nil)

// CustomerStore links host users to Breeze customers.
type CustomerStore struct {
	pool *pgxpool.Pool
}

// NewCustomerStore returns a CustomerStore that uses the given pool.
func NewCustomerStore(pool *pgxpool.Pool) *CustomerStore {
	return &CustomerStore{pool: pool}
}

// RemoteID returns the Breeze customer id linked to userID.
func (s *CustomerStore) RemoteID(ctx context.Context, userID int64) (string, error) {
	var id string
	if err := s.pool.QueryRow(ctx, getRemoteCustomerSQL, userID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", customer.ErrNotFound
		}
		return "", errors.Wrapf(err, "get remote customer for user %d", userID)
	}
	return id, nil
}

// SetRemoteID links userID to remoteID.
func (s *CustomerStore) SetRemoteID(ctx context.Context, userID int64, remoteID string) error {
	if userID <= 0 {
		return errors.Errorf("invalid user id %d", userID)
	}
	if _, err := s.pool.Exec(ctx, upsertRemoteCustomerSQL, userID, remoteID); err != nil {
		return errors.Wrapf(err, "set remote customer for user %d", userID)
	}
	return nil
}
