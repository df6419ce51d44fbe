// Package memory provides in-process implementations of the storage
// interfaces. Each order is guarded by its own mutex.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/breeze-gateway/internal/domain/customer"
	"github.com/xenking/breeze-gateway/internal/domain/order"
	"github.com/xenking/breeze-gateway/internal/domain/payment"
)

type orderEntry struct {
	mu    sync.Mutex
	order *order.Order
}

// OrderRepository is an in-memory order.Repository.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[int64]*orderEntry
	now    func() time.Time
}

var _ order.Repository = (*OrderRepository)(nil)

// NewOrderRepository creates an empty repository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[int64]*orderEntry),
		now:    time.Now,
	}
}

// Create stores a copy of o.
func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return errors.Errorf("order %d already exists", o.ID)
	}
	c := clone(o)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now()
	}
	c.UpdatedAt = c.CreatedAt
	r.orders[o.ID] = &orderEntry{order: c}
	return nil
}

func (r *OrderRepository) entry(id int64) (*orderEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return e, nil
}

// Get returns a copy of the order.
func (r *OrderRepository) Get(_ context.Context, id int64) (*order.Order, error) {
	e, err := r.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return clone(e.order), nil
}

// Update applies fn to a copy of the order under the order mutex.
func (r *OrderRepository) Update(ctx context.Context, id int64, fn func(o *order.Order) error) (*order.Order, error) {
	e, err := r.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := clone(e.order)
	if err := fn(c); err != nil {
		if errors.Is(err, order.ErrNoChange) {
			return clone(e.order), nil
		}
		return nil, err
	}
	c.UpdatedAt = r.now()
	e.order = c
	return clone(c), nil
}

func clone(o *order.Order) *order.Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	c.Notes = slices.Clone(o.Notes)
	return &c
}

// CustomerStore is an in-memory customer.Store.
type CustomerStore struct {
	mu  sync.RWMutex
	ids map[int64]string
}

var _ customer.Store = (*CustomerStore)(nil)

// NewCustomerStore creates an empty store.
func NewCustomerStore() *CustomerStore {
	return &CustomerStore{ids: make(map[int64]string)}
}

// RemoteID returns the linked remote customer id.
func (s *CustomerStore) RemoteID(_ context.Context, userID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.ids[userID]
	if !ok {
		return "", customer.ErrNotFound
	}
	return id, nil
}

// SetRemoteID links userID to remoteID.
func (s *CustomerStore) SetRemoteID(_ context.Context, userID int64, remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[userID] = remoteID
	return nil
}

// EventLog is an in-memory payment.EventLog.
type EventLog struct {
	mu      sync.Mutex
	records []payment.WebhookRecord
}

var _ payment.EventLog = (*EventLog)(nil)

// Record appends rec.
func (l *EventLog) Record(_ context.Context, rec payment.WebhookRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

// Records returns a copy of all records.
func (l *EventLog) Records() []payment.WebhookRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.records)
}

// ListByOrder returns the records of one order in arrival order.
func (l *EventLog) ListByOrder(_ context.Context, orderID int64) ([]payment.WebhookRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []payment.WebhookRecord
	for _, rec := range l.records {
		if rec.OrderID == orderID {
			out = append(out, rec)
		}
	}
	return out, nil
}
