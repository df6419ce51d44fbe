package customer

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no remote customer is linked to a user.
var ErrNotFound = errors.New("remote customer not found")

// Store keeps the provider customer id linked to a known host user.
// Guest buyers are never stored.
type Store interface {
	RemoteID(ctx context.Context, userID int64) (string, error)
	SetRemoteID(ctx context.Context, userID int64, remoteID string) error
}

// ReferenceID returns the provider reference for a buyer: user-{id} for known
// users and guest-{orderID} otherwise.
func ReferenceID(userID, orderID int64) string {
	if userID > 0 {
		return "user-" + strconv.FormatInt(userID, 10)
	}
	return "guest-" + strconv.FormatInt(orderID, 10)
}
