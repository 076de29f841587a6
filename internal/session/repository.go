package session

import (
	"context"
	"errors"
	"time"
)

// ErrStateExpired is returned by CreateState for a state whose expiry is not
// in the future. Storing it would leave the issued URL without a session.
var ErrStateExpired = errors.New("state already expired")

// Repository stores pending authorizations keyed by state.
//
// Implementations return serviceerr.ErrNotFound for unknown states and
// serviceerr.ErrConflict when creating a state that already exists.
type Repository interface {
	// CreateState inserts a new state. Existing states are never overwritten
	// and expired states are refused with ErrStateExpired.
	CreateState(ctx context.Context, state State) error
	// RedeemState reads and deletes a state as one atomic step. Of several
	// concurrent callers at most one receives the record.
	RedeemState(ctx context.Context, stateID string) (State, error)
	// RestoreState puts back a redeemed state whose exchange failed
	// transiently. A state that expired in the meantime is silently dropped.
	RestoreState(ctx context.Context, state State) error
	// DeleteExpiredStates purges states expired at now and returns their count.
	DeleteExpiredStates(ctx context.Context, now time.Time) (int, error)
}
