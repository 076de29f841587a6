package sessionmock

import (
	"context"
	"sync"
	"time"

	"github.com/pulsedash/x-connector/internal/serviceerr"
	"github.com/pulsedash/x-connector/internal/session"
)

type RepositoryOption func(*Repository)

// Repository is an in-memory session.Repository with injectable failures.
type Repository struct {
	mu     sync.Mutex
	states map[string]session.State

	createStateErr, redeemStateErr, restoreStateErr, purgeErr error

	restored int
}

func WithState(state session.State) RepositoryOption {
	return func(r *Repository) { r.states[state.ID] = state }
}
func WithCreateStateError(err error) RepositoryOption {
	return func(r *Repository) { r.createStateErr = err }
}
func WithRedeemStateError(err error) RepositoryOption {
	return func(r *Repository) { r.redeemStateErr = err }
}
func WithRestoreStateError(err error) RepositoryOption {
	return func(r *Repository) { r.restoreStateErr = err }
}
func WithPurgeError(err error) RepositoryOption {
	return func(r *Repository) { r.purgeErr = err }
}

var _ = session.Repository(&Repository{})

func NewInMemRepository(opts ...RepositoryOption) *Repository {
	r := &Repository{
		states: make(map[string]session.State),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Repository) CreateState(_ context.Context, state session.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createStateErr != nil {
		return r.createStateErr
	}
	if _, ok := r.states[state.ID]; ok {
		return serviceerr.ErrConflict
	}
	r.states[state.ID] = state
	return nil
}

func (r *Repository) RedeemState(_ context.Context, stateID string) (session.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.redeemStateErr != nil {
		return session.State{}, r.redeemStateErr
	}
	state, ok := r.states[stateID]
	if !ok {
		return session.State{}, serviceerr.ErrNotFound
	}
	delete(r.states, stateID)
	return state, nil
}

func (r *Repository) RestoreState(_ context.Context, state session.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.restored++
	if r.restoreStateErr != nil {
		return r.restoreStateErr
	}
	if _, ok := r.states[state.ID]; ok {
		return serviceerr.ErrConflict
	}
	r.states[state.ID] = state
	return nil
}

func (r *Repository) DeleteExpiredStates(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.purgeErr != nil {
		return 0, r.purgeErr
	}
	var n int
	for id, state := range r.states {
		if state.Expired(now) {
			delete(r.states, id)
			n++
		}
	}
	return n, nil
}

// State returns the stored state without redeeming it.
func (r *Repository) State(stateID string) (session.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[stateID]
	return state, ok
}

// Len returns the number of stored states.
func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.states)
}

// Restored returns how often RestoreState was called.
func (r *Repository) Restored() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.restored
}
