// Package sessionmemory keeps states in process memory. It suits a single
// replica and local development; states are lost on restart.
package sessionmemory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/pulsedash/x-connector/internal/serviceerr"
	"github.com/pulsedash/x-connector/internal/session"
)

const cleanupInterval = time.Minute

type Repository struct {
	// mu makes the get and delete pair of RedeemState atomic
	mu    sync.Mutex
	cache *cache.Cache
}

var _ = session.Repository(&Repository{})

func NewRepository() *Repository {
	return &Repository{
		cache: cache.New(cache.NoExpiration, cleanupInterval),
	}
}

func (r *Repository) CreateState(_ context.Context, state session.State) error {
	ttl := time.Until(state.Expiry)
	if ttl <= 0 {
		return session.ErrStateExpired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.cache.Add(state.ID, state, ttl); err != nil {
		return serviceerr.ErrConflict
	}

	return nil
}

func (r *Repository) RedeemState(_ context.Context, stateID string) (session.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.cache.Get(stateID)
	if !ok {
		return session.State{}, serviceerr.ErrNotFound
	}

	r.cache.Delete(stateID)

	state, ok := v.(session.State)
	if !ok {
		return session.State{}, serviceerr.ErrNotFound
	}

	return state, nil
}

func (r *Repository) RestoreState(ctx context.Context, state session.State) error {
	if err := r.CreateState(ctx, state); !errors.Is(err, session.ErrStateExpired) {
		return err
	}

	return nil
}

func (r *Repository) DeleteExpiredStates(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	for id, item := range r.cache.Items() {
		state, ok := item.Object.(session.State)
		if ok && !state.Expired(now) {
			continue
		}

		r.cache.Delete(id)
		n++
	}

	return n, nil
}
