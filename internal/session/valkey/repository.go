package sessionvalkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/pulsedash/x-connector/internal/serviceerr"
	"github.com/pulsedash/x-connector/internal/session"
)

type ObjectType string

const objectTypeState ObjectType = "state"

var (
	ErrCreateState  = errors.New("setting state into storage")
	ErrRedeemState  = errors.New("taking state from store")
	ErrPurgeStates  = errors.New("purging expired states from store")
	ErrStateExpired = session.ErrStateExpired
)

// Repository keeps states as JSON values that expire with the state.
type Repository struct {
	store *store
}

var _ = session.Repository(&Repository{})

func NewRepository(valkeyClient valkey.Client, prefix string) *Repository {
	return &Repository{
		store: newStore(valkeyClient, prefix),
	}
}

func (r *Repository) CreateState(ctx context.Context, state session.State) error {
	ttl := time.Until(state.Expiry)
	if ttl <= 0 {
		return ErrStateExpired
	}

	if err := r.store.Add(ctx, objectTypeState, state.ID, state, ttl); err != nil {
		if errors.Is(err, serviceerr.ErrConflict) {
			return err
		}

		return errors.Join(ErrCreateState, err)
	}

	return nil
}

func (r *Repository) RedeemState(ctx context.Context, stateID string) (session.State, error) {
	var state session.State
	if err := r.store.Take(ctx, objectTypeState, stateID, &state); err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			return session.State{}, err
		}

		return session.State{}, errors.Join(ErrRedeemState, err)
	}

	return state, nil
}

// RestoreState is a no-op for states that expired in the meantime.
func (r *Repository) RestoreState(ctx context.Context, state session.State) error {
	err := r.CreateState(ctx, state)
	if errors.Is(err, ErrStateExpired) {
		slogctx.Debug(ctx, "Not restoring expired state")
		return nil
	}

	return err
}

// DeleteExpiredStates removes states whose recorded expiry has passed but
// whose key TTL has not fired yet.
func (r *Repository) DeleteExpiredStates(ctx context.Context, now time.Time) (int, error) {
	var deleted int64
	err := r.store.Keys(ctx, objectTypeState, func(keys []string) error {
		expired := make([]string, 0, len(keys))
		for _, key := range keys {
			var state session.State
			err := r.store.Get(ctx, key, &state)
			if errors.Is(err, serviceerr.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("getting an element: %w", err)
			}

			if state.Expired(now) {
				expired = append(expired, key)
			}
		}

		n, err := r.store.Destroy(ctx, expired...)
		if err != nil {
			return err
		}

		deleted += n
		return nil
	})
	if err != nil {
		return 0, errors.Join(ErrPurgeStates, err)
	}

	return int(deleted), nil
}
