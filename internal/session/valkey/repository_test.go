package sessionvalkey

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsedash/x-connector/internal/serviceerr"
	"github.com/pulsedash/x-connector/internal/session"
)

func newState(id string, expiry time.Time) session.State {
	return session.State{
		ID:           id,
		AccountID:    "account-" + id,
		PKCEVerifier: "verifier-" + id,
		RedirectURI:  "https://app.example.com/callback",
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
		Expiry:       expiry.UTC().Truncate(time.Millisecond),
	}
}

func TestRepository_CreateAndRedeem(t *testing.T) {
	ctx := t.Context()
	repo := NewRepository(valkeyClient, uniquePrefix("repo"))

	state := newState("s1", time.Now().Add(15*time.Minute))
	require.NoError(t, repo.CreateState(ctx, state))

	err := repo.CreateState(ctx, state)
	require.ErrorIs(t, err, serviceerr.ErrConflict)

	got, err := repo.RedeemState(ctx, state.ID)
	require.NoError(t, err)
	assert.Equal(t, state, got)

	_, err = repo.RedeemState(ctx, state.ID)
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)
}

func TestRepository_CreateExpired(t *testing.T) {
	repo := NewRepository(valkeyClient, uniquePrefix("repo-expired"))

	err := repo.CreateState(t.Context(), newState("old", time.Now().Add(-time.Minute)))
	assert.ErrorIs(t, err, ErrStateExpired)
}

func TestRepository_RedeemConcurrently(t *testing.T) {
	ctx := t.Context()
	repo := NewRepository(valkeyClient, uniquePrefix("repo-race"))

	state := newState("race", time.Now().Add(time.Minute))
	require.NoError(t, repo.CreateState(ctx, state))

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for range 8 {
		wg.Go(func() {
			if _, err := repo.RedeemState(ctx, state.ID); err == nil {
				winners.Add(1)
			}
		})
	}
	wg.Wait()

	assert.EqualValues(t, 1, winners.Load())
}

func TestRepository_RestoreState(t *testing.T) {
	ctx := t.Context()
	repo := NewRepository(valkeyClient, uniquePrefix("repo-restore"))

	t.Run("restores a live state", func(t *testing.T) {
		state := newState("live", time.Now().Add(time.Minute))
		require.NoError(t, repo.CreateState(ctx, state))
		_, err := repo.RedeemState(ctx, state.ID)
		require.NoError(t, err)

		require.NoError(t, repo.RestoreState(ctx, state))

		got, err := repo.RedeemState(ctx, state.ID)
		require.NoError(t, err)
		assert.Equal(t, state, got)
	})

	t.Run("skips an expired state", func(t *testing.T) {
		state := newState("gone", time.Now().Add(-time.Second))

		require.NoError(t, repo.RestoreState(ctx, state))

		_, err := repo.RedeemState(ctx, state.ID)
		assert.ErrorIs(t, err, serviceerr.ErrNotFound)
	})
}

func TestRepository_DeleteExpiredStates(t *testing.T) {
	ctx := t.Context()
	repo := NewRepository(valkeyClient, uniquePrefix("repo-purge"))

	now := time.Now()
	soon := newState("soon", now.Add(2*time.Second))
	later := newState("later", now.Add(time.Hour))
	require.NoError(t, repo.CreateState(ctx, soon))
	require.NoError(t, repo.CreateState(ctx, later))

	n, err := repo.DeleteExpiredStates(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	// judged by the recorded expiry, not the key TTL
	n, err = repo.DeleteExpiredStates(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = repo.RedeemState(ctx, soon.ID)
	require.ErrorIs(t, err, serviceerr.ErrNotFound)

	_, err = repo.RedeemState(ctx, later.ID)
	assert.NoError(t, err)
}
