package session

import (
	"context"
	"fmt"

	slogctx "github.com/veqryn/slog-context"

	"github.com/pulsedash/x-connector/internal/serviceerr"
)

// PurgeExpired deletes states that can no longer be redeemed.
func (m *Manager) PurgeExpired(ctx context.Context) (int, error) {
	n, err := m.states.DeleteExpiredStates(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("%w: purging expired states: %w", serviceerr.ErrStoreUnavailable, err)
	}

	if n > 0 {
		slogctx.Info(ctx, "Purged expired states", "count", n)
	}

	return n, nil
}
