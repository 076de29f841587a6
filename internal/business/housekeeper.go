package business

import (
	"context"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/pulsedash/x-connector/internal/config"
	"github.com/pulsedash/x-connector/internal/session"
)

// HousekeeperMain purges expired OAuth states until ctx is done.
func HousekeeperMain(ctx context.Context, cfg *config.Config) error {
	sessionManager, b, err := initSessionManager(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialise the session manager: %w", err)
	}
	defer b.close()

	return runHousekeeping(ctx, sessionManager, cfg.Housekeeper.TriggerInterval)
}

func runHousekeeping(ctx context.Context, sessionManager *session.Manager, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("housekeeper trigger interval must be positive, got %s", interval)
	}

	c := time.Tick(interval)
	for {
		if _, err := sessionManager.PurgeExpired(ctx); err != nil {
			slogctx.Error(ctx, "Error during state housekeeping", "error", err)
		}

		select {
		case <-c:
			continue
		case <-ctx.Done():
			return nil
		}
	}
}
