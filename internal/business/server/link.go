package server

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/pulsedash/x-connector/internal/account"
	"github.com/pulsedash/x-connector/internal/config"
	"github.com/pulsedash/x-connector/internal/serviceerr"
	"github.com/pulsedash/x-connector/internal/session"
)

const defaultCallbackPath = "/callback"

// linker completes an account link: it exchanges the code and stores the
// tokens on the account that requested the authorization. A non-empty
// accountID must own the state.
type linker struct {
	sessions *session.Manager
	accounts account.Repository
	now      func() time.Time
}

func (l *linker) link(ctx context.Context, accountID, code, state string) (session.Linked, error) {
	linked, err := l.sessions.ExchangeFor(ctx, accountID, code, state)
	if err != nil {
		return session.Linked{}, err
	}

	if err := l.accounts.SaveTokens(ctx, linked.AccountID, linked.Token, l.now()); err != nil {
		slogctx.Error(ctx, "Failed to store the linked account", "account_id", linked.AccountID, "error", err)
		return session.Linked{}, fmt.Errorf("%w: saving tokens: %w", serviceerr.ErrStoreUnavailable, err)
	}

	return linked, nil
}

// redirectURI builds the callback URI for an authorization. The request
// origin is used only when it is explicitly allowed.
func redirectURI(cfg config.Linking, origin string) string {
	base := strings.TrimSuffix(cfg.RedirectOrigin, "/")
	if origin != "" && slices.Contains(cfg.AllowedOrigins, origin) {
		base = strings.TrimSuffix(origin, "/")
	}

	return base + callbackPath(cfg)
}

func callbackPath(cfg config.Linking) string {
	if cfg.CallbackPath == "" {
		return defaultCallbackPath
	}

	return cfg.CallbackPath
}

func returnTo(cfg config.Linking) string {
	if cfg.ReturnTo == "" {
		return "/"
	}

	return cfg.ReturnTo
}
