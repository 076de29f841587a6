package session

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"

	"github.com/pulsedash/x-connector/internal/serviceerr"
)

// MakeAuthURL starts an authorization for accountID. The returned state is
// also embedded in the URL so the browser can verify the callback on its own.
func (m *Manager) MakeAuthURL(ctx context.Context, accountID, redirectURI string) (AuthURL, error) {
	if accountID == "" {
		return AuthURL{}, serviceerr.ErrUnauthorized
	}

	if redirectURI == "" {
		return AuthURL{}, serviceerr.ErrInvalidRequest.WithDetail("missing redirect uri")
	}

	ctx = slogctx.With(ctx, "account_id", accountID)

	pair, stateID, err := m.pkce.Generate()
	if err != nil {
		slogctx.Error(ctx, "Failed to generate PKCE parameters", "error", err)
		return AuthURL{}, fmt.Errorf("generating pkce parameters: %w", err)
	}

	now := m.now()
	state := State{
		ID:           stateID,
		AccountID:    accountID,
		PKCEVerifier: pair.Verifier,
		RedirectURI:  redirectURI,
		CreatedAt:    now,
		Expiry:       now.Add(m.stateTTL),
	}

	if err := m.states.CreateState(ctx, state); err != nil {
		slogctx.Error(ctx, "Failed to store state", "error", err)
		return AuthURL{}, fmt.Errorf("%w: storing state: %w", serviceerr.ErrStoreUnavailable, err)
	}

	u := m.oauthConfig(redirectURI).AuthCodeURL(state.ID,
		oauth2.SetAuthURLParam("code_challenge", pair.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", pair.Method),
	)

	slogctx.Debug(ctx, "Issued authorization URL", "expires_at", state.Expiry)

	return AuthURL{
		URL:   u,
		State: state.ID,
	}, nil
}
