package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"

	"github.com/pulsedash/x-connector/internal/serviceerr"
)

// Exchange redeems the state and trades the authorization code for tokens.
//
// The state is consumed before the upstream call so concurrent exchanges for
// one state cannot both reach the provider. An explicit rejection leaves it
// consumed; a transient failure restores it so the user can retry.
func (m *Manager) Exchange(ctx context.Context, code, stateID string) (Linked, error) {
	return m.ExchangeFor(ctx, "", code, stateID)
}

// ExchangeFor is Exchange on behalf of accountID. A state issued to another
// account is put back and reported as an invalid session before the provider
// is contacted. An empty accountID accepts any owner.
func (m *Manager) ExchangeFor(ctx context.Context, accountID, code, stateID string) (Linked, error) {
	if code == "" || stateID == "" {
		return Linked{}, serviceerr.ErrMissingCallbackParameters
	}

	state, err := m.states.RedeemState(ctx, stateID)
	if errors.Is(err, serviceerr.ErrNotFound) {
		slogctx.Info(ctx, "Unknown or already redeemed state")
		return Linked{}, serviceerr.ErrInvalidOrExpiredSession
	}
	if err != nil {
		slogctx.Error(ctx, "Failed to redeem state", "error", err)
		return Linked{}, fmt.Errorf("%w: redeeming state: %w", serviceerr.ErrStoreUnavailable, err)
	}

	ctx = slogctx.With(ctx, "account_id", state.AccountID)

	// storage TTLs may lag behind the recorded expiry
	if state.Expired(m.now()) {
		slogctx.Info(ctx, "State expired", "expires_at", state.Expiry)
		m.sendLinkFailureAudit(ctx, state.AccountID, "state expired")
		return Linked{}, serviceerr.ErrInvalidOrExpiredSession
	}

	if accountID != "" && state.AccountID != accountID {
		slogctx.Warn(ctx, "State was issued to another account", "caller_account_id", accountID)
		m.restore(ctx, state)
		m.sendLinkFailureAudit(ctx, accountID, "state issued to another account")

		return Linked{}, serviceerr.ErrInvalidOrExpiredSession
	}

	token, err := m.exchangeCode(ctx, state, code)
	if err != nil {
		if isTransient(err) {
			slogctx.Warn(ctx, "Transient failure exchanging the code", "error", err)
			m.restore(ctx, state)

			return Linked{}, fmt.Errorf("%w: %w", serviceerr.ErrUpstreamUnavailable, err)
		}

		slogctx.Warn(ctx, "Upstream rejected the code exchange", "error", err)
		m.sendLinkFailureAudit(ctx, state.AccountID, "code exchange rejected")

		return Linked{}, fmt.Errorf("%w: %w", serviceerr.ErrUpstreamRejected.WithDetail(rejectionDetail(err)), err)
	}

	slogctx.Info(ctx, "Exchanged the auth code for tokens")
	m.sendLinkSuccessAudit(ctx, state.AccountID)

	return Linked{
		AccountID: state.AccountID,
		Token:     token,
	}, nil
}

// restore puts a state back for a retry unless it expired during the
// upstream call.
func (m *Manager) restore(ctx context.Context, state State) {
	if state.Expired(m.now()) {
		slogctx.Info(ctx, "Not restoring state that expired during the exchange", "expires_at", state.Expiry)
		return
	}

	if err := m.states.RestoreState(context.WithoutCancel(ctx), state); err != nil {
		slogctx.Error(ctx, "Failed to restore state", "error", err)
	}
}

func (m *Manager) exchangeCode(ctx context.Context, state State, code string) (TokenPayload, error) {
	cfg := m.oauthConfig(state.RedirectURI)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	tok, err := cfg.Exchange(ctx, code,
		oauth2.VerifierOption(state.PKCEVerifier),
		oauth2.SetAuthURLParam("client_id", cfg.ClientID),
	)
	if err != nil {
		return TokenPayload{}, fmt.Errorf("exchanging code: %w", err)
	}

	payload := TokenPayload{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
	}

	if scope, ok := tok.Extra("scope").(string); ok {
		payload.Scope = scope
	}

	return payload, nil
}

// isTransient reports whether a failed exchange may succeed when retried
// with the same code.
func isTransient(err error) bool {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		if rErr.Response == nil {
			return true
		}

		status := rErr.Response.StatusCode
		return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
	}

	var urlErr *url.Error
	return errors.As(err, &urlErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

func rejectionDetail(err error) string {
	var rErr *oauth2.RetrieveError
	if !errors.As(err, &rErr) {
		return "invalid token response"
	}

	switch {
	case rErr.ErrorCode != "" && rErr.ErrorDescription != "":
		return rErr.ErrorCode + ": " + rErr.ErrorDescription
	case rErr.ErrorCode != "":
		return rErr.ErrorCode
	case rErr.Response != nil:
		return fmt.Sprintf("token endpoint returned status %d", rErr.Response.StatusCode)
	default:
		return "token endpoint rejected the request"
	}
}
