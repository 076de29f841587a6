// Package guard drives the browser side of the account link. It remembers
// the state of the authorization it started and refuses callbacks that do
// not carry it back.
package guard

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/url"
	"sync"

	slogctx "github.com/veqryn/slog-context"

	"github.com/pulsedash/x-connector/internal/serviceerr"
	"github.com/pulsedash/x-connector/internal/session"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhasePendingRedirect
	PhaseAwaitingCallback
	PhaseCompleted
	PhaseRejected
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePendingRedirect:
		return "pending_redirect"
	case PhaseAwaitingCallback:
		return "awaiting_callback"
	case PhaseCompleted:
		return "completed"
	case PhaseRejected:
		return "rejected"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Reason tells why a callback was rejected.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonProviderDenied    Reason = "provider_denied"
	ReasonMissingParameters Reason = "missing_callback_parameters"
	ReasonStateMismatch     Reason = "state_mismatch"
	ReasonMarkerUnavailable Reason = "marker_unavailable"
	ReasonExchangeFailed    Reason = "exchange_failed"
)

const (
	msgStateMismatch     = "Invalid or expired OAuth session. Please try connecting again."
	msgMissingParameters = "Missing code or state parameter."
	msgMarkerUnavailable = "Could not verify the OAuth session. Please try connecting again."
	msgProviderDenied    = "Authorization was denied"
)

type Issuer interface {
	GetAuthURL(ctx context.Context) (session.AuthURL, error)
}

type Exchanger interface {
	ExchangeToken(ctx context.Context, code, state string) (session.TokenPayload, error)
}

// MarkerStore keeps the state of the pending authorization for the current
// browser session.
type MarkerStore interface {
	Set(ctx context.Context, state string) error
	Get(ctx context.Context) (string, bool, error)
	Clear(ctx context.Context) error
}

type IssuerFunc func(ctx context.Context) (session.AuthURL, error)

func (f IssuerFunc) GetAuthURL(ctx context.Context) (session.AuthURL, error) { return f(ctx) }

type ExchangerFunc func(ctx context.Context, code, state string) (session.TokenPayload, error)

func (f ExchangerFunc) ExchangeToken(ctx context.Context, code, state string) (session.TokenPayload, error) {
	return f(ctx, code, state)
}

// Outcome is the terminal result of a callback. Rejections always carry a
// Message and the ReturnTo target.
type Outcome struct {
	Phase    Phase
	Reason   Reason
	Message  string
	ReturnTo string
	Token    *session.TokenPayload
	Err      error
}

func (o Outcome) Completed() bool { return o.Phase == PhaseCompleted }

type Guard struct {
	issuer    Issuer
	exchanger Exchanger
	markers   MarkerStore
	returnTo  string

	mu    sync.Mutex
	phase Phase
}

func New(issuer Issuer, exchanger Exchanger, markers MarkerStore, returnTo string) *Guard {
	return &Guard{
		issuer:    issuer,
		exchanger: exchanger,
		markers:   markers,
		returnTo:  returnTo,
		phase:     PhaseIdle,
	}
}

func (g *Guard) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.phase
}

// Connect requests an authorization URL and remembers its state. It may be
// called from any phase: the marker of an earlier attempt is overwritten and
// that attempt is abandoned.
func (g *Guard) Connect(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	authURL, err := g.issuer.GetAuthURL(ctx)
	if err != nil {
		return "", fmt.Errorf("getting authorization url: %w", err)
	}

	if err := g.markers.Set(ctx, authURL.State); err != nil {
		return "", fmt.Errorf("%w: remembering state: %w", serviceerr.ErrStoreUnavailable, err)
	}

	g.phase = PhasePendingRedirect
	slogctx.Debug(ctx, "Redirecting to the provider")

	return authURL.URL, nil
}

// HandleCallback verifies the provider's redirect and exchanges the code.
// The exchanger is only called when the callback state equals the marker.
func (g *Guard) HandleCallback(ctx context.Context, params url.Values) Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.phase = PhaseAwaitingCallback

	if providerErr := params.Get("error"); providerErr != "" {
		msg := msgProviderDenied + ": " + providerErr
		if desc := params.Get("error_description"); desc != "" {
			msg = msgProviderDenied + ": " + desc
		}

		slogctx.Info(ctx, "Provider returned an error", "error", providerErr)
		return g.reject(ReasonProviderDenied, msg, serviceerr.ErrProviderDenied.WithDetail(providerErr))
	}

	code, state := params.Get("code"), params.Get("state")
	if code == "" || state == "" {
		return g.reject(ReasonMissingParameters, msgMissingParameters, serviceerr.ErrMissingCallbackParameters)
	}

	marker, ok, err := g.markers.Get(ctx)
	if err != nil {
		slogctx.Error(ctx, "Failed to read the state marker", "error", err)
		return g.reject(ReasonMarkerUnavailable, msgMarkerUnavailable, fmt.Errorf("%w: %w", serviceerr.ErrStoreUnavailable, err))
	}

	if !ok || subtle.ConstantTimeCompare([]byte(marker), []byte(state)) != 1 {
		slogctx.Warn(ctx, "Callback state does not match the pending authorization", "marker_present", ok)
		return g.reject(ReasonStateMismatch, msgStateMismatch, serviceerr.ErrInvalidOrExpiredSession)
	}

	token, err := g.exchanger.ExchangeToken(ctx, code, state)

	if clearErr := g.markers.Clear(ctx); clearErr != nil {
		slogctx.Warn(ctx, "Failed to clear the state marker", "error", clearErr)
	}

	if err != nil {
		return g.reject(ReasonExchangeFailed, serviceerr.From(err).Message(), err)
	}

	g.phase = PhaseCompleted

	return Outcome{
		Phase:    PhaseCompleted,
		ReturnTo: g.returnTo,
		Token:    &token,
	}
}

// Logout forgets any pending authorization.
func (g *Guard) Logout(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.markers.Clear(ctx); err != nil {
		return fmt.Errorf("clearing state marker: %w", err)
	}

	g.phase = PhaseIdle

	return nil
}

func (g *Guard) reject(reason Reason, msg string, err error) Outcome {
	g.phase = PhaseRejected

	return Outcome{
		Phase:    PhaseRejected,
		Reason:   reason,
		Message:  msg,
		ReturnTo: g.returnTo,
		Err:      err,
	}
}
