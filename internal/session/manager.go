package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"
	slogctx "github.com/veqryn/slog-context"

	"github.com/pulsedash/x-connector/internal/config"
	"github.com/pulsedash/x-connector/internal/pkce"
)

const auditComponent = "x-connector"

// Manager issues authorization URLs and exchanges authorization codes
// against the upstream provider, correlating both legs through the
// state repository.
type Manager struct {
	states     Repository
	pkce       pkce.Source
	audit      *otlpaudit.AuditLogger
	httpClient *http.Client

	oauth    oauth2.Config
	stateTTL time.Duration
	now      func() time.Time
}

type ManagerOption func(*Manager)

// WithClock replaces the wall clock used for expiry decisions.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithPKCESource replaces the random source of PKCE pairs and states.
func WithPKCESource(src pkce.Source) ManagerOption {
	return func(m *Manager) { m.pkce = src }
}

// WithHTTPClient sets the client used for the token request.
func WithHTTPClient(c *http.Client) ManagerOption {
	return func(m *Manager) { m.httpClient = c }
}

func NewManager(
	cfg *config.Linking,
	stateTTL time.Duration,
	states Repository,
	auditLogger *otlpaudit.AuditLogger,
	opts ...ManagerOption,
) (*Manager, error) {
	clientID, clientSecret, err := config.ClientCredentials(*cfg)
	if err != nil {
		return nil, fmt.Errorf("loading client credentials: %w", err)
	}

	for _, endpoint := range []string{cfg.AuthURL, cfg.TokenURL} {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parsing upstream endpoint: %w", err)
		}

		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("upstream endpoint %q must be an absolute URL", endpoint)
		}
	}

	if stateTTL <= 0 {
		return nil, errors.New("state ttl must be positive")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = config.DefaultScopes
	}

	m := &Manager{
		states: states,
		audit:  auditLogger,
		oauth: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
			Scopes: scopes,
		},
		stateTTL:   stateTTL,
		now:        time.Now,
		httpClient: &http.Client{Timeout: cfg.UpstreamTimeout},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m, nil
}

// oauthConfig returns the client configuration bound to a redirect URI.
func (m *Manager) oauthConfig(redirectURI string) *oauth2.Config {
	c := m.oauth
	c.RedirectURL = redirectURI

	return &c
}

func (m *Manager) sendLinkSuccessAudit(ctx context.Context, accountID string) {
	if m.audit == nil {
		return
	}

	metadata, err := otlpaudit.NewEventMetadata(auditComponent, accountID, uuid.NewString())
	if err != nil {
		slogctx.Error(ctx, "creating audit metadata", "error", err)
		return
	}

	event, err := otlpaudit.NewUserLoginSuccessEvent(metadata, accountID, otlpaudit.LOGINMETHOD_OPENIDCONNECT, otlpaudit.MFATYPE_NONE, otlpaudit.USERTYPE_BUSINESS, accountID)
	if err != nil {
		slogctx.Error(ctx, "creating audit log", "error", err)
		return
	}

	if err := m.audit.SendEvent(ctx, event); err != nil {
		slogctx.Error(ctx, "Failed to send audit log for account link success", "error", err)
	}
}

// sendLinkFailureAudit logs any errors encountered while creating or sending
// the event but does not propagate them to the caller.
func (m *Manager) sendLinkFailureAudit(ctx context.Context, accountID, reason string) {
	if m.audit == nil {
		slogctx.Warn(ctx, "audit logger is nil; skipping account link failure event")
		return
	}

	metadata, err := otlpaudit.NewEventMetadata(auditComponent, accountID, uuid.NewString())
	if err != nil {
		slogctx.Error(ctx, "creating audit metadata", "error", err)
		return
	}

	event, err := otlpaudit.NewUserLoginFailureEvent(metadata, accountID, otlpaudit.LOGINMETHOD_OPENIDCONNECT, otlpaudit.FailReason(reason), accountID)
	if err != nil {
		slogctx.Error(ctx, "creating audit log", "error", err)
		return
	}

	if err := m.audit.SendEvent(ctx, event); err != nil {
		slogctx.Error(ctx, "Failed to send audit log for account link failure", "error", err)
	}
}
