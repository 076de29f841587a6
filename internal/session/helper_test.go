package session_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/require"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"

	"github.com/pulsedash/x-connector/internal/config"
	"github.com/pulsedash/x-connector/internal/session"
	sessionmock "github.com/pulsedash/x-connector/internal/session/mock"
)

const (
	testClientID     = "my-client-id"
	testClientSecret = "my-client-secret" // NOSONAR
	testAccountID    = "3f1c2a2e-account"
	testRedirectURI  = "https://app.example.com/callback"

	tokenResponseOK = `{"access_token":"access-1","token_type":"bearer","refresh_token":"refresh-1","expires_in":7200,"scope":"tweet.read users.read offline.access"}`
)

// tokenRequest is what the fake token endpoint received.
type tokenRequest struct {
	Form         url.Values
	User, Secret string
	BasicAuth    bool
}

type tokenServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []tokenRequest
}

func (s *tokenServer) Requests() []tokenRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]tokenRequest(nil), s.requests...)
}

// StartTokenServer serves the token endpoint at /oauth2/token answering with
// status and body.
func StartTokenServer(t *testing.T, status int, body string) *tokenServer {
	t.Helper()

	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/token" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		user, secret, ok := r.BasicAuth()
		ts.mu.Lock()
		ts.requests = append(ts.requests, tokenRequest{Form: r.PostForm, User: user, Secret: secret, BasicAuth: ok})
		ts.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)

	return ts
}

func StartAuditServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"success": true}`))
		} else {
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(server.Close)

	return server
}

func newAuditLogger(t *testing.T) *otlpaudit.AuditLogger {
	t.Helper()

	auditServer := StartAuditServer(t)
	auditLogger, err := otlpaudit.NewLogger(&commoncfg.Audit{Endpoint: auditServer.URL})
	require.NoError(t, err)

	return auditLogger
}

func linkingConfig(tokenServerURL string) *config.Linking {
	return &config.Linking{
		ClientID:        commoncfg.SourceRef{Source: "embedded", Value: testClientID},
		ClientSecret:    commoncfg.SourceRef{Source: "embedded", Value: testClientSecret},
		AuthURL:         "https://x.example.com/i/oauth2/authorize",
		TokenURL:        tokenServerURL + "/oauth2/token",
		UpstreamTimeout: 2 * time.Second,
	}
}

func newManager(t *testing.T, tokenServerURL string, repo *sessionmock.Repository, opts ...session.ManagerOption) *session.Manager {
	t.Helper()

	m, err := session.NewManager(linkingConfig(tokenServerURL), 15*time.Minute, repo, newAuditLogger(t), opts...)
	require.NoError(t, err)

	return m
}

// fixedClock returns a clock frozen at now.
func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}
