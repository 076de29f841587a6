package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/require"

	"github.com/pulsedash/x-connector/internal/account"
	accountmemory "github.com/pulsedash/x-connector/internal/account/memory"
	"github.com/pulsedash/x-connector/internal/config"
	"github.com/pulsedash/x-connector/internal/identity"
	"github.com/pulsedash/x-connector/internal/session"
	sessionmemory "github.com/pulsedash/x-connector/internal/session/memory"
	"github.com/pulsedash/x-connector/internal/xapi"
)

const (
	testSecret      = "0123456789abcdef0123456789abcdef" // NOSONAR
	testIssuer      = "https://auth.example.com/auth/v1"
	testAccountID   = "account-1"
	testAllowedOrig = "http://localhost:5173"

	tokenResponseOK = `{"access_token":"access-1","token_type":"bearer","refresh_token":"refresh-1","expires_in":7200,"scope":"tweet.read users.read offline.access"}`

	meResponse = `{"data":{"id":"42","name":"Jane","username":"jane","profile_image_url":"https://pbs.example.com/jane.png",
		"public_metrics":{"followers_count":120,"following_count":80}}}`

	tweetsResponse = `{"data":[
		{"id":"t1","text":"first","created_at":"2026-10-01T12:00:00Z","public_metrics":{"like_count":1,"impression_count":100}},
		{"id":"t2","text":"second","created_at":"2026-10-02T12:00:00Z","public_metrics":{"like_count":3,"retweet_count":1}}],
		"meta":{"result_count":2}}`
)

// upstream fakes the provider's token endpoint and the X API.
type upstream struct {
	*httptest.Server

	tokenCalls atomic.Int32
	tokenBody  string
	tokenCode  int
	apiStatus  int
}

func startUpstream(t *testing.T) *upstream {
	t.Helper()

	u := &upstream{tokenBody: tokenResponseOK, tokenCode: http.StatusOK, apiStatus: http.StatusOK}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/oauth2/token":
			u.tokenCalls.Add(1)
			w.WriteHeader(u.tokenCode)
			_, _ = w.Write([]byte(u.tokenBody))
		case r.Header.Get("Authorization") != "Bearer access-1":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"title":"Unauthorized","detail":"Unauthorized"}`))
		case u.apiStatus != http.StatusOK:
			w.WriteHeader(u.apiStatus)
		case r.URL.Path == "/2/users/me":
			_, _ = w.Write([]byte(meResponse))
		case r.URL.Path == "/2/users/42/tweets":
			_, _ = w.Write([]byte(tweetsResponse))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(u.Close)

	return u
}

type testEnv struct {
	handler  http.Handler
	upstream *upstream
	sessions *sessionmemory.Repository
	accounts *accountmemory.Repository
	svc      Services
	cfg      *config.Config
}

func testConfig(upstreamURL string) *config.Config {
	return &config.Config{
		BaseConfig: commoncfg.BaseConfig{
			Application: commoncfg.Application{Name: "test-app"},
		},
		HTTP: config.HTTPServer{Address: "localhost:0", ShutdownTimeout: time.Second},
		Linking: config.Linking{
			ClientID:        commoncfg.SourceRef{Source: "embedded", Value: "client-id"},
			ClientSecret:    commoncfg.SourceRef{Source: "embedded", Value: "client-secret"},
			AuthURL:         "https://x.example.com/i/oauth2/authorize",
			TokenURL:        upstreamURL + "/oauth2/token",
			RedirectOrigin:  "https://app.example.com",
			AllowedOrigins:  []string{testAllowedOrig},
			CallbackPath:    "/callback",
			ReturnTo:        "/dashboard",
			ReturnDelay:     3 * time.Second,
			IdentityCookie:  "access-token",
			UpstreamTimeout: 2 * time.Second,
			MarkerCookie: config.CookieTemplate{
				Name:     "oauth_state",
				Path:     "/",
				Secure:   true,
				SameSite: config.CookieSameSiteLax,
				HTTPOnly: true,
			},
		},
		Identity: config.Identity{
			JWTSecret: commoncfg.SourceRef{Source: "embedded", Value: testSecret},
			Issuer:    testIssuer,
			Audience:  "authenticated",
			Leeway:    time.Second,
		},
		XAPI: config.XAPI{BaseURL: upstreamURL, Timeout: 2 * time.Second},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	up := startUpstream(t)
	cfg := testConfig(up.URL)

	sessions := sessionmemory.NewRepository()
	accounts := accountmemory.NewRepository()

	manager, err := session.NewManager(&cfg.Linking, 15*time.Minute, sessions, nil)
	require.NoError(t, err)

	verifier, err := identity.NewVerifier(cfg.Identity)
	require.NoError(t, err)

	xClient, err := xapi.NewClient(cfg.XAPI)
	require.NoError(t, err)

	svc := Services{
		Sessions: manager,
		Accounts: accounts,
		XAPI:     xClient,
		Identity: verifier,
	}

	srv, err := createHTTPServer(t.Context(), cfg, svc)
	require.NoError(t, err)

	return &testEnv{
		handler:  srv.Handler,
		upstream: up,
		sessions: sessions,
		accounts: accounts,
		svc:      svc,
		cfg:      cfg,
	}
}

// do sends the request through the server and returns the recorded response.
func (e *testEnv) do(r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, r)

	return rec
}

func (e *testEnv) link(t *testing.T, accountID string) {
	t.Helper()

	e.linkWith(t, accountID, "access-1")
}

// linkWith stores an X access token for accountID without going through the
// authorization.
func (e *testEnv) linkWith(t *testing.T, accountID, accessToken string) {
	t.Helper()

	require.NoError(t, e.accounts.SaveTokens(t.Context(), accountID, session.TokenPayload{AccessToken: accessToken}, time.Now()))
}

func (e *testEnv) linked(t *testing.T, accountID string) account.LinkedAccount {
	t.Helper()

	a, err := e.accounts.Get(t.Context(), accountID)
	require.NoError(t, err)

	return a
}

func signToken(t *testing.T, accountID string) string {
	t.Helper()

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: []byte(testSecret)}, (&jose.SignerOptions{}).WithType("JWT"))
	require.NoError(t, err)

	now := time.Now()
	raw, err := jwt.Signed(signer).Claims(jwt.Claims{
		Issuer:   testIssuer,
		Subject:  accountID,
		Audience: jwt.Audience{"authenticated"},
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(time.Hour)),
	}).Serialize()
	require.NoError(t, err)

	return raw
}

func apiRequest(t *testing.T, path, accountID, body string) *http.Request {
	t.Helper()

	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	if accountID != "" {
		r.Header.Set("Authorization", "Bearer "+signToken(t, accountID))
	}

	return r
}
