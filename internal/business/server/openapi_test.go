package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsedash/x-connector/internal/openapi"
	"github.com/pulsedash/x-connector/internal/serviceerr"
)

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())

	return v
}

func assertAPIError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()

	assert.Equal(t, status, rec.Code, rec.Body.String())
	assert.Equal(t, message, decode[openapi.ErrorModel](t, rec).Error)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

// authorize runs get_auth_url for the account and returns the issued state.
func (e *testEnv) authorize(t *testing.T, accountID, origin string) openapi.AuthURLResponse {
	t.Helper()

	r := apiRequest(t, "/functions/x-oauth", accountID, `{"action":"get_auth_url"}`)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}

	rec := e.do(r)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	return decode[openapi.AuthURLResponse](t, rec)
}

func TestAPI_Preflight(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/functions/x-oauth", "/functions/x-api"} {
		rec := env.do(httptest.NewRequest(http.MethodOptions, path, nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "POST, GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "authorization")
	}
}

func TestAPI_RequestErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		path       string
		accountID  string
		body       string
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "No dashboard token",
			path:       "/functions/x-oauth",
			body:       `{"action":"get_auth_url"}`,
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "missing or invalid credentials: missing authorization",
		},
		{
			name:       "No dashboard token for the X API",
			path:       "/functions/x-api",
			body:       `{"endpoint":"user"}`,
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "missing or invalid credentials: missing authorization",
		},
		{
			name:       "Malformed body",
			path:       "/functions/x-oauth",
			accountID:  testAccountID,
			body:       `{"action":`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "invalid_request: malformed JSON body",
		},
		{
			name:       "Invalid action",
			path:       "/functions/x-oauth",
			accountID:  testAccountID,
			body:       `{"action":"refresh"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "invalid action",
		},
		{
			name:       "Exchange without code",
			path:       "/functions/x-oauth",
			accountID:  testAccountID,
			body:       `{"action":"exchange_token","state":"abc"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "missing code or state parameter",
		},
		{
			name:       "Exchange with unknown state",
			path:       "/functions/x-oauth",
			accountID:  testAccountID,
			body:       `{"action":"exchange_token","code":"abc","state":"unknown"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "invalid or expired OAuth session",
		},
		{
			name:       "Account not linked",
			path:       "/functions/x-api",
			accountID:  testAccountID,
			body:       `{"endpoint":"user"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "X access token not found. Please connect your X account first.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(apiRequest(t, tt.path, tt.accountID, tt.body))
			assertAPIError(t, rec, tt.wantStatus, tt.wantMsg)
		})
	}

	assert.Zero(t, env.upstream.tokenCalls.Load(), "no request may reach the token endpoint")
}

func TestAPI_GetAuthURL(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name         string
		origin       string
		wantRedirect string
	}{
		{name: "Allowed origin", origin: testAllowedOrig, wantRedirect: testAllowedOrig + "/callback"},
		{name: "Unknown origin", origin: "https://evil.example.com", wantRedirect: "https://app.example.com/callback"},
		{name: "No origin", wantRedirect: "https://app.example.com/callback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.authorize(t, testAccountID, tt.origin)

			assert.Len(t, resp.State, 32)

			u, err := url.Parse(resp.AuthURL)
			require.NoError(t, err)
			assert.Equal(t, "x.example.com", u.Host)

			q := u.Query()
			assert.Equal(t, tt.wantRedirect, q.Get("redirect_uri"))
			assert.Equal(t, resp.State, q.Get("state"))
			assert.Equal(t, "S256", q.Get("code_challenge_method"))
			assert.Equal(t, "client-id", q.Get("client_id"))
			assert.Equal(t, "code", q.Get("response_type"))

			_, err = env.sessions.RedeemState(t.Context(), resp.State)
			assert.NoError(t, err, "the state must be stored")
		})
	}
}

func TestAPI_ExchangeToken(t *testing.T) {
	env := newTestEnv(t)
	auth := env.authorize(t, testAccountID, "")

	body := `{"action":"exchange_token","code":"abc","state":"` + auth.State + `"}`
	rec := env.do(apiRequest(t, "/functions/x-oauth", testAccountID, body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[openapi.TokenResponse](t, rec)
	assert.Equal(t, "access-1", got.AccessToken)
	require.NotNil(t, got.RefreshToken)
	assert.Equal(t, "refresh-1", *got.RefreshToken)
	require.NotNil(t, got.ExpiresIn)
	assert.EqualValues(t, 7200, *got.ExpiresIn)

	linked := env.linked(t, testAccountID)
	assert.Equal(t, "access-1", linked.AccessToken)
	assert.Equal(t, "refresh-1", linked.RefreshToken)
	assert.False(t, linked.TokenExpiresAt.IsZero())

	t.Run("replay is rejected", func(t *testing.T) {
		rec := env.do(apiRequest(t, "/functions/x-oauth", testAccountID, body))
		assertAPIError(t, rec, http.StatusBadRequest, "invalid or expired OAuth session")
		assert.EqualValues(t, 1, env.upstream.tokenCalls.Load())
	})
}

func TestAPI_ExchangeToken_OtherCaller(t *testing.T) {
	env := newTestEnv(t)
	auth := env.authorize(t, testAccountID, "")

	body := `{"action":"exchange_token","code":"abc","state":"` + auth.State + `"}`
	rec := env.do(apiRequest(t, "/functions/x-oauth", "account-2", body))
	assertAPIError(t, rec, http.StatusBadRequest, "invalid or expired OAuth session")

	assert.Zero(t, env.upstream.tokenCalls.Load(), "the provider must not be contacted for a foreign state")
	for _, acc := range []string{testAccountID, "account-2"} {
		_, err := env.accounts.Get(t.Context(), acc)
		assert.ErrorIs(t, err, serviceerr.ErrNotFound, "no tokens may be stored for %s", acc)
	}

	// the owner can still complete the authorization
	rec = env.do(apiRequest(t, "/functions/x-oauth", testAccountID, body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "access-1", env.linked(t, testAccountID).AccessToken)
	assert.EqualValues(t, 1, env.upstream.tokenCalls.Load())
}

func TestAPI_ExchangeToken_Upstream(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantStatus  int
		wantRestore bool
	}{
		{
			name:       "Rejected code",
			status:     http.StatusBadRequest,
			body:       `{"error":"invalid_grant","error_description":"code expired"}`,
			wantStatus: http.StatusBadGateway,
		},
		{
			name:        "Provider outage",
			status:      http.StatusServiceUnavailable,
			body:        `{}`,
			wantStatus:  http.StatusServiceUnavailable,
			wantRestore: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.upstream.tokenCode = tt.status
			env.upstream.tokenBody = tt.body

			auth := env.authorize(t, testAccountID, "")

			body := `{"action":"exchange_token","code":"abc","state":"` + auth.State + `"}`
			rec := env.do(apiRequest(t, "/functions/x-oauth", testAccountID, body))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[openapi.ErrorModel](t, rec).Error)

			_, err := env.accounts.Get(t.Context(), testAccountID)
			assert.ErrorIs(t, err, serviceerr.ErrNotFound)

			_, err = env.sessions.RedeemState(t.Context(), auth.State)
			if tt.wantRestore {
				assert.NoError(t, err, "a transient failure keeps the state")
			} else {
				assert.ErrorIs(t, err, serviceerr.ErrNotFound)
			}
		})
	}
}

func TestAPI_XUser(t *testing.T) {
	env := newTestEnv(t)
	env.link(t, testAccountID)

	rec := env.do(apiRequest(t, "/functions/x-api", testAccountID, `{"endpoint":"user"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[openapi.UserResponse](t, rec)
	assert.Equal(t, "42", got.Data.ID)
	assert.Equal(t, "jane", got.Data.Username)
	assert.EqualValues(t, 120, got.Data.PublicMetrics.FollowersCount)

	linked := env.linked(t, testAccountID)
	assert.Equal(t, "42", linked.XUserID)
	assert.Equal(t, "jane", linked.Username)
	assert.EqualValues(t, 80, linked.FollowingCount)
}

func TestAPI_XTweets(t *testing.T) {
	env := newTestEnv(t)
	env.link(t, testAccountID)

	rec := env.do(apiRequest(t, "/functions/x-api", testAccountID, `{"endpoint":"tweets","max_results":5}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[openapi.TweetsResponse](t, rec)
	require.Len(t, got.Data, 2)
	assert.Equal(t, "t1", got.Data[0].ID)
	assert.EqualValues(t, 1, got.Data[0].Engagement)
	assert.EqualValues(t, 100, got.Data[0].Impressions)
	assert.Equal(t, 2, got.Meta.ResultCount)
	assert.Equal(t, 2, got.Summary.TotalTweets)
	assert.EqualValues(t, 5, got.Summary.TotalEngagement)
	assert.NotNil(t, got.Summary.TopTweet)

	assert.Equal(t, "42", env.linked(t, testAccountID).XUserID, "the X user id is discovered on demand")

	stored, err := env.accounts.Tweets(t.Context(), testAccountID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "t2", stored[0].XTweetID, "newest first")
}

func TestAPI_XAPIErrors(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		apiStatus  int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "Invalid endpoint",
			token:      "access-1",
			apiStatus:  http.StatusOK,
			body:       `{"endpoint":"followers"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "invalid endpoint",
		},
		{
			name:       "Revoked X token",
			token:      "revoked",
			apiStatus:  http.StatusOK,
			body:       `{"endpoint":"user"}`,
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "missing or invalid credentials: X access token rejected: Unauthorized",
		},
		{
			name:       "X API outage",
			token:      "access-1",
			apiStatus:  http.StatusServiceUnavailable,
			body:       `{"endpoint":"tweets"}`,
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    "upstream provider unavailable, try again: status 503",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.upstream.apiStatus = tt.apiStatus
			env.linkWith(t, testAccountID, tt.token)

			rec := env.do(apiRequest(t, "/functions/x-api", testAccountID, tt.body))
			assertAPIError(t, rec, tt.wantStatus, tt.wantMsg)
		})
	}
}
