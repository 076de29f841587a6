package server

import (
	"context"
	"errors"
	"net/http"

	slogctx "github.com/veqryn/slog-context"

	"github.com/pulsedash/x-connector/internal/account"
	"github.com/pulsedash/x-connector/internal/config"
	"github.com/pulsedash/x-connector/internal/identity"
	"github.com/pulsedash/x-connector/internal/openapi"
	"github.com/pulsedash/x-connector/internal/serviceerr"
	"github.com/pulsedash/x-connector/internal/session"
	"github.com/pulsedash/x-connector/internal/xapi"
)

// openAPIServer is an implementation of the OpenAPI interface.
type openAPIServer struct {
	linker   *linker
	sManager *session.Manager
	accounts account.Repository
	xClient  *xapi.Client
	linking  config.Linking
}

// Ensure openAPIServer implements [openapi.StrictServerInterface]
var _ openapi.StrictServerInterface = (*openAPIServer)(nil)

func newOpenAPIServer(l *linker, xClient *xapi.Client, linking config.Linking) *openAPIServer {
	return &openAPIServer{
		linker:   l,
		sManager: l.sessions,
		accounts: l.accounts,
		xClient:  xClient,
		linking:  linking,
	}
}

// XOAuth implements openapi.StrictServerInterface.
func (s *openAPIServer) XOAuth(ctx context.Context, request openapi.XOAuthRequestObject) (openapi.XOAuthResponseObject, error) {
	slogctx.Debug(ctx, "XOAuth() called", "action", request.Body.Action)
	defer slogctx.Debug(ctx, "XOAuth() completed")

	caller, ok := identity.CallerFrom(ctx)
	if !ok {
		return xoauthError(serviceerr.ErrUnauthorized), nil
	}

	switch request.Body.Action {
	case openapi.GetAuthURL:
		redirect := redirectURI(s.linking, deref(request.Params.Origin))

		authURL, err := s.sManager.MakeAuthURL(ctx, caller.AccountID, redirect)
		if err != nil {
			slogctx.Error(ctx, "Failed to build the authorization URL", "error", err)
			return xoauthError(err), nil
		}

		return openapi.XOAuthAuthURL200JSONResponse{
			AuthURL: authURL.URL,
			State:   authURL.State,
		}, nil
	case openapi.ExchangeToken:
		linked, err := s.linker.link(ctx, caller.AccountID, deref(request.Body.Code), deref(request.Body.State))
		if err != nil {
			slogctx.Error(ctx, "Failed to exchange the authorization code", "error", err)
			return xoauthError(err), nil
		}

		return toTokenResponse(linked.Token), nil
	default:
		return xoauthError(serviceerr.ErrInvalidAction), nil
	}
}

// XAPI implements openapi.StrictServerInterface.
func (s *openAPIServer) XAPI(ctx context.Context, request openapi.XAPIRequestObject) (openapi.XAPIResponseObject, error) {
	slogctx.Debug(ctx, "XAPI() called", "endpoint", request.Body.Endpoint)
	defer slogctx.Debug(ctx, "XAPI() completed")

	caller, ok := identity.CallerFrom(ctx)
	if !ok {
		return xapiError(serviceerr.ErrUnauthorized), nil
	}

	linked, err := s.accounts.Get(ctx, caller.AccountID)
	switch {
	case errors.Is(err, serviceerr.ErrNotFound), err == nil && !linked.Linked():
		return xapiError(serviceerr.ErrAccountNotLinked), nil
	case err != nil:
		slogctx.Error(ctx, "Failed to load the linked account", "error", err)
		return xapiError(err), nil
	}

	switch request.Body.Endpoint {
	case openapi.User:
		user, err := s.refreshProfile(ctx, linked)
		if err != nil {
			return xapiError(err), nil
		}

		return openapi.XAPIUser200JSONResponse{Data: user}, nil
	case openapi.Tweets:
		resp, err := s.fetchTweets(ctx, linked, request.Body)
		if err != nil {
			return xapiError(err), nil
		}

		return openapi.XAPITweets200JSONResponse(resp), nil
	default:
		return xapiError(serviceerr.ErrInvalidEndpoint), nil
	}
}

// refreshProfile reads the profile from X and copies it onto the account.
// A failed update is logged and does not fail the request.
func (s *openAPIServer) refreshProfile(ctx context.Context, linked account.LinkedAccount) (xapi.User, error) {
	user, err := s.xClient.Me(ctx, linked.AccessToken)
	if err != nil {
		slogctx.Error(ctx, "Failed to fetch the X profile", "error", err)
		return xapi.User{}, err
	}

	if err := s.accounts.UpdateProfile(ctx, linked.AccountID, user, s.linker.now()); err != nil {
		slogctx.Warn(ctx, "Failed to store the X profile", "error", err)
	}

	return user, nil
}

func (s *openAPIServer) fetchTweets(ctx context.Context, linked account.LinkedAccount, body *openapi.XAPIRequest) (openapi.TweetsResponse, error) {
	if linked.XUserID == "" {
		user, err := s.refreshProfile(ctx, linked)
		if err != nil {
			return openapi.TweetsResponse{}, err
		}

		linked.XUserID = user.ID
	}

	query := xapi.TweetsQuery{MaxResults: deref(body.MaxResults)}
	if body.StartTime != nil {
		query.StartTime = *body.StartTime
	}
	if body.EndTime != nil {
		query.EndTime = *body.EndTime
	}

	page, err := s.xClient.UserTweets(ctx, linked.AccessToken, linked.XUserID, query)
	if err != nil {
		slogctx.Error(ctx, "Failed to fetch tweets", "error", err)
		return openapi.TweetsResponse{}, err
	}

	now := s.linker.now()
	scored := make([]xapi.ScoredTweet, 0, len(page.Data))
	rows := make([]account.Tweet, 0, len(page.Data))
	for _, t := range page.Data {
		st := xapi.Score(t)
		scored = append(scored, st)
		rows = append(rows, account.TweetFromScored(linked.AccountID, st, now))
	}

	if err := s.accounts.UpsertTweets(ctx, rows); err != nil {
		slogctx.Warn(ctx, "Failed to store tweets", "count", len(rows), "error", err)
	}

	resp := openapi.TweetsResponse{
		Data:    scored,
		Summary: xapi.Summarize(scored),
	}
	resp.Includes.Users = page.Includes.Users
	resp.Meta.ResultCount = page.Meta.ResultCount
	resp.Meta.NextToken = page.Meta.NextToken

	return resp, nil
}

func toTokenResponse(t session.TokenPayload) openapi.XOAuthToken200JSONResponse {
	resp := openapi.XOAuthToken200JSONResponse{AccessToken: t.AccessToken}
	if t.RefreshToken != "" {
		resp.RefreshToken = &t.RefreshToken
	}
	if t.ExpiresIn > 0 {
		resp.ExpiresIn = &t.ExpiresIn
	}
	if t.TokenType != "" {
		resp.TokenType = &t.TokenType
	}
	if t.Scope != "" {
		resp.Scope = &t.Scope
	}

	return resp
}

func xoauthError(err error) openapi.XOAuthdefaultJSONResponse {
	body, status := toErrorModel(err)
	return openapi.XOAuthdefaultJSONResponse{Body: body, StatusCode: status}
}

func xapiError(err error) openapi.XAPIdefaultJSONResponse {
	body, status := toErrorModel(err)
	return openapi.XAPIdefaultJSONResponse{Body: body, StatusCode: status}
}

// toErrorModel maps err onto its public message. Unclassified errors become
// an unknown error without detail.
func toErrorModel(err error) (model openapi.ErrorModel, httpStatus int) {
	serviceErr := serviceerr.From(err)

	return openapi.ErrorModel{Error: serviceErr.Message()}, serviceErr.HTTPStatus()
}

// requestErrorHandler answers requests whose body could not be decoded.
func requestErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	slogctx.Info(r.Context(), "Rejected malformed request", "error", err)
	writeError(w, serviceerr.ErrInvalidRequest.WithDetail("malformed JSON body"))
}

// responseErrorHandler answers requests failed by a middleware or by
// writing the response.
func responseErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	writeError(w, err)
}

func writeError(w http.ResponseWriter, err error) {
	body, status := toErrorModel(err)
	_ = openapi.XOAuthdefaultJSONResponse{Body: body, StatusCode: status}.VisitXOAuthResponse(w)
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}

	return *p
}
