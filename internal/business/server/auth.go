package server

import (
	"context"
	"net/http"

	slogctx "github.com/veqryn/slog-context"

	"github.com/pulsedash/x-connector/internal/identity"
	"github.com/pulsedash/x-connector/internal/openapi"
)

// newAuthMiddleware rejects API calls without a valid dashboard token and
// puts the caller into the context of the others.
func newAuthMiddleware(verifier *identity.Verifier, cookieName string) openapi.StrictMiddlewareFunc {
	return func(f openapi.StrictHandlerFunc, operationID string) openapi.StrictHandlerFunc {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request, request any) (any, error) {
			caller, err := verifier.Authenticate(r, cookieName)
			if err != nil {
				slogctx.Info(ctx, "Rejected unauthenticated request", "operation", operationID, "error", err)
				return nil, err
			}

			ctx = slogctx.With(identity.WithCaller(ctx, caller), "account_id", caller.AccountID)

			return f(ctx, w, r, request)
		}
	}
}
