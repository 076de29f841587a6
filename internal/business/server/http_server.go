package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/pulsedash/x-connector/internal/account"
	"github.com/pulsedash/x-connector/internal/config"
	"github.com/pulsedash/x-connector/internal/identity"
	"github.com/pulsedash/x-connector/internal/openapi"
	"github.com/pulsedash/x-connector/internal/session"
	"github.com/pulsedash/x-connector/internal/xapi"
)

// Services are the collaborators behind the HTTP endpoints.
type Services struct {
	Sessions *session.Manager
	Accounts account.Repository
	XAPI     *xapi.Client
	Identity *identity.Verifier
	// Now defaults to time.Now
	Now func() time.Time
}

// createHTTPServer creates the API and page server using the given config
func createHTTPServer(ctx context.Context, cfg *config.Config, svc Services) (*http.Server, error) {
	metrics, err := newRequestMetrics(ctx, cfg)
	if err != nil {
		return nil, err
	}

	now := svc.Now
	if now == nil {
		now = time.Now
	}

	l := &linker{sessions: svc.Sessions, accounts: svc.Accounts, now: now}

	strictHandler := openapi.NewStrictHandlerWithOptions(
		newOpenAPIServer(l, svc.XAPI, cfg.Linking),
		[]openapi.StrictMiddlewareFunc{
			newAuthMiddleware(svc.Identity, cfg.Linking.IdentityCookie),
			metrics.traceMiddleware(cfg),
		},
		openapi.StrictHTTPServerOptions{
			RequestErrorHandlerFunc:  requestErrorHandler,
			ResponseErrorHandlerFunc: responseErrorHandler,
		},
	)

	p := newPages(l, svc.Identity, cfg.Linking)

	mux := http.NewServeMux()
	mux.Handle("/functions/", corsMiddleware(openapi.Handler(strictHandler)))
	mux.HandleFunc("GET /connect", metrics.tracedHandler(cfg, "Connect", p.connect))
	mux.HandleFunc("GET "+callbackPath(cfg.Linking), metrics.tracedHandler(cfg, "Callback", p.callback))
	mux.HandleFunc("GET /logout", metrics.tracedHandler(cfg, "Logout", p.logout))

	return &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: mux,
	}, nil
}

// StartHTTPServer starts the HTTP server using the given config.
func StartHTTPServer(ctx context.Context, cfg *config.Config, svc Services) error {
	server, err := createHTTPServer(ctx, cfg, svc)
	if err != nil {
		return err
	}

	slogctx.Info(ctx, "Starting a listener", "address", server.Addr)

	// network://address selects the network, e.g. unix:///tmp/x-connector.sock
	network := "tcp"
	if idx := strings.IndexRune(server.Addr, ':'); idx != -1 && len(server.Addr) > idx+3 && server.Addr[idx:idx+3] == "://" {
		network = server.Addr[:idx]
		server.Addr = server.Addr[idx+3:]
	}

	listener, err := new(net.ListenConfig).Listen(ctx, network, server.Addr)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create a listener")
	}

	slogctx.Info(ctx, "A listener started", "address", listener.Addr().String())

	go func() {
		slogctx.Info(ctx, "Serving an HTTP server", "address", listener.Addr().String())
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogctx.Error(ctx, "Failed to serve an HTTP server", "error", err)
		}

		slogctx.Info(ctx, "Stopped an HTTP server")
	}()

	<-ctx.Done()

	shutdownCtx, shutdownRelease := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer shutdownRelease()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed shutting down HTTP server")
	}

	slogctx.Info(ctx, "Completed graceful shutdown of HTTP server")

	return nil
}
