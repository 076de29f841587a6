package business

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"
	slogctx "github.com/veqryn/slog-context"

	"github.com/pulsedash/x-connector/internal/account"
	accountmemory "github.com/pulsedash/x-connector/internal/account/memory"
	accountsql "github.com/pulsedash/x-connector/internal/account/sql"
	"github.com/pulsedash/x-connector/internal/business/server"
	"github.com/pulsedash/x-connector/internal/config"
	"github.com/pulsedash/x-connector/internal/identity"
	"github.com/pulsedash/x-connector/internal/session"
	sessionmemory "github.com/pulsedash/x-connector/internal/session/memory"
	sessionsql "github.com/pulsedash/x-connector/internal/session/sql"
	sessionvalkey "github.com/pulsedash/x-connector/internal/session/valkey"
	"github.com/pulsedash/x-connector/internal/xapi"
)

// Main starts both API servers
func Main(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// errChan is used to capture the first error and shutdown the servers.
	errChan := make(chan error, 2)

	// wg is used to wait for all servers to shutdown.
	var wg sync.WaitGroup

	// start public HTTP API and pages
	wg.Go(func() {
		errChan <- publicMain(ctx, cfg)
	})

	// start internal gRPC health server
	wg.Go(func() {
		errChan <- server.StartGRPCServer(ctx, cfg)
	})

	// wait for any error to initiate the shutdown
	err := <-errChan
	if err != nil {
		slogctx.Error(ctx, "Shutting down servers", "error", err)
	}
	cancel()

	// wait for all servers to shutdown
	wg.Wait()

	return err
}

// publicMain starts the HTTP server.
func publicMain(ctx context.Context, cfg *config.Config) error {
	svc, closeFn, err := initServices(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising services: %w", err)
	}

	defer closeFn()

	return server.StartHTTPServer(ctx, cfg, svc)
}

// backends are the stores selected by the configuration.
type backends struct {
	states   session.Repository
	accounts account.Repository
	closeFns []func()
}

func (b *backends) close() {
	for _, fn := range b.closeFns {
		fn()
	}
}

// initBackends opens the state store named by sessionStore.backend. Linked
// accounts live in PostgreSQL whenever a database is configured.
func initBackends(ctx context.Context, cfg *config.Config) (_ *backends, err error) {
	b := &backends{}
	defer func() {
		if err != nil {
			b.close()
		}
	}()

	var db *pgxpool.Pool
	if cfg.SessionStore.Backend == config.StoreBackendPostgres || cfg.Database.Name != "" {
		db, err = poolFromConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}

		b.closeFns = append(b.closeFns, db.Close)
	}

	switch cfg.SessionStore.Backend {
	case config.StoreBackendValKey, "":
		valkeyClient, err := valkeyClientFromConfig(cfg)
		if err != nil {
			return nil, err
		}

		b.closeFns = append(b.closeFns, valkeyClient.Close)
		b.states = sessionvalkey.NewRepository(valkeyClient, cfg.ValKey.Prefix)
	case config.StoreBackendPostgres:
		b.states = sessionsql.NewRepository(db)
	case config.StoreBackendMemory:
		slogctx.Warn(ctx, "Keeping OAuth states in memory; run a single replica only")
		b.states = sessionmemory.NewRepository()
	default:
		return nil, fmt.Errorf("unknown session store backend %q", cfg.SessionStore.Backend)
	}

	if db != nil {
		b.accounts = accountsql.NewRepository(db)
	} else {
		slogctx.Warn(ctx, "No database configured; linked accounts are kept in memory")
		b.accounts = accountmemory.NewRepository()
	}

	return b, nil
}

func poolFromConfig(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	connStr, err := config.MakeConnStr(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to make dsn from config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgxpool config: %w", err)
	}

	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise pgxpool connection: %w", err)
	}

	return db, nil
}

func valkeyClientFromConfig(cfg *config.Config) (valkey.Client, error) {
	valkeyHost, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to load valkey host: %w", err)
	}

	valkeyUsername, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.User)
	if err != nil {
		return nil, fmt.Errorf("failed to load valkey username: %w", err)
	}

	valkeyPassword, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to load valkey password: %w", err)
	}

	valkeyOpts := valkey.ClientOption{
		InitAddress: []string{string(valkeyHost)},
		Username:    string(valkeyUsername),
		Password:    string(valkeyPassword),
	}

	if cfg.ValKey.SecretRef.Type == commoncfg.MTLSSecretType {
		tlsConfig, err := commoncfg.LoadMTLSConfig(&cfg.ValKey.SecretRef.MTLS)
		if err != nil {
			return nil, fmt.Errorf("failed to load valkey mTLS config from secret ref: %w", err)
		}

		valkeyOpts.TLSConfig = tlsConfig
	}

	valkeyClient, err := valkey.NewClient(valkeyOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create a new valkey client: %w", err)
	}

	return valkeyClient, nil
}

// initSessionManager builds the manager over the configured state store.
// The returned backends must be closed by the caller.
func initSessionManager(ctx context.Context, cfg *config.Config) (*session.Manager, *backends, error) {
	b, err := initBackends(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise the backends: %w", err)
	}

	auditLogger, err := otlpaudit.NewLogger(&cfg.Audit)
	if err != nil {
		b.close()
		return nil, nil, fmt.Errorf("failed to create audit logger: %w", err)
	}

	manager, err := session.NewManager(&cfg.Linking, cfg.SessionStore.TTL, b.states, auditLogger)
	if err != nil {
		b.close()
		return nil, nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	return manager, b, nil
}

func initServices(ctx context.Context, cfg *config.Config) (_ server.Services, closeFn func(), _ error) {
	// the verifier and client fail fast on bad config before anything is opened
	verifier, err := identity.NewVerifier(cfg.Identity)
	if err != nil {
		return server.Services{}, nil, fmt.Errorf("failed to create identity verifier: %w", err)
	}

	xClient, err := xapi.NewClient(cfg.XAPI)
	if err != nil {
		return server.Services{}, nil, fmt.Errorf("failed to create X API client: %w", err)
	}

	manager, b, err := initSessionManager(ctx, cfg)
	if err != nil {
		return server.Services{}, nil, err
	}

	return server.Services{
		Sessions: manager,
		Accounts: b.accounts,
		XAPI:     xClient,
		Identity: verifier,
		Now:      time.Now,
	}, b.close, nil
}
