// Package postgrestest runs a migrated and seeded PostgreSQL container for
// the repository tests.
package postgrestest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"

	migrations "github.com/pulsedash/x-connector/sql"
)

const (
	image    = "postgres:17-alpine"
	user     = "postgres"
	password = "secret"
	dbName   = "x_connector"
)

// Rows inserted by seed.
const (
	SeedStateID   = "stateid-one"
	SeedAccountID = "account-one"
	SeedXUserID   = "x-user-one"
)

// ExpiryTime is the expiry of the seeded state and token.
//
//nolint:gosmopolitan
var ExpiryTime = time.Now().Add(30 * 24 * time.Hour).Truncate(time.Microsecond).Local()

// Instance is a running container with a pool on the migrated database.
type Instance struct {
	Pool    *pgxpool.Pool
	ConnStr string

	container *postgres.PostgresContainer
}

// Start runs the container, applies the migrations and seeds one state and
// one linked account.
func Start(ctx context.Context) (*Instance, error) {
	container, err := postgres.Run(ctx, image,
		postgres.WithDatabase(dbName),
		postgres.WithUsername(user),
		postgres.WithPassword(password),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("starting postgres container: %w", err)
	}

	inst := &Instance{container: container}

	if err := inst.init(ctx); err != nil {
		return nil, errors.Join(err, container.Terminate(ctx))
	}

	return inst, nil
}

// Stop closes the pool and removes the container.
func (i *Instance) Stop(ctx context.Context) error {
	i.Pool.Close()

	return i.container.Terminate(ctx)
}

func (i *Instance) init(ctx context.Context) error {
	port, err := i.container.MappedPort(ctx, nat.Port("5432"))
	if err != nil {
		return fmt.Errorf("mapping postgres port: %w", err)
	}

	i.ConnStr = fmt.Sprintf("host=localhost user=%s password=%s dbname=%s port=%s sslmode=disable",
		user, password, dbName, port.Port())

	if err := migrate(ctx, i.ConnStr); err != nil {
		return err
	}

	i.Pool, err = pgxpool.New(ctx, i.ConnStr)
	if err != nil {
		return fmt.Errorf("creating pool: %w", err)
	}

	return seed(ctx, i.Pool)
}

func migrate(ctx context.Context, connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	return nil
}

func seed(ctx context.Context, pool *pgxpool.Pool) error {
	b := new(pgx.Batch)
	b.Queue(`INSERT INTO oauth_sessions (state, account_id, code_verifier, redirect_uri, expires_at, created_at)
		VALUES ($1, $2, 'verifier-one', 'http://localhost/callback', $3, now())`,
		SeedStateID, SeedAccountID, ExpiryTime)
	b.Queue(`INSERT INTO linked_accounts (account_id, access_token, refresh_token, token_expires_at, x_user_id, username)
		VALUES ($1, 'token-one', 'refresh-one', $2, $3, 'one')`,
		SeedAccountID, ExpiryTime, SeedXUserID)

	if err := pool.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("seeding: %w", err)
	}

	return nil
}
