package sessionsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsedash/x-connector/internal/serviceerr"
	"github.com/pulsedash/x-connector/internal/session"
)

// Repository keeps states in the oauth_sessions table.
type Repository struct {
	db *pgxpool.Pool
}

var _ = session.Repository(&Repository{})

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) CreateState(ctx context.Context, state session.State) error {
	if !time.Now().Before(state.Expiry) {
		return session.ErrStateExpired
	}

	if _, err := r.db.Exec(ctx,
		`INSERT INTO oauth_sessions (state, account_id, code_verifier, redirect_uri, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6);`,
		state.ID, state.AccountID, state.PKCEVerifier, state.RedirectURI, state.Expiry, state.CreatedAt,
	); err != nil {
		if err, ok := handlePgError(err); ok {
			return err
		}

		return fmt.Errorf("inserting into oauth_sessions: %w", err)
	}

	return nil
}

// RedeemState deletes and returns the row in a single statement, so
// concurrent callers race on the row lock and only one sees the row.
func (r *Repository) RedeemState(ctx context.Context, stateID string) (state session.State, _ error) {
	if err := r.db.QueryRow(ctx,
		`DELETE FROM oauth_sessions
WHERE state = $1
RETURNING state, account_id, code_verifier, redirect_uri, expires_at, created_at;`,
		stateID,
	).
		Scan(&state.ID, &state.AccountID, &state.PKCEVerifier, &state.RedirectURI, &state.Expiry, &state.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.State{}, serviceerr.ErrNotFound
		}

		return session.State{}, fmt.Errorf("deleting from oauth_sessions: %w", err)
	}

	return state, nil
}

// RestoreState is a no-op for states that expired in the meantime.
func (r *Repository) RestoreState(ctx context.Context, state session.State) error {
	if err := r.CreateState(ctx, state); !errors.Is(err, session.ErrStateExpired) {
		return err
	}

	return nil
}

func (r *Repository) DeleteExpiredStates(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM oauth_sessions WHERE expires_at <= $1;`, now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired oauth_sessions: %w", err)
	}

	return int(tag.RowsAffected()), nil
}
