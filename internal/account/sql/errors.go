package accountsql

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pulsedash/x-connector/internal/serviceerr"
)

const pgForeignKeyViolation = "23503"

// handlePgError maps tweets written for an account that is not linked to
// serviceerr.ErrNotFound.
func handlePgError(err error) (error, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return serviceerr.ErrNotFound, true
	}

	return err, false
}
