package migrations

import "embed"

// FS holds the goose migrations applied by the migrate command.
//
//go:embed *.sql
var FS embed.FS
