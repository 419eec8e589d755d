package generationinfra

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/culturalsoundlab/soundlab/pkg/errx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS generations (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		job_id          TEXT NOT NULL UNIQUE,
		type            TEXT NOT NULL,
		title           TEXT NOT NULL DEFAULT '',
		parameters      TEXT NOT NULL DEFAULT '{}',
		status          TEXT NOT NULL,
		progress        INTEGER NOT NULL DEFAULT 0,
		result_url      TEXT NOT NULL DEFAULT '',
		error_message   TEXT NOT NULL DEFAULT '',
		processing_time DOUBLE PRECISION NOT NULL DEFAULT 0,
		metadata        TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMP NOT NULL,
		updated_at      TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS generations_user_created_idx ON generations (user_id, created_at DESC)`,
}

// Migrate creates the generations table when it does not exist. The
// statements are valid on both Postgres and SQLite.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errx.Wrap(err, "migrate generations schema", errx.TypeInternal)
		}
	}
	return nil
}
