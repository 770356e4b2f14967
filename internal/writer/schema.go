package writer

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of *pgxpool.Pool needed to apply the schema.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS time_series (
		ts                    BIGINT PRIMARY KEY,
		received_at           BIGINT NOT NULL,
		requests_per_second   DOUBLE PRECISION NOT NULL,
		average_response_time DOUBLE PRECISION NOT NULL,
		error_rate            DOUBLE PRECISION NOT NULL,
		concurrent_users      INTEGER,
		history               BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS test_updates (
		test_id               TEXT NOT NULL,
		test_type             TEXT NOT NULL,
		status                TEXT NOT NULL,
		progress              DOUBLE PRECISION NOT NULL,
		requests_completed    BIGINT,
		total_requests        BIGINT,
		average_response_time DOUBLE PRECISION,
		error_rate            DOUBLE PRECISION,
		requests_per_second   DOUBLE PRECISION,
		status_codes          JSONB,
		error                 TEXT,
		ts                    BIGINT NOT NULL,
		received_at           BIGINT NOT NULL,
		PRIMARY KEY (test_id, ts, status)
	)`,
}

// EnsureSchema creates the recorder tables if they do not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
