package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Migration is one forward schema step.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

// migrationLockKey serializes Migrate between the server and the worker,
// which both migrate on start.
const migrationLockKey int64 = 0x7468657369 // "thesi"

// Migrator applies pending migrations tracked in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator returns a migrator for the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

// Migrate applies every pending migration in one transaction under an
// advisory lock. A failing step leaves the schema untouched.
func (m *Migrator) Migrate(ctx context.Context) error {
	return m.conn.WithTx(ctx, writeTx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
			return fmt.Errorf("%w: acquire lock: %v", ErrMigrationFailed, err)
		}
		if _, err := tx.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`); err != nil {
			return fmt.Errorf("%w: ensure table: %v", ErrMigrationFailed, err)
		}

		applied, err := appliedVersions(ctx, tx)
		if err != nil {
			return err
		}
		for _, mig := range m.migrations {
			if applied[mig.Version] {
				continue
			}
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("%w: %03d_%s: %v", ErrMigrationFailed, mig.Version, mig.Name, err)
			}
			if _, err := tx.Exec(ctx,
				"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
				mig.Version, mig.Name,
			); err != nil {
				return fmt.Errorf("%w: record %03d: %v", ErrMigrationFailed, mig.Version, err)
			}
		}
		return nil
	})
}

func appliedVersions(ctx context.Context, q Querier) (map[int]bool, error) {
	rows, err := q.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("%w: list applied: %v", ErrMigrationFailed, err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}
