package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations[i] upgrades the catalog from version i to i+1. The version is
// tracked in PRAGMA user_version, which is 0 on a fresh database.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS entries (
    name TEXT PRIMARY KEY,
    kind TEXT NOT NULL CHECK (kind IN ('scenario', 'patch')),
    scenario_id TEXT,
    title TEXT,
    event_count INTEGER NOT NULL DEFAULT 0,
    body TEXT NOT NULL,
    source TEXT,
    content_hash TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_kind ON entries(kind);`,

	`CREATE INDEX IF NOT EXISTS idx_entries_scenario_id ON entries(scenario_id);`,
}

// SchemaVersion is the version a database has after InitSchema.
var SchemaVersion = len(migrations)

// InitSchema brings db up to SchemaVersion, applying pending migrations in a
// single transaction. Databases that already hold a catalog are
// integrity-checked first; a database from a newer release is refused.
func InitSchema(ctx context.Context, db *sql.DB) error {
	version, err := userVersion(ctx, db)
	if err != nil {
		return err
	}
	if version > SchemaVersion {
		return fmt.Errorf("catalog schema version %d is newer than supported version %d", version, SchemaVersion)
	}
	if version > 0 {
		if err := ValidateIntegrity(ctx, db); err != nil {
			return fmt.Errorf("database integrity check failed: %w", err)
		}
	}
	if version == SchemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for v := version; v < SchemaVersion; v++ {
		if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
			return fmt.Errorf("migrating catalog to version %d: %w", v+1, err)
		}
	}
	// PRAGMA arguments cannot be bound.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}
	return tx.Commit()
}

func userVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// ValidateIntegrity runs PRAGMA quick_check and fails on the first problem.
func ValidateIntegrity(ctx context.Context, db *sql.DB) error {
	var result string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check(1)`).Scan(&result); err != nil {
		return fmt.Errorf("running quick_check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("quick_check: %s", result)
	}
	return nil
}
