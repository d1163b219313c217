package ledger

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type migration struct {
	Version string
	SQL     []string
}

// migrations run in order; applied versions are recorded with a checksum
var migrations = []migration{
	{
		Version: "001_runs",
		SQL: []string{
			`CREATE TABLE IF NOT EXISTS runs (
				run_id       TEXT PRIMARY KEY,
				table_hash   TEXT NOT NULL,
				plan_hash    TEXT NOT NULL,
				seed         BIGINT NOT NULL,
				code_version TEXT NOT NULL,
				fingerprint  TEXT NOT NULL,
				created_at   TEXT NOT NULL
			)`,
		},
	},
	{
		Version: "002_outcomes",
		SQL: []string{
			`CREATE TABLE IF NOT EXISTS outcomes (
				run_id      TEXT NOT NULL REFERENCES runs (run_id),
				position    INTEGER NOT NULL,
				kind        TEXT NOT NULL,
				unit        TEXT NOT NULL,
				status      TEXT NOT NULL,
				error_code  TEXT NOT NULL DEFAULT '',
				error       TEXT NOT NULL DEFAULT '',
				files       TEXT NOT NULL DEFAULT '{}',
				duration_ns BIGINT NOT NULL,
				PRIMARY KEY (run_id, kind, unit)
			)`,
			`CREATE INDEX IF NOT EXISTS outcomes_run_position ON outcomes (run_id, position)`,
		},
	},
}

func checksum(m migration) string {
	h := sha256.New()
	for _, stmt := range m.SQL {
		h.Write([]byte(stmt))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// migrate executes all pending migrations
func migrate(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version  TEXT PRIMARY KEY,
			checksum TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var applied []struct {
		Version  string `db:"version"`
		Checksum string `db:"checksum"`
	}
	if err := db.SelectContext(ctx, &applied, `SELECT version, checksum FROM schema_migrations`); err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	done := make(map[string]string, len(applied))
	for _, a := range applied {
		done[a.Version] = a.Checksum
	}

	for _, m := range migrations {
		if sum, ok := done[m.Version]; ok {
			if sum != checksum(m) {
				return fmt.Errorf("migration %s changed after it was applied", m.Version)
			}
			continue
		}
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		for _, stmt := range m.SQL {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, db.Rebind(`INSERT INTO schema_migrations (version, checksum) VALUES (?, ?)`), m.Version, checksum(m)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
