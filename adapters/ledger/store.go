// Package ledger records run manifests and unit outcomes in SQLite or
// PostgreSQL.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"goale/domain/core"
	"goale/domain/run"
	apperrors "goale/internal/errors"
)

// Store implements ports.LedgerPort
type Store struct {
	db *sqlx.DB
	mu sync.Mutex
}

// Open connects to dsn and applies migrations. postgres:// and
// postgresql:// DSNs use lib/pq; anything else is a SQLite path or
// ":memory:".
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "postgres"
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, apperrors.DatabaseError("open ledger", err)
	}
	if driver == "sqlite" {
		// one connection: ":memory:" databases are per connection
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperrors.DatabaseError("connect ledger", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, apperrors.DatabaseError("migrate ledger", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool
func (s *Store) Close() error { return s.db.Close() }

type manifestRow struct {
	RunID       string `db:"run_id"`
	TableHash   string `db:"table_hash"`
	PlanHash    string `db:"plan_hash"`
	Seed        int64  `db:"seed"`
	CodeVersion string `db:"code_version"`
	Fingerprint string `db:"fingerprint"`
	CreatedAt   string `db:"created_at"`
}

type outcomeRow struct {
	Kind       string `db:"kind"`
	Unit       string `db:"unit"`
	Status     string `db:"status"`
	ErrorCode  string `db:"error_code"`
	Error      string `db:"error"`
	Files      string `db:"files"`
	DurationNS int64  `db:"duration_ns"`
}

// RecordManifest stores the manifest of a new run
func (s *Store) RecordManifest(ctx context.Context, m *run.Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO runs (run_id, table_hash, plan_hash, seed, code_version, fingerprint, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		m.RunID.String(), m.TableHash.String(), m.PlanHash.String(), m.Seed, m.CodeVersion,
		m.Fingerprint.String(), m.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return apperrors.DatabaseError(fmt.Sprintf("record manifest %s", m.RunID), err)
	}
	return nil
}

// RecordOutcome appends the outcome of one unit
func (s *Store) RecordOutcome(ctx context.Context, runID core.RunID, o run.Outcome) error {
	files, err := json.Marshal(o.Files)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var position int
	if err := s.db.GetContext(ctx, &position, s.db.Rebind(`SELECT COUNT(*) FROM outcomes WHERE run_id = ?`), runID.String()); err != nil {
		return apperrors.DatabaseError("count outcomes", err)
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO outcomes (run_id, position, kind, unit, status, error_code, error, files, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		runID.String(), position, string(o.Kind), o.Unit, string(o.Status), o.ErrorCode, o.Error, string(files), int64(o.Duration))
	if err != nil {
		return apperrors.DatabaseError(fmt.Sprintf("record outcome %s %s", o.Kind, o.Unit), err)
	}
	return nil
}

// Manifest loads the manifest of a run
func (s *Store) Manifest(ctx context.Context, runID core.RunID) (*run.Manifest, error) {
	var row manifestRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT run_id, table_hash, plan_hash, seed, code_version, fingerprint, created_at
		FROM runs WHERE run_id = ?`), runID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound(fmt.Sprintf("run %s", runID))
	}
	if err != nil {
		return nil, apperrors.DatabaseError("load manifest", err)
	}

	created, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil {
		return nil, apperrors.DatabaseError("parse manifest timestamp", err)
	}
	return &run.Manifest{
		RunID:       core.RunID(row.RunID),
		TableHash:   core.TableHash(row.TableHash),
		PlanHash:    core.PlanHash(row.PlanHash),
		Seed:        row.Seed,
		CodeVersion: row.CodeVersion,
		Fingerprint: core.Hash(row.Fingerprint),
		CreatedAt:   created,
	}, nil
}

// Outcomes lists a run's outcomes in recording order
func (s *Store) Outcomes(ctx context.Context, runID core.RunID) ([]run.Outcome, error) {
	var rows []outcomeRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT kind, unit, status, error_code, error, files, duration_ns
		FROM outcomes WHERE run_id = ? ORDER BY position`), runID.String())
	if err != nil {
		return nil, apperrors.DatabaseError("load outcomes", err)
	}

	out := make([]run.Outcome, len(rows))
	for i, r := range rows {
		var files map[string]string
		if err := json.Unmarshal([]byte(r.Files), &files); err != nil {
			return nil, apperrors.DatabaseError("decode outcome files", err)
		}
		out[i] = run.Outcome{
			Unit:      r.Unit,
			Kind:      run.UnitKind(r.Kind),
			Status:    run.Status(r.Status),
			ErrorCode: r.ErrorCode,
			Error:     r.Error,
			Files:     files,
			Duration:  time.Duration(r.DurationNS),
		}
	}
	return out, nil
}
