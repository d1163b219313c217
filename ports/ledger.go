package ports

import (
	"context"

	"goale/domain/core"
	"goale/domain/run"
)

// LedgerWriterPort records what a run did. Writes are append-only.
type LedgerWriterPort interface {
	RecordManifest(ctx context.Context, m *run.Manifest) error
	RecordOutcome(ctx context.Context, runID core.RunID, o run.Outcome) error
}

// LedgerReaderPort provides read-only access to recorded runs
type LedgerReaderPort interface {
	Manifest(ctx context.Context, runID core.RunID) (*run.Manifest, error)
	Outcomes(ctx context.Context, runID core.RunID) ([]run.Outcome, error)
}

// LedgerPort combines read and write access
type LedgerPort interface {
	LedgerWriterPort
	LedgerReaderPort
}

// ReportWriter renders the end-of-run report into a directory and returns
// the files it wrote
type ReportWriter interface {
	WriteReport(ctx context.Context, r *run.Report, dir string) ([]string, error)
}
