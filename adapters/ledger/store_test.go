package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goale/domain/core"
	"goale/domain/run"
	apperrors "goale/internal/errors"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func manifest() *run.Manifest {
	return run.NewManifest(core.NewRunID(), core.TableHash("t"), core.PlanHash("p"), 1234, "test")
}

func TestStore_ManifestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	m := manifest()
	require.NoError(t, s.RecordManifest(ctx, m))

	got, err := s.Manifest(ctx, m.RunID)
	require.NoError(t, err)
	assert.Equal(t, m.Fingerprint, got.Fingerprint)
	assert.Equal(t, m.Seed, got.Seed)
	assert.True(t, m.CreatedAt.Equal(got.CreatedAt))
	assert.NoError(t, got.Validate())
}

func TestStore_OutcomesInRecordingOrder(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	m := manifest()
	require.NoError(t, s.RecordManifest(ctx, m))

	recorded := []run.Outcome{
		run.Succeeded(run.UnitExport, "visual", map[string]string{"peaks": "visual.txt"}, time.Millisecond),
		run.Failed(run.UnitALE, "nvisual", fmt.Errorf("wrap: %w", core.ErrTooFewExperiments), 2*time.Second),
		run.Failed(run.UnitSubtraction, "visual_minus_nvisual", core.ErrDependencyFailed, 0),
	}
	for _, o := range recorded {
		require.NoError(t, s.RecordOutcome(ctx, m.RunID, o))
	}

	got, err := s.Outcomes(ctx, m.RunID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "visual.txt", got[0].Files["peaks"])
	assert.Equal(t, run.StatusFailed, got[1].Status)
	assert.Equal(t, apperrors.CodeDegenerateInput, got[1].ErrorCode)
	assert.Equal(t, 2*time.Second, got[1].Duration)
	assert.Equal(t, run.StatusSkipped, got[2].Status)
}

func TestStore_OutcomesAreAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	m := manifest()
	require.NoError(t, s.RecordManifest(ctx, m))

	o := run.Succeeded(run.UnitALE, "visual", nil, time.Second)
	require.NoError(t, s.RecordOutcome(ctx, m.RunID, o))
	err := s.RecordOutcome(ctx, m.RunID, o)
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.GetCode(err))
}

func TestStore_UnknownRun(t *testing.T) {
	_, err := openMemory(t).Manifest(context.Background(), core.RunID("missing"))
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeNotFound, appErr.Code)
}

func TestStore_FileDatabaseReopens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	m := manifest()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.RecordManifest(ctx, m))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Manifest(ctx, m.RunID)
	assert.NoError(t, err)
}
