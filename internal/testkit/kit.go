package testkit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stretchr/testify/mock"

	"goale/adapters/rng"
	"goale/domain/core"
	"goale/domain/group"
	"goale/domain/run"
	"goale/domain/statmap"
	"goale/internal/errors"
	"goale/ports"
)

// StubVoxelSize keeps stub maps small enough for fast rendering in tests
const StubVoxelSize = 10

// StubBackend is a deterministic stand-in for the ALE engine. Maps are
// filled from the request's seed, so equal requests yield equal maps.
type StubBackend struct {
	// Fail makes the named unit return the given error
	Fail map[string]error

	rng   ports.RNGPort
	grid  statmap.Grid
	mu    sync.Mutex
	calls []string
	seeds map[string]int64
}

// NewStubBackend creates a stub backend on a coarse MNI grid
func NewStubBackend() *StubBackend {
	grid, err := statmap.NewMNIGrid(StubVoxelSize)
	if err != nil {
		panic(err)
	}
	return &StubBackend{
		Fail:  map[string]error{},
		rng:   rng.New(),
		grid:  grid,
		seeds: map[string]int64{},
	}
}

// Calls returns the unit names the stub was asked to run, sorted
func (b *StubBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]string(nil), b.calls...)
	sort.Strings(out)
	return out
}

// Seed returns the seed a unit was last run with
func (b *StubBackend) Seed(name string) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.seeds[name]
	return s, ok
}

// RunALE implements ports.ALERunner
func (b *StubBackend) RunALE(ctx context.Context, req ports.ALERequest) (*statmap.Map, error) {
	b.record(req.Name, req.Seed)
	if err := b.Fail[req.Name]; err != nil {
		return nil, core.NewBackendError(req.Name, err)
	}
	return b.synthesize(ctx, req.Name, statmap.KindALE, req.Seed, req.Iterations)
}

// RunSubtraction implements ports.SubtractionRunner
func (b *StubBackend) RunSubtraction(ctx context.Context, req ports.SubtractionRequest) (*statmap.Map, error) {
	b.record(req.Name, req.Seed)
	if err := b.Fail[req.Name]; err != nil {
		return nil, core.NewBackendError(req.Name, err)
	}
	if req.PeaksA == req.PeaksB {
		return nil, core.NewDegenerateError(core.ErrIdenticalGroups, "%s: both sides read %s", req.Name, req.PeaksA)
	}
	return b.synthesize(ctx, req.Name, statmap.KindSubtraction, req.Seed, req.Iterations)
}

func (b *StubBackend) record(name string, seed int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, name)
	b.seeds[name] = seed
}

func (b *StubBackend) synthesize(ctx context.Context, name string, kind statmap.Kind, seed int64, iterations int) (*statmap.Map, error) {
	r, err := b.rng.SeededStream(ctx, name, seed)
	if err != nil {
		return nil, core.NewBackendError(name, err)
	}
	signed := kind == statmap.KindSubtraction
	z := statmap.NewVolume(b.grid)
	for i := range z.Data {
		z.Data[i] = r.Float64()
		if signed {
			z.Data[i] = 2*z.Data[i] - 1
		}
	}
	// one bright voxel in the left fusiform gyrus
	if i, j, k, ok := b.grid.FromMNI(-44, -58, -14); ok {
		z.Set(i, j, k, 4+r.Float64())
	}

	const cutoff = 3.09
	sign := statmap.Positive
	if signed {
		sign = statmap.TwoSided
	}
	thresh, kept := statmap.KeepClusters(z, statmap.Clusters(z, cutoff, sign), func(statmap.Cluster) bool { return true })
	return &statmap.Map{
		Name:        name,
		Kind:        kind,
		Z:           z,
		Thresholded: thresh,
		VoxelZ:      cutoff,
		Clusters:    kept,
		Seed:        seed,
		Iterations:  iterations,
		Files:       map[string]string{},
	}, nil
}

// MockBackend is a testify mock of ports.Backend
type MockBackend struct {
	mock.Mock
}

// RunALE implements ports.ALERunner
func (m *MockBackend) RunALE(ctx context.Context, req ports.ALERequest) (*statmap.Map, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).(*statmap.Map)
	return out, args.Error(1)
}

// RunSubtraction implements ports.SubtractionRunner
func (m *MockBackend) RunSubtraction(ctx context.Context, req ports.SubtractionRequest) (*statmap.Map, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).(*statmap.Map)
	return out, args.Error(1)
}

// FailingExporter wraps an exporter and fails chosen groups
type FailingExporter struct {
	Inner ports.PeakExporter
	Fail  map[core.GroupName]error
}

// Export implements ports.PeakExporter
func (e *FailingExporter) Export(ctx context.Context, g group.Group, destination string) error {
	if err := e.Fail[g.Name()]; err != nil {
		return core.NewIOError("write", destination, err)
	}
	return e.Inner.Export(ctx, g, destination)
}

// InMemoryLedger implements ports.LedgerPort without a database
type InMemoryLedger struct {
	mu        sync.RWMutex
	manifests map[core.RunID]*run.Manifest
	outcomes  map[core.RunID][]run.Outcome
}

// NewInMemoryLedger creates an empty ledger
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		manifests: make(map[core.RunID]*run.Manifest),
		outcomes:  make(map[core.RunID][]run.Outcome),
	}
}

// RecordManifest stores a manifest once per run
func (l *InMemoryLedger) RecordManifest(ctx context.Context, m *run.Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.manifests[m.RunID]; exists {
		return errors.DatabaseError(fmt.Sprintf("run %s already recorded", m.RunID), nil)
	}
	l.manifests[m.RunID] = m
	return nil
}

// RecordOutcome appends an outcome to a recorded run
func (l *InMemoryLedger) RecordOutcome(ctx context.Context, runID core.RunID, o run.Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.manifests[runID]; !exists {
		return errors.NotFound(fmt.Sprintf("run %s", runID))
	}
	l.outcomes[runID] = append(l.outcomes[runID], o)
	return nil
}

// Manifest returns a recorded manifest
func (l *InMemoryLedger) Manifest(ctx context.Context, runID core.RunID) (*run.Manifest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.manifests[runID]
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("run %s", runID))
	}
	return m, nil
}

// Outcomes returns a run's outcomes in recording order
func (l *InMemoryLedger) Outcomes(ctx context.Context, runID core.RunID) ([]run.Outcome, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.manifests[runID]; !ok {
		return nil, errors.NotFound(fmt.Sprintf("run %s", runID))
	}
	return append([]run.Outcome(nil), l.outcomes[runID]...), nil
}
