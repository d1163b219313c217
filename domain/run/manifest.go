package run

import (
	"crypto/sha256"
	"fmt"
	"time"

	"goale/domain/core"
)

// Manifest is the complete determinism record of a run.
// Two runs with equal fingerprints produce identical statistical maps.
type Manifest struct {
	RunID       core.RunID     `json:"run_id" db:"run_id"`
	TableHash   core.TableHash `json:"table_hash" db:"table_hash"`
	PlanHash    core.PlanHash  `json:"plan_hash" db:"plan_hash"`
	Seed        int64          `json:"seed" db:"seed"`
	CodeVersion string         `json:"code_version" db:"code_version"`
	Fingerprint core.Hash      `json:"fingerprint" db:"fingerprint"`
	CreatedAt   time.Time      `json:"created_at" db:"-"`
}

// NewManifest creates a manifest and computes its fingerprint
func NewManifest(runID core.RunID, tableHash core.TableHash, planHash core.PlanHash, seed int64, codeVersion string) *Manifest {
	return &Manifest{
		RunID:       runID,
		TableHash:   tableHash,
		PlanHash:    planHash,
		Seed:        seed,
		CodeVersion: codeVersion,
		Fingerprint: ComputeFingerprint(tableHash, planHash, seed, codeVersion),
		CreatedAt:   time.Now().UTC(),
	}
}

// ComputeFingerprint hashes every parameter that influences results
func ComputeFingerprint(tableHash core.TableHash, planHash core.PlanHash, seed int64, codeVersion string) core.Hash {
	data := fmt.Sprintf("table:%s|plan:%s|seed:%d|code:%s", tableHash, planHash, seed, codeVersion)
	hash := sha256.Sum256([]byte(data))
	return core.Hash(fmt.Sprintf("%x", hash))
}

// Validate checks if the manifest is complete
func (m *Manifest) Validate() error {
	if core.ID(m.RunID).IsEmpty() {
		return core.NewConfigError(core.ErrConfiguration, "run manifest: run_id cannot be empty")
	}
	if m.TableHash == "" {
		return core.NewConfigError(core.ErrConfiguration, "run manifest: table_hash cannot be empty")
	}
	if m.PlanHash == "" {
		return core.NewConfigError(core.ErrConfiguration, "run manifest: plan_hash cannot be empty")
	}
	if m.CodeVersion == "" {
		return core.NewConfigError(core.ErrConfiguration, "run manifest: code_version cannot be empty")
	}
	if m.Fingerprint != ComputeFingerprint(m.TableHash, m.PlanHash, m.Seed, m.CodeVersion) {
		return fmt.Errorf("run manifest: fingerprint does not match its inputs")
	}
	return nil
}
