package core

import (
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}
}

func TestParseExperimentID(t *testing.T) {
	id, err := ParseExperimentID("  Smith2010_visual ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "Smith2010_visual" {
		t.Errorf("expected trimmed id, got %q", id)
	}
	if _, err := ParseExperimentID("   "); err == nil {
		t.Error("expected error for blank id")
	}
}

func TestDeriveSeed(t *testing.T) {
	a := DeriveSeed(1234, "visual")
	b := DeriveSeed(1234, "visual")
	if a != b {
		t.Fatalf("DeriveSeed not deterministic: %d vs %d", a, b)
	}
	if a < 0 {
		t.Errorf("derived seed must be non-negative, got %d", a)
	}
	if DeriveSeed(1234, "nvisual") == a {
		t.Error("different keys should derive different seeds")
	}
	if DeriveSeed(1235, "visual") == a {
		t.Error("different base seeds should derive different seeds")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	cfg := NewConfigError(ErrUnknownField, "software")
	if !IsConfigError(cfg) {
		t.Error("unknown field must be a configuration error")
	}
	if IsDegenerateError(cfg) {
		t.Error("configuration error misclassified as degenerate")
	}

	deg := NewDegenerateError(ErrEmptyGroup, "visual")
	if !IsDegenerateError(deg) {
		t.Error("empty group must be a degenerate-input error")
	}

	io := NewIOError("write", "/tmp/x", ErrEmptyGroup)
	if !IsIOError(io) {
		t.Error("expected i/o error")
	}
}
