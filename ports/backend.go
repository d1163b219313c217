package ports

import (
	"context"

	"goale/domain/statmap"
)

// ALERequest describes one single-group ALE analysis
type ALERequest struct {
	Name          string
	PeaksPath     string
	VoxelThresh   float64
	ClusterThresh float64
	Seed          int64
	Iterations    int
	OutputDir     string
}

// SubtractionRequest describes "A minus B". Positive values in the result
// mean A exceeds B.
type SubtractionRequest struct {
	Name           string
	PeaksA         string
	PeaksB         string
	VoxelThresh    float64
	ClusterSizeMM3 float64
	Seed           int64
	Iterations     int
	OutputDir      string
}

// ALERunner computes a cluster-corrected ALE map from one peak file.
// Empty peak sets and groups below the minimum experiment count fail with a
// degenerate-input error.
type ALERunner interface {
	RunALE(ctx context.Context, req ALERequest) (*statmap.Map, error)
}

// SubtractionRunner computes a signed difference map between two peak files
type SubtractionRunner interface {
	RunSubtraction(ctx context.Context, req SubtractionRequest) (*statmap.Map, error)
}

// Backend is the statistics engine behind both kinds of analysis
type Backend interface {
	ALERunner
	SubtractionRunner
}

// MapWriter persists a volume to an image file
type MapWriter interface {
	WriteMap(ctx context.Context, v statmap.Volume, path string) error
}

// MapReader loads a volume from an image file
type MapReader interface {
	ReadMap(ctx context.Context, path string) (statmap.Volume, error)
}
