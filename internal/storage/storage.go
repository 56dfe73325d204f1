package storage

import "context"

// Archiver copies the final artifacts of a run out of its workspace before
// the workspace is released. It returns the archived locations.
type Archiver interface {
	Archive(ctx context.Context, runID string, paths ...string) ([]string, error)
	// List returns the archived locations of a run.
	List(ctx context.Context, runID string) ([]string, error)
}
