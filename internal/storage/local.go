package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type LocalArchiver struct {
	dir string
}

func NewLocalArchiver(dir string) *LocalArchiver {
	return &LocalArchiver{dir: dir}
}

func (a *LocalArchiver) Archive(ctx context.Context, runID string, paths ...string) ([]string, error) {
	runDir := filepath.Join(a.dir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	archived := make([]string, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return archived, err
		}
		dst := filepath.Join(runDir, filepath.Base(path))
		if err := copyFile(path, dst); err != nil {
			return archived, fmt.Errorf("failed to archive %s: %w", filepath.Base(path), err)
		}
		archived = append(archived, dst)
	}
	return archived, nil
}

// List returns the archived files of a run.
func (a *LocalArchiver) List(ctx context.Context, runID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	runDir := filepath.Join(a.dir, runID)
	entries, err := os.ReadDir(runDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, filepath.Join(runDir, entry.Name()))
	}
	return files, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
