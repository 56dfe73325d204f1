package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GCSArchiver struct {
	client *storage.Client
	bucket string
	prefix string
}

func NewGCSArchiver(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCSArchiver, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSArchiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (a *GCSArchiver) Close() error {
	return a.client.Close()
}

func (a *GCSArchiver) Archive(ctx context.Context, runID string, paths ...string) ([]string, error) {
	archived := make([]string, 0, len(paths))
	for _, p := range paths {
		name := a.objectName(runID, filepath.Base(p))
		if err := a.uploadFile(ctx, p, name); err != nil {
			return archived, fmt.Errorf("failed to archive %s: %w", filepath.Base(p), err)
		}
		archived = append(archived, fmt.Sprintf("gs://%s/%s", a.bucket, name))
	}
	return archived, nil
}

// List returns the gs:// locations archived for a run.
func (a *GCSArchiver) List(ctx context.Context, runID string) ([]string, error) {
	it := a.client.Bucket(a.bucket).Objects(ctx, &storage.Query{Prefix: a.objectName(runID, "")})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		names = append(names, fmt.Sprintf("gs://%s/%s", a.bucket, attrs.Name))
	}
	return names, nil
}

func (a *GCSArchiver) objectName(runID, file string) string {
	return path.Join(a.prefix, runID) + "/" + file
}

func (a *GCSArchiver) uploadFile(ctx context.Context, localPath, name string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := a.client.Bucket(a.bucket).Object(name).NewWriter(ctx)
	w.ContentType = mime.TypeByExtension(filepath.Ext(localPath))
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to upload file: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize upload: %w", err)
	}
	return nil
}
