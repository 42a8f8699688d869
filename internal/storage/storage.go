package storage

import (
	"context"
	"fmt"
	"io"

	"whereabouts/internal/config"
)

// Storage is where archival snapshots end up.
type Storage interface {
	// Store writes an object under the given key.
	Store(ctx context.Context, key string, content io.Reader, contentType string) error

	// Retrieve reads an object back by key.
	Retrieve(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks whether an object exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes an object by key.
	Delete(ctx context.Context, key string) error
}

// New builds the storage backend named by the configuration.
func New(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Backend {
	case "local":
		return NewLocalStorage(cfg.LocalPath)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("storage: s3 backend requires a bucket")
		}
		return NewS3Storage(cfg.S3Bucket, cfg.S3Region)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}
