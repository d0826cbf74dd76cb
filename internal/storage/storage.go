package storage

import (
	"context"
	"io"
)

// ObjectStorage is the interface for archiving finished project trees.
type ObjectStorage interface {
	// EnsureBucket creates the bucket if it doesn't exist.
	EnsureBucket(ctx context.Context) error

	// Upload uploads an object to storage.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// GetURL returns the URL for accessing an object.
	GetURL(key string) string
}
