// Package storage defines the Backend interface for object I/O. The served
// tree itself is read through a local backend; the index document is stored
// through whichever backend the deployment configures.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned (wrapped) when a key does not exist.
var ErrNotFound = errors.New("object not found")

// Backend is the interface for object storage backends.
type Backend interface {
	// GetObject retrieves an object by key with optional range support.
	// If offset=0 and length=0, the entire object is returned. The returned
	// size is the number of bytes the reader will yield.
	GetObject(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error)

	// PutObject stores content under key, replacing any previous object
	// as a whole.
	PutObject(ctx context.Context, key string, body io.Reader, size int64) error

	// DeleteObject removes an object by key. Deleting a missing key is not
	// an error.
	DeleteObject(ctx context.Context, key string) error

	// Type returns the backend type identifier ("local", "s3").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}
