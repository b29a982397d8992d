// Package local provides a local filesystem storage backend.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fruitsalade/folderserve/internal/fsutil"
	"github.com/fruitsalade/folderserve/internal/metrics"
	"github.com/fruitsalade/folderserve/internal/storage"
)

// Config holds local filesystem backend settings.
type Config struct {
	RootPath   string
	CreateDirs bool
}

// LocalBackend implements storage.Backend using the local filesystem.
// Keys are slash-separated paths relative to the root and may not escape it.
type LocalBackend struct {
	rootPath   string
	createDirs bool
}

// New creates a new local filesystem backend.
func New(cfg Config) (*LocalBackend, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root path is required")
	}
	root, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve root path %s: %w", cfg.RootPath, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) && cfg.CreateDirs {
			if mkErr := os.MkdirAll(root, 0755); mkErr != nil {
				return nil, fmt.Errorf("create root path %s: %w", root, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat root path %s: %w", root, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", root)
	}

	return &LocalBackend{
		rootPath:   root,
		createDirs: cfg.CreateDirs,
	}, nil
}

// Root returns the absolute root path.
func (b *LocalBackend) Root() string { return b.rootPath }

func (b *LocalBackend) fullPath(key string) (string, error) {
	p, err := fsutil.JoinWithinRoot(b.rootPath, key)
	if err != nil {
		return "", fmt.Errorf("key %q: %w", key, err)
	}
	return p, nil
}

// GetObject opens a file, seeks to offset and limits the reader to length
// bytes when length is positive.
func (b *LocalBackend) GetObject(_ context.Context, key string, offset, length int64) (rc io.ReadCloser, n int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation("local", "get", time.Since(start), err == nil) }()

	path, err := b.fullPath(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, fmt.Errorf("open %s: %w", key, storage.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("open %s: %w", key, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("open %s: is a directory", key)
	}

	totalSize := info.Size()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, 0, fmt.Errorf("seek %s: %w", key, err)
		}
	}

	if length > 0 {
		return &limitedReadCloser{
			Reader: io.LimitReader(f, length),
			Closer: f,
		}, length, nil
	}

	returnSize := totalSize - offset
	if returnSize < 0 {
		returnSize = 0
	}
	return f, returnSize, nil
}

// PutObject writes content atomically: a temp file in the target directory
// is renamed over the key, so readers see the old or the new object.
func (b *LocalBackend) PutObject(_ context.Context, key string, body io.Reader, size int64) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation("local", "put", time.Since(start), err == nil) }()

	path, err := b.fullPath(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)

	if b.createDirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dirs for %s: %w", key, err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".folderserve-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, body)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if size >= 0 && written != size {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: wrote %d bytes, expected %d", key, written, size)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", key, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", key, err)
	}

	return nil
}

// DeleteObject removes a file, or a directory if it is empty. The root
// itself is never removed.
func (b *LocalBackend) DeleteObject(_ context.Context, key string) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation("local", "delete", time.Since(start), err == nil) }()

	path, err := b.fullPath(key)
	if err != nil {
		return err
	}
	if path == b.rootPath {
		return fmt.Errorf("delete %q: refusing to remove root", key)
	}
	err = os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Type returns "local".
func (b *LocalBackend) Type() string { return "local" }

// Close is a no-op for local backends.
func (b *LocalBackend) Close() error { return nil }

// limitedReadCloser wraps a LimitReader with a separate Closer.
type limitedReadCloser struct {
	io.Reader
	io.Closer
}
