package index

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/fruitsalade/folderserve/internal/storage"
)

// Store persists the serialized index document.
type Store interface {
	// Load returns the stored document, or an error wrapping
	// storage.ErrNotFound if none has been saved.
	Load(ctx context.Context) ([]byte, error)
	// Save replaces the stored document. A failed Save must leave the
	// previous document intact.
	Save(ctx context.Context, doc []byte) error
	// Delete removes the stored document.
	Delete(ctx context.Context) error
	// Name identifies the store in logs.
	Name() string
}

// BackendStore keeps the document as a single object in a storage.Backend.
type BackendStore struct {
	backend storage.Backend
	key     string
}

// NewBackendStore returns a store that reads and writes key in backend.
func NewBackendStore(backend storage.Backend, key string) *BackendStore {
	return &BackendStore{backend: backend, key: key}
}

// Load reads the whole object.
func (s *BackendStore) Load(ctx context.Context) ([]byte, error) {
	rc, _, err := s.backend.GetObject(ctx, s.key, 0, 0)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Save writes the whole object.
func (s *BackendStore) Save(ctx context.Context, doc []byte) error {
	return s.backend.PutObject(ctx, s.key, bytes.NewReader(doc), int64(len(doc)))
}

// Delete removes the object.
func (s *BackendStore) Delete(ctx context.Context) error {
	return s.backend.DeleteObject(ctx, s.key)
}

// Name returns "<backend>:<key>".
func (s *BackendStore) Name() string {
	return s.backend.Type() + ":" + s.key
}

// MemoryStore keeps the document in memory. Used by tests and dry runs.
type MemoryStore struct {
	mu  sync.Mutex
	doc []byte
}

// Load returns the last saved document.
func (m *MemoryStore) Load(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), m.doc...), nil
}

// Save stores a copy of doc.
func (m *MemoryStore) Save(_ context.Context, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = append([]byte(nil), doc...)
	return nil
}

// Delete forgets the document.
func (m *MemoryStore) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = nil
	return nil
}

// Name returns "memory".
func (m *MemoryStore) Name() string { return "memory" }
