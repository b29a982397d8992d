// Package index maintains a persisted catalog of the served tree: relative
// path to directory flag, size and modification time.
//
// Readers always see a complete snapshot; every mutation builds a new map
// and swaps it in. Mutations (load, full rebuild, reconcile, cleanup) are
// serialized by a writer guard and a second concurrent attempt fails fast
// with ErrBusy.
//
// Reconcile does not notice files deleted from disk. Their entries stay
// until they age past the retention threshold or the next full rebuild.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/folderserve/internal/fsutil"
	"github.com/fruitsalade/folderserve/internal/listing"
	"github.com/fruitsalade/folderserve/internal/logging"
	"github.com/fruitsalade/folderserve/internal/metrics"
	"github.com/fruitsalade/folderserve/internal/storage"
	"github.com/fruitsalade/folderserve/internal/storage/local"
)

// ErrBusy is returned when another mutation holds the writer guard.
var ErrBusy = errors.New("index busy")

// RootKey is the key of the served root.
const RootKey = ""

// DefaultRetention is 180 days.
const DefaultRetention = 180 * 24 * time.Hour

// Entry is the metadata kept for one path.
type Entry struct {
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified_time"`
}

// Options configures an Index.
type Options struct {
	Retention time.Duration
	Now       func() time.Time

	// Files deletes expired entries during cleanup. Defaults to a local
	// backend rooted at the served root.
	Files storage.Backend

	// Exclude lists absolute paths the walk skips, such as the index
	// document itself when it lives inside the served root.
	Exclude []string
}

type snapshot struct {
	entries  map[string]Entry
	children map[string][]string
}

// Index is the file catalog for one served root.
type Index struct {
	root      string
	store     Store
	files     storage.Backend
	retention time.Duration
	now       func() time.Time
	exclude   map[string]bool

	writer sync.Mutex
	snap   atomic.Pointer[snapshot]
}

// New creates an empty index for root. Call Load to read the persisted
// document.
func New(root string, store Store, opts Options) (*Index, error) {
	if store == nil {
		return nil, fmt.Errorf("index store is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Files == nil {
		files, err := local.New(local.Config{RootPath: abs})
		if err != nil {
			return nil, err
		}
		opts.Files = files
	}

	ix := &Index{
		root:      abs,
		store:     store,
		files:     opts.Files,
		retention: opts.Retention,
		now:       opts.Now,
		exclude:   make(map[string]bool, len(opts.Exclude)),
	}
	for _, p := range opts.Exclude {
		if p != "" {
			ix.exclude[filepath.Clean(p)] = true
		}
	}
	ix.swap(map[string]Entry{})
	return ix, nil
}

// Root returns the absolute served root.
func (ix *Index) Root() string { return ix.root }

// Retention returns the retention threshold.
func (ix *Index) Retention() time.Duration { return ix.retention }

// Store returns the persistence backend.
func (ix *Index) Store() Store { return ix.store }

// Len returns the number of entries.
func (ix *Index) Len() int {
	return len(ix.snap.Load().entries)
}

// Lookup returns the entry for a relative path.
func (ix *Index) Lookup(rel string) (Entry, bool) {
	e, ok := ix.snap.Load().entries[fsutil.CleanRelPath(rel)]
	return e, ok
}

// Snapshot returns a copy of all entries.
func (ix *Index) Snapshot() map[string]Entry {
	s := ix.snap.Load()
	out := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Children returns the direct children of rel as listing entries, in no
// particular order.
func (ix *Index) Children(rel string) []listing.Entry {
	s := ix.snap.Load()
	keys := s.children[fsutil.CleanRelPath(rel)]
	out := make([]listing.Entry, 0, len(keys))
	for _, k := range keys {
		e := s.entries[k]
		out = append(out, listing.Entry{
			Name:    path.Base(k),
			Rel:     k,
			IsDir:   e.IsDir,
			Size:    e.Size,
			ModTime: e.ModTime,
		})
	}
	return out
}

// Expired reports whether an entry is older than the retention threshold.
func (ix *Index) Expired(e Entry, now time.Time) bool {
	return now.Sub(e.ModTime) > ix.retention
}

// Load replaces the in-memory map with the persisted document. A missing
// document leaves the index empty and is not an error.
func (ix *Index) Load(ctx context.Context) error {
	if !ix.writer.TryLock() {
		metrics.RecordIndexBusy("load")
		return ErrBusy
	}
	defer ix.writer.Unlock()

	doc, err := ix.store.Load(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logging.Info("no persisted index, starting empty", zap.String("store", ix.store.Name()))
			ix.swap(map[string]Entry{})
			return nil
		}
		return fmt.Errorf("load index from %s: %w", ix.store.Name(), err)
	}

	entries, err := Decode(doc)
	if err != nil {
		return fmt.Errorf("decode index from %s: %w", ix.store.Name(), err)
	}
	ix.swap(entries)
	logging.Info("index loaded",
		zap.String("store", ix.store.Name()),
		zap.Int("entries", len(entries)))
	return nil
}

// Save persists the current snapshot.
func (ix *Index) Save(ctx context.Context) error {
	if !ix.writer.TryLock() {
		metrics.RecordIndexBusy("save")
		return ErrBusy
	}
	defer ix.writer.Unlock()
	return ix.save(ctx)
}

func (ix *Index) save(ctx context.Context) error {
	doc, err := Encode(ix.snap.Load().entries)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := ix.store.Save(ctx, doc); err != nil {
		return fmt.Errorf("save index to %s: %w", ix.store.Name(), err)
	}
	return nil
}

// swap installs entries as the new snapshot. entries must not be modified
// afterwards.
func (ix *Index) swap(entries map[string]Entry) {
	children := make(map[string][]string)
	for k := range entries {
		if k == RootKey {
			continue
		}
		parent := fsutil.ParentRel(k)
		children[parent] = append(children[parent], k)
	}
	ix.snap.Store(&snapshot{entries: entries, children: children})
	metrics.SetIndexEntries(len(entries))
}

// Encode serializes entries as indented JSON with sorted keys and UTC
// RFC 3339 timestamps, so equal maps always produce equal bytes.
func Encode(entries map[string]Entry) ([]byte, error) {
	norm := make(map[string]Entry, len(entries))
	for k, e := range entries {
		e.ModTime = e.ModTime.UTC()
		norm[k] = e
	}
	doc, err := json.MarshalIndent(norm, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(doc, '\n'), nil
}

// Decode parses a document written by Encode. Keys are normalized, so
// documents using "." for the root or backslashes still load.
func Decode(doc []byte) (map[string]Entry, error) {
	var raw map[string]Entry
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, err
	}
	entries := make(map[string]Entry, len(raw))
	for k, e := range raw {
		e.ModTime = e.ModTime.UTC()
		if e.IsDir {
			e.Size = 0
		}
		entries[fsutil.CleanRelPath(k)] = e
	}
	return entries, nil
}

// sortedKeys returns the keys of m in byte order.
func sortedKeys(m map[string]Entry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
