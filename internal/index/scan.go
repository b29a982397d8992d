package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/karrick/godirwalk"
	"go.uber.org/zap"

	"github.com/fruitsalade/folderserve/internal/logging"
	"github.com/fruitsalade/folderserve/internal/metrics"
)

// walk visits every entry below the root (not the root itself) and calls fn
// with its relative key and metadata. Unreadable entries are logged and
// skipped.
func (ix *Index) walk(ctx context.Context, fn func(key string, e Entry)) error {
	return godirwalk.Walk(ix.root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if osPathname == ix.root {
				return nil
			}
			if ix.exclude[osPathname] {
				return nil
			}
			info, err := os.Stat(osPathname)
			if err != nil {
				logging.Debug("skipping unreadable entry",
					zap.String("path", osPathname), zap.Error(err))
				return nil
			}
			rel, err := filepath.Rel(ix.root, osPathname)
			if err != nil {
				return nil
			}
			fn(filepath.ToSlash(rel), entryFromInfo(info))
			return nil
		},
		ErrorCallback: func(osPathname string, err error) godirwalk.ErrorAction {
			logging.Warn("walk error", zap.String("path", osPathname), zap.Error(err))
			return godirwalk.SkipNode
		},
	})
}

func entryFromInfo(info os.FileInfo) Entry {
	e := Entry{IsDir: info.IsDir(), ModTime: info.ModTime().UTC()}
	if !e.IsDir {
		e.Size = info.Size()
	}
	return e
}

func (ix *Index) rootEntry() (Entry, error) {
	info, err := os.Stat(ix.root)
	if err != nil {
		return Entry{}, fmt.Errorf("stat root: %w", err)
	}
	e := entryFromInfo(info)
	e.IsDir = true
	return e, nil
}

// FullRebuild walks the whole tree and replaces the map. Entries older than
// the retention threshold are left out; the root is always present.
func (ix *Index) FullRebuild(ctx context.Context) (err error) {
	if !ix.writer.TryLock() {
		metrics.RecordIndexBusy("rebuild")
		return ErrBusy
	}
	defer ix.writer.Unlock()

	start := time.Now()
	defer func() { metrics.RecordIndexJob("rebuild", time.Since(start), err) }()

	now := ix.now()
	entries := make(map[string]Entry)
	skipped := 0

	if err := ix.walk(ctx, func(key string, e Entry) {
		if ix.Expired(e, now) {
			skipped++
			return
		}
		entries[key] = e
	}); err != nil {
		return fmt.Errorf("full rebuild: %w", err)
	}

	root, err := ix.rootEntry()
	if err != nil {
		return fmt.Errorf("full rebuild: %w", err)
	}
	entries[RootKey] = root

	ix.swap(entries)
	logging.Info("index rebuilt",
		zap.Int("entries", len(entries)),
		zap.Int("expired_skipped", skipped),
		zap.Duration("duration", time.Since(start)))

	return ix.save(ctx)
}

// Reconcile walks the tree and upserts entries that are new or whose
// modification time is strictly newer than the indexed one, then prunes
// every entry older than the retention threshold. Deleted files are not
// detected.
func (ix *Index) Reconcile(ctx context.Context) (err error) {
	if !ix.writer.TryLock() {
		metrics.RecordIndexBusy("reconcile")
		return ErrBusy
	}
	defer ix.writer.Unlock()

	start := time.Now()
	defer func() { metrics.RecordIndexJob("reconcile", time.Since(start), err) }()

	now := ix.now()
	entries := ix.Snapshot()
	upserted := 0

	upsert := func(key string, e Entry) {
		old, ok := entries[key]
		if !ok || e.ModTime.After(old.ModTime) {
			entries[key] = e
			upserted++
		}
	}

	if err := ix.walk(ctx, upsert); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	root, err := ix.rootEntry()
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	upsert(RootKey, root)

	pruned := 0
	for key, e := range entries {
		if key != RootKey && ix.Expired(e, now) {
			delete(entries, key)
			pruned++
		}
	}

	ix.swap(entries)
	logging.Info("index reconciled",
		zap.Int("entries", len(entries)),
		zap.Int("upserted", upserted),
		zap.Int("pruned", pruned),
		zap.Duration("duration", time.Since(start)))

	return ix.save(ctx)
}
