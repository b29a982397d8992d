package index

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/folderserve/internal/logging"
	"github.com/fruitsalade/folderserve/internal/metrics"
)

// cancelSaveTimeout bounds the save of a cleanup cut short by cancellation.
const cancelSaveTimeout = 30 * time.Second

// CleanupReport summarizes one cleanup pass.
type CleanupReport struct {
	Expired  int
	Deleted  int
	Failed   int
	Duration time.Duration
}

// CleanupExpired deletes every indexed entry older than the retention
// threshold from disk, deepest paths first so emptied directories can go
// too. Directories are only removed when empty. A failed deletion is logged
// and the batch continues. Every expired entry leaves the index whether or
// not its deletion succeeded; the root is never touched. A cancelled pass
// stops deleting, still saves what it pruned, and returns the context error.
func (ix *Index) CleanupExpired(ctx context.Context) (report CleanupReport, err error) {
	if !ix.writer.TryLock() {
		metrics.RecordIndexBusy("cleanup")
		return CleanupReport{}, ErrBusy
	}
	defer ix.writer.Unlock()

	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		metrics.RecordIndexJob("cleanup", report.Duration, err)
	}()

	now := ix.now()
	entries := ix.Snapshot()

	var expired []string
	for _, key := range sortedKeys(entries) {
		if key != RootKey && ix.Expired(entries[key], now) {
			expired = append(expired, key)
		}
	}
	sortDeepestFirst(expired)
	report.Expired = len(expired)

	for _, key := range expired {
		if ctx.Err() != nil {
			break
		}
		if delErr := ix.files.DeleteObject(ctx, key); delErr != nil {
			report.Failed++
			metrics.RecordCleanupDeletion("failed")
			logging.Warn("cleanup: delete failed",
				zap.String("path", key),
				zap.Bool("is_dir", entries[key].IsDir),
				zap.Error(delErr))
		} else {
			report.Deleted++
			metrics.RecordCleanupDeletion("deleted")
			logging.Debug("cleanup: deleted", zap.String("path", key))
		}
		delete(entries, key)
	}

	ix.swap(entries)
	logging.Info("cleanup finished",
		zap.Int("expired", report.Expired),
		zap.Int("deleted", report.Deleted),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", time.Since(start)))

	if err := ctx.Err(); err != nil {
		// Persist what was pruned so the document matches memory.
		saveCtx, cancel := context.WithTimeout(context.Background(), cancelSaveTimeout)
		defer cancel()
		if saveErr := ix.save(saveCtx); saveErr != nil {
			logging.Error("cleanup: save after cancel failed", zap.Error(saveErr))
		}
		return report, err
	}
	return report, ix.save(ctx)
}

// sortDeepestFirst orders keys so every path comes before its ancestors.
func sortDeepestFirst(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		di, dj := strings.Count(keys[i], "/"), strings.Count(keys[j], "/")
		if di != dj {
			return di > dj
		}
		return keys[i] > keys[j]
	})
}
