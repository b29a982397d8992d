package api

import (
	"os"
	"path"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/karrick/godirwalk"
	"golang.org/x/sync/singleflight"

	"github.com/fruitsalade/folderserve/internal/listing"
	"github.com/fruitsalade/folderserve/internal/metrics"
)

const defaultListingCacheTTL = 30 * time.Second

type cachedDir struct {
	modTime  time.Time
	cachedAt time.Time
	entries  []listing.Entry
}

// dirCache lists directories from disk. Results are kept while the
// directory's mtime is unchanged and the entry is younger than ttl, so a
// file rewritten in place shows its new size after at most ttl. Concurrent
// misses on one directory share a single read.
type dirCache struct {
	cache *lru.Cache
	group singleflight.Group
	ttl   time.Duration
	now   func() time.Time
}

// newDirCache returns a cache holding up to size directories. Zero disables
// caching but still collapses concurrent reads.
func newDirCache(size int, ttl time.Duration) (*dirCache, error) {
	if ttl <= 0 {
		ttl = defaultListingCacheTTL
	}
	c := &dirCache{ttl: ttl, now: time.Now}
	if size > 0 {
		cache, err := lru.New(size)
		if err != nil {
			return nil, err
		}
		c.cache = cache
	}
	return c, nil
}

// List returns the entries of the directory at abs, whose path relative to
// the served root is rel.
func (c *dirCache) List(abs, rel string, modTime time.Time) ([]listing.Entry, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(abs); ok {
			d := v.(*cachedDir)
			if d.modTime.Equal(modTime) && c.now().Sub(d.cachedAt) < c.ttl {
				metrics.RecordListingCache(true)
				return d.entries, nil
			}
		}
		metrics.RecordListingCache(false)
	}

	v, err, _ := c.group.Do(abs, func() (interface{}, error) {
		entries, err := readDir(abs, rel)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			c.cache.Add(abs, &cachedDir{modTime: modTime, cachedAt: c.now(), entries: entries})
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]listing.Entry), nil
}

// readDir stats every child, following symlinks. Children that vanish or
// cannot be stat'ed are left out.
func readDir(abs, rel string) ([]listing.Entry, error) {
	dirents, err := godirwalk.ReadDirents(abs, nil)
	if err != nil {
		return nil, err
	}

	entries := make([]listing.Entry, 0, len(dirents))
	for _, de := range dirents {
		name := de.Name()
		info, err := os.Stat(filepath.Join(abs, name))
		if err != nil {
			continue
		}
		e := listing.Entry{
			Name:    name,
			Rel:     path.Join(rel, name),
			IsDir:   info.IsDir(),
			ModTime: info.ModTime(),
		}
		if !e.IsDir {
			e.Size = info.Size()
		}
		entries = append(entries, e)
	}
	return entries, nil
}
