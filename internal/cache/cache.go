// Package cache implements a fingerprinted, TTL-bounded, on-disk,
// at-most-once-concurrent-build cache: a Config.Hash()-style
// fingerprint and an atomic temp-file-then-rename write, combined with
// golang.org/x/sync/singleflight for in-process coordination and
// gofrs/flock for cross-process coordination.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/singleflight"

	"github.com/gandalf-mcp/gandalf/pkg/gandalf"
)

// KeyInputs is everything the fingerprint hashes over.
type KeyInputs struct {
	Sources      []string
	Filter       string // normalized filter description
	DaysLookback int
	Limit        int
	FastMode     bool
	ProjectRoot  string
	StoreStats   []StoreStatLike
}

// StoreStatLike avoids an import cycle with internal/source while
// still letting callers pass source.StoreStat values in directly.
type StoreStatLike struct {
	Path    string
	Size    int64
	ModTime int64
}

// Fingerprint hashes KeyInputs into the cache key.
func Fingerprint(in KeyInputs) string {
	sorted := append([]StoreStatLike(nil), in.StoreStats...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	data, _ := json.Marshal(struct {
		Sources      []string
		Filter       string
		DaysLookback int
		Limit        int
		FastMode     bool
		ProjectRoot  string
		Stores       []StoreStatLike
	}{in.Sources, in.Filter, in.DaysLookback, in.Limit, in.FastMode, in.ProjectRoot, sorted})

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Cache is a keyed, TTL-bounded disk cache with at-most-once
// concurrent build per key, in-process via singleflight and
// cross-process via a named flock.
type Cache struct {
	dir        string
	ttl        time.Duration
	maxBytes   int64
	group      singleflight.Group
}

// New opens (creating if needed) the cache directory under home/cache.
func New(home string, ttl time.Duration, maxBytes int64) (*Cache, error) {
	dir := filepath.Join(home, "cache")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache dir %s: %w", dir, err)
	}
	return &Cache{dir: dir, ttl: ttl, maxBytes: maxBytes}, nil
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key)
}

// Get reads key's value if present and not expired. A missing, stale,
// or corrupt entry is reported as ErrCacheMiss.
func (c *Cache) Get(key string, out any) error {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return gandalf.ErrCacheMiss
	}

	var envelope gandalf.CacheEntry
	if err := json.Unmarshal(data, &envelope); err != nil {
		return gandalf.ErrCacheMiss
	}
	if envelope.Version != gandalf.CacheEntryVersion {
		return gandalf.ErrUnknownCacheVersion
	}
	if time.Since(envelope.CreatedAt) > time.Duration(envelope.TTLSeconds)*time.Second {
		return gandalf.ErrCacheMiss
	}

	payload, err := json.Marshal(envelope.Payload)
	if err != nil {
		return gandalf.ErrCacheMiss
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return gandalf.ErrCacheMiss
	}
	return nil
}

// GetOrBuild implements the at-most-once rule: within this process,
// singleflight.Group collapses concurrent callers for the same key
// into one builder; across processes, a flock-based named lock on the
// key's lock file serializes builders, with a stale-lock reclaim after
// 2*TTL.
func (c *Cache) GetOrBuild(key string, build func() (any, error)) (any, error) {
	var hit any
	if err := c.Get(key, &hit); err == nil {
		return hit, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		lockPath := c.path(key) + ".lock"
		reclaimStaleLock(lockPath, 2*c.ttl)

		fl := flock.New(lockPath)
		if lockErr := fl.Lock(); lockErr == nil {
			defer fl.Unlock()
		}
		// Whether or not the cross-process lock was acquired, re-check
		// the cache: another process may have just finished building.
		var fresh any
		if err := c.Get(key, &fresh); err == nil {
			return fresh, nil
		}

		result, err := build()
		if err != nil {
			return nil, err
		}
		if err := c.write(key, result); err != nil {
			// Cache write errors are logged and ignored;
			// the caller still gets its freshly built result.
			_ = err
		}
		c.evictIfOversize()
		return result, nil
	})
	return v, err
}

func (c *Cache) write(key string, payload any) error {
	envelope := gandalf.CacheEntry{
		Version:        gandalf.CacheEntryVersion,
		CreatedAt:      time.Now(),
		TTLSeconds:     int(c.ttl.Seconds()),
		KeyFingerprint: key,
		Payload:        payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	tmp := c.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path(key))
}

// reclaimStaleLock removes a lock file older than maxAge: a lock held
// past 2*TTL almost certainly belongs to a process that crashed mid-build.
func reclaimStaleLock(lockPath string, maxAge time.Duration) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return
	}
	if time.Since(info.ModTime()) > maxAge {
		_ = os.Remove(lockPath)
	}
}

// evictIfOversize implements opportunistic cleanup:
// entries older than 2*TTL are removed once the cache directory
// exceeds maxBytes.
func (c *Cache) evictIfOversize() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}

	var total int64
	type fileAge struct {
		path string
		age  time.Duration
		size int64
	}
	var files []fileAge
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
		files = append(files, fileAge{path: filepath.Join(c.dir, e.Name()), age: time.Since(info.ModTime()), size: info.Size()})
	}

	if total <= c.maxBytes {
		return
	}
	for _, f := range files {
		if f.age > 2*c.ttl {
			if err := os.Remove(f.path); err == nil {
				total -= f.size
			}
		}
	}
}
