// Package cache is a file-backed resource cache with LRU eviction under a
// byte cap and per-entry TTL expiry. The manifest is authoritative: on open,
// any file in the cache directory that the manifest does not list is
// deleted, and any manifest entry whose file is missing is dropped, so a
// lookup for it reports ErrNotFound.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/AishPattabi/federated-compute/pkg/logger"
	"github.com/AishPattabi/federated-compute/pkg/metrics"
)

var (
	ErrNotFound = errors.New("resource not found")
)

const manifestName = "manifest.json"

type entry struct {
	File         string `json:"file"`
	Size         int64  `json:"size"`
	Metadata     []byte `json:"metadata,omitempty"`
	ExpiresAtMs  int64  `json:"expires_at_ms"`
	LastAccessMs int64  `json:"last_access_ms"`
}

type manifest struct {
	Entries map[string]entry `json:"entries"`
}

// Cache is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	dir      string
	maxBytes int64
	m        manifest
	now      func() time.Time
}

// New opens (or creates) the cache rooted at dir, holding at most maxBytes
// of resource data, and reconciles the directory against the manifest.
func New(dir string, maxBytes int64) (*Cache, error) {
	return NewWithClock(dir, maxBytes, time.Now)
}

// NewWithClock injects the time source; tests drive expiry with it.
func NewWithClock(dir string, maxBytes int64, now func() time.Time) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	c := &Cache{dir: dir, maxBytes: maxBytes, now: now, m: manifest{Entries: map[string]entry{}}}
	if err := c.loadManifest(); err != nil {
		return nil, err
	}
	if err := c.reconcile(); err != nil {
		return nil, err
	}
	return c, nil
}

// Put stores data under key with an opaque metadata blob, expiring after
// maxAge. An existing entry under the same key is replaced.
func (c *Cache) Put(key string, data, metadata []byte, maxAge time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if int64(len(data)) > c.maxBytes {
		return errors.New("resource larger than the cache size cap")
	}
	nowMs := c.now().UnixMilli()
	file := fileNameFor(key)
	if err := atomicWrite(filepath.Join(c.dir, file), data); err != nil {
		return err
	}
	c.m.Entries[key] = entry{
		File:         file,
		Size:         int64(len(data)),
		Metadata:     metadata,
		ExpiresAtMs:  nowMs + maxAge.Milliseconds(),
		LastAccessMs: nowMs,
	}
	c.evictLocked()
	metrics.Inc("resource_cache_ops_total", map[string]string{"op": "put"})
	return c.saveManifestLocked()
}

// Get returns the data and metadata stored under key. A positive refreshAge
// extends the entry's lifetime from now. Expired and missing entries report
// ErrNotFound.
func (c *Cache) Get(key string, refreshAge time.Duration) ([]byte, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.m.Entries[key]
	if !ok {
		metrics.Inc("resource_cache_ops_total", map[string]string{"op": "miss"})
		return nil, nil, ErrNotFound
	}
	nowMs := c.now().UnixMilli()
	if nowMs >= e.ExpiresAtMs {
		c.dropLocked(key, e)
		_ = c.saveManifestLocked()
		metrics.Inc("resource_cache_ops_total", map[string]string{"op": "expired"})
		return nil, nil, ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(c.dir, e.File))
	if err != nil {
		// Manifest-authoritative: a missing file is a miss, and the stale
		// entry goes away.
		c.dropLocked(key, e)
		_ = c.saveManifestLocked()
		return nil, nil, ErrNotFound
	}
	e.LastAccessMs = nowMs
	if refreshAge > 0 {
		e.ExpiresAtMs = nowMs + refreshAge.Milliseconds()
	}
	c.m.Entries[key] = e
	if err := c.saveManifestLocked(); err != nil {
		return nil, nil, err
	}
	metrics.Inc("resource_cache_ops_total", map[string]string{"op": "hit"})
	return data, e.Metadata, nil
}

func (c *Cache) loadManifest() error {
	b, err := os.ReadFile(filepath.Join(c.dir, manifestName))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var m manifest
	if err := json.Unmarshal(b, &m); err != nil {
		// A corrupt manifest means the catalog is gone; the reconcile pass
		// clears the orphaned files.
		logger.WarnJ("resource_cache", map[string]any{"op": "load_manifest", "result": "corrupt"})
		return nil
	}
	if m.Entries != nil {
		c.m = m
	}
	return nil
}

// reconcile makes the directory agree with the manifest.
func (c *Cache) reconcile() error {
	listed := make(map[string]bool, len(c.m.Entries))
	for key, e := range c.m.Entries {
		if _, err := os.Stat(filepath.Join(c.dir, e.File)); err != nil {
			delete(c.m.Entries, key)
			continue
		}
		listed[e.File] = true
	}
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || name == manifestName {
			continue
		}
		if !listed[name] {
			_ = os.Remove(filepath.Join(c.dir, name))
		}
	}
	// Drop entries already expired at open.
	nowMs := c.now().UnixMilli()
	for key, e := range c.m.Entries {
		if nowMs >= e.ExpiresAtMs {
			c.dropLocked(key, e)
		}
	}
	return c.saveManifestLocked()
}

// evictLocked removes least-recently-used entries until the total size fits
// the cap.
func (c *Cache) evictLocked() {
	var total int64
	for _, e := range c.m.Entries {
		total += e.Size
	}
	if total <= c.maxBytes {
		return
	}
	type keyed struct {
		key string
		e   entry
	}
	all := make([]keyed, 0, len(c.m.Entries))
	for k, e := range c.m.Entries {
		all = append(all, keyed{k, e})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].e.LastAccessMs < all[j].e.LastAccessMs })
	for _, ke := range all {
		if total <= c.maxBytes {
			break
		}
		c.dropLocked(ke.key, ke.e)
		total -= ke.e.Size
		metrics.Inc("resource_cache_ops_total", map[string]string{"op": "evict"})
	}
}

func (c *Cache) dropLocked(key string, e entry) {
	delete(c.m.Entries, key)
	_ = os.Remove(filepath.Join(c.dir, e.File))
}

func (c *Cache) saveManifestLocked() error {
	b, err := json.Marshal(c.m)
	if err != nil {
		return err
	}
	return atomicWrite(filepath.Join(c.dir, manifestName), b)
}

// atomicWrite lands the bytes via tmp + fsync + rename so a crash never
// leaves a half-written file behind.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func fileNameFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
