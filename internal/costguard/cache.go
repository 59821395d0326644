// Package costguard implements the Cost Guard (C6): fingerprint cache,
// local/external/batch routing, ROI admission, and a bounded cost log.
// The cache is backed by github.com/patrickmn/go-cache (as used by the
// dataparency-dev-AI-delegation example's go.mod for the same
// TTL-eviction concern); routing and ROI math follow
// original_source/services/vllm-inference/main.py and spec §4.6.
package costguard

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CacheEntry is the value stored behind a prompt+model fingerprint.
type CacheEntry struct {
	Result       interface{}
	CachedAt     time.Time
	LastAccessed time.Time
	Hits         int
}

// DefaultTTL is the spec's default cache entry lifetime (spec §4.6).
const DefaultTTL = time.Hour

// Fingerprint returns SHA-256(prompt || model) as a hex string — the
// cache key and the input to the local-routing coin flip.
func Fingerprint(prompt, model string) string {
	sum := sha256.Sum256([]byte(prompt + model))
	return hex.EncodeToString(sum[:])
}

// cacheStore wraps go-cache with the spec's hit/last-accessed semantics;
// go-cache's own expiry is disabled per-entry (we track cached_at/TTL
// ourselves so cache/clear can evict "entries older than TTL" exactly,
// rather than relying on go-cache's background sweep granularity).
type cacheStore struct {
	c   *gocache.Cache
	ttl time.Duration
}

func newCacheStore(ttl time.Duration) *cacheStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &cacheStore{
		c:   gocache.New(gocache.NoExpiration, 10*time.Minute),
		ttl: ttl,
	}
}

// Get returns the entry for fingerprint and bumps its hit counter and
// last_accessed timestamp (spec §4.6: "A hit bumps hits and
// last_accessed and returns the cached result with cost 0"). cached_at
// is never mutated by a hit (resolved Open Question).
func (s *cacheStore) Get(fingerprint string) (*CacheEntry, bool) {
	v, ok := s.c.Get(fingerprint)
	if !ok {
		return nil, false
	}
	entry := v.(*CacheEntry)
	entry.Hits++
	entry.LastAccessed = time.Now()
	return entry, true
}

// Put inserts a fresh entry with cached_at/last_accessed set to now.
func (s *cacheStore) Put(fingerprint string, result interface{}) *CacheEntry {
	now := time.Now()
	entry := &CacheEntry{Result: result, CachedAt: now, LastAccessed: now}
	s.c.Set(fingerprint, entry, gocache.NoExpiration)
	return entry
}

// ClearExpired evicts entries older than the store's TTL and returns
// the count removed — the behavior behind POST /cache/clear when no
// explicit age is given.
func (s *cacheStore) ClearExpired() int {
	return s.ClearOlderThan(s.ttl)
}

// ClearOlderThan evicts entries whose cached_at age exceeds maxAge and
// returns the count removed — backs POST /cache/clear's optional
// older_than_seconds parameter (spec §6).
func (s *cacheStore) ClearOlderThan(maxAge time.Duration) int {
	removed := 0
	now := time.Now()
	for k, item := range s.c.Items() {
		entry := item.Object.(*CacheEntry)
		if now.Sub(entry.CachedAt) > maxAge {
			s.c.Delete(k)
			removed++
		}
	}
	return removed
}

// Len reports the number of live cache entries.
func (s *cacheStore) Len() int {
	return s.c.ItemCount()
}

// shouldUseLocal implements spec §4.6 step 1's deterministic ~70%-local
// routing: true for model="local"; false for model="external"; for
// "auto", true iff word-count(prompt) < 50 OR the first 4 bytes of
// SHA-256(prompt), read as a big-endian uint32, mod 100 < 70.
func shouldUseLocal(prompt, model string) bool {
	switch model {
	case "local":
		return true
	case "external":
		return false
	default: // "auto"
		if wordCount(prompt) < 50 {
			return true
		}
		sum := sha256.Sum256([]byte(prompt))
		n := binary.BigEndian.Uint32(sum[:4])
		return n%100 < 70
	}
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
