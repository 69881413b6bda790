package llm

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/spice-assign/internal/model"
)

// cacheEntry represents a cached label.
type cacheEntry struct {
	expiry time.Time
	label  string
}

// AssignmentCache provides thread-safe caching of assigned labels.
type AssignmentCache struct {
	entries map[string]cacheEntry
	stopCh  chan struct{}
	ttl     time.Duration
	mu      sync.RWMutex
	once    sync.Once
}

// NewAssignmentCache creates a new cache with the specified TTL.
func NewAssignmentCache(ttl time.Duration) *AssignmentCache {
	if ttl == 0 {
		ttl = 15 * time.Minute // Default TTL
	}

	cache := &AssignmentCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	// Start cleanup goroutine
	go cache.cleanup()

	return cache
}

// cacheKey identifies a transaction's label under a specific option set, so
// adding or renaming a category never serves a stale answer.
func cacheKey(kind model.AssignmentKind, txn model.TransactionDescriptor, optionsKey string) string {
	return string(kind) + ":" + optionsKey + ":" + txn.Fingerprint()
}

// optionsKey hashes the option set independently of its order.
func optionsKey(options []string) string {
	sorted := make([]string, len(options))
	copy(sorted, options)
	sort.Strings(sorted)
	hash := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return fmt.Sprintf("%x", hash[:8])
}

// get retrieves a label from the cache if it exists and hasn't expired.
func (c *AssignmentCache) get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists {
		return "", false
	}

	if time.Now().After(entry.expiry) {
		return "", false
	}

	return entry.label, true
}

// set stores a label in the cache.
func (c *AssignmentCache) set(key, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		label:  label,
		expiry: time.Now().Add(c.ttl),
	}
}

// cleanup periodically removes expired entries.
func (c *AssignmentCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiry) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Clear removes all entries from the cache.
func (c *AssignmentCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of entries in the cache.
func (c *AssignmentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the cleanup goroutine.
func (c *AssignmentCache) Close() {
	c.once.Do(func() { close(c.stopCh) })
}
