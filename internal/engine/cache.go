package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/shifahealth/adherence-backend/pkg/model"
)

// cacheEntry holds one cached profile and its expiry
type cacheEntry struct {
	profile   *model.UserAdherenceProfile
	expiresAt time.Time
}

// ProfileCache is the engine's only shared mutable state: a time-bounded
// memoization of composed profiles keyed by (user, window). Entries are
// replaced whole, so a reader sees either the old or the new profile, never
// a partial one.
type ProfileCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

// NewProfileCache creates a ProfileCache with the given entry TTL
func NewProfileCache(ttl time.Duration) *ProfileCache {
	return &ProfileCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// key builds the (user, period) cache key
func (c *ProfileCache) key(userID string, windowDays int) string {
	return fmt.Sprintf("%s|%d", userID, windowDays)
}

// Get returns a non-expired cached profile, or nil
func (c *ProfileCache) Get(userID string, windowDays int, now time.Time) *model.UserAdherenceProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[c.key(userID, windowDays)]
	if !ok || now.After(entry.expiresAt) {
		return nil
	}
	return entry.profile
}

// Set stores a freshly computed profile, replacing any previous entry
func (c *ProfileCache) Set(userID string, windowDays int, profile *model.UserAdherenceProfile, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[c.key(userID, windowDays)] = cacheEntry{
		profile:   profile,
		expiresAt: now.Add(c.ttl),
	}
}

// Invalidate drops every cached window for the user
func (c *ProfileCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := userID + "|"
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
}

// Clear empties the cache; called on shutdown by the orchestration layer
func (c *ProfileCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len reports the number of live entries, expired or not
func (c *ProfileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
