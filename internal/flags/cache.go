package flags

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// absoluteTTL bounds how long an entry may live regardless of access.
	absoluteTTL = 15 * time.Minute
	// slidingTTL bounds how long an entry may go unread.
	slidingTTL = 5 * time.Minute
)

type cacheEntry struct {
	flags      Flags
	insertedAt time.Time
	lastRead   time.Time
}

// Cache is a per-tenant feature-flag cache with a 15 minute absolute and a
// 5 minute sliding expiry, whichever comes first. Writes to plan or override
// state must call Invalidate so stale flags never outlive the TTL bound.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	clock   clock.Clock
}

// NewCache constructs a flag cache on the wall clock.
func NewCache() *Cache {
	return NewCacheWithClock(clock.New())
}

// NewCacheWithClock constructs a flag cache on the provided clock.
func NewCacheWithClock(clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.New()
	}
	return &Cache{
		entries: map[string]*cacheEntry{},
		clock:   clk,
	}
}

// Get returns the cached flags for a tenant, or a miss. A hit refreshes the
// sliding window.
func (c *Cache) Get(tenantID string) (Flags, bool) {
	if c == nil || tenantID == "" {
		return Flags{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[tenantID]
	if !ok {
		return Flags{}, false
	}
	now := c.clock.Now()
	if now.Sub(entry.insertedAt) >= absoluteTTL || now.Sub(entry.lastRead) >= slidingTTL {
		delete(c.entries, tenantID)
		return Flags{}, false
	}
	entry.lastRead = now
	return entry.flags, true
}

// Set stores the resolved flags for a tenant.
func (c *Cache) Set(tenantID string, flags Flags) {
	if c == nil || tenantID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	c.entries[tenantID] = &cacheEntry{
		flags:      flags,
		insertedAt: now,
		lastRead:   now,
	}
}

// Invalidate drops the cached entry for a tenant.
func (c *Cache) Invalidate(tenantID string) {
	if c == nil || tenantID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tenantID)
}
