// Package cooldown suppresses repeat signal emission per
// (symbol, timeframe) pair within a configured window.
package cooldown

import (
	"sync"
	"time"

	"signalforge/internal/domain"
)

// Entry records the last accepted emission for one pair.
type Entry struct {
	LastEmission time.Time
	LastSignal   *domain.EnhancedSignal
}

// Cache is a TTL map keyed by (symbol, timeframe). All access goes
// through its methods under one mutex, so overlapping evaluations can
// never double-emit.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]Entry
	now     func() time.Time
}

func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]Entry),
		now:     now,
	}
}

func key(symbol, timeframe string) string {
	return symbol + ":" + timeframe
}

// Active reports whether the pair is still inside its cooldown window.
func (c *Cache) Active(symbol, timeframe string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key(symbol, timeframe)]
	return ok && c.now().Sub(entry.LastEmission) < c.ttl
}

// TryAcquire is the compare-and-set check before emission: it records
// the emission and returns true only when the pair is outside its
// window. Exactly one of several overlapping evaluations wins.
func (c *Cache) TryAcquire(symbol, timeframe string, signal *domain.EnhancedSignal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(symbol, timeframe)
	now := c.now()
	if entry, ok := c.entries[k]; ok && now.Sub(entry.LastEmission) < c.ttl {
		return false
	}
	c.entries[k] = Entry{LastEmission: now, LastSignal: signal}
	return true
}

// Last returns the most recent accepted signal for the pair, expired or
// not.
func (c *Cache) Last(symbol, timeframe string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key(symbol, timeframe)]
	return entry, ok
}

// Sweep drops entries older than the window; callers run it
// periodically to bound memory on wide symbol sets.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for k, entry := range c.entries {
		if now.Sub(entry.LastEmission) >= c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}
