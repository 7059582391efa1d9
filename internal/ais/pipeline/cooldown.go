package pipeline

import (
	"sync"
	"time"
)

type cooldownKey struct {
	mmsi     string
	ruleType string
}

// MemoryCooldowns is the in-process form of the (mmsi, rule_type) → last
// alert timestamp relation. Single-process deployments and tools can use it
// in place of the database-backed table; the semantics are identical.
type MemoryCooldowns struct {
	mu   sync.Mutex
	last map[cooldownKey]time.Time
}

// NewMemoryCooldowns returns an empty cooldown table.
func NewMemoryCooldowns() *MemoryCooldowns {
	return &MemoryCooldowns{last: make(map[cooldownKey]time.Time)}
}

// AllowAlert checks the cooldown against event time ts and advances the entry
// when the alert is allowed. Returns false while a previous alert is still
// inside the window.
func (c *MemoryCooldowns) AllowAlert(mmsi, ruleType string, ts time.Time, cooldown time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cooldownKey{mmsi, ruleType}
	last, ok := c.last[key]
	if !ok {
		c.last[key] = ts
		return true, nil
	}
	if ts.Sub(last) < cooldown {
		return false, nil
	}
	// Update if newer only, so stale events cannot rewind the clock.
	if ts.After(last) {
		c.last[key] = ts
	}
	return true, nil
}

// Purge removes entries whose last alert predates cutoff and returns how many
// were removed.
func (c *MemoryCooldowns) Purge(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, last := range c.last {
		if last.Before(cutoff) {
			delete(c.last, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of active entries.
func (c *MemoryCooldowns) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}
