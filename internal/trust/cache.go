package trust

import (
	"sync"
	"time"

	"github.com/agentvault/vaultgate/internal/model"
	"github.com/ethereum/go-ethereum/common"
)

// Cache holds recent trust verdicts keyed by subject. It is bounded:
// when full, the oldest entry by storage time is evicted to make room.
type Cache struct {
	mu         sync.Mutex
	entries    map[common.Address]*model.TrustCacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func NewCache(ttl time.Duration, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Cache{
		entries:    make(map[common.Address]*model.TrustCacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// SetClock replaces the cache's time source.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the cached verdict for subject if present and unexpired.
// Expired entries are removed on access.
func (c *Cache) Get(subject common.Address) (*model.TrustVerdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[subject]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.ExpiresAt) {
		delete(c.entries, subject)
		return nil, false
	}
	verdict := entry.Verdict
	verdict.Reasons = append([]string(nil), entry.Verdict.Reasons...)
	verdict.Validations = append([]model.Validation(nil), entry.Verdict.Validations...)
	return &verdict, true
}

// Set stores a verdict, evicting the oldest entry when the cache is full.
func (c *Cache) Set(subject common.Address, verdict model.TrustVerdict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[subject]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	stored := c.now()
	c.entries[subject] = &model.TrustCacheEntry{
		Subject:   subject,
		Verdict:   verdict,
		StoredAt:  stored,
		ExpiresAt: stored.Add(c.ttl),
	}
}

// Invalidate drops one subject's entry.
func (c *Cache) Invalidate(subject common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, subject)
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[common.Address]*model.TrustCacheEntry)
}

// Len reports the number of live entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Export snapshots all unexpired entries, oldest first.
func (c *Cache) Export() []model.TrustCacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := make([]model.TrustCacheEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			continue
		}
		out = append(out, *entry)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].StoredAt.Before(out[j-1].StoredAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Import loads previously exported entries, skipping any already expired.
func (c *Cache) Import(entries []model.TrustCacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for i := range entries {
		entry := entries[i]
		if now.After(entry.ExpiresAt) {
			continue
		}
		if _, exists := c.entries[entry.Subject]; !exists && len(c.entries) >= c.maxEntries {
			c.evictOldestLocked()
		}
		c.entries[entry.Subject] = &entry
	}
}

func (c *Cache) evictOldestLocked() {
	var oldest common.Address
	var oldestAt time.Time
	first := true
	for subject, entry := range c.entries {
		if first || entry.StoredAt.Before(oldestAt) {
			oldest = subject
			oldestAt = entry.StoredAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldest)
	}
}
