// File: internal/selectorcache/cache.go
package selectorcache

import (
	"context"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/internal/config"
)

// Key addresses one cached locator: which element on which kind of page of
// which site.
type Key struct {
	Domain     string `json:"domain"`
	URLPattern string `json:"url_pattern"`
	ElementKey string `json:"element_key"`
}

func (k Key) String() string {
	return k.Domain + "|" + k.URLPattern + "|" + k.ElementKey
}

// Locator is a confidence-scored, TTL-bound page-element selector with a
// ranked chain of alternatives for auto-healing.
type Locator struct {
	Key           Key           `json:"key"`
	Primary       string        `json:"primary"`
	Alternatives  []string      `json:"alternatives,omitempty"`
	SuccessCount  int           `json:"success_count"`
	FailureCount  int           `json:"failure_count"`
	LastUsedAt    time.Time     `json:"last_used_at"`
	LastUpdatedAt time.Time     `json:"last_updated_at"`
	TTL           time.Duration `json:"ttl"`

	// healIdx is the next untried alternative; candidate is the selector
	// currently on probation after a Heal call. A candidate becomes primary
	// only once it succeeds.
	healIdx   int
	candidate string
}

// Confidence is successes over total uses, or 1.0 for an unused entry.
func (l *Locator) Confidence() float64 {
	total := l.SuccessCount + l.FailureCount
	if total == 0 {
		return 1.0
	}
	return float64(l.SuccessCount) / float64(total)
}

// Valid reports whether the entry is inside its TTL window.
func (l *Locator) Valid(now time.Time) bool {
	return now.Before(l.LastUpdatedAt.Add(l.TTL))
}

// Stats is the telemetry read surface for the cache.
type Stats struct {
	Entries   int `json:"entries"`
	Hits      int `json:"hits"`
	Misses    int `json:"misses"`
	Healings  int `json:"healings"`
	Evictions int `json:"evictions"`
	Swept     int `json:"swept"`
}

// Cache is the selector store. Access is read-mostly; updates are
// single-writer per key, so one lock over the map is enough. Entries are
// copied out, never handed to callers by reference.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Locator
	nav     *NavigationTracker
	logger  *zap.Logger

	ttl        time.Duration
	maxEntries int
	stats      Stats

	now func() time.Time
}

// NewCache creates a selector cache with the configured TTL and prefetch
// threshold.
func NewCache(logger *zap.Logger, cfg config.CacheConfig) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{
		entries:    make(map[string]*Locator),
		nav:        NewNavigationTracker(cfg.PrefetchThreshold),
		logger:     logger.Named("selector_cache"),
		ttl:        ttl,
		maxEntries: cfg.MaxEntries,
		now:        time.Now,
	}
}

// Put records a freshly resolved selector for an element. A new entry
// starts unused (confidence 1.0) with a full TTL window.
func (c *Cache) Put(key Key, primary string, alternatives []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key.String()] = &Locator{
		Key:           key,
		Primary:       primary,
		Alternatives:  append([]string(nil), alternatives...),
		LastUsedAt:    now,
		LastUpdatedAt: now,
		TTL:           c.ttl,
	}

	// Bound the arena: evict the stalest entry when over capacity.
	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		c.evictStalestLocked()
	}
}

func (c *Cache) evictStalestLocked() {
	var stalest string
	var stalestAt time.Time
	for id, entry := range c.entries {
		if stalest == "" || entry.LastUsedAt.Before(stalestAt) {
			stalest = id
			stalestAt = entry.LastUsedAt
		}
	}
	if stalest != "" {
		delete(c.entries, stalest)
		c.stats.Evictions++
	}
}

// Get returns a copy of the valid entry for key, touching its last-use
// time. Expired entries are never returned.
func (c *Cache) Get(key Key) (Locator, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key.String()]
	if !ok || !entry.Valid(c.now()) {
		c.stats.Misses++
		return Locator{}, false
	}
	entry.LastUsedAt = c.now()
	c.stats.Hits++

	out := *entry
	out.Alternatives = append([]string(nil), entry.Alternatives...)
	return out, true
}

// RecordOutcome feeds back one use of the entry's current selector. On a
// success while a heal candidate is on probation, the candidate is promoted
// to primary with a reset score of exactly one success.
func (c *Cache) RecordOutcome(key Key, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key.String()]
	if !ok {
		return
	}

	now := c.now()
	entry.LastUsedAt = now
	entry.LastUpdatedAt = now

	if success {
		if entry.candidate != "" {
			c.promoteLocked(entry)
			return
		}
		entry.SuccessCount++
		return
	}
	entry.FailureCount++
	entry.candidate = ""
}

// promoteLocked makes the probation candidate the primary selector. The
// displaced primary joins the back of the alternative chain, and the score
// restarts at 1/(1+0).
func (c *Cache) promoteLocked(entry *Locator) {
	promoted := entry.candidate

	alts := make([]string, 0, len(entry.Alternatives))
	for _, alt := range entry.Alternatives {
		if alt != promoted {
			alts = append(alts, alt)
		}
	}
	alts = append(alts, entry.Primary)

	entry.Primary = promoted
	entry.Alternatives = alts
	entry.SuccessCount = 1
	entry.FailureCount = 0
	entry.candidate = ""
	entry.healIdx = 0

	c.logger.Debug("Promoted healed selector to primary",
		zap.String("key", entry.Key.String()),
		zap.String("selector", promoted),
	)
}

// Heal advances to the next untried alternative after a primary failure and
// puts it on probation. When the chain is exhausted the entry is evicted
// and Heal reports no alternative.
func (c *Cache) Heal(key Key) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key.String()]
	if !ok {
		return "", false
	}

	if entry.healIdx >= len(entry.Alternatives) {
		// Exhausted after repeated failure: the entry is useless now.
		delete(c.entries, key.String())
		c.stats.Evictions++
		c.logger.Debug("Selector alternatives exhausted, evicting entry", zap.String("key", key.String()))
		return "", false
	}

	next := entry.Alternatives[entry.healIdx]
	entry.healIdx++
	entry.candidate = next
	c.stats.Healings++
	return next, true
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	swept := 0
	for id, entry := range c.entries {
		if !entry.Valid(now) {
			delete(c.entries, id)
			swept++
		}
	}
	c.stats.Swept += swept
	return swept
}

// StartSweeper runs TTL eviction in the background until ctx is cancelled.
func (c *Cache) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					c.logger.Debug("Swept expired selector entries", zap.Int("count", n))
				}
			}
		}
	}()
}

// RecordNavigation feeds the prefetch predictor with one observed page
// transition.
func (c *Cache) RecordNavigation(fromURL, toURL string) {
	c.nav.Record(fromURL, toURL)
}

// Prefetch returns copies of the valid cached locators for the predicted
// next destination after currentURL, warming their last-use time so the
// coming plan cycle finds them hot. Returns nil when no pattern clears the
// prediction threshold.
func (c *Cache) Prefetch(currentURL string) []Locator {
	next, ok := c.nav.Predict(currentURL)
	if !ok {
		return nil
	}
	domain := domainOf(next)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var warmed []Locator
	for _, entry := range c.entries {
		if entry.Key.Domain != domain || !entry.Valid(now) {
			continue
		}
		entry.LastUsedAt = now
		out := *entry
		out.Alternatives = append([]string(nil), entry.Alternatives...)
		warmed = append(warmed, out)
	}
	return warmed
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}

// ExportJSON serializes all current entries for the telemetry endpoint.
func (c *Cache) ExportJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Locator, 0, len(c.entries))
	for _, entry := range c.entries {
		cp := *entry
		cp.Alternatives = append([]string(nil), entry.Alternatives...)
		out = append(out, cp)
	}
	return json.Marshal(out)
}
