// File: internal/selectorcache/navigation.go
package selectorcache

import (
	"net/url"
	"strings"
	"sync"
	"time"
)

// NavigationPattern is one observed from->to page transition with its
// occurrence count.
type NavigationPattern struct {
	FromURL    string    `json:"from_url"`
	ToURL      string    `json:"to_url"`
	Count      int       `json:"count"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// NavigationTracker learns recurring page transitions and predicts the
// likely next destination once a pattern repeats enough times.
type NavigationTracker struct {
	mu        sync.Mutex
	patterns  map[string]*NavigationPattern
	threshold int
	now       func() time.Time
}

// NewNavigationTracker creates a tracker that predicts only transitions
// seen at least threshold times.
func NewNavigationTracker(threshold int) *NavigationTracker {
	if threshold <= 0 {
		threshold = 3
	}
	return &NavigationTracker{
		patterns:  make(map[string]*NavigationPattern),
		threshold: threshold,
		now:       time.Now,
	}
}

// Record adds one observed transition.
func (t *NavigationTracker) Record(fromURL, toURL string) {
	if fromURL == "" || toURL == "" || fromURL == toURL {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	id := fromURL + "->" + toURL
	p, ok := t.patterns[id]
	if !ok {
		p = &NavigationPattern{FromURL: fromURL, ToURL: toURL}
		t.patterns[id] = p
	}
	p.Count++
	p.LastSeenAt = t.now()
}

// Predict returns the most frequent destination recorded after fromURL,
// provided it has reached the threshold. Ties break toward the most
// recently seen pattern.
func (t *NavigationTracker) Predict(fromURL string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var best *NavigationPattern
	for _, p := range t.patterns {
		if p.FromURL != fromURL || p.Count < t.threshold {
			continue
		}
		if best == nil || p.Count > best.Count ||
			(p.Count == best.Count && p.LastSeenAt.After(best.LastSeenAt)) {
			best = p
		}
	}
	if best == nil {
		return "", false
	}
	return best.ToURL, true
}

// domainOf extracts the host part of a URL, tolerating bare hostnames.
func domainOf(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Hostname()
}
