// internal/browser/snapshot.go
package browser

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/contextmgr"
)

const defaultSnapshotTokens = 2000

// collectorScript walks the page for actionable elements and the main
// visible text. Selector preference: id, then data-testid, then name, then
// a tag.class fallback.
const collectorScript = `(() => {
	const selectorFor = (el) => {
		if (el.id) return '#' + el.id;
		const testid = el.getAttribute('data-testid');
		if (testid) return '[data-testid="' + testid + '"]';
		const name = el.getAttribute('name');
		if (name) return el.tagName.toLowerCase() + '[name="' + name + '"]';
		const cls = (el.className && typeof el.className === 'string')
			? el.className.trim().split(/\s+/)[0] : '';
		return el.tagName.toLowerCase() + (cls ? '.' + cls : '');
	};
	const visible = (el) => {
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	};
	const elements = [];
	for (const el of document.querySelectorAll('a[href], button, input, select, textarea, [role="button"], [onclick]')) {
		if (!visible(el) || elements.length >= 150) continue;
		elements.push({
			tag: el.tagName.toLowerCase(),
			selector: selectorFor(el),
			text: (el.innerText || el.value || el.placeholder || '').trim().slice(0, 80),
			type: el.getAttribute('type') || ''
		});
	}
	const mainNode = document.querySelector('main, article, [role="main"]') || document.body;
	return {
		url: location.href,
		title: document.title,
		elements: elements,
		main: (mainNode && mainNode.innerText || '').trim()
	};
})()`

// Snapshotter extracts token-capped structural page summaries.
type Snapshotter struct {
	exec      schemas.PageExecutor
	counter   contextmgr.TokenCounter
	logger    *zap.Logger
	maxTokens int
}

var _ schemas.SnapshotProvider = (*Snapshotter)(nil)

// NewSnapshotter creates a snapshot provider on top of a page executor.
func NewSnapshotter(exec schemas.PageExecutor, counter contextmgr.TokenCounter, logger *zap.Logger, maxTokens int) (*Snapshotter, error) {
	if exec == nil {
		return nil, fmt.Errorf("browser: page executor is required")
	}
	if counter == nil {
		counter = contextmgr.EstimateCounter{}
	}
	if maxTokens <= 0 {
		maxTokens = defaultSnapshotTokens
	}
	return &Snapshotter{exec: exec, counter: counter, logger: logger.Named("snapshot"), maxTokens: maxTokens}, nil
}

// Snapshot collects and truncates the page summary for tabID.
func (s *Snapshotter) Snapshot(ctx context.Context, tabID string) (schemas.DOMSnapshot, error) {
	result, err := s.exec.Execute(ctx, collectorScript, schemas.ExecOptions{TabID: tabID})
	if err != nil {
		return schemas.DOMSnapshot{}, err
	}
	if !result.Success {
		return schemas.DOMSnapshot{}, fmt.Errorf("snapshot collection failed: %s", result.Error)
	}

	raw, ok := result.Result.(map[string]interface{})
	if !ok {
		return schemas.DOMSnapshot{}, fmt.Errorf("snapshot collection returned unexpected shape")
	}

	snapshot := schemas.DOMSnapshot{
		URL:   asString(raw["url"]),
		Title: asString(raw["title"]),
	}
	if list, ok := raw["elements"].([]interface{}); ok {
		for _, item := range list {
			el, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			snapshot.InteractiveElements = append(snapshot.InteractiveElements, schemas.InteractiveElement{
				Tag:      asString(el["tag"]),
				Selector: asString(el["selector"]),
				Text:     asString(el["text"]),
				Type:     asString(el["type"]),
			})
		}
	}

	snapshot.MainContent, snapshot.Truncated = TruncateToTokens(asString(raw["main"]), s.budgetForContent(snapshot), s.counter)
	snapshot.TokenEstimate = s.estimate(snapshot)
	if snapshot.Truncated {
		s.logger.Debug("Snapshot content truncated",
			zap.String("url", snapshot.URL), zap.Int("token_estimate", snapshot.TokenEstimate))
	}
	return snapshot, nil
}

// budgetForContent is what remains of the token ceiling after the element
// list is accounted for.
func (s *Snapshotter) budgetForContent(snapshot schemas.DOMSnapshot) int {
	used := s.counter.Count(snapshot.URL) + s.counter.Count(snapshot.Title)
	for _, el := range snapshot.InteractiveElements {
		used += s.counter.Count(el.Selector) + s.counter.Count(el.Text) + 2
	}
	budget := s.maxTokens - used
	if budget < 0 {
		return 0
	}
	return budget
}

func (s *Snapshotter) estimate(snapshot schemas.DOMSnapshot) int {
	total := s.counter.Count(snapshot.URL) + s.counter.Count(snapshot.Title) + s.counter.Count(snapshot.MainContent)
	for _, el := range snapshot.InteractiveElements {
		total += s.counter.Count(el.Selector) + s.counter.Count(el.Text) + 2
	}
	return total
}

// TruncateToTokens trims text to fit a token budget, cutting on a line
// boundary where possible. The second return reports whether anything was
// dropped.
func TruncateToTokens(text string, budget int, counter contextmgr.TokenCounter) (string, bool) {
	if counter.Count(text) <= budget {
		return text, false
	}
	if budget <= 0 {
		return "", true
	}

	lines := strings.Split(text, "\n")
	var kept []string
	used := 0
	for _, line := range lines {
		cost := counter.Count(line) + 1
		if used+cost > budget {
			break
		}
		kept = append(kept, line)
		used += cost
	}
	if len(kept) == 0 {
		// A single oversize line: hard-cut by the estimate ratio.
		cut := budget * 4
		if cut > len(text) {
			cut = len(text)
		}
		return text[:cut], true
	}
	return strings.Join(kept, "\n"), true
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
