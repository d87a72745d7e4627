// File: internal/contextmgr/compressor.go
package contextmgr

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/config"
)

// Summarizer compresses a batch of history items into prose. Optional; when
// nil the compressor uses a deterministic extractive fold, so compression
// never depends on a live model.
type Summarizer interface {
	Summarize(ctx context.Context, items []schemas.ContextItem) (string, error)
}

// Relevance weights. User input and tool results carry the signal; system
// boilerplate and assistant chatter are the first to go.
var kindWeights = map[schemas.ContextKind]float64{
	schemas.KindUser:        1.0,
	schemas.KindToolResult:  0.9,
	schemas.KindObservation: 0.7,
	schemas.KindToolCall:    0.6,
	schemas.KindAssistant:   0.4,
	schemas.KindSystem:      0.3,
}

const (
	weightRecency = 0.40
	weightOverlap = 0.35
	weightKind    = 0.25

	// recencyHalfLife controls how fast old items decay.
	recencyHalfLife = 10 * time.Minute
)

// CompressionResult reports one compression pass.
type CompressionResult struct {
	TokensBefore int     `json:"tokens_before"`
	TokensAfter  int     `json:"tokens_after"`
	Ratio        float64 `json:"ratio"` // 1 - after/before
	ItemsDropped int     `json:"items_dropped"`
	ItemsFolded  int     `json:"items_folded"`
}

// Compressor keeps the rolling session history inside a token budget using
// relevance-ranked pruning and a three-tier summary hierarchy: recent items
// stay verbatim, older spans fold into session summaries, and session
// summaries compound into a historical summary.
type Compressor struct {
	mu         sync.Mutex
	logger     *zap.Logger
	counter    TokenCounter
	summarizer Summarizer

	items      []schemas.ContextItem    // chronological
	session    []schemas.ContextSummary // chronological
	historical []schemas.ContextSummary // chronological

	goalKeywords map[string]struct{}

	batchSize int // items folded per session summary
	foldCount int // session summaries folded per historical summary

	now func() time.Time
}

// NewCompressor creates a compressor. counter must not be nil; summarizer
// may be nil.
func NewCompressor(logger *zap.Logger, counter TokenCounter, summarizer Summarizer, cfg config.ContextConfig) *Compressor {
	batch := cfg.SummaryBatchSize
	if batch <= 0 {
		batch = 10
	}
	fold := cfg.SessionFoldCount
	if fold <= 0 {
		fold = 5
	}
	return &Compressor{
		logger:       logger.Named("context_compressor"),
		counter:      counter,
		summarizer:   summarizer,
		goalKeywords: make(map[string]struct{}),
		batchSize:    batch,
		foldCount:    fold,
		now:          time.Now,
	}
}

// SetGoal extracts keywords from the active goal for overlap scoring.
func (c *Compressor) SetGoal(goal schemas.Goal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goalKeywords = keywordSet(goal.PrimaryGoal + " " + strings.Join(goal.SuccessCriteria, " "))
}

// Add appends one history item, filling in ID, timestamp and token count
// when the caller left them zero.
func (c *Compressor) Add(item schemas.ContextItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = c.now()
	}
	if item.TokenCount == 0 {
		item.TokenCount = c.counter.Count(item.Content)
	}
	c.items = append(c.items, item)
}

// TotalTokens returns the running token total across raw items and
// summaries.
func (c *Compressor) TotalTokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalLocked()
}

func (c *Compressor) totalLocked() int {
	total := 0
	for _, it := range c.items {
		total += it.TokenCount
	}
	for _, s := range c.session {
		total += s.TokenCount
	}
	for _, s := range c.historical {
		total += s.TokenCount
	}
	return total
}

// Compress reduces the history until the running total fits the budget.
// Oldest items fold into session summaries first; if the total still
// exceeds the budget, the lowest-relevance items are dropped; summaries
// themselves are dropped oldest-first only as a last resort. The returned
// total never exceeds the budget.
func (c *Compressor) Compress(ctx context.Context, budget int) CompressionResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.totalLocked()
	result := CompressionResult{TokensBefore: before}
	if before <= budget {
		result.TokensAfter = before
		return result
	}

	// Tier fold: oldest raw items become session summaries, keeping at
	// least one batch verbatim as the "recent" tier.
	for c.totalLocked() > budget && len(c.items) > c.batchSize {
		batch := c.items[:c.batchSize]
		c.items = c.items[c.batchSize:]
		c.session = append(c.session, c.summarizeBatch(ctx, batch))
		result.ItemsFolded += len(batch)
	}

	// Session summaries compound into the historical tier once enough of
	// them accumulate.
	for len(c.session) >= c.foldCount {
		fold := c.session[:c.foldCount]
		c.session = c.session[c.foldCount:]
		c.historical = append(c.historical, foldSummaries(fold, c.counter))
	}

	// Relevance prune: drop the weakest raw items until the budget holds.
	if c.totalLocked() > budget {
		result.ItemsDropped += c.dropLowestRelevance(budget)
	}

	// Last resort: shed summary tiers oldest-first.
	for c.totalLocked() > budget && len(c.historical) > 0 {
		c.historical = c.historical[1:]
	}
	for c.totalLocked() > budget && len(c.session) > 0 {
		c.session = c.session[1:]
	}

	result.TokensAfter = c.totalLocked()
	if before > 0 {
		result.Ratio = 1.0 - float64(result.TokensAfter)/float64(before)
	}

	c.logger.Debug("Context compressed",
		zap.Int("before", before),
		zap.Int("after", result.TokensAfter),
		zap.Int("budget", budget),
		zap.Int("dropped", result.ItemsDropped),
		zap.Int("folded", result.ItemsFolded),
	)
	return result
}

// dropLowestRelevance removes raw items in ascending relevance order until
// the total fits the budget, returning how many were dropped.
func (c *Compressor) dropLowestRelevance(budget int) int {
	now := c.now()
	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(c.items))
	for i := range c.items {
		score := c.scoreLocked(&c.items[i], now)
		c.items[i].Relevance = score
		ranked[i] = scored{idx: i, score: score}
	}
	sort.Slice(ranked, func(a, b int) bool { return ranked[a].score < ranked[b].score })

	doomed := make(map[int]struct{})
	total := c.totalLocked()
	for _, r := range ranked {
		if total <= budget {
			break
		}
		doomed[r.idx] = struct{}{}
		total -= c.items[r.idx].TokenCount
	}
	if len(doomed) == 0 {
		return 0
	}

	kept := c.items[:0]
	for i := range c.items {
		if _, gone := doomed[i]; !gone {
			kept = append(kept, c.items[i])
		}
	}
	c.items = kept
	return len(doomed)
}

// scoreLocked computes relevance = recency decay + goal keyword overlap +
// per-kind weight.
func (c *Compressor) scoreLocked(item *schemas.ContextItem, now time.Time) float64 {
	age := now.Sub(item.Timestamp)
	if age < 0 {
		age = 0
	}
	recency := math.Exp(-float64(age) / float64(recencyHalfLife))

	overlap := 0.0
	if len(c.goalKeywords) > 0 {
		itemWords := keywordSet(item.Content)
		matched := 0
		for w := range itemWords {
			if _, ok := c.goalKeywords[w]; ok {
				matched++
			}
		}
		overlap = float64(matched) / float64(len(c.goalKeywords))
		if overlap > 1 {
			overlap = 1
		}
	}

	kind, ok := kindWeights[item.Kind]
	if !ok {
		kind = 0.5
	}

	return weightRecency*recency + weightOverlap*overlap + weightKind*kind
}

// summarizeBatch folds a batch of items into one session summary, via the
// LLM summarizer when available, else extractively.
func (c *Compressor) summarizeBatch(ctx context.Context, batch []schemas.ContextItem) schemas.ContextSummary {
	content := ""
	if c.summarizer != nil {
		if text, err := c.summarizer.Summarize(ctx, batch); err == nil && text != "" {
			content = text
		} else if err != nil {
			c.logger.Warn("LLM summarization failed, using extractive fold", zap.Error(err))
		}
	}
	if content == "" {
		content = extractiveFold(batch)
	}

	return schemas.ContextSummary{
		Level:      schemas.LevelSession,
		Content:    content,
		TokenCount: c.counter.Count(content),
		ItemCount:  len(batch),
		From:       batch[0].Timestamp,
		To:         batch[len(batch)-1].Timestamp,
	}
}

// extractiveFold is the deterministic fallback summary: one clipped line
// per item, tagged with its kind.
func extractiveFold(batch []schemas.ContextItem) string {
	const clip = 80
	var b strings.Builder
	for _, item := range batch {
		line := strings.TrimSpace(item.Content)
		if idx := strings.IndexByte(line, '\n'); idx >= 0 {
			line = line[:idx]
		}
		if len(line) > clip {
			line = line[:clip] + "…"
		}
		fmt.Fprintf(&b, "[%s] %s\n", item.Kind, line)
	}
	return strings.TrimSpace(b.String())
}

// foldSummaries compounds session summaries into one historical summary.
func foldSummaries(fold []schemas.ContextSummary, counter TokenCounter) schemas.ContextSummary {
	var b strings.Builder
	for _, s := range fold {
		b.WriteString(s.Content)
		b.WriteString("\n")
	}
	content := strings.TrimSpace(b.String())

	items := 0
	for _, s := range fold {
		items += s.ItemCount
	}

	return schemas.ContextSummary{
		Level:      schemas.LevelHistorical,
		Content:    content,
		TokenCount: counter.Count(content),
		ItemCount:  items,
		From:       fold[0].From,
		To:         fold[len(fold)-1].To,
	}
}

// Render formats the history for a prompt: summaries before raw recent
// items, oldest tier first.
func (c *Compressor) Render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	for _, s := range c.historical {
		fmt.Fprintf(&b, "[earlier session, %d items]\n%s\n\n", s.ItemCount, s.Content)
	}
	for _, s := range c.session {
		fmt.Fprintf(&b, "[session summary, %d items]\n%s\n\n", s.ItemCount, s.Content)
	}
	for _, item := range c.items {
		fmt.Fprintf(&b, "[%s] %s\n", item.Kind, item.Content)
	}
	return strings.TrimSpace(b.String())
}

// Retrieve returns the k raw items best matching the query by keyword
// overlap, most relevant first. Used for targeted recall in long sessions.
func (c *Compressor) Retrieve(query string, k int) []schemas.ContextItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	queryWords := keywordSet(query)
	if len(queryWords) == 0 || k <= 0 {
		return nil
	}

	type scored struct {
		item  schemas.ContextItem
		score int
	}
	var hits []scored
	for _, item := range c.items {
		itemWords := keywordSet(item.Content)
		matched := 0
		for w := range queryWords {
			if _, ok := itemWords[w]; ok {
				matched++
			}
		}
		if matched > 0 {
			hits = append(hits, scored{item: item, score: matched})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]schemas.ContextItem, len(hits))
	for i, h := range hits {
		out[i] = h.item
	}
	return out
}

var wordRe = regexp.MustCompile(`[a-z0-9]{3,}`)

// keywordSet lowercases and tokenizes text, keeping words of three or more
// characters and skipping a tiny stopword list.
func keywordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if _, stop := stopwords[w]; stop {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {},
	"from": {}, "are": {}, "was": {}, "has": {}, "have": {}, "will": {},
	"you": {}, "your": {}, "not": {}, "all": {}, "can": {}, "its": {},
}
