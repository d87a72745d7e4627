// File: internal/contextmgr/compressor_test.go
package contextmgr

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/config"
)

func newTestCompressor() *Compressor {
	cfg := config.ContextConfig{SummaryBatchSize: 10, SessionFoldCount: 5}
	return NewCompressor(zap.NewNop(), EstimateCounter{}, nil, cfg)
}

// fill adds items until the compressor holds at least wantTokens.
func fill(c *Compressor, wantTokens int, kind schemas.ContextKind) int {
	// ~25 tokens per item with the len/4 estimate.
	chunk := strings.Repeat("browsing step detail ", 5)
	added := 0
	for c.TotalTokens() < wantTokens {
		c.Add(schemas.ContextItem{Kind: kind, Content: chunk})
		added++
	}
	return added
}

func TestAddFillsDefaults(t *testing.T) {
	c := newTestCompressor()
	c.Add(schemas.ContextItem{Kind: schemas.KindUser, Content: "find cheap flights"})

	require.Len(t, c.items, 1)
	item := c.items[0]
	assert.NotEmpty(t, item.ID)
	assert.False(t, item.Timestamp.IsZero())
	assert.Positive(t, item.TokenCount)
}

func TestCompressUnderBudgetIsNoop(t *testing.T) {
	c := newTestCompressor()
	c.Add(schemas.ContextItem{Kind: schemas.KindUser, Content: "short"})

	before := c.TotalTokens()
	result := c.Compress(context.Background(), 1000)
	assert.Equal(t, before, result.TokensAfter)
	assert.Zero(t, result.ItemsDropped)
}

func TestCompressMeetsBudgetAndRatio(t *testing.T) {
	c := newTestCompressor()
	fill(c, 5000, schemas.KindAssistant)

	before := c.TotalTokens()
	require.GreaterOrEqual(t, before, 5000)

	result := c.Compress(context.Background(), 2000)

	assert.LessOrEqual(t, c.TotalTokens(), 2000, "total must never exceed the budget")
	assert.LessOrEqual(t, result.TokensAfter, 2000)
	assert.GreaterOrEqual(t, result.Ratio, 0.4, "5000 -> 2000 budget implies ratio >= 0.4")
}

func TestCompressPrefersDroppingLowValueKinds(t *testing.T) {
	c := newTestCompressor()
	c.SetGoal(schemas.Goal{PrimaryGoal: "extract product prices"})

	// Old system chatter, far from the goal.
	old := time.Now().Add(-2 * time.Hour)
	for i := 0; i < 8; i++ {
		c.Add(schemas.ContextItem{Kind: schemas.KindSystem, Content: strings.Repeat("housekeeping notice ", 10), Timestamp: old})
	}
	// A fresh, goal-relevant tool result.
	c.Add(schemas.ContextItem{Kind: schemas.KindToolResult, Content: "extract returned product prices: 19.99, 24.50"})

	c.Compress(context.Background(), 60)

	rendered := c.Render()
	assert.Contains(t, rendered, "product prices")
}

func TestSummaryHierarchyFolds(t *testing.T) {
	cfg := config.ContextConfig{SummaryBatchSize: 2, SessionFoldCount: 2}
	c := NewCompressor(zap.NewNop(), EstimateCounter{}, nil, cfg)

	for i := 0; i < 12; i++ {
		c.Add(schemas.ContextItem{Kind: schemas.KindObservation, Content: strings.Repeat("page state observed ", 10)})
	}

	c.Compress(context.Background(), 300)

	// With batch 2 and fold 2, aggressive compression must have produced
	// historical summaries from compounded session summaries.
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.NotEmpty(t, c.historical, "session summaries should compound into the historical tier")
	for _, s := range c.historical {
		assert.Equal(t, schemas.LevelHistorical, s.Level)
	}
}

func TestRenderOrdersOldestTierFirst(t *testing.T) {
	c := newTestCompressor()
	c.historical = append(c.historical, schemas.ContextSummary{Level: schemas.LevelHistorical, Content: "HIST", ItemCount: 4})
	c.session = append(c.session, schemas.ContextSummary{Level: schemas.LevelSession, Content: "SESS", ItemCount: 2})
	c.Add(schemas.ContextItem{Kind: schemas.KindUser, Content: "RECENT"})

	rendered := c.Render()
	histIdx := strings.Index(rendered, "HIST")
	sessIdx := strings.Index(rendered, "SESS")
	recentIdx := strings.Index(rendered, "RECENT")
	require.True(t, histIdx >= 0 && sessIdx >= 0 && recentIdx >= 0)
	assert.Less(t, histIdx, sessIdx)
	assert.Less(t, sessIdx, recentIdx)
}

func TestRetrieveRanksByOverlap(t *testing.T) {
	c := newTestCompressor()
	c.Add(schemas.ContextItem{Kind: schemas.KindToolResult, Content: "flight prices from berlin to tokyo"})
	c.Add(schemas.ContextItem{Kind: schemas.KindToolResult, Content: "weather report for berlin"})
	c.Add(schemas.ContextItem{Kind: schemas.KindToolResult, Content: "hotel listings in osaka"})

	hits := c.Retrieve("berlin tokyo flight", 2)
	require.Len(t, hits, 2)
	assert.Contains(t, hits[0].Content, "flight prices")
}

func TestRetrieveEmptyQuery(t *testing.T) {
	c := newTestCompressor()
	c.Add(schemas.ContextItem{Kind: schemas.KindUser, Content: "anything"})
	assert.Nil(t, c.Retrieve("", 3))
}

func TestEstimateCounter(t *testing.T) {
	counter := EstimateCounter{}
	assert.Equal(t, 0, counter.Count(""))
	assert.Equal(t, 1, counter.Count("abc"))
	assert.Equal(t, 5, counter.Count(strings.Repeat("a", 20)))
}
