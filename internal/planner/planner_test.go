// File: internal/planner/planner_test.go
package planner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/config"
	"github.com/webpilot-ai/webpilot/internal/selectorcache"
)

type stubCompletion struct {
	result  schemas.CompletionResult
	err     error
	gotUser string
}

func (s *stubCompletion) Complete(_ context.Context, messages []schemas.Message, _ schemas.CompletionOptions) (schemas.CompletionResult, error) {
	for _, m := range messages {
		if m.Role == schemas.RoleUser {
			s.gotUser = m.Content
		}
	}
	return s.result, s.err
}

func (s *stubCompletion) Stream(context.Context, []schemas.Message, schemas.CompletionOptions) (<-chan schemas.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func TestLLMPlannerDecodesPlan(t *testing.T) {
	client := &stubCompletion{result: schemas.CompletionResult{
		Content: "```json\n" + `{"commands":["navigate https://example.com","click #login"],"max_iterations":0}` + "\n```",
	}}
	p, err := NewLLMPlanner(client, nil, nil, zap.NewNop(), 15*time.Second)
	require.NoError(t, err)

	plan, err := p.Plan(context.Background(), schemas.Goal{Intent: schemas.IntentWorkflow, PrimaryGoal: "log in"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"navigate https://example.com", "click #login"}, plan.Commands)
}

func TestLLMPlannerRejectsEmptyPlan(t *testing.T) {
	client := &stubCompletion{result: schemas.CompletionResult{Content: `{"commands":[]}`}}
	p, err := NewLLMPlanner(client, nil, nil, zap.NewNop(), 0)
	require.NoError(t, err)

	_, err = p.Plan(context.Background(), schemas.Goal{PrimaryGoal: "x"}, nil)
	assert.Error(t, err)
}

func TestLLMPlannerRejectsUnknownVerb(t *testing.T) {
	client := &stubCompletion{result: schemas.CompletionResult{Content: `{"commands":["teleport mars"]}`}}
	p, err := NewLLMPlanner(client, nil, nil, zap.NewNop(), 0)
	require.NoError(t, err)

	_, err = p.Plan(context.Background(), schemas.Goal{PrimaryGoal: "x"}, nil)
	assert.Error(t, err)
}

func TestLLMPlannerFeedsCachedSelectors(t *testing.T) {
	cache := selectorcache.NewCache(zap.NewNop(), config.CacheConfig{TTL: time.Hour, PrefetchThreshold: 2})
	cache.Put(selectorcache.Key{Domain: "shop.example.com", URLPattern: "/cart", ElementKey: "checkout"}, "#checkout", nil)
	cache.RecordNavigation("https://example.com/", "https://shop.example.com/cart")
	cache.RecordNavigation("https://example.com/", "https://shop.example.com/cart")

	client := &stubCompletion{result: schemas.CompletionResult{Content: `{"commands":["click #checkout"]}`}}
	p, err := NewLLMPlanner(client, cache, nil, zap.NewNop(), 0)
	require.NoError(t, err)

	_, err = p.Plan(context.Background(),
		schemas.Goal{Intent: schemas.IntentInteract, PrimaryGoal: "check out"},
		&schemas.PageState{URL: "https://example.com/", Title: "Example"})
	require.NoError(t, err)
	assert.Contains(t, client.gotUser, "#checkout")
}

type stubMemory struct {
	rendered string
}

func (s *stubMemory) Render() string { return s.rendered }

func (s *stubMemory) Retrieve(string, int) []schemas.ContextItem { return nil }

func TestLLMPlannerFeedsSessionContext(t *testing.T) {
	client := &stubCompletion{result: schemas.CompletionResult{Content: `{"commands":["navigate https://example.com"]}`}}
	memory := &stubMemory{rendered: "[session summary, 4 items]\nsigned in as demo user"}
	p, err := NewLLMPlanner(client, nil, memory, zap.NewNop(), 0)
	require.NoError(t, err)

	_, err = p.Plan(context.Background(),
		schemas.Goal{Intent: schemas.IntentNavigate, PrimaryGoal: "open example"}, nil)
	require.NoError(t, err)
	assert.Contains(t, client.gotUser, "Session context:")
	assert.Contains(t, client.gotUser, "signed in as demo user")
}

func TestFallbackNeverReturnsEmptyPlan(t *testing.T) {
	client := &stubCompletion{err: errors.New("model down")}
	primary, err := NewLLMPlanner(client, nil, nil, zap.NewNop(), 0)
	require.NoError(t, err)
	p := NewFallback(primary, NewRulePlanner(), zap.NewNop())

	plan, err := p.Plan(context.Background(),
		schemas.Goal{Intent: schemas.IntentSearch, PrimaryGoal: "search for go generics"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, plan.Commands)
}

func TestRulePlannerNavigateScenario(t *testing.T) {
	p := NewRulePlanner()

	plan, err := p.Plan(context.Background(),
		schemas.Goal{Intent: schemas.IntentNavigate, PrimaryGoal: "go to news.ycombinator.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"navigate https://news.ycombinator.com"}, plan.Commands)
}

func TestRulePlannerSearch(t *testing.T) {
	p := NewRulePlanner()

	plan, err := p.Plan(context.Background(),
		schemas.Goal{Intent: schemas.IntentSearch, PrimaryGoal: "search for mechanical keyboards"}, nil)
	require.NoError(t, err)
	require.Len(t, plan.Commands, 2)
	assert.True(t, strings.HasPrefix(plan.Commands[0], "navigate https://duckduckgo.com/?q="))
	assert.Contains(t, plan.Commands[0], "mechanical+keyboards")
	assert.Equal(t, "extract body", plan.Commands[1])
}

func TestRulePlannerNamedEngine(t *testing.T) {
	p := NewRulePlanner()

	plan, err := p.Plan(context.Background(),
		schemas.Goal{Intent: schemas.IntentSearch, PrimaryGoal: "search github for chromedp"}, nil)
	require.NoError(t, err)
	assert.Contains(t, plan.Commands[0], "github.com/search?q=")
	assert.Contains(t, plan.Commands[0], "chromedp")
}

func TestRulePlannerExtractWithURL(t *testing.T) {
	p := NewRulePlanner()

	plan, err := p.Plan(context.Background(),
		schemas.Goal{Intent: schemas.IntentExtract, PrimaryGoal: "extract headlines from news.ycombinator.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"navigate https://news.ycombinator.com", "extract body"}, plan.Commands)
}

func TestRulePlannerCatchAll(t *testing.T) {
	p := NewRulePlanner()

	plan, err := p.Plan(context.Background(),
		schemas.Goal{Intent: schemas.IntentWorkflow, PrimaryGoal: "do several complicated things"}, nil)
	require.NoError(t, err)
	require.Len(t, plan.Commands, 1)
	assert.True(t, strings.HasPrefix(plan.Commands[0], "execute "))
}
