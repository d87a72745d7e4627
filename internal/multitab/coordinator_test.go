// File: internal/multitab/coordinator_test.go
package multitab

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubTargetExecutor returns a canned result per tab after an optional
// simulated page latency.
type stubTargetExecutor struct {
	mu      sync.Mutex
	delay   time.Duration
	results map[string]schemas.RequestResult
	seenIDs []string
}

func (s *stubTargetExecutor) ExecuteTarget(_ context.Context, requestID string, target TargetRequest) schemas.RequestResult {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	s.seenIDs = append(s.seenIDs, requestID)
	s.mu.Unlock()
	if r, ok := s.results[target.TabID]; ok {
		return r
	}
	return schemas.RequestResult{Success: true}
}

func okResult(payloads ...interface{}) schemas.RequestResult {
	return schemas.RequestResult{
		Success:    true,
		Results:    payloads,
		Assessment: schemas.CompletionAssessment{Status: schemas.StatusComplete},
	}
}

func failResult(reason string) schemas.RequestResult {
	return schemas.RequestResult{
		Success:    false,
		Assessment: schemas.CompletionAssessment{Status: schemas.StatusFailed, Reason: reason},
	}
}

func targets(ids ...string) []TargetRequest {
	out := make([]TargetRequest, 0, len(ids))
	for _, id := range ids {
		out = append(out, TargetRequest{TabID: id})
	}
	return out
}

func TestExecuteRunsTargetsInParallel(t *testing.T) {
	exec := &stubTargetExecutor{delay: 150 * time.Millisecond}
	c, err := NewCoordinator(exec, zap.NewNop(), 0)
	require.NoError(t, err)

	start := time.Now()
	agg := c.Execute(context.Background(), "req-1", targets("t1", "t2", "t3", "t4", "t5"))
	elapsed := time.Since(start)

	assert.Equal(t, 5, agg.Succeeded)
	assert.Less(t, elapsed, 5*150*time.Millisecond,
		"five 150ms targets must finish well under the sequential total")
}

func TestExecutePartialFailure(t *testing.T) {
	exec := &stubTargetExecutor{results: map[string]schemas.RequestResult{
		"t1": okResult("a"),
		"t2": okResult("b"),
		"t3": failResult("recovery aborted: identical error repeated three times"),
		"t4": okResult("c"),
	}}
	c, err := NewCoordinator(exec, zap.NewNop(), 0)
	require.NoError(t, err)

	agg := c.Execute(context.Background(), "req-1", targets("t1", "t2", "t3", "t4"))

	assert.True(t, agg.Success, "partial failure is reported, not fatal")
	assert.Equal(t, 3, agg.Succeeded)
	assert.Equal(t, 4, agg.Total)
	require.Len(t, agg.Errors, 1)
	assert.Equal(t, "t3: recovery aborted: identical error repeated three times", agg.Errors[0])
	assert.ElementsMatch(t, []interface{}{"a", "b", "c"}, agg.Results)
}

func TestExecuteAllTargetsFailed(t *testing.T) {
	exec := &stubTargetExecutor{results: map[string]schemas.RequestResult{
		"t1": failResult("boom"),
		"t2": failResult("boom"),
	}}
	c, err := NewCoordinator(exec, zap.NewNop(), 0)
	require.NoError(t, err)

	agg := c.Execute(context.Background(), "req-1", targets("t1", "t2"))

	assert.False(t, agg.Success)
	assert.Equal(t, 0, agg.Succeeded)
	assert.Len(t, agg.Errors, 2)
}

func TestExecuteDeduplicatesPayloads(t *testing.T) {
	exec := &stubTargetExecutor{results: map[string]schemas.RequestResult{
		"t1": okResult(map[string]interface{}{"title": "x"}, "shared"),
		"t2": okResult("shared", "unique"),
	}}
	c, err := NewCoordinator(exec, zap.NewNop(), 0)
	require.NoError(t, err)

	agg := c.Execute(context.Background(), "req-1", targets("t1", "t2"))

	assert.ElementsMatch(t,
		[]interface{}{map[string]interface{}{"title": "x"}, "shared", "unique"},
		agg.Results)
}

func TestExecuteScopesSubRequestIDs(t *testing.T) {
	exec := &stubTargetExecutor{}
	c, err := NewCoordinator(exec, zap.NewNop(), 1)
	require.NoError(t, err)

	c.Execute(context.Background(), "req-1", targets("t1", "t2"))

	assert.ElementsMatch(t, []string{"req-1/t1", "req-1/t2"}, exec.seenIDs)
}

func TestNewCoordinatorRequiresExecutor(t *testing.T) {
	_, err := NewCoordinator(nil, zap.NewNop(), 0)
	assert.Error(t, err)
}
