// File: internal/llmclient/router_test.go
package llmclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

// stubClient records which tier it was registered under.
type stubClient struct {
	name  string
	calls int
}

func (s *stubClient) Complete(ctx context.Context, messages []schemas.Message, opts schemas.CompletionOptions) (schemas.CompletionResult, error) {
	s.calls++
	return schemas.CompletionResult{Content: s.name}, nil
}

func (s *stubClient) Stream(ctx context.Context, messages []schemas.Message, opts schemas.CompletionOptions) (<-chan schemas.StreamChunk, error) {
	s.calls++
	out := make(chan schemas.StreamChunk, 2)
	out <- schemas.StreamChunk{Type: schemas.ChunkContent, Text: s.name}
	out <- schemas.StreamChunk{Type: schemas.ChunkDone}
	close(out)
	return out, nil
}

func TestRouterDispatchesByTier(t *testing.T) {
	fast := &stubClient{name: "fast"}
	powerful := &stubClient{name: "powerful"}
	router, err := NewRouter(zap.NewNop(), fast, powerful, 0, 0)
	require.NoError(t, err)

	result, err := router.Complete(context.Background(), nil, schemas.CompletionOptions{Tier: schemas.TierFast})
	require.NoError(t, err)
	assert.Equal(t, "fast", result.Content)

	result, err = router.Complete(context.Background(), nil, schemas.CompletionOptions{Tier: schemas.TierPowerful})
	require.NoError(t, err)
	assert.Equal(t, "powerful", result.Content)
}

func TestRouterDefaultsToPowerful(t *testing.T) {
	fast := &stubClient{name: "fast"}
	powerful := &stubClient{name: "powerful"}
	router, err := NewRouter(zap.NewNop(), fast, powerful, 0, 0)
	require.NoError(t, err)

	result, err := router.Complete(context.Background(), nil, schemas.CompletionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "powerful", result.Content)
	assert.Zero(t, fast.calls)
}

func TestRouterRequiresBothTiers(t *testing.T) {
	_, err := NewRouter(zap.NewNop(), nil, &stubClient{}, 0, 0)
	assert.Error(t, err)
}

func TestRouterRateLimitRespectsContext(t *testing.T) {
	fast := &stubClient{name: "fast"}
	powerful := &stubClient{name: "powerful"}
	// One request per 10 seconds with burst 1: the second call must block.
	router, err := NewRouter(zap.NewNop(), fast, powerful, 0.1, 1)
	require.NoError(t, err)

	_, err = router.Complete(context.Background(), nil, schemas.CompletionOptions{Tier: schemas.TierFast})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = router.Complete(ctx, nil, schemas.CompletionOptions{Tier: schemas.TierFast})
	assert.Error(t, err)
	assert.Equal(t, 1, fast.calls)
}

func TestRouterStream(t *testing.T) {
	fast := &stubClient{name: "fast"}
	powerful := &stubClient{name: "powerful"}
	router, err := NewRouter(zap.NewNop(), fast, powerful, 0, 0)
	require.NoError(t, err)

	stream, err := router.Stream(context.Background(), nil, schemas.CompletionOptions{Tier: schemas.TierFast})
	require.NoError(t, err)

	first := <-stream
	assert.Equal(t, schemas.ChunkContent, first.Type)
	assert.Equal(t, "fast", first.Text)
}
