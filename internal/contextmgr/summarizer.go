// File: internal/contextmgr/summarizer.go
package contextmgr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

// LLMSummarizer folds history batches into prose with a fast-tier
// completion call. Compression still succeeds when the call fails; the
// compressor falls back to its extractive fold.
type LLMSummarizer struct {
	client  schemas.CompletionClient
	timeout time.Duration
}

// NewLLMSummarizer creates a summarizer over the given client. A zero
// timeout defaults to 12 seconds.
func NewLLMSummarizer(client schemas.CompletionClient, timeout time.Duration) *LLMSummarizer {
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &LLMSummarizer{client: client, timeout: timeout}
}

const summarySystemPrompt = `You compress browser-agent session history.
Summarize the following events into at most five short sentences.
Preserve URLs, selectors, extracted values and error messages verbatim.
Respond with plain prose only.`

// Summarize implements Summarizer.
func (s *LLMSummarizer) Summarize(ctx context.Context, items []schemas.ContextItem) (string, error) {
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "[%s] %s\n", item.Kind, item.Content)
	}

	result, err := s.client.Complete(ctx, []schemas.Message{
		{Role: schemas.RoleSystem, Content: summarySystemPrompt},
		{Role: schemas.RoleUser, Content: b.String()},
	}, schemas.CompletionOptions{Timeout: s.timeout, Tier: schemas.TierFast})
	if err != nil {
		return "", fmt.Errorf("summary generation failed: %w", err)
	}
	return strings.TrimSpace(result.Content), nil
}
