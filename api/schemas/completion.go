// api/schemas/completion.go
package schemas

import (
	"context"
	"time"
)

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is a single turn in an LLM conversation.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// ModelTier selects between the fast (cheap, low-latency) and powerful
// (expensive, higher-quality) model routes.
type ModelTier string

const (
	TierFast     ModelTier = "fast"
	TierPowerful ModelTier = "powerful"
)

// CompletionOptions bound a single LLM call. Timeout must always be set by
// the caller; clients enforce it and report expiry as a timeout error,
// distinguishable from transport failures.
type CompletionOptions struct {
	Timeout     time.Duration `json:"timeout"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	ForceJSON   bool          `json:"force_json,omitempty"`
	Tier        ModelTier     `json:"tier,omitempty"`
}

// CompletionResult carries the dual-channel output of a completion call:
// the model's reasoning trace (when the provider exposes one) and the final
// answer content.
type CompletionResult struct {
	Reasoning string `json:"reasoning,omitempty"`
	Content   string `json:"content"`
}

// StreamChunkType discriminates chunks on a streaming completion.
type StreamChunkType string

const (
	ChunkReasoning StreamChunkType = "reasoning"
	ChunkContent   StreamChunkType = "content"
	ChunkDone      StreamChunkType = "done"
	ChunkError     StreamChunkType = "error"
)

// StreamChunk is one increment of a streaming completion.
type StreamChunk struct {
	Type StreamChunkType `json:"type"`
	Text string          `json:"text,omitempty"`
}

// CompletionClient is the uniform LLM access contract consumed by the
// parser, planner, evaluator, summarizer and code generator. Implementations
// must honor the per-call timeout and never panic across this boundary.
type CompletionClient interface {
	// Complete performs a non-streaming call and returns both channels.
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (CompletionResult, error)
	// Stream performs a streaming call. The returned channel is closed after
	// a terminal ChunkDone or ChunkError.
	Stream(ctx context.Context, messages []Message, opts CompletionOptions) (<-chan StreamChunk, error)
}
