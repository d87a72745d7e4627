// api/schemas/context.go
package schemas

import "time"

// ContextKind categorizes session history items. The compressor weights
// kinds differently when ranking relevance: user input and tool results
// matter more than assistant chatter or system boilerplate.
type ContextKind string

const (
	KindUser        ContextKind = "user"
	KindAssistant   ContextKind = "assistant"
	KindToolCall    ContextKind = "tool_call"
	KindToolResult  ContextKind = "tool_result"
	KindObservation ContextKind = "observation"
	KindSystem      ContextKind = "system"
)

// ContextItem is one unit of rolling session history.
type ContextItem struct {
	ID         string      `json:"id"`
	Kind       ContextKind `json:"kind"`
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
	TokenCount int         `json:"token_count"`
	Relevance  float64     `json:"relevance,omitempty"`
}

// SummaryLevel is the tier of a ContextSummary within the three-level
// hierarchy: recent items stay verbatim, then fold into session summaries,
// which themselves compound into historical summaries.
type SummaryLevel string

const (
	LevelRecent     SummaryLevel = "recent"
	LevelSession    SummaryLevel = "session"
	LevelHistorical SummaryLevel = "historical"
)

// SessionMemory exposes the compressed conversation history to prompt
// builders. Render formats the whole history with summaries before raw
// recent items; Retrieve pulls up to k raw items relevant to a query.
type SessionMemory interface {
	Render() string
	Retrieve(query string, k int) []ContextItem
}

// ContextSummary is a compressed span of history. Summaries are themselves
// re-summarizable (session -> historical).
type ContextSummary struct {
	Level      SummaryLevel `json:"level"`
	Content    string       `json:"content"`
	TokenCount int          `json:"token_count"`
	ItemCount  int          `json:"item_count"`
	From       time.Time    `json:"from"`
	To         time.Time    `json:"to"`
}
