// api/schemas/page.go
package schemas

import "context"

// PageState is the minimal page summary the planner needs before it has a
// full DOM snapshot.
type PageState struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	HasContent bool   `json:"has_content"`
}

// ExecOptions bound a single in-page script execution.
type ExecOptions struct {
	TimeoutMs int    `json:"timeout_ms"`
	TabID     string `json:"tab_id,omitempty"`
}

// PageResult is the outcome of one in-page script execution. The executor
// collaborator serializes exotic return values defensively (depth cap,
// circular-reference markers) and never lets a page exception escape as a
// Go panic.
type PageResult struct {
	Success    bool        `json:"success"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	Stack      string      `json:"stack,omitempty"`
	DurationMs int64       `json:"duration_ms"`
	TimedOut   bool        `json:"timed_out,omitempty"`
}

// InteractiveElement is one actionable element surfaced by a DOM snapshot.
type InteractiveElement struct {
	Tag      string `json:"tag"`
	Selector string `json:"selector"`
	Text     string `json:"text,omitempty"`
	Type     string `json:"type,omitempty"`
}

// DOMSnapshot is a bounded structural summary of a page. Providers must
// self-truncate to their token ceiling before returning.
type DOMSnapshot struct {
	URL                 string               `json:"url"`
	Title               string               `json:"title"`
	InteractiveElements []InteractiveElement `json:"interactive_elements"`
	MainContent         string               `json:"main_content"`
	TokenEstimate       int                  `json:"token_estimate"`
	Truncated           bool                 `json:"truncated"`
}

// GeneratedCode is the code generator's output for one command.
type GeneratedCode struct {
	Success    bool   `json:"success"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error,omitempty"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}

// PageExecutor runs script text inside a page target.
type PageExecutor interface {
	Execute(ctx context.Context, script string, opts ExecOptions) (PageResult, error)
}

// SnapshotProvider extracts a token-capped structural summary of a page.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, tabID string) (DOMSnapshot, error)
}

// CodeGenerator turns a natural-language command plus page context into
// executable script text.
type CodeGenerator interface {
	Generate(ctx context.Context, command string, snapshot *DOMSnapshot) (GeneratedCode, error)
}
