// File: internal/codegen/generator.go
package codegen

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/llmutil"
)

const generateSystemPrompt = `You are the code generator of a browser automation agent.
Write a single JavaScript IIFE that performs the instruction against the current page and
returns a JSON-serializable value describing what it did or found.
Rules:
- Respond with ONLY the code, optionally in one markdown fence. No prose.
- The code must be self-contained: no imports, no top-level await outside the IIFE.
- Prefer the selectors listed in the page context block.
- Throw an Error with a descriptive message when a required element is missing.`

// Generator turns a natural-language command plus a DOM snapshot into
// executable script text via one model call.
type Generator struct {
	client  schemas.CompletionClient
	logger  *zap.Logger
	timeout time.Duration
}

var _ schemas.CodeGenerator = (*Generator)(nil)

// New creates a code generator.
func New(client schemas.CompletionClient, logger *zap.Logger, timeout time.Duration) (*Generator, error) {
	if client == nil {
		return nil, fmt.Errorf("codegen: completion client is required")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Generator{client: client, logger: logger.Named("codegen"), timeout: timeout}, nil
}

// Generate produces script text for one command. Failures are reported in
// the result, not as an error, so callers can fall back uniformly.
func (g *Generator) Generate(ctx context.Context, command string, snapshot *schemas.DOMSnapshot) (schemas.GeneratedCode, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Instruction: %s\n", command)
	if snapshot != nil {
		fmt.Fprintf(&sb, "Page: %s (%s)\n", snapshot.Title, snapshot.URL)
		for _, el := range snapshot.InteractiveElements {
			attrs, _ := json.MarshalToString(el)
			fmt.Fprintf(&sb, "Element: %s\n", attrs)
		}
		if snapshot.MainContent != "" {
			fmt.Fprintf(&sb, "Visible content:\n%s\n", snapshot.MainContent)
		}
	}

	result, err := g.client.Complete(ctx, []schemas.Message{
		{Role: schemas.RoleSystem, Content: generateSystemPrompt},
		{Role: schemas.RoleUser, Content: sb.String()},
	}, schemas.CompletionOptions{
		Timeout: g.timeout,
		Tier:    schemas.TierPowerful,
	})
	if err != nil {
		return schemas.GeneratedCode{Success: false, Error: err.Error()}, nil
	}

	code := llmutil.StripCodeFences(result.Content)
	if code == "" {
		return schemas.GeneratedCode{Success: false, Error: "model returned no code"}, nil
	}
	g.logger.Debug("Generated page script", zap.String("command", command), zap.Int("bytes", len(code)))
	return schemas.GeneratedCode{Success: true, Code: code}, nil
}
