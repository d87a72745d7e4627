// File: internal/llmclient/decode.go
package llmclient

import (
	"strings"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

// Providers that do not expose a dedicated reasoning channel interleave the
// trace with the answer inside <think> blocks. splitReasoning separates the
// two so every client returns the same dual-channel shape.
func splitReasoning(raw string) schemas.CompletionResult {
	const openTag, closeTag = "<think>", "</think>"

	var reasoning strings.Builder
	content := raw

	for {
		start := strings.Index(content, openTag)
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], closeTag)
		if end == -1 {
			// Unterminated block: treat the remainder as reasoning.
			reasoning.WriteString(strings.TrimSpace(content[start+len(openTag):]))
			content = content[:start]
			break
		}
		end += start
		reasoning.WriteString(strings.TrimSpace(content[start+len(openTag) : end]))
		reasoning.WriteString("\n")
		content = content[:start] + content[end+len(closeTag):]
	}

	return schemas.CompletionResult{
		Reasoning: strings.TrimSpace(reasoning.String()),
		Content:   strings.TrimSpace(content),
	}
}
