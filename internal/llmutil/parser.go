// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
)

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// fencedObjectRe extracts a JSON object wrapped in a markdown code fence.
	fencedObjectRe = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	// fencedArrayRe extracts a JSON array wrapped in a markdown code fence.
	fencedArrayRe = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")

	// fencedBlockRe extracts any fenced block regardless of language tag.
	fencedBlockRe = regexp.MustCompile("(?s)\x60\x60\x60[a-zA-Z]*\\s*(.*?)\\s*\x60\x60\x60")
)

// DecodeJSON parses a model response into T, tolerating the usual
// formatting noise: markdown fences, language tags, and conversational
// text surrounding the JSON payload.
func DecodeJSON[T any](response string) (*T, error) {
	payload := extractJSON(strings.TrimSpace(response))

	var result T
	if err := json.UnmarshalFromString(payload, &result); err != nil {
		return nil, fmt.Errorf("decode model JSON: %w (payload: %s)", err, clip(payload, 500))
	}
	return &result, nil
}

func extractJSON(response string) string {
	hasObject := strings.Contains(response, "{")
	hasArray := strings.Contains(response, "[")

	if strings.HasPrefix(response, "```") {
		var m []string
		if hasObject {
			m = fencedObjectRe.FindStringSubmatch(response)
		}
		if len(m) <= 1 && hasArray {
			m = fencedArrayRe.FindStringSubmatch(response)
		}
		if len(m) > 1 {
			return m[1]
		}
	}

	// Bare JSON already.
	if strings.HasPrefix(response, "{") || strings.HasPrefix(response, "[") {
		return response
	}

	// JSON embedded in conversational text: take the outermost structure.
	if hasObject {
		if fb, lb := strings.Index(response, "{"), strings.LastIndex(response, "}"); fb != -1 && lb > fb {
			return response[fb : lb+1]
		}
	}
	if hasArray {
		if fb, lb := strings.Index(response, "["), strings.LastIndex(response, "]"); fb != -1 && lb > fb {
			return response[fb : lb+1]
		}
	}
	return response
}

// StripCodeFences removes a surrounding markdown fence and its language tag
// from generated code, returning the content unchanged when unfenced.
func StripCodeFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	if m := fencedBlockRe.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return content
}

func clip(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
