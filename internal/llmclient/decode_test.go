// File: internal/llmclient/decode_test.go
package llmclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitReasoning(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		wantReasoning string
		wantContent   string
	}{
		{
			name:        "no think block",
			raw:         "plain answer",
			wantContent: "plain answer",
		},
		{
			name:          "single think block",
			raw:           "<think>step one</think>the answer",
			wantReasoning: "step one",
			wantContent:   "the answer",
		},
		{
			name:          "think block in the middle",
			raw:           "prefix <think>inner</think> suffix",
			wantReasoning: "inner",
			wantContent:   "prefix  suffix",
		},
		{
			name:          "unterminated block treated as reasoning",
			raw:           "answer<think>trailing thoughts",
			wantReasoning: "trailing thoughts",
			wantContent:   "answer",
		},
		{
			name:          "multiple blocks concatenated",
			raw:           "<think>a</think>x<think>b</think>y",
			wantReasoning: "a\nb",
			wantContent:   "xy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := splitReasoning(tt.raw)
			assert.Equal(t, tt.wantReasoning, result.Reasoning)
			assert.Equal(t, tt.wantContent, result.Content)
		})
	}
}
