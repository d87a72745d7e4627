// File: internal/codegen/generator_test.go
package codegen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

type stubCompletion struct {
	result  schemas.CompletionResult
	err     error
	gotUser string
}

func (s *stubCompletion) Complete(_ context.Context, messages []schemas.Message, _ schemas.CompletionOptions) (schemas.CompletionResult, error) {
	for _, m := range messages {
		if m.Role == schemas.RoleUser {
			s.gotUser = m.Content
		}
	}
	return s.result, s.err
}

func (s *stubCompletion) Stream(context.Context, []schemas.Message, schemas.CompletionOptions) (<-chan schemas.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func TestGenerateStripsFences(t *testing.T) {
	client := &stubCompletion{result: schemas.CompletionResult{
		Content: "```javascript\n(() => document.title)()\n```",
	}}
	g, err := New(client, zap.NewNop(), 0)
	require.NoError(t, err)

	code, err := g.Generate(context.Background(), "read the title", nil)
	require.NoError(t, err)
	assert.True(t, code.Success)
	assert.Equal(t, "(() => document.title)()", code.Code)
}

func TestGenerateIncludesSnapshotContext(t *testing.T) {
	client := &stubCompletion{result: schemas.CompletionResult{Content: "(() => 1)()"}}
	g, err := New(client, zap.NewNop(), 0)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "click login", &schemas.DOMSnapshot{
		URL:   "https://example.com",
		Title: "Example",
		InteractiveElements: []schemas.InteractiveElement{
			{Tag: "button", Selector: "#login", Text: "Log in"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, client.gotUser, "#login")
	assert.Contains(t, client.gotUser, "https://example.com")
}

func TestGenerateReportsModelFailureInResult(t *testing.T) {
	client := &stubCompletion{err: errors.New("model down")}
	g, err := New(client, zap.NewNop(), 0)
	require.NoError(t, err)

	code, err := g.Generate(context.Background(), "anything", nil)
	require.NoError(t, err, "model failure surfaces in the result, not as an error")
	assert.False(t, code.Success)
	assert.Contains(t, code.Error, "model down")
}

func TestGenerateRejectsEmptyCode(t *testing.T) {
	client := &stubCompletion{result: schemas.CompletionResult{Content: "```\n\n```"}}
	g, err := New(client, zap.NewNop(), 0)
	require.NoError(t, err)

	code, err := g.Generate(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.False(t, code.Success)
}
