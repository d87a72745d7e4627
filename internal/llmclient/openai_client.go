// File: internal/llmclient/openai_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/config"
)

// OpenAIClient implements schemas.CompletionClient against any
// OpenAI-compatible chat completion endpoint. Unlike the Gemini path it
// supports true incremental streaming.
type OpenAIClient struct {
	client *openai.Client
	logger *zap.Logger
	config config.LLMModelConfig
}

var _ schemas.CompletionClient = (*OpenAIClient)(nil)

// NewOpenAIClient initializes the client.
func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		logger: logger.Named("llm_client.openai"),
		config: cfg,
	}, nil
}

// Complete performs a non-streaming chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, messages []schemas.Message, opts schemas.CompletionOptions) (schemas.CompletionResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(messages, opts))
	if err != nil {
		return schemas.CompletionResult{}, c.classifyError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return schemas.CompletionResult{}, ErrEmptyResponse
	}

	c.logger.Debug("LLM generation complete (OpenAI)",
		zap.Duration("duration", time.Since(start)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	msg := resp.Choices[0].Message
	if msg.ReasoningContent != "" {
		return schemas.CompletionResult{Reasoning: msg.ReasoningContent, Content: msg.Content}, nil
	}
	return splitReasoning(msg.Content), nil
}

// Stream performs a streaming chat completion, forwarding reasoning and
// content deltas as they arrive.
func (c *OpenAIClient) Stream(ctx context.Context, messages []schemas.Message, opts schemas.CompletionOptions) (<-chan schemas.StreamChunk, error) {
	streamCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		streamCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		streamCtx, cancel = context.WithCancel(ctx)
	}

	stream, err := c.client.CreateChatCompletionStream(streamCtx, c.buildRequest(messages, opts))
	if err != nil {
		cancel()
		return nil, c.classifyError(streamCtx, err)
	}

	out := make(chan schemas.StreamChunk, 16)
	go func() {
		defer close(out)
		defer cancel()
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				out <- schemas.StreamChunk{Type: schemas.ChunkDone}
				return
			}
			if err != nil {
				out <- schemas.StreamChunk{Type: schemas.ChunkError, Text: c.classifyError(streamCtx, err).Error()}
				return
			}
			if len(response.Choices) == 0 {
				continue
			}
			delta := response.Choices[0].Delta
			if delta.ReasoningContent != "" {
				out <- schemas.StreamChunk{Type: schemas.ChunkReasoning, Text: delta.ReasoningContent}
			}
			if delta.Content != "" {
				out <- schemas.StreamChunk{Type: schemas.ChunkContent, Text: delta.Content}
			}
		}
	}()
	return out, nil
}

func (c *OpenAIClient) buildRequest(messages []schemas.Message, opts schemas.CompletionOptions) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.config.MaxTokens
	}
	if opts.ForceJSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	req.Messages = make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return req
}

func (c *OpenAIClient) classifyError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return err
}
