// File: internal/intent/resolver.go
package intent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/llmutil"
)

// Resolver turns raw user text into a structured Goal.
type Resolver interface {
	Resolve(ctx context.Context, request string) (schemas.Goal, error)
}

const parseSystemPrompt = `You are the intent parser of a browser automation agent.
Classify the user's request and respond with ONLY a JSON object, no prose, no markdown:
{
  "intent": "navigate" | "search" | "extract" | "interact" | "workflow",
  "primary_goal": "<one sentence restating the goal>",
  "constraints": { "<name>": <value>, ... },
  "success_criteria": ["<observable criterion>", ...]
}
Rules:
- "navigate": the user wants to reach a page.
- "search": the user wants to find something via a search surface.
- "extract": the user wants data pulled off a page.
- "interact": the user wants elements clicked, typed into, or submitted.
- "workflow": the request chains several of the above.
- Put numeric limits (counts, price ceilings) into constraints.
- Each success criterion must be checkable from page state.`

// LLMResolver parses intent with one JSON-only model call.
type LLMResolver struct {
	client  schemas.CompletionClient
	logger  *zap.Logger
	timeout time.Duration
}

// NewLLMResolver creates the primary, model-backed resolver.
func NewLLMResolver(client schemas.CompletionClient, logger *zap.Logger, timeout time.Duration) (*LLMResolver, error) {
	if client == nil {
		return nil, fmt.Errorf("intent: completion client is required")
	}
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &LLMResolver{
		client:  client,
		logger:  logger.Named("intent"),
		timeout: timeout,
	}, nil
}

// Resolve performs the model call and decodes the structured goal. Any
// transport, timeout, or decode failure is returned to the caller; pairing
// with a heuristic fallback is the Fallback decorator's job.
func (r *LLMResolver) Resolve(ctx context.Context, request string) (schemas.Goal, error) {
	messages := []schemas.Message{
		{Role: schemas.RoleSystem, Content: parseSystemPrompt},
		{Role: schemas.RoleUser, Content: request},
	}

	result, err := r.client.Complete(ctx, messages, schemas.CompletionOptions{
		Timeout:   r.timeout,
		Tier:      schemas.TierFast,
		ForceJSON: true,
	})
	if err != nil {
		return schemas.Goal{}, fmt.Errorf("intent resolution call: %w", err)
	}

	goal, err := llmutil.DecodeJSON[schemas.Goal](result.Content)
	if err != nil {
		return schemas.Goal{}, err
	}
	if !validIntent(goal.Intent) {
		return schemas.Goal{}, fmt.Errorf("intent resolution: model returned unknown intent %q", goal.Intent)
	}
	if goal.PrimaryGoal == "" {
		goal.PrimaryGoal = request
	}
	r.logger.Debug("Parsed intent",
		zap.String("intent", string(goal.Intent)),
		zap.Int("criteria", len(goal.SuccessCriteria)),
	)
	return *goal, nil
}

func validIntent(i schemas.Intent) bool {
	switch i {
	case schemas.IntentNavigate, schemas.IntentSearch, schemas.IntentExtract,
		schemas.IntentInteract, schemas.IntentWorkflow:
		return true
	}
	return false
}

// Fallback routes to primary first and falls back to secondary when the
// primary errors. With a HeuristicResolver as secondary it never errors.
type Fallback struct {
	primary   Resolver
	secondary Resolver
	logger    *zap.Logger
}

// NewFallback chains two resolvers.
func NewFallback(primary, secondary Resolver, logger *zap.Logger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, logger: logger.Named("intent")}
}

func (f *Fallback) Resolve(ctx context.Context, request string) (schemas.Goal, error) {
	goal, err := f.primary.Resolve(ctx, request)
	if err == nil {
		return goal, nil
	}
	f.logger.Warn("Primary intent resolution failed, using heuristic fallback", zap.Error(err))
	return f.secondary.Resolve(ctx, request)
}
