// File: internal/llmclient/router.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

// Router implements schemas.CompletionClient and dispatches each call to the
// fast or powerful tier. All outbound calls share one rate limiter so that
// parser, planner and evaluator cannot collectively exceed the provider
// quota.
type Router struct {
	logger  *zap.Logger
	clients map[schemas.ModelTier]schemas.CompletionClient
	limiter *rate.Limiter
}

var _ schemas.CompletionClient = (*Router)(nil)

// NewRouter creates a router with one client per tier. requestsPerSec <= 0
// disables throttling.
func NewRouter(logger *zap.Logger, fast, powerful schemas.CompletionClient, requestsPerSec float64, burst int) (*Router, error) {
	if fast == nil || powerful == nil {
		return nil, fmt.Errorf("both fast and powerful tier clients must be provided")
	}

	var limiter *rate.Limiter
	if requestsPerSec > 0 {
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(requestsPerSec), burst)
	}

	return &Router{
		logger: logger.Named("llm_router"),
		clients: map[schemas.ModelTier]schemas.CompletionClient{
			schemas.TierFast:     fast,
			schemas.TierPowerful: powerful,
		},
		limiter: limiter,
	}, nil
}

func (r *Router) pick(tier schemas.ModelTier) (schemas.CompletionClient, schemas.ModelTier, error) {
	if tier == "" {
		tier = schemas.TierPowerful
	}
	client, ok := r.clients[tier]
	if !ok {
		return nil, tier, fmt.Errorf("no LLM client configured for tier: %s", tier)
	}
	return client, tier, nil
}

func (r *Router) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return classifyTransportErr(ctx, err)
	}
	return nil
}

// Complete routes a non-streaming call to the requested tier.
func (r *Router) Complete(ctx context.Context, messages []schemas.Message, opts schemas.CompletionOptions) (schemas.CompletionResult, error) {
	client, tier, err := r.pick(opts.Tier)
	if err != nil {
		return schemas.CompletionResult{}, err
	}
	if err := r.wait(ctx); err != nil {
		return schemas.CompletionResult{}, err
	}
	r.logger.Debug("Routing LLM request", zap.String("tier", string(tier)))
	return client.Complete(ctx, messages, opts)
}

// Stream routes a streaming call to the requested tier.
func (r *Router) Stream(ctx context.Context, messages []schemas.Message, opts schemas.CompletionOptions) (<-chan schemas.StreamChunk, error) {
	client, tier, err := r.pick(opts.Tier)
	if err != nil {
		return nil, err
	}
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	r.logger.Debug("Routing streaming LLM request", zap.String("tier", string(tier)))
	return client.Stream(ctx, messages, opts)
}
