// File: internal/multitab/coordinator.go
package multitab

import (
	"context"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

// TargetRequest is one page target in a fan-out: its tab plus the goal and
// plan to run against it.
type TargetRequest struct {
	TabID string             `json:"tab_id"`
	Goal  schemas.Goal       `json:"goal"`
	Plan  schemas.ActionPlan `json:"plan"`
}

// TargetExecutor runs a single target to completion. Implementations must
// return a result rather than panic; a failed target is a result with
// Success false.
type TargetExecutor interface {
	ExecuteTarget(ctx context.Context, requestID string, target TargetRequest) schemas.RequestResult
}

// TargetOutcome pairs one target with its result.
type TargetOutcome struct {
	TabID  string                `json:"tab_id"`
	Result schemas.RequestResult `json:"result"`
}

// AggregateResult is the fan-out verdict. The request fails only when
// every target failed; partial failure is reported, not fatal.
type AggregateResult struct {
	Success   bool            `json:"success"`
	Succeeded int             `json:"succeeded"`
	Total     int             `json:"total"`
	Results   []interface{}   `json:"results,omitempty"`
	Errors    []string        `json:"errors,omitempty"`
	Targets   []TargetOutcome `json:"targets"`
}

// Coordinator fans a request out across page targets in parallel and
// aggregates the per-target results.
type Coordinator struct {
	exec        TargetExecutor
	logger      *zap.Logger
	maxParallel int
}

// NewCoordinator creates a coordinator. maxParallel <= 0 means unbounded.
func NewCoordinator(exec TargetExecutor, logger *zap.Logger, maxParallel int) (*Coordinator, error) {
	if exec == nil {
		return nil, fmt.Errorf("multitab: target executor is required")
	}
	return &Coordinator{
		exec:        exec,
		logger:      logger.Named("multitab"),
		maxParallel: maxParallel,
	}, nil
}

// Execute runs all targets concurrently and merges their outcomes. Each
// target gets an isolated sub-request id; one target's failure never
// cancels its siblings.
func (c *Coordinator) Execute(ctx context.Context, requestID string, targets []TargetRequest) AggregateResult {
	outcomes := make([]TargetOutcome, len(targets))

	start := time.Now()
	g := &errgroup.Group{}
	if c.maxParallel > 0 {
		g.SetLimit(c.maxParallel)
	}
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			subID := fmt.Sprintf("%s/%s", requestID, target.TabID)
			outcomes[i] = TargetOutcome{
				TabID:  target.TabID,
				Result: c.exec.ExecuteTarget(ctx, subID, target),
			}
			return nil
		})
	}
	g.Wait()

	agg := aggregate(outcomes)
	c.logger.Info("Cross-target execution finished",
		zap.String("request_id", requestID),
		zap.Int("succeeded", agg.Succeeded),
		zap.Int("total", agg.Total),
		zap.Duration("elapsed", time.Since(start)),
	)
	return agg
}

// aggregate merges per-target outcomes: a deduplicated union of result
// payloads, every failure message verbatim, and success unless all targets
// failed.
func aggregate(outcomes []TargetOutcome) AggregateResult {
	agg := AggregateResult{Total: len(outcomes), Targets: outcomes}
	seen := map[string]bool{}

	for _, outcome := range outcomes {
		if outcome.Result.Success {
			agg.Succeeded++
		} else {
			reason := outcome.Result.Assessment.Reason
			if reason == "" {
				reason = "target failed without a reason"
			}
			agg.Errors = append(agg.Errors, fmt.Sprintf("%s: %s", outcome.TabID, reason))
		}
		for _, payload := range outcome.Result.Results {
			key, err := json.MarshalToString(payload)
			if err != nil || !seen[key] {
				seen[key] = true
				agg.Results = append(agg.Results, payload)
			}
		}
	}

	agg.Success = agg.Succeeded > 0 || agg.Total == 0
	return agg
}
