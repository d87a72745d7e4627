// File: internal/executor/executor.go
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/config"
	"github.com/webpilot-ai/webpilot/internal/evaluator"
	"github.com/webpilot-ai/webpilot/internal/recovery"
)

// ActionRunner executes one plan command against the page target.
type ActionRunner interface {
	Run(ctx context.Context, command string) (schemas.StepOutcome, error)
}

// EventSink receives progress events. A nil sink drops them.
type EventSink func(schemas.Event)

// Executor drives the reason-execute-evaluate loop for one goal: it pulls
// commands off the queue, runs them, feeds failures through the recovery
// engine, and short-circuits as soon as the evaluator deems the goal
// settled. Cancellation is observed between steps, never mid-call.
type Executor struct {
	runner    ActionRunner
	eval      *evaluator.Evaluator
	cfg       config.AgentConfig
	logger    *zap.Logger
	refresher recovery.TokenRefresher
	emit      EventSink
}

// Option customizes an Executor.
type Option func(*Executor)

// WithTokenRefresher supplies a credential source for auth recovery.
func WithTokenRefresher(r recovery.TokenRefresher) Option {
	return func(e *Executor) { e.refresher = r }
}

// WithEventSink attaches a progress event sink.
func WithEventSink(sink EventSink) Option {
	return func(e *Executor) { e.emit = sink }
}

// New creates an executor.
func New(runner ActionRunner, eval *evaluator.Evaluator, cfg config.AgentConfig, logger *zap.Logger, opts ...Option) (*Executor, error) {
	if runner == nil {
		return nil, fmt.Errorf("executor: action runner is required")
	}
	if eval == nil {
		return nil, fmt.Errorf("executor: evaluator is required")
	}
	e := &Executor{
		runner: runner,
		eval:   eval,
		cfg:    cfg,
		logger: logger.Named("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute runs the plan to completion and always returns a result carrying
// the full step log and a terminal assessment.
func (e *Executor) Execute(ctx context.Context, requestID string, goal schemas.Goal, plan schemas.ActionPlan) schemas.RequestResult {
	queue := NewCommandQueue(plan.Commands)
	recov := recovery.NewEngine(e.logger, e.cfg, e.refresher)

	var steps []schemas.ExecutionStep
	var abortReason string
	loopPasses := 0
	cancelled := false
	healGroup := map[string]bool{}

	for {
		command, ok := queue.Next()
		if !ok {
			if !e.shouldLoopAgain(plan, steps, &loopPasses) {
				break
			}
			queue.Append(plan.Commands...)
			continue
		}

		// Cancellation is cooperative: checked between steps only.
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if len(steps) >= e.cfg.MaxSteps {
			e.logger.Warn("Step budget exhausted", zap.Int("max_steps", e.cfg.MaxSteps))
			break
		}

		e.emitEvent(requestID, schemas.EventAction, command, nil)
		step := e.runStep(ctx, len(steps), command)
		steps = append(steps, step)
		e.emitEvent(requestID, schemas.EventResult, "", step)

		if step.Outcome.Success {
			// Once one healing alternative works, its untried siblings at
			// the queue head are obsolete.
			if healGroup[command] {
				for {
					head, ok := queue.Peek()
					if !ok || !healGroup[head] {
						break
					}
					queue.Next()
				}
				healGroup = map[string]bool{}
			}
		} else {
			decision := recov.Handle(ctx, step.Outcome.Error, selectorOf(command))
			if decision.Abort {
				abortReason = decision.Reason
				e.emitEvent(requestID, schemas.EventError, decision.Reason, decision.Failure)
				break
			}
			if decision.Retry {
				retries := retryCommands(command, decision.Alternatives)
				if len(decision.Alternatives) > 0 {
					healGroup = map[string]bool{}
					for _, r := range retries {
						healGroup[r] = true
					}
				}
				queue.InsertNext(retries...)
				if !e.pause(ctx, decision.Delay) {
					cancelled = true
					break
				}
				continue
			}
			// Out of budget for this error: record it and move on.
		}

		if !e.eval.ShouldContinue(goal, steps) {
			break
		}
		if !e.pause(ctx, e.cfg.StepDelay) {
			cancelled = true
			break
		}
	}

	assessment := e.finalAssessment(ctx, goal, steps, abortReason, cancelled)
	e.emitEvent(requestID, schemas.EventEvaluation, assessment.Reason, assessment)
	e.emitEvent(requestID, schemas.EventComplete, string(assessment.Status), assessment)

	return schemas.RequestResult{
		RequestID:  requestID,
		Success:    assessment.Status == schemas.StatusComplete,
		Results:    collectPayloads(steps),
		Steps:      steps,
		Assessment: assessment,
	}
}

func (e *Executor) runStep(ctx context.Context, index int, command string) schemas.ExecutionStep {
	outcome, err := e.runner.Run(ctx, command)
	if err != nil {
		outcome = schemas.StepOutcome{Success: false, Error: err.Error()}
	}
	return schemas.ExecutionStep{
		Index:     index,
		Command:   command,
		Outcome:   outcome,
		Timestamp: time.Now(),
	}
}

func (e *Executor) finalAssessment(ctx context.Context, goal schemas.Goal, steps []schemas.ExecutionStep, abortReason string, cancelled bool) schemas.CompletionAssessment {
	if cancelled {
		return schemas.CompletionAssessment{
			Status:         schemas.StatusIncomplete,
			ShouldContinue: false,
			Reason:         "cancelled by the user",
		}
	}
	if abortReason != "" {
		return schemas.CompletionAssessment{
			Status:         schemas.StatusFailed,
			ShouldContinue: false,
			Reason:         "recovery aborted: " + abortReason,
		}
	}
	return e.eval.Assess(ctx, goal, steps, len(steps) < e.cfg.MaxSteps)
}

// shouldLoopAgain decides whether a drained plan with a loop condition gets
// re-enqueued. Malformed conditions stop the loop rather than guessing.
func (e *Executor) shouldLoopAgain(plan schemas.ActionPlan, steps []schemas.ExecutionStep, passes *int) bool {
	if plan.LoopCondition == "" || len(steps) == 0 {
		return false
	}
	*passes++
	if plan.MaxIterations > 0 && *passes >= plan.MaxIterations {
		return false
	}
	last := steps[len(steps)-1]
	again, err := EvalLoopCondition(plan.LoopCondition, LoopEnv{
		Success: last.Outcome.Success,
		Empty:   isEmptyPayload(last.Outcome.Payload),
	})
	if err != nil {
		e.logger.Warn("Invalid loop condition, stopping iteration",
			zap.String("condition", plan.LoopCondition), zap.Error(err))
		return false
	}
	return again
}

// pause sleeps for d, returning false when the context is cancelled first.
func (e *Executor) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (e *Executor) emitEvent(requestID string, typ schemas.EventType, message string, payload interface{}) {
	if e.emit == nil {
		return
	}
	e.emit(schemas.Event{
		Type:      typ,
		RequestID: requestID,
		Message:   message,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

// retryCommands builds the healing commands for a failed step: the same
// command with each proposed alternative selector substituted, or a plain
// re-run when no alternatives were offered.
func retryCommands(command string, alternatives []string) []string {
	failed := selectorOf(command)
	if failed == "" || len(alternatives) == 0 {
		return []string{command}
	}
	out := make([]string, 0, len(alternatives))
	for _, alt := range alternatives {
		out = append(out, strings.Replace(command, failed, alt, 1))
	}
	return out
}

// selectorOf extracts the selector argument from selector-bearing verbs.
func selectorOf(command string) string {
	fields := strings.Fields(command)
	if len(fields) < 2 {
		return ""
	}
	switch strings.ToLower(fields[0]) {
	case "click", "type", "extract":
		return fields[1]
	}
	return ""
}

func collectPayloads(steps []schemas.ExecutionStep) []interface{} {
	var out []interface{}
	for _, step := range steps {
		if step.Outcome.Success && !isEmptyPayload(step.Outcome.Payload) {
			out = append(out, step.Outcome.Payload)
		}
	}
	return out
}

func isEmptyPayload(payload interface{}) bool {
	switch v := payload.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []interface{}:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	}
	return false
}
