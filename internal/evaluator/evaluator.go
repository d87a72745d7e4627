// File: internal/evaluator/evaluator.go
package evaluator

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

const evalSystemPrompt = `You are the completion evaluator of a browser automation agent.
Score each success criterion against the executed steps. Respond with ONLY a JSON object:
{
  "status": "complete" | "incomplete" | "failed",
  "criteria": [{"criterion":"...","met":true,"evidence":"..."}, ...],
  "should_continue": <bool>,
  "suggested_next_action": "<optional single command>",
  "reason": "<one sentence>"
}
Mark a criterion met only when a step outcome is direct evidence for it.`

// Evaluator assesses task completion in two tiers: zero-cost heuristics
// first, then one model call scoring each success criterion. A model
// failure degrades to a deterministic verdict, never to an error.
type Evaluator struct {
	client  schemas.CompletionClient
	memory  schemas.SessionMemory
	logger  *zap.Logger
	timeout time.Duration
}

// New creates an evaluator. client may be nil, which disables the model
// tier and leaves the heuristic plus deterministic passes. memory may be
// nil, which disables targeted recall in the model prompt.
func New(client schemas.CompletionClient, memory schemas.SessionMemory, logger *zap.Logger, timeout time.Duration) *Evaluator {
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &Evaluator{client: client, memory: memory, logger: logger.Named("evaluator"), timeout: timeout}
}

// ShouldContinue is the cheap per-step check the executor runs after every
// command. It is heuristic-only; it never calls the model.
func (e *Evaluator) ShouldContinue(goal schemas.Goal, steps []schemas.ExecutionStep) bool {
	if assessment, conclusive := heuristicAssess(goal, steps); conclusive {
		return assessment.ShouldContinue
	}
	return true
}

// Assess produces the terminal assessment for a request. budgetLeft
// reports whether more steps could still be scheduled.
func (e *Evaluator) Assess(ctx context.Context, goal schemas.Goal, steps []schemas.ExecutionStep, budgetLeft bool) schemas.CompletionAssessment {
	if assessment, conclusive := heuristicAssess(goal, steps); conclusive {
		return assessment
	}

	if e.client != nil {
		if assessment, err := e.modelAssess(ctx, goal, steps); err == nil {
			return assessment
		} else {
			e.logger.Warn("Model evaluation failed, using deterministic verdict", zap.Error(err))
		}
	}
	return deterministicAssess(steps, budgetLeft)
}

// heuristicAssess applies the zero-cost rules. The second return value
// reports whether the verdict is conclusive.
func heuristicAssess(goal schemas.Goal, steps []schemas.ExecutionStep) (schemas.CompletionAssessment, bool) {
	if len(steps) == 0 {
		return schemas.CompletionAssessment{}, false
	}

	if trailingFailures(steps) >= 3 {
		return schemas.CompletionAssessment{
			Status:         schemas.StatusFailed,
			ShouldContinue: false,
			Reason:         "three consecutive step failures",
		}, true
	}

	last := steps[len(steps)-1]
	switch goal.Intent {
	case schemas.IntentNavigate:
		if last.Outcome.Success && commandVerb(last.Command) == "navigate" {
			return schemas.CompletionAssessment{
				Status:         schemas.StatusComplete,
				ShouldContinue: false,
				Reason:         "navigation succeeded for a navigate goal",
			}, true
		}
	case schemas.IntentExtract:
		if last.Outcome.Success && commandVerb(last.Command) == "extract" && !emptyPayload(last.Outcome.Payload) {
			return schemas.CompletionAssessment{
				Status:         schemas.StatusComplete,
				ShouldContinue: false,
				Reason:         "extraction returned data for an extract goal",
			}, true
		}
	}

	return schemas.CompletionAssessment{}, false
}

func (e *Evaluator) modelAssess(ctx context.Context, goal schemas.Goal, steps []schemas.ExecutionStep) (schemas.CompletionAssessment, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal (%s): %s\n", goal.Intent, goal.PrimaryGoal)
	for _, c := range goal.SuccessCriteria {
		fmt.Fprintf(&sb, "Criterion: %s\n", c)
	}
	if e.memory != nil {
		if recalled := e.memory.Retrieve(goal.PrimaryGoal, 3); len(recalled) > 0 {
			sb.WriteString("Recalled context:\n")
			for _, item := range recalled {
				fmt.Fprintf(&sb, "[%s] %s\n", item.Kind, item.Content)
			}
		}
	}
	sb.WriteString("Executed steps:\n")
	for _, step := range steps {
		payload, _ := json.MarshalToString(step.Outcome.Payload)
		fmt.Fprintf(&sb, "%d. %s -> success=%t error=%q payload=%s\n",
			step.Index, step.Command, step.Outcome.Success, step.Outcome.Error, clip(payload, 300))
	}

	result, err := e.client.Complete(ctx, []schemas.Message{
		{Role: schemas.RoleSystem, Content: evalSystemPrompt},
		{Role: schemas.RoleUser, Content: sb.String()},
	}, schemas.CompletionOptions{
		Timeout:   e.timeout,
		Tier:      schemas.TierFast,
		ForceJSON: true,
	})
	if err != nil {
		return schemas.CompletionAssessment{}, err
	}

	assessment, err := llmutil.DecodeJSON[schemas.CompletionAssessment](result.Content)
	if err != nil {
		return schemas.CompletionAssessment{}, err
	}
	switch assessment.Status {
	case schemas.StatusComplete, schemas.StatusIncomplete, schemas.StatusFailed:
	default:
		return schemas.CompletionAssessment{}, fmt.Errorf("evaluation: model returned unknown status %q", assessment.Status)
	}
	return *assessment, nil
}

// deterministicAssess is the non-LLM verdict of last resort: complete when
// every step succeeded and the last one produced data, otherwise
// incomplete, continuing only while the step budget allows.
func deterministicAssess(steps []schemas.ExecutionStep, budgetLeft bool) schemas.CompletionAssessment {
	allOK := len(steps) > 0
	for _, step := range steps {
		if !step.Outcome.Success {
			allOK = false
			break
		}
	}
	if allOK && !emptyPayload(steps[len(steps)-1].Outcome.Payload) {
		return schemas.CompletionAssessment{
			Status:         schemas.StatusComplete,
			ShouldContinue: false,
			Reason:         "all steps succeeded and the final step returned data",
		}
	}
	return schemas.CompletionAssessment{
		Status:         schemas.StatusIncomplete,
		ShouldContinue: budgetLeft,
		Reason:         "completion could not be established",
	}
}

func trailingFailures(steps []schemas.ExecutionStep) int {
	n := 0
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Outcome.Success {
			break
		}
		n++
	}
	return n
}

func commandVerb(command string) string {
	verb, _, _ := strings.Cut(strings.TrimSpace(command), " ")
	return strings.ToLower(verb)
}

func emptyPayload(payload interface{}) bool {
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

func clip(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
