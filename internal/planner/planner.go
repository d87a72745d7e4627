// File: internal/planner/planner.go
package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/llmutil"
	"github.com/webpilot-ai/webpilot/internal/selectorcache"
)

// Planner turns a structured Goal into an ordered action plan.
type Planner interface {
	Plan(ctx context.Context, goal schemas.Goal, page *schemas.PageState) (schemas.ActionPlan, error)
}

// Command vocabulary accepted by the executor. A plan line is the verb
// followed by its space-separated arguments.
const (
	VerbNavigate = "navigate"
	VerbClick    = "click"
	VerbType     = "type"
	VerbExtract  = "extract"
	VerbWait     = "wait"
	VerbScroll   = "scroll"
	VerbExecute  = "execute"
)

var knownVerbs = map[string]bool{
	VerbNavigate: true,
	VerbClick:    true,
	VerbType:     true,
	VerbExtract:  true,
	VerbWait:     true,
	VerbScroll:   true,
	VerbExecute:  true,
}

const planSystemPrompt = `You are the strategic planner of a browser automation agent.
Produce an ordered action plan for the goal. Respond with ONLY a JSON object:
{
  "commands": ["<verb> <args>", ...],
  "loop_condition": "<optional boolean expression over the last step>",
  "max_iterations": <int, 0 when no loop>
}
Allowed verbs, one per command line:
  navigate <url>
  click <css-selector>
  type <css-selector> <text>
  extract <css-selector>
  wait <milliseconds>
  scroll <up|down|bottom>
  execute <free-form instruction>
Rules:
- Keep plans short; every command must advance the goal.
- Prefer the known-good selectors listed in the context block when present.
- loop_condition may only reference last.success, last.empty and use ! && || ().`

// LLMPlanner plans with one model call on the powerful tier, feeding cached
// known-good selectors and the compressed session history into the prompt.
type LLMPlanner struct {
	client  schemas.CompletionClient
	cache   *selectorcache.Cache
	memory  schemas.SessionMemory
	logger  *zap.Logger
	timeout time.Duration
}

// NewLLMPlanner creates the model-backed planner. cache and memory may be
// nil.
func NewLLMPlanner(client schemas.CompletionClient, cache *selectorcache.Cache, memory schemas.SessionMemory, logger *zap.Logger, timeout time.Duration) (*LLMPlanner, error) {
	if client == nil {
		return nil, fmt.Errorf("planner: completion client is required")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &LLMPlanner{
		client:  client,
		cache:   cache,
		memory:  memory,
		logger:  logger.Named("planner"),
		timeout: timeout,
	}, nil
}

func (p *LLMPlanner) Plan(ctx context.Context, goal schemas.Goal, page *schemas.PageState) (schemas.ActionPlan, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal (%s): %s\n", goal.Intent, goal.PrimaryGoal)
	for _, c := range goal.SuccessCriteria {
		fmt.Fprintf(&sb, "Success criterion: %s\n", c)
	}
	for k, v := range goal.Constraints {
		fmt.Fprintf(&sb, "Constraint: %s = %v\n", k, v)
	}
	if p.memory != nil {
		if history := p.memory.Render(); history != "" {
			fmt.Fprintf(&sb, "Session context:\n%s\n", history)
		}
	}
	if page != nil {
		fmt.Fprintf(&sb, "Current page: %s (%s)\n", page.Title, page.URL)
		p.appendKnownSelectors(&sb, page.URL)
	}

	messages := []schemas.Message{
		{Role: schemas.RoleSystem, Content: planSystemPrompt},
		{Role: schemas.RoleUser, Content: sb.String()},
	}
	result, err := p.client.Complete(ctx, messages, schemas.CompletionOptions{
		Timeout:   p.timeout,
		Tier:      schemas.TierPowerful,
		ForceJSON: true,
	})
	if err != nil {
		return schemas.ActionPlan{}, fmt.Errorf("planning call: %w", err)
	}

	plan, err := llmutil.DecodeJSON[schemas.ActionPlan](result.Content)
	if err != nil {
		return schemas.ActionPlan{}, err
	}
	if err := validatePlan(plan); err != nil {
		return schemas.ActionPlan{}, err
	}
	p.logger.Debug("Planned actions", zap.Int("commands", len(plan.Commands)))
	return *plan, nil
}

// appendKnownSelectors lists cached high-confidence locators for the
// current domain so the model prefers proven selectors. Prefetch also warms
// entries for the predicted next page.
func (p *LLMPlanner) appendKnownSelectors(sb *strings.Builder, pageURL string) {
	if p.cache == nil {
		return
	}
	for _, loc := range p.cache.Prefetch(pageURL) {
		fmt.Fprintf(sb, "Known-good selector for %s: %s (confidence %.2f)\n",
			loc.Key.ElementKey, loc.Primary, loc.Confidence())
	}
}

func validatePlan(plan *schemas.ActionPlan) error {
	if len(plan.Commands) == 0 {
		return fmt.Errorf("planning: model returned an empty plan")
	}
	for _, cmd := range plan.Commands {
		verb, _, _ := strings.Cut(strings.TrimSpace(cmd), " ")
		if !knownVerbs[strings.ToLower(verb)] {
			return fmt.Errorf("planning: unknown command verb %q", verb)
		}
	}
	if plan.LoopCondition != "" && plan.MaxIterations <= 0 {
		plan.MaxIterations = 3
	}
	return nil
}

// Fallback tries the model planner first and falls back to deterministic
// rules on any failure, so a plan is always produced.
type Fallback struct {
	primary   Planner
	secondary Planner
	logger    *zap.Logger
}

// NewFallback chains two planners.
func NewFallback(primary, secondary Planner, logger *zap.Logger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, logger: logger.Named("planner")}
}

func (f *Fallback) Plan(ctx context.Context, goal schemas.Goal, page *schemas.PageState) (schemas.ActionPlan, error) {
	plan, err := f.primary.Plan(ctx, goal, page)
	if err == nil {
		return plan, nil
	}
	f.logger.Warn("Primary planning failed, using rule-based fallback", zap.Error(err))
	return f.secondary.Plan(ctx, goal, page)
}
