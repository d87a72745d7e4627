// File: internal/session/agent.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/browser"
	"github.com/webpilot-ai/webpilot/internal/codegen"
	"github.com/webpilot-ai/webpilot/internal/config"
	"github.com/webpilot-ai/webpilot/internal/contextmgr"
	"github.com/webpilot-ai/webpilot/internal/evaluator"
	"github.com/webpilot-ai/webpilot/internal/executor"
	"github.com/webpilot-ai/webpilot/internal/intent"
	"github.com/webpilot-ai/webpilot/internal/llmclient"
	"github.com/webpilot-ai/webpilot/internal/multitab"
	"github.com/webpilot-ai/webpilot/internal/planner"
	"github.com/webpilot-ai/webpilot/internal/selectorcache"
)

// Agent is the per-process orchestrator: it owns the browser, the model
// router, the selector cache and session memory, and turns each user
// request into a parse, plan, execute, evaluate cycle.
type Agent struct {
	cfg    *config.Config
	logger *zap.Logger

	router     schemas.CompletionClient
	resolver   intent.Resolver
	planner    planner.Planner
	eval       *evaluator.Evaluator
	cache      *selectorcache.Cache
	memory     *contextmgr.Compressor
	manager    *browser.Manager
	pages      schemas.PageExecutor
	snaps      schemas.SnapshotProvider
	gen        schemas.CodeGenerator
	events     chan schemas.Event
	cancelCtx  context.Context
	cancelStop context.CancelFunc
}

// New builds a fully wired agent and launches the browser.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Agent, error) {
	if cfg == nil {
		return nil, fmt.Errorf("session: config is required")
	}
	log := logger.Named("session")

	router, err := llmclient.NewRouterFromConfig(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("session: build completion router: %w", err)
	}

	cache := selectorcache.NewCache(logger, cfg.Cache)
	counter := contextmgr.NewTiktokenCounter("cl100k_base")
	memory := contextmgr.NewCompressor(logger, counter,
		contextmgr.NewLLMSummarizer(router, cfg.LLM.EvaluateTimeout), cfg.Context)

	llmResolver, err := intent.NewLLMResolver(router, logger, cfg.LLM.ParseTimeout)
	if err != nil {
		return nil, err
	}
	llmPlanner, err := planner.NewLLMPlanner(router, cache, memory, logger, cfg.LLM.PlanTimeout)
	if err != nil {
		return nil, err
	}

	manager, err := browser.NewManager(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, err
	}
	pages, err := browser.NewExecutor(manager, logger)
	if err != nil {
		manager.Shutdown()
		return nil, err
	}
	snaps, err := browser.NewSnapshotter(pages, counter, logger, cfg.Browser.SnapshotTokens)
	if err != nil {
		manager.Shutdown()
		return nil, err
	}
	gen, err := codegen.New(router, logger, cfg.LLM.PlanTimeout)
	if err != nil {
		manager.Shutdown()
		return nil, err
	}

	lifeCtx, stop := context.WithCancel(context.Background())
	cache.StartSweeper(lifeCtx, cfg.Cache.SweepInterval)

	return &Agent{
		cfg:        cfg,
		logger:     log,
		router:     router,
		resolver:   intent.NewFallback(llmResolver, intent.NewHeuristicResolver(), logger),
		planner:    planner.NewFallback(llmPlanner, planner.NewRulePlanner(), logger),
		eval:       evaluator.New(router, memory, logger, cfg.LLM.EvaluateTimeout),
		cache:      cache,
		memory:     memory,
		manager:    manager,
		pages:      pages,
		snaps:      snaps,
		gen:        gen,
		events:     make(chan schemas.Event, 64),
		cancelCtx:  lifeCtx,
		cancelStop: stop,
	}, nil
}

// Events exposes the progress stream. Events are dropped, never blocked
// on, when the consumer falls behind.
func (a *Agent) Events() <-chan schemas.Event {
	return a.events
}

// Handle runs one user request end to end against the root tab.
func (a *Agent) Handle(ctx context.Context, request string) (schemas.RequestResult, error) {
	requestID := uuid.NewString()
	a.remember(schemas.KindUser, request)

	a.emit(schemas.Event{Type: schemas.EventParsing, RequestID: requestID, Message: request})
	goal, err := a.resolver.Resolve(ctx, request)
	if err != nil {
		// Only possible without the heuristic fallback in the chain.
		return schemas.RequestResult{RequestID: requestID}, fmt.Errorf("session: resolve intent: %w", err)
	}
	a.emit(schemas.Event{Type: schemas.EventReasoning, RequestID: requestID, Message: goal.PrimaryGoal, Payload: goal})
	a.memory.SetGoal(goal)
	a.compressMemory(ctx, goal)

	a.emit(schemas.Event{Type: schemas.EventPlanning, RequestID: requestID, Payload: goal})
	plan, err := a.planner.Plan(ctx, goal, a.currentPage(ctx, ""))
	if err != nil {
		return schemas.RequestResult{RequestID: requestID}, fmt.Errorf("session: plan: %w", err)
	}

	result, err := a.executeOnTab(ctx, requestID, "", goal, plan)
	if err != nil {
		return schemas.RequestResult{RequestID: requestID}, err
	}
	a.rememberResult(result)
	return result, nil
}

// HandleFanOut parses and plans the request once, then runs the plan
// concurrently against one fresh tab per target URL and aggregates.
func (a *Agent) HandleFanOut(ctx context.Context, request string, targetURLs []string) (multitab.AggregateResult, error) {
	requestID := uuid.NewString()
	a.remember(schemas.KindUser, request)

	goal, err := a.resolver.Resolve(ctx, request)
	if err != nil {
		return multitab.AggregateResult{}, fmt.Errorf("session: resolve intent: %w", err)
	}
	a.memory.SetGoal(goal)

	plan, err := a.planner.Plan(ctx, goal, a.currentPage(ctx, ""))
	if err != nil {
		return multitab.AggregateResult{}, fmt.Errorf("session: plan: %w", err)
	}

	targets := make([]multitab.TargetRequest, 0, len(targetURLs))
	var tabIDs []string
	for _, target := range targetURLs {
		tab, err := a.manager.NewTab()
		if err != nil {
			return multitab.AggregateResult{}, fmt.Errorf("session: open tab: %w", err)
		}
		tabIDs = append(tabIDs, tab.ID)
		targets = append(targets, multitab.TargetRequest{
			TabID: tab.ID,
			Goal:  goal,
			Plan:  prefixNavigate(plan, target),
		})
	}
	defer func() {
		for _, id := range tabIDs {
			a.manager.CloseTab(id)
		}
	}()

	coordinator, err := multitab.NewCoordinator(targetExecutorFunc(a.executeTarget), a.logger, len(targets))
	if err != nil {
		return multitab.AggregateResult{}, err
	}
	agg := coordinator.Execute(ctx, requestID, targets)
	a.remember(schemas.KindToolResult, fmt.Sprintf("fan-out finished: %d/%d targets succeeded", agg.Succeeded, agg.Total))
	return agg, nil
}

func (a *Agent) executeTarget(ctx context.Context, requestID string, target multitab.TargetRequest) schemas.RequestResult {
	result, err := a.executeOnTab(ctx, requestID, target.TabID, target.Goal, target.Plan)
	if err != nil {
		return schemas.RequestResult{
			RequestID: requestID,
			Assessment: schemas.CompletionAssessment{
				Status: schemas.StatusFailed,
				Reason: err.Error(),
			},
		}
	}
	return result
}

func (a *Agent) executeOnTab(ctx context.Context, requestID, tabID string, goal schemas.Goal, plan schemas.ActionPlan) (schemas.RequestResult, error) {
	runner, err := browser.NewPlanRunner(a.manager, tabID, a.pages, a.snaps, a.gen, a.cache, a.logger)
	if err != nil {
		return schemas.RequestResult{}, err
	}
	exec, err := executor.New(runner, a.eval, a.cfg.Agent, a.logger,
		executor.WithEventSink(a.emit))
	if err != nil {
		return schemas.RequestResult{}, err
	}
	return exec.Execute(ctx, requestID, goal, plan), nil
}

// CacheStats reports the selector cache counters.
func (a *Agent) CacheStats() selectorcache.Stats {
	return a.cache.Stats()
}

// ExportCache serializes the current selector cache entries.
func (a *Agent) ExportCache() ([]byte, error) {
	return a.cache.ExportJSON()
}

// currentPage reads the tab's live state for the planner. A tab that
// cannot be read just planned without page context; the plan's first
// navigate establishes it.
func (a *Agent) currentPage(ctx context.Context, tabID string) *schemas.PageState {
	page, err := a.manager.PageState(ctx, tabID)
	if err != nil {
		a.logger.Debug("Could not read current page state", zap.Error(err))
		return nil
	}
	return page
}

// compressMemory keeps the rolling history inside the budget for the
// goal's complexity tier before any prompt is built from it.
func (a *Agent) compressMemory(ctx context.Context, goal schemas.Goal) {
	budget := a.cfg.Context.Budget(complexityTier(goal))
	if budget <= 0 {
		return
	}
	result := a.memory.Compress(ctx, budget)
	if result.Ratio > 0 {
		a.logger.Debug("Compressed session memory",
			zap.Int("budget", budget),
			zap.Float64("ratio", result.Ratio))
	}
}

// complexityTier maps an intent onto the budget tiers.
func complexityTier(goal schemas.Goal) string {
	switch goal.Intent {
	case schemas.IntentNavigate:
		return "trivial"
	case schemas.IntentSearch:
		return "simple"
	case schemas.IntentExtract, schemas.IntentInteract:
		return "moderate"
	case schemas.IntentWorkflow:
		if len(goal.SuccessCriteria) > 3 {
			return "expert"
		}
		return "complex"
	}
	return "moderate"
}

func (a *Agent) remember(kind schemas.ContextKind, content string) {
	a.memory.Add(schemas.ContextItem{
		Kind:      kind,
		Content:   content,
		Timestamp: time.Now(),
	})
}

func (a *Agent) rememberResult(result schemas.RequestResult) {
	for _, step := range result.Steps {
		status := "ok"
		if !step.Outcome.Success {
			status = "failed: " + step.Outcome.Error
		}
		a.remember(schemas.KindToolResult, fmt.Sprintf("%s -> %s", step.Command, status))
	}
	a.remember(schemas.KindObservation,
		fmt.Sprintf("request finished with status %s: %s", result.Assessment.Status, result.Assessment.Reason))
}

func (a *Agent) emit(event schemas.Event) {
	select {
	case a.events <- event:
	default:
		// A slow consumer must not stall execution.
	}
}

// prefixNavigate returns a copy of plan that starts by navigating to
// target, unless the plan already begins with a navigate command.
func prefixNavigate(plan schemas.ActionPlan, target string) schemas.ActionPlan {
	out := schemas.ActionPlan{
		Commands:      append([]string(nil), plan.Commands...),
		LoopCondition: plan.LoopCondition,
		MaxIterations: plan.MaxIterations,
	}
	if len(out.Commands) > 0 {
		if verb, _ := browser.ParseCommand(out.Commands[0]); verb == "navigate" {
			out.Commands[0] = "navigate " + target
			return out
		}
	}
	out.Commands = append([]string{"navigate " + target}, out.Commands...)
	return out
}

// Close releases the browser and background workers.
func (a *Agent) Close() {
	a.cancelStop()
	a.manager.Shutdown()
	close(a.events)
}

// targetExecutorFunc adapts a function to the multitab.TargetExecutor
// interface.
type targetExecutorFunc func(ctx context.Context, requestID string, target multitab.TargetRequest) schemas.RequestResult

func (f targetExecutorFunc) ExecuteTarget(ctx context.Context, requestID string, target multitab.TargetRequest) schemas.RequestResult {
	return f(ctx, requestID, target)
}
