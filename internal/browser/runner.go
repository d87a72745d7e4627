// internal/browser/runner.go
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/recovery"
	"github.com/webpilot-ai/webpilot/internal/selectorcache"
)

// PlanRunner executes plan commands against one tab. It is the bridge
// between the executor's command vocabulary and concrete CDP actions, and
// it feeds selector use back into the cache.
type PlanRunner struct {
	manager *Manager
	tabID   string
	exec    schemas.PageExecutor
	snaps   schemas.SnapshotProvider
	gen     schemas.CodeGenerator
	cache   *selectorcache.Cache
	logger  *zap.Logger

	actionTimeout time.Duration
	lastURL       string
}

// NewPlanRunner binds a runner to one tab. cache and gen may be nil; the
// execute verb then fails cleanly instead of generating code.
func NewPlanRunner(manager *Manager, tabID string, exec schemas.PageExecutor, snaps schemas.SnapshotProvider, gen schemas.CodeGenerator, cache *selectorcache.Cache, logger *zap.Logger) (*PlanRunner, error) {
	if manager == nil {
		return nil, fmt.Errorf("browser: manager is required")
	}
	if exec == nil {
		return nil, fmt.Errorf("browser: page executor is required")
	}
	timeout := manager.cfg.ExecTimeout
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	return &PlanRunner{
		manager:       manager,
		tabID:         tabID,
		exec:          exec,
		snaps:         snaps,
		gen:           gen,
		cache:         cache,
		logger:        logger.Named("plan_runner"),
		actionTimeout: timeout,
	}, nil
}

// Run executes one plan command and reports its outcome. Page-level
// failures land in the outcome; only an unusable command is a Go error.
func (r *PlanRunner) Run(ctx context.Context, command string) (schemas.StepOutcome, error) {
	verb, args := ParseCommand(command)

	switch verb {
	case "navigate":
		return r.navigate(ctx, args)
	case "click":
		return r.click(ctx, args)
	case "type":
		return r.typeText(ctx, args)
	case "extract":
		return r.extract(ctx, args)
	case "wait":
		return r.wait(ctx, args)
	case "scroll":
		return r.scroll(ctx, args)
	case "execute":
		return r.executeFreeForm(ctx, args)
	}
	return schemas.StepOutcome{}, fmt.Errorf("unknown command verb %q", verb)
}

// ParseCommand splits a plan command into its verb and argument remainder.
func ParseCommand(command string) (string, string) {
	verb, rest, _ := strings.Cut(strings.TrimSpace(command), " ")
	return strings.ToLower(verb), strings.TrimSpace(rest)
}

func (r *PlanRunner) navigate(ctx context.Context, target string) (schemas.StepOutcome, error) {
	if target == "" {
		return schemas.StepOutcome{}, fmt.Errorf("navigate: missing url")
	}
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}

	var currentURL, title string
	err := r.runActions(ctx,
		chromedp.Navigate(target),
		chromedp.Location(&currentURL),
		chromedp.Title(&title),
	)
	if err != nil {
		return failure(err), nil
	}

	if r.cache != nil && r.lastURL != "" {
		r.cache.RecordNavigation(r.lastURL, currentURL)
	}
	r.lastURL = currentURL

	return schemas.StepOutcome{
		Success: true,
		Payload: schemas.PageState{URL: currentURL, Title: title, HasContent: true},
	}, nil
}

func (r *PlanRunner) click(ctx context.Context, selector string) (schemas.StepOutcome, error) {
	if selector == "" {
		return schemas.StepOutcome{}, fmt.Errorf("click: missing selector")
	}
	_, err := r.withHealing(ctx, selector, func(ctx context.Context, sel string) error {
		return r.runActions(ctx, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible))
	})
	if err != nil {
		return failure(fmt.Errorf("element not found or not clickable: %s: %w", selector, err)), nil
	}
	r.trackLocation(ctx)
	return schemas.StepOutcome{Success: true}, nil
}

func (r *PlanRunner) typeText(ctx context.Context, args string) (schemas.StepOutcome, error) {
	selector, text, ok := strings.Cut(args, " ")
	if !ok || selector == "" {
		return schemas.StepOutcome{}, fmt.Errorf("type: expected selector and text")
	}
	_, err := r.withHealing(ctx, selector, func(ctx context.Context, sel string) error {
		return r.runActions(ctx,
			chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible),
			chromedp.SendKeys(sel, text, chromedp.ByQuery),
		)
	})
	if err != nil {
		return failure(fmt.Errorf("element not found for typing: %s: %w", selector, err)), nil
	}
	return schemas.StepOutcome{Success: true}, nil
}

// withHealing runs a selector-addressed action and, when the selector has
// a cached entry, walks its healing chain before giving up. Each candidate
// goes on probation via Heal; a candidate that works is recorded against
// the original key, which promotes it to primary. Returns the selector
// that worked, or the original selector with the original error.
func (r *PlanRunner) withHealing(ctx context.Context, selector string, action func(ctx context.Context, selector string) error) (string, error) {
	err := action(ctx, selector)
	r.recordSelectorUse(selector, err == nil)
	if err == nil || r.cache == nil {
		return selector, err
	}
	key, ok := r.selectorKey(selector)
	if !ok {
		return selector, err
	}

	for {
		candidate, ok := r.cache.Heal(key)
		if !ok {
			return selector, err
		}
		healErr := action(ctx, candidate)
		r.cache.RecordOutcome(key, healErr == nil)
		if healErr == nil {
			r.logger.Info("Healed selector",
				zap.String("from", selector),
				zap.String("to", candidate),
			)
			return candidate, nil
		}
	}
}

// extractScript pulls the visible text of every match for a selector.
const extractScript = `(() => {
	const out = [];
	for (const el of document.querySelectorAll(%s)) {
		const text = (el.innerText || el.textContent || '').trim();
		if (text) out.push(text);
		if (out.length >= 500) break;
	}
	return out;
})()`

func (r *PlanRunner) extract(ctx context.Context, selector string) (schemas.StepOutcome, error) {
	if selector == "" {
		selector = "body"
	}
	script := fmt.Sprintf(extractScript, jsString(selector))
	result, err := r.exec.Execute(ctx, script, schemas.ExecOptions{TabID: r.tabID})
	if err != nil {
		return failure(err), nil
	}
	if !result.Success {
		r.recordSelectorUse(selector, false)
		return schemas.StepOutcome{Success: false, Error: result.Error}, nil
	}
	r.recordSelectorUse(selector, true)
	return schemas.StepOutcome{Success: true, Payload: result.Result}, nil
}

func (r *PlanRunner) wait(ctx context.Context, args string) (schemas.StepOutcome, error) {
	ms, err := strconv.Atoi(args)
	if err != nil || ms < 0 {
		return schemas.StepOutcome{}, fmt.Errorf("wait: expected milliseconds, got %q", args)
	}
	select {
	case <-ctx.Done():
		return failure(ctx.Err()), nil
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return schemas.StepOutcome{Success: true}, nil
	}
}

func (r *PlanRunner) scroll(ctx context.Context, direction string) (schemas.StepOutcome, error) {
	var script string
	switch strings.ToLower(direction) {
	case "up":
		script = `(() => { window.scrollBy(0, -window.innerHeight); return true; })()`
	case "down", "":
		script = `(() => { window.scrollBy(0, window.innerHeight); return true; })()`
	case "bottom":
		script = `(() => { window.scrollTo(0, document.body.scrollHeight); return true; })()`
	default:
		return schemas.StepOutcome{}, fmt.Errorf("scroll: unknown direction %q", direction)
	}
	result, err := r.exec.Execute(ctx, script, schemas.ExecOptions{TabID: r.tabID})
	if err != nil {
		return failure(err), nil
	}
	if !result.Success {
		return schemas.StepOutcome{Success: false, Error: result.Error}, nil
	}
	return schemas.StepOutcome{Success: true}, nil
}

// executeFreeForm handles instructions outside the fixed vocabulary: take
// a snapshot, generate a script for the instruction, run it.
func (r *PlanRunner) executeFreeForm(ctx context.Context, instruction string) (schemas.StepOutcome, error) {
	if instruction == "" {
		return schemas.StepOutcome{}, fmt.Errorf("execute: missing instruction")
	}
	if r.gen == nil {
		return schemas.StepOutcome{Success: false, Error: "no code generator configured"}, nil
	}

	var snapshot *schemas.DOMSnapshot
	if r.snaps != nil {
		if snap, err := r.snaps.Snapshot(ctx, r.tabID); err == nil {
			snapshot = &snap
		} else {
			r.logger.Warn("Snapshot failed, generating without page context", zap.Error(err))
		}
	}

	code, err := r.gen.Generate(ctx, instruction, snapshot)
	if err != nil {
		return failure(err), nil
	}
	if !code.Success {
		return schemas.StepOutcome{Success: false, Error: "code generation failed: " + code.Error}, nil
	}

	result, err := r.exec.Execute(ctx, code.Code, schemas.ExecOptions{TabID: r.tabID})
	if err != nil {
		return failure(err), nil
	}
	if result.TimedOut {
		return schemas.StepOutcome{Success: false, Error: result.Error}, nil
	}
	return schemas.StepOutcome{
		Success: result.Success,
		Payload: result.Result,
		Error:   result.Error,
	}, nil
}

// runActions executes chromedp actions on this runner's tab, bounded by
// the per-action timeout and the request context.
func (r *PlanRunner) runActions(ctx context.Context, actions ...chromedp.Action) error {
	tab, ok := r.manager.Tab(r.tabID)
	if !ok {
		return fmt.Errorf("unknown tab %q", r.tabID)
	}
	opCtx, cancel := context.WithTimeout(mergeContexts(ctx, tab.ctx), r.actionTimeout)
	defer cancel()

	err := chromedp.Run(opCtx, actions...)
	if err != nil && opCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("action timed out after %v: %w", r.actionTimeout, err)
	}
	return err
}

// trackLocation refreshes lastURL after an action that may have navigated,
// recording the transition for prefetch.
func (r *PlanRunner) trackLocation(ctx context.Context) {
	var currentURL string
	if err := r.runActions(ctx, chromedp.Location(&currentURL)); err != nil || currentURL == "" {
		return
	}
	if currentURL != r.lastURL {
		if r.cache != nil && r.lastURL != "" {
			r.cache.RecordNavigation(r.lastURL, currentURL)
		}
		r.lastURL = currentURL
	}
}

// selectorKey builds the cache key for a selector on the current page.
func (r *PlanRunner) selectorKey(selector string) (selectorcache.Key, bool) {
	if r.lastURL == "" {
		return selectorcache.Key{}, false
	}
	parsed, err := url.Parse(r.lastURL)
	if err != nil || parsed.Host == "" {
		return selectorcache.Key{}, false
	}
	return selectorcache.Key{
		Domain:     parsed.Hostname(),
		URLPattern: parsed.Path,
		ElementKey: selector,
	}, true
}

// recordSelectorUse feeds one selector outcome into the cache, creating
// the entry on first success.
func (r *PlanRunner) recordSelectorUse(selector string, success bool) {
	if r.cache == nil {
		return
	}
	key, ok := r.selectorKey(selector)
	if !ok {
		return
	}
	if _, ok := r.cache.Get(key); !ok {
		if !success {
			return
		}
		// Seed the healing chain with the standard addressing-style
		// translations so a later failure has somewhere to go.
		r.cache.Put(key, selector, recovery.AlternativeSelectors(selector))
	}
	r.cache.RecordOutcome(key, success)
}

func failure(err error) schemas.StepOutcome {
	return schemas.StepOutcome{Success: false, Error: err.Error()}
}

func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}
