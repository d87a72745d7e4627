// internal/browser/executor.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

const defaultExecTimeout = 30 * time.Second

// resultWrapper is the defensive serialization shell every script runs
// inside: it awaits the script's value, clips it to a bounded depth with
// circular-reference markers, and converts page exceptions into a
// structured failure instead of an evaluation error.
const resultWrapper = `(async () => {
	const clip = (v, depth, seen) => {
		if (v === null || v === undefined) return null;
		if (typeof v === 'function') return '[function]';
		if (typeof v !== 'object') return v;
		if (seen.has(v)) return '[circular]';
		if (depth >= 6) return '[depth-capped]';
		seen.add(v);
		if (Array.isArray(v)) return v.slice(0, 200).map((x) => clip(x, depth + 1, seen));
		if (typeof Element !== 'undefined' && v instanceof Element) {
			return '[element ' + (v.tagName || '').toLowerCase() + ']';
		}
		const out = {};
		let n = 0;
		for (const k of Object.keys(v)) {
			if (n++ >= 100) { out['[truncated]'] = true; break; }
			out[k] = clip(v[k], depth + 1, seen);
		}
		return out;
	};
	try {
		const raw = await Promise.resolve(%s);
		return { success: true, result: clip(raw, 0, new WeakSet()) };
	} catch (err) {
		return {
			success: false,
			error: String((err && err.message) || err),
			stack: String((err && err.stack) || '')
		};
	}
})()`

// Executor runs script text inside a tab over CDP.
type Executor struct {
	manager *Manager
	logger  *zap.Logger
	timeout time.Duration
}

var _ schemas.PageExecutor = (*Executor)(nil)

// NewExecutor creates a page executor over the manager's tabs.
func NewExecutor(manager *Manager, logger *zap.Logger) (*Executor, error) {
	if manager == nil {
		return nil, fmt.Errorf("browser: manager is required")
	}
	timeout := manager.cfg.ExecTimeout
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	return &Executor{
		manager: manager,
		logger:  logger.Named("page_executor"),
		timeout: timeout,
	}, nil
}

// Execute evaluates script in the target tab. A page exception or timeout
// is a failed PageResult, never a Go error; errors are reserved for the
// transport breaking underneath.
func (e *Executor) Execute(ctx context.Context, script string, opts schemas.ExecOptions) (schemas.PageResult, error) {
	tab, ok := e.manager.Tab(opts.TabID)
	if !ok {
		return schemas.PageResult{}, fmt.Errorf("browser: unknown tab %q", opts.TabID)
	}

	timeout := e.timeout
	if opts.TimeoutMs > 0 {
		timeout = time.Duration(opts.TimeoutMs) * time.Millisecond
	}
	opCtx, cancel := context.WithTimeout(mergeContexts(ctx, tab.ctx), timeout)
	defer cancel()

	wrapped := fmt.Sprintf(resultWrapper, script)
	start := time.Now()

	var raw json.RawMessage
	err := chromedp.Run(opCtx, chromedp.Evaluate(wrapped, &raw,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		}))
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			e.logger.Debug("Page execution timed out", zap.Duration("timeout", timeout))
			return schemas.PageResult{
				Success:    false,
				TimedOut:   true,
				Error:      fmt.Sprintf("execution timed out after %v", timeout),
				DurationMs: elapsed,
			}, nil
		}
		return schemas.PageResult{}, fmt.Errorf("page evaluation: %w", err)
	}

	var wrapperOut struct {
		Success bool        `json:"success"`
		Result  interface{} `json:"result"`
		Error   string      `json:"error"`
		Stack   string      `json:"stack"`
	}
	if err := json.Unmarshal(raw, &wrapperOut); err != nil {
		return schemas.PageResult{}, fmt.Errorf("decode page result: %w", err)
	}

	return schemas.PageResult{
		Success:    wrapperOut.Success,
		Result:     wrapperOut.Result,
		Error:      wrapperOut.Error,
		Stack:      wrapperOut.Stack,
		DurationMs: elapsed,
	}, nil
}

// mergeContexts returns the tab context bounded by the caller's
// cancellation. chromedp actions must run on the tab context, but a user
// cancel on the request context has to cut them short too.
func mergeContexts(request, tab context.Context) context.Context {
	merged, cancel := context.WithCancel(tab)
	go func() {
		select {
		case <-request.Done():
			cancel()
		case <-merged.Done():
		}
	}()
	return merged
}
