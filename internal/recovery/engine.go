// File: internal/recovery/engine.go
package recovery

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/config"
)

// TokenRefresher re-establishes credentials with the page target. The
// engine invokes it at most once per request on an auth failure.
type TokenRefresher interface {
	RefreshToken(ctx context.Context) error
}

// Decision is the engine's verdict on one failure occurrence.
type Decision struct {
	Failure schemas.DetectedFailure

	// Retry asks the executor to re-run the failed command after Delay.
	Retry bool
	Delay time.Duration

	// Alternatives are replacement selectors to splice in as a healing
	// attempt instead of a plain retry.
	Alternatives []string

	// Abort stops all recovery for this request. When Abort is false and
	// Retry is false, the executor records the failure and moves on.
	Abort  bool
	Reason string
}

// Engine enforces the per-request recovery policy: per-error and global
// retry budgets, exponential backoff, category-specific remediation, and
// abort on a repeating identical error. One Engine instance serves exactly
// one request; it is not safe for concurrent use.
type Engine struct {
	logger    *zap.Logger
	cfg       config.AgentConfig
	refresher TokenRefresher

	perError   map[string]int
	globalUsed int
	recent     []string
	refreshed  bool
}

// NewEngine creates a recovery engine for a single request. refresher may
// be nil when the session has no credential source.
func NewEngine(logger *zap.Logger, cfg config.AgentConfig, refresher TokenRefresher) *Engine {
	return &Engine{
		logger:    logger.Named("recovery"),
		cfg:       cfg,
		refresher: refresher,
		perError:  make(map[string]int),
	}
}

var retryAfterRe = regexp.MustCompile(`(?i)retry[- ]after[:= ]*(\d+)`)

// Handle classifies one failure and decides how execution should proceed.
// selector is the locator involved in the failed command, if any.
func (e *Engine) Handle(ctx context.Context, errMsg, selector string) Decision {
	failure := Classify(errMsg)

	e.recent = append(e.recent, errMsg)
	if len(e.recent) > 3 {
		e.recent = e.recent[len(e.recent)-3:]
	}
	// Three identical consecutive errors mean retrying cannot help, no
	// matter how much budget remains.
	if len(e.recent) == 3 && e.recent[0] == e.recent[1] && e.recent[1] == e.recent[2] {
		e.logger.Warn("Aborting recovery, identical error repeated three times",
			zap.String("category", string(failure.Category)))
		return Decision{Failure: failure, Abort: true, Reason: "identical error repeated three times"}
	}

	if e.globalUsed >= e.cfg.GlobalRetryBudget {
		return Decision{Failure: failure, Abort: true, Reason: "global retry budget exhausted"}
	}

	attempt := e.perError[errMsg] + 1
	failure.RecoveryAttempts = attempt
	if attempt > e.cfg.PerErrorRetries {
		// Out of budget for this particular error: record and move on.
		return Decision{Failure: failure, Reason: "per-error retry budget exhausted"}
	}

	switch failure.Category {
	case schemas.FailureNetwork, schemas.FailureTimeout:
		e.consume(errMsg)
		return Decision{
			Failure: failure,
			Retry:   true,
			Delay:   Backoff(attempt, e.cfg.BackoffBase, e.cfg.BackoffMax),
		}

	case schemas.FailureSelector:
		e.consume(errMsg)
		return Decision{
			Failure:      failure,
			Retry:        true,
			Alternatives: AlternativeSelectors(selector),
		}

	case schemas.FailureRateLimit:
		e.consume(errMsg)
		return Decision{
			Failure: failure,
			Retry:   true,
			Delay:   e.rateLimitDelay(errMsg, attempt),
		}

	case schemas.FailureAuth:
		if e.refresher != nil && !e.refreshed {
			e.refreshed = true
			if err := e.refresher.RefreshToken(ctx); err == nil {
				e.consume(errMsg)
				e.logger.Info("Token refreshed after auth failure, retrying")
				return Decision{Failure: failure, Retry: true}
			}
			e.logger.Warn("Token refresh failed")
		}
		return Decision{Failure: failure, Abort: true, Reason: "authentication failure is not recoverable"}

	case schemas.FailureParse:
		e.consume(errMsg)
		return Decision{Failure: failure, Retry: true}

	default:
		return Decision{Failure: failure, Reason: "no recovery strategy for this failure"}
	}
}

// rateLimitDelay honors a provider-specified retry-after hint when the
// message carries one, otherwise falls back to exponential backoff.
func (e *Engine) rateLimitDelay(errMsg string, attempt int) time.Duration {
	if m := retryAfterRe.FindStringSubmatch(errMsg); m != nil {
		if secs, err := strconv.Atoi(m[1]); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return Backoff(attempt, e.cfg.BackoffBase, e.cfg.BackoffMax)
}

func (e *Engine) consume(errMsg string) {
	e.perError[errMsg]++
	e.globalUsed++
}

// BudgetRemaining reports how many retries the global budget still allows.
func (e *Engine) BudgetRemaining() int {
	remaining := e.cfg.GlobalRetryBudget - e.globalUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
