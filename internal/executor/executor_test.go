// File: internal/executor/executor_test.go
package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/config"
	"github.com/webpilot-ai/webpilot/internal/evaluator"
)

func testCfg() config.AgentConfig {
	return config.AgentConfig{
		MaxSteps:          15,
		StepDelay:         0,
		PerErrorRetries:   3,
		GlobalRetryBudget: 10,
		BackoffBase:       time.Millisecond,
		BackoffMax:        2 * time.Millisecond,
	}
}

// scriptRunner replays canned outcomes per command, in call order.
type scriptRunner struct {
	outcomes map[string][]schemas.StepOutcome
	calls    []string
	onCall   func(command string)
}

func (r *scriptRunner) Run(_ context.Context, command string) (schemas.StepOutcome, error) {
	r.calls = append(r.calls, command)
	if r.onCall != nil {
		r.onCall(command)
	}
	if queue, ok := r.outcomes[command]; ok && len(queue) > 0 {
		out := queue[0]
		r.outcomes[command] = queue[1:]
		return out, nil
	}
	return schemas.StepOutcome{Success: true}, nil
}

func newTestExecutor(t *testing.T, runner ActionRunner, opts ...Option) *Executor {
	t.Helper()
	e, err := New(runner, evaluator.New(nil, nil, zap.NewNop(), 0), testCfg(), zap.NewNop(), opts...)
	require.NoError(t, err)
	return e
}

func TestExecuteRunsPlanInOrder(t *testing.T) {
	runner := &scriptRunner{outcomes: map[string][]schemas.StepOutcome{
		"extract body": {{Success: true, Payload: []interface{}{"row"}}},
	}}
	e := newTestExecutor(t, runner)

	result := e.Execute(context.Background(), "req-1",
		schemas.Goal{Intent: schemas.IntentExtract, PrimaryGoal: "get rows"},
		schemas.ActionPlan{Commands: []string{"navigate https://example.com", "extract body"}})

	assert.Equal(t, []string{"navigate https://example.com", "extract body"}, runner.calls)
	require.Len(t, result.Steps, 2)
	assert.True(t, result.Success)
	assert.Equal(t, schemas.StatusComplete, result.Assessment.Status)
	require.Len(t, result.Results, 1)
}

func TestExecuteShortCircuitsOnNavigateGoal(t *testing.T) {
	runner := &scriptRunner{}
	e := newTestExecutor(t, runner)

	result := e.Execute(context.Background(), "req-1",
		schemas.Goal{Intent: schemas.IntentNavigate, PrimaryGoal: "go to example"},
		schemas.ActionPlan{Commands: []string{"navigate https://example.com", "extract body"}})

	assert.Equal(t, []string{"navigate https://example.com"}, runner.calls, "per-step evaluation short-circuits the plan")
	assert.Equal(t, schemas.StatusComplete, result.Assessment.Status)
}

func TestExecuteSplicesAlternativeSelector(t *testing.T) {
	runner := &scriptRunner{outcomes: map[string][]schemas.StepOutcome{
		"click #submit-btn": {{Success: false, Error: "Element not found: #submit-btn"}},
	}}
	e := newTestExecutor(t, runner)

	result := e.Execute(context.Background(), "req-1",
		schemas.Goal{Intent: schemas.IntentInteract, PrimaryGoal: "submit the form"},
		schemas.ActionPlan{Commands: []string{"click #submit-btn"}})

	require.Len(t, runner.calls, 2, "untried sibling alternatives are skipped once one heals")
	assert.Equal(t, "click #submit-btn", runner.calls[0])
	assert.Equal(t, `click [data-testid="submit-btn"]`, runner.calls[1], "healing command runs immediately after the failure")
	assert.True(t, result.Steps[1].Outcome.Success)
}

func TestExecuteAbortsOnRepeatingError(t *testing.T) {
	runner := &scriptRunner{outcomes: map[string][]schemas.StepOutcome{
		"navigate https://down.example.com": {
			{Success: false, Error: "connection refused"},
			{Success: false, Error: "connection refused"},
			{Success: false, Error: "connection refused"},
		},
	}}
	e := newTestExecutor(t, runner)

	result := e.Execute(context.Background(), "req-1",
		schemas.Goal{Intent: schemas.IntentNavigate, PrimaryGoal: "go"},
		schemas.ActionPlan{Commands: []string{"navigate https://down.example.com"}})

	assert.Len(t, result.Steps, 3)
	assert.Equal(t, schemas.StatusFailed, result.Assessment.Status)
	assert.Contains(t, result.Assessment.Reason, "recovery aborted")
}

func TestExecuteRecordsAndContinuesAfterExhaustedRetries(t *testing.T) {
	runner := &scriptRunner{outcomes: map[string][]schemas.StepOutcome{
		"click #gone": {{Success: false, Error: "mystery explosion"}},
	}}
	e := newTestExecutor(t, runner)

	result := e.Execute(context.Background(), "req-1",
		schemas.Goal{Intent: schemas.IntentWorkflow, PrimaryGoal: "several things"},
		schemas.ActionPlan{Commands: []string{"click #gone", "extract body"}})

	assert.Equal(t, []string{"click #gone", "extract body"}, runner.calls,
		"an unrecoverable step is recorded and the plan proceeds")
	assert.False(t, result.Steps[0].Outcome.Success)
	assert.True(t, result.Steps[1].Outcome.Success)
}

func TestExecuteEnforcesMaxSteps(t *testing.T) {
	runner := &scriptRunner{}
	e, err := New(runner, evaluator.New(nil, nil, zap.NewNop(), 0),
		config.AgentConfig{MaxSteps: 3, PerErrorRetries: 3, GlobalRetryBudget: 10}, zap.NewNop())
	require.NoError(t, err)

	commands := make([]string, 10)
	for i := range commands {
		commands[i] = "scroll down"
	}
	result := e.Execute(context.Background(), "req-1",
		schemas.Goal{Intent: schemas.IntentWorkflow, PrimaryGoal: "scroll a lot"},
		schemas.ActionPlan{Commands: commands})

	assert.Len(t, result.Steps, 3)
}

func TestExecuteObservesCancelBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &scriptRunner{}
	runner.onCall = func(string) { cancel() }
	e := newTestExecutor(t, runner)

	result := e.Execute(ctx, "req-1",
		schemas.Goal{Intent: schemas.IntentWorkflow, PrimaryGoal: "long task"},
		schemas.ActionPlan{Commands: []string{"scroll down", "scroll down", "scroll down"}})

	assert.Len(t, result.Steps, 1, "no further command scheduled after cancel")
	assert.Equal(t, schemas.StatusIncomplete, result.Assessment.Status)
	assert.Contains(t, result.Assessment.Reason, "cancelled")
}

func TestExecuteLoopConditionRepeatsPlan(t *testing.T) {
	runner := &scriptRunner{outcomes: map[string][]schemas.StepOutcome{
		"extract .results": {
			{Success: true, Payload: []interface{}{}},
			{Success: true, Payload: []interface{}{}},
			{Success: true, Payload: []interface{}{"hit"}},
		},
	}}
	e := newTestExecutor(t, runner)

	result := e.Execute(context.Background(), "req-1",
		schemas.Goal{Intent: schemas.IntentWorkflow, PrimaryGoal: "poll for results"},
		schemas.ActionPlan{
			Commands:      []string{"extract .results"},
			LoopCondition: "last.empty",
			MaxIterations: 5,
		})

	assert.Len(t, result.Steps, 3, "plan repeats while the last extraction is empty")
	require.Len(t, result.Results, 1)
}

func TestExecuteEmitsEvents(t *testing.T) {
	var events []schemas.Event
	runner := &scriptRunner{}
	e := newTestExecutor(t, runner, WithEventSink(func(ev schemas.Event) { events = append(events, ev) }))

	e.Execute(context.Background(), "req-1",
		schemas.Goal{Intent: schemas.IntentNavigate, PrimaryGoal: "go"},
		schemas.ActionPlan{Commands: []string{"navigate https://example.com"}})

	var types []schemas.EventType
	for _, ev := range events {
		types = append(types, ev.Type)
		assert.Equal(t, "req-1", ev.RequestID)
	}
	assert.Equal(t, []schemas.EventType{schemas.EventAction, schemas.EventResult, schemas.EventEvaluation, schemas.EventComplete}, types)
}

func TestCommandQueueOrdering(t *testing.T) {
	q := NewCommandQueue([]string{"a", "b"})
	q.InsertNext("r1", "r2")
	q.Append("z")

	var got []string
	for {
		cmd, ok := q.Next()
		if !ok {
			break
		}
		got = append(got, cmd)
	}
	assert.Equal(t, []string{"r1", "r2", "a", "b", "z"}, got)
	assert.Equal(t, 0, q.Len())
}

func TestCommandQueueDrain(t *testing.T) {
	q := NewCommandQueue([]string{"a", "b"})
	q.Drain()
	_, ok := q.Next()
	assert.False(t, ok)
}

func TestEvalLoopCondition(t *testing.T) {
	env := LoopEnv{Success: true, Empty: false}
	cases := []struct {
		expr string
		want bool
	}{
		{"last.success", true},
		{"last.empty", false},
		{"!last.empty", true},
		{"last.success && !last.empty", true},
		{"last.empty || false", false},
		{"(last.success || last.empty) && true", true},
		{"!(last.success)", false},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := EvalLoopCondition(tc.expr, env)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvalLoopConditionRejectsUnsafeInput(t *testing.T) {
	for _, expr := range []string{
		"",
		"process.exit()",
		"last.success; drop",
		"last.success &",
		"(last.success",
		"window.location",
		"1 == 1",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := EvalLoopCondition(expr, LoopEnv{})
			assert.Error(t, err)
		})
	}
}
