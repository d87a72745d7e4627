// api/schemas/agent.go
package schemas

import "time"

// Intent classifies what the user fundamentally wants from a request. It is
// the coarse routing signal for planning: a "navigate" goal is satisfiable by
// a single successful navigation, while a "workflow" goal implies a
// multi-step plan.
type Intent string

const (
	IntentNavigate Intent = "navigate" // Go to a page.
	IntentSearch   Intent = "search"   // Find something via a search surface.
	IntentExtract  Intent = "extract"  // Pull structured data off a page.
	IntentInteract Intent = "interact" // Click, type, fill, submit.
	IntentWorkflow Intent = "workflow" // A compound, multi-stage task.
)

// Goal is the structured representation of a user request. It is immutable
// once parsed; the executor owns it for the lifetime of a single request.
type Goal struct {
	Intent          Intent                 `json:"intent"`
	PrimaryGoal     string                 `json:"primary_goal"`
	Constraints     map[string]interface{} `json:"constraints,omitempty"`
	SuccessCriteria []string               `json:"success_criteria"`
}

// ActionPlan is the ordered list of atomic commands the planner produced for
// a Goal. Recovery may insert additional commands during execution, but
// already-executed history is never rewritten.
type ActionPlan struct {
	Commands      []string `json:"commands"`
	LoopCondition string   `json:"loop_condition,omitempty"`
	MaxIterations int      `json:"max_iterations"`
}

// StepOutcome records how a single command execution ended.
type StepOutcome struct {
	Success bool        `json:"success"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ExecutionStep is one entry in the append-only step log. Synthesized
// retry and adaptation commands get their own entries, exactly like
// planner-issued commands.
type ExecutionStep struct {
	Index     int         `json:"index"`
	Command   string      `json:"command"`
	Outcome   StepOutcome `json:"outcome"`
	Timestamp time.Time   `json:"timestamp"`
}

// CompletionStatus is the evaluator's verdict on a request.
type CompletionStatus string

const (
	StatusComplete   CompletionStatus = "complete"
	StatusIncomplete CompletionStatus = "incomplete"
	StatusFailed     CompletionStatus = "failed"
)

// CriterionStatus scores a single success criterion.
type CriterionStatus struct {
	Criterion string `json:"criterion"`
	Met       bool   `json:"met"`
	Evidence  string `json:"evidence,omitempty"`
}

// CompletionAssessment is the evaluator's full verdict. Assessments are
// never mutated, only replaced by the next evaluation pass.
type CompletionAssessment struct {
	Status              CompletionStatus  `json:"status"`
	Criteria            []CriterionStatus `json:"criteria,omitempty"`
	ShouldContinue      bool              `json:"should_continue"`
	SuggestedNextAction string            `json:"suggested_next_action,omitempty"`
	Reason              string            `json:"reason,omitempty"`
}

// FailureCategory is the taxonomy the recovery engine operates on.
type FailureCategory string

const (
	FailureNetwork   FailureCategory = "network"
	FailureSelector  FailureCategory = "selector"
	FailureAuth      FailureCategory = "auth"
	FailureRateLimit FailureCategory = "rate_limit"
	FailureParse     FailureCategory = "parse"
	FailureTimeout   FailureCategory = "timeout"
	FailureUnknown   FailureCategory = "unknown"
)

// DetectedFailure is one classified failure occurrence. It lives only for
// the duration of the current retry sequence and is not persisted.
type DetectedFailure struct {
	Category         FailureCategory        `json:"category"`
	Recoverable      bool                   `json:"recoverable"`
	RecoveryAttempts int                    `json:"recovery_attempts"`
	Context          map[string]interface{} `json:"context,omitempty"`
	Remediation      string                 `json:"remediation,omitempty"`
}

// RequestResult is the final per-request output handed to the shell.
type RequestResult struct {
	RequestID  string               `json:"request_id"`
	Success    bool                 `json:"success"`
	Results    []interface{}        `json:"results,omitempty"`
	Steps      []ExecutionStep      `json:"steps"`
	Assessment CompletionAssessment `json:"assessment"`
}
