// api/schemas/events.go
package schemas

import "time"

// EventType enumerates the step/event stream produced for the shell UI.
type EventType string

const (
	EventParsing    EventType = "parsing"
	EventPlanning   EventType = "planning"
	EventReasoning  EventType = "reasoning"
	EventAction     EventType = "action"
	EventResult     EventType = "result"
	EventEvaluation EventType = "evaluation"
	EventComplete   EventType = "complete"
	EventError      EventType = "error"
)

// Event is one entry on the per-request progress stream. Payload carries
// the type-specific detail (a Goal for parsing, an ExecutionStep for result,
// and so on).
type Event struct {
	Type      EventType   `json:"type"`
	RequestID string      `json:"request_id"`
	Message   string      `json:"message,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
