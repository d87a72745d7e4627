// File: internal/executor/queue.go
package executor

// CommandQueue is the executor's source of pending commands. Normal
// commands dequeue in FIFO order; recovery commands are inserted at the
// front so they run immediately after the step that spawned them. History
// is never rewritten, only the pending side of the queue changes.
type CommandQueue struct {
	pending []string
}

// NewCommandQueue seeds a queue with the planner's ordered commands.
func NewCommandQueue(commands []string) *CommandQueue {
	return &CommandQueue{pending: append([]string(nil), commands...)}
}

// Next pops the head of the queue.
func (q *CommandQueue) Next() (string, bool) {
	if len(q.pending) == 0 {
		return "", false
	}
	head := q.pending[0]
	q.pending = q.pending[1:]
	return head, true
}

// Append adds commands at the tail, after all pending work.
func (q *CommandQueue) Append(commands ...string) {
	q.pending = append(q.pending, commands...)
}

// InsertNext places commands at the head of the queue, preserving their
// given order, so they execute before any previously pending command.
func (q *CommandQueue) InsertNext(commands ...string) {
	if len(commands) == 0 {
		return
	}
	merged := make([]string, 0, len(commands)+len(q.pending))
	merged = append(merged, commands...)
	merged = append(merged, q.pending...)
	q.pending = merged
}

// Peek returns the head of the queue without removing it.
func (q *CommandQueue) Peek() (string, bool) {
	if len(q.pending) == 0 {
		return "", false
	}
	return q.pending[0], true
}

// Len reports how many commands are still pending.
func (q *CommandQueue) Len() int {
	return len(q.pending)
}

// Drain empties the queue, discarding all pending commands.
func (q *CommandQueue) Drain() {
	q.pending = nil
}
