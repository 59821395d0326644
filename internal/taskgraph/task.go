// Package taskgraph implements the Task Decomposer (C4): turning a goal
// string into an ordered DAG of micro-tasks, plus the Task/Queue types
// the Dispatcher schedules against. Adapted from the teacher's
// internal/tasks/types.go and queue.go, re-keyed from the teacher's
// 1-7 integer priority onto the spec's five-level priority enum and its
// eight-state task lifecycle.
package taskgraph

import (
	"fmt"
	"time"

	"github.com/orchestrator/fabric/internal/orchtypes"
)

// State is a Task's lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateQueued    State = "queued"
	StateAssigned  State = "assigned"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
	StateTimedOut  State = "timed_out"
)

// BackoffKind selects the retry delay curve for a task type.
type BackoffKind string

const (
	BackoffExponential BackoffKind = "exponential"
	BackoffLinear      BackoffKind = "linear"
)

// RetryPolicy bounds how many times, and how, a failed task is retried.
type RetryPolicy struct {
	MaxAttempts    int
	Backoff        BackoffKind
	PerAttempt     time.Duration
}

// defaultRetryPolicies is the closed map of retry defaults by task type
// (spec §4.7): max_attempts 2-3, exponential base 1.5s unless the type
// is "finance", which uses linear backoff.
var defaultRetryPolicies = map[string]RetryPolicy{
	"finance": {MaxAttempts: 3, Backoff: BackoffLinear, PerAttempt: 30 * time.Second},
}

const defaultMaxAttempts = 2

// RetryPolicyFor returns the retry policy for a task type, falling back
// to the exponential 1.5s-base default when the type has no override.
func RetryPolicyFor(taskType string) RetryPolicy {
	if p, ok := defaultRetryPolicies[taskType]; ok {
		return p
	}
	return RetryPolicy{MaxAttempts: defaultMaxAttempts, Backoff: BackoffExponential, PerAttempt: 30 * time.Second}
}

// Task is one node of a goal's dependency DAG.
type Task struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Capability orchtypes.Capability   `json:"capability"`
	Parameters map[string]interface{} `json:"parameters"`
	Priority   orchtypes.Priority     `json:"priority"`
	DependsOn  []string               `json:"depends_on"`
	Deadline   time.Time              `json:"deadline,omitempty"` // zero value means no deadline (∞)
	Retry      RetryPolicy            `json:"retry"`
	Attempts   int                    `json:"attempts"`
	State      State                  `json:"state"`
	AgentID    string                 `json:"agent_id,omitempty"` // bound once Assigned; kept after completion

	CreatedAt   time.Time `json:"created_at"`
	AssignedAt  time.Time `json:"assigned_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// validTransitions enumerates the monotonic state machine (spec §3):
// Failed→Pending is the sole permitted backward edge, gated on a retry
// being available (checked by the caller, not by TransitionTo itself).
var validTransitions = map[State][]State{
	StatePending:   {StateQueued, StateCancelled},
	StateQueued:    {StateAssigned, StateCancelled},
	StateAssigned:  {StateRunning, StateCancelled},
	StateRunning:   {StateCompleted, StateFailed, StateTimedOut, StateCancelled},
	StateFailed:    {StatePending},
	StateTimedOut:  {},
	StateCompleted: {},
	StateCancelled: {},
}

// TransitionTo moves the task to newState if the edge is permitted.
func (t *Task) TransitionTo(newState State) error {
	allowed, ok := validTransitions[t.State]
	if !ok {
		return fmt.Errorf("taskgraph: unknown state %s", t.State)
	}
	for _, s := range allowed {
		if s == newState {
			t.State = newState
			switch newState {
			case StateAssigned:
				t.AssignedAt = time.Now()
			case StateCompleted, StateFailed, StateTimedOut, StateCancelled:
				t.CompletedAt = time.Now()
			}
			return nil
		}
	}
	return fmt.Errorf("taskgraph: invalid transition %s -> %s for task %s", t.State, newState, t.ID)
}

// IsTerminal reports whether t has left the schedulable lifecycle.
func (t *Task) IsTerminal() bool {
	switch t.State {
	case StateCompleted, StateFailed, StateCancelled, StateTimedOut:
		return true
	default:
		return false
	}
}

// CanRetry reports whether a Failed task still has attempts remaining.
func (t *Task) CanRetry() bool {
	return t.State == StateFailed && t.Attempts < t.Retry.MaxAttempts
}

// NewTask builds a Task in state Pending with the retry policy derived
// from its type.
func NewTask(id, taskType string, cap orchtypes.Capability, priority orchtypes.Priority, deps ...string) *Task {
	return &Task{
		ID:         id,
		Type:       taskType,
		Capability: cap,
		Parameters: make(map[string]interface{}),
		Priority:   priority,
		DependsOn:  append([]string(nil), deps...),
		Retry:      RetryPolicyFor(taskType),
		State:      StatePending,
		CreatedAt:  time.Now(),
	}
}
