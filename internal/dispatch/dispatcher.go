// Package dispatch implements the Dispatcher (C7): it walks an approved
// decision's task DAG in dependency order, consults the Cost Guard for
// inference-class tasks, asks the Agent Registry for a capable agent,
// and retries or fails tasks per their retry policy. Structurally
// carried over from the teacher's internal/supervisor/dispatcher.go
// (StandardDispatcher, dispatchState with a context.CancelFunc per
// dispatch), retargeted from "spawn coding agents from a plan" onto
// "assign DAG tasks with retry/backoff/deadlines".
package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orchestrator/fabric/internal/costguard"
	"github.com/orchestrator/fabric/internal/orchtypes"
	"github.com/orchestrator/fabric/internal/registry"
	"github.com/orchestrator/fabric/internal/taskgraph"
)

// capabilityTypeMap is the closed capability→agent-type fallback used
// by assign when no Idle agent already carries the capability (spec
// §4.7 step 2).
var capabilityTypeMap = map[orchtypes.Capability]string{
	orchtypes.CapDataIngestion:     "learning",
	orchtypes.CapTechScouting:      "tech_scout",
	orchtypes.CapCodeAnalysis:      "code_analyst",
	orchtypes.CapContentGeneration: "content_generator",
	orchtypes.CapCostOptimization:  "cost_optimizer",
	orchtypes.CapBusinessAnalysis:  "business_analyst",
	orchtypes.CapExperimentation:   "experimenter",
	orchtypes.CapFeedbackAnalysis:  "feedback_analyst",
	orchtypes.CapStrategyEvolution: "strategist",
	orchtypes.CapIntegrationTest:   "integration_tester",
}

// inferenceTaskTypes marks task types routed through the Cost Guard
// before assignment (spec §4.7 step 1).
var inferenceTaskTypes = map[string]bool{
	"llm_inference": true,
	"generate":      true,
}

// WorkerResult is what a worker reports back on task completion.
type WorkerResult struct {
	TaskID         string
	Success        bool
	Payload        interface{}
	Confidence     float64
	ProcessingTime time.Duration
}

// CompletionPublisher is implemented by the event transport the
// Dispatcher notifies on task completion (satisfied by the NATS-backed
// event bus).
type CompletionPublisher interface {
	PublishTaskCompleted(workflowID, taskID string, success bool)
}

// Dispatch tracks one workflow's DAG as it executes, mirroring the
// teacher's dispatchState (result + per-agent map + cancellable ctx).
type Dispatch struct {
	ID       string
	Queue    *taskgraph.Queue
	ctx      context.Context
	cancel   context.CancelFunc
	deadline time.Time

	overflow []string // task ids parked on the overflow queue
}

// Dispatcher assigns DAG tasks to Registry agents with retry, backoff,
// and deadline enforcement.
type Dispatcher struct {
	reg       *registry.Registry
	guard     *costguard.Guard
	publisher CompletionPublisher
	log       *zap.Logger

	mu        sync.RWMutex
	dispatches map[string]*Dispatch
}

// New constructs a Dispatcher bound to a Registry and Cost Guard.
func New(reg *registry.Registry, guard *costguard.Guard, publisher CompletionPublisher, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		reg:        reg,
		guard:      guard,
		publisher:  publisher,
		log:        log,
		dispatches: make(map[string]*Dispatch),
	}
}

// StartDispatch begins tracking a workflow's task DAG under a
// cancellable context derived from parent, with an absolute deadline.
func (d *Dispatcher) StartDispatch(parent context.Context, workflowID string, tasks []*taskgraph.Task, deadline time.Time) *Dispatch {
	ctx, cancel := context.WithCancel(parent)
	if !deadline.IsZero() {
		ctx, cancel = context.WithDeadline(parent, deadline)
	}
	q := taskgraph.NewQueue()
	for _, t := range tasks {
		q.Add(t)
	}
	disp := &Dispatch{ID: workflowID, Queue: q, ctx: ctx, cancel: cancel, deadline: deadline}

	d.mu.Lock()
	d.dispatches[workflowID] = disp
	d.mu.Unlock()
	return disp
}

// Abort cancels a dispatch's context; in-flight task timers observe it.
func (d *Dispatcher) Abort(workflowID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	disp, ok := d.dispatches[workflowID]
	if !ok {
		return orchtypes.NewAPIError(orchtypes.ErrNotFound, "dispatch %s not found", workflowID)
	}
	disp.cancel()
	return nil
}

// Get returns the Dispatch tracking workflowID.
func (d *Dispatcher) Get(workflowID string) *Dispatch {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dispatches[workflowID]
}

// Tick advances a dispatch by one scheduling pass: it promotes Ready
// tasks to Queued, attempts assignment for each Queued task, and skips
// tasks whose dependencies have already failed (spec §4.7's
// best-effort partial_failure_policy). Call repeatedly (e.g. from an
// event-driven loop) until the queue is fully terminal.
func (d *Dispatcher) Tick(disp *Dispatch) error {
	select {
	case <-disp.ctx.Done():
		d.timeOutRunningTasks(disp)
		return disp.ctx.Err()
	default:
	}

	for _, t := range disp.Queue.All() {
		if t.State == taskgraph.StatePending && disp.Queue.DependencyFailed(t) {
			t.TransitionTo(taskgraph.StateCancelled)
			disp.Queue.Update(t)
			d.log.Info("task skipped, dependency failed", zap.String("task_id", t.ID))
			continue
		}
	}

	for _, t := range disp.Queue.Ready() {
		if err := t.TransitionTo(taskgraph.StateQueued); err != nil {
			continue
		}
		disp.Queue.Update(t)
	}

	for _, t := range disp.Queue.ByState(taskgraph.StateQueued) {
		d.assign(disp, t)
	}
	return nil
}

func (d *Dispatcher) timeOutRunningTasks(disp *Dispatch) {
	for _, t := range disp.Queue.ByState(taskgraph.StateRunning) {
		t.TransitionTo(taskgraph.StateTimedOut)
		disp.Queue.Update(t)
	}
}

// assign routes inference-class tasks through the Cost Guard, then
// finds or spawns a capable agent, binding the task to it.
func (d *Dispatcher) assign(disp *Dispatch, t *taskgraph.Task) {
	if inferenceTaskTypes[t.Type] {
		prompt, _ := t.Parameters["prompt"].(string)
		model, _ := t.Parameters["model"].(string)
		if model == "" {
			model = "auto"
		}
		decision, err := d.guard.Infer(costguard.InferenceRequest{
			Prompt: prompt, Model: model, MaxCost: 1.0, Priority: t.Priority,
		})
		if err == nil && decision.Route == costguard.RouteBatch {
			return // remains Queued, dispatched again once batch flushes
		}
	}

	agent := d.reg.FindAvailable(t.Capability)
	if agent == nil {
		agentType, ok := capabilityTypeMap[t.Capability]
		if ok {
			if spawned, err := d.reg.Spawn(agentType, []orchtypes.Capability{t.Capability}, 1); err == nil {
				agent = spawned
			}
		}
	}
	if agent == nil {
		disp.overflow = append(disp.overflow, t.ID)
		d.log.Info("task placed on overflow queue", zap.String("task_id", t.ID))
		return
	}

	if err := d.reg.Assign(agent.ID, t.ID); err != nil {
		return
	}
	t.AgentID = agent.ID
	t.TransitionTo(taskgraph.StateAssigned)
	t.TransitionTo(taskgraph.StateRunning)
	disp.Queue.Update(t)
}

// Complete handles a worker's completion callback for one task:
// updates the Registry's performance tracking, and on failure either
// requeues per retry policy or marks the task terminally Failed. The
// exponential or linear backoff delay is computed and logged only: the
// retried task returns to Pending at once, and the next Tick may
// reassign it without waiting for that delay.
func (d *Dispatcher) Complete(disp *Dispatch, result WorkerResult) error {
	t := disp.Queue.GetByID(result.TaskID)
	if t == nil {
		return orchtypes.NewAPIError(orchtypes.ErrNotFound, "task %s not found in dispatch %s", result.TaskID, disp.ID)
	}

	if err := d.reg.Complete(t.AgentID, t.ID, result.Success, result.ProcessingTime); err != nil {
		d.log.Warn("registry complete failed", zap.Error(err))
	}

	if result.Success {
		t.TransitionTo(taskgraph.StateCompleted)
		disp.Queue.Update(t)
		if d.publisher != nil {
			d.publisher.PublishTaskCompleted(disp.ID, t.ID, true)
		}
		return nil
	}

	t.TransitionTo(taskgraph.StateFailed)
	t.Attempts++
	if t.CanRetry() {
		delay := backoffDelay(t)
		d.log.Info("task failed, retrying", zap.String("task_id", t.ID), zap.Duration("delay", delay), zap.Int("attempt", t.Attempts))
		t.TransitionTo(taskgraph.StatePending)
		disp.Queue.Update(t)
		return nil
	}

	disp.Queue.Update(t)
	if d.publisher != nil {
		d.publisher.PublishTaskCompleted(disp.ID, t.ID, false)
	}
	return nil
}

// backoffDelay computes the retry delay for a task's next attempt
// according to its retry policy (spec §4.7: exponential base 1.5s,
// linear for type="finance").
func backoffDelay(t *taskgraph.Task) time.Duration {
	base := 1500 * time.Millisecond
	switch t.Retry.Backoff {
	case taskgraph.BackoffLinear:
		return base * time.Duration(t.Attempts)
	default:
		d := base
		for i := 1; i < t.Attempts; i++ {
			d *= 2
		}
		return d
	}
}

// DeadlineRemaining reports how much time is left before disp's
// absolute deadline, or an arbitrarily large duration if unset.
func (d *Dispatch) DeadlineRemaining() time.Duration {
	if d.deadline.IsZero() {
		return 365 * 24 * time.Hour
	}
	return time.Until(d.deadline)
}

// Overflow returns the ids of tasks currently parked on the overflow
// queue (registry at capacity when assignment was attempted).
func (d *Dispatch) Overflow() []string {
	return append([]string(nil), d.overflow...)
}

