package taskgraph

import (
	"testing"

	"github.com/orchestrator/fabric/internal/orchtypes"
)

func TestDecomposeProducesAcyclicUniqueDAG(t *testing.T) {
	d := NewDecomposer()
	tasks, err := d.Decompose("ship feature X", map[string]interface{}{"goal_id": "g1"}, 0)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(tasks) == 0 {
		t.Fatal("Decompose returned no tasks")
	}

	seen := map[string]bool{}
	for i, task := range tasks {
		if seen[task.ID] {
			t.Fatalf("duplicate task id %s", task.ID)
		}
		seen[task.ID] = true
		for _, dep := range task.DependsOn {
			if !seen[dep] {
				t.Fatalf("task %s depends on %s which has not been emitted yet (index %d)", task.ID, dep, i)
			}
		}
	}
}

func TestDecomposeIsDeterministic(t *testing.T) {
	d := NewDecomposer()
	ctx := map[string]interface{}{"goal_id": "g2"}
	a, err := d.Decompose("analyze repo", ctx, 3)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	b, err := d.Decompose("analyze repo", ctx, 3)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Capability != b[i].Capability {
			t.Fatalf("decomposition %d differs between calls: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestDecomposeRespectsMaxTasks(t *testing.T) {
	d := NewDecomposer()
	tasks, err := d.Decompose("goal", nil, 2)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("len(tasks) = %d, want 2", len(tasks))
	}
}

func TestQueueReadyRequiresAllDepsCompleted(t *testing.T) {
	q := NewQueue()
	t1 := NewTask("t1", "ingest", orchtypes.CapDataIngestion, orchtypes.PriorityNormal)
	t2 := NewTask("t2", "analyze", orchtypes.CapCodeAnalysis, orchtypes.PriorityNormal, "t1")
	q.Add(t1)
	q.Add(t2)

	ready := q.Ready()
	if len(ready) != 1 || ready[0].ID != "t1" {
		t.Fatalf("Ready() = %v, want only t1", ready)
	}

	t1.TransitionTo(StateQueued)
	t1.TransitionTo(StateAssigned)
	t1.TransitionTo(StateRunning)
	t1.TransitionTo(StateCompleted)
	q.Update(t1)

	ready = q.Ready()
	if len(ready) != 1 || ready[0].ID != "t2" {
		t.Fatalf("Ready() after t1 completed = %v, want only t2", ready)
	}
}

func TestQueueDependencyFailedSkipsDownstream(t *testing.T) {
	q := NewQueue()
	t1 := NewTask("t1", "ingest", orchtypes.CapDataIngestion, orchtypes.PriorityNormal)
	t2 := NewTask("t2", "analyze", orchtypes.CapCodeAnalysis, orchtypes.PriorityNormal, "t1")
	q.Add(t1)
	q.Add(t2)

	t1.TransitionTo(StateQueued)
	t1.TransitionTo(StateAssigned)
	t1.TransitionTo(StateRunning)
	t1.TransitionTo(StateFailed)
	q.Update(t1)

	if !q.DependencyFailed(t2) {
		t.Fatal("DependencyFailed(t2) = false, want true after t1 failed")
	}
}

func TestTaskStateMachineRejectsInvalidTransitions(t *testing.T) {
	task := NewTask("t1", "ingest", orchtypes.CapDataIngestion, orchtypes.PriorityNormal)
	if err := task.TransitionTo(StateCompleted); err == nil {
		t.Fatal("expected error transitioning Pending -> Completed directly")
	}
	if err := task.TransitionTo(StateQueued); err != nil {
		t.Fatalf("Pending -> Queued: %v", err)
	}
}

func TestFailedTaskCanRetryOnlyWithinMaxAttempts(t *testing.T) {
	task := NewTask("t1", "generic", orchtypes.CapGeneric, orchtypes.PriorityNormal)
	task.TransitionTo(StateQueued)
	task.TransitionTo(StateAssigned)
	task.TransitionTo(StateRunning)
	task.TransitionTo(StateFailed)
	task.Attempts = 1

	if !task.CanRetry() {
		t.Fatal("CanRetry() = false after 1 attempt, want true (default max 2)")
	}
	task.Attempts = task.Retry.MaxAttempts
	if task.CanRetry() {
		t.Fatal("CanRetry() = true at max attempts, want false")
	}
}

func TestFinanceTypeUsesLinearBackoff(t *testing.T) {
	p := RetryPolicyFor("finance")
	if p.Backoff != BackoffLinear {
		t.Fatalf("finance backoff = %s, want linear", p.Backoff)
	}
	if p.MaxAttempts != 3 {
		t.Fatalf("finance max attempts = %d, want 3", p.MaxAttempts)
	}
}
