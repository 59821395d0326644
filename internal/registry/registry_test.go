package registry

import (
	"testing"
	"time"

	"github.com/orchestrator/fabric/internal/orchtypes"
)

func TestNewSeedsMinAgents(t *testing.T) {
	r, err := New(4, 10, DefaultSeedDistribution(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := r.Len(); got != 4 {
		t.Fatalf("Len() = %d, want 4", got)
	}
	all := r.All()
	caps := map[orchtypes.Capability]bool{}
	for _, a := range all {
		for _, c := range a.Capabilities.Slice() {
			caps[c] = true
		}
		if a.Status != StatusIdle {
			t.Errorf("seeded agent %s status = %s, want idle", a.ID, a.Status)
		}
	}
	for _, want := range []orchtypes.Capability{
		orchtypes.CapDataIngestion, orchtypes.CapTechScouting,
		orchtypes.CapCostOptimization, orchtypes.CapExperimentation,
	} {
		if !caps[want] {
			t.Errorf("seed distribution missing capability %s", want)
		}
	}
}

func TestSpawnRespectsMaxAgents(t *testing.T) {
	r, err := New(0, 1, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.Spawn("worker", []orchtypes.Capability{orchtypes.CapGeneric}, 1); err != nil {
		t.Fatalf("first Spawn: %v", err)
	}
	_, err = r.Spawn("worker", []orchtypes.Capability{orchtypes.CapGeneric}, 1)
	if err == nil {
		t.Fatal("expected CapacityExhausted on second spawn past max_agents")
	}
	ae := orchtypes.AsAPIError(err)
	if ae.Kind != orchtypes.ErrCapacityExhausted {
		t.Fatalf("err kind = %s, want capacity_exhausted", ae.Kind)
	}
}

func TestTerminateFailsWhenBusy(t *testing.T) {
	r, _ := New(0, 2, nil, nil)
	a, _ := r.Spawn("worker", []orchtypes.Capability{orchtypes.CapGeneric}, 2)
	if err := r.Assign(a.ID, "task-1"); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if err := r.Terminate(a.ID); err == nil {
		t.Fatal("expected Busy error terminating an agent with an active task")
	}
	if err := r.Complete(a.ID, "task-1", true, time.Millisecond); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := r.Terminate(a.ID); err != nil {
		t.Fatalf("Terminate after drain: %v", err)
	}
}

func TestFindAvailablePrefersHigherScore(t *testing.T) {
	r, _ := New(0, 4, nil, nil)
	low, _ := r.Spawn("worker", []orchtypes.Capability{orchtypes.CapCodeAnalysis}, 2)
	high, _ := r.Spawn("worker", []orchtypes.Capability{orchtypes.CapCodeAnalysis}, 2)

	// low accumulates a failure, high a success, so high should rank above.
	r.Assign(low.ID, "t1")
	r.Complete(low.ID, "t1", false, time.Millisecond)
	r.Assign(high.ID, "t2")
	r.Complete(high.ID, "t2", true, time.Millisecond)

	best := r.FindAvailable(orchtypes.CapCodeAnalysis)
	if best == nil {
		t.Fatal("FindAvailable returned nil")
	}
	if best.ID != high.ID {
		t.Fatalf("FindAvailable picked %s, want %s (higher score)", best.ID, high.ID)
	}
}

func TestFindAvailableHonorsGenericWildcard(t *testing.T) {
	r, _ := New(0, 2, nil, nil)
	r.Spawn("generalist", []orchtypes.Capability{orchtypes.CapGeneric}, 1)
	got := r.FindAvailable(orchtypes.CapFeedbackAnalysis)
	if got == nil {
		t.Fatal("generic agent should satisfy any required capability")
	}
}

func TestCompleteRecomputesScoreWithSmoothing(t *testing.T) {
	r, _ := New(0, 1, nil, nil)
	a, _ := r.Spawn("worker", []orchtypes.Capability{orchtypes.CapGeneric}, 1)

	r.Assign(a.ID, "t1")
	r.Complete(a.ID, "t1", true, time.Millisecond)
	got := r.Get(a.ID)
	// new agents start at score 1.0 (spec S1); score = 0.7*1.0 + 0.3*(1/1) = 1.0
	if got.Score < 0.99 || got.Score > 1.0 {
		t.Fatalf("score after one success = %f, want ~1.0", got.Score)
	}

	r.Assign(a.ID, "t2")
	r.Complete(a.ID, "t2", false, time.Millisecond)
	got = r.Get(a.ID)
	// score = 0.7*1.0 + 0.3*(1/2) = 0.7 + 0.15 = 0.85
	if got.Score < 0.84 || got.Score > 0.86 {
		t.Fatalf("score after one success one failure = %f, want ~0.85", got.Score)
	}
}

func TestAgentReturnsToIdleOnlyWhenDrained(t *testing.T) {
	r, _ := New(0, 1, nil, nil)
	a, _ := r.Spawn("worker", []orchtypes.Capability{orchtypes.CapGeneric}, 2)
	r.Assign(a.ID, "t1")
	r.Assign(a.ID, "t2")
	if got := r.Get(a.ID); got.Status != StatusBusy {
		t.Fatalf("status = %s, want busy", got.Status)
	}
	r.Complete(a.ID, "t1", true, time.Millisecond)
	if got := r.Get(a.ID); got.Status != StatusBusy {
		t.Fatalf("status after draining one of two tasks = %s, want still busy", got.Status)
	}
	r.Complete(a.ID, "t2", true, time.Millisecond)
	if got := r.Get(a.ID); got.Status != StatusIdle {
		t.Fatalf("status after draining all tasks = %s, want idle", got.Status)
	}
}

func TestAutoScalerScalesUpOnQueuePressure(t *testing.T) {
	r, _ := New(2, 10, nil, nil)
	as := NewAutoScaler(r, 5, "overflow", []orchtypes.Capability{orchtypes.CapGeneric}, nil)

	action := as.Scale(70) // above scale_up_threshold=50, floor(70/5) = 14 capped at headroom
	if action.Direction != "up" {
		t.Fatalf("Scale(70) direction = %s, want up", action.Direction)
	}
	if got := r.Len(); got != 10 {
		t.Fatalf("agent count after scale-up = %d, want capped at max_agents 10", got)
	}
}

func TestAutoScalerNoOpBelowScaleUpThreshold(t *testing.T) {
	r, _ := New(2, 10, nil, nil)
	as := NewAutoScaler(r, 5, "overflow", []orchtypes.Capability{orchtypes.CapGeneric}, nil)

	action := as.Scale(23) // below scale_up_threshold=50, and above scale_down_threshold=10
	if action.Direction != "none" {
		t.Fatalf("Scale(23) = %+v, want none (between thresholds)", action)
	}
}

func TestAutoScalerScaleUpCapsAtMaxAgents(t *testing.T) {
	r, _ := New(0, 3, nil, nil)
	as := NewAutoScaler(r, 1, "overflow", []orchtypes.Capability{orchtypes.CapGeneric}, nil)

	action := as.Scale(200) // above scale_up_threshold, would want 20, but only 3 headroom
	if action.Count != 3 {
		t.Fatalf("scale-up count = %d, want capped at 3", action.Count)
	}
	if r.Len() != 3 {
		t.Fatalf("agent count = %d, want 3", r.Len())
	}
}

func TestAutoScalerScalesDownIdleOnlyWhenQueueEmpty(t *testing.T) {
	r, _ := New(1, 5, nil, nil)
	busy, _ := r.Spawn("worker", []orchtypes.Capability{orchtypes.CapGeneric}, 1)
	r.Spawn("worker", []orchtypes.Capability{orchtypes.CapGeneric}, 1)
	r.Spawn("worker", []orchtypes.Capability{orchtypes.CapGeneric}, 1)
	r.Assign(busy.ID, "t1") // busy agent must never be a scale-down candidate

	as := NewAutoScaler(r, 10, "overflow", nil, nil)
	action := as.Scale(0)
	if action.Direction != "down" {
		t.Fatalf("Scale(0) direction = %s, want down", action.Direction)
	}
	if got := r.Get(busy.ID); got == nil {
		t.Fatal("busy agent was terminated during scale-down")
	}
	if got := r.Len(); got < 1 {
		t.Fatalf("agent count fell below min_agents: %d", got)
	}
}

func TestAutoScalerNoOpWhenAtMinAgents(t *testing.T) {
	r, _ := New(2, 5, nil, nil)
	r.Spawn("worker", []orchtypes.Capability{orchtypes.CapGeneric}, 1)
	r.Spawn("worker", []orchtypes.Capability{orchtypes.CapGeneric}, 1)

	as := NewAutoScaler(r, 10, "overflow", nil, nil)
	action := as.Scale(0)
	if action.Direction != "none" {
		t.Fatalf("Scale(0) at min_agents = %+v, want none", action)
	}
}
