package taskgraph

import (
	"fmt"

	"github.com/orchestrator/fabric/internal/orchtypes"
)

// stageCapabilityMap is the closed mapping from a decomposition stage
// name to the Capability its task requires, mirroring the intent of
// original_source/services/orchestrator/task-router.py's capability
// lookup but fixed at decomposition time rather than resolved per call.
var stageCapabilityMap = []struct {
	stage string
	cap   orchtypes.Capability
}{
	{"ingest", orchtypes.CapDataIngestion},
	{"scout", orchtypes.CapTechScouting},
	{"analyze", orchtypes.CapCodeAnalysis},
	{"generate", orchtypes.CapContentGeneration},
	{"review", orchtypes.CapFeedbackAnalysis},
}

// Decomposer turns a goal into a deterministic, ordered task DAG.
// Grounded on spec §4.4's contract: unique ids, dependencies reference
// only earlier-emitted tasks, no cycles, deterministic given identical
// input. There is no teacher analog for this component; the linear
// ingest→scout→analyze→generate→review pipeline shape is modeled on
// task-router.py's fixed stage sequence, capped by max_tasks.
type Decomposer struct{}

// NewDecomposer constructs a Decomposer. It carries no state: all
// determinism comes from the stage table and the caller's goal/context.
func NewDecomposer() *Decomposer {
	return &Decomposer{}
}

// Decompose expands goal into an ordered Task list whose DependsOn
// edges form a DAG. context may carry a "goal_id" used as the id
// prefix so repeated calls for different goals never collide; priority
// defaults to normal when context carries none.
func (d *Decomposer) Decompose(goal string, context map[string]interface{}, maxTasks int) ([]*Task, error) {
	if goal == "" {
		return nil, orchtypes.NewAPIError(orchtypes.ErrInvalidInput, "goal must not be empty")
	}

	prefix := "goal"
	if v, ok := context["goal_id"].(string); ok && v != "" {
		prefix = v
	}
	priority := orchtypes.PriorityNormal
	if v, ok := context["priority"].(orchtypes.Priority); ok && v.IsValid() {
		priority = v
	}

	stages := stageCapabilityMap
	if maxTasks > 0 && maxTasks < len(stages) {
		stages = stages[:maxTasks]
	}
	if len(stages) == 0 {
		return nil, orchtypes.NewAPIError(orchtypes.ErrInvalidInput, "max_tasks must allow at least one task")
	}

	tasks := make([]*Task, 0, len(stages))
	var prevID string
	for i, st := range stages {
		id := fmt.Sprintf("%s-%d-%s", prefix, i+1, st.stage)
		var deps []string
		if prevID != "" {
			deps = []string{prevID}
		}
		t := NewTask(id, st.stage, st.cap, priority, deps...)
		t.Parameters["goal"] = goal
		tasks = append(tasks, t)
		prevID = id
	}
	return tasks, nil
}
