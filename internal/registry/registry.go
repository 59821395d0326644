package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/orchestrator/fabric/internal/orchtypes"
	"go.uber.org/zap"
)

// SeedSpec describes one (type, capability-set) tuple used to populate
// the registry's initial minimum agent pool (spec §4.2, scenario S1).
type SeedSpec struct {
	Type         string
	Capabilities []orchtypes.Capability
	K            int
}

// DefaultSeedDistribution mirrors the four-role seed set from
// original_source/core/agent-ecosystem/registry.py's _initialize_min_agents.
func DefaultSeedDistribution() []SeedSpec {
	return []SeedSpec{
		{Type: "learning", Capabilities: []orchtypes.Capability{orchtypes.CapDataIngestion}, K: 1},
		{Type: "tech_scout", Capabilities: []orchtypes.Capability{orchtypes.CapTechScouting}, K: 1},
		{Type: "cost_optimizer", Capabilities: []orchtypes.Capability{orchtypes.CapCostOptimization}, K: 1},
		{Type: "experimenter", Capabilities: []orchtypes.Capability{orchtypes.CapExperimentation}, K: 1},
	}
}

// Registry holds the live set of Agents and enforces min/max bounds.
// A single registry-wide RWMutex guards all structural mutation and
// per-agent field access (spec §5 shared-resource policy), following
// the teacher's internal/tasks/queue.go locking discipline.
type Registry struct {
	mu         sync.RWMutex
	agents     map[string]*Agent
	minAgents  int
	maxAgents  int
	nextSeq    int
	log        *zap.Logger
}

// New constructs a Registry and seeds it with minAgents agents spread
// across the seed distribution (round-robin if it doesn't divide evenly).
func New(minAgents, maxAgents int, seeds []SeedSpec, log *zap.Logger) (*Registry, error) {
	if minAgents < 0 || maxAgents < minAgents {
		return nil, fmt.Errorf("registry: invalid bounds min=%d max=%d", minAgents, maxAgents)
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		agents:    make(map[string]*Agent),
		minAgents: minAgents,
		maxAgents: maxAgents,
		log:       log,
	}
	if len(seeds) == 0 {
		return r, nil
	}
	for i := 0; i < minAgents; i++ {
		seed := seeds[i%len(seeds)]
		k := seed.K
		if k < 1 {
			k = 1
		}
		if _, err := r.Spawn(seed.Type, seed.Capabilities, k); err != nil {
			return nil, fmt.Errorf("registry: seeding agent %d: %w", i, err)
		}
	}
	log.Info("registry seeded", zap.Int("count", len(r.agents)), zap.Int("min", minAgents), zap.Int("max", maxAgents))
	return r, nil
}

// Len returns the number of live (non-terminated) agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Bounds returns the configured min/max agent counts.
func (r *Registry) Bounds() (min, max int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.minAgents, r.maxAgents
}

// Spawn creates a new agent, starting Initializing then immediately Idle.
// Fails with CapacityExhausted if the registry is already at max_agents.
func (r *Registry) Spawn(agentType string, caps []orchtypes.Capability, k int) (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.agents) >= r.maxAgents {
		return nil, orchtypes.NewAPIError(orchtypes.ErrCapacityExhausted,
			"registry at max_agents (%d)", r.maxAgents)
	}
	if k < 1 {
		k = 1
	}

	r.nextSeq++
	id := fmt.Sprintf("%s-%04d", agentType, r.nextSeq)
	now := time.Now()
	a := &Agent{
		ID:           id,
		Type:         agentType,
		Capabilities: orchtypes.NewCapabilitySet(caps...),
		Status:       StatusInitializing,
		K:            k,
		Score:        1.0, // optimistic prior until the first completion reports in
		CreatedAt:    now,
		LastActive:   now,
	}
	a.Status = StatusIdle
	r.agents[id] = a

	r.log.Info("agent spawned", zap.String("agent_id", id), zap.String("type", agentType))
	return a.snapshot(), nil
}

// Terminate removes an agent. Fails with Busy if it has in-flight tasks.
func (r *Registry) Terminate(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return orchtypes.NewAPIError(orchtypes.ErrNotFound, "agent %s not found", id)
	}
	if len(a.CurrentTasks) > 0 {
		return orchtypes.NewAPIError(orchtypes.ErrBusy, "agent %s has %d active task(s)", id, len(a.CurrentTasks))
	}
	a.Status = StatusTerminated
	delete(r.agents, id)
	r.log.Info("agent terminated", zap.String("agent_id", id))
	return nil
}

// FindAvailable returns the agent maximizing performance score among
// those carrying the required capability, Idle, and under capacity.
// Ties break by lowest current load, then lexicographically by id.
func (r *Registry) FindAvailable(required orchtypes.Capability) *Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Agent
	for _, a := range r.agents {
		if !a.CanAccept(required) {
			continue
		}
		if best == nil || better(a, best) {
			best = a
		}
	}
	if best == nil {
		return nil
	}
	return best.snapshot()
}

// better reports whether candidate should replace current as the best
// match: higher score wins; ties broken by lower load, then by id.
func better(candidate, current *Agent) bool {
	if candidate.Score != current.Score {
		return candidate.Score > current.Score
	}
	if len(candidate.CurrentTasks) != len(current.CurrentTasks) {
		return len(candidate.CurrentTasks) < len(current.CurrentTasks)
	}
	return candidate.ID < current.ID
}

// Assign binds a task to an agent: append to current_tasks, mark Busy,
// bump last_active. Must be called while the task is being handed off.
func (r *Registry) Assign(agentID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return orchtypes.NewAPIError(orchtypes.ErrNotFound, "agent %s not found", agentID)
	}
	if len(a.CurrentTasks) >= a.K {
		return orchtypes.NewAPIError(orchtypes.ErrCapacityExhausted, "agent %s at concurrency cap", agentID)
	}
	a.CurrentTasks = append(a.CurrentTasks, taskID)
	a.Status = StatusBusy
	a.LastActive = time.Now()
	return nil
}

// Complete removes a task from an agent's in-flight list, updates
// counters, recomputes the smoothed performance score, and returns the
// agent to Idle once it has no remaining tasks.
func (r *Registry) Complete(agentID, taskID string, success bool, processingTime time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return orchtypes.NewAPIError(orchtypes.ErrNotFound, "agent %s not found", agentID)
	}

	for i, t := range a.CurrentTasks {
		if t == taskID {
			a.CurrentTasks = append(a.CurrentTasks[:i], a.CurrentTasks[i+1:]...)
			break
		}
	}

	if success {
		a.Completed++
	} else {
		a.Failed++
	}
	a.TotalProcessingTime += processingTime
	a.LastActive = time.Now()

	total := a.Completed + a.Failed
	successRate := 1.0
	if total > 0 {
		successRate = float64(a.Completed) / float64(total)
	}
	a.Score = 0.7*a.Score + 0.3*successRate

	if len(a.CurrentTasks) == 0 {
		a.Status = StatusIdle
	}
	return nil
}

// Get returns a snapshot of the agent with the given id, or nil.
func (r *Registry) Get(id string) *Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil
	}
	return a.snapshot()
}

// AgentsByCapability returns a snapshot slice of all agents carrying cap.
// Callers must tolerate concurrent mutation between calls.
func (r *Registry) AgentsByCapability(cap orchtypes.Capability) []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Agent
	for _, a := range r.agents {
		if a.Capabilities.Has(cap) {
			out = append(out, a.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns a snapshot of every live agent, sorted by id.
func (r *Registry) All() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IdleSortedByScoreAsc returns up to n Idle, empty-current-task agents
// sorted by ascending performance score — the Auto-Scaler's scale-down
// candidate list (spec §4.3, Idle-only per the resolved Open Question).
func (r *Registry) IdleSortedByScoreAsc(n int) []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []*Agent
	for _, a := range r.agents {
		if a.Status == StatusIdle && len(a.CurrentTasks) == 0 {
			candidates = append(candidates, a.snapshot())
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score < candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})
	if n < len(candidates) {
		candidates = candidates[:n]
	}
	return candidates
}
