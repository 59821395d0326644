package project

import (
	"sync"
	"time"

	"github.com/orchestrator/fabric/internal/orchtypes"
)

// Status is a Project's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusSleeping  Status = "sleeping"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

// Partition identifies one of a Project's three isolated memory stores.
type Partition string

const (
	PartitionShortTerm Partition = "short_term"
	PartitionLongTerm  Partition = "long_term"
	PartitionContext   Partition = "context"
)

// Project is the owning unit for memory, budget, and agent assignment.
// Memory and budget are exclusively owned by the Project; callers must
// go through the Project's own methods to mutate either (spec §3
// ownership rule).
type Project struct {
	mu sync.Mutex

	ID     string
	Name   string
	Status Status
	Goals  []string

	AssignedAgents []string
	Budget         *Budget

	shortTerm map[string]interface{}
	longTerm  map[string]interface{}
	context   map[string]interface{}

	SleepCount int
	WakeCount  int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New constructs a Project in Active status with an empty budget.
func New(id, name string, budget *Budget) *Project {
	now := time.Now()
	if budget == nil {
		budget = NewBudget(0, "USD")
	}
	return &Project{
		ID:        id,
		Name:      name,
		Status:    StatusActive,
		Budget:    budget,
		shortTerm: make(map[string]interface{}),
		longTerm:  make(map[string]interface{}),
		context:   make(map[string]interface{}),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Sleep transitions Active→Sleeping.
func (p *Project) Sleep() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Status != StatusActive {
		return orchtypes.NewAPIError(orchtypes.ErrInvalidInput, "project %s is %s, cannot sleep", p.ID, p.Status)
	}
	p.Status = StatusSleeping
	p.SleepCount++
	p.UpdatedAt = time.Now()
	return nil
}

// Wake transitions Sleeping→Active.
func (p *Project) Wake() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Status != StatusSleeping {
		return orchtypes.NewAPIError(orchtypes.ErrInvalidInput, "project %s is %s, cannot wake", p.ID, p.Status)
	}
	p.Status = StatusActive
	p.WakeCount++
	p.UpdatedAt = time.Now()
	return nil
}

// UpdateStatus sets Status directly (used for Paused/Completed/Archived
// transitions that don't carry the sleep/wake counters).
func (p *Project) UpdateStatus(s Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = s
	p.UpdatedAt = time.Now()
}

// AssignAgent appends an agent id to the project's assignment list.
func (p *Project) AssignAgent(agentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AssignedAgents = append(p.AssignedAgents, agentID)
	p.UpdatedAt = time.Now()
}

// UnassignAgent removes an agent id from the project's assignment list.
func (p *Project) UnassignAgent(agentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, a := range p.AssignedAgents {
		if a == agentID {
			p.AssignedAgents = append(p.AssignedAgents[:i], p.AssignedAgents[i+1:]...)
			break
		}
	}
	p.UpdatedAt = time.Now()
}

func (p *Project) partitionMap(part Partition) map[string]interface{} {
	switch part {
	case PartitionShortTerm:
		return p.shortTerm
	case PartitionLongTerm:
		return p.longTerm
	default:
		return p.context
	}
}

// MemoryPut writes key=value into the given partition.
func (p *Project) MemoryPut(part Partition, key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.partitionMap(part)[key] = value
	p.UpdatedAt = time.Now()
}

// MemoryGet reads key from the given partition.
func (p *Project) MemoryGet(part Partition, key string) (interface{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.partitionMap(part)[key]
	return v, ok
}

// MemoryDelete removes key from the given partition.
func (p *Project) MemoryDelete(part Partition, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.partitionMap(part), key)
	p.UpdatedAt = time.Now()
}

// MemoryClear empties an entire partition (spec §4.1: "ShortTerm
// clearing on demand" — generalized here to any partition).
func (p *Project) MemoryClear(part Partition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.partitionMap(part) {
		delete(p.partitionMap(part), k)
	}
	p.UpdatedAt = time.Now()
}

// MemorySnapshot returns a shallow copy of a partition's contents.
func (p *Project) MemorySnapshot(part Partition) map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	src := p.partitionMap(part)
	out := make(map[string]interface{}, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
