// Package registry implements the Agent Registry (C2) and Auto-Scaler (C3):
// lifecycle of N..M worker agents, capability matching, performance-weighted
// selection, and elastic resizing in reaction to queue pressure.
package registry

import (
	"time"

	"github.com/orchestrator/fabric/internal/orchtypes"
)

// Status is an Agent's lifecycle state.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusIdle         Status = "idle"
	StatusBusy         Status = "busy"
	StatusTerminating  Status = "terminating"
	StatusTerminated   Status = "terminated"
)

// Agent is a worker with a fixed capability set and a finite concurrency cap.
type Agent struct {
	ID                  string                  `json:"id"`
	Type                string                  `json:"type"`
	Capabilities        orchtypes.CapabilitySet `json:"capabilities"`
	Status              Status                  `json:"status"`
	K                   int                     `json:"k"` // concurrency cap, K >= 1
	CurrentTasks        []string                `json:"current_tasks"`
	Completed           int                     `json:"completed"`
	Failed              int                     `json:"failed"`
	TotalProcessingTime time.Duration           `json:"total_processing_time"`
	Score               float64                 `json:"score"` // performance score in [0,1]
	CreatedAt           time.Time               `json:"created_at"`
	LastActive          time.Time               `json:"last_active"`
}

// CanAccept reports whether the agent can take on another task of the
// given capability right now.
func (a *Agent) CanAccept(required orchtypes.Capability) bool {
	return a.Status == StatusIdle &&
		len(a.CurrentTasks) < a.K &&
		a.Capabilities.Has(required)
}

// snapshot returns a deep-enough copy for safe concurrent reading by
// callers outside the registry lock (spec §4.2 agents_by_capability).
func (a *Agent) snapshot() *Agent {
	cp := *a
	cp.CurrentTasks = append([]string(nil), a.CurrentTasks...)
	caps := make(orchtypes.CapabilitySet, len(a.Capabilities))
	for k, v := range a.Capabilities {
		caps[k] = v
	}
	cp.Capabilities = caps
	return &cp
}
