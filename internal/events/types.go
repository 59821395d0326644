package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/orchestrator/fabric/internal/orchtypes"
)

// EventType is the closed set of fabric-wide notifications carried on
// the Bus: task lifecycle, scaling actions, decision state changes, and
// budget alerts.
type EventType string

// Event type constants
const (
	EventTaskCompleted       EventType = "task_completed"
	EventTaskFailed          EventType = "task_failed"
	EventAgentSpawned        EventType = "agent_spawned"
	EventAgentTerminated     EventType = "agent_terminated"
	EventScaleAction         EventType = "scale_action"
	EventDecisionStateChange EventType = "decision_state_change"
	EventBudgetAlert         EventType = "budget_alert"
	EventCacheCleared        EventType = "cache_cleared"
)

// Event represents a system event that can be published and subscribed
// to. Priority reuses the orchestrator's own ordinal priority scale
// rather than a bespoke int, so event severity sorts consistently with
// task priority throughout the module.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Target    string                 `json:"target"`
	Priority  orchtypes.Priority     `json:"priority"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType EventType, source, target string, priority orchtypes.Priority, payload map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Target:    target,
		Priority:  priority,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// AllEventTypes returns all defined event types
func AllEventTypes() []EventType {
	return []EventType{
		EventTaskCompleted,
		EventTaskFailed,
		EventAgentSpawned,
		EventAgentTerminated,
		EventScaleAction,
		EventDecisionStateChange,
		EventBudgetAlert,
		EventCacheCleared,
	}
}
