package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/orchestrator/fabric/internal/orchtypes"
)

func TestEventTypeConstants(t *testing.T) {
	tests := []struct {
		name      string
		eventType EventType
		expected  string
	}{
		{"task completed", EventTaskCompleted, "task_completed"},
		{"task failed", EventTaskFailed, "task_failed"},
		{"agent spawned", EventAgentSpawned, "agent_spawned"},
		{"scale action", EventScaleAction, "scale_action"},
		{"decision state change", EventDecisionStateChange, "decision_state_change"},
		{"budget alert", EventBudgetAlert, "budget_alert"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.eventType) != tt.expected {
				t.Errorf("EventType = %v, want %v", tt.eventType, tt.expected)
			}
		})
	}
}

func TestEventJSONRoundTrip(t *testing.T) {
	original := &Event{
		ID:       "test-id-123",
		Type:     EventBudgetAlert,
		Source:   "project-store",
		Target:   "all",
		Priority: orchtypes.PriorityHigh,
		Payload: map[string]interface{}{
			"project_id": "p1",
			"threshold":  0.75,
		},
		CreatedAt: time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC),
	}

	jsonData, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Failed to marshal event: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(jsonData, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal event: %v", err)
	}

	if decoded.ID != original.ID {
		t.Errorf("ID = %v, want %v", decoded.ID, original.ID)
	}
	if decoded.Type != original.Type {
		t.Errorf("Type = %v, want %v", decoded.Type, original.Type)
	}
	if decoded.Priority != original.Priority {
		t.Errorf("Priority = %v, want %v", decoded.Priority, original.Priority)
	}
	if !decoded.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", decoded.CreatedAt, original.CreatedAt)
	}
	if decoded.Payload["project_id"] != "p1" {
		t.Errorf("Payload.project_id = %v, want p1", decoded.Payload["project_id"])
	}
}

func TestNewEventGeneratesIDAndTimestamp(t *testing.T) {
	before := time.Now()
	event := NewEvent(EventTaskCompleted, "dispatcher", "all", orchtypes.PriorityNormal, map[string]interface{}{
		"task_id": "task-123",
	})
	after := time.Now()

	if len(event.ID) != 36 {
		t.Errorf("Generated ID has unexpected length: %d, want 36", len(event.ID))
	}
	if event.CreatedAt.Before(before) || event.CreatedAt.After(after) {
		t.Errorf("CreatedAt %v outside expected range [%v, %v]", event.CreatedAt, before, after)
	}
	if event.Type != EventTaskCompleted {
		t.Errorf("Type = %v, want %v", event.Type, EventTaskCompleted)
	}
	if event.Priority != orchtypes.PriorityNormal {
		t.Errorf("Priority = %v, want %v", event.Priority, orchtypes.PriorityNormal)
	}
}

func TestAllEventTypesCoversEveryConstant(t *testing.T) {
	types := AllEventTypes()
	if len(types) != 8 {
		t.Errorf("AllEventTypes returned %d types, want 8", len(types))
	}
	seen := make(map[EventType]bool)
	for _, et := range types {
		seen[et] = true
	}
	for _, want := range []EventType{
		EventTaskCompleted, EventTaskFailed, EventAgentSpawned, EventAgentTerminated,
		EventScaleAction, EventDecisionStateChange, EventBudgetAlert, EventCacheCleared,
	} {
		if !seen[want] {
			t.Errorf("AllEventTypes missing %v", want)
		}
	}
}
