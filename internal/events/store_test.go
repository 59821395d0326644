package events

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/orchestrator/fabric/internal/orchtypes"
)

func setupTestDB(t *testing.T) *SQLiteStore {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	return store
}

func TestSQLiteStoreSaveAndGet(t *testing.T) {
	store := setupTestDB(t)

	event := NewEvent(
		EventTaskCompleted,
		"dispatcher",
		"dashboard",
		orchtypes.PriorityNormal,
		map[string]interface{}{
			"task_id": "task-1",
			"count":   42,
		},
	)

	if err := store.Save(event); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	pending, err := store.GetPending("dashboard", nil)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending event, got %d", len(pending))
	}

	retrieved := pending[0]
	if retrieved.ID != event.ID {
		t.Errorf("expected ID %s, got %s", event.ID, retrieved.ID)
	}
	if retrieved.Type != event.Type {
		t.Errorf("expected Type %s, got %s", event.Type, retrieved.Type)
	}
	if retrieved.Priority != event.Priority {
		t.Errorf("expected Priority %s, got %s", event.Priority, retrieved.Priority)
	}
	if taskID, ok := retrieved.Payload["task_id"].(string); !ok || taskID != "task-1" {
		t.Errorf("expected payload task_id 'task-1', got %v", retrieved.Payload["task_id"])
	}
	if count, ok := retrieved.Payload["count"].(float64); !ok || count != 42 {
		t.Errorf("expected payload count 42, got %v", retrieved.Payload["count"])
	}
}

func TestSQLiteStoreMarkDelivered(t *testing.T) {
	store := setupTestDB(t)

	event := NewEvent(EventTaskCompleted, "dispatcher", "dashboard", orchtypes.PriorityNormal, map[string]interface{}{"x": "y"})
	if err := store.Save(event); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	pending, err := store.GetPending("dashboard", nil)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending event, got %d", len(pending))
	}

	if err := store.MarkDelivered(event.ID); err != nil {
		t.Fatalf("MarkDelivered failed: %v", err)
	}

	pending, err = store.GetPending("dashboard", nil)
	if err != nil {
		t.Fatalf("GetPending failed after marking delivered: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected 0 pending events after marking delivered, got %d", len(pending))
	}
}

func TestSQLiteStoreFilterByType(t *testing.T) {
	store := setupTestDB(t)

	event1 := NewEvent(EventTaskCompleted, "dispatcher", "dashboard", orchtypes.PriorityNormal, map[string]interface{}{"msg": "one"})
	event2 := NewEvent(EventBudgetAlert, "project-store", "dashboard", orchtypes.PriorityHigh, map[string]interface{}{"msg": "two"})
	event3 := NewEvent(EventAgentSpawned, "registry", "dashboard", orchtypes.PriorityNormal, map[string]interface{}{"msg": "three"})

	store.Save(event1)
	store.Save(event2)
	store.Save(event3)

	allPending, err := store.GetPending("dashboard", nil)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(allPending) != 3 {
		t.Errorf("expected 3 pending events, got %d", len(allPending))
	}

	completedOnly, err := store.GetPending("dashboard", []EventType{EventTaskCompleted})
	if err != nil {
		t.Fatalf("GetPending with filter failed: %v", err)
	}
	if len(completedOnly) != 1 || completedOnly[0].Type != EventTaskCompleted {
		t.Errorf("expected 1 task_completed event, got %+v", completedOnly)
	}

	multiType, err := store.GetPending("dashboard", []EventType{EventBudgetAlert, EventAgentSpawned})
	if err != nil {
		t.Fatalf("GetPending with multiple type filter failed: %v", err)
	}
	if len(multiType) != 2 {
		t.Errorf("expected 2 events, got %d", len(multiType))
	}
}

func TestSQLiteStoreGetPendingForAll(t *testing.T) {
	store := setupTestDB(t)

	event1 := NewEvent(EventTaskCompleted, "dispatcher", "project-1", orchtypes.PriorityNormal, nil)
	event2 := NewEvent(EventTaskCompleted, "dispatcher", "project-2", orchtypes.PriorityNormal, nil)
	event3 := NewEvent(EventTaskCompleted, "dispatcher", "all", orchtypes.PriorityNormal, nil)

	store.Save(event1)
	store.Save(event2)
	store.Save(event3)

	pending1, err := store.GetPending("project-1", nil)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(pending1) != 2 {
		t.Errorf("expected 2 events for project-1 (itself + 'all'), got %d", len(pending1))
	}

	pendingAll, err := store.GetPending("all", nil)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(pendingAll) != 1 {
		t.Errorf("expected 1 event for 'all' target, got %d", len(pendingAll))
	}
}

func TestSQLiteStoreCleanup(t *testing.T) {
	store := setupTestDB(t)

	oldEvent := NewEvent(EventTaskCompleted, "dispatcher", "dashboard", orchtypes.PriorityNormal, nil)
	oldEvent.CreatedAt = time.Now().Add(-2 * time.Hour)
	newEvent := NewEvent(EventTaskCompleted, "dispatcher", "dashboard", orchtypes.PriorityNormal, nil)

	store.Save(oldEvent)
	store.Save(newEvent)
	store.MarkDelivered(oldEvent.ID)

	if err := store.Cleanup(1 * time.Hour); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	var count int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM events WHERE id = ?", oldEvent.ID).Scan(&count); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected old delivered event to be cleaned up, but it still exists")
	}

	if err := store.db.QueryRow("SELECT COUNT(*) FROM events WHERE id = ?", newEvent.ID).Scan(&count); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected new event to still exist, but count is %d", count)
	}
}
