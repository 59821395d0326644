package events

import "github.com/orchestrator/fabric/internal/orchtypes"

// DispatchPublisher adapts a Bus onto the Dispatcher's CompletionPublisher
// interface (internal/dispatch), so task completions become ordinary
// EventTaskCompleted/EventTaskFailed events on the same bus that carries
// decision, agent, and scale notifications.
type DispatchPublisher struct {
	bus *Bus
}

// NewDispatchPublisher wraps bus for use as a dispatch.CompletionPublisher.
func NewDispatchPublisher(bus *Bus) *DispatchPublisher {
	return &DispatchPublisher{bus: bus}
}

// PublishTaskCompleted satisfies dispatch.CompletionPublisher.
func (p *DispatchPublisher) PublishTaskCompleted(workflowID, taskID string, success bool) {
	evType := EventTaskCompleted
	if !success {
		evType = EventTaskFailed
	}
	p.bus.Publish(NewEvent(evType, "dispatcher", workflowID, orchtypes.PriorityNormal, map[string]interface{}{
		"task_id":     taskID,
		"workflow_id": workflowID,
		"success":     success,
	}))
}
