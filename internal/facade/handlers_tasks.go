package facade

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/orchestrator/fabric/internal/dispatch"
	"github.com/orchestrator/fabric/internal/orchtypes"
	"github.com/orchestrator/fabric/internal/taskgraph"
)

// directAssignDeadline bounds how long a directly-assigned single task
// may run before the Dispatcher times it out.
const directAssignDeadline = 10 * time.Minute

type taskAssignRequest struct {
	TaskType   string                 `json:"task_type"`
	Capability orchtypes.Capability   `json:"capability"`
	Parameters map[string]interface{} `json:"parameters"`
	Priority   orchtypes.Priority     `json:"priority"`
}

// handleTaskAssign creates and dispatches a single task outside of any
// goal decomposition, for callers that already know exactly what work
// they want done (spec §6's /task/assign contract).
func (f *Facade) handleTaskAssign(w http.ResponseWriter, r *http.Request) {
	var req taskAssignRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, f.log, err)
		return
	}
	if err := validateString(req.TaskType, "task_type"); err != nil {
		respondError(w, f.log, err)
		return
	}
	if err := validateCapability(req.Capability); err != nil {
		respondError(w, f.log, err)
		return
	}
	if req.Priority == "" {
		req.Priority = orchtypes.PriorityNormal
	}
	if err := validatePriority(req.Priority); err != nil {
		respondError(w, f.log, err)
		return
	}

	id := uuid.New().String()
	task := taskgraph.NewTask(id, req.TaskType, req.Capability, req.Priority)
	task.Parameters = req.Parameters
	if task.Parameters == nil {
		task.Parameters = make(map[string]interface{})
	}

	workflowID := id
	f.recordWorkflow(workflowID, []*taskgraph.Task{task})
	deadline := time.Now().Add(directAssignDeadline)
	disp := f.dispatcher.StartDispatch(context.Background(), workflowID, []*taskgraph.Task{task}, deadline)
	f.mu.Lock()
	if wf, ok := f.workflows[workflowID]; ok {
		wf.disp = disp
		wf.started = true
	}
	f.mu.Unlock()
	if err := f.dispatcher.Tick(disp); err != nil {
		respondError(w, f.log, err)
		return
	}

	respondJSON(w, http.StatusOK, ok(map[string]interface{}{"task_id": id, "state": task.State}))
}

type taskCompleteRequest struct {
	TaskID         string      `json:"task_id"`
	AgentID        string      `json:"agent_id"`
	Success        bool        `json:"success"`
	ProcessingTime int64       `json:"processing_time"`
	Result         interface{} `json:"result"`
}

// handleTaskComplete reports a worker's outcome for a dispatched task,
// advances the task's state machine, and continues ticking its
// workflow's DAG forward (spec §4.7).
func (f *Facade) handleTaskComplete(w http.ResponseWriter, r *http.Request) {
	var req taskCompleteRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, f.log, err)
		return
	}
	if err := validateString(req.TaskID, "task_id"); err != nil {
		respondError(w, f.log, err)
		return
	}
	if err := validateString(req.AgentID, "agent_id"); err != nil {
		respondError(w, f.log, err)
		return
	}

	wf := f.workflowForTask(req.TaskID)
	if wf == nil || wf.disp == nil {
		respondError(w, f.log, orchtypes.NewAPIError(orchtypes.ErrNotFound, "no tracked workflow for task %s", req.TaskID))
		return
	}

	result := dispatch.WorkerResult{
		TaskID:         req.TaskID,
		Success:        req.Success,
		Payload:        req.Result,
		ProcessingTime: time.Duration(req.ProcessingTime),
	}
	if err := f.dispatcher.Complete(wf.disp, result); err != nil {
		respondError(w, f.log, err)
		return
	}
	if f.collector != nil {
		if req.Success {
			f.collector.RecordTaskCompleted(req.AgentID, 0)
		} else {
			f.collector.RecordTaskFailed(req.AgentID)
		}
	}
	_ = f.dispatcher.Tick(wf.disp)

	respondJSON(w, http.StatusOK, ok(map[string]interface{}{"task_id": req.TaskID, "acknowledged": true}))
}
