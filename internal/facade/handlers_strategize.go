package facade

import (
	"net/http"

	"github.com/orchestrator/fabric/internal/compose"
	"github.com/orchestrator/fabric/internal/gate"
	"github.com/orchestrator/fabric/internal/orchtypes"
)

// defaultChatMaxTasks bounds how many stages /chat decomposes a goal
// into when the caller doesn't ask for a DAG preview first.
const defaultChatMaxTasks = 5

// actionTypeForStage is the Facade-local mapping from a decomposition
// stage (taskgraph's fixed ingest/scout/analyze/generate/review
// pipeline) onto the Decision Gate's closed action-type vocabulary
// (spec §4.5's criticality table). The two vocabularies don't share a
// name space, so chat-submitted work is assessed as: ingestion reads
// data (data_query), scouting calls out to external tooling
// (external_api_call), analysis runs code over the ingested material
// (code_execution), generation writes artifacts (file_modification),
// and review only touches cached intermediate results
// (cache_operation).
var actionTypeForStage = map[string]string{
	"ingest":   "data_query",
	"scout":    "external_api_call",
	"analyze":  "code_execution",
	"generate": "file_modification",
	"review":   "cache_operation",
}

func actionTypeFor(stage string) string {
	if t, ok := actionTypeForStage[stage]; ok {
		return t
	}
	return "data_query"
}

type chatRequest struct {
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context"`
}

// handleChat decomposes a goal into a task DAG, submits the DAG to the
// Decision Gate as one batch of proposed actions, and starts dispatch
// immediately if the resulting Decision clears without requiring manual
// approval (spec §4.1 + §4.4 + §4.5 composition).
func (f *Facade) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, f.log, err)
		return
	}
	if err := validateString(req.Message, "message"); err != nil {
		respondError(w, f.log, err)
		return
	}

	tasks, err := f.decomposer.Decompose(req.Message, req.Context, defaultChatMaxTasks)
	if err != nil {
		respondError(w, f.log, err)
		return
	}

	actions := make([]gate.ProposedAction, 0, len(tasks))
	for _, t := range tasks {
		actions = append(actions, gate.ProposedAction{
			ActionType: actionTypeFor(t.Type),
			Context:    map[string]interface{}{"task_id": t.ID, "capability": string(t.Capability)},
		})
	}

	decision, err := f.gt.Submit(req.Message, "task_decomposition", actions)
	if err != nil {
		respondError(w, f.log, err)
		return
	}
	f.recordWorkflow(decision.ID, tasks)

	if decision.Status == gate.StatusAutoApproved {
		f.startWorkflow(decision.ID)
	}

	respondJSON(w, http.StatusOK, ok(map[string]interface{}{
		"decision_id": decision.ID,
		"status":      decision.Status,
		"criticality": decision.Criticality,
		"task_count":  len(tasks),
	}))
}

type approveRequest struct {
	ActionID string `json:"action_id"`
	Approved bool   `json:"approved"`
}

// handleApprove resolves a pending Decision Gate approval and, if
// approved, starts dispatch for its associated workflow.
func (f *Facade) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, f.log, err)
		return
	}
	if err := validateString(req.ActionID, "action_id"); err != nil {
		respondError(w, f.log, err)
		return
	}

	if req.Approved {
		d, err := f.gt.Approve(req.ActionID)
		if err != nil {
			respondError(w, f.log, err)
			return
		}
		f.startWorkflow(d.ID)
		respondJSON(w, http.StatusOK, ok(map[string]interface{}{"decision_id": d.ID, "status": d.Status}))
		return
	}

	d, err := f.gt.Reject(req.ActionID)
	if err != nil {
		respondError(w, f.log, err)
		return
	}
	respondJSON(w, http.StatusOK, ok(map[string]interface{}{"decision_id": d.ID, "status": d.Status}))
}

type decomposeRequest struct {
	Goal     string                 `json:"goal"`
	Context  map[string]interface{} `json:"context"`
	MaxTasks int                    `json:"max_tasks"`
}

// handleDecompose returns a DAG preview with no gate/dispatch side
// effects (spec §6's /decompose contract).
func (f *Facade) handleDecompose(w http.ResponseWriter, r *http.Request) {
	var req decomposeRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, f.log, err)
		return
	}
	if err := validateString(req.Goal, "goal"); err != nil {
		respondError(w, f.log, err)
		return
	}

	tasks, err := f.decomposer.Decompose(req.Goal, req.Context, req.MaxTasks)
	if err != nil {
		respondError(w, f.log, err)
		return
	}
	respondJSON(w, http.StatusOK, ok(map[string]interface{}{"tasks": tasks}))
}

type composeRequest struct {
	Outputs  []compose.WorkerOutput `json:"outputs"`
	Strategy compose.Strategy       `json:"strategy"`
}

// handleCompose composes worker outputs per the requested strategy
// (spec §4.8), independent of any internal dispatch state.
func (f *Facade) handleCompose(w http.ResponseWriter, r *http.Request) {
	var req composeRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, f.log, err)
		return
	}
	if err := validateCollectionLen(len(req.Outputs), "outputs"); err != nil {
		respondError(w, f.log, err)
		return
	}
	if len(req.Outputs) == 0 {
		respondError(w, f.log, orchtypes.NewAPIError(orchtypes.ErrInvalidInput, "outputs must not be empty"))
		return
	}

	composed, err := compose.Compose(req.Outputs, req.Strategy)
	if err != nil {
		respondError(w, f.log, err)
		return
	}
	respondJSON(w, http.StatusOK, ok(map[string]interface{}{"composed": composed}))
}

// handleDecisions lists every pending ApprovalRequest (spec §4.5).
func (f *Facade) handleDecisions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ok(map[string]interface{}{"decisions": f.gt.PendingApprovals()}))
}
