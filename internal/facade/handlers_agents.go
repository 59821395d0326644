package facade

import (
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"github.com/orchestrator/fabric/internal/orchtypes"
)

type agentSpawnRequest struct {
	AgentType         string                 `json:"agent_type"`
	Capabilities      []orchtypes.Capability `json:"capabilities"`
	MaxConcurrentTasks int                   `json:"max_concurrent_tasks"`
}

// handleAgentSpawn manually spawns an Agent (spec §4.2), bypassing the
// Auto-Scaler's own scaling decisions.
func (f *Facade) handleAgentSpawn(w http.ResponseWriter, r *http.Request) {
	var req agentSpawnRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, f.log, err)
		return
	}
	if err := validateString(req.AgentType, "agent_type"); err != nil {
		respondError(w, f.log, err)
		return
	}
	if err := validateCollectionLen(len(req.Capabilities), "capabilities"); err != nil {
		respondError(w, f.log, err)
		return
	}
	for _, c := range req.Capabilities {
		if err := validateCapability(c); err != nil {
			respondError(w, f.log, err)
			return
		}
	}
	if req.MaxConcurrentTasks <= 0 {
		req.MaxConcurrentTasks = 1
	}

	agent, err := f.reg.Spawn(req.AgentType, req.Capabilities, req.MaxConcurrentTasks)
	if err != nil {
		respondError(w, f.log, err)
		return
	}
	respondJSON(w, http.StatusOK, ok(map[string]interface{}{"agent": agent}))
}

// handleAgentTerminate removes an Agent from the Registry (spec §4.2).
func (f *Facade) handleAgentTerminate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := validateString(id, "id"); err != nil {
		respondError(w, f.log, err)
		return
	}
	if err := f.reg.Terminate(id); err != nil {
		respondError(w, f.log, err)
		return
	}
	if f.collector != nil {
		f.collector.RemoveAgent(id)
	}
	respondJSON(w, http.StatusOK, ok(map[string]interface{}{"terminated": id}))
}

// handleAgentsList returns every Agent currently tracked by the Registry.
func (f *Facade) handleAgentsList(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ok(map[string]interface{}{"agents": f.reg.All()}))
}

// handleAgentsByCapability filters Agents by a single capability tag.
func (f *Facade) handleAgentsByCapability(w http.ResponseWriter, r *http.Request) {
	cap := orchtypes.Capability(mux.Vars(r)["cap"])
	if err := validateCapability(cap); err != nil {
		respondError(w, f.log, err)
		return
	}
	respondJSON(w, http.StatusOK, ok(map[string]interface{}{"agents": f.reg.AgentsByCapability(cap)}))
}

type scaleRequest struct {
	QueueDepth int `json:"queue_depth"`
}

// handleScale runs one Auto-Scaler decision cycle against the supplied
// queue depth (spec §4.3).
func (f *Facade) handleScale(w http.ResponseWriter, r *http.Request) {
	var req scaleRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, f.log, err)
		return
	}
	action := f.scaler.Scale(req.QueueDepth)
	respondJSON(w, http.StatusOK, ok(map[string]interface{}{"action": action}))
}

// handleStats reports Registry-wide sizing and bounds (spec §4.2).
func (f *Facade) handleStats(w http.ResponseWriter, r *http.Request) {
	min, max := f.reg.Bounds()
	fields := map[string]interface{}{
		"agent_count":       f.reg.Len(),
		"min_agents":        min,
		"max_agents":        max,
		"agent_count_human": humanize.Comma(int64(f.reg.Len())),
		"pool_bounds_human": humanize.Comma(int64(min)) + "-" + humanize.Comma(int64(max)),
	}
	if f.collector != nil {
		fields["metrics"] = f.collector.TakeSnapshot()
	}
	respondJSON(w, http.StatusOK, ok(fields))
}
