package facade

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/orchestrator/fabric/internal/costguard"
	"github.com/orchestrator/fabric/internal/orchtypes"
)

// handleInference routes one cost-guarded inference request through
// caching, local/batch/external routing, and the max_cost admission
// gate (spec §4.6).
func (f *Facade) handleInference(w http.ResponseWriter, r *http.Request) {
	var req costguard.InferenceRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, f.log, err)
		return
	}
	if err := validateString(req.Prompt, "prompt"); err != nil {
		respondError(w, f.log, err)
		return
	}
	if req.Priority != "" {
		if err := validatePriority(req.Priority); err != nil {
			respondError(w, f.log, err)
			return
		}
	}

	decision, err := f.guard.Infer(req)
	if err != nil {
		respondError(w, f.log, err)
		return
	}
	respondJSON(w, http.StatusOK, ok(map[string]interface{}{"routing": decision}))
}

type batchRequest struct {
	Requests        []costguard.InferenceRequest `json:"requests"`
	MaxWaitSeconds  int                           `json:"max_wait_seconds"`
}

// handleBatch admits a batch of inference requests through the Cost
// Guard and immediately flushes it, returning the aggregate cost
// (spec §4.6's batch_base_cost + batch_delta_cost model).
func (f *Facade) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, f.log, err)
		return
	}
	if err := validateCollectionLen(len(req.Requests), "requests"); err != nil {
		respondError(w, f.log, err)
		return
	}
	if len(req.Requests) == 0 {
		respondError(w, f.log, orchtypes.NewAPIError(orchtypes.ErrInvalidInput, "requests must not be empty"))
		return
	}

	for i := range req.Requests {
		req.Requests[i].Model = "external"
		req.Requests[i].Priority = orchtypes.PriorityBackground
		if _, err := f.guard.Infer(req.Requests[i]); err != nil {
			respondError(w, f.log, err)
			return
		}
	}
	count, totalCost := f.guard.FlushBatch()
	respondJSON(w, http.StatusOK, ok(map[string]interface{}{"count": count, "total_cost": totalCost}))
}

type roiRequest struct {
	Operation      string  `json:"operation"`
	EstimatedCost  float64 `json:"estimated_cost"`
	ExpectedValue  float64 `json:"expected_value"`
}

// handleROIEvaluate runs the standalone ROI admission check (spec §4.6).
func (f *Facade) handleROIEvaluate(w http.ResponseWriter, r *http.Request) {
	var req roiRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, f.log, err)
		return
	}
	if err := validateString(req.Operation, "operation"); err != nil {
		respondError(w, f.log, err)
		return
	}
	result := costguard.EvaluateROI(req.ExpectedValue, req.EstimatedCost)
	respondJSON(w, http.StatusOK, ok(map[string]interface{}{"roi": result}))
}

// handleCacheStats reports the Cost Guard cache's current size.
func (f *Facade) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ok(map[string]interface{}{"cache_size": f.guard.CacheSize()}))
}

// handleCostSummary reports spend aggregated over the requested window.
func (f *Facade) handleCostSummary(w http.ResponseWriter, r *http.Request) {
	periodHours := 24.0
	if v := r.URL.Query().Get("period_hours"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			periodHours = parsed
		}
	}
	summary := f.guard.Summary(periodHours)
	now := time.Now()
	windowStart := now.Add(-time.Duration(periodHours * float64(time.Hour)))
	respondJSON(w, http.StatusOK, ok(map[string]interface{}{
		"summary": summary,
		"summary_human": map[string]string{
			"total_cost": "$" + humanize.FormatFloat("#,###.####", summary.TotalCost),
			"savings":    "$" + humanize.FormatFloat("#,###.####", summary.SavingsVsAllExternal),
			"period":     humanize.RelTime(windowStart, now, "ago", "from now") + " window",
		},
	}))
}

// handleCacheClear evicts cache entries older than older_than_seconds,
// or older than the Cost Guard's configured TTL when omitted (spec §6).
func (f *Facade) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	var n int
	if v := r.URL.Query().Get("older_than_seconds"); v != "" {
		seconds, err := strconv.ParseFloat(v, 64)
		if err != nil || seconds < 0 {
			respondError(w, f.log, orchtypes.NewAPIError(orchtypes.ErrInvalidInput, "older_than_seconds must be a non-negative number"))
			return
		}
		n = f.guard.ClearCacheOlderThan(time.Duration(seconds * float64(time.Second)))
	} else {
		n = f.guard.ClearCache()
	}
	respondJSON(w, http.StatusOK, ok(map[string]interface{}{"cleared": n}))
}
