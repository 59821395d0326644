package costguard

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orchestrator/fabric/internal/orchtypes"
)

// Route is where a non-cached request ended up being served.
type Route string

const (
	RouteCacheHit Route = "cache_hit"
	RouteLocal    Route = "local"
	RouteBatch    Route = "batch"
	RouteExternal Route = "external"
)

const (
	localCostEstimate    = 0.0001
	externalCostEstimate = 0.002
	batchBaseCost        = 0.002
	batchDeltaCost       = 0.0003
)

// InferenceRequest is the input to a cost-guarded inference call.
type InferenceRequest struct {
	Prompt   string             `json:"prompt"`
	Model    string             `json:"model"` // "local", "external", or "auto"
	MaxCost  float64            `json:"max_cost"`
	Priority orchtypes.Priority `json:"priority"`
}

// RoutingDecision is the outcome of guarding one inference request.
type RoutingDecision struct {
	Route         Route       `json:"route"`
	EstimatedCost float64     `json:"estimated_cost"`
	CacheHit      bool        `json:"cache_hit"`
	Result        interface{} `json:"result"`
	Fingerprint   string      `json:"fingerprint"`
}

// Guard is the process-scoped Cost Guard instance.
type Guard struct {
	mu        sync.Mutex
	cache     *cacheStore
	costLog   *ringBuffer
	batch     []batchItem
	localFunc func(req InferenceRequest) (interface{}, error)
	log       *zap.Logger
}

type batchItem struct {
	req InferenceRequest
	at  time.Time
}

// New constructs a Guard. localFunc is the local-inference external
// collaborator invoked when routing decides "local"; it may be nil in
// tests that only exercise routing decisions, not execution.
func New(ttl time.Duration, localFunc func(req InferenceRequest) (interface{}, error), log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{
		cache:     newCacheStore(ttl),
		costLog:   newRingBuffer(10000),
		localFunc: localFunc,
		log:       log,
	}
}

// Infer runs the full guarded-inference pipeline: cache lookup, routing,
// admission check against max_cost, execution (local only — batch and
// external are enqueued/stubbed for the respective collaborators), and
// cache insertion on success.
func (g *Guard) Infer(req InferenceRequest) (*RoutingDecision, error) {
	fp := Fingerprint(req.Prompt, req.Model)

	g.mu.Lock()
	if entry, ok := g.cache.Get(fp); ok {
		g.mu.Unlock()
		g.costLog.Append(Entry{Operation: "cache_hit", Cost: 0, At: time.Now()})
		return &RoutingDecision{Route: RouteCacheHit, EstimatedCost: 0, CacheHit: true, Result: entry.Result, Fingerprint: fp}, nil
	}
	g.mu.Unlock()

	local := shouldUseLocal(req.Prompt, req.Model)

	var route Route
	var estimated float64
	if local {
		route = RouteLocal
		estimated = localCostEstimate
	} else if req.Priority.Rank() >= orchtypes.PriorityLow.Rank() {
		// priority rank >= 3 (Low, Background): "priority < critical" in the
		// spec's rank terms, routed to batch rather than dispatched live.
		route = RouteBatch
		estimated = batchBaseCost
	} else {
		route = RouteExternal
		estimated = externalCostEstimate
	}

	if estimated > req.MaxCost {
		return nil, orchtypes.NewAPIError(orchtypes.ErrCostCapExceeded,
			"estimated cost %.4f exceeds max_cost %.4f", estimated, req.MaxCost)
	}

	var result interface{}
	var err error
	switch route {
	case RouteLocal:
		if g.localFunc != nil {
			result, err = g.localFunc(req)
		}
	case RouteBatch:
		g.mu.Lock()
		g.batch = append(g.batch, batchItem{req: req, at: time.Now()})
		g.mu.Unlock()
		result = map[string]string{"status": "queued_for_batch"}
	case RouteExternal:
		result = map[string]string{"status": "dispatched_external"}
	}
	if err != nil {
		return nil, orchtypes.NewAPIError(orchtypes.ErrDependencyFailed, "local inference failed: %v", err)
	}

	g.mu.Lock()
	g.cache.Put(fp, result)
	g.mu.Unlock()

	g.costLog.Append(Entry{Operation: string(route), Cost: estimated, At: time.Now()})
	g.log.Info("inference routed", zap.String("route", string(route)), zap.Float64("estimated_cost", estimated))

	return &RoutingDecision{Route: route, EstimatedCost: estimated, Result: result, Fingerprint: fp}, nil
}

// FlushBatch computes per-request costs for the accumulated batch as
// (base + k·delta) and clears the queue (spec §4.6 batch processing).
func (g *Guard) FlushBatch() (count int, totalCost float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := len(g.batch)
	for k := 0; k < n; k++ {
		cost := batchBaseCost + float64(k)*batchDeltaCost
		totalCost += cost
		g.costLog.Append(Entry{Operation: "batch_flush", Cost: cost, At: time.Now()})
	}
	g.batch = nil
	return n, totalCost
}

// ROIResult is the outcome of a ROI admission check.
type ROIResult struct {
	Proceed        bool    `json:"proceed"`
	ROI            float64 `json:"roi"`
	Recommendation string  `json:"recommendation"`
}

// EvaluateROI proceeds iff expected_value > estimated_cost, returning
// roi=(ev-c)/c (spec §4.6).
func EvaluateROI(expectedValue, estimatedCost float64) ROIResult {
	if estimatedCost <= 0 {
		return ROIResult{Proceed: expectedValue > 0, ROI: 0, Recommendation: "cost is zero or negative; proceed if value is positive"}
	}
	roi := (expectedValue - estimatedCost) / estimatedCost
	proceed := expectedValue > estimatedCost
	rec := "skip: expected value does not exceed estimated cost"
	if proceed {
		rec = "proceed: positive return on the estimated spend"
	}
	return ROIResult{Proceed: proceed, ROI: roi, Recommendation: rec}
}

// ClearCache evicts cache entries older than the configured TTL.
func (g *Guard) ClearCache() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cache.ClearExpired()
}

// ClearCacheOlderThan evicts cache entries whose age exceeds maxAge,
// backing POST /cache/clear's optional older_than_seconds parameter.
func (g *Guard) ClearCacheOlderThan(maxAge time.Duration) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cache.ClearOlderThan(maxAge)
}

// CacheSize reports the number of live cache entries.
func (g *Guard) CacheSize() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cache.Len()
}

// Summary aggregates cost log entries younger than periodHours by
// operation tag and estimates savings vs an all-external baseline.
func (g *Guard) Summary(periodHours float64) Summary {
	g.mu.Lock()
	entries := g.costLog.Since(periodHours)
	g.mu.Unlock()
	return summarize(entries)
}
