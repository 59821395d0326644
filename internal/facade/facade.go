// Package facade implements the Orchestrator Facade (C9): the stateless
// HTTP request router exposing the fabric's external surface (spec §6),
// wiring every other component together behind input sanitization, a
// per-client-per-endpoint-class rate limiter, and X-User-ID identity
// propagation (spec §4.9). Grounded on the teacher's internal/server
// (mux.Router + Subrouter route registration, the respondJSON/
// respondError envelope, SecurityHeadersMiddleware, limitRequestSize)
// and internal/handlers (one handler type per concern, RegisterRoutes
// pattern), retargeted from the teacher's dashboard/captain surface onto
// chat/decompose/gate/dispatch/compose/cost-guard/registry endpoints.
package facade

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/orchestrator/fabric/internal/costguard"
	"github.com/orchestrator/fabric/internal/dispatch"
	"github.com/orchestrator/fabric/internal/events"
	"github.com/orchestrator/fabric/internal/gate"
	"github.com/orchestrator/fabric/internal/metrics"
	"github.com/orchestrator/fabric/internal/project"
	"github.com/orchestrator/fabric/internal/ratelimit"
	"github.com/orchestrator/fabric/internal/registry"
	"github.com/orchestrator/fabric/internal/taskgraph"
)

// IdentityHeader is the header the Facade trusts for caller identity
// propagation (spec §4.9); the Non-goals explicitly exclude any richer
// authentication flow.
const IdentityHeader = "X-User-ID"

// workflow tracks one /chat submission's decomposed tasks so /approve
// can kick off dispatch once a decision clears the gate, and /task/complete
// can find which Dispatch a reported task belongs to.
type workflow struct {
	decisionID string
	tasks      []*taskgraph.Task
	disp       *dispatch.Dispatch
	started    bool
}

// Facade wires every fabric component behind the HTTP surface. It holds
// no domain state of its own beyond the workflow index below — all
// durable state lives in the owning components (spec §3 ownership rule).
type Facade struct {
	reg        *registry.Registry
	scaler     *registry.AutoScaler
	decomposer *taskgraph.Decomposer
	gt         *gate.Gate
	guard      *costguard.Guard
	dispatcher *dispatch.Dispatcher
	projects   *project.Store
	bus        *events.Bus
	collector  *metrics.MetricsCollector
	alerts     metrics.AlertEngine
	prom       *metrics.PrometheusMetrics
	limiter    *ratelimit.Limiter
	log        *zap.Logger

	mu        sync.Mutex
	workflows map[string]*workflow // decision id -> workflow
	taskIndex map[string]string    // task id -> decision id
	hub       *wsHub

	router *mux.Router
}

// Deps bundles every collaborator the Facade routes requests to. All
// fields are required except Bus, Collector, Alerts, and Prom, which may
// be nil in tests that only exercise a subset of the surface.
type Deps struct {
	Registry   *registry.Registry
	AutoScaler *registry.AutoScaler
	Decomposer *taskgraph.Decomposer
	Gate       *gate.Gate
	Guard      *costguard.Guard
	Dispatcher *dispatch.Dispatcher
	Projects   *project.Store
	Bus        *events.Bus
	Collector  *metrics.MetricsCollector
	Alerts     metrics.AlertEngine
	Prom       *metrics.PrometheusMetrics
	Log        *zap.Logger
}

// New constructs a Facade and registers its routes.
func New(d Deps) *Facade {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	f := &Facade{
		reg:        d.Registry,
		scaler:     d.AutoScaler,
		decomposer: d.Decomposer,
		gt:         d.Gate,
		guard:      d.Guard,
		dispatcher: d.Dispatcher,
		projects:   d.Projects,
		bus:        d.Bus,
		collector:  d.Collector,
		alerts:     d.Alerts,
		prom:       d.Prom,
		limiter:    ratelimit.New(),
		log:        log,
		workflows:  make(map[string]*workflow),
		taskIndex:  make(map[string]string),
	}
	f.setupRoutes()
	return f
}

// Router returns the http.Handler to pass to http.Server.
func (f *Facade) Router() *mux.Router {
	return f.router
}

// setupRoutes registers the full endpoint table from spec §6 under a
// security-headers + rate-limiting middleware chain, following the
// teacher's router.Use(...) + PathPrefix("/api").Subrouter() idiom,
// flattened here since the fabric's surface is a single flat namespace
// rather than the teacher's /api-prefixed dashboard API.
func (f *Facade) setupRoutes() {
	r := mux.NewRouter()
	r.Use(SecurityHeadersMiddleware)
	r.Use(f.rateLimitMiddleware)

	r.HandleFunc("/chat", f.handleChat).Methods("POST")
	r.HandleFunc("/approve", f.handleApprove).Methods("POST")
	r.HandleFunc("/decompose", f.handleDecompose).Methods("POST")
	r.HandleFunc("/compose", f.handleCompose).Methods("POST")
	r.HandleFunc("/decisions", f.handleDecisions).Methods("GET")

	r.HandleFunc("/task/assign", f.handleTaskAssign).Methods("POST")
	r.HandleFunc("/task/complete", f.handleTaskComplete).Methods("POST")

	r.HandleFunc("/agent/spawn", f.handleAgentSpawn).Methods("POST")
	r.HandleFunc("/agent/{id}", f.handleAgentTerminate).Methods("DELETE")
	r.HandleFunc("/agents", f.handleAgentsList).Methods("GET")
	r.HandleFunc("/agents/capability/{cap}", f.handleAgentsByCapability).Methods("GET")
	r.HandleFunc("/scale", f.handleScale).Methods("POST")
	r.HandleFunc("/stats", f.handleStats).Methods("GET")

	r.HandleFunc("/inference", f.handleInference).Methods("POST")
	r.HandleFunc("/batch", f.handleBatch).Methods("POST")
	r.HandleFunc("/roi/evaluate", f.handleROIEvaluate).Methods("POST")
	r.HandleFunc("/cache/stats", f.handleCacheStats).Methods("GET")
	r.HandleFunc("/cost/summary", f.handleCostSummary).Methods("GET")
	r.HandleFunc("/cache/clear", f.handleCacheClear).Methods("POST")

	r.HandleFunc("/ws", f.handleWebSocket)
	if f.prom != nil {
		r.Handle("/metrics", f.prom.Handler()).Methods("GET")
	}

	f.router = r
}

// recordWorkflow indexes a freshly decomposed task set under its
// decision id so later /approve and /task/complete calls can find it.
func (f *Facade) recordWorkflow(decisionID string, tasks []*taskgraph.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wf := &workflow{decisionID: decisionID, tasks: tasks}
	f.workflows[decisionID] = wf
	for _, t := range tasks {
		f.taskIndex[t.ID] = decisionID
	}
}

// startWorkflow begins dispatch for a workflow whose decision has
// just cleared the gate (AutoApproved or Approved); idempotent.
func (f *Facade) startWorkflow(decisionID string) {
	f.mu.Lock()
	wf, ok := f.workflows[decisionID]
	f.mu.Unlock()
	if !ok || wf.started || f.dispatcher == nil {
		return
	}
	deadline := time.Now().Add(10 * time.Minute)
	disp := f.dispatcher.StartDispatch(context.Background(), decisionID, wf.tasks, deadline)
	f.mu.Lock()
	wf.disp = disp
	wf.started = true
	f.mu.Unlock()
	f.dispatcher.Tick(disp)
}

// workflowForTask returns the workflow tracking taskID, or nil.
func (f *Facade) workflowForTask(taskID string) *workflow {
	f.mu.Lock()
	defer f.mu.Unlock()
	decisionID, ok := f.taskIndex[taskID]
	if !ok {
		return nil
	}
	return f.workflows[decisionID]
}
