package gate

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orchestrator/fabric/internal/orchtypes"
)

// Gate is the process-scoped Decision Gate instance: one lock over the
// pending map, matching spec §5's "Decision Gate: one lock over the
// pending map; approval writes are single-threaded per request id."
type Gate struct {
	mu              sync.Mutex
	decisions       map[string]*Decision
	requests        map[string]*ApprovalRequest
	chain           *Chain
	approvalTimeout time.Duration
	log             *zap.Logger
}

// New constructs a Gate with the given rule chain and default approval
// timeout (24h if zero).
func New(chain *Chain, approvalTimeout time.Duration, log *zap.Logger) *Gate {
	if approvalTimeout <= 0 {
		approvalTimeout = 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	if chain == nil {
		chain = NewChain()
	}
	return &Gate{
		decisions:       make(map[string]*Decision),
		requests:        make(map[string]*ApprovalRequest),
		chain:           chain,
		approvalTimeout: approvalTimeout,
		log:             log,
	}
}

// Submit classifies a proposed set of actions, evaluates the rule
// chain, and records the resulting Decision. A Critical-rule reject
// (or any overall reject) forces the decision to Rejected even if
// criticality would otherwise auto-approve — rule evaluation is the
// final authority, not the criticality table alone.
func (g *Gate) Submit(userInput, actionType string, actions []ProposedAction) (*Decision, error) {
	d, err := NewDecision(userInput, actionType, actions, g.approvalTimeout)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.chain.Evaluate(d) {
		d.Status = StatusRejected
		g.decisions[d.ID] = d
		g.log.Info("decision rejected by rule chain", zap.String("decision_id", d.ID), zap.String("action_type", actionType))
		return d, nil
	}

	g.decisions[d.ID] = d
	if d.Status == StatusPendingApproval {
		req := NewApprovalRequest(d, "awaiting human review")
		g.requests[req.ID] = req
	}
	g.log.Info("decision submitted", zap.String("decision_id", d.ID), zap.String("status", string(d.Status)))
	return d, nil
}

// Get returns a decision by id, lazily expiring it if stale.
func (g *Gate) Get(id string) (*Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.decisions[id]
	if !ok {
		return nil, orchtypes.NewAPIError(orchtypes.ErrNotFound, "decision %s not found", id)
	}
	d.RefreshExpiry()
	return d, nil
}

// Approve explicitly approves a pending decision.
func (g *Gate) Approve(id string) (*Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.decisions[id]
	if !ok {
		return nil, orchtypes.NewAPIError(orchtypes.ErrNotFound, "decision %s not found", id)
	}
	if err := d.Approve(); err != nil {
		return nil, err
	}
	if req, ok := g.requests[id]; ok {
		req.Status = d.Status
	}
	for _, req := range g.requests {
		if req.DecisionID == id {
			req.Status = d.Status
		}
	}
	return d, nil
}

// Reject explicitly rejects a pending decision.
func (g *Gate) Reject(id string) (*Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.decisions[id]
	if !ok {
		return nil, orchtypes.NewAPIError(orchtypes.ErrNotFound, "decision %s not found", id)
	}
	if err := d.Reject(); err != nil {
		return nil, err
	}
	for _, req := range g.requests {
		if req.DecisionID == id {
			req.Status = d.Status
		}
	}
	return d, nil
}

// Execute transitions an approved/auto-approved decision to Executing.
func (g *Gate) Execute(id string) (*Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.decisions[id]
	if !ok {
		return nil, orchtypes.NewAPIError(orchtypes.ErrNotFound, "decision %s not found", id)
	}
	if err := d.Execute(); err != nil {
		return nil, err
	}
	return d, nil
}

// Complete marks an executing decision as Completed.
func (g *Gate) Complete(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.decisions[id]
	if !ok {
		return orchtypes.NewAPIError(orchtypes.ErrNotFound, "decision %s not found", id)
	}
	return d.Complete()
}

// PendingApprovals returns every ApprovalRequest still awaiting human
// review, lazily expiring any that have aged out.
func (g *Gate) PendingApprovals() []*ApprovalRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*ApprovalRequest
	for _, req := range g.requests {
		req.RefreshExpiry()
		if req.Status == StatusPendingApproval {
			out = append(out, req)
		}
	}
	return out
}
