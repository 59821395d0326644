// Package gate implements the Decision Gate (C5): criticality
// classification of proposed actions, a priority-ordered rule chain
// with fail-closed evaluation, and a human approval queue with lazy
// expiry. Grounded on original_source/core/supreme-brain/decision_engine.py
// (criticality/cost/duration maps, SHA-256 action-id) and
// original_source/core/decision_gate/gate.py (GateRule's
// enabled-means-approve and exception-means-reject semantics), carried
// over the teacher's internal/supervisor/decision.go interface+impl
// shape.
package gate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orchestrator/fabric/internal/orchtypes"
)

// Status is a Decision's lifecycle state (spec §3).
type Status string

const (
	StatusPendingApproval Status = "pending_approval"
	StatusAutoApproved    Status = "auto_approved"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusExecuting       Status = "executing"
	StatusCompleted       Status = "completed"
	StatusExpired         Status = "expired"
)

// ProposedAction is one action a Decision asks the gate to authorize.
type ProposedAction struct {
	ActionType string                 `json:"action_type"`
	Context    map[string]interface{} `json:"context"`
}

// criticalityTable is the closed action-type → criticality mapping
// (spec §4.5); unmapped types default to Medium.
var criticalityTable = map[string]orchtypes.Criticality{
	"data_deletion":      orchtypes.CriticalityCritical,
	"external_api_call":  orchtypes.CriticalityHigh,
	"code_execution":     orchtypes.CriticalityHigh,
	"file_modification":  orchtypes.CriticalityMedium,
	"data_query":         orchtypes.CriticalityLow,
	"cache_operation":    orchtypes.CriticalityLow,
}

const defaultCriticality = orchtypes.CriticalityMedium

// costTable is the closed action-type → estimated USD cost mapping.
var costTable = map[string]float64{
	"api_call":          0.01,
	"image_generation":  0.04,
	"video_generation":  0.30,
	"llm_inference":     0.002,
}

// durationTable is the closed action-type → estimated duration (seconds).
var durationTable = map[string]int{
	"api_call":         2,
	"image_generation": 15,
	"video_generation": 120,
	"llm_inference":    3,
}

// RuleTrace records one rule's verdict during evaluation.
type RuleTrace struct {
	RuleName string       `json:"rule_name"`
	Priority RulePriority `json:"priority"`
	Approved bool         `json:"approved"`
	Reason   string       `json:"reason"`
}

// Decision is a proposed set of actions awaiting or having passed gate
// evaluation.
type Decision struct {
	ID                string                `json:"id"`
	ActionType        string                `json:"action_type"`
	Criticality       orchtypes.Criticality `json:"criticality"`
	ProposedActions   []ProposedAction      `json:"proposed_actions"`
	EstimatedCost     float64               `json:"estimated_cost"`
	EstimatedDuration int                   `json:"estimated_duration"`
	Status            Status                `json:"status"`
	RuleTrace         []RuleTrace           `json:"rule_trace"`
	CreatedAt         time.Time             `json:"created_at"`
	ApprovedAt        time.Time             `json:"approved_at,omitempty"`
	ExecutedAt        time.Time             `json:"executed_at,omitempty"`
	ApprovalTimeout   time.Duration         `json:"approval_timeout"`
}

// assessCriticality takes the max criticality over all proposed actions.
func assessCriticality(actions []ProposedAction) orchtypes.Criticality {
	max := orchtypes.CriticalityLow
	for _, a := range actions {
		c, ok := criticalityTable[a.ActionType]
		if !ok {
			c = defaultCriticality
		}
		max = max.Max(c)
	}
	return max
}

func estimateCost(actions []ProposedAction) float64 {
	var total float64
	for _, a := range actions {
		total += costTable[a.ActionType]
	}
	return total
}

func estimateDuration(actions []ProposedAction) int {
	var total int
	for _, a := range actions {
		total += durationTable[a.ActionType]
	}
	return total
}

// actionID is SHA-256 of (userInput || JSON(actions) || creationTimestamp),
// truncated to 16 hex characters (spec §4.5).
func actionID(userInput string, actions []ProposedAction, createdAt time.Time) (string, error) {
	encoded, err := json.Marshal(actions)
	if err != nil {
		return "", fmt.Errorf("gate: encoding actions for id: %w", err)
	}
	content := userInput + string(encoded) + createdAt.Format(time.RFC3339Nano)
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16], nil
}

// NewDecision classifies actionType's proposed actions, estimates cost
// and duration, and creates the Decision as PendingApproval — or,
// for Low criticality, immediately AutoApproved (spec §3 invariant). A
// decision with zero proposed actions is itself Low criticality and
// auto-approves (spec §8 boundary behavior).
func NewDecision(userInput, actionType string, actions []ProposedAction, approvalTimeout time.Duration) (*Decision, error) {
	now := time.Now()
	id, err := actionID(userInput, actions, now)
	if err != nil {
		return nil, err
	}
	if approvalTimeout <= 0 {
		approvalTimeout = 24 * time.Hour
	}

	d := &Decision{
		ID:                id,
		ActionType:        actionType,
		Criticality:       assessCriticality(actions),
		ProposedActions:   actions,
		EstimatedCost:     estimateCost(actions),
		EstimatedDuration: estimateDuration(actions),
		Status:            StatusPendingApproval,
		CreatedAt:         now,
		ApprovalTimeout:   approvalTimeout,
	}
	if d.Criticality == orchtypes.CriticalityLow {
		d.Status = StatusAutoApproved
	}
	return d, nil
}

// RefreshExpiry lazily transitions a stale PendingApproval decision to
// Expired on access, per spec §4.5.
func (d *Decision) RefreshExpiry() {
	if d.Status == StatusPendingApproval && time.Since(d.CreatedAt) > d.ApprovalTimeout {
		d.Status = StatusExpired
	}
}

// Approve transitions an explicitly-reviewed decision to Approved.
// Only valid from PendingApproval and only if not expired.
func (d *Decision) Approve() error {
	d.RefreshExpiry()
	if d.Status != StatusPendingApproval {
		return orchtypes.NewAPIError(orchtypes.ErrInvalidInput, "decision %s is %s, not pending approval", d.ID, d.Status)
	}
	d.Status = StatusApproved
	d.ApprovedAt = time.Now()
	return nil
}

// Reject transitions a pending decision to Rejected.
func (d *Decision) Reject() error {
	d.RefreshExpiry()
	if d.Status != StatusPendingApproval {
		return orchtypes.NewAPIError(orchtypes.ErrInvalidInput, "decision %s is %s, not pending approval", d.ID, d.Status)
	}
	d.Status = StatusRejected
	return nil
}

// Execute transitions an AutoApproved or Approved decision to
// Executing. Critical decisions must never reach Executing without a
// prior explicit Approve (spec §3 invariant), enforced by the
// precondition that Approve can only follow human review.
func (d *Decision) Execute() error {
	d.RefreshExpiry()
	if d.Status != StatusAutoApproved && d.Status != StatusApproved {
		return orchtypes.NewAPIError(orchtypes.ErrInvalidInput, "decision %s is %s, execute requires auto_approved or approved", d.ID, d.Status)
	}
	if d.Criticality == orchtypes.CriticalityCritical && d.Status == StatusAutoApproved {
		return orchtypes.NewAPIError(orchtypes.ErrForbidden, "critical decision %s cannot execute without explicit approval", d.ID)
	}
	d.Status = StatusExecuting
	return nil
}

// Complete marks an Executing decision Completed.
func (d *Decision) Complete() error {
	if d.Status != StatusExecuting {
		return orchtypes.NewAPIError(orchtypes.ErrInvalidInput, "decision %s is %s, not executing", d.ID, d.Status)
	}
	d.Status = StatusCompleted
	d.ExecutedAt = time.Now()
	return nil
}

// ApprovalRequest is the human-facing subset of a Decision (spec §3).
type ApprovalRequest struct {
	ID            string                 `json:"id"`
	DecisionID    string                 `json:"decision_id"`
	OperationType string                 `json:"operation_type"`
	OperationData map[string]interface{} `json:"operation_data"`
	RiskLevel     orchtypes.Criticality  `json:"risk_level"`
	Reason        string                 `json:"reason"`
	CreatedAt     time.Time              `json:"created_at"`
	ExpiresAt     time.Time              `json:"expires_at"`
	Status        Status                 `json:"status"`
}

// NewApprovalRequest projects a PendingApproval Decision into the
// human-reviewable shape.
func NewApprovalRequest(d *Decision, reason string) *ApprovalRequest {
	return &ApprovalRequest{
		ID:            uuid.NewString(),
		DecisionID:    d.ID,
		OperationType: d.ActionType,
		OperationData: map[string]interface{}{"proposed_actions": d.ProposedActions},
		RiskLevel:     d.Criticality,
		Reason:        reason,
		CreatedAt:     d.CreatedAt,
		ExpiresAt:     d.CreatedAt.Add(d.ApprovalTimeout),
		Status:        d.Status,
	}
}

// RefreshExpiry lazily expires a stale pending ApprovalRequest.
func (r *ApprovalRequest) RefreshExpiry() {
	if r.Status == StatusPendingApproval && time.Now().After(r.ExpiresAt) {
		r.Status = StatusExpired
	}
}
