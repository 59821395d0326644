// Package compose implements the Output Composer (C8): fan-in of
// worker outputs into a single response under a best/majority/
// comprehensive strategy. No direct teacher analog exists for this
// component; the envelope-shaping idiom follows the teacher's
// respondJSON helper in internal/server/handlers.go, and the
// weighted-aggregate confidence formula is adapted from
// dataparency-dev-AI-delegation/optimizer.go's multi-criterion bid
// scoring (there: Σ weight·criterion over bids; here: Σ confidence·
// agent-score over outputs).
package compose

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/orchestrator/fabric/internal/orchtypes"
)

// Strategy selects how worker outputs are fanned into one response.
type Strategy string

const (
	StrategyComprehensive Strategy = "comprehensive"
	StrategyBest          Strategy = "best"
	StrategyMajority      Strategy = "majority"
)

// WorkerOutput is one agent's contribution to a task's result.
type WorkerOutput struct {
	AgentID        string      `json:"agent_id"`
	AgentType      string      `json:"agent_type"`
	Payload        interface{} `json:"payload"`
	Confidence     float64     `json:"confidence"`
	ProcessingTime int64       `json:"processing_time"` // nanoseconds, for best-strategy tie-breaking
	Success        bool        `json:"success"`
	AgentScore     float64     `json:"agent_score"` // the agent's current performance score, for comprehensive weighting
	FailureReason  string      `json:"failure_reason"`
}

// Composed is the Composer's output.
type Composed struct {
	Strategy            Strategy       `json:"strategy"`
	Outputs             []WorkerOutput `json:"outputs"`
	AggregateConfidence float64        `json:"aggregate_confidence"`
	Rejected            bool           `json:"rejected"`
	RejectReason        string         `json:"reject_reason"`
}

const minAcceptableConfidence = 0.1

// Compose fans outputs in according to strategy. Composition is
// rejected — returning a synthetic failure annotated with concatenated
// reasons — if every input failed or the resulting aggregate
// confidence is below 0.1 (spec §4.8).
func Compose(outputs []WorkerOutput, strategy Strategy) (*Composed, error) {
	if len(outputs) == 0 {
		return nil, orchtypes.NewAPIError(orchtypes.ErrInvalidInput, "compose requires at least one worker output")
	}

	if allFailed(outputs) {
		return &Composed{Strategy: strategy, Outputs: outputs, Rejected: true, RejectReason: concatFailureReasons(outputs)}, nil
	}

	var result *Composed
	switch strategy {
	case StrategyBest:
		result = composeBest(outputs)
	case StrategyMajority:
		result = composeMajority(outputs)
	default:
		result = composeComprehensive(outputs)
	}
	result.Strategy = strategy

	if result.AggregateConfidence < minAcceptableConfidence {
		result.Rejected = true
		result.RejectReason = concatFailureReasons(outputs)
	}
	return result, nil
}

func allFailed(outputs []WorkerOutput) bool {
	for _, o := range outputs {
		if o.Success {
			return false
		}
	}
	return true
}

func concatFailureReasons(outputs []WorkerOutput) string {
	reasons := ""
	for i, o := range outputs {
		if o.FailureReason == "" {
			continue
		}
		if i > 0 && reasons != "" {
			reasons += "; "
		}
		reasons += o.FailureReason
	}
	if reasons == "" {
		reasons = "all outputs failed or confidence too low"
	}
	return reasons
}

// composeBest selects maximum confidence, ties broken by shortest
// processing time, then lexicographic agent id.
func composeBest(outputs []WorkerOutput) *Composed {
	best := outputs[0]
	for _, o := range outputs[1:] {
		if better(o, best) {
			best = o
		}
	}
	return &Composed{Outputs: []WorkerOutput{best}, AggregateConfidence: best.Confidence}
}

func better(candidate, current WorkerOutput) bool {
	if candidate.Confidence != current.Confidence {
		return candidate.Confidence > current.Confidence
	}
	if candidate.ProcessingTime != current.ProcessingTime {
		return candidate.ProcessingTime < current.ProcessingTime
	}
	return candidate.AgentID < current.AgentID
}

// composeMajority groups outputs by structural equality of their
// canonical JSON payload and returns the group with the largest summed
// confidence.
func composeMajority(outputs []WorkerOutput) *Composed {
	type group struct {
		members    []WorkerOutput
		confidence float64
	}
	groups := make(map[string]*group)
	var order []string

	for _, o := range outputs {
		key := canonicalKey(o.Payload)
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
			order = append(order, key)
		}
		g.members = append(g.members, o)
		g.confidence += o.Confidence
	}

	sort.Slice(order, func(i, j int) bool { return groups[order[i]].confidence > groups[order[j]].confidence })
	winner := groups[order[0]]
	return &Composed{Outputs: winner.members, AggregateConfidence: winner.confidence}
}

// canonicalKey hashes the canonical JSON encoding of v for use as a
// structural-equality grouping key.
func canonicalKey(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// composeComprehensive returns every output annotated with a weighted
// aggregate confidence = Σ cᵢ·wᵢ / Σ wᵢ, wᵢ being the agent's current
// performance score.
func composeComprehensive(outputs []WorkerOutput) *Composed {
	var numerator, denominator float64
	for _, o := range outputs {
		w := o.AgentScore
		if w == 0 {
			w = 1 // an unscored (new) agent weighs as neutral, not zero
		}
		numerator += o.Confidence * w
		denominator += w
	}
	agg := 0.0
	if denominator > 0 {
		agg = numerator / denominator
	}
	return &Composed{Outputs: outputs, AggregateConfidence: agg}
}
