package registry

import (
	"go.uber.org/zap"

	"github.com/orchestrator/fabric/internal/orchtypes"
)

// ScaleAction records what an AutoScaler decided to do on one Scale call.
type ScaleAction struct {
	Direction string `json:"direction"` // "up", "down", or "none"
	Count     int    `json:"count"`
	Reason    string `json:"reason"`
}

// AutoScaler watches queue depth and grows or shrinks the Registry's
// agent pool within its configured bounds. Grounded on
// original_source/core/agent-ecosystem/registry.py's scaling thresholds,
// re-expressed over the Go Registry's mutex-guarded agent map.
type AutoScaler struct {
	reg               *Registry
	scaleUpThreshold  int // spawn agents once queue_depth exceeds this
	scaleDownThreshold int // allow shrink once queue_depth falls below this
	queueDivisor      int // scale-up adds floor(queueDepth/queueDivisor) agents
	log               *zap.Logger

	defaultType string
	defaultCaps []orchtypes.Capability
}

// NewAutoScaler builds an AutoScaler bound to reg using the spec's
// default thresholds (scale_up_threshold=50, scale_down_threshold=10,
// divisor=10). defaultType/defaultCaps describe the agent shape spawned
// on scale-up (spec §4.3 treats new agents as generic overflow workers).
func NewAutoScaler(reg *Registry, queueDivisor int, defaultType string, defaultCaps []orchtypes.Capability, log *zap.Logger) *AutoScaler {
	if queueDivisor < 1 {
		queueDivisor = 10
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AutoScaler{
		reg:                reg,
		scaleUpThreshold:   50,
		scaleDownThreshold: 10,
		queueDivisor:       queueDivisor,
		defaultType:        defaultType,
		defaultCaps:        defaultCaps,
		log:                log,
	}
}

// WithThresholds overrides the default scale-up/scale-down thresholds.
func (s *AutoScaler) WithThresholds(scaleUp, scaleDown int) *AutoScaler {
	s.scaleUpThreshold = scaleUp
	s.scaleDownThreshold = scaleDown
	return s
}

// Scale evaluates queueDepth against the current agent count and
// performs at most one scaling move (up or down), never both in a
// single call. Scale-up triggers only once queueDepth exceeds
// scale_up_threshold, adding floor(queueDepth/queueDivisor) agents
// capped by remaining headroom to max_agents. Scale-down triggers only
// once queueDepth falls below scale_down_threshold and N > min_agents,
// and only ever removes Idle agents with empty current_tasks (resolved
// Open Question), ascending by performance score, capped by headroom
// above min_agents.
func (s *AutoScaler) Scale(queueDepth int) ScaleAction {
	min, max := s.reg.Bounds()
	n := s.reg.Len()

	if queueDepth > s.scaleUpThreshold {
		want := queueDepth / s.queueDivisor
		if want <= 0 {
			return ScaleAction{Direction: "none", Reason: "queue pressure below scale-up threshold"}
		}
		headroom := max - n
		if headroom <= 0 {
			return ScaleAction{Direction: "none", Reason: "already at max_agents"}
		}
		if want > headroom {
			want = headroom
		}
		spawned := 0
		for i := 0; i < want; i++ {
			if _, err := s.reg.Spawn(s.defaultType, s.defaultCaps, 1); err != nil {
				break
			}
			spawned++
		}
		s.log.Info("scaled up", zap.Int("count", spawned), zap.Int("queue_depth", queueDepth))
		return ScaleAction{Direction: "up", Count: spawned, Reason: "queue depth exceeds scale_up_threshold"}
	}

	if queueDepth >= s.scaleDownThreshold {
		return ScaleAction{Direction: "none", Reason: "queue depth above scale_down_threshold"}
	}

	headroom := n - min
	if headroom <= 0 {
		return ScaleAction{Direction: "none", Reason: "already at min_agents"}
	}
	idle := s.reg.IdleSortedByScoreAsc(headroom)
	terminated := 0
	for _, a := range idle {
		if err := s.reg.Terminate(a.ID); err == nil {
			terminated++
		}
	}
	if terminated == 0 {
		return ScaleAction{Direction: "none", Reason: "no idle agents eligible for scale-down"}
	}
	s.log.Info("scaled down", zap.Int("count", terminated))
	return ScaleAction{Direction: "down", Count: terminated, Reason: "queue below scale_down_threshold, trimming to min_agents"}
}
