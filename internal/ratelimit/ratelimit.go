// Package ratelimit implements the Facade's per-client, per-endpoint-class
// token buckets (spec §4.9): strategize=10/min, coordinate=20/min,
// dispatch=50/min, execute=30/min, default=100/min. Concept grounded on
// IAmSoThirsty-Project-AI/octoreflex's internal/budget/token_bucket.go
// (one bucket keyed by caller identity, refilled on a fixed rate), built
// here on top of golang.org/x/time/rate rather than a hand-rolled bucket
// since that real dependency already sits in the pack's graph.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Class is one of the Facade's endpoint classes, each with its own
// requests-per-minute quota.
type Class string

const (
	ClassStrategize Class = "strategize"
	ClassCoordinate Class = "coordinate"
	ClassDispatch   Class = "dispatch"
	ClassExecute    Class = "execute"
	ClassDefault    Class = "default"
)

// perMinute is the closed class -> quota mapping (spec §4.9).
var perMinute = map[Class]int{
	ClassStrategize: 10,
	ClassCoordinate: 20,
	ClassDispatch:   50,
	ClassExecute:    30,
	ClassDefault:    100,
}

// Limiter holds one token bucket per (client identity, endpoint class)
// pair, lazily created on first use. Buckets never expire; the Facade
// is expected to live for a single process lifetime, matching the
// teacher's own in-memory rate limiting idiom (no external store).
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New constructs an empty Limiter.
func New() *Limiter {
	return &Limiter{buckets: make(map[string]*rate.Limiter)}
}

// Allow reports whether clientID may make one more request in class,
// consuming a token if so.
func (l *Limiter) Allow(clientID string, class Class) bool {
	return l.bucketFor(clientID, class).Allow()
}

func (l *Limiter) bucketFor(clientID string, class Class) *rate.Limiter {
	quota, ok := perMinute[class]
	if !ok {
		quota = perMinute[ClassDefault]
	}
	key := string(class) + ":" + clientID

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		perSecond := rate.Limit(float64(quota) / 60.0)
		b = rate.NewLimiter(perSecond, quota)
		l.buckets[key] = b
	}
	return b
}

// ClassForPath maps a Facade route to its rate-limit class (spec §4.9
// groups endpoints by the workflow stage they belong to, not by path
// prefix alone).
func ClassForPath(path string) Class {
	switch path {
	case "/chat", "/decompose":
		return ClassStrategize
	case "/approve", "/decisions", "/scale", "/agent/spawn", "/agents", "/stats":
		return ClassCoordinate
	case "/task/assign", "/task/complete":
		return ClassDispatch
	case "/inference", "/batch", "/roi/evaluate":
		return ClassExecute
	default:
		return ClassDefault
	}
}
