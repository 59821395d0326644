package metrics

import (
	"fmt"
	"sync"
	"time"
)

// Alert is a single threshold-crossing notification surfaced to the
// Facade's event stream and /alerts-style dashboards.
type Alert struct {
	ID        string
	Type      string
	Source    string // agent id, project id, or "queue" depending on Type
	Message   string
	Severity  string // "warning" or "critical"
	CreatedAt time.Time
}

// AlertThresholds configures the AlertChecker's generalized thresholds:
// consecutive task failures and idle duration per agent, and queue
// depth pressure for the Auto-Scaler's own signal.
type AlertThresholds struct {
	ConsecutiveFailuresMax int
	IdleTimeMaxSeconds     int
	QueueDepthMax          int
}

// AlertEngine checks fabric metrics against thresholds and generates
// alerts; kept as an interface (teacher idiom) so the Facade can swap
// in a fake for tests.
type AlertEngine interface {
	SetThresholds(thresholds AlertThresholds)
	GetThresholds() AlertThresholds
	CheckAgentMetrics(metrics map[string]*AgentMetrics) []*Alert
	CheckQueueDepth(depth int) *Alert
}

// AlertChecker implements AlertEngine. The dedup window (shouldAlert)
// is carried over from the teacher's internal/metrics/alerts.go almost
// verbatim; what changed is the domain the thresholds check — agent
// consecutive-failure/idle pressure and queue depth instead of the
// teacher's failed-tests/token-usage/escalation-queue signals, plus a
// standalone constructor for budget-threshold alerts.
type AlertChecker struct {
	mu           sync.RWMutex
	thresholds   AlertThresholds
	recentAlerts map[string]time.Time
}

// NewAlertEngine creates a new alert engine.
func NewAlertEngine(thresholds AlertThresholds) *AlertChecker {
	return &AlertChecker{
		thresholds:   thresholds,
		recentAlerts: make(map[string]time.Time),
	}
}

// SetThresholds updates alert thresholds.
func (a *AlertChecker) SetThresholds(thresholds AlertThresholds) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.thresholds = thresholds
}

// GetThresholds returns current thresholds.
func (a *AlertChecker) GetThresholds() AlertThresholds {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.thresholds
}

// shouldAlert checks if we should create an alert (avoids duplicates
// within a 5-minute dedup window).
func (a *AlertChecker) shouldAlert(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	for k, t := range a.recentAlerts {
		if now.Sub(t) > 5*time.Minute {
			delete(a.recentAlerts, k)
		}
	}

	if _, exists := a.recentAlerts[key]; exists {
		return false
	}
	a.recentAlerts[key] = now
	return true
}

// CheckAgentMetrics examines every agent's metrics and returns alerts
// for consecutive-failure streaks and idle-time overruns.
func (a *AlertChecker) CheckAgentMetrics(metrics map[string]*AgentMetrics) []*Alert {
	a.mu.RLock()
	thresholds := a.thresholds
	a.mu.RUnlock()

	var alerts []*Alert
	for agentID, m := range metrics {
		if thresholds.ConsecutiveFailuresMax > 0 && m.ConsecutiveFailures >= thresholds.ConsecutiveFailuresMax {
			key := fmt.Sprintf("consecutive_failures_%s", agentID)
			if a.shouldAlert(key) {
				alerts = append(alerts, &Alert{
					ID:        key,
					Type:      "consecutive_failures",
					Source:    agentID,
					Message:   fmt.Sprintf("agent %s has %d consecutive task failures (threshold: %d)", agentID, m.ConsecutiveFailures, thresholds.ConsecutiveFailuresMax),
					Severity:  "critical",
					CreatedAt: time.Now(),
				})
			}
		}

		if thresholds.IdleTimeMaxSeconds > 0 && !m.IdleSince.IsZero() {
			idleSeconds := int(time.Since(m.IdleSince).Seconds())
			if idleSeconds >= thresholds.IdleTimeMaxSeconds {
				key := fmt.Sprintf("idle_%s", agentID)
				if a.shouldAlert(key) {
					alerts = append(alerts, &Alert{
						ID:        key,
						Type:      "idle_timeout",
						Source:    agentID,
						Message:   fmt.Sprintf("agent %s has been idle for %ds", agentID, idleSeconds),
						Severity:  "warning",
						CreatedAt: time.Now(),
					})
				}
			}
		}
	}
	return alerts
}

// CheckQueueDepth alerts once the dispatcher's queue depth exceeds the
// configured max, surfacing the same signal the Auto-Scaler itself
// acts on (spec §4.3) as a dashboard-facing notification.
func (a *AlertChecker) CheckQueueDepth(depth int) *Alert {
	a.mu.RLock()
	max := a.thresholds.QueueDepthMax
	a.mu.RUnlock()

	if max <= 0 || depth < max {
		return nil
	}
	key := "queue_depth"
	if !a.shouldAlert(key) {
		return nil
	}
	return &Alert{
		ID:        key,
		Type:      "queue_depth",
		Source:    "queue",
		Message:   fmt.Sprintf("queue depth %d at or above threshold %d", depth, max),
		Severity:  "warning",
		CreatedAt: time.Now(),
	}
}

// NewBudgetAlert builds the Alert emitted when a project's spend
// crosses one of its configured thresholds. It takes plain values
// rather than a *project.Budget so this package never needs to import
// internal/project. The Project Store's AlertFunc callback in
// cmd/orchestratord does not call it; that callback publishes an
// EventBudgetAlert on the event bus instead.
func NewBudgetAlert(projectID string, threshold float64, spent, total float64, currency string) *Alert {
	return &Alert{
		ID:        fmt.Sprintf("budget_%s_%.0f", projectID, threshold*100),
		Type:      "budget_threshold",
		Source:    projectID,
		Message:   fmt.Sprintf("project %s spent %.2f of %.2f %s (%.0f%% threshold crossed)", projectID, spent, total, currency, threshold*100),
		Severity:  budgetSeverity(threshold),
		CreatedAt: time.Now(),
	}
}

func budgetSeverity(threshold float64) string {
	if threshold >= 0.90 {
		return "critical"
	}
	return "warning"
}
