package metrics

import (
	"sync"
	"time"
)

// AgentMetrics tracks per-agent throughput and health signals fed by
// the Dispatcher and Registry as tasks complete.
type AgentMetrics struct {
	AgentID             string
	TasksCompleted      int
	TasksFailed         int
	ConsecutiveFailures int
	EstimatedCost       float64
	IdleSince           time.Time
	LastUpdated         time.Time
}

// MetricsSnapshot captures the fabric's metrics at one point in time.
type MetricsSnapshot struct {
	Timestamp time.Time
	Agents    map[string]*AgentMetrics
}

// Collector aggregates and stores agent metrics.
type Collector interface {
	UpdateAgentMetrics(agentID string, metrics *AgentMetrics)
	GetAgentMetrics(agentID string) *AgentMetrics
	GetAllMetrics() map[string]*AgentMetrics
	SetAgentIdle(agentID string)
	SetAgentActive(agentID string)
	TakeSnapshot() MetricsSnapshot
	GetHistory() []MetricsSnapshot
	ResetHistory()
	RecordTaskCompleted(agentID string, cost float64)
	RecordTaskFailed(agentID string)
	RemoveAgent(agentID string)
}

// MetricsCollector implements Collector.
type MetricsCollector struct {
	mu         sync.RWMutex
	metrics    map[string]*AgentMetrics
	history    []MetricsSnapshot
	maxHistory int
}

// NewCollector creates a new metrics collector.
func NewCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics:    make(map[string]*AgentMetrics),
		history:    []MetricsSnapshot{},
		maxHistory: 1000,
	}
}

func (c *MetricsCollector) getOrCreateLocked(agentID string) *AgentMetrics {
	m, ok := c.metrics[agentID]
	if !ok {
		m = &AgentMetrics{AgentID: agentID, LastUpdated: time.Now()}
		c.metrics[agentID] = m
	}
	return m
}

// UpdateAgentMetrics updates or creates metrics for an agent.
func (c *MetricsCollector) UpdateAgentMetrics(agentID string, metrics *AgentMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.metrics[agentID]
	if !ok {
		c.metrics[agentID] = metrics
		return
	}

	if metrics.EstimatedCost > 0 {
		existing.EstimatedCost = metrics.EstimatedCost
	}
	if metrics.TasksCompleted > 0 {
		existing.TasksCompleted = metrics.TasksCompleted
	}
	if metrics.TasksFailed > 0 {
		existing.TasksFailed = metrics.TasksFailed
	}
	if metrics.ConsecutiveFailures > 0 {
		existing.ConsecutiveFailures = metrics.ConsecutiveFailures
	}
	existing.LastUpdated = time.Now()
}

// GetAgentMetrics returns metrics for a specific agent.
func (c *MetricsCollector) GetAgentMetrics(agentID string) *AgentMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if m, ok := c.metrics[agentID]; ok {
		copyM := *m
		return &copyM
	}
	return nil
}

// GetAllMetrics returns all agent metrics.
func (c *MetricsCollector) GetAllMetrics() map[string]*AgentMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]*AgentMetrics, len(c.metrics))
	for k, v := range c.metrics {
		copyV := *v
		result[k] = &copyV
	}
	return result
}

// SetAgentIdle marks agent as idle, recording idle start time.
func (c *MetricsCollector) SetAgentIdle(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreateLocked(agentID)
	if m.IdleSince.IsZero() {
		m.IdleSince = time.Now()
	}
}

// SetAgentActive clears idle status.
func (c *MetricsCollector) SetAgentActive(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.metrics[agentID]; ok {
		m.IdleSince = time.Time{}
		m.LastUpdated = time.Now()
	}
}

// TakeSnapshot captures current metrics state.
func (c *MetricsCollector) TakeSnapshot() MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := MetricsSnapshot{
		Timestamp: time.Now(),
		Agents:    make(map[string]*AgentMetrics, len(c.metrics)),
	}
	for k, v := range c.metrics {
		copyV := *v
		snapshot.Agents[k] = &copyV
	}

	c.history = append(c.history, snapshot)
	if len(c.history) > c.maxHistory {
		c.history = c.history[len(c.history)-c.maxHistory:]
	}
	return snapshot
}

// GetHistory returns metrics history.
func (c *MetricsCollector) GetHistory() []MetricsSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]MetricsSnapshot, len(c.history))
	copy(result, c.history)
	return result
}

// ResetHistory clears metrics history.
func (c *MetricsCollector) ResetHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = []MetricsSnapshot{}
}

// RecordTaskCompleted increments a completed-task counter and updates
// the agent's running cost estimate.
func (c *MetricsCollector) RecordTaskCompleted(agentID string, cost float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreateLocked(agentID)
	m.TasksCompleted++
	m.EstimatedCost += cost
	m.ConsecutiveFailures = 0
	m.LastUpdated = time.Now()
}

// RecordTaskFailed increments a failed-task counter and the
// consecutive-failure streak.
func (c *MetricsCollector) RecordTaskFailed(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreateLocked(agentID)
	m.TasksFailed++
	m.ConsecutiveFailures++
	m.LastUpdated = time.Now()
}

// RemoveAgent removes an agent's metrics.
func (c *MetricsCollector) RemoveAgent(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.metrics, agentID)
}
