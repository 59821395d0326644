// Package config loads the fabric's startup parameters from YAML,
// grounded on the teacher's internal/agents.LoadTeamsConfig
// (os.ReadFile + yaml.Unmarshal via gopkg.in/yaml.v3).
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orchestrator/fabric/internal/registry"
)

// Fabric holds every tunable named in spec.md's component tables
// (auto-scaler bounds, gate approval timeout, cost-guard cache TTL,
// default project budget) so an operator can retune the orchestrator
// without a rebuild.
type Fabric struct {
	Port int `yaml:"port"`

	MinAgents         int                  `yaml:"min_agents"`
	MaxAgents         int                  `yaml:"max_agents"`
	ScaleQueueDivisor int                  `yaml:"scale_queue_divisor"`
	DefaultAgentType  string               `yaml:"default_agent_type"`
	Seeds             []registry.SeedSpec  `yaml:"seeds"`

	ApprovalTimeoutMinutes int `yaml:"approval_timeout_minutes"`

	CacheTTLMinutes int `yaml:"cache_ttl_minutes"`

	DefaultBudgetTotal    float64 `yaml:"default_budget_total"`
	DefaultBudgetCurrency string  `yaml:"default_budget_currency"`

	StateDBPath string `yaml:"state_db_path"`

	NatsURL string `yaml:"nats_url"`
}

// ApprovalTimeout returns the configured approval window as a Duration,
// defaulting to 24 hours when unset (matches gate.New's own zero-value
// handling, kept here so the default is visible in one place).
func (f *Fabric) ApprovalTimeout() time.Duration {
	if f.ApprovalTimeoutMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(f.ApprovalTimeoutMinutes) * time.Minute
}

// CacheTTL returns the configured cost-guard cache TTL, defaulting to
// fifteen minutes.
func (f *Fabric) CacheTTL() time.Duration {
	if f.CacheTTLMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(f.CacheTTLMinutes) * time.Minute
}

// Default returns the fabric's built-in defaults, used when no config
// file is supplied or as a base before a file is layered on top.
func Default() *Fabric {
	return &Fabric{
		Port:                   8080,
		MinAgents:              2,
		MaxAgents:              20,
		ScaleQueueDivisor:      10,
		DefaultAgentType:       "generalist",
		Seeds:                  registry.DefaultSeedDistribution(),
		ApprovalTimeoutMinutes: 1440,
		CacheTTLMinutes:        15,
		DefaultBudgetTotal:     1000.0,
		DefaultBudgetCurrency:  "USD",
		StateDBPath:            "data/fabric.db",
	}
}

// Load reads a YAML config file and overlays it onto Default(). A
// missing file is not an error — the caller runs on defaults, matching
// the teacher's tolerant handling of a missing projects.yaml.
func Load(path string) (*Fabric, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
