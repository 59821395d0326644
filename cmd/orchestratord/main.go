// Command orchestratord runs the Orchestrator Facade (spec.md §6) and
// every component it fronts: the Agent Registry & Auto-Scaler, Decision
// Gate, Task Decomposer, Cost Guard, Dispatcher, Output Composer, and
// Project Store. Grounded on the teacher's cmd/cliaimonitor/main.go
// flag-parsing and graceful-shutdown idiom; the teacher's single-
// instance PID-lock (internal/instance) is dropped since the fabric is
// a stateless, horizontally-replicable HTTP service (see DESIGN.md).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/orchestrator/fabric/internal/config"
	"github.com/orchestrator/fabric/internal/costguard"
	"github.com/orchestrator/fabric/internal/dispatch"
	"github.com/orchestrator/fabric/internal/events"
	"github.com/orchestrator/fabric/internal/facade"
	"github.com/orchestrator/fabric/internal/gate"
	"github.com/orchestrator/fabric/internal/metrics"
	natslib "github.com/orchestrator/fabric/internal/nats"
	"github.com/orchestrator/fabric/internal/orchtypes"
	"github.com/orchestrator/fabric/internal/project"
	"github.com/orchestrator/fabric/internal/registry"
	"github.com/orchestrator/fabric/internal/taskgraph"
)

func main() {
	configPath := flag.String("config", "configs/fabric.yaml", "Fabric configuration file")
	port := flag.Int("port", 0, "HTTP server port (overrides the config file's port when set)")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("failed to load config", zap.String("path", *configPath), zap.Error(err))
	}
	if *port != 0 {
		cfg.Port = *port
	}

	f, closeFabric, err := buildFabric(cfg, log)
	if err != nil {
		log.Fatal("failed to build fabric", zap.Error(err))
	}
	defer closeFabric()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           f.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	log.Info("orchestrator fabric listening", zap.Int("port", cfg.Port))

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
		}
	case <-shutdown:
		log.Info("shutting down (signal received)")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown did not complete cleanly", zap.Error(err))
	}
}

// buildFabric wires every component per spec.md §3's ownership rules
// and returns a function that releases owned resources (the project
// store's database handle).
func buildFabric(cfg *config.Fabric, log *zap.Logger) (*facade.Facade, func(), error) {
	reg, err := registry.New(cfg.MinAgents, cfg.MaxAgents, cfg.Seeds, log)
	if err != nil {
		return nil, nil, fmt.Errorf("registry: %w", err)
	}
	scaler := registry.NewAutoScaler(reg, cfg.ScaleQueueDivisor, cfg.DefaultAgentType, nil, log)

	bus := events.NewBus(nil)
	bus.SetLogger(log)
	publisher := events.NewDispatchPublisher(bus)

	var natsClient *natslib.Client
	var forwarder *events.NatsForwarder
	if cfg.NatsURL != "" {
		natsClient, err = natslib.NewClient(cfg.NatsURL, log)
		if err != nil {
			log.Warn("nats unavailable, continuing without event forwarding", zap.String("url", cfg.NatsURL), zap.Error(err))
		} else {
			forwarder = events.NewNatsForwarder(bus, natsClient, log)
			forwarder.Start()
		}
	}

	projects, err := project.NewStore(cfg.StateDBPath, func(projectID string, threshold float64, budget *project.Budget) {
		priority := orchtypes.PriorityNormal
		if threshold >= 0.90 {
			priority = orchtypes.PriorityCritical
		} else if threshold >= 0.75 {
			priority = orchtypes.PriorityHigh
		}
		bus.Publish(events.NewEvent(events.EventBudgetAlert, "project", projectID, priority,
			map[string]interface{}{
				"project_id": projectID,
				"threshold":  threshold,
				"spent":      budget.Spent,
				"total":      budget.Total,
			}))
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("project store: %w", err)
	}

	localFunc := func(req costguard.InferenceRequest) (interface{}, error) {
		return map[string]string{"text": "local inference stub: " + req.Prompt}, nil
	}
	guard := costguard.New(cfg.CacheTTL(), localFunc, log)

	disp := dispatch.New(reg, guard, publisher, log)

	gt := gate.New(gate.NewChain(), cfg.ApprovalTimeout(), log)

	decomposer := taskgraph.NewDecomposer()

	collector := metrics.NewCollector()
	alerts := metrics.NewAlertEngine(metrics.AlertThresholds{
		ConsecutiveFailuresMax: 3,
		IdleTimeMaxSeconds:     600,
		QueueDepthMax:          100,
	})
	prom := metrics.NewPrometheusMetrics()

	fab := facade.New(facade.Deps{
		Registry:   reg,
		AutoScaler: scaler,
		Decomposer: decomposer,
		Gate:       gt,
		Guard:      guard,
		Dispatcher: disp,
		Projects:   projects,
		Bus:        bus,
		Collector:  collector,
		Alerts:     alerts,
		Prom:       prom,
		Log:        log,
	})

	closeFn := func() {
		if forwarder != nil {
			forwarder.Stop()
		}
		if natsClient != nil {
			natsClient.Close()
		}
		if err := projects.Close(); err != nil {
			log.Warn("closing project store", zap.Error(err))
		}
	}
	return fab, closeFn, nil
}
