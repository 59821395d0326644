package nats

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServerConfig configures a zero-dependency, single-process NATS
// server for local development and tests, sparing operators a separate
// broker to stand up just to exercise orchestrator.* subjects.
type EmbeddedServerConfig struct {
	Port    int    // listen port; 0 picks the NATS default (4222)
	DataDir string // JetStream storage directory; empty disables JetStream
}

// EmbeddedServer wraps an in-process *server.Server.
type EmbeddedServer struct {
	srv     *server.Server
	cfg     EmbeddedServerConfig
	mu      sync.RWMutex
	running bool
}

// NewEmbeddedServer validates cfg and returns an unstarted server.
func NewEmbeddedServer(cfg EmbeddedServerConfig) (*EmbeddedServer, error) {
	if cfg.Port <= 0 {
		cfg.Port = 4222
	}
	return &EmbeddedServer{cfg: cfg}, nil
}

// Start boots the embedded server and blocks until it accepts connections.
func (e *EmbeddedServer) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("nats: server already running")
	}

	opts := &server.Options{
		Host:       "127.0.0.1",
		Port:       e.cfg.Port,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}
	if e.cfg.DataDir != "" {
		opts.JetStream = true
		opts.StoreDir = e.cfg.DataDir
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("nats: create server: %w", err)
	}
	e.srv = ns
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		return fmt.Errorf("nats: server not ready for connections")
	}
	e.running = true
	return nil
}

// Shutdown stops the embedded server and waits for it to fully drain.
func (e *EmbeddedServer) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.srv == nil {
		return
	}
	e.srv.Shutdown()
	e.srv.WaitForShutdown()
	e.running = false
	e.srv = nil
}

// URL returns the client connection string for this server.
func (e *EmbeddedServer) URL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fmt.Sprintf("nats://127.0.0.1:%d", e.cfg.Port)
}

// IsRunning reports whether the server has been started and not yet shut down.
func (e *EmbeddedServer) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}
