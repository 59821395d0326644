package project

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/orchestrator/fabric/internal/orchtypes"
)

// wrapPersistErr reports a disk persistence failure without retrying
// it transparently (spec §4.1 failure model).
func wrapPersistErr(err error) error {
	return fmt.Errorf("project: persistence failure: %w", err)
}

// Store maps project id → Project, with write paths serialized per
// project (spec §4.1 failure model: "all write paths are atomic per
// project (serialize via a per-project lock)"). LongTerm memory and
// budget transactions are persisted through longTermDB; persistence
// failure is reported to the caller, never silently retried.
type Store struct {
	mu       sync.RWMutex
	projects map[string]*Project
	locks    map[string]*sync.Mutex
	db       *longTermDB
	onAlert  AlertFunc
	log      *zap.Logger
}

// NewStore opens (or creates) the sqlite-backed LongTerm store at
// dbPath and constructs an empty Store.
func NewStore(dbPath string, onAlert AlertFunc, log *zap.Logger) (*Store, error) {
	db, err := newLongTermDB(dbPath)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		projects: make(map[string]*Project),
		locks:    make(map[string]*sync.Mutex),
		db:       db,
		onAlert:  onAlert,
		log:      log,
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Create registers a new Project and persists its header row.
func (s *Store) Create(id, name string, budget *Budget) (*Project, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	_, exists := s.projects[id]
	s.mu.RUnlock()
	if exists {
		return nil, orchtypes.NewAPIError(orchtypes.ErrInvalidInput, "project %s already exists", id)
	}

	p := New(id, name, budget)
	if err := s.db.upsertProject(p.ID, p.Name, p.Status, p.CreatedAt, p.UpdatedAt); err != nil {
		return nil, wrapPersistErr(err)
	}

	s.mu.Lock()
	s.projects[id] = p
	s.mu.Unlock()
	return p, nil
}

// Get returns a project by id.
func (s *Store) Get(id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, orchtypes.NewAPIError(orchtypes.ErrNotFound, "project %s not found", id)
	}
	return p, nil
}

// List returns every tracked project.
func (s *Store) List() []*Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	return out
}

// Sleep transitions a project Active→Sleeping, serialized per project.
func (s *Store) Sleep(id string) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()
	if err := p.Sleep(); err != nil {
		return err
	}
	return s.db.upsertProject(p.ID, p.Name, p.Status, p.CreatedAt, p.UpdatedAt)
}

// Wake transitions a project Sleeping→Active, serialized per project.
func (s *Store) Wake(id string) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()
	if err := p.Wake(); err != nil {
		return err
	}
	return s.db.upsertProject(p.ID, p.Name, p.Status, p.CreatedAt, p.UpdatedAt)
}

// UpdateStatus sets a project's status directly, persisted immediately.
func (s *Store) UpdateStatus(id string, status Status) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()
	p.UpdateStatus(status)
	return s.db.upsertProject(p.ID, p.Name, p.Status, p.CreatedAt, p.UpdatedAt)
}

// AssignAgent adds an agent id to a project's assignment list.
func (s *Store) AssignAgent(id, agentID string) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	p.AssignAgent(agentID)
	return nil
}

// UnassignAgent removes an agent id from a project's assignment list.
func (s *Store) UnassignAgent(id, agentID string) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	p.UnassignAgent(agentID)
	return nil
}

// MemoryPut writes to a partition, persisting LongTerm writes to sqlite.
func (s *Store) MemoryPut(id string, part Partition, key string, value interface{}) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	p.MemoryPut(part, key, value)
	if part == PartitionLongTerm {
		if err := s.db.putLongTerm(id, key, value); err != nil {
			return wrapPersistErr(err)
		}
	}
	return nil
}

// MemoryGet reads a key from a partition. LongTerm reads hit the
// in-memory cache first and fall back to sqlite on a miss (e.g. after
// process restart before the project was reloaded).
func (s *Store) MemoryGet(id string, part Partition, key string) (interface{}, bool, error) {
	p, err := s.Get(id)
	if err != nil {
		return nil, false, err
	}
	if v, ok := p.MemoryGet(part, key); ok {
		return v, true, nil
	}
	if part == PartitionLongTerm {
		v, ok, err := s.db.getLongTerm(id, key)
		if err != nil {
			return nil, false, wrapPersistErr(err)
		}
		if ok {
			p.MemoryPut(part, key, v)
		}
		return v, ok, nil
	}
	return nil, false, nil
}

// MemoryDelete removes a key from a partition.
func (s *Store) MemoryDelete(id string, part Partition, key string) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	p.MemoryDelete(part, key)
	if part == PartitionLongTerm {
		if err := s.db.deleteLongTerm(id, key); err != nil {
			return wrapPersistErr(err)
		}
	}
	return nil
}

// RecordExpense deducts from a project's budget, firing alert
// thresholds and persisting the transaction to the ledger.
func (s *Store) RecordExpense(id string, amount float64, category, description string) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	if err := p.Budget.RecordExpense(amount, category, description, s.onAlert, id); err != nil {
		return err
	}
	last := p.Budget.Log[len(p.Budget.Log)-1]
	if err := s.db.appendTransaction(id, last); err != nil {
		return wrapPersistErr(err)
	}
	return nil
}

// BudgetSummary returns a point-in-time summary of a project's budget.
func (s *Store) BudgetSummary(id string) (Summary, error) {
	p, err := s.Get(id)
	if err != nil {
		return Summary{}, err
	}
	return p.Budget.Summarize(), nil
}
