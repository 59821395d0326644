package project

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "projects.db"), nil, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBudgetRecordExpenseUpdatesLedger(t *testing.T) {
	b := NewBudget(100, "USD")
	if err := b.RecordExpense(30, "compute", "ran a job", nil, "p1"); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	if b.Spent != 30 || b.Remaining != 70 {
		t.Fatalf("spent=%f remaining=%f, want 30/70", b.Spent, b.Remaining)
	}
	if len(b.Log) != 1 || b.Log[0].Category != "compute" {
		t.Fatalf("ledger = %+v, want one compute entry", b.Log)
	}
	if err := b.Invariant(); err != nil {
		t.Fatalf("Invariant: %v", err)
	}
}

func TestBudgetExpenseDefaultsCategoryToGeneral(t *testing.T) {
	b := NewBudget(100, "USD")
	b.RecordExpense(10, "", "no category given", nil, "p1")
	if b.Log[0].Category != "general" {
		t.Fatalf("category = %s, want general", b.Log[0].Category)
	}
}

func TestBudgetRejectsExpenseExceedingRemaining(t *testing.T) {
	b := NewBudget(10, "USD")
	if err := b.RecordExpense(20, "compute", "too much", nil, "p1"); err == nil {
		t.Fatal("expected InsufficientFunds")
	}
}

func TestBudgetReserveAndRelease(t *testing.T) {
	b := NewBudget(100, "USD")
	if err := b.Reserve(40); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if b.Reserved != 40 || b.Remaining != 60 {
		t.Fatalf("reserved=%f remaining=%f, want 40/60", b.Reserved, b.Remaining)
	}
	if err := b.Release(40); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if b.Reserved != 0 || b.Remaining != 100 {
		t.Fatalf("reserved=%f remaining=%f, want 0/100 after release", b.Reserved, b.Remaining)
	}
	if err := b.Release(1); err == nil {
		t.Fatal("expected error releasing more than reserved")
	}
}

func TestBudgetThresholdsFireOncePerCrossing(t *testing.T) {
	b := NewBudget(100, "USD")
	fired := map[float64]int{}
	alert := func(projectID string, threshold float64, budget *Budget) {
		fired[threshold]++
	}
	b.RecordExpense(55, "x", "", alert, "p1") // crosses 0.50
	b.RecordExpense(1, "x", "", alert, "p1")  // no new crossing
	if fired[0.50] != 1 {
		t.Fatalf("0.50 threshold fired %d times, want 1", fired[0.50])
	}
	if fired[0.75] != 0 {
		t.Fatalf("0.75 threshold should not have fired yet")
	}
}

func TestCreateAndGetProject(t *testing.T) {
	s := newTestStore(t)
	p, err := s.Create("p1", "Project One", NewBudget(1000, "USD"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Status != StatusActive {
		t.Fatalf("status = %s, want active", p.Status)
	}
	got, err := s.Get("p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "p1" {
		t.Fatalf("got wrong project: %+v", got)
	}
}

func TestSleepWakeCounters(t *testing.T) {
	s := newTestStore(t)
	s.Create("p1", "P1", NewBudget(10, "USD"))
	if err := s.Sleep("p1"); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	p, _ := s.Get("p1")
	if p.Status != StatusSleeping || p.SleepCount != 1 {
		t.Fatalf("status=%s sleepCount=%d, want sleeping/1", p.Status, p.SleepCount)
	}
	if err := s.Wake("p1"); err != nil {
		t.Fatalf("Wake: %v", err)
	}
	if p.Status != StatusActive || p.WakeCount != 1 {
		t.Fatalf("status=%s wakeCount=%d, want active/1", p.Status, p.WakeCount)
	}
	if err := s.Wake("p1"); err == nil {
		t.Fatal("expected error waking an already-Active project")
	}
}

func TestLongTermMemoryPersistsAcrossGet(t *testing.T) {
	s := newTestStore(t)
	s.Create("p1", "P1", NewBudget(10, "USD"))
	if err := s.MemoryPut("p1", PartitionLongTerm, "insight", map[string]string{"k": "v"}); err != nil {
		t.Fatalf("MemoryPut: %v", err)
	}
	v, ok, err := s.MemoryGet("p1", PartitionLongTerm, "insight")
	if err != nil {
		t.Fatalf("MemoryGet: %v", err)
	}
	if !ok {
		t.Fatal("expected to find the long-term entry")
	}
	m, ok := v.(map[string]string)
	if !ok || m["k"] != "v" {
		t.Fatalf("got %+v, want map with k=v", v)
	}
}

func TestShortTermClearRemovesAllKeys(t *testing.T) {
	s := newTestStore(t)
	s.Create("p1", "P1", NewBudget(10, "USD"))
	s.MemoryPut("p1", PartitionShortTerm, "a", 1)
	s.MemoryPut("p1", PartitionShortTerm, "b", 2)
	p, _ := s.Get("p1")
	p.MemoryClear(PartitionShortTerm)
	if snap := p.MemorySnapshot(PartitionShortTerm); len(snap) != 0 {
		t.Fatalf("expected empty short-term partition after clear, got %+v", snap)
	}
}

func TestRecordExpenseThroughStorePersistsTransaction(t *testing.T) {
	s := newTestStore(t)
	s.Create("p1", "P1", NewBudget(100, "USD"))
	if err := s.RecordExpense("p1", 25, "llm", "inference call"); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	summary, err := s.BudgetSummary("p1")
	if err != nil {
		t.Fatalf("BudgetSummary: %v", err)
	}
	if summary.Spent != 25 || summary.Remaining != 75 {
		t.Fatalf("summary = %+v, want spent=25 remaining=75", summary)
	}
}

func TestMain(m *testing.M) {
	code := m.Run()
	os.Exit(code)
}
