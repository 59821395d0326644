// Package project implements the Project Store (C1): isolated
// per-project memory partitions and a Budget ledger. Grounded on
// original_source/core/project_cortex/budget_manager.py (record-expense/
// reserve/release/threshold semantics, carried over near 1:1) and
// project.py (the Project entity and its Active/Sleeping/Paused status
// machine); persistence follows the teacher's internal/memory/db.go
// embedded-schema sqlite idiom, adapted here to modernc.org/sqlite so
// the module stays pure-Go.
package project

import (
	"fmt"
	"time"

	"github.com/orchestrator/fabric/internal/orchtypes"
)

// TransactionKind is the closed set of budget ledger entry types.
type TransactionKind string

const (
	TxnAllocation TransactionKind = "allocation"
	TxnExpense    TransactionKind = "expense"
	TxnRefund     TransactionKind = "refund"
	TxnAdjustment TransactionKind = "adjustment"
)

// Transaction is one budget ledger entry.
type Transaction struct {
	Kind        TransactionKind
	Amount      float64
	Category    string
	Description string
	At          time.Time
}

// DefaultAlertThresholds are the spec's default 50/75/90/100% budget
// alert thresholds.
var DefaultAlertThresholds = []float64{0.50, 0.75, 0.90, 1.00}

// AlertFunc is invoked once per newly-crossed threshold.
type AlertFunc func(projectID string, threshold float64, budget *Budget)

// Budget tracks a project's spend against an allocation, with reserve/
// release and threshold-crossing alerts.
type Budget struct {
	Total     float64
	Spent     float64
	Remaining float64
	Reserved  float64
	Currency  string

	Log              []Transaction
	AlertThresholds  []float64
	Triggered        map[float64]bool
}

// NewBudget creates a Budget fully allocated to Remaining.
func NewBudget(total float64, currency string) *Budget {
	if currency == "" {
		currency = "USD"
	}
	thresholds := append([]float64(nil), DefaultAlertThresholds...)
	return &Budget{
		Total:           total,
		Remaining:       total,
		Currency:        currency,
		AlertThresholds: thresholds,
		Triggered:       make(map[float64]bool),
	}
}

// RecordExpense deducts amount from Remaining and adds it to Spent,
// appending a ledger entry. Fails with InsufficientFunds if amount
// exceeds Remaining (spec §4.1 budget rules).
func (b *Budget) RecordExpense(amount float64, category, description string, onAlert AlertFunc, projectID string) error {
	if amount > b.Remaining {
		return orchtypes.NewAPIError(orchtypes.ErrInsufficientFunds,
			"expense %.4f exceeds remaining %.4f %s", amount, b.Remaining, b.Currency)
	}
	b.Spent += amount
	b.Remaining -= amount
	if category == "" {
		category = "general"
	}
	b.Log = append(b.Log, Transaction{Kind: TxnExpense, Amount: amount, Category: category, Description: description, At: time.Now()})
	b.fireThresholds(onAlert, projectID)
	return nil
}

// fireThresholds triggers onAlert once for every threshold newly
// crossed by spent/total (spec §4.1: fires once, threshold added to
// triggered).
func (b *Budget) fireThresholds(onAlert AlertFunc, projectID string) {
	if b.Total <= 0 {
		return
	}
	ratio := b.Spent / b.Total
	for _, t := range b.AlertThresholds {
		if ratio >= t && !b.Triggered[t] {
			b.Triggered[t] = true
			if onAlert != nil {
				onAlert(projectID, t, b)
			}
		}
	}
}

// Add increases Total and Remaining by amount (a fresh allocation).
func (b *Budget) Add(amount float64, description string) {
	b.Total += amount
	b.Remaining += amount
	b.Log = append(b.Log, Transaction{Kind: TxnAllocation, Amount: amount, Description: description, At: time.Now()})
}

// Reserve moves amount from Remaining to Reserved.
func (b *Budget) Reserve(amount float64) error {
	if amount > b.Remaining {
		return orchtypes.NewAPIError(orchtypes.ErrInsufficientFunds,
			"cannot reserve %.4f, only %.4f remaining", amount, b.Remaining)
	}
	b.Reserved += amount
	b.Remaining -= amount
	return nil
}

// Release moves amount from Reserved back to Remaining. Must not
// exceed Reserved.
func (b *Budget) Release(amount float64) error {
	if amount > b.Reserved {
		return orchtypes.NewAPIError(orchtypes.ErrInvalidInput,
			"cannot release %.4f, only %.4f reserved", amount, b.Reserved)
	}
	b.Reserved -= amount
	b.Remaining += amount
	return nil
}

// Summary is the read-only view returned by budget/summary.
type Summary struct {
	Total       float64
	Spent       float64
	Remaining   float64
	Reserved    float64
	Currency    string
	Utilization float64 // spent/total, 0 if total is 0
}

// Summarize returns a point-in-time Summary of the budget.
func (b *Budget) Summarize() Summary {
	util := 0.0
	if b.Total > 0 {
		util = b.Spent / b.Total
	}
	return Summary{
		Total: b.Total, Spent: b.Spent, Remaining: b.Remaining, Reserved: b.Reserved,
		Currency: b.Currency, Utilization: util,
	}
}

// Invariant reports whether spent+remaining+reserved reconciles with
// total, within floating-point tolerance — used by tests and by the
// Project Store's own consistency checks, never enforced inline.
func (b *Budget) Invariant() error {
	sum := b.Spent + b.Remaining + b.Reserved
	if diff := sum - b.Total; diff > 1e-6 || diff < -1e-6 {
		return fmt.Errorf("project: budget invariant violated: spent+remaining+reserved=%.6f total=%.6f", sum, b.Total)
	}
	return nil
}
