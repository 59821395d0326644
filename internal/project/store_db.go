package project

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// longTermDB is the sqlite-backed persistence layer for the LongTerm
// memory partition and the budget transaction log. Grounded on the
// teacher's internal/memory/db.go embedded-schema pattern, adapted to
// modernc.org/sqlite (pure Go, no cgo dependency) since LongTerm memory
// needs queryable structure the teacher's reference file-per-project
// JSON blob store doesn't provide.
type longTermDB struct {
	db *sql.DB
}

func newLongTermDB(path string) (*longTermDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("project: creating db directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("project: opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; keep one connection
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("project: applying schema: %w", err)
	}
	return &longTermDB{db: db}, nil
}

func (l *longTermDB) Close() error {
	return l.db.Close()
}

func (l *longTermDB) upsertProject(id, name string, status Status, createdAt, updatedAt time.Time) error {
	_, err := l.db.Exec(
		`INSERT INTO projects (id, name, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, status=excluded.status, updated_at=excluded.updated_at`,
		id, name, string(status), createdAt.Format(time.RFC3339Nano), updatedAt.Format(time.RFC3339Nano))
	return err
}

func (l *longTermDB) putLongTerm(projectID, key string, value interface{}) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("project: encoding long-term value: %w", err)
	}
	_, err = l.db.Exec(
		`INSERT INTO long_term_memory (project_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(project_id, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		projectID, key, string(encoded), time.Now().Format(time.RFC3339Nano))
	return err
}

func (l *longTermDB) getLongTerm(projectID, key string) (interface{}, bool, error) {
	var raw string
	err := l.db.QueryRow(`SELECT value FROM long_term_memory WHERE project_id = ? AND key = ?`, projectID, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (l *longTermDB) deleteLongTerm(projectID, key string) error {
	_, err := l.db.Exec(`DELETE FROM long_term_memory WHERE project_id = ? AND key = ?`, projectID, key)
	return err
}

func (l *longTermDB) loadAllLongTerm(projectID string) (map[string]interface{}, error) {
	rows, err := l.db.Query(`SELECT key, value FROM long_term_memory WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]interface{})
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, rows.Err()
}

func (l *longTermDB) appendTransaction(projectID string, txn Transaction) error {
	_, err := l.db.Exec(
		`INSERT INTO budget_transactions (project_id, kind, amount, category, description, at) VALUES (?, ?, ?, ?, ?, ?)`,
		projectID, string(txn.Kind), txn.Amount, txn.Category, txn.Description, txn.At.Format(time.RFC3339Nano))
	return err
}
