// Package runstore persists the executions of agent runs in SQLite so a run
// can be inspected or replayed after the fact.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jllopis/nerve/pkg/agent"
)

// Status values stored for each record.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusUnparsed = "unparsed"
)

// Record is one persisted execution.
type Record struct {
	RunID       string
	Step        int
	Action      string
	Attributes  map[string]string
	Payload     string
	RawResponse string
	Result      string
	Error       string
	Status      string
	CreatedAt   time.Time
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	RunID  string
	Action string
	Status string
	Limit  int
}

// Store is a SQLite backed agent.Recorder.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ agent.Recorder = (*Store)(nil)

// Open opens or creates the database at path. Use ":memory:" for a
// throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and ensures the schema exists.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record implements agent.Recorder.
func (s *Store) Record(ctx context.Context, runID string, step int, exec agent.Execution) error {
	rec := Record{
		RunID:  runID,
		Step:   step,
		Result: exec.Result(),
		Error:  exec.Error(),
		Status: StatusSuccess,
	}
	inv, ok := exec.Invocation()
	switch {
	case !ok:
		rec.Status = StatusUnparsed
		rec.RawResponse = exec.Response()
	case exec.Failed():
		rec.Status = StatusError
	}
	if ok {
		rec.Action = inv.Action
		rec.Attributes = inv.Attributes
		rec.Payload = inv.Payload
		rec.RawResponse = inv.XML()
	}
	return s.Insert(ctx, rec)
}

// Insert stores rec as is. A zero CreatedAt is set to the current time.
func (s *Store) Insert(ctx context.Context, rec Record) error {
	attrs := "{}"
	if len(rec.Attributes) > 0 {
		raw, err := json.Marshal(rec.Attributes)
		if err != nil {
			return err
		}
		attrs = string(raw)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_executions (
			run_id, step, action, attributes_json, payload, raw_response, result, error_text, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.RunID,
		rec.Step,
		rec.Action,
		attrs,
		rec.Payload,
		rec.RawResponse,
		rec.Result,
		rec.Error,
		rec.Status,
		rec.CreatedAt.UTC(),
	)
	return err
}

// List returns the records matching filter ordered by run and step.
func (s *Store) List(ctx context.Context, filter Filter) ([]Record, error) {
	query := `
		SELECT run_id, step, action, attributes_json, payload, raw_response, result, error_text, status, created_at
		FROM agent_executions
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.RunID != "" {
		addFilter("run_id = ?", filter.RunID)
	}
	if filter.Action != "" {
		addFilter("action = ?", filter.Action)
	}
	if filter.Status != "" {
		addFilter("status = ?", filter.Status)
	}
	query += where + " ORDER BY run_id ASC, step ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec     Record
			attrs   string
			created sql.NullTime
		)
		if err := rows.Scan(
			&rec.RunID,
			&rec.Step,
			&rec.Action,
			&attrs,
			&rec.Payload,
			&rec.RawResponse,
			&rec.Result,
			&rec.Error,
			&rec.Status,
			&created,
		); err != nil {
			return nil, err
		}
		if attrs != "" && attrs != "{}" {
			if err := json.Unmarshal([]byte(attrs), &rec.Attributes); err != nil {
				return nil, err
			}
		}
		if created.Valid {
			rec.CreatedAt = created.Time
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Runs lists the distinct run ids in order of first appearance.
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id FROM agent_executions GROUP BY run_id ORDER BY MIN(id) ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS agent_executions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			action TEXT,
			attributes_json TEXT,
			payload TEXT,
			raw_response TEXT,
			result TEXT,
			error_text TEXT,
			status TEXT NOT NULL,
			created_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_agent_executions_run ON agent_executions(run_id, step);
		CREATE INDEX IF NOT EXISTS idx_agent_executions_status ON agent_executions(status);
	`)
	return err
}
