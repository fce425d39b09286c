package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS validations (
	id TEXT PRIMARY KEY,
	trace_id TEXT NOT NULL DEFAULT '',
	contact_id TEXT NOT NULL DEFAULT '',
	action_id TEXT NOT NULL,
	action_kind TEXT NOT NULL,
	tier TEXT NOT NULL,
	is_relevant INTEGER NOT NULL,
	confidence_score REAL NOT NULL,
	reasoning TEXT NOT NULL,
	evaluated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_validations_contact ON validations (contact_id, evaluated_at);
CREATE TABLE IF NOT EXISTS violations (
	id TEXT PRIMARY KEY,
	trace_id TEXT NOT NULL DEFAULT '',
	action_id TEXT NOT NULL,
	severity TEXT NOT NULL,
	reason TEXT NOT NULL,
	reported_at TEXT NOT NULL
);
`

// SQLiteStore is the default audit store: a single-file database under
// dataDir, pure Go, WAL mode.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens dataDir/audit.db, creating the directory and schema as
// needed. Caller must Close.
func OpenSQLite(dataDir string) (*SQLiteStore, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("audit store: data dir is required")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	dbPath := filepath.Join(dataDir, "audit.db")
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("audit store: open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit store: WAL: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit store: schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Record(ctx context.Context, e Entry) error {
	relevant := 0
	if e.IsRelevant {
		relevant = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO validations (id, trace_id, contact_id, action_id, action_kind, tier, is_relevant, confidence_score, reasoning, evaluated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TraceID, e.ContactID, e.ActionID, e.ActionKind, e.Tier,
		relevant, e.ConfidenceScore, e.Reasoning, e.EvaluatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("audit record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordViolation(ctx context.Context, v Violation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO violations (id, trace_id, action_id, severity, reason, reported_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.TraceID, v.ActionID, v.Severity, v.Reason,
		v.ReportedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("audit violation: %w", err)
	}
	return nil
}

// Validations returns audit entries matching f, newest first.
func (s *SQLiteStore) Validations(ctx context.Context, f Filter) ([]Entry, error) {
	query := `SELECT id, trace_id, contact_id, action_id, action_kind, tier, is_relevant, confidence_score, reasoning, evaluated_at FROM validations`
	var conds []string
	var args []any

	if f.ContactID != "" {
		conds = append(conds, "contact_id = ?")
		args = append(args, f.ContactID)
	}
	if f.ActionKind != "" {
		conds = append(conds, "action_kind = ?")
		args = append(args, f.ActionKind)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "evaluated_at >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	if !f.Until.IsZero() {
		conds = append(conds, "evaluated_at < ?")
		args = append(args, f.Until.UTC().Format(time.RFC3339Nano))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY evaluated_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var relevant int
		var evaluatedAt string
		if err := rows.Scan(&e.ID, &e.TraceID, &e.ContactID, &e.ActionID, &e.ActionKind,
			&e.Tier, &relevant, &e.ConfidenceScore, &e.Reasoning, &evaluatedAt); err != nil {
			return nil, fmt.Errorf("audit scan: %w", err)
		}
		e.IsRelevant = relevant != 0
		e.EvaluatedAt, _ = time.Parse(time.RFC3339Nano, evaluatedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
