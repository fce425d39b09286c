package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS audit_validations (
	id TEXT PRIMARY KEY,
	trace_id TEXT NOT NULL DEFAULT '',
	contact_id TEXT NOT NULL DEFAULT '',
	action_id TEXT NOT NULL,
	action_kind TEXT NOT NULL,
	tier TEXT NOT NULL,
	is_relevant BOOLEAN NOT NULL,
	confidence_score DOUBLE PRECISION NOT NULL,
	reasoning TEXT NOT NULL,
	evaluated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_validations_contact ON audit_validations (contact_id, evaluated_at);
CREATE TABLE IF NOT EXISTS audit_violations (
	id TEXT PRIMARY KEY,
	trace_id TEXT NOT NULL DEFAULT '',
	action_id TEXT NOT NULL,
	severity TEXT NOT NULL,
	reason TEXT NOT NULL,
	reported_at TIMESTAMPTZ NOT NULL
);
`

// PostgresStore is an audit store for shared deployments. Writes go through
// a buffered queue drained by a background writer so recording never blocks
// the validation path; entries that cannot be written are logged and dropped
// at Close, never silently mid-run.
type PostgresStore struct {
	db    *sql.DB
	queue chan any // Entry or Violation
	wg    sync.WaitGroup
	once  sync.Once
}

// OpenPostgres connects with a lib/pq DSN and bootstraps the schema.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit store: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit store: ping postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit store: schema: %w", err)
	}

	s := &PostgresStore{
		db:    db,
		queue: make(chan any, 1024),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

func (s *PostgresStore) writeLoop() {
	defer s.wg.Done()
	for item := range s.queue {
		var err error
		switch rec := item.(type) {
		case Entry:
			err = s.writeEntry(rec)
		case Violation:
			err = s.writeViolation(rec)
		}
		if err != nil {
			log.Printf("audit: postgres write failed: %v", err)
		}
	}
}

func (s *PostgresStore) writeEntry(e Entry) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_validations (id, trace_id, contact_id, action_id, action_kind, tier, is_relevant, confidence_score, reasoning, evaluated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.TraceID, e.ContactID, e.ActionID, e.ActionKind, e.Tier,
		e.IsRelevant, e.ConfidenceScore, e.Reasoning, e.EvaluatedAt.UTC())
	return err
}

func (s *PostgresStore) writeViolation(v Violation) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_violations (id, trace_id, action_id, severity, reason, reported_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		v.ID, v.TraceID, v.ActionID, v.Severity, v.Reason, v.ReportedAt.UTC())
	return err
}

// Record enqueues the entry. A full queue surfaces as an error so the caller
// can log it locally; it never blocks validation.
func (s *PostgresStore) Record(_ context.Context, e Entry) error {
	select {
	case s.queue <- e:
		return nil
	default:
		return fmt.Errorf("audit queue full, dropping entry %s", e.ID)
	}
}

func (s *PostgresStore) RecordViolation(_ context.Context, v Violation) error {
	select {
	case s.queue <- v:
		return nil
	default:
		return fmt.Errorf("audit queue full, dropping violation %s", v.ID)
	}
}

// Validations returns audit entries matching f, newest first.
func (s *PostgresStore) Validations(ctx context.Context, f Filter) ([]Entry, error) {
	query := `SELECT id, trace_id, contact_id, action_id, action_kind, tier, is_relevant, confidence_score, reasoning, evaluated_at FROM audit_validations`
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ContactID != "" {
		add("contact_id = $%d", f.ContactID)
	}
	if f.ActionKind != "" {
		add("action_kind = $%d", f.ActionKind)
	}
	if !f.Since.IsZero() {
		add("evaluated_at >= $%d", f.Since.UTC())
	}
	if !f.Until.IsZero() {
		add("evaluated_at < $%d", f.Until.UTC())
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY evaluated_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var evaluatedAt time.Time
		if err := rows.Scan(&e.ID, &e.TraceID, &e.ContactID, &e.ActionID, &e.ActionKind,
			&e.Tier, &e.IsRelevant, &e.ConfidenceScore, &e.Reasoning, &evaluatedAt); err != nil {
			return nil, fmt.Errorf("audit scan: %w", err)
		}
		e.EvaluatedAt = evaluatedAt
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close drains the queue and closes the connection.
func (s *PostgresStore) Close() error {
	s.once.Do(func() {
		close(s.queue)
	})
	s.wg.Wait()
	return s.db.Close()
}
