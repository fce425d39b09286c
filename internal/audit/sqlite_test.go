package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func entryAt(contactID, kind string, at time.Time) Entry {
	return Entry{
		ID:              uuid.NewString(),
		ContactID:       contactID,
		ActionID:        uuid.NewString(),
		ActionKind:      kind,
		Tier:            "rules",
		IsRelevant:      true,
		ConfidenceScore: 0.9,
		Reasoning:       "within validity window",
		EvaluatedAt:     at,
	}
}

func TestSQLiteRecordAndQuery(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := store.Record(ctx, entryAt("c-1", "send_email", now.Add(-time.Hour))); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(ctx, entryAt("c-1", "schedule_call", now)); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(ctx, entryAt("c-2", "send_email", now)); err != nil {
		t.Fatal(err)
	}

	all, err := store.Validations(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("entries = %d, want 3", len(all))
	}
	if !all[0].EvaluatedAt.After(all[len(all)-1].EvaluatedAt) {
		t.Error("entries must come back newest first")
	}

	byContact, err := store.Validations(ctx, Filter{ContactID: "c-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byContact) != 2 {
		t.Errorf("c-1 entries = %d, want 2", len(byContact))
	}

	byKind, err := store.Validations(ctx, Filter{ActionKind: "send_email"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byKind) != 2 {
		t.Errorf("send_email entries = %d, want 2", len(byKind))
	}

	recent, err := store.Validations(ctx, Filter{Since: now.Add(-time.Minute)})
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Errorf("recent entries = %d, want 2", len(recent))
	}

	limited, err := store.Validations(ctx, Filter{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limited entries = %d, want 1", len(limited))
	}
}

func TestSQLiteRoundTripFields(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	in := Entry{
		ID:              uuid.NewString(),
		TraceID:         "trace-9",
		ContactID:       "c-9",
		ActionID:        "act-9",
		ActionKind:      "cross_sell",
		Tier:            "llm",
		IsRelevant:      false,
		ConfidenceScore: 0.35,
		Reasoning:       "contact churned last month",
		EvaluatedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := store.Record(ctx, in); err != nil {
		t.Fatal(err)
	}

	got, err := store.Validations(ctx, Filter{ContactID: "c-9"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("entries = %d, want 1", len(got))
	}
	out := got[0]
	if out.TraceID != in.TraceID || out.ActionID != in.ActionID || out.Tier != in.Tier {
		t.Errorf("round trip mismatch: %+v", out)
	}
	if out.IsRelevant || out.ConfidenceScore != 0.35 || out.Reasoning != in.Reasoning {
		t.Errorf("round trip mismatch: %+v", out)
	}
	if !out.EvaluatedAt.Equal(in.EvaluatedAt) {
		t.Errorf("evaluated_at = %s, want %s", out.EvaluatedAt, in.EvaluatedAt)
	}
}

func TestSQLiteRecordViolation(t *testing.T) {
	store := openTestStore(t)

	err := store.RecordViolation(context.Background(), Violation{
		ID:         uuid.NewString(),
		TraceID:    "trace-1",
		ActionID:   "act-1",
		Severity:   "Critical",
		Reason:     "missing validation reason",
		ReportedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestOpenSQLiteRequiresDataDir(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatal("expected error for empty data dir")
	}
}
