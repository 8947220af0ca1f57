package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vertextoedge/safefetch/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "journal.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(id, target string, state domain.State, finished time.Time) *domain.JournalEntry {
	return &domain.JournalEntry{
		ID:         id,
		URL:        "https://example.com/" + id,
		RelPath:    id + ".bin",
		Target:     target,
		State:      state,
		Bytes:      10,
		Attempts:   1,
		StartedAt:  finished.Add(-time.Second),
		FinishedAt: finished,
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	s.Close()

	// Migrations run once
	s, err = Open(path)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	defer s.Close()
	v, err := s.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if v != len(schema) {
		t.Errorf("SchemaVersion() = %d, want %d", v, len(schema))
	}
}

func TestOpen_NewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	if s, err := Open(path); err == nil {
		s.Close()
		t.Fatal("Open() accepted a schema from a newer binary")
	}
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	failed := entry("b", "", domain.StateFailed, now)
	failed.Error = "path escapes base directory"
	for _, e := range []*domain.JournalEntry{
		entry("a", "/data/a.bin", domain.StateDone, now.Add(-time.Minute)),
		failed,
		entry("c", "/data/c.bin", domain.StateSkipped, now),
	} {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record(%s) error = %v", e.ID, err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent() returned %d entries, want 2", len(got))
	}
	if got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("order = %s,%s, want c,b", got[0].ID, got[1].ID)
	}
	if got[1].Error != failed.Error || got[1].Target != "" || got[1].State != domain.StateFailed {
		t.Errorf("failed entry = %+v", got[1])
	}
	if !got[0].FinishedAt.Equal(now) {
		t.Errorf("FinishedAt = %v, want %v", got[0].FinishedAt, now)
	}
}

func TestStore_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	e := entry("a", "/data/a.bin", domain.StateDone, time.Now())
	if err := s.Record(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(context.Background(), e); err == nil {
		t.Error("Record() accepted a duplicate id")
	}
}

func TestStore_LastFor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.Record(ctx, entry("a1", "/data/a.bin", domain.StateFailed, now.Add(-time.Hour)))
	s.Record(ctx, entry("a2", "/data/a.bin", domain.StateDone, now))
	s.Record(ctx, entry("b1", "/data/b.bin", domain.StateDone, now))

	got, err := s.LastFor(ctx, "/data/a.bin")
	if err != nil {
		t.Fatalf("LastFor() error = %v", err)
	}
	if got == nil || got.ID != "a2" {
		t.Errorf("LastFor() = %+v, want a2", got)
	}

	got, err = s.LastFor(ctx, "/data/none.bin")
	if err != nil || got != nil {
		t.Errorf("LastFor(unknown) = %+v, %v; want nil, nil", got, err)
	}
}

func TestStore_DeleteFinishedBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.Record(ctx, entry("old", "/data/old.bin", domain.StateDone, now.Add(-48*time.Hour)))
	s.Record(ctx, entry("new", "/data/new.bin", domain.StateDone, now))

	n, err := s.DeleteFinishedBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteFinishedBefore() error = %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d rows, want 1", n)
	}

	left, _ := s.Recent(ctx, 10)
	if len(left) != 1 || left[0].ID != "new" {
		t.Errorf("remaining = %v", left)
	}
}
