package history

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"avrbridge/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"), slog.Default())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Record(ctx, domain.Invocation{
		ToolID:   "avrdude",
		Command:  "avrdude",
		Args:     []string{"-p", "m128"},
		ExitCode: 0,
		Outcome:  "ok",
		Duration: 1200 * time.Millisecond,
	})
	store.Record(ctx, domain.Invocation{
		ToolID:  "avarice",
		Command: "avarice",
		Outcome: "tool not found",
	})

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recent))
	}

	for _, inv := range recent {
		if inv.ID == "" {
			t.Error("record is missing a generated id")
		}
	}

	var avrdude *domain.Invocation
	for i := range recent {
		if recent[i].ToolID == "avrdude" {
			avrdude = &recent[i]
		}
	}
	if avrdude == nil {
		t.Fatal("avrdude record not found")
	}
	if len(avrdude.Args) != 2 || avrdude.Args[0] != "-p" || avrdude.Args[1] != "m128" {
		t.Errorf("args round trip: got %q", avrdude.Args)
	}
	if avrdude.Duration != 1200*time.Millisecond {
		t.Errorf("duration round trip: got %v", avrdude.Duration)
	}
}

func TestRecent_Limit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		store.Record(ctx, domain.Invocation{ToolID: "avrdude", Command: "avrdude", Outcome: "ok"})
	}

	recent, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 3 {
		t.Errorf("limit not honored: got %d records", len(recent))
	}
}

func TestPruneOlderThan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Record(ctx, domain.Invocation{
		ToolID:    "avrdude",
		Command:   "avrdude",
		Outcome:   "ok",
		CreatedAt: time.Now().Add(-48 * time.Hour),
	})
	store.Record(ctx, domain.Invocation{ToolID: "avrdude", Command: "avrdude", Outcome: "ok"})

	pruned, err := store.PruneOlderThan(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned %d records, want 1", pruned)
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 {
		t.Errorf("expected 1 remaining record, got %d", len(recent))
	}
}
