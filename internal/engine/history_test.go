package engine_test

import (
	"testing"

	"github.com/Jacksini/engram-mcp/internal/engine"
)

func TestHistoryRecordsCreateUpdateDelete(t *testing.T) {
	s := newTestStore(t)
	m := mustCreate(t, s, engine.CreateParams{Content: "v1", AutoLink: boolPtr(false)})

	v2 := "v2"
	if _, err := s.Update(m.ID, engine.UpdateParams{Content: &v2}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Delete(m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	hist, err := s.GetHistory(engine.GetHistoryParams{MemoryID: m.ID})
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if hist.Total != 3 {
		t.Fatalf("total = %d, want 3 (create, update, delete)", hist.Total)
	}
	// Newest first.
	if hist.Entries[0].Operation != engine.OpDelete {
		t.Errorf("entries[0].Operation = %q, want %q", hist.Entries[0].Operation, engine.OpDelete)
	}
	if hist.Entries[2].Operation != engine.OpCreate {
		t.Errorf("entries[2].Operation = %q, want %q", hist.Entries[2].Operation, engine.OpCreate)
	}
	// The delete trigger must have captured the pre-image, not an empty row.
	if hist.Entries[0].Content != "v2" {
		t.Errorf("delete history content = %q, want pre-image %q", hist.Entries[0].Content, "v2")
	}
}

func TestGetHistoryNotFoundForUnknownMemory(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetHistory(engine.GetHistoryParams{MemoryID: "never-existed"}); !engine.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestRestoreReappliesSnapshotAndAppendsNewHistoryRow(t *testing.T) {
	s := newTestStore(t)
	m := mustCreate(t, s, engine.CreateParams{Content: "original", Category: "note", AutoLink: boolPtr(false)})

	changed := "changed"
	if _, err := s.Update(m.ID, engine.UpdateParams{Content: &changed}); err != nil {
		t.Fatalf("update: %v", err)
	}

	hist, err := s.GetHistory(engine.GetHistoryParams{MemoryID: m.ID})
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	var createEntryID int64
	for _, e := range hist.Entries {
		if e.Operation == engine.OpCreate {
			createEntryID = e.HistoryID
		}
	}

	restored, err := s.Restore(engine.RestoreParams{MemoryID: m.ID, HistoryID: createEntryID})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Content != "original" {
		t.Errorf("content = %q, want %q", restored.Content, "original")
	}

	after, err := s.GetHistory(engine.GetHistoryParams{MemoryID: m.ID})
	if err != nil {
		t.Fatalf("get history after restore: %v", err)
	}
	if after.Total != hist.Total+1 {
		t.Errorf("total = %d, want %d (restore appends one more history row)", after.Total, hist.Total+1)
	}
}

func TestRestoreUnknownHistoryIsNotFound(t *testing.T) {
	s := newTestStore(t)
	m := mustCreate(t, s, engine.CreateParams{Content: "a", AutoLink: boolPtr(false)})
	if _, err := s.Restore(engine.RestoreParams{MemoryID: m.ID, HistoryID: 999999}); !engine.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
