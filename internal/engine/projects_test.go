package engine_test

import (
	"testing"

	"github.com/Jacksini/engram-mcp/internal/engine"
)

func TestListProjectsCountsAliveOnly(t *testing.T) {
	s := newTestStore(t)
	past := "2000-01-01 00:00:00"
	mustCreate(t, s, engine.CreateParams{Content: "a", Project: "alpha", AutoLink: boolPtr(false)})
	mustCreate(t, s, engine.CreateParams{Content: "b", Project: "alpha", AutoLink: boolPtr(false)})
	mustCreate(t, s, engine.CreateParams{Content: "c", Project: "beta", ExpiresAt: &past, AutoLink: boolPtr(false)})

	projects, err := s.ListProjects()
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	var alpha *engine.ProjectCount
	for i := range projects {
		if projects[i].Project == "alpha" {
			alpha = &projects[i]
		}
		if projects[i].Project == "beta" {
			t.Errorf("expired-only project %q should not be listed", "beta")
		}
	}
	if alpha == nil || alpha.Count != 2 {
		t.Fatalf("alpha project count = %+v, want 2", alpha)
	}
}

func TestMigrateToProjectMovesTaggedMemories(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, engine.CreateParams{Content: "move me", Tags: []string{"migrate"}, Project: "old", AutoLink: boolPtr(false)})
	mustCreate(t, s, engine.CreateParams{Content: "stay here", Project: "old", AutoLink: boolPtr(false)})

	n, err := s.MigrateToProject("migrate", "new")
	if err != nil {
		t.Fatalf("migrate to project: %v", err)
	}
	if n != 1 {
		t.Fatalf("moved = %d, want 1", n)
	}

	moved, err := s.List(engine.ListFilter{Project: "new"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if moved.Total != 1 || moved.Memories[0].Content != "move me" {
		t.Fatalf("unexpected result in destination project: %+v", moved)
	}
}

func TestRenameTagDedupesOnCollision(t *testing.T) {
	s := newTestStore(t)
	m := mustCreate(t, s, engine.CreateParams{Content: "has both tags", Tags: []string{"old", "new"}, AutoLink: boolPtr(false)})

	result, err := s.RenameTag("old", "new", "default")
	if err != nil {
		t.Fatalf("rename tag: %v", err)
	}
	if result.Updated != 1 {
		t.Fatalf("updated = %d, want 1", result.Updated)
	}

	updated, err := s.GetByID(m.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if len(updated.Tags) != 1 || updated.Tags[0] != "new" {
		t.Fatalf("tags = %v, want deduplicated [new]", updated.Tags)
	}
}

func TestRenameTagSameNameIsNoop(t *testing.T) {
	s := newTestStore(t)
	m := mustCreate(t, s, engine.CreateParams{Content: "unchanged", Tags: []string{"keep"}, AutoLink: boolPtr(false)})
	before, err := s.GetByID(m.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}

	result, err := s.RenameTag("keep", "keep", "default")
	if err != nil {
		t.Fatalf("rename tag: %v", err)
	}
	if result.Updated != 0 {
		t.Fatalf("updated = %d, want 0", result.Updated)
	}

	after, err := s.GetByID(m.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if after.UpdatedAt != before.UpdatedAt {
		t.Errorf("updated_at changed on no-op rename: before %q, after %q", before.UpdatedAt, after.UpdatedAt)
	}
}
