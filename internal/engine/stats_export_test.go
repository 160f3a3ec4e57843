package engine_test

import (
	"strings"
	"testing"

	"github.com/Jacksini/engram-mcp/internal/engine"
)

func TestStatsAggregatesLiveMemoriesOnly(t *testing.T) {
	s := newTestStore(t)
	past := "2000-01-01 00:00:00"
	mustCreate(t, s, engine.CreateParams{Content: "expired", ExpiresAt: &past, AutoLink: boolPtr(false)})
	mustCreate(t, s, engine.CreateParams{Content: "alive one", Category: "note", Tags: []string{"go"}, AutoLink: boolPtr(false)})
	mustCreate(t, s, engine.CreateParams{Content: "alive two", Category: "note", AutoLink: boolPtr(false)})
	mustCreate(t, s, engine.CreateParams{Content: "alive three", Category: "bug", Metadata: map[string]any{"k": "v"}, AutoLink: boolPtr(false)})

	stats, err := s.Stats("default")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalLive != 3 {
		t.Fatalf("total_live = %d, want 3", stats.TotalLive)
	}
	if stats.WithoutTags != 2 {
		t.Errorf("without_tags = %d, want 2", stats.WithoutTags)
	}
	if stats.WithoutMetadata != 2 {
		t.Errorf("without_metadata = %d, want 2", stats.WithoutMetadata)
	}
	if stats.Oldest == nil || stats.Newest == nil {
		t.Fatal("expected oldest and newest to be set")
	}
}

func TestContextSnapshotGroupsByCategoryAndPreviewsTruncate(t *testing.T) {
	s := newTestStore(t)
	long := strings.Repeat("x", 300)
	mustCreate(t, s, engine.CreateParams{Content: long, Category: "note", AutoLink: boolPtr(false)})
	mustCreate(t, s, engine.CreateParams{Content: "short", Category: "bug", AutoLink: boolPtr(false)})

	snap, err := s.ContextSnapshot(engine.ContextSnapshotParams{Project: "default", PreviewLen: 50, IncludeTagsIndex: true})
	if err != nil {
		t.Fatalf("context snapshot: %v", err)
	}
	if len(snap.Categories) != 2 {
		t.Fatalf("categories = %d, want 2", len(snap.Categories))
	}
	for _, c := range snap.Categories {
		if c.Category == "note" {
			if len(c.Recent[0].Content) != 50 {
				t.Errorf("preview length = %d, want 50", len(c.Recent[0].Content))
			}
		}
	}
}

func TestGraphExcludesOrphansByDefault(t *testing.T) {
	s := newTestStore(t)
	a := mustCreate(t, s, engine.CreateParams{Content: "linked a", AutoLink: boolPtr(false)})
	b := mustCreate(t, s, engine.CreateParams{Content: "linked b", AutoLink: boolPtr(false)})
	mustCreate(t, s, engine.CreateParams{Content: "orphan", AutoLink: boolPtr(false)})
	if _, err := s.Link(a.ID, b.ID, engine.RelationRelated, 0.5, false); err != nil {
		t.Fatalf("link: %v", err)
	}

	g, err := s.Graph(engine.GraphParams{Project: "default"})
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	if len(g.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2 (orphan excluded)", len(g.Nodes))
	}
	if len(g.Edges) != 1 {
		t.Fatalf("edges = %d, want 1", len(g.Edges))
	}
	if !strings.HasPrefix(g.Diagram, "flowchart LR") {
		t.Errorf("diagram does not start with flowchart LR: %q", g.Diagram)
	}
}

func TestGraphIncludeOrphans(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, engine.CreateParams{Content: "orphan", AutoLink: boolPtr(false)})

	g, err := s.Graph(engine.GraphParams{Project: "default", IncludeOrphans: true})
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	if len(g.Nodes) != 1 {
		t.Fatalf("nodes = %d, want 1", len(g.Nodes))
	}
}

func TestGraphEmptyRendersPlaceholderDiagram(t *testing.T) {
	s := newTestStore(t)
	g, err := s.Graph(engine.GraphParams{Project: "default"})
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	if g.Diagram != "flowchart LR\n    empty[no memories]" {
		t.Errorf("diagram = %q, want empty placeholder", g.Diagram)
	}
}
