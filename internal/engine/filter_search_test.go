package engine_test

import (
	"testing"

	"github.com/Jacksini/engram-mcp/internal/engine"
)

func TestListFiltersByCategoryTagAndProject(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, engine.CreateParams{Content: "go note", Category: "dev", Tags: []string{"go"}, Project: "alpha", AutoLink: boolPtr(false)})
	mustCreate(t, s, engine.CreateParams{Content: "rust note", Category: "dev", Tags: []string{"rust"}, Project: "alpha", AutoLink: boolPtr(false)})
	mustCreate(t, s, engine.CreateParams{Content: "other project", Category: "dev", Tags: []string{"go"}, Project: "beta", AutoLink: boolPtr(false)})

	result, err := s.List(engine.ListFilter{Category: "dev", Tag: "go", Project: "alpha"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.Total != 1 || len(result.Memories) != 1 {
		t.Fatalf("expected exactly one match, got total=%d len=%d", result.Total, len(result.Memories))
	}
	if result.Memories[0].Content != "go note" {
		t.Errorf("content = %q, want %q", result.Memories[0].Content, "go note")
	}
}

func TestListExcludesExpiredByDefault(t *testing.T) {
	s := newTestStore(t)
	past := "2000-01-01 00:00:00"
	mustCreate(t, s, engine.CreateParams{Content: "expired", ExpiresAt: &past, AutoLink: boolPtr(false)})
	mustCreate(t, s, engine.CreateParams{Content: "alive", AutoLink: boolPtr(false)})

	result, err := s.List(engine.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("total = %d, want 1", result.Total)
	}
	if result.Memories[0].Content != "alive" {
		t.Errorf("content = %q, want %q", result.Memories[0].Content, "alive")
	}
}

func TestListMetadataFilter(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, engine.CreateParams{Content: "has owner", Metadata: map[string]any{"owner": "ada"}, AutoLink: boolPtr(false)})
	mustCreate(t, s, engine.CreateParams{Content: "no owner", AutoLink: boolPtr(false)})

	result, err := s.List(engine.ListFilter{MetadataKey: "owner", MetadataValue: "ada"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.Total != 1 || result.Memories[0].Content != "has owner" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestListPaginationTotalIsFilteredCount(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		mustCreate(t, s, engine.CreateParams{Content: "item", Category: "batch", AutoLink: boolPtr(false)})
	}
	result, err := s.List(engine.ListFilter{Category: "batch", Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result.Memories) != 2 {
		t.Fatalf("page size = %d, want 2", len(result.Memories))
	}
	if result.Total != 5 {
		t.Fatalf("total = %d, want 5 (unaffected by limit)", result.Total)
	}
}

func TestSearchAnyModeFindsPartialMatch(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, engine.CreateParams{Content: "fix the authentication middleware bug", AutoLink: boolPtr(false)})
	mustCreate(t, s, engine.CreateParams{Content: "unrelated database migration notes", AutoLink: boolPtr(false)})

	result, err := s.Search(engine.SearchParams{Query: "authentication", Mode: engine.SearchModeAny})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("total = %d, want 1", result.Total)
	}
}

func TestSearchEmptyQueryReturnsEmptyResult(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, engine.CreateParams{Content: "something", AutoLink: boolPtr(false)})

	result, err := s.Search(engine.SearchParams{Query: "   ", Mode: engine.SearchModeAny})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(result.Memories) != 0 {
		t.Fatalf("expected no memories for an empty query, got %d", len(result.Memories))
	}
}

func TestSearchAllModeRequiresEveryToken(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, engine.CreateParams{Content: "go concurrency patterns in practice", AutoLink: boolPtr(false)})
	mustCreate(t, s, engine.CreateParams{Content: "go tooling notes", AutoLink: boolPtr(false)})

	result, err := s.Search(engine.SearchParams{Query: "go concurrency", Mode: engine.SearchModeAll})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("total = %d, want 1", result.Total)
	}
}

func TestSearchScopedByProject(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, engine.CreateParams{Content: "shared keyword here", Project: "alpha", AutoLink: boolPtr(false)})
	mustCreate(t, s, engine.CreateParams{Content: "shared keyword here too", Project: "beta", AutoLink: boolPtr(false)})

	result, err := s.Search(engine.SearchParams{
		Query: "keyword", Mode: engine.SearchModeAny,
		Filter: engine.ListFilter{Project: "alpha"},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("total = %d, want 1", result.Total)
	}
}
