package engine_test

import (
	"testing"

	"github.com/Jacksini/engram-mcp/internal/engine"
)

func TestLinkRejectsSelfLoop(t *testing.T) {
	s := newTestStore(t)
	m := mustCreate(t, s, engine.CreateParams{Content: "lonely", AutoLink: boolPtr(false)})
	if _, err := s.Link(m.ID, m.ID, engine.RelationRelated, 0.5, false); !engine.IsInvalidInput(err) {
		t.Fatalf("expected InvalidInput for self-loop, got %v", err)
	}
}

func TestLinkUpsertsAndClampsWeight(t *testing.T) {
	s := newTestStore(t)
	a := mustCreate(t, s, engine.CreateParams{Content: "a", AutoLink: boolPtr(false)})
	b := mustCreate(t, s, engine.CreateParams{Content: "b", AutoLink: boolPtr(false)})

	l, err := s.Link(a.ID, b.ID, engine.RelationCaused, 5.0, false)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if l.Weight != 1.0 {
		t.Errorf("weight = %v, want clamped to 1.0", l.Weight)
	}

	l2, err := s.Link(a.ID, b.ID, engine.RelationSupersedes, -3.0, false)
	if err != nil {
		t.Fatalf("re-link: %v", err)
	}
	if l2.Weight != 0.0 {
		t.Errorf("weight = %v, want clamped to 0.0", l2.Weight)
	}
	if l2.Relation != engine.RelationSupersedes {
		t.Errorf("relation = %q, want updated to %q", l2.Relation, engine.RelationSupersedes)
	}
}

func TestUnlinkReportsWhetherEdgeExisted(t *testing.T) {
	s := newTestStore(t)
	a := mustCreate(t, s, engine.CreateParams{Content: "a", AutoLink: boolPtr(false)})
	b := mustCreate(t, s, engine.CreateParams{Content: "b", AutoLink: boolPtr(false)})
	if _, err := s.Link(a.ID, b.ID, engine.RelationRelated, 0.3, false); err != nil {
		t.Fatalf("link: %v", err)
	}

	existed, err := s.Unlink(a.ID, b.ID)
	if err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if !existed {
		t.Error("expected unlink to report the edge existed")
	}

	existed, err = s.Unlink(a.ID, b.ID)
	if err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if existed {
		t.Error("expected second unlink to report the edge no longer exists")
	}
}

func TestGetRelatedDirections(t *testing.T) {
	s := newTestStore(t)
	a := mustCreate(t, s, engine.CreateParams{Content: "a", AutoLink: boolPtr(false)})
	b := mustCreate(t, s, engine.CreateParams{Content: "b", AutoLink: boolPtr(false)})
	if _, err := s.Link(a.ID, b.ID, engine.RelationRelated, 0.5, false); err != nil {
		t.Fatalf("link: %v", err)
	}

	from, err := s.GetRelated(engine.GetRelatedParams{ID: a.ID, Direction: "from"})
	if err != nil {
		t.Fatalf("get related from: %v", err)
	}
	if len(from) != 1 || from[0].Peer.ID != b.ID || from[0].Direction != "from" {
		t.Fatalf("unexpected from-direction result: %+v", from)
	}

	to, err := s.GetRelated(engine.GetRelatedParams{ID: b.ID, Direction: "to"})
	if err != nil {
		t.Fatalf("get related to: %v", err)
	}
	if len(to) != 1 || to[0].Peer.ID != a.ID || to[0].Direction != "to" {
		t.Fatalf("unexpected to-direction result: %+v", to)
	}
}

func TestGetRelatedDeepTraversesAndSuppressesCycles(t *testing.T) {
	s := newTestStore(t)
	a := mustCreate(t, s, engine.CreateParams{Content: "a", AutoLink: boolPtr(false)})
	b := mustCreate(t, s, engine.CreateParams{Content: "b", AutoLink: boolPtr(false)})
	c := mustCreate(t, s, engine.CreateParams{Content: "c", AutoLink: boolPtr(false)})

	// a -> b -> c -> a (cycle back to the origin)
	if _, err := s.Link(a.ID, b.ID, engine.RelationRelated, 0.5, false); err != nil {
		t.Fatalf("link a->b: %v", err)
	}
	if _, err := s.Link(b.ID, c.ID, engine.RelationRelated, 0.5, false); err != nil {
		t.Fatalf("link b->c: %v", err)
	}
	if _, err := s.Link(c.ID, a.ID, engine.RelationRelated, 0.5, false); err != nil {
		t.Fatalf("link c->a: %v", err)
	}

	nodes, err := s.GetRelatedDeep(engine.GetRelatedDeepParams{ID: a.ID, MaxDepth: 5})
	if err != nil {
		t.Fatalf("get related deep: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("expected exactly b and c reachable (origin excluded, cycle suppressed), got %d: %+v", len(nodes), nodes)
	}
	if nodes[0].Memory.ID != b.ID || nodes[0].Depth != 1 {
		t.Errorf("nodes[0] = %+v, want b at depth 1", nodes[0])
	}
	if nodes[1].Memory.ID != c.ID || nodes[1].Depth != 2 {
		t.Errorf("nodes[1] = %+v, want c at depth 2", nodes[1])
	}
}

func TestGetRelatedDeepMaxDepthClampedTo5(t *testing.T) {
	s := newTestStore(t)
	a := mustCreate(t, s, engine.CreateParams{Content: "a", AutoLink: boolPtr(false)})
	nodes, err := s.GetRelatedDeep(engine.GetRelatedDeepParams{ID: a.ID, MaxDepth: 999})
	if err != nil {
		t.Fatalf("get related deep: %v", err)
	}
	if len(nodes) != 0 {
		t.Fatalf("expected no reachable nodes from an isolated memory, got %d", len(nodes))
	}

	// A chain of seven memories: a requested depth of 999 stops after 5 hops.
	chain := make([]engine.Memory, 7)
	for i := range chain {
		chain[i] = mustCreate(t, s, engine.CreateParams{Content: "hop", AutoLink: boolPtr(false)})
	}
	for i := 0; i+1 < len(chain); i++ {
		if _, err := s.Link(chain[i].ID, chain[i+1].ID, engine.RelationRelated, 0.5, false); err != nil {
			t.Fatalf("link hop %d: %v", i, err)
		}
	}
	deep, err := s.GetRelatedDeep(engine.GetRelatedDeepParams{ID: chain[0].ID, MaxDepth: 999})
	if err != nil {
		t.Fatalf("get related deep: %v", err)
	}
	if len(deep) != 5 {
		t.Fatalf("expected 5 reachable nodes with max depth clamped to 5, got %d", len(deep))
	}
	if deep[4].Memory.ID != chain[5].ID || deep[4].Depth != 5 {
		t.Errorf("deep[4] = %+v, want chain[5] at depth 5", deep[4])
	}
}

func TestAutoLinkSharedTags(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, engine.CreateParams{Content: "first note", Tags: []string{"go", "sqlite"}})
	second := mustCreate(t, s, engine.CreateParams{Content: "second note", Tags: []string{"go", "sqlite", "fts"}})

	related, err := s.GetRelated(engine.GetRelatedParams{ID: second.ID})
	if err != nil {
		t.Fatalf("get related: %v", err)
	}
	if len(related) == 0 {
		t.Fatal("expected auto-link to create an edge from shared tags")
	}
	found := false
	for _, rl := range related {
		if rl.AutoGenerated && rl.Relation == engine.RelationRelated {
			found = true
		}
	}
	if !found {
		t.Error("expected an auto-generated related edge")
	}
}

func TestSuggestLinksDoesNotMutate(t *testing.T) {
	s := newTestStore(t)
	a := mustCreate(t, s, engine.CreateParams{Content: "alpha", Tags: []string{"x", "y"}, AutoLink: boolPtr(false)})
	mustCreate(t, s, engine.CreateParams{Content: "beta", Tags: []string{"x"}, AutoLink: boolPtr(false)})

	suggestions, err := s.SuggestLinks(engine.SuggestLinksParams{ID: a.ID, Project: "default"})
	if err != nil {
		t.Fatalf("suggest links: %v", err)
	}
	if len(suggestions) == 0 {
		t.Fatal("expected at least one suggestion from a shared tag")
	}

	related, err := s.GetRelated(engine.GetRelatedParams{ID: a.ID})
	if err != nil {
		t.Fatalf("get related: %v", err)
	}
	if len(related) != 0 {
		t.Fatalf("suggest_links must not write edges, found %d", len(related))
	}
}
