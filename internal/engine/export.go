package engine

import (
	"fmt"
	"strings"
)

// Graph returns every node and edge in a project (optionally filtered by
// relation, optionally excluding memories with no incident edges) plus a
// deterministic Mermaid flowchart rendering of the same data.
func (s *Store) Graph(p GraphParams) (Graph, error) {
	nodeQuery := `SELECT id, content, category, tags FROM memories
		WHERE project = ? AND (expires_at IS NULL OR expires_at > datetime('now'))`
	if !p.IncludeOrphans {
		nodeQuery += ` AND (
			EXISTS (SELECT 1 FROM memory_links l WHERE l.from_id = memories.id)
			OR EXISTS (SELECT 1 FROM memory_links l WHERE l.to_id = memories.id)
		)`
	}

	rows, err := s.db.Query(nodeQuery, p.Project)
	if err != nil {
		return Graph{}, newStorage(err)
	}
	var g Graph
	ids := make(map[string]bool)
	for rows.Next() {
		var (
			n       GraphNode
			tagsRaw string
		)
		if err := rows.Scan(&n.ID, &n.Preview, &n.Category, &tagsRaw); err != nil {
			rows.Close()
			return Graph{}, newStorage(err)
		}
		tags, err := decodeTags(tagsRaw)
		if err != nil {
			rows.Close()
			return Graph{}, newStorage(err)
		}
		n.Tags = tags
		n.Preview = previewContent(collapseNewlines(n.Preview), 60)
		g.Nodes = append(g.Nodes, n)
		ids[n.ID] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Graph{}, newStorage(err)
	}

	edgeQuery := `SELECT l.from_id, l.to_id, l.relation FROM memory_links l
		JOIN memories fm ON fm.id = l.from_id
		JOIN memories tm ON tm.id = l.to_id
		WHERE fm.project = ? AND tm.project = ?`
	args := []any{p.Project, p.Project}
	if p.Relation != "" {
		edgeQuery += " AND l.relation = ?"
		args = append(args, p.Relation)
	}
	edgeQuery += " ORDER BY l.created_at DESC"

	erows, err := s.db.Query(edgeQuery, args...)
	if err != nil {
		return Graph{}, newStorage(err)
	}
	for erows.Next() {
		var e GraphEdge
		if err := erows.Scan(&e.From, &e.To, &e.Relation); err != nil {
			erows.Close()
			return Graph{}, newStorage(err)
		}
		if ids[e.From] && ids[e.To] {
			g.Edges = append(g.Edges, e)
		}
	}
	erows.Close()
	if err := erows.Err(); err != nil {
		return Graph{}, newStorage(err)
	}

	g.Diagram = renderFlowchart(g)
	return g, nil
}

// renderFlowchart builds a deterministic Mermaid "flowchart LR" diagram: one
// line per node declaration, one per edge, each id shortened and each label
// escaped so it can't break out of the Mermaid node-label syntax.
func renderFlowchart(g Graph) string {
	if len(g.Nodes) == 0 && len(g.Edges) == 0 {
		return "flowchart LR\n    empty[no memories]"
	}

	var b strings.Builder
	b.WriteString("flowchart LR\n")
	for _, n := range g.Nodes {
		label := escapeMermaidLabel(previewContent(n.Preview, 40))
		fmt.Fprintf(&b, "    %s[\"%s (%s)\"]\n", shortNodeID(n.ID), label, n.Category)
	}
	for _, e := range g.Edges {
		fmt.Fprintf(&b, "    %s -- %s --> %s\n", shortNodeID(e.From), e.Relation, shortNodeID(e.To))
	}
	return b.String()
}

// shortNodeID turns a UUID into a Mermaid-safe node identifier: hyphens
// aren't valid in an unquoted node id, so they're stripped, and the first 8
// hex characters are enough to stay readable without colliding in practice.
func shortNodeID(id string) string {
	stripped := strings.ReplaceAll(id, "-", "")
	if len(stripped) > 8 {
		stripped = stripped[:8]
	}
	return "n" + stripped
}

func escapeMermaidLabel(s string) string {
	s = strings.ReplaceAll(s, `"`, "'")
	s = strings.ReplaceAll(s, "<", " ")
	s = strings.ReplaceAll(s, ">", " ")
	return s
}

// collapseNewlines flattens a multi-line preview into one line, matching the
// single-line preview format graph nodes render.
func collapseNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}
