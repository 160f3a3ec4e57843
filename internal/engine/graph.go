package engine

import (
	"database/sql"
	"fmt"
	"strings"
)

const linkColumns = `from_id, to_id, relation, weight, auto_generated, created_at`

func scanLinkRow(row rowScanner) (Link, error) {
	var (
		l      Link
		auto   int
	)
	if err := row.Scan(&l.FromID, &l.ToID, &l.Relation, &l.Weight, &auto, &l.CreatedAt); err != nil {
		return Link{}, err
	}
	l.AutoGenerated = auto != 0
	return l, nil
}

func clampWeight(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

// Link upserts the edge (from, to): insert if absent, update
// relation/weight if present. Self-loops are rejected — the tool boundary's
// responsibility per spec, enforced here defensively too.
func (s *Store) Link(from, to, relation string, weight float64, autoGenerated bool) (Link, error) {
	if from == to {
		return Link{}, newInvalidInput("self-loop", nil)
	}
	if relation == "" {
		relation = RelationRelated
	}
	weight = clampWeight(weight)
	auto := 0
	if autoGenerated {
		auto = 1
	}

	_, err := s.db.Exec(
		`INSERT INTO memory_links (from_id, to_id, relation, weight, auto_generated)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (from_id, to_id) DO UPDATE SET relation = excluded.relation, weight = excluded.weight`,
		from, to, relation, weight, auto,
	)
	if err != nil {
		return Link{}, newStorage(fmt.Errorf("upsert link: %w", err))
	}
	return s.GetLink(from, to)
}

// UpdateLink changes the relation of an existing edge. NotFound if absent.
func (s *Store) UpdateLink(from, to, relation string) (Link, error) {
	res, err := s.db.Exec(`UPDATE memory_links SET relation = ? WHERE from_id = ? AND to_id = ?`, relation, from, to)
	if err != nil {
		return Link{}, newStorage(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Link{}, newStorage(err)
	}
	if n == 0 {
		return Link{}, newNotFound(fmt.Sprintf("%s->%s", from, to))
	}
	return s.GetLink(from, to)
}

// Unlink removes the edge if present, reporting whether it existed.
func (s *Store) Unlink(from, to string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM memory_links WHERE from_id = ? AND to_id = ?`, from, to)
	if err != nil {
		return false, newStorage(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, newStorage(err)
	}
	return n > 0, nil
}

// GetLink returns the edge between from and to, or NotFound.
func (s *Store) GetLink(from, to string) (Link, error) {
	stmt, err := s.stmts.get("get_link", `SELECT `+linkColumns+` FROM memory_links WHERE from_id = ? AND to_id = ?`)
	if err != nil {
		return Link{}, newStorage(err)
	}
	l, err := scanLinkRow(sqlRowAdapter{row: stmt.QueryRow(from, to)})
	if err == sql.ErrNoRows {
		return Link{}, newNotFound(fmt.Sprintf("%s->%s", from, to))
	}
	if err != nil {
		return Link{}, newStorage(err)
	}
	return l, nil
}

// GetRelated returns edges touching id, each paired with the peer memory.
// direction selects from/to/both; "both" concatenates both sides.
func (s *Store) GetRelated(p GetRelatedParams) ([]RelatedLink, error) {
	direction := p.Direction
	if direction == "" {
		direction = "both"
	}

	var out []RelatedLink
	if direction == "from" || direction == "both" {
		rows, err := s.relatedRows(p.ID, p.Relation, true)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	if direction == "to" || direction == "both" {
		rows, err := s.relatedRows(p.ID, p.Relation, false)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (s *Store) relatedRows(id, relation string, outgoing bool) ([]RelatedLink, error) {
	peerCol, selfCol, direction := "to_id", "from_id", "from"
	if !outgoing {
		peerCol, selfCol, direction = "from_id", "to_id", "to"
	}

	query := fmt.Sprintf(`
		SELECT l.relation, l.weight, l.auto_generated, l.created_at, %s
		FROM memory_links l JOIN memories m ON m.id = l.%s
		WHERE l.%s = ?
	`, memoryColumnsAliased("m"), peerCol, selfCol)
	args := []any{id}
	if relation != "" {
		query += " AND l.relation = ?"
		args = append(args, relation)
	}

	rows, err := s.queryItHook(s.db, query, args...)
	if err != nil {
		return nil, newStorage(err)
	}
	defer rows.Close()

	var out []RelatedLink
	for rows.Next() {
		rl, err := scanRelatedRow(rows, direction)
		if err != nil {
			return nil, newStorage(err)
		}
		out = append(out, rl)
	}
	return out, rows.Err()
}

func memoryColumnsAliased(alias string) string {
	cols := strings.Split(memoryColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func scanRelatedRow(row rowScanner, direction string) (RelatedLink, error) {
	var (
		rl      RelatedLink
		auto    int
		tagsRaw string
		metaRaw string
		expires *string
	)
	if err := row.Scan(
		&rl.Relation, &rl.Weight, &auto, &rl.CreatedAt,
		&rl.Peer.ID, &rl.Peer.Content, &rl.Peer.Category, &tagsRaw, &metaRaw, &rl.Peer.Project,
		&rl.Peer.CreatedAt, &rl.Peer.UpdatedAt, &expires,
	); err != nil {
		return RelatedLink{}, err
	}
	tags, err := decodeTags(tagsRaw)
	if err != nil {
		return RelatedLink{}, err
	}
	metadata, err := decodeMetadata(metaRaw)
	if err != nil {
		return RelatedLink{}, err
	}
	rl.Peer.Tags = tags
	rl.Peer.Metadata = metadata
	rl.Peer.ExpiresAt = expires
	rl.AutoGenerated = auto != 0
	rl.Direction = direction
	return rl, nil
}

// ListLinks is a raw edge listing with a window-count total, ordered by
// edge creation time descending. Default limit 50.
func (s *Store) ListLinks(p ListLinksParams) (result struct {
	Links []Link
	Total int
}, err error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}

	var clauses []string
	var args []any
	if p.From != "" {
		clauses = append(clauses, "from_id = ?")
		args = append(args, p.From)
	}
	if p.To != "" {
		clauses = append(clauses, "to_id = ?")
		args = append(args, p.To)
	}
	if p.Relation != "" {
		clauses = append(clauses, "relation = ?")
		args = append(args, p.Relation)
	}
	where := "1=1"
	if len(clauses) > 0 {
		where = strings.Join(clauses, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER () AS total
		FROM memory_links
		WHERE %s
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, linkColumns, where)
	args = append(args, limit, p.Offset)

	rows, qerr := s.queryItHook(s.db, query, args...)
	if qerr != nil {
		return result, newStorage(qerr)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l     Link
			auto  int
			total int
		)
		if serr := rows.Scan(&l.FromID, &l.ToID, &l.Relation, &l.Weight, &auto, &l.CreatedAt, &total); serr != nil {
			return result, newStorage(serr)
		}
		l.AutoGenerated = auto != 0
		result.Links = append(result.Links, l)
		result.Total = total
	}
	if rerr := rows.Err(); rerr != nil {
		return result, newStorage(rerr)
	}
	return result, nil
}

// GetRelatedDeep traverses outgoing edges breadth-first from id up to
// max_depth hops, retaining the minimum depth at which each node is
// reached. Cycle suppression uses an explicit visited set rather than a
// path string, since BFS with a global visited set already guarantees
// minimum-depth-first discovery and never revisits a node. Results are
// scoped to the origin's project, optionally filtered by relation, ordered
// by depth ascending, capped at limit. The origin is never included.
func (s *Store) GetRelatedDeep(p GetRelatedDeepParams) ([]DeepNode, error) {
	origin, err := s.GetByID(p.ID)
	if err != nil {
		return nil, err
	}

	maxDepth := p.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}
	if maxDepth > 5 {
		maxDepth = 5
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}

	type queueItem struct {
		id    string
		depth int
	}

	visited := map[string]int{origin.ID: 0}
	queue := []queueItem{{id: origin.ID, depth: 0}}
	order := []string{}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}

		query := `SELECT to_id FROM memory_links WHERE from_id = ?`
		args := []any{cur.id}
		if p.Relation != "" {
			query += " AND relation = ?"
			args = append(args, p.Relation)
		}

		rows, err := s.queryItHook(s.db, query, args...)
		if err != nil {
			return nil, newStorage(err)
		}
		var targets []string
		for rows.Next() {
			var target string
			if err := rows.Scan(&target); err != nil {
				rows.Close()
				return nil, newStorage(err)
			}
			targets = append(targets, target)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, newStorage(err)
		}

		for _, target := range targets {
			if _, seen := visited[target]; seen {
				continue
			}
			visited[target] = cur.depth + 1
			order = append(order, target)
			queue = append(queue, queueItem{id: target, depth: cur.depth + 1})
		}
	}

	var nodes []DeepNode
	for _, id := range order {
		m, err := s.GetByID(id)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if m.Project != origin.Project {
			continue
		}
		nodes = append(nodes, DeepNode{Memory: m, Depth: visited[id]})
	}

	sortDeepNodesByDepth(nodes)
	if len(nodes) > limit {
		nodes = nodes[:limit]
	}
	return nodes, nil
}

func sortDeepNodesByDepth(nodes []DeepNode) {
	for i := 1; i < len(nodes); i++ {
		j := i
		for j > 0 && nodes[j-1].Depth > nodes[j].Depth {
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
			j--
		}
	}
}
