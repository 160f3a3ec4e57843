package engine

import (
	"fmt"
	"strings"
)

// compileFTSQuery turns user input into an FTS5 MATCH expression per mode.
// Tokens are split on whitespace, empties dropped, and inner double quotes
// escaped by doubling them before each token is quoted. An empty token set
// returns ("", false): the caller must short-circuit rather than issue a
// query, since FTS5 has no "match nothing" expression.
func compileFTSQuery(query, mode string, nearDistance int) (string, bool) {
	fields := strings.Fields(query)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		tokens = append(tokens, f)
	}
	if len(tokens) == 0 {
		return "", false
	}

	switch mode {
	case SearchModeAll:
		parts := make([]string, len(tokens))
		for i, t := range tokens {
			parts[i] = fmt.Sprintf(`"%s"*`, t)
		}
		return strings.Join(parts, " "), true

	case SearchModeNear:
		d := nearDistance
		if d < 1 || d > 100 {
			d = 10
		}
		quoted := make([]string, len(tokens))
		for i, t := range tokens {
			quoted[i] = fmt.Sprintf(`"%s"`, t)
		}
		return fmt.Sprintf("NEAR(%s, %d)", strings.Join(quoted, " "), d), true

	default: // any
		parts := make([]string, len(tokens))
		for i, t := range tokens {
			parts[i] = fmt.Sprintf(`"%s"*`, t)
		}
		return strings.Join(parts, " OR "), true
	}
}

// Search combines the compiled FTS match with the standard filter
// predicates and a window-count total. Default ordering is FTS rank; the
// caller may override with one of the list sort orders via Filter.Sort.
func (s *Store) Search(p SearchParams) (ListResult, error) {
	ftsExpr, ok := compileFTSQuery(p.Query, p.Mode, p.NearDistance)
	if !ok {
		return ListResult{}, nil
	}

	limit := p.Filter.Limit
	if limit <= 0 {
		limit = 50
	}

	where, args := buildFilterClause(p.Filter, "m")
	order := "fts.rank"
	if p.Filter.Sort != "" {
		order = sortClause(p.Filter.Sort, "m")
	}

	query := fmt.Sprintf(`
		SELECT m.id, m.content, m.category, m.tags, m.metadata, m.project, m.created_at, m.updated_at, m.expires_at,
		       COUNT(*) OVER () AS total
		FROM memories_fts fts
		JOIN memories m ON m.rowid = fts.rowid
		WHERE memories_fts MATCH ? AND %s
		ORDER BY %s
		LIMIT ? OFFSET ?
	`, where, order)

	allArgs := append([]any{ftsExpr}, args...)
	allArgs = append(allArgs, limit, p.Filter.Offset)

	stmt, err := s.stmts.get(searchShapeKey(p), query)
	if err != nil {
		return ListResult{}, newStorage(fmt.Errorf("search: %w", err))
	}
	rows, err := stmt.Query(allArgs...)
	if err != nil {
		return ListResult{}, newStorage(fmt.Errorf("search: %w", err))
	}
	defer rows.Close()

	var result ListResult
	for rows.Next() {
		m, total, err := scanMemoryRowWithTotal(sqlRowScanner{rows: rows})
		if err != nil {
			return ListResult{}, newStorage(err)
		}
		result.Memories = append(result.Memories, m)
		result.Total = total
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, newStorage(err)
	}
	return result, nil
}

// ftsRankFor returns the FTS5 rank of a candidate memory against an
// any-mode query over the given prefix tokens, used by the content-
// similarity auto-link heuristic. Returns (0, false) if the candidate does
// not match.
func ftsRankFor(s *Store, candidateID, ftsExpr string) (float64, bool) {
	var rank float64
	err := s.db.QueryRow(
		`SELECT fts.rank FROM memories_fts fts JOIN memories m ON m.rowid = fts.rowid
		 WHERE memories_fts MATCH ? AND m.id = ?`,
		ftsExpr, candidateID,
	).Scan(&rank)
	if err != nil {
		return 0, false
	}
	return rank, true
}

// firstTokens returns up to n whitespace-separated tokens of s.
func firstTokens(s string, n int) []string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return fields
}
