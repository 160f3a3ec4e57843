package engine

import (
	"fmt"
	"strings"
)

// buildFilterClause composes the WHERE predicates shared by listWithTotal
// and searchWithTotal: category (case-insensitive exact), tag (membership
// in the tags JSON array), project (exact), metadata[key] == value (JSON
// path extract), created/updated bounds (inclusive), and always the
// alive-only predicate: expired rows are never included.
func buildFilterClause(f ListFilter, alias string) (string, []any) {
	col := func(name string) string {
		if alias == "" {
			return name
		}
		return alias + "." + name
	}

	var clauses []string
	var args []any

	if f.Category != "" {
		clauses = append(clauses, fmt.Sprintf("lower(%s) = lower(?)", col("category")))
		args = append(args, f.Category)
	}
	if f.Tag != "" {
		clauses = append(clauses, fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) je WHERE je.value = ?)", col("tags")))
		args = append(args, f.Tag)
	}
	if f.Project != "" {
		clauses = append(clauses, fmt.Sprintf("%s = ?", col("project")))
		args = append(args, f.Project)
	}
	if f.MetadataKey != "" {
		clauses = append(clauses, fmt.Sprintf("json_extract(%s, ?) = ?", col("metadata")))
		args = append(args, "$."+f.MetadataKey, f.MetadataValue)
	}
	if f.CreatedAfter != "" {
		clauses = append(clauses, fmt.Sprintf("%s >= ?", col("created_at")))
		args = append(args, f.CreatedAfter)
	}
	if f.CreatedBefore != "" {
		clauses = append(clauses, fmt.Sprintf("%s <= ?", col("created_at")))
		args = append(args, f.CreatedBefore)
	}
	if f.UpdatedAfter != "" {
		clauses = append(clauses, fmt.Sprintf("%s >= ?", col("updated_at")))
		args = append(args, f.UpdatedAfter)
	}
	if f.UpdatedBefore != "" {
		clauses = append(clauses, fmt.Sprintf("%s <= ?", col("updated_at")))
		args = append(args, f.UpdatedBefore)
	}

	clauses = append(clauses, fmt.Sprintf("(%s IS NULL OR %s > datetime('now'))", col("expires_at"), col("expires_at")))

	return strings.Join(clauses, " AND "), args
}

func sortClause(sort, alias string) string {
	col := func(name string) string {
		if alias == "" {
			return name
		}
		return alias + "." + name
	}
	switch sort {
	case SortCreatedAtAsc:
		return fmt.Sprintf("%s ASC, %s ASC", col("created_at"), col("rowid"))
	case SortUpdatedAtDesc:
		return fmt.Sprintf("%s DESC", col("updated_at"))
	default:
		return fmt.Sprintf("%s DESC, %s DESC", col("created_at"), col("rowid"))
	}
}

// List returns the filtered, sorted page of memories plus the
// total count of the filtered set, computed in a single query via a window
// count so no second scan is needed.
func (s *Store) List(f ListFilter) (ListResult, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where, args := buildFilterClause(f, "")
	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER () AS total
		FROM memories
		WHERE %s
		ORDER BY %s
		LIMIT ? OFFSET ?
	`, memoryColumns, where, sortClause(f.Sort, ""))
	args = append(args, limit, f.Offset)

	stmt, err := s.stmts.get(listShapeKey(f), query)
	if err != nil {
		return ListResult{}, newStorage(err)
	}
	rows, err := stmt.Query(args...)
	if err != nil {
		return ListResult{}, newStorage(err)
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

// scanMemoryRowWithTotal scans the memoryColumns projection plus a trailing
// window-count column.
func scanMemoryRowWithTotal(row rowScanner) (Memory, int, error) {
	m, total, err := scanRowWithExtraInt(row)
	return m, total, err
}

func scanRowWithExtraInt(row rowScanner) (Memory, int, error) {
	var (
		m       Memory
		tagsRaw string
		metaRaw string
		expires *string
		total   int
	)
	if err := row.Scan(&m.ID, &m.Content, &m.Category, &tagsRaw, &metaRaw, &m.Project, &m.CreatedAt, &m.UpdatedAt, &expires, &total); err != nil {
		return Memory{}, 0, err
	}
	tags, err := decodeTags(tagsRaw)
	if err != nil {
		return Memory{}, 0, err
	}
	metadata, err := decodeMetadata(metaRaw)
	if err != nil {
		return Memory{}, 0, err
	}
	m.Tags = tags
	m.Metadata = metadata
	m.ExpiresAt = expires
	return m, total, nil
}
