package engine

import (
	"database/sql"
	"fmt"
	"sync"
)

// statementCache holds compiled prepared queries keyed by a synthetic shape
// tag, independent of parameter values. A fixed set is compiled eagerly for
// hot single-row CRUD paths; filter and search shapes are built lazily on
// first use and memoized from then on.
type statementCache struct {
	db *sql.DB

	mu    sync.Mutex
	stmts map[string]*sql.Stmt
}

func newStatementCache(s *Store) *statementCache {
	c := &statementCache{db: s.db, stmts: make(map[string]*sql.Stmt)}
	c.prepareHotSet()
	return c
}

// prepareHotSet compiles the fixed set of statements used by single-row
// memory reads and deletes and by single-link reads, so the first call on
// each hot path does not pay a prepare cost.
func (c *statementCache) prepareHotSet() {
	hot := map[string]string{
		"get_by_id":     `SELECT id, content, category, tags, metadata, project, created_at, updated_at, expires_at FROM memories WHERE id = ? AND (expires_at IS NULL OR expires_at > datetime('now'))`,
		"get_by_id_any": `SELECT id, content, category, tags, metadata, project, created_at, updated_at, expires_at FROM memories WHERE id = ?`,
		"get_link":      `SELECT from_id, to_id, relation, weight, auto_generated, created_at FROM memory_links WHERE from_id = ? AND to_id = ?`,
		"delete_by_id":  `DELETE FROM memories WHERE id = ?`,
	}
	for key, query := range hot {
		// Best-effort: a statement that fails to prepare here is not
		// cached, and get() prepares it again on first use.
		stmt, err := c.db.Prepare(query)
		if err == nil {
			c.stmts[key] = stmt
		}
	}
}

// get returns the cached prepared statement for key, compiling and
// memoizing it from query if absent.
func (c *statementCache) get(key, query string) (*sql.Stmt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if stmt, ok := c.stmts[key]; ok {
		return stmt, nil
	}
	stmt, err := c.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("prepare %s: %w", key, err)
	}
	c.stmts[key] = stmt
	return stmt, nil
}

func (c *statementCache) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, stmt := range c.stmts {
		_ = stmt.Close()
	}
	c.stmts = make(map[string]*sql.Stmt)
}

// listShapeKey builds the composite cache key for a listWithTotal query:
// list_{c?,t?,p?,m?,d?,u?}_{sort}, encoding which optional predicates are
// present, not their values.
func listShapeKey(f ListFilter) string {
	shape := ""
	if f.Category != "" {
		shape += "c"
	}
	if f.Tag != "" {
		shape += "t"
	}
	if f.Project != "" {
		shape += "p"
	}
	if f.MetadataKey != "" {
		shape += "m"
	}
	if f.CreatedAfter != "" || f.CreatedBefore != "" {
		shape += "d"
	}
	if f.UpdatedAfter != "" || f.UpdatedBefore != "" {
		shape += "u"
	}
	if shape == "" {
		shape = "none"
	}
	return fmt.Sprintf("list_%s_%s", shape, sortKey(f.Sort))
}

// searchShapeKey builds the composite cache key for a searchWithTotal
// query: search_{c?,t?,p?,m?,d?,u?}{_sort?}.
func searchShapeKey(p SearchParams) string {
	shape := ""
	if p.Filter.Category != "" {
		shape += "c"
	}
	if p.Filter.Tag != "" {
		shape += "t"
	}
	if p.Filter.Project != "" {
		shape += "p"
	}
	if p.Filter.MetadataKey != "" {
		shape += "m"
	}
	if p.Filter.CreatedAfter != "" || p.Filter.CreatedBefore != "" {
		shape += "d"
	}
	if p.Filter.UpdatedAfter != "" || p.Filter.UpdatedBefore != "" {
		shape += "u"
	}
	if shape == "" {
		shape = "none"
	}
	key := fmt.Sprintf("search_%s", shape)
	if p.Filter.Sort != "" {
		key += "_" + sortKey(p.Filter.Sort)
	}
	return key
}

func sortKey(sort string) string {
	switch sort {
	case SortCreatedAtAsc:
		return "created_at_asc"
	case SortUpdatedAtDesc:
		return "updated_at_desc"
	default:
		return "created_at_desc"
	}
}
