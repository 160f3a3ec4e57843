package engine

import (
	"fmt"
	"math"
)

// Stats aggregates counts, category/tag breakdowns, and content-length
// stats over alive memories in a project, each as its own targeted query —
// the aggregates don't share a shape with the row-listing queries, so a
// window function doesn't help here.
func (s *Store) Stats(project string) (Stats, error) {
	var stats Stats

	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM memories WHERE project = ? AND (expires_at IS NULL OR expires_at > datetime('now'))`,
		project,
	).Scan(&stats.TotalLive)
	if err != nil {
		return Stats{}, newStorage(err)
	}

	catRows, err := s.db.Query(
		`SELECT category, COUNT(*) FROM memories
		 WHERE project = ? AND (expires_at IS NULL OR expires_at > datetime('now'))
		 GROUP BY category ORDER BY COUNT(*) DESC`,
		project,
	)
	if err != nil {
		return Stats{}, newStorage(err)
	}
	for catRows.Next() {
		var c CategoryCount
		if err := catRows.Scan(&c.Category, &c.Count); err != nil {
			catRows.Close()
			return Stats{}, newStorage(err)
		}
		stats.ByCategory = append(stats.ByCategory, c)
	}
	catRows.Close()
	if err := catRows.Err(); err != nil {
		return Stats{}, newStorage(err)
	}

	tagRows, err := s.db.Query(
		`SELECT je.value AS tag, COUNT(*) AS n
		 FROM memories m, json_each(m.tags) je
		 WHERE m.project = ? AND (m.expires_at IS NULL OR m.expires_at > datetime('now'))
		 GROUP BY je.value ORDER BY n DESC LIMIT 20`,
		project,
	)
	if err != nil {
		return Stats{}, newStorage(err)
	}
	for tagRows.Next() {
		var t TagCount
		if err := tagRows.Scan(&t.Tag, &t.Count); err != nil {
			tagRows.Close()
			return Stats{}, newStorage(err)
		}
		stats.TopTags = append(stats.TopTags, t)
	}
	tagRows.Close()
	if err := tagRows.Err(); err != nil {
		return Stats{}, newStorage(err)
	}

	if oldest, err := s.edgeMemory(project, "ASC"); err == nil {
		stats.Oldest = oldest
	} else if !IsNotFound(err) {
		return Stats{}, err
	}
	if newest, err := s.edgeMemory(project, "DESC"); err == nil {
		stats.Newest = newest
	} else if !IsNotFound(err) {
		return Stats{}, err
	}

	var avgLen float64
	err = s.db.QueryRow(
		`SELECT COALESCE(AVG(LENGTH(content)), 0) FROM memories
		 WHERE project = ? AND (expires_at IS NULL OR expires_at > datetime('now'))`,
		project,
	).Scan(&avgLen)
	if err != nil {
		return Stats{}, newStorage(err)
	}
	stats.AvgContentLength = int(math.Round(avgLen))

	err = s.db.QueryRow(
		`SELECT COUNT(*) FROM memories WHERE project = ? AND (expires_at IS NULL OR expires_at > datetime('now')) AND tags = '[]'`,
		project,
	).Scan(&stats.WithoutTags)
	if err != nil {
		return Stats{}, newStorage(err)
	}

	err = s.db.QueryRow(
		`SELECT COUNT(*) FROM memories WHERE project = ? AND (expires_at IS NULL OR expires_at > datetime('now')) AND metadata = '{}'`,
		project,
	).Scan(&stats.WithoutMetadata)
	if err != nil {
		return Stats{}, newStorage(err)
	}

	return stats, nil
}

func (s *Store) edgeMemory(project, order string) (*Memory, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM memories
		 WHERE project = ? AND (expires_at IS NULL OR expires_at > datetime('now'))
		 ORDER BY created_at %s, rowid %s LIMIT 1`,
		memoryColumns, order, order,
	)
	row := s.db.QueryRow(query, project)
	m, err := scanMemoryRow(sqlRowAdapter{row: row})
	if err != nil {
		return nil, newNotFound(project)
	}
	return &m, nil
}

// ContextSnapshot returns, per category, the count and the N most recent
// alive memories (trimmed to PreviewLen), plus an optional tag frequency
// index over the same project — a single-session-sized summary an agent can load
// without paging through the full store.
func (s *Store) ContextSnapshot(p ContextSnapshotParams) (ContextSnapshot, error) {
	recentN := p.RecentPerCategory
	if recentN <= 0 {
		recentN = 3
	}
	previewLen := p.PreviewLen
	if previewLen <= 0 {
		previewLen = 160
	}

	catRows, err := s.db.Query(
		`SELECT category, COUNT(*) FROM memories
		 WHERE project = ? AND (expires_at IS NULL OR expires_at > datetime('now'))
		 GROUP BY category ORDER BY category ASC`,
		p.Project,
	)
	if err != nil {
		return ContextSnapshot{}, newStorage(err)
	}
	var categories []string
	var snapshot ContextSnapshot
	for catRows.Next() {
		var cs CategorySnapshot
		if err := catRows.Scan(&cs.Category, &cs.Total); err != nil {
			catRows.Close()
			return ContextSnapshot{}, newStorage(err)
		}
		categories = append(categories, cs.Category)
		snapshot.Categories = append(snapshot.Categories, cs)
	}
	catRows.Close()
	if err := catRows.Err(); err != nil {
		return ContextSnapshot{}, newStorage(err)
	}

	for i, cat := range categories {
		rows, err := s.db.Query(
			`SELECT id, content, category, tags, project FROM memories
			 WHERE project = ? AND category = ? AND (expires_at IS NULL OR expires_at > datetime('now'))
			 ORDER BY created_at DESC LIMIT ?`,
			p.Project, cat, recentN,
		)
		if err != nil {
			return ContextSnapshot{}, newStorage(err)
		}
		for rows.Next() {
			var (
				e       SnapshotEntry
				tagsRaw string
			)
			if err := rows.Scan(&e.ID, &e.Content, &e.Category, &tagsRaw, &e.Project); err != nil {
				rows.Close()
				return ContextSnapshot{}, newStorage(err)
			}
			tags, err := decodeTags(tagsRaw)
			if err != nil {
				rows.Close()
				return ContextSnapshot{}, newStorage(err)
			}
			e.Tags = tags
			if len(e.Content) > previewLen {
				e.Content = e.Content[:previewLen]
			}
			snapshot.Categories[i].Recent = append(snapshot.Categories[i].Recent, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return ContextSnapshot{}, newStorage(err)
		}
	}

	if p.IncludeTagsIndex {
		tagRows, err := s.db.Query(
			`SELECT je.value, COUNT(*) FROM memories m, json_each(m.tags) je
			 WHERE m.project = ? AND (m.expires_at IS NULL OR m.expires_at > datetime('now'))
			 GROUP BY je.value`,
			p.Project,
		)
		if err != nil {
			return ContextSnapshot{}, newStorage(err)
		}
		snapshot.TagsIndex = make(map[string]int)
		for tagRows.Next() {
			var tag string
			var n int
			if err := tagRows.Scan(&tag, &n); err != nil {
				tagRows.Close()
				return ContextSnapshot{}, newStorage(err)
			}
			snapshot.TagsIndex[tag] = n
		}
		tagRows.Close()
		if err := tagRows.Err(); err != nil {
			return ContextSnapshot{}, newStorage(err)
		}
	}

	return snapshot, nil
}
