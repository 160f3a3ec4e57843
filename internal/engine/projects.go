package engine

import "fmt"

// ListProjects returns every distinct project among alive memories with its
// live memory count, ordered by count descending.
func (s *Store) ListProjects() ([]ProjectCount, error) {
	rows, err := s.db.Query(
		`SELECT project, COUNT(*) FROM memories
		 WHERE expires_at IS NULL OR expires_at > datetime('now')
		 GROUP BY project ORDER BY COUNT(*) DESC`,
	)
	if err != nil {
		return nil, newStorage(err)
	}
	defer rows.Close()

	var out []ProjectCount
	for rows.Next() {
		var p ProjectCount
		if err := rows.Scan(&p.Project, &p.Count); err != nil {
			return nil, newStorage(err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorage(err)
	}
	return out, nil
}

// MigrateToProject reassigns every memory tagged with tag to a different
// project, leaving the tag itself untouched. Returns the number of rows
// moved.
func (s *Store) MigrateToProject(tag, project string) (int, error) {
	project = normalizeProject(project)
	if project == "" {
		return 0, newInvalidInput("project", nil)
	}

	res, err := s.db.Exec(
		`UPDATE memories SET project = ?, updated_at = datetime('now')
		 WHERE EXISTS (SELECT 1 FROM json_each(tags) je WHERE je.value = ?)`,
		project, tag,
	)
	if err != nil {
		return 0, newStorage(fmt.Errorf("migrate to project: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, newStorage(err)
	}
	return int(n), nil
}

// RenameTag replaces oldTag with newTag across every alive memory's tags in
// a project, deduplicating the tag set on each row (renaming into a tag the
// memory already carries collapses rather than producing a duplicate
// entry).
func (s *Store) RenameTag(oldTag, newTag, project string) (RenameTagResult, error) {
	if oldTag == newTag {
		return RenameTagResult{OldTag: oldTag, NewTag: newTag}, nil
	}

	rows, err := s.db.Query(
		`SELECT id, tags FROM memories
		 WHERE project = ? AND (expires_at IS NULL OR expires_at > datetime('now'))
		   AND EXISTS (SELECT 1 FROM json_each(tags) je WHERE je.value = ?)`,
		project, oldTag,
	)
	if err != nil {
		return RenameTagResult{}, newStorage(err)
	}
	type rowT struct {
		id   string
		tags []string
	}
	var toUpdate []rowT
	for rows.Next() {
		var (
			id      string
			tagsRaw string
		)
		if err := rows.Scan(&id, &tagsRaw); err != nil {
			rows.Close()
			return RenameTagResult{}, newStorage(err)
		}
		tags, err := decodeTags(tagsRaw)
		if err != nil {
			rows.Close()
			return RenameTagResult{}, newStorage(err)
		}
		toUpdate = append(toUpdate, rowT{id: id, tags: tags})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return RenameTagResult{}, newStorage(err)
	}

	tx, err := s.beginTxHook()
	if err != nil {
		return RenameTagResult{}, newStorage(err)
	}
	defer tx.Rollback() //nolint:errcheck

	updated := 0
	for _, r := range toUpdate {
		replaced := make([]string, 0, len(r.tags))
		for _, t := range r.tags {
			if t == oldTag {
				replaced = append(replaced, newTag)
			} else {
				replaced = append(replaced, t)
			}
		}
		tagsJSON, err := encodeTags(normalizeTags(replaced))
		if err != nil {
			return RenameTagResult{}, newStorage(err)
		}
		if _, err := s.execHook(tx,
			`UPDATE memories SET tags = ?, updated_at = datetime('now') WHERE id = ?`,
			tagsJSON, r.id,
		); err != nil {
			return RenameTagResult{}, newStorage(fmt.Errorf("rename tag: %w", err))
		}
		updated++
	}

	if err := s.commitHook(tx); err != nil {
		return RenameTagResult{}, newStorage(err)
	}
	return RenameTagResult{Updated: updated, OldTag: oldTag, NewTag: newTag}, nil
}
