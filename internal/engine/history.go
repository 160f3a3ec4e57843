package engine

import "fmt"

const historyColumns = `history_id, memory_id, operation, content, category, tags, metadata, project, expires_at, changed_at`

func scanHistoryRow(row rowScanner) (HistoryEntry, error) {
	var (
		h       HistoryEntry
		tagsRaw string
		metaRaw string
		expires *string
	)
	if err := row.Scan(
		&h.HistoryID, &h.MemoryID, &h.Operation, &h.Content, &h.Category, &tagsRaw, &metaRaw,
		&h.Project, &expires, &h.ChangedAt,
	); err != nil {
		return HistoryEntry{}, err
	}
	tags, err := decodeTags(tagsRaw)
	if err != nil {
		return HistoryEntry{}, err
	}
	metadata, err := decodeMetadata(metaRaw)
	if err != nil {
		return HistoryEntry{}, err
	}
	h.Tags = tags
	h.Metadata = metadata
	h.ExpiresAt = expires
	return h, nil
}

// GetHistory returns the change log for a memory, newest first, with a
// window-count total. Default limit 50. History rows outlive deletion, so a
// deleted memory's history is still returned; NotFound is returned only when
// the id has no history rows and no memory row, live or expired.
func (s *Store) GetHistory(p GetHistoryParams) (HistoryResult, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}

	var anyRow int
	err := s.db.QueryRow(`SELECT 1 FROM memory_history WHERE memory_id = ? LIMIT 1`, p.MemoryID).Scan(&anyRow)
	if err != nil {
		if _, getErr := s.getByIDAny(p.MemoryID); getErr != nil {
			return HistoryResult{}, getErr
		}
	}

	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER () AS total
		FROM memory_history
		WHERE memory_id = ?
		ORDER BY changed_at DESC, history_id DESC
		LIMIT ? OFFSET ?
	`, historyColumns)

	rows, err := s.queryItHook(s.db, query, p.MemoryID, limit, p.Offset)
	if err != nil {
		return HistoryResult{}, newStorage(err)
	}
	defer rows.Close()

	var result HistoryResult
	for rows.Next() {
		var (
			h       HistoryEntry
			tagsRaw string
			metaRaw string
			expires *string
			total   int
		)
		if err := rows.Scan(
			&h.HistoryID, &h.MemoryID, &h.Operation, &h.Content, &h.Category, &tagsRaw, &metaRaw,
			&h.Project, &expires, &h.ChangedAt, &total,
		); err != nil {
			return HistoryResult{}, newStorage(err)
		}
		tags, err := decodeTags(tagsRaw)
		if err != nil {
			return HistoryResult{}, newStorage(err)
		}
		metadata, err := decodeMetadata(metaRaw)
		if err != nil {
			return HistoryResult{}, newStorage(err)
		}
		h.Tags = tags
		h.Metadata = metadata
		h.ExpiresAt = expires
		result.Entries = append(result.Entries, h)
		result.Total = total
	}
	if err := rows.Err(); err != nil {
		return HistoryResult{}, newStorage(err)
	}
	return result, nil
}

// Restore re-applies a past history snapshot as an update, which in
// turn writes a fresh history row for the restore itself. Returns NotFound
// if the memory doesn't exist, or if history_id doesn't belong to
// memory_id.
func (s *Store) Restore(p RestoreParams) (*Memory, error) {
	if _, err := s.getByIDAny(p.MemoryID); err != nil {
		return nil, err
	}

	stmt, err := s.db.Query(`SELECT `+historyColumns+` FROM memory_history WHERE history_id = ? AND memory_id = ?`, p.HistoryID, p.MemoryID)
	if err != nil {
		return nil, newStorage(err)
	}
	defer stmt.Close()

	if !stmt.Next() {
		return nil, newNotFound(fmt.Sprintf("history %d for memory %s", p.HistoryID, p.MemoryID))
	}
	snapshot, err := scanHistoryRow(sqlRowScanner{rows: stmt})
	if err != nil {
		return nil, newStorage(err)
	}
	stmt.Close()

	content := snapshot.Content
	category := snapshot.Category
	project := snapshot.Project
	restored, err := s.Update(p.MemoryID, UpdateParams{
		Content:    &content,
		Category:   &category,
		Tags:       snapshot.Tags,
		Metadata:   snapshot.Metadata,
		Project:    &project,
		ExpiresSet: true,
		ExpiresAt:  snapshot.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}
	return &restored, nil
}
