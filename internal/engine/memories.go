package engine

import (
	"database/sql"
	"fmt"
)

// scanMemoryRow reads the standard memories projection used by get/list/
// search into a Memory, decoding its JSON tags and metadata columns.
func scanMemoryRow(row rowScanner) (Memory, error) {
	var (
		m        Memory
		tagsRaw  string
		metaRaw  string
		expires  sql.NullString
	)
	if err := row.Scan(&m.ID, &m.Content, &m.Category, &tagsRaw, &metaRaw, &m.Project, &m.CreatedAt, &m.UpdatedAt, &expires); err != nil {
		return Memory{}, err
	}
	tags, err := decodeTags(tagsRaw)
	if err != nil {
		return Memory{}, err
	}
	metadata, err := decodeMetadata(metaRaw)
	if err != nil {
		return Memory{}, err
	}
	m.Tags = tags
	m.Metadata = metadata
	if expires.Valid {
		m.ExpiresAt = &expires.String
	}
	return m, nil
}

const memoryColumns = `id, content, category, tags, metadata, project, created_at, updated_at, expires_at`

// Create inserts a new memory, optionally deduplicating by content hash and
// running auto-link inference. Returns InvalidInput if content is empty
// after trimming.
func (s *Store) Create(p CreateParams) (Memory, bool, error) {
	content := normalizeContent(p.Content)
	if content == "" {
		return Memory{}, false, newInvalidInput("content", nil)
	}
	category := normalizeCategory(p.Category)
	tags := normalizeTags(p.Tags)
	project := normalizeProject(p.Project)
	if project == "" {
		project = s.cfg.DefaultProject
	}

	if p.Dedup {
		if existing, ok, err := s.findLiveDuplicate(content, project); err != nil {
			return Memory{}, false, newStorage(err)
		} else if ok {
			return existing, true, nil
		}
	}

	tagsJSON, err := encodeTags(tags)
	if err != nil {
		return Memory{}, false, newStorage(err)
	}
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := encodeMetadata(metadata)
	if err != nil {
		return Memory{}, false, newStorage(err)
	}

	id := newID()
	_, err = s.db.Exec(
		`INSERT INTO memories (id, content, category, tags, metadata, project, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, content, category, tagsJSON, metaJSON, project, p.ExpiresAt,
	)
	if err != nil {
		return Memory{}, false, newStorage(fmt.Errorf("insert memory: %w", err))
	}

	created, err := s.getByIDAny(id)
	if err != nil {
		return Memory{}, false, newStorage(err)
	}

	autoLink := p.AutoLink == nil || *p.AutoLink
	if autoLink {
		s.runAutoLink(created)
	}

	return created, false, nil
}

func (s *Store) findLiveDuplicate(content, project string) (Memory, bool, error) {
	hash := hashContent(content)
	rows, err := s.db.Query(
		`SELECT `+memoryColumns+` FROM memories
		 WHERE project = ? AND (expires_at IS NULL OR expires_at > datetime('now'))`,
		project,
	)
	if err != nil {
		return Memory{}, false, err
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMemoryRow(sqlRowScanner{rows: rows})
		if err != nil {
			return Memory{}, false, err
		}
		if hashContent(m.Content) == hash {
			return m, true, nil
		}
	}
	return Memory{}, false, rows.Err()
}

// CreateBatch inserts every item in a single transaction. Empty-content
// items are rejected by aborting the whole transaction, consistent with
// create's InvalidInput behavior — batch atomicity means partial success is
// not an option here, unlike deletes/updates, which report per-item misses.
func (s *Store) CreateBatch(items []CreateParams) (BatchResult, error) {
	if len(items) == 0 {
		return BatchResult{}, nil
	}

	tx, err := s.beginTxHook()
	if err != nil {
		return BatchResult{}, newStorage(err)
	}
	defer tx.Rollback() //nolint:errcheck

	var result BatchResult
	for _, p := range items {
		content := normalizeContent(p.Content)
		if content == "" {
			return BatchResult{}, newInvalidInput("content", nil)
		}
		category := normalizeCategory(p.Category)
		tags := normalizeTags(p.Tags)
		project := normalizeProject(p.Project)
		if project == "" {
			project = s.cfg.DefaultProject
		}
		tagsJSON, err := encodeTags(tags)
		if err != nil {
			return BatchResult{}, newStorage(err)
		}
		metadata := p.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		metaJSON, err := encodeMetadata(metadata)
		if err != nil {
			return BatchResult{}, newStorage(err)
		}

		id := newID()
		if _, err := s.execHook(tx,
			`INSERT INTO memories (id, content, category, tags, metadata, project, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, content, category, tagsJSON, metaJSON, project, p.ExpiresAt,
		); err != nil {
			return BatchResult{}, newStorage(fmt.Errorf("insert memory: %w", err))
		}
		result.Created = append(result.Created, id)
	}

	if err := s.commitHook(tx); err != nil {
		return BatchResult{}, newStorage(err)
	}
	return result, nil
}

// getByIDAny returns a memory by id regardless of expiry. History, export,
// and an update's own read-back of the row it just wrote all legitimately
// need to see an expired-but-not-yet-purged memory; GetByID itself does not.
func (s *Store) getByIDAny(id string) (Memory, error) {
	stmt, err := s.stmts.get("get_by_id_any", `SELECT `+memoryColumns+` FROM memories WHERE id = ?`)
	if err != nil {
		return Memory{}, newStorage(err)
	}
	row := stmt.QueryRow(id)
	m, err := scanMemoryRow(sqlRowAdapter{row: row})
	if err == sql.ErrNoRows {
		return Memory{}, newNotFound(id)
	}
	if err != nil {
		return Memory{}, newStorage(err)
	}
	return m, nil
}

// GetByID returns a single alive memory by id. An expired-but-not-yet-purged
// row is reported as NotFound, same as a purged one.
func (s *Store) GetByID(id string) (Memory, error) {
	stmt, err := s.stmts.get("get_by_id",
		`SELECT `+memoryColumns+` FROM memories WHERE id = ? AND (expires_at IS NULL OR expires_at > datetime('now'))`)
	if err != nil {
		return Memory{}, newStorage(err)
	}
	row := stmt.QueryRow(id)
	m, err := scanMemoryRow(sqlRowAdapter{row: row})
	if err == sql.ErrNoRows {
		return Memory{}, newNotFound(id)
	}
	if err != nil {
		return Memory{}, newStorage(err)
	}
	return m, nil
}

// GetByIDs returns every found alive memory among ids, in no particular
// order, without reporting misses. An empty input returns immediately
// without querying.
func (s *Store) GetByIDs(ids []string) ([]Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(
		`SELECT %s FROM memories WHERE id IN (%s) AND (expires_at IS NULL OR expires_at > datetime('now'))`,
		memoryColumns, joinPlaceholders(placeholders),
	)

	rows, err := s.queryItHook(s.db, query, args...)
	if err != nil {
		return nil, newStorage(err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemoryRow(rows)
		if err != nil {
			return nil, newStorage(err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func joinPlaceholders(ps []string) string {
	out := ps[0]
	for _, p := range ps[1:] {
		out += "," + p
	}
	return out
}

// Update merges the given fields into the existing row: omitted pointer
// fields keep their current value, Tags/Metadata replace wholesale when
// provided, and ExpiresAt distinguishes omit (ExpiresSet=false) from
// explicit clear (ExpiresSet=true, ExpiresAt=nil) from set
// (ExpiresSet=true, ExpiresAt!=nil). Always sets updated_at to the current
// time at second precision, so it can equal the previous value when the
// update lands in the same second.
func (s *Store) Update(id string, p UpdateParams) (Memory, error) {
	existing, err := s.getByIDAny(id)
	if err != nil {
		return Memory{}, err
	}

	content := existing.Content
	if p.Content != nil {
		content = normalizeContent(*p.Content)
		if content == "" {
			return Memory{}, newInvalidInput("content", nil)
		}
	}
	category := existing.Category
	if p.Category != nil {
		category = normalizeCategory(*p.Category)
	}
	tags := existing.Tags
	if p.Tags != nil {
		tags = normalizeTags(p.Tags)
	}
	metadata := existing.Metadata
	if p.Metadata != nil {
		metadata = p.Metadata
	}
	project := existing.Project
	if p.Project != nil {
		project = normalizeProject(*p.Project)
		if project == "" {
			project = s.cfg.DefaultProject
		}
	}
	expiresAt := existing.ExpiresAt
	if p.ExpiresSet {
		expiresAt = p.ExpiresAt
	}

	tagsJSON, err := encodeTags(tags)
	if err != nil {
		return Memory{}, newStorage(err)
	}
	metaJSON, err := encodeMetadata(metadata)
	if err != nil {
		return Memory{}, newStorage(err)
	}

	if _, err := s.db.Exec(
		`UPDATE memories
		 SET content = ?, category = ?, tags = ?, metadata = ?, project = ?, expires_at = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		content, category, tagsJSON, metaJSON, project, expiresAt, id,
	); err != nil {
		return Memory{}, newStorage(fmt.Errorf("update memory: %w", err))
	}

	return s.getByIDAny(id)
}

// UpdateBatch applies every item in one transaction; per-item missing ids
// are reported in NotFound rather than failing the batch.
func (s *Store) UpdateBatch(items []BatchUpdateItem) (BatchResult, error) {
	if len(items) == 0 {
		return BatchResult{}, nil
	}

	tx, err := s.beginTxHook()
	if err != nil {
		return BatchResult{}, newStorage(err)
	}
	defer tx.Rollback() //nolint:errcheck

	var result BatchResult
	for _, item := range items {
		row := tx.QueryRow(`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, item.ID)
		existing, err := scanMemoryRow(sqlRowAdapter{row: row})
		if err == sql.ErrNoRows {
			result.NotFound = append(result.NotFound, item.ID)
			continue
		}
		if err != nil {
			return BatchResult{}, newStorage(err)
		}

		content := existing.Content
		if item.Content != nil {
			content = normalizeContent(*item.Content)
			if content == "" {
				return BatchResult{}, newInvalidInput(item.ID, nil)
			}
		}
		category := existing.Category
		if item.Category != nil {
			category = normalizeCategory(*item.Category)
		}
		tags := existing.Tags
		if item.Tags != nil {
			tags = normalizeTags(item.Tags)
		}
		metadata := existing.Metadata
		if item.Metadata != nil {
			metadata = item.Metadata
		}
		project := existing.Project
		if item.Project != nil {
			project = normalizeProject(*item.Project)
			if project == "" {
				project = s.cfg.DefaultProject
			}
		}
		expiresAt := existing.ExpiresAt
		if item.ExpiresSet {
			expiresAt = item.ExpiresAt
		}

		tagsJSON, err := encodeTags(tags)
		if err != nil {
			return BatchResult{}, newStorage(err)
		}
		metaJSON, err := encodeMetadata(metadata)
		if err != nil {
			return BatchResult{}, newStorage(err)
		}

		if _, err := s.execHook(tx,
			`UPDATE memories
			 SET content = ?, category = ?, tags = ?, metadata = ?, project = ?, expires_at = ?, updated_at = datetime('now')
			 WHERE id = ?`,
			content, category, tagsJSON, metaJSON, project, expiresAt, item.ID,
		); err != nil {
			return BatchResult{}, newStorage(fmt.Errorf("update memory %s: %w", item.ID, err))
		}
		result.Updated = append(result.Updated, item.ID)
	}

	if err := s.commitHook(tx); err != nil {
		return BatchResult{}, newStorage(err)
	}
	return result, nil
}

// Delete removes a memory by id. Its incident links cascade via the
// memory_links foreign keys; the final history snapshot is appended by the
// AFTER DELETE trigger, which still sees the pre-image.
func (s *Store) Delete(id string) error {
	stmt, err := s.stmts.get("delete_by_id", `DELETE FROM memories WHERE id = ?`)
	if err != nil {
		return newStorage(err)
	}
	res, err := stmt.Exec(id)
	if err != nil {
		return newStorage(fmt.Errorf("delete memory: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return newStorage(err)
	}
	if n == 0 {
		return newNotFound(id)
	}
	return nil
}

// DeleteBatch removes every found id in one transaction; missing ids are
// reported in NotFound.
func (s *Store) DeleteBatch(ids []string) (BatchResult, error) {
	if len(ids) == 0 {
		return BatchResult{}, nil
	}

	tx, err := s.beginTxHook()
	if err != nil {
		return BatchResult{}, newStorage(err)
	}
	defer tx.Rollback() //nolint:errcheck

	var result BatchResult
	for _, id := range ids {
		res, err := s.execHook(tx, `DELETE FROM memories WHERE id = ?`, id)
		if err != nil {
			return BatchResult{}, newStorage(fmt.Errorf("delete memory %s: %w", id, err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return BatchResult{}, newStorage(err)
		}
		if n == 0 {
			result.NotFound = append(result.NotFound, id)
			continue
		}
		result.Deleted = append(result.Deleted, id)
	}

	if err := s.commitHook(tx); err != nil {
		return BatchResult{}, newStorage(err)
	}
	return result, nil
}

// ExportAll dumps every memory and link in a project, alive or expired, for
// backup or migration to another store.
func (s *Store) ExportAll(project string) (ExportData, error) {
	rows, err := s.db.Query(`SELECT `+memoryColumns+` FROM memories WHERE project = ?`, project)
	if err != nil {
		return ExportData{}, newStorage(err)
	}
	var data ExportData
	for rows.Next() {
		m, err := scanMemoryRow(sqlRowScanner{rows: rows})
		if err != nil {
			rows.Close()
			return ExportData{}, newStorage(err)
		}
		data.Memories = append(data.Memories, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ExportData{}, newStorage(err)
	}

	lrows, err := s.db.Query(
		`SELECT `+linkColumns+` FROM memory_links l
		 WHERE l.from_id IN (SELECT id FROM memories WHERE project = ?)
		   AND l.to_id IN (SELECT id FROM memories WHERE project = ?)`,
		project, project,
	)
	if err != nil {
		return ExportData{}, newStorage(err)
	}
	for lrows.Next() {
		l, err := scanLinkRow(sqlRowScanner{rows: lrows})
		if err != nil {
			lrows.Close()
			return ExportData{}, newStorage(err)
		}
		data.Links = append(data.Links, l)
	}
	lrows.Close()
	if err := lrows.Err(); err != nil {
		return ExportData{}, newStorage(err)
	}

	data.Version = "1"
	data.ExportedAt = nowUTC().Format("2006-01-02T15:04:05Z")
	return data, nil
}

// ImportBatch loads an ExportData dump in one transaction. ImportInsert
// generates fresh ids for every memory (no collision with the destination
// store is possible); ImportUpsert keeps the original ids and replaces rows
// that already exist. Links are only recreated when both endpoints made it
// into the destination, so a link referencing a memory dropped by a partial
// import is silently skipped rather than failing the whole batch.
func (s *Store) ImportBatch(data ExportData, mode ImportMode, project string) (BatchResult, error) {
	tx, err := s.beginTxHook()
	if err != nil {
		return BatchResult{}, newStorage(err)
	}
	defer tx.Rollback() //nolint:errcheck

	idMap := make(map[string]string, len(data.Memories))
	var result BatchResult

	for _, m := range data.Memories {
		content := normalizeContent(m.Content)
		if content == "" {
			result.Skipped++
			continue
		}
		tagsJSON, err := encodeTags(normalizeTags(m.Tags))
		if err != nil {
			return BatchResult{}, newStorage(err)
		}
		metaJSON, err := encodeMetadata(m.Metadata)
		if err != nil {
			return BatchResult{}, newStorage(err)
		}
		destProject := project
		if destProject == "" {
			destProject = normalizeProject(m.Project)
		}

		id := m.ID
		if mode == ImportInsert || id == "" {
			id = newID()
			if _, err := s.execHook(tx,
				`INSERT INTO memories (id, content, category, tags, metadata, project, expires_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				id, content, normalizeCategory(m.Category), tagsJSON, metaJSON, destProject, m.ExpiresAt,
			); err != nil {
				return BatchResult{}, newStorage(fmt.Errorf("import memory: %w", err))
			}
		} else {
			if _, err := s.execHook(tx,
				`INSERT INTO memories (id, content, category, tags, metadata, project, expires_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (id) DO UPDATE SET content=excluded.content, category=excluded.category,
				   tags=excluded.tags, metadata=excluded.metadata, project=excluded.project,
				   expires_at=excluded.expires_at, updated_at=datetime('now')`,
				id, content, normalizeCategory(m.Category), tagsJSON, metaJSON, destProject, m.ExpiresAt,
			); err != nil {
				return BatchResult{}, newStorage(fmt.Errorf("import memory: %w", err))
			}
		}
		idMap[m.ID] = id
		result.Imported++
	}

	for _, l := range data.Links {
		from, ok1 := idMap[l.FromID]
		to, ok2 := idMap[l.ToID]
		if !ok1 || !ok2 {
			continue
		}
		auto := 0
		if l.AutoGenerated {
			auto = 1
		}
		if _, err := s.execHook(tx,
			`INSERT INTO memory_links (from_id, to_id, relation, weight, auto_generated)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (from_id, to_id) DO UPDATE SET relation=excluded.relation, weight=excluded.weight`,
			from, to, l.Relation, clampWeight(l.Weight), auto,
		); err != nil {
			return BatchResult{}, newStorage(fmt.Errorf("import link: %w", err))
		}
	}

	if err := s.commitHook(tx); err != nil {
		return BatchResult{}, newStorage(err)
	}
	return result, nil
}

// sqlRowAdapter lets a *sql.Row satisfy rowScanner's single-row usage
// (Next/Err/Close are no-ops; Scan delegates).
type sqlRowAdapter struct {
	row *sql.Row
}

func (r sqlRowAdapter) Next() bool             { return true }
func (r sqlRowAdapter) Scan(dest ...any) error { return r.row.Scan(dest...) }
func (r sqlRowAdapter) Err() error             { return nil }
func (r sqlRowAdapter) Close() error           { return nil }
