package engine

import (
	"database/sql"
	"fmt"
)

// currentSchemaVersion is the highest migration this build knows how to
// apply. Migrations run in strict order and are additive and idempotent:
// every step uses an existence check so re-running against an
// already-migrated file is a no-op.
const currentSchemaVersion = 5

// migrate reads the stored schema version and applies any missing
// migrations in order, then installs the FTS5 index and its triggers if
// they are not already present.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_meta (
			id      INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL
		);
		INSERT OR IGNORE INTO schema_meta (id, version) VALUES (1, 0);

		CREATE TABLE IF NOT EXISTS memories (
			id         TEXT PRIMARY KEY,
			content    TEXT NOT NULL,
			category   TEXT NOT NULL DEFAULT 'general',
			tags       TEXT NOT NULL DEFAULT '[]',
			metadata   TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}

	version, err := s.schemaVersion()
	if err != nil {
		return err
	}

	migrations := []func() error{
		s.migrateV1ExpiresAt,
		s.migrateV2Links,
		s.migrateV3History,
		s.migrateV4Project,
		s.migrateV5LinkWeights,
	}

	for i, m := range migrations {
		target := i + 1
		if version >= target {
			continue
		}
		if err := m(); err != nil {
			return fmt.Errorf("migration v%d: %w", target, err)
		}
		if err := s.setSchemaVersion(target); err != nil {
			return fmt.Errorf("migration v%d: record version: %w", target, err)
		}
		version = target
	}

	if err := s.ensureFTS(); err != nil {
		return fmt.Errorf("fts index: %w", err)
	}

	return nil
}

func (s *Store) schemaVersion() (int, error) {
	var v int
	if err := s.db.QueryRow(`SELECT version FROM schema_meta WHERE id = 1`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

func (s *Store) setSchemaVersion(v int) error {
	_, err := s.db.Exec(`UPDATE schema_meta SET version = ? WHERE id = 1`, v)
	return err
}

// addColumnIfNotExists performs an idempotent ALTER TABLE ... ADD COLUMN,
// checking PRAGMA table_info first so re-running a migration against an
// already-migrated file never errors.
func (s *Store) addColumnIfNotExists(table, column, definition string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, ctyp string
			notnull    int
			dflt       sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &ctyp, &notnull, &dflt, &pk); err != nil {
			return err
		}
		if name == column {
			return rows.Close()
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

func (s *Store) triggerExists(name string) (bool, error) {
	var got string
	err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'trigger' AND name = ?`, name).Scan(&got)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) dropTriggerIfExists(name string) error {
	_, err := s.db.Exec(fmt.Sprintf("DROP TRIGGER IF EXISTS %s", name))
	return err
}

// migrateV1ExpiresAt adds the TTL column and its index.
func (s *Store) migrateV1ExpiresAt() error {
	if err := s.addColumnIfNotExists("memories", "expires_at", "TEXT"); err != nil {
		return err
	}
	_, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_memories_expires ON memories(expires_at)`)
	return err
}

// migrateV2Links introduces the directed edge table and its incoming-edge
// index.
func (s *Store) migrateV2Links() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_links (
			from_id    TEXT NOT NULL,
			to_id      TEXT NOT NULL,
			relation   TEXT NOT NULL DEFAULT 'related',
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (from_id, to_id),
			FOREIGN KEY (from_id) REFERENCES memories(id) ON DELETE CASCADE,
			FOREIGN KEY (to_id)   REFERENCES memories(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_links_to ON memory_links(to_id);
	`)
	return err
}

// migrateV3History introduces the append-only audit log and its triggers.
// Installed as AFTER triggers so the OLD row image is still visible when a
// Delete fires, letting the delete trigger capture the pre-image.
func (s *Store) migrateV3History() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_history (
			history_id INTEGER PRIMARY KEY AUTOINCREMENT,
			memory_id  TEXT    NOT NULL,
			operation  TEXT    NOT NULL,
			content    TEXT    NOT NULL,
			category   TEXT    NOT NULL,
			tags       TEXT    NOT NULL,
			metadata   TEXT    NOT NULL,
			expires_at TEXT,
			changed_at TEXT    NOT NULL DEFAULT (datetime('now'))
		);
		CREATE INDEX IF NOT EXISTS idx_history_memory ON memory_history(memory_id, changed_at DESC);
	`); err != nil {
		return err
	}
	return s.installHistoryTriggers(false)
}

// migrateV4Project adds the namespace column to memories and history, plus
// the indices the filtering engine relies on, then recreates the history
// triggers so new rows carry project.
func (s *Store) migrateV4Project() error {
	if err := s.addColumnIfNotExists("memories", "project", "TEXT NOT NULL DEFAULT 'default'"); err != nil {
		return err
	}
	if err := s.addColumnIfNotExists("memory_history", "project", "TEXT NOT NULL DEFAULT 'default'"); err != nil {
		return err
	}
	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_memories_project          ON memories(project);
		CREATE INDEX IF NOT EXISTS idx_memories_project_category ON memories(project, category);
		UPDATE memories SET project = 'default' WHERE project IS NULL OR project = '';
		UPDATE memory_history SET project = 'default' WHERE project IS NULL OR project = '';
	`); err != nil {
		return err
	}
	return s.installHistoryTriggers(true)
}

// migrateV5LinkWeights adds weight and the auto-generated flag to links.
func (s *Store) migrateV5LinkWeights() error {
	if err := s.addColumnIfNotExists("memory_links", "weight", "REAL DEFAULT 1.0"); err != nil {
		return err
	}
	if err := s.addColumnIfNotExists("memory_links", "auto_generated", "INTEGER DEFAULT 0"); err != nil {
		return err
	}
	_, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_links_auto ON memory_links(auto_generated)`)
	return err
}

// installHistoryTriggers (re)installs the AFTER INSERT/UPDATE/DELETE
// triggers that append history rows. withProject selects whether the
// trigger body includes the project column (false only during the brief
// window between v3 and v4 on a fresh migration run).
func (s *Store) installHistoryTriggers(withProject bool) error {
	for _, name := range []string{"memories_history_ai", "memories_history_au", "memories_history_ad"} {
		if err := s.dropTriggerIfExists(name); err != nil {
			return err
		}
	}

	newProject, oldProject := "'default'", "'default'"
	if withProject {
		newProject, oldProject = "new.project", "old.project"
	}

	insertTrigger := fmt.Sprintf(`
		CREATE TRIGGER memories_history_ai AFTER INSERT ON memories BEGIN
			INSERT INTO memory_history (memory_id, operation, content, category, tags, metadata, project, expires_at)
			VALUES (new.id, 'create', new.content, new.category, new.tags, new.metadata, %s, new.expires_at);
		END;
	`, newProject)

	updateTrigger := fmt.Sprintf(`
		CREATE TRIGGER memories_history_au AFTER UPDATE ON memories BEGIN
			INSERT INTO memory_history (memory_id, operation, content, category, tags, metadata, project, expires_at)
			VALUES (new.id, 'update', new.content, new.category, new.tags, new.metadata, %s, new.expires_at);
		END;
	`, newProject)

	deleteTrigger := fmt.Sprintf(`
		CREATE TRIGGER memories_history_ad AFTER DELETE ON memories BEGIN
			INSERT INTO memory_history (memory_id, operation, content, category, tags, metadata, project, expires_at)
			VALUES (old.id, 'delete', old.content, old.category, old.tags, old.metadata, %s, old.expires_at);
		END;
	`, oldProject)

	if _, err := s.db.Exec(insertTrigger); err != nil {
		return err
	}
	if _, err := s.db.Exec(updateTrigger); err != nil {
		return err
	}
	if _, err := s.db.Exec(deleteTrigger); err != nil {
		return err
	}
	return nil
}

// ensureFTS installs the FTS5 index over (content, category, tags) as an
// external-content table and the triggers that keep it coherent with
// memories on every mutation. memories.id is a TEXT primary key, so the
// external-content link uses memories' implicit integer rowid rather than
// id: content_rowid='rowid'.
func (s *Store) ensureFTS() error {
	if _, err := s.db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			content, category, tags,
			content='memories', content_rowid='rowid'
		);
	`); err != nil {
		return err
	}

	exists, err := s.triggerExists("memories_fts_ai")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = s.db.Exec(`
		CREATE TRIGGER memories_fts_ai AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, content, category, tags)
			VALUES (new.rowid, new.content, new.category, new.tags);
		END;

		CREATE TRIGGER memories_fts_au AFTER UPDATE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, content, category, tags)
			VALUES ('delete', old.rowid, old.content, old.category, old.tags);
			INSERT INTO memories_fts(rowid, content, category, tags)
			VALUES (new.rowid, new.content, new.category, new.tags);
		END;

		CREATE TRIGGER memories_fts_ad AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, content, category, tags)
			VALUES ('delete', old.rowid, old.content, old.category, old.tags);
		END;
	`)
	return err
}
