package engine

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Maintenance runs PRAGMA integrity_check followed by a WAL checkpoint in
// the given mode, reporting both outcomes without failing the call if
// integrity_check itself finds problems — the caller decides what to do
// with a non-OK report.
func (s *Store) Maintenance(mode MaintenanceMode) (MaintenanceResult, error) {
	var result MaintenanceResult

	rows, err := s.db.Query(`PRAGMA integrity_check`)
	if err != nil {
		return MaintenanceResult{}, newStorage(err)
	}
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			rows.Close()
			return MaintenanceResult{}, newStorage(err)
		}
		if line != "ok" {
			result.IntegrityErrors = append(result.IntegrityErrors, line)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return MaintenanceResult{}, newStorage(err)
	}
	result.IntegrityOK = len(result.IntegrityErrors) == 0

	if mode == "" {
		mode = MaintenancePassive
	}
	checkpointRow := s.db.QueryRow(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode))
	var busy, log, checkpointed int
	if err := checkpointRow.Scan(&busy, &log, &checkpointed); err != nil {
		return MaintenanceResult{}, newStorage(fmt.Errorf("wal_checkpoint: %w", err))
	}
	result.WALCheckpoint = WALCheckpoint{Busy: busy != 0, Log: log, Checkpointed: checkpointed}

	return result, nil
}

// PurgeExpired deletes every memory whose expires_at has passed, returning
// the purged ids. Incident links and history are handled the same way a
// manual delete is: cascade on links, trigger-captured pre-image on history.
func (s *Store) PurgeExpired() (PurgeResult, error) {
	rows, err := s.db.Query(`SELECT id FROM memories WHERE expires_at IS NOT NULL AND expires_at <= datetime('now')`)
	if err != nil {
		return PurgeResult{}, newStorage(err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return PurgeResult{}, newStorage(err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return PurgeResult{}, newStorage(err)
	}
	if len(ids) == 0 {
		return PurgeResult{}, nil
	}

	if _, err := s.db.Exec(`DELETE FROM memories WHERE expires_at IS NOT NULL AND expires_at <= datetime('now')`); err != nil {
		return PurgeResult{}, newStorage(fmt.Errorf("purge expired: %w", err))
	}
	return PurgeResult{Purged: len(ids), IDs: ids}, nil
}

// Backup copies the live database file to a timestamped sibling path via
// SQLite's own VACUUM INTO, which produces a consistent snapshot without
// pausing writers the way a raw file copy would. Rejected for in-memory
// stores, which have nothing on disk to snapshot.
func (s *Store) Backup() (string, error) {
	if s.cfg.DBPath == ":memory:" {
		return "", newInvalidInput("backup: in-memory store has no file to back up", nil)
	}

	stamp := strings.ReplaceAll(nowUTC().Format("2006-01-02T15:04:05"), ":", "-")
	dest := fmt.Sprintf("%s.backup.%s.db", strings.TrimSuffix(s.cfg.DBPath, ".db"), stamp)

	if _, err := s.db.Exec(`VACUUM INTO ?`, dest); err != nil {
		return "", newStorage(fmt.Errorf("backup: %w", err))
	}
	return dest, nil
}

// RestoreFromBackup replaces the live database file with the contents of a
// backup file, closing and reopening the store so a brand-new connection
// picks up the restored file under fresh pragmas.
func (s *Store) RestoreFromBackup(backupPath string) error {
	if s.cfg.DBPath == ":memory:" {
		return newInvalidInput("restore: in-memory store has no file to replace", nil)
	}

	if err := s.Close(); err != nil {
		return newStorage(err)
	}

	src, err := os.Open(backupPath)
	if err != nil {
		return newStorage(fmt.Errorf("open backup: %w", err))
	}
	defer src.Close()

	dst, err := os.Create(s.cfg.DBPath)
	if err != nil {
		return newStorage(fmt.Errorf("open destination: %w", err))
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return newStorage(fmt.Errorf("copy backup: %w", err))
	}
	if err := dst.Close(); err != nil {
		return newStorage(err)
	}

	reopened, err := New(s.cfg)
	if err != nil {
		return err
	}
	*s = *reopened
	return nil
}
