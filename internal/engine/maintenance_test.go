package engine_test

import (
	"os"
	"testing"

	"github.com/Jacksini/engram-mcp/internal/engine"
)

func TestMaintenanceReportsIntegrityAndCheckpoint(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, engine.CreateParams{Content: "something", AutoLink: boolPtr(false)})

	result, err := s.Maintenance(engine.MaintenancePassive)
	if err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	if !result.IntegrityOK {
		t.Errorf("integrity_ok = false, errors: %v", result.IntegrityErrors)
	}
}

func TestPurgeExpiredRemovesOnlyExpired(t *testing.T) {
	s := newTestStore(t)
	past := "2000-01-01 00:00:00"
	expired := mustCreate(t, s, engine.CreateParams{Content: "expired", ExpiresAt: &past, AutoLink: boolPtr(false)})
	alive := mustCreate(t, s, engine.CreateParams{Content: "alive", AutoLink: boolPtr(false)})

	result, err := s.PurgeExpired()
	if err != nil {
		t.Fatalf("purge expired: %v", err)
	}
	if result.Purged != 1 || result.IDs[0] != expired.ID {
		t.Fatalf("unexpected purge result: %+v", result)
	}
	if _, err := s.GetByID(alive.ID); err != nil {
		t.Errorf("alive memory should survive purge: %v", err)
	}
	if _, err := s.GetByID(expired.ID); !engine.IsNotFound(err) {
		t.Errorf("expired memory should be gone, got %v", err)
	}
}

func TestPurgeExpiredNoopWhenNothingExpired(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, engine.CreateParams{Content: "alive", AutoLink: boolPtr(false)})
	result, err := s.PurgeExpired()
	if err != nil {
		t.Fatalf("purge expired: %v", err)
	}
	if result.Purged != 0 {
		t.Fatalf("purged = %d, want 0", result.Purged)
	}
}

func TestBackupRejectsInMemoryStore(t *testing.T) {
	s, err := engine.New(engine.Config{DBPath: ":memory:", DefaultProject: "default"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	if _, err := s.Backup(); !engine.IsInvalidInput(err) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestBackupAndRestoreRoundTrips(t *testing.T) {
	s := newTestStore(t)
	m := mustCreate(t, s, engine.CreateParams{Content: "before backup", AutoLink: boolPtr(false)})

	backupPath, err := s.Backup()
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	defer os.Remove(backupPath)

	if _, _, err := s.Create(engine.CreateParams{Content: "after backup", AutoLink: boolPtr(false)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.RestoreFromBackup(backupPath); err != nil {
		t.Fatalf("restore from backup: %v", err)
	}

	if _, err := s.GetByID(m.ID); err != nil {
		t.Errorf("pre-backup memory should survive restore: %v", err)
	}
	list, err := s.List(engine.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.Total != 1 {
		t.Errorf("total = %d, want 1 (post-backup write should be gone)", list.Total)
	}
}
