package engine_test

import (
	"path/filepath"
	"testing"

	"github.com/Jacksini/engram-mcp/internal/engine"
)

func newTestStore(t *testing.T) *engine.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "engram.db")
	s, err := engine.New(engine.Config{DBPath: dbPath, DefaultProject: "default"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCreate(t *testing.T, s *engine.Store, p engine.CreateParams) engine.Memory {
	t.Helper()
	m, _, err := s.Create(p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return m
}
