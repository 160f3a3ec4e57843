package engine

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Config holds store configuration. No process-wide singletons: each Store
// instance owns its own configuration.
type Config struct {
	// DBPath is the data file path, or ":memory:" for a non-persistent
	// store. Empty resolves ENGRAM_DB_PATH then the default
	// ~/.engram/memories.db.
	DBPath string
	// DefaultProject is used by operations that omit a project. Empty
	// resolves ENGRAM_PROJECT then "default".
	DefaultProject string
}

// DefaultConfig returns the configuration resolved from the environment,
// falling back to the documented defaults.
func DefaultConfig() Config {
	return Config{
		DBPath:         resolveDBPath(os.Getenv("ENGRAM_DB_PATH")),
		DefaultProject: resolveProject(os.Getenv("ENGRAM_PROJECT")),
	}
}

func resolveDBPath(v string) string {
	if v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".engram", "memories.db")
}

func resolveProject(v string) string {
	if v != "" {
		return v
	}
	return "default"
}

// Store is the persistent knowledge-graph engine backed by SQLite + FTS5.
type Store struct {
	db    *sql.DB
	cfg   Config
	hooks storeHooks
	stmts *statementCache
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

type sqlRowScanner struct {
	rows *sql.Rows
}

func (r sqlRowScanner) Next() bool             { return r.rows.Next() }
func (r sqlRowScanner) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r sqlRowScanner) Err() error             { return r.rows.Err() }
func (r sqlRowScanner) Close() error           { return r.rows.Close() }

// storeHooks lets tests substitute exec/query/transaction behavior without a
// mocking library.
type storeHooks struct {
	exec    func(db execer, query string, args ...any) (sql.Result, error)
	queryIt func(db queryer, query string, args ...any) (rowScanner, error)
	beginTx func(db *sql.DB) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func defaultStoreHooks() storeHooks {
	return storeHooks{
		exec: func(db execer, query string, args ...any) (sql.Result, error) {
			return db.Exec(query, args...)
		},
		queryIt: func(db queryer, query string, args ...any) (rowScanner, error) {
			rows, err := db.Query(query, args...)
			if err != nil {
				return nil, err
			}
			return sqlRowScanner{rows: rows}, nil
		},
		beginTx: func(db *sql.DB) (*sql.Tx, error) {
			return db.Begin()
		},
		commit: func(tx *sql.Tx) error {
			return tx.Commit()
		},
	}
}

func (s *Store) execHook(db execer, query string, args ...any) (sql.Result, error) {
	if s.hooks.exec != nil {
		return s.hooks.exec(db, query, args...)
	}
	return db.Exec(query, args...)
}

func (s *Store) queryItHook(db queryer, query string, args ...any) (rowScanner, error) {
	if s.hooks.queryIt != nil {
		return s.hooks.queryIt(db, query, args...)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRowScanner{rows: rows}, nil
}

func (s *Store) beginTxHook() (*sql.Tx, error) {
	if s.hooks.beginTx != nil {
		return s.hooks.beginTx(s.db)
	}
	return s.db.Begin()
}

func (s *Store) commitHook(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// New opens (creating if necessary) the store at cfg.DBPath, applies
// pragmas, and runs any pending migrations. Failures here are fatal:
// New returns a StorageError.
func New(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = resolveDBPath(os.Getenv("ENGRAM_DB_PATH"))
	}
	if cfg.DefaultProject == "" {
		cfg.DefaultProject = resolveProject(os.Getenv("ENGRAM_PROJECT"))
	}

	if cfg.DBPath != ":memory:" {
		if dir := filepath.Dir(cfg.DBPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return nil, newStorage(fmt.Errorf("create data dir: %w", err))
			}
		}
	}

	db, err := openDB("sqlite", cfg.DBPath)
	if err != nil {
		return nil, newStorage(fmt.Errorf("open database: %w", err))
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA mmap_size = 67108864",
		"PRAGMA cache_size = -8000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, newStorage(fmt.Errorf("pragma %q: %w", p, err))
		}
	}

	s := &Store{db: db, cfg: cfg, hooks: defaultStoreHooks()}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, newStorage(fmt.Errorf("migration: %w", err))
	}

	s.stmts = newStatementCache(s)

	return s, nil
}

// Close runs the store's optimize hook, releases prepared statements, then
// closes the underlying database handle.
func (s *Store) Close() error {
	if _, err := s.db.Exec("PRAGMA optimize"); err != nil {
		log.Printf("engine: optimize pragma failed: %v", err)
	}
	s.stmts.closeAll()
	return s.db.Close()
}
