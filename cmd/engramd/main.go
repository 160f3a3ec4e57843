// engramd is a smoke binary: it links the engine package, opens a store at
// the configured path, runs a maintenance pass, and reports basic stats.
// It is not a server or CLI — the store is a library meant to be embedded
// directly by an agent process; this binary exists to prove the module
// builds and a database file opens and migrates cleanly end to end.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Jacksini/engram-mcp/internal/engine"
)

func main() {
	dbPath := flag.String("db", "", "path to the memory database (defaults to ENGRAM_DB_PATH or ~/.engram/memories.db)")
	project := flag.String("project", "", "project namespace (defaults to ENGRAM_PROJECT or \"default\")")
	flag.Parse()

	cfg := engine.DefaultConfig()
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *project != "" {
		cfg.DefaultProject = *project
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "engramd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg engine.Config) error {
	store, err := engine.New(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	result, err := store.Maintenance(engine.MaintenancePassive)
	if err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}
	if !result.IntegrityOK {
		fmt.Fprintf(os.Stderr, "engramd: integrity check reported %d issue(s)\n", len(result.IntegrityErrors))
	}

	stats, err := store.Stats(cfg.DefaultProject)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	fmt.Printf("engram store ready at %s (project %q): %d live memories across %d categories\n",
		cfg.DBPath, cfg.DefaultProject, stats.TotalLive, len(stats.ByCategory))
	return nil
}
