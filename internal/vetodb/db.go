// Package vetodb persists processed veto runs to SQLite: one row per event,
// one summary row per run, and the threshold tables used, so a run's output
// is fully self-contained for downstream analysis.
package vetodb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle for one output database.
type DB struct {
	*sql.DB
}

// New opens (creating if needed) the output database at path and applies any
// pending schema migrations.
func New(path string) (*DB, error) {
	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening output database: %w", err)
	}
	// Single-writer batch workload; WAL keeps readers out of the way.
	if _, err := handle.Exec(`PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;`); err != nil {
		handle.Close()
		return nil, fmt.Errorf("configuring output database: %w", err)
	}
	db := &DB{handle}
	if err := db.MigrateUp(); err != nil {
		handle.Close()
		return nil, err
	}
	return db, nil
}
