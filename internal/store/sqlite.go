// Package store persists the invocation log and per-tool health in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps *sql.DB for toolpilot storage.
type DB struct {
	*sql.DB
}

// Open opens the SQLite database at path and applies the schema. Creates file if missing.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: ":memory:" databases are per-connection, and SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, err
	}

	// Columns added after the first release.
	var count int
	for _, col := range []struct{ table, name, def string }{
		{"invocations", "user_id", "TEXT NOT NULL DEFAULT ''"},
	} {
		q := fmt.Sprintf("SELECT COUNT(*) FROM pragma_table_info('%s') WHERE name=?", col.table)
		if err := db.QueryRowContext(ctx, q, col.name).Scan(&count); err == nil && count == 0 {
			if _, err := db.ExecContext(ctx, "ALTER TABLE "+col.table+" ADD COLUMN "+col.name+" "+col.def); err != nil {
				db.Close()
				return nil, fmt.Errorf("migrating schema (%s.%s): %w", col.table, col.name, err)
			}
		}
	}
	return &DB{db}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.DB.Close()
}
