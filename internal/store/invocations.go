package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Invocation is one row of the invocation log.
type Invocation struct {
	ID          string         `json:"id"`
	Tool        string         `json:"tool"`
	ConnectorID string         `json:"connector_id"`
	UserID      string         `json:"user_id,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
	OK          bool           `json:"ok"`
	Error       string         `json:"error,omitempty"`
	Duration    time.Duration  `json:"duration"`
	StartedAt   time.Time      `json:"started_at"`
}

// InsertInvocation appends to the invocation log.
func (db *DB) InsertInvocation(ctx context.Context, inv Invocation) error {
	var args sql.NullString
	if len(inv.Args) > 0 {
		raw, err := json.Marshal(inv.Args)
		if err != nil {
			return fmt.Errorf("encode args: %w", err)
		}
		args = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO invocations (id, tool, connector_id, user_id, args, ok, error, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.Tool, inv.ConnectorID, inv.UserID, args, inv.OK, inv.Error,
		inv.Duration.Milliseconds(), inv.StartedAt.UnixMilli(),
	)
	return err
}

// InvocationFilter narrows RecentInvocations. Zero values match everything.
type InvocationFilter struct {
	Tool       string
	FailedOnly bool
	Limit      int
}

// RecentInvocations returns the newest invocations first.
func (db *DB) RecentInvocations(ctx context.Context, f InvocationFilter) ([]Invocation, error) {
	query := "SELECT id, tool, connector_id, user_id, args, ok, error, duration_ms, started_at FROM invocations WHERE 1=1"
	var args []any
	if f.Tool != "" {
		query += " AND tool = ?"
		args = append(args, f.Tool)
	}
	if f.FailedOnly {
		query += " AND ok = 0"
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	query += " ORDER BY started_at DESC, rowid DESC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invocation
	for rows.Next() {
		var inv Invocation
		var rawArgs, errMsg sql.NullString
		var durMS, startedMS int64
		if err := rows.Scan(&inv.ID, &inv.Tool, &inv.ConnectorID, &inv.UserID, &rawArgs, &inv.OK, &errMsg, &durMS, &startedMS); err != nil {
			return nil, err
		}
		if rawArgs.Valid && rawArgs.String != "" {
			_ = json.Unmarshal([]byte(rawArgs.String), &inv.Args)
		}
		inv.Error = errMsg.String
		inv.Duration = time.Duration(durMS) * time.Millisecond
		inv.StartedAt = time.UnixMilli(startedMS).UTC()
		out = append(out, inv)
	}
	return out, rows.Err()
}

// CountInvocations returns the number of logged invocations.
func (db *DB) CountInvocations(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM invocations").Scan(&n)
	return n, err
}

// Cleanup removes invocations older than maxAge, then keeps at most maxEntries of the
// newest. Non-positive limits are skipped. Returns the number of rows removed.
func (db *DB) Cleanup(ctx context.Context, maxAge time.Duration, maxEntries int) (int64, error) {
	var removed int64
	if maxAge > 0 {
		cutoff := time.Now().Add(-maxAge).UnixMilli()
		res, err := db.ExecContext(ctx, "DELETE FROM invocations WHERE started_at < ?", cutoff)
		if err != nil {
			return removed, fmt.Errorf("cleanup by age: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	if maxEntries > 0 {
		res, err := db.ExecContext(ctx, `
			DELETE FROM invocations WHERE id NOT IN (
				SELECT id FROM invocations ORDER BY started_at DESC LIMIT ?
			)`, maxEntries)
		if err != nil {
			return removed, fmt.Errorf("cleanup by count: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, nil
}
