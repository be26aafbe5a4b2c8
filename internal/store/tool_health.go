package store

import (
	"context"
	"database/sql"
	"time"
)

// BrokenThreshold is the number of consecutive failures that marks a tool broken.
const BrokenThreshold = 3

const (
	StatusActive = "active"
	StatusBroken = "broken"
)

// ToolHealth is a row in tool_health.
type ToolHealth struct {
	Tool         string     `json:"tool"`
	ConnectorID  string     `json:"connector_id"`
	Status       string     `json:"status"`
	FailureCount int        `json:"failure_count"`
	LastError    string     `json:"last_error,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
}

const toolHealthColumns = `tool, connector_id, status, failure_count, last_error, last_success, last_failure`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToolHealth(r rowScanner) (ToolHealth, error) {
	var t ToolHealth
	var lastError sql.NullString
	var lastSuccess, lastFailure sql.NullInt64
	if err := r.Scan(&t.Tool, &t.ConnectorID, &t.Status, &t.FailureCount, &lastError, &lastSuccess, &lastFailure); err != nil {
		return t, err
	}
	t.LastError = lastError.String
	if lastSuccess.Valid {
		ts := time.UnixMilli(lastSuccess.Int64).UTC()
		t.LastSuccess = &ts
	}
	if lastFailure.Valid {
		ts := time.UnixMilli(lastFailure.Int64).UTC()
		t.LastFailure = &ts
	}
	return t, nil
}

// RecordToolSuccess sets last_success, resets failure_count and marks the tool active.
func (db *DB) RecordToolSuccess(ctx context.Context, tool, connectorID string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO tool_health (tool, connector_id, status, failure_count, last_success)
		VALUES (?, ?, 'active', 0, ?)
		ON CONFLICT(tool) DO UPDATE SET
			status = 'active', failure_count = 0, last_success = excluded.last_success`,
		tool, connectorID, time.Now().UnixMilli(),
	)
	return err
}

// RecordToolFailure increments failure_count and sets last_error. At BrokenThreshold
// consecutive failures the tool is marked broken.
func (db *DB) RecordToolFailure(ctx context.Context, tool, connectorID, errMsg string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO tool_health (tool, connector_id, status, failure_count, last_error, last_failure)
		VALUES (?, ?, 'active', 1, ?, ?)
		ON CONFLICT(tool) DO UPDATE SET
			failure_count = failure_count + 1,
			last_error = excluded.last_error,
			last_failure = excluded.last_failure`,
		tool, connectorID, errMsg, time.Now().UnixMilli(),
	)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`UPDATE tool_health SET status = 'broken' WHERE tool = ? AND failure_count >= ?`,
		tool, BrokenThreshold,
	)
	return err
}

// ToolHealthByName returns the row for tool, or nil if it was never invoked.
func (db *DB) ToolHealthByName(ctx context.Context, tool string) (*ToolHealth, error) {
	t, err := scanToolHealth(db.QueryRowContext(ctx,
		`SELECT `+toolHealthColumns+` FROM tool_health WHERE tool = ?`, tool))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// AllToolHealth returns every row ordered by tool.
func (db *DB) AllToolHealth(ctx context.Context) ([]ToolHealth, error) {
	return db.queryToolHealth(ctx, `SELECT `+toolHealthColumns+` FROM tool_health ORDER BY tool`)
}

// ListBrokenTools returns tools with status = 'broken'.
func (db *DB) ListBrokenTools(ctx context.Context) ([]ToolHealth, error) {
	return db.queryToolHealth(ctx, `SELECT `+toolHealthColumns+` FROM tool_health WHERE status = 'broken' ORDER BY tool`)
}

// BrokenTools returns the names of broken tools.
func (db *DB) BrokenTools(ctx context.Context) ([]string, error) {
	rows, err := db.ListBrokenTools(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.Tool
	}
	return names, nil
}

func (db *DB) queryToolHealth(ctx context.Context, query string, args ...any) ([]ToolHealth, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ToolHealth
	for rows.Next() {
		t, err := scanToolHealth(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
