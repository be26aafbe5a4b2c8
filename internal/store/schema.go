package store

// Times are stored as unix milliseconds so range queries compare numerically.
const schema = `
CREATE TABLE IF NOT EXISTS invocations (
	id TEXT PRIMARY KEY,
	tool TEXT NOT NULL,
	connector_id TEXT NOT NULL,
	args TEXT,
	ok INTEGER NOT NULL,
	error TEXT,
	duration_ms INTEGER NOT NULL,
	started_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invocations_started ON invocations(started_at);
CREATE INDEX IF NOT EXISTS idx_invocations_tool ON invocations(tool);

CREATE TABLE IF NOT EXISTS tool_health (
	tool TEXT PRIMARY KEY,
	connector_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active', -- active, broken
	failure_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	last_success INTEGER,
	last_failure INTEGER
);
`
