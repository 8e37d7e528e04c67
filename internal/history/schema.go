package history

// Schema for the call archive. Applied at startup; idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS call_history (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	call_id       TEXT NOT NULL,
	caller_id     TEXT NOT NULL,
	callee_id     TEXT NOT NULL,
	outcome       TEXT NOT NULL CHECK (outcome IN ('completed', 'rejected', 'missed')),
	started_at    TIMESTAMP NOT NULL,
	answered_at   TIMESTAMP,
	ended_at      TIMESTAMP NOT NULL,
	ended_by      TEXT,
	duration_secs INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_call_history_caller ON call_history(caller_id);
CREATE INDEX IF NOT EXISTS idx_call_history_callee ON call_history(callee_id);
CREATE INDEX IF NOT EXISTS idx_call_history_ended_at ON call_history(ended_at);
`
