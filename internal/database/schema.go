package database

// Schema is created on open. The partial unique index enforces the join-code
// invariant at the storage layer too: unique among non-ENDED sessions only,
// so codes can be recycled once a session ends.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id                  TEXT PRIMARY KEY,
	join_code           TEXT NOT NULL,
	lesson_id           TEXT NOT NULL,
	group_id            TEXT,
	teacher_id          TEXT NOT NULL,
	status              TEXT NOT NULL,
	current_slide_index INTEGER NOT NULL DEFAULT 0,
	created_at          DATETIME NOT NULL,
	ended_at            DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_live_code
	ON sessions(join_code) WHERE status != 'ENDED';

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

CREATE TABLE IF NOT EXISTS notes (
	session_id     TEXT NOT NULL,
	participant_id TEXT NOT NULL,
	slide_index    INTEGER NOT NULL,
	content        TEXT NOT NULL,
	updated_at     DATETIME NOT NULL,
	PRIMARY KEY (participant_id, slide_index)
);

CREATE TABLE IF NOT EXISTS lessons (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	org_id      TEXT NOT NULL,
	slide_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS org_members (
	org_id  TEXT NOT NULL,
	user_id TEXT NOT NULL,
	role    TEXT NOT NULL,
	PRIMARY KEY (org_id, user_id)
);
`
