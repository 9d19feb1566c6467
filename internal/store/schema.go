package store

// schemaVersion is the current schema version. Increment when adding migrations.
const schemaVersion = 2

// migrations maps version numbers to SQL statements that bring the schema
// from (version-1) to (version). Version 1 is the initial schema.
var migrations = map[int]string{
	1: `
-- Tracked repositories.
CREATE TABLE IF NOT EXISTS repos (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	path       TEXT    NOT NULL UNIQUE,
	name       TEXT    NOT NULL DEFAULT '',
	created_at TEXT    NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- AI tool sessions (imported by the session linking layer).
CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT    PRIMARY KEY,
	tool            TEXT    NOT NULL DEFAULT '',
	model           TEXT,
	conversation_id TEXT,
	files           TEXT,
	trace_available INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT    NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Links between sessions and the commits they plausibly produced.
CREATE TABLE IF NOT EXISTS session_links (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_id    INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	commit_sha TEXT    NOT NULL,
	session_id TEXT    NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	confidence REAL    NOT NULL DEFAULT 1.0,
	created_at TEXT    NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_session_links_commit ON session_links(repo_id, commit_sha);
CREATE INDEX IF NOT EXISTS idx_session_links_session ON session_links(session_id);
`,

	2: `
-- Line-level attribution ranges. Ranges may overlap; the source lens
-- reconciler resolves overlaps at read time.
CREATE TABLE IF NOT EXISTS line_attributions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_id       INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	commit_sha    TEXT    NOT NULL,
	file_path     TEXT    NOT NULL,
	start_line    INTEGER NOT NULL,
	end_line      INTEGER NOT NULL,
	session_id    TEXT,
	author_type   TEXT    NOT NULL,
	ai_percentage INTEGER,
	tool          TEXT,
	model         TEXT,
	created_at    TEXT    NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_line_attributions_commit ON line_attributions(repo_id, commit_sha);
CREATE INDEX IF NOT EXISTS idx_line_attributions_file ON line_attributions(repo_id, commit_sha, file_path);

-- Content-normalized rewrite keys. One current value per (repo, commit).
CREATE TABLE IF NOT EXISTS commit_rewrite_keys (
	repo_id     INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	commit_sha  TEXT    NOT NULL,
	rewrite_key TEXT    NOT NULL,
	algorithm   TEXT    NOT NULL,
	created_at  TEXT    NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  TEXT    NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (repo_id, commit_sha)
);

CREATE INDEX IF NOT EXISTS idx_rewrite_keys_key ON commit_rewrite_keys(repo_id, rewrite_key);

-- Cached per-commit contribution stats.
CREATE TABLE IF NOT EXISTS commit_contribution_stats (
	repo_id             INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	commit_sha          TEXT    NOT NULL,
	session_id          TEXT,
	human_lines         INTEGER NOT NULL DEFAULT 0,
	ai_agent_lines      INTEGER NOT NULL DEFAULT 0,
	ai_assist_lines     INTEGER NOT NULL DEFAULT 0,
	collaborative_lines INTEGER NOT NULL DEFAULT 0,
	total_lines         INTEGER NOT NULL DEFAULT 0,
	ai_percentage       REAL    NOT NULL DEFAULT 0,
	tool                TEXT,
	model               TEXT,
	updated_at          TEXT    NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (repo_id, commit_sha)
);

-- Cached per-commit per-tool line counts.
CREATE TABLE IF NOT EXISTS commit_tool_stats (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_id    INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	commit_sha TEXT    NOT NULL,
	tool       TEXT    NOT NULL,
	model      TEXT,
	line_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_tool_stats_commit ON commit_tool_stats(repo_id, commit_sha);

-- Metadata about attribution notes seen on commits.
CREATE TABLE IF NOT EXISTS attribution_note_meta (
	repo_id            INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	commit_sha         TEXT    NOT NULL,
	note_ref           TEXT    NOT NULL,
	note_hash          TEXT    NOT NULL,
	schema_version     TEXT,
	metadata_available INTEGER NOT NULL DEFAULT 0,
	metadata_cached    INTEGER NOT NULL DEFAULT 0,
	prompt_count       INTEGER,
	updated_at         TEXT    NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (repo_id, commit_sha, note_ref)
);

-- Per-repo attribution preferences.
CREATE TABLE IF NOT EXISTS attribution_prefs (
	repo_id               INTEGER PRIMARY KEY REFERENCES repos(id) ON DELETE CASCADE,
	cache_prompt_metadata INTEGER NOT NULL DEFAULT 0,
	store_prompt_text     INTEGER NOT NULL DEFAULT 0,
	show_line_overlays    INTEGER NOT NULL DEFAULT 1,
	retention_days        INTEGER,
	last_purged_at        TEXT,
	updated_at            TEXT    NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`,
}
