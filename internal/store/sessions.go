package store

import (
	"database/sql"
	"fmt"
)

// Session is an AI tool session known to the store.
type Session struct {
	ID             string
	Tool           string
	Model          *string
	ConversationID *string
	// Files is a JSON array of workspace-relative paths the session touched,
	// or nil when the session did not record file activity.
	Files          *string
	TraceAvailable bool
}

// SessionMeta is the subset of session fields used to enrich attribution
// rows and note sources.
type SessionMeta struct {
	Tool           *string
	Model          *string
	ConversationID *string
	TraceAvailable bool
}

// LinkedSession is a session linked to a commit, with link confidence.
type LinkedSession struct {
	SessionID string
	Tool      string
	Model     *string
	Files     *string
}

// UpsertSession inserts or updates a session row.
func (s *Store) UpsertSession(sess Session) error {
	trace := 0
	if sess.TraceAvailable {
		trace = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, tool, model, conversation_id, files, trace_available)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			tool = excluded.tool,
			model = excluded.model,
			conversation_id = excluded.conversation_id,
			files = excluded.files,
			trace_available = excluded.trace_available`,
		sess.ID, sess.Tool, sess.Model, sess.ConversationID, sess.Files, trace,
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", sess.ID, err)
	}
	return nil
}

// SessionMeta returns metadata for a session, or nil if the session is
// unknown. An unknown session is not an error: notes may reference
// sessions that were never imported locally.
func (s *Store) SessionMeta(sessionID string) (*SessionMeta, error) {
	var meta SessionMeta
	var trace int
	err := s.db.QueryRow(
		`SELECT tool, model, conversation_id, trace_available FROM sessions WHERE id = ?`,
		sessionID,
	).Scan(&meta.Tool, &meta.Model, &meta.ConversationID, &trace)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	meta.TraceAvailable = trace != 0
	return &meta, nil
}

// LinkSession records that a session plausibly produced a commit.
func (s *Store) LinkSession(repoID int64, commitSHA, sessionID string, confidence float64) error {
	_, err := s.db.Exec(
		`INSERT INTO session_links (repo_id, commit_sha, session_id, confidence)
		 VALUES (?, ?, ?, ?)`,
		repoID, commitSHA, sessionID, confidence,
	)
	if err != nil {
		return fmt.Errorf("link session %s to %s: %w", sessionID, commitSHA, err)
	}
	return nil
}

// LinkedSessions returns the sessions linked to a commit, ordered by
// descending confidence (most recent link wins ties). No links is an
// empty slice, not an error.
func (s *Store) LinkedSessions(repoID int64, commitSHA string) ([]LinkedSession, error) {
	rows, err := s.db.Query(
		`SELECT s.id, s.tool, s.model, s.files
		 FROM session_links l
		 JOIN sessions s ON s.id = l.session_id
		 WHERE l.repo_id = ? AND l.commit_sha = ?
		 ORDER BY l.confidence DESC, l.created_at DESC`,
		repoID, commitSHA,
	)
	if err != nil {
		return nil, fmt.Errorf("query linked sessions: %w", err)
	}
	defer rows.Close()

	var out []LinkedSession
	for rows.Next() {
		var ls LinkedSession
		if err := rows.Scan(&ls.SessionID, &ls.Tool, &ls.Model, &ls.Files); err != nil {
			return nil, fmt.Errorf("scan linked session: %w", err)
		}
		out = append(out, ls)
	}
	return out, rows.Err()
}
