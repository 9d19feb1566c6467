package store

import (
	"database/sql"
	"fmt"
)

// LineAttribution is one attribution range for a commit. Ranges are
// 1-based inclusive and may overlap other rows for the same lines.
type LineAttribution struct {
	RepoID       int64
	CommitSHA    string
	FilePath     string
	StartLine    int
	EndLine      int
	SessionID    *string
	AuthorType   string
	AIPercentage *int
	Tool         *string
	Model        *string
}

// FileAttribution is a line attribution row joined with the linked
// session's trace availability, as consumed by the source lens.
type FileAttribution struct {
	StartLine      int
	EndLine        int
	SessionID      *string
	AuthorType     string
	AIPercentage   *int
	Tool           *string
	Model          *string
	TraceAvailable bool
}

// HasLineAttributions reports whether any attribution rows exist for a commit.
func (s *Store) HasLineAttributions(repoID int64, commitSHA string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM line_attributions WHERE repo_id = ? AND commit_sha = ? LIMIT 1`,
		repoID, commitSHA,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check line attributions: %w", err)
	}
	return true, nil
}

// InsertLineAttribution appends one attribution row.
func (s *Store) InsertLineAttribution(la LineAttribution) error {
	_, err := s.db.Exec(
		`INSERT INTO line_attributions (
			repo_id, commit_sha, file_path, start_line, end_line,
			session_id, author_type, ai_percentage, tool, model
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		la.RepoID, la.CommitSHA, la.FilePath, la.StartLine, la.EndLine,
		la.SessionID, la.AuthorType, la.AIPercentage, la.Tool, la.Model,
	)
	if err != nil {
		return fmt.Errorf("insert line attribution: %w", err)
	}
	return nil
}

// DeleteLineAttributions removes all attribution rows for a commit.
func (s *Store) DeleteLineAttributions(repoID int64, commitSHA string) error {
	_, err := s.db.Exec(
		`DELETE FROM line_attributions WHERE repo_id = ? AND commit_sha = ?`,
		repoID, commitSHA,
	)
	if err != nil {
		return fmt.Errorf("delete line attributions: %w", err)
	}
	return nil
}

// CopyLineAttributions copies all rows from one commit to another within
// the same repo and returns the number of rows copied.
func (s *Store) CopyLineAttributions(repoID int64, sourceSHA, targetSHA string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO line_attributions (
			repo_id, commit_sha, file_path, start_line, end_line,
			session_id, author_type, ai_percentage, tool, model
		)
		SELECT repo_id, ?, file_path, start_line, end_line,
			session_id, author_type, ai_percentage, tool, model
		FROM line_attributions
		WHERE repo_id = ? AND commit_sha = ?`,
		targetSHA, repoID, sourceSHA,
	)
	if err != nil {
		return 0, fmt.Errorf("copy line attributions: %w", err)
	}
	return res.RowsAffected()
}

// LineAttributionsForCommit returns all attribution rows for a commit,
// ordered by file path then start line.
func (s *Store) LineAttributionsForCommit(repoID int64, commitSHA string) ([]LineAttribution, error) {
	rows, err := s.db.Query(
		`SELECT file_path, start_line, end_line, session_id, author_type, ai_percentage, tool, model
		 FROM line_attributions
		 WHERE repo_id = ? AND commit_sha = ?
		 ORDER BY file_path, start_line`,
		repoID, commitSHA,
	)
	if err != nil {
		return nil, fmt.Errorf("query line attributions: %w", err)
	}
	defer rows.Close()

	var out []LineAttribution
	for rows.Next() {
		la := LineAttribution{RepoID: repoID, CommitSHA: commitSHA}
		if err := rows.Scan(&la.FilePath, &la.StartLine, &la.EndLine,
			&la.SessionID, &la.AuthorType, &la.AIPercentage, &la.Tool, &la.Model); err != nil {
			return nil, fmt.Errorf("scan line attribution: %w", err)
		}
		out = append(out, la)
	}
	return out, rows.Err()
}

// LineAttributionsForFile returns attribution rows for one file of a
// commit, joined with session trace availability, ordered by start line.
func (s *Store) LineAttributionsForFile(repoID int64, commitSHA, filePath string) ([]FileAttribution, error) {
	rows, err := s.db.Query(
		`SELECT la.start_line, la.end_line, la.session_id, la.author_type,
			la.ai_percentage, la.tool, la.model,
			COALESCE(s.trace_available, 0)
		 FROM line_attributions la
		 LEFT JOIN sessions s ON s.id = la.session_id
		 WHERE la.repo_id = ? AND la.commit_sha = ? AND la.file_path = ?
		 ORDER BY la.start_line`,
		repoID, commitSHA, filePath,
	)
	if err != nil {
		return nil, fmt.Errorf("query file attributions: %w", err)
	}
	defer rows.Close()

	var out []FileAttribution
	for rows.Next() {
		var fa FileAttribution
		var trace int
		if err := rows.Scan(&fa.StartLine, &fa.EndLine, &fa.SessionID, &fa.AuthorType,
			&fa.AIPercentage, &fa.Tool, &fa.Model, &trace); err != nil {
			return nil, fmt.Errorf("scan file attribution: %w", err)
		}
		fa.TraceAvailable = trace != 0
		out = append(out, fa)
	}
	return out, rows.Err()
}
