package store

import (
	"database/sql"
	"fmt"
)

// UpsertRewriteKey stores the current rewrite key for a commit, replacing
// any prior value. One current value exists per (repo, commit).
func (s *Store) UpsertRewriteKey(repoID int64, commitSHA, rewriteKey, algorithm string) error {
	_, err := s.db.Exec(
		`INSERT INTO commit_rewrite_keys (repo_id, commit_sha, rewrite_key, algorithm)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(repo_id, commit_sha) DO UPDATE SET
			rewrite_key = excluded.rewrite_key,
			algorithm = excluded.algorithm,
			updated_at = CURRENT_TIMESTAMP`,
		repoID, commitSHA, rewriteKey, algorithm,
	)
	if err != nil {
		return fmt.Errorf("upsert rewrite key: %w", err)
	}
	return nil
}

// RewriteKey returns the stored rewrite key for a commit, or "" if none.
func (s *Store) RewriteKey(repoID int64, commitSHA string) (key, algorithm string, err error) {
	err = s.db.QueryRow(
		`SELECT rewrite_key, algorithm FROM commit_rewrite_keys
		 WHERE repo_id = ? AND commit_sha = ?`,
		repoID, commitSHA,
	).Scan(&key, &algorithm)
	if err == sql.ErrNoRows {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("load rewrite key: %w", err)
	}
	return key, algorithm, nil
}

// CommitByRewriteKey finds a donor commit in the same repo with the same
// rewrite key, excluding the given sha, restricted to commits that
// actually have attribution rows. The most recently updated key wins.
// Returns "" if no donor exists.
func (s *Store) CommitByRewriteKey(repoID int64, rewriteKey, excludeSHA string) (string, error) {
	var sha string
	err := s.db.QueryRow(
		`SELECT rk.commit_sha
		 FROM commit_rewrite_keys rk
		 WHERE rk.repo_id = ?
		   AND rk.rewrite_key = ?
		   AND rk.commit_sha != ?
		   AND EXISTS (
			SELECT 1 FROM line_attributions la
			WHERE la.repo_id = rk.repo_id AND la.commit_sha = rk.commit_sha
		   )
		 ORDER BY rk.updated_at DESC, rk.created_at DESC
		 LIMIT 1`,
		repoID, rewriteKey, excludeSHA,
	).Scan(&sha)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find commit by rewrite key: %w", err)
	}
	return sha, nil
}
