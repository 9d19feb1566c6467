package store

import (
	"database/sql"
	"fmt"
)

// Repo is a tracked repository row.
type Repo struct {
	ID   int64
	Path string
	Name string
}

// AddRepo registers a repository by filesystem path and returns its id.
// Re-registering an existing path updates the name and returns the same id.
func (s *Store) AddRepo(path, name string) (int64, error) {
	_, err := s.db.Exec(
		`INSERT INTO repos (path, name) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET name = excluded.name`,
		path, name,
	)
	if err != nil {
		return 0, fmt.Errorf("add repo: %w", err)
	}

	var id int64
	if err := s.db.QueryRow(`SELECT id FROM repos WHERE path = ?`, path).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup repo id: %w", err)
	}
	return id, nil
}

// RepoRoot returns the filesystem path of a registered repository.
// An unknown repo id is an error: nothing downstream can work without it.
func (s *Store) RepoRoot(repoID int64) (string, error) {
	var path string
	err := s.db.QueryRow(`SELECT path FROM repos WHERE id = ?`, repoID).Scan(&path)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("repo %d not registered", repoID)
	}
	if err != nil {
		return "", fmt.Errorf("load repo path: %w", err)
	}
	return path, nil
}

// RepoByPath returns the repo row for a path, or nil if not registered.
func (s *Store) RepoByPath(path string) (*Repo, error) {
	var r Repo
	err := s.db.QueryRow(`SELECT id, path, name FROM repos WHERE path = ?`, path).
		Scan(&r.ID, &r.Path, &r.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup repo by path: %w", err)
	}
	return &r, nil
}
