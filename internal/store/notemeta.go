package store

import (
	"database/sql"
	"fmt"
)

// NoteMeta records what attribution note was last seen on a commit.
type NoteMeta struct {
	CommitSHA         string
	NoteRef           string
	NoteHash          string
	SchemaVersion     *string
	MetadataAvailable bool
	MetadataCached    bool
	PromptCount       int
}

// UpsertNoteMeta stores note metadata for a commit, replacing any prior
// row for the same (repo, commit, ref).
func (s *Store) UpsertNoteMeta(repoID int64, meta NoteMeta) error {
	available, cached := 0, 0
	if meta.MetadataAvailable {
		available = 1
	}
	if meta.MetadataCached {
		cached = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO attribution_note_meta (
			repo_id, commit_sha, note_ref, note_hash, schema_version,
			metadata_available, metadata_cached, prompt_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, commit_sha, note_ref) DO UPDATE SET
			note_hash = excluded.note_hash,
			schema_version = excluded.schema_version,
			metadata_available = excluded.metadata_available,
			metadata_cached = excluded.metadata_cached,
			prompt_count = excluded.prompt_count,
			updated_at = CURRENT_TIMESTAMP`,
		repoID, meta.CommitSHA, meta.NoteRef, meta.NoteHash, meta.SchemaVersion,
		available, cached, meta.PromptCount,
	)
	if err != nil {
		return fmt.Errorf("upsert note meta: %w", err)
	}
	return nil
}

// NoteMeta returns the stored note metadata for a commit, or nil if none.
func (s *Store) NoteMeta(repoID int64, commitSHA string) (*NoteMeta, error) {
	var meta NoteMeta
	var available, cached int
	var promptCount sql.NullInt64
	err := s.db.QueryRow(
		`SELECT commit_sha, note_ref, note_hash, schema_version,
			metadata_available, metadata_cached, prompt_count
		 FROM attribution_note_meta
		 WHERE repo_id = ? AND commit_sha = ?
		 LIMIT 1`,
		repoID, commitSHA,
	).Scan(&meta.CommitSHA, &meta.NoteRef, &meta.NoteHash, &meta.SchemaVersion,
		&available, &cached, &promptCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load note meta: %w", err)
	}
	meta.MetadataAvailable = available != 0
	meta.MetadataCached = cached != 0
	if promptCount.Valid {
		meta.PromptCount = int(promptCount.Int64)
	}
	return &meta, nil
}

// ClearNoteMeta removes note metadata for a commit (used when the note
// itself has disappeared).
func (s *Store) ClearNoteMeta(repoID int64, commitSHA string) error {
	_, err := s.db.Exec(
		`DELETE FROM attribution_note_meta WHERE repo_id = ? AND commit_sha = ?`,
		repoID, commitSHA,
	)
	if err != nil {
		return fmt.Errorf("clear note meta: %w", err)
	}
	return nil
}

// MarkMetadataCached updates the metadata_cached flag for a commit's note.
func (s *Store) MarkMetadataCached(repoID int64, commitSHA string, cached bool) error {
	val := 0
	if cached {
		val = 1
	}
	_, err := s.db.Exec(
		`UPDATE attribution_note_meta
		 SET metadata_cached = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE repo_id = ? AND commit_sha = ?`,
		val, repoID, commitSHA,
	)
	if err != nil {
		return fmt.Errorf("mark metadata cached: %w", err)
	}
	return nil
}
