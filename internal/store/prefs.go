package store

import (
	"database/sql"
	"fmt"
)

// Prefs holds per-repo attribution preferences.
type Prefs struct {
	RepoID              int64
	CachePromptMetadata bool
	StorePromptText     bool
	ShowLineOverlays    bool
	RetentionDays       *int
	LastPurgedAt        *string
}

// PrefsUpdate is a partial update to Prefs. Nil fields keep their
// current values; ClearRetentionDays unsets retention entirely.
type PrefsUpdate struct {
	CachePromptMetadata *bool
	StorePromptText     *bool
	ShowLineOverlays    *bool
	RetentionDays       *int
	ClearRetentionDays  bool
}

// FetchOrCreatePrefs returns the prefs row for a repo, creating it with
// defaults on first access.
func (s *Store) FetchOrCreatePrefs(repoID int64) (*Prefs, error) {
	p, err := s.loadPrefs(repoID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}

	_, err = s.db.Exec(
		`INSERT INTO attribution_prefs (repo_id, cache_prompt_metadata, store_prompt_text, show_line_overlays)
		 VALUES (?, 0, 0, 1)`,
		repoID,
	)
	if err != nil {
		return nil, fmt.Errorf("create prefs: %w", err)
	}

	return &Prefs{RepoID: repoID, ShowLineOverlays: true}, nil
}

// UpdatePrefs applies a partial update and returns the resulting prefs.
func (s *Store) UpdatePrefs(repoID int64, update PrefsUpdate) (*Prefs, error) {
	current, err := s.FetchOrCreatePrefs(repoID)
	if err != nil {
		return nil, err
	}

	next := *current
	if update.CachePromptMetadata != nil {
		next.CachePromptMetadata = *update.CachePromptMetadata
	}
	if update.StorePromptText != nil {
		next.StorePromptText = *update.StorePromptText
	}
	if update.ShowLineOverlays != nil {
		next.ShowLineOverlays = *update.ShowLineOverlays
	}
	if update.ClearRetentionDays {
		next.RetentionDays = nil
	} else if update.RetentionDays != nil {
		next.RetentionDays = update.RetentionDays
	}

	_, err = s.db.Exec(
		`UPDATE attribution_prefs
		 SET cache_prompt_metadata = ?, store_prompt_text = ?, show_line_overlays = ?,
			retention_days = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE repo_id = ?`,
		boolToInt(next.CachePromptMetadata), boolToInt(next.StorePromptText),
		boolToInt(next.ShowLineOverlays), next.RetentionDays, repoID,
	)
	if err != nil {
		return nil, fmt.Errorf("update prefs: %w", err)
	}

	return &next, nil
}

func (s *Store) loadPrefs(repoID int64) (*Prefs, error) {
	var p Prefs
	var cacheMeta, storeText, overlays int
	err := s.db.QueryRow(
		`SELECT repo_id, cache_prompt_metadata, store_prompt_text, show_line_overlays,
			retention_days, last_purged_at
		 FROM attribution_prefs
		 WHERE repo_id = ?`,
		repoID,
	).Scan(&p.RepoID, &cacheMeta, &storeText, &overlays, &p.RetentionDays, &p.LastPurgedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load prefs: %w", err)
	}
	p.CachePromptMetadata = cacheMeta != 0
	p.StorePromptText = storeText != 0
	p.ShowLineOverlays = overlays != 0
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
