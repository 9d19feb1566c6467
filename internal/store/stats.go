package store

import (
	"database/sql"
	"fmt"
)

// ContributionStatsRow is the cached per-commit contribution summary.
type ContributionStatsRow struct {
	HumanLines         int
	AIAgentLines       int
	AIAssistLines      int
	CollaborativeLines int
	TotalLines         int
	AIPercentage       float64
	Tool               *string
	Model              *string
}

// ToolStatsRow is one cached per-tool line count for a commit.
type ToolStatsRow struct {
	Tool      string
	Model     *string
	LineCount int
}

// CachedStats returns the cached contribution stats for a commit, or nil
// when none are cached.
func (s *Store) CachedStats(repoID int64, commitSHA string) (*ContributionStatsRow, error) {
	var row ContributionStatsRow
	err := s.db.QueryRow(
		`SELECT human_lines, ai_agent_lines, ai_assist_lines, collaborative_lines,
			total_lines, ai_percentage, tool, model
		 FROM commit_contribution_stats
		 WHERE repo_id = ? AND commit_sha = ?`,
		repoID, commitSHA,
	).Scan(&row.HumanLines, &row.AIAgentLines, &row.AIAssistLines, &row.CollaborativeLines,
		&row.TotalLines, &row.AIPercentage, &row.Tool, &row.Model)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cached stats: %w", err)
	}
	return &row, nil
}

// UpsertContributionStats caches contribution stats for a commit.
func (s *Store) UpsertContributionStats(repoID int64, commitSHA string, sessionID *string, row ContributionStatsRow) error {
	_, err := s.db.Exec(
		`INSERT INTO commit_contribution_stats (
			repo_id, commit_sha, session_id,
			human_lines, ai_agent_lines, ai_assist_lines, collaborative_lines,
			total_lines, ai_percentage, tool, model
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, commit_sha) DO UPDATE SET
			session_id = excluded.session_id,
			human_lines = excluded.human_lines,
			ai_agent_lines = excluded.ai_agent_lines,
			ai_assist_lines = excluded.ai_assist_lines,
			collaborative_lines = excluded.collaborative_lines,
			total_lines = excluded.total_lines,
			ai_percentage = excluded.ai_percentage,
			tool = excluded.tool,
			model = excluded.model,
			updated_at = CURRENT_TIMESTAMP`,
		repoID, commitSHA, sessionID,
		row.HumanLines, row.AIAgentLines, row.AIAssistLines, row.CollaborativeLines,
		row.TotalLines, row.AIPercentage, row.Tool, row.Model,
	)
	if err != nil {
		return fmt.Errorf("upsert contribution stats: %w", err)
	}
	return nil
}

// ReplaceToolStats replaces the cached tool breakdown for a commit.
func (s *Store) ReplaceToolStats(repoID int64, commitSHA string, rows []ToolStatsRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tool stats: %w", err)
	}

	if _, err := tx.Exec(
		`DELETE FROM commit_tool_stats WHERE repo_id = ? AND commit_sha = ?`,
		repoID, commitSHA,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear tool stats: %w", err)
	}

	for _, row := range rows {
		if _, err := tx.Exec(
			`INSERT INTO commit_tool_stats (repo_id, commit_sha, tool, model, line_count)
			 VALUES (?, ?, ?, ?, ?)`,
			repoID, commitSHA, row.Tool, row.Model, row.LineCount,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert tool stats: %w", err)
		}
	}

	return tx.Commit()
}

// ToolBreakdown returns the cached tool breakdown for a commit, nil if none.
func (s *Store) ToolBreakdown(repoID int64, commitSHA string) ([]ToolStatsRow, error) {
	rows, err := s.db.Query(
		`SELECT tool, model, line_count FROM commit_tool_stats
		 WHERE repo_id = ? AND commit_sha = ?
		 ORDER BY line_count DESC, tool`,
		repoID, commitSHA,
	)
	if err != nil {
		return nil, fmt.Errorf("query tool stats: %w", err)
	}
	defer rows.Close()

	var out []ToolStatsRow
	for rows.Next() {
		var row ToolStatsRow
		if err := rows.Scan(&row.Tool, &row.Model, &row.LineCount); err != nil {
			return nil, fmt.Errorf("scan tool stats: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
