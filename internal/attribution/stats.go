package attribution

import (
	"sort"

	"github.com/anthropic/narrative/internal/store"
)

// CommitStats returns contribution stats for a commit, computing and
// caching them on first request. A commit with no attribution rows at
// all reads as fully human.
func (s *Service) CommitStats(repoID int64, commitSHA string) (ContributionStats, error) {
	if err := s.EnsureLineAttributions(repoID, commitSHA); err != nil {
		logf("ensure attributions for %s: %v", commitSHA, err)
	}

	if cached, err := s.cachedStats(repoID, commitSHA); err == nil && cached != nil {
		return *cached, nil
	}

	stats, err := s.computeStatsFromAttributions(repoID, commitSHA)
	if err != nil {
		return ContributionStats{}, err
	}
	if stats != nil {
		if err := s.cacheStats(repoID, commitSHA, nil, *stats); err != nil {
			logf("cache stats for %s: %v", commitSHA, err)
		}
		return *stats, nil
	}

	return HumanOnlyStats(0), nil
}

// ComputeStatsBatch pre-computes and caches stats for many commits,
// returning how many were newly computed. Commits that fail or have no
// attribution rows are skipped, not fatal.
func (s *Service) ComputeStatsBatch(repoID int64, commitSHAs []string) (int, error) {
	computed := 0
	for _, commitSHA := range commitSHAs {
		if err := s.EnsureLineAttributions(repoID, commitSHA); err != nil {
			logf("ensure attributions for %s: %v", commitSHA, err)
		}

		if cached, err := s.cachedStats(repoID, commitSHA); err == nil && cached != nil {
			continue
		}

		stats, err := s.computeStatsFromAttributions(repoID, commitSHA)
		if err != nil || stats == nil {
			continue
		}
		if err := s.cacheStats(repoID, commitSHA, nil, *stats); err != nil {
			logf("cache stats for %s: %v", commitSHA, err)
			continue
		}
		computed++
	}
	return computed, nil
}

func (s *Service) cachedStats(repoID int64, commitSHA string) (*ContributionStats, error) {
	row, err := s.store.CachedStats(repoID, commitSHA)
	if err != nil || row == nil {
		return nil, err
	}

	stats := ContributionStats{
		HumanLines:         row.HumanLines,
		AIAgentLines:       row.AIAgentLines,
		AIAssistLines:      row.AIAssistLines,
		CollaborativeLines: row.CollaborativeLines,
		TotalLines:         row.TotalLines,
		AIPercentage:       row.AIPercentage,
		PrimaryTool:        row.Tool,
		Model:              row.Model,
	}

	if breakdown, err := s.store.ToolBreakdown(repoID, commitSHA); err == nil {
		for _, b := range breakdown {
			stats.ToolBreakdown = append(stats.ToolBreakdown, ToolStats{
				Tool: b.Tool, Model: b.Model, LineCount: b.LineCount,
			})
		}
	}
	return &stats, nil
}

func (s *Service) cacheStats(repoID int64, commitSHA string, sessionID *string, stats ContributionStats) error {
	row := store.ContributionStatsRow{
		HumanLines:         stats.HumanLines,
		AIAgentLines:       stats.AIAgentLines,
		AIAssistLines:      stats.AIAssistLines,
		CollaborativeLines: stats.CollaborativeLines,
		TotalLines:         stats.TotalLines,
		AIPercentage:       stats.AIPercentage,
		Tool:               stats.PrimaryTool,
		Model:              stats.Model,
	}
	if err := s.store.UpsertContributionStats(repoID, commitSHA, sessionID, row); err != nil {
		return err
	}

	toolRows := make([]store.ToolStatsRow, 0, len(stats.ToolBreakdown))
	for _, b := range stats.ToolBreakdown {
		toolRows = append(toolRows, store.ToolStatsRow{Tool: b.Tool, Model: b.Model, LineCount: b.LineCount})
	}
	return s.store.ReplaceToolStats(repoID, commitSHA, toolRows)
}

type toolKey struct {
	tool     string
	model    string
	hasModel bool
}

// computeStatsFromAttributions derives stats from the commit's rows by
// reconciling every file's lines and counting the verdicts. Returns nil
// when the commit has no rows. Files missing from the commit's tree
// (attributions from a stale note) are skipped.
func (s *Service) computeStatsFromAttributions(repoID int64, commitSHA string) (*ContributionStats, error) {
	rows, err := s.store.LineAttributionsForCommit(repoID, commitSHA)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	repo, err := s.openRepo(repoID)
	if err != nil {
		return nil, err
	}

	byFile := make(map[string][]store.LineAttribution)
	for _, row := range rows {
		byFile[row.FilePath] = append(byFile[row.FilePath], row)
	}

	var stats ContributionStats
	toolCounts := make(map[toolKey]int)

	for filePath, attrs := range byFile {
		fileLines, err := repo.FileLines(commitSHA, filePath)
		if err != nil || len(fileLines) == 0 {
			continue
		}

		fileAttrs := make([]store.FileAttribution, 0, len(attrs))
		for _, row := range attrs {
			fileAttrs = append(fileAttrs, store.FileAttribution{
				StartLine:    row.StartLine,
				EndLine:      row.EndLine,
				SessionID:    row.SessionID,
				AuthorType:   row.AuthorType,
				AIPercentage: row.AIPercentage,
				Tool:         row.Tool,
				Model:        row.Model,
			})
		}

		for _, meta := range buildLineMeta(len(fileLines), fileAttrs) {
			switch meta.authorType {
			case AuthorAIAgent:
				stats.AIAgentLines++
				countTool(toolCounts, meta)
			case AuthorAITab:
				stats.AIAssistLines++
				countTool(toolCounts, meta)
			case AuthorMixed:
				stats.CollaborativeLines++
			default:
				stats.HumanLines++
			}
		}
	}

	stats.TotalLines = stats.HumanLines + stats.AIAgentLines + stats.AIAssistLines + stats.CollaborativeLines
	if stats.TotalLines > 0 {
		aiTotal := stats.AIAgentLines + stats.AIAssistLines + stats.CollaborativeLines
		stats.AIPercentage = float64(aiTotal) / float64(stats.TotalLines) * 100.0
	}

	if len(toolCounts) > 0 {
		breakdown := make([]ToolStats, 0, len(toolCounts))
		for key, count := range toolCounts {
			ts := ToolStats{Tool: key.tool, LineCount: count}
			if key.hasModel {
				model := key.model
				ts.Model = &model
			}
			breakdown = append(breakdown, ts)
		}
		sort.Slice(breakdown, func(i, j int) bool {
			if breakdown[i].LineCount != breakdown[j].LineCount {
				return breakdown[i].LineCount > breakdown[j].LineCount
			}
			return breakdown[i].Tool < breakdown[j].Tool
		})
		stats.PrimaryTool = &breakdown[0].Tool
		stats.Model = breakdown[0].Model
		stats.ToolBreakdown = breakdown
	}

	return &stats, nil
}

func countTool(counts map[toolKey]int, meta lineMeta) {
	key := toolKey{tool: "unknown"}
	if meta.tool != nil {
		key.tool = *meta.tool
	}
	if meta.model != nil {
		key.model = *meta.model
		key.hasModel = true
	}
	counts[key]++
}
