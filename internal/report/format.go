// Package report renders attribution results for the terminal. It
// formats contribution stats, source lens pages, coverage, and note
// import/export summaries, with a JSON escape hatch for scripting.
package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropic/narrative/internal/attribution"
	"github.com/anthropic/narrative/internal/store"
)

// ANSI escape codes for terminal formatting.
const (
	bold   = "\033[1m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	dim    = "\033[2m"
	reset  = "\033[0m"
)

// FormatStats formats contribution stats as a terminal-friendly string.
// Uses ANSI color codes: >70% AI = red, 30-70% = yellow, <30% = green.
func FormatStats(commitSHA string, stats attribution.ContributionStats) string {
	var b strings.Builder

	b.WriteString(bold + "Narrative - Contribution Stats" + reset + "\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")

	b.WriteString(fmt.Sprintf("Commit:        %s\n", shortSHA(commitSHA)))
	b.WriteString(fmt.Sprintf("AI %%:          %s%s%.1f%%%s\n",
		bold, colorForPct(stats.AIPercentage), stats.AIPercentage, reset))
	b.WriteString(fmt.Sprintf("Total lines:   %d\n", stats.TotalLines))
	b.WriteString(fmt.Sprintf("Human:         %d\n", stats.HumanLines))
	b.WriteString(fmt.Sprintf("AI agent:      %d\n", stats.AIAgentLines))
	b.WriteString(fmt.Sprintf("AI assist:     %d\n", stats.AIAssistLines))
	b.WriteString(fmt.Sprintf("Collaborative: %d\n", stats.CollaborativeLines))
	if stats.PrimaryTool != nil {
		b.WriteString(fmt.Sprintf("Primary tool:  %s\n", labelToolModel(*stats.PrimaryTool, stats.Model)))
	}

	if len(stats.ToolBreakdown) > 0 {
		b.WriteString("\n" + bold + "Tool Breakdown" + reset + "\n")
		b.WriteString(strings.Repeat("-", 40) + "\n")
		b.WriteString(fmt.Sprintf("%-28s %8s\n", "Tool", "Lines"))
		b.WriteString(strings.Repeat("-", 40) + "\n")
		for _, ts := range stats.ToolBreakdown {
			b.WriteString(fmt.Sprintf("%-28s %8d\n", labelToolModel(ts.Tool, ts.Model), ts.LineCount))
		}
	}

	return b.String()
}

// FormatLensPage formats one page of attributed source lines. Each line
// carries a one-character author marker: 'A' agent, 'T' tab completion,
// 'M' mixed, ' ' human.
func FormatLensPage(filePath string, page *attribution.SourceLensPage, showLineNumbers bool) string {
	var b strings.Builder

	b.WriteString(bold + filePath + reset + "\n")
	b.WriteString(fmt.Sprintf("%s%d lines total%s\n\n", dim, page.TotalLines, reset))

	for _, line := range page.Lines {
		marker, color := authorMarker(line.AuthorType)
		if showLineNumbers {
			b.WriteString(fmt.Sprintf("%s%5d%s ", dim, line.LineNumber, reset))
		}
		b.WriteString(fmt.Sprintf("%s%s%s %s\n", color, marker, reset, line.Content))
	}

	if page.HasMore {
		b.WriteString(fmt.Sprintf("\n%s... more lines, increase --limit or advance --offset%s\n", dim, reset))
	}

	return b.String()
}

// FormatCoverage formats a coverage summary, or a note that no
// attribution data exists.
func FormatCoverage(commitSHA string, coverage *attribution.CoverageSummary) string {
	if coverage == nil {
		return fmt.Sprintf("commit %s has no attribution coverage data\n", shortSHA(commitSHA))
	}
	return fmt.Sprintf("commit %s: %d of %d changed lines attributed (%.1f%%)\n",
		shortSHA(commitSHA), coverage.AttributedLines, coverage.TotalChangedLines, coverage.CoveragePercent)
}

// FormatImportSummary formats the outcome of a single note import.
func FormatImportSummary(s attribution.ImportSummary) string {
	switch s.Status {
	case attribution.StatusImported:
		return fmt.Sprintf("imported note for %s: %d ranges, %d sessions\n",
			shortSHA(s.CommitSHA), s.ImportedRanges, s.ImportedSessions)
	case attribution.StatusInvalid:
		return fmt.Sprintf("note for %s is invalid (no parseable file sections)\n", shortSHA(s.CommitSHA))
	default:
		return fmt.Sprintf("no attribution note found for %s\n", shortSHA(s.CommitSHA))
	}
}

// FormatBatchSummary formats the tally of a batch note import.
func FormatBatchSummary(s attribution.BatchSummary) string {
	return fmt.Sprintf("%d commits: %d imported, %d missing, %d failed\n",
		s.Total, s.Imported, s.Missing, s.Failed)
}

// FormatExportSummary formats the outcome of a note export.
func FormatExportSummary(s attribution.ExportSummary) string {
	if s.Status == attribution.StatusExported {
		return fmt.Sprintf("exported attribution note for %s\n", shortSHA(s.CommitSHA))
	}
	return fmt.Sprintf("commit %s has no attribution rows to export\n", shortSHA(s.CommitSHA))
}

// FormatNoteSummary formats a commit's note state.
func FormatNoteSummary(s attribution.NoteSummary) string {
	var b strings.Builder

	b.WriteString(bold + "Narrative - Note Summary" + reset + "\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")

	b.WriteString(fmt.Sprintf("Commit:    %s\n", shortSHA(s.CommitSHA)))
	if !s.HasNote {
		b.WriteString("Note:      (none seen)\n")
	} else {
		b.WriteString(fmt.Sprintf("Note ref:  %s\n", deref(s.NoteRef)))
		b.WriteString(fmt.Sprintf("Note hash: %s\n", shortSHA(deref(s.NoteHash))))
		if s.SchemaVersion != nil {
			b.WriteString(fmt.Sprintf("Schema:    %s\n", *s.SchemaVersion))
		}
		b.WriteString(fmt.Sprintf("Metadata:  available=%t cached=%t\n", s.MetadataAvailable, s.MetadataCached))
		if s.PromptCount != nil {
			b.WriteString(fmt.Sprintf("Sessions:  %d\n", *s.PromptCount))
		}
	}
	if s.Coverage != nil {
		b.WriteString(fmt.Sprintf("Coverage:  %d/%d lines (%.1f%%)\n",
			s.Coverage.AttributedLines, s.Coverage.TotalChangedLines, s.Coverage.CoveragePercent))
	}

	return b.String()
}

// FormatAttributionRows lists raw attribution rows, one per line.
func FormatAttributionRows(commitSHA string, rows []store.LineAttribution) string {
	if len(rows) == 0 {
		return fmt.Sprintf("commit %s has no attribution rows\n", shortSHA(commitSHA))
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d attribution rows for %s\n", len(rows), shortSHA(commitSHA)))
	for _, row := range rows {
		span := fmt.Sprintf("%d-%d", row.StartLine, row.EndLine)
		if row.StartLine == row.EndLine {
			span = fmt.Sprintf("%d", row.StartLine)
		}
		b.WriteString(fmt.Sprintf("  %s:%s %s", row.FilePath, span, row.AuthorType))
		if row.AIPercentage != nil {
			b.WriteString(fmt.Sprintf(" %d%%", *row.AIPercentage))
		}
		if row.SessionID != nil {
			b.WriteString(" session=" + *row.SessionID)
		}
		if row.Tool != nil {
			b.WriteString(" tool=" + labelToolModel(*row.Tool, row.Model))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatJSON marshals any value as indented JSON.
func FormatJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}

func authorMarker(t attribution.AuthorType) (string, string) {
	switch t {
	case attribution.AuthorAIAgent:
		return "A", red
	case attribution.AuthorAITab:
		return "T", yellow
	case attribution.AuthorMixed:
		return "M", yellow
	default:
		return " ", green
	}
}

// colorForPct returns an ANSI color code based on the AI percentage.
// >70% = red, 30-70% = yellow, <30% = green.
func colorForPct(pct float64) string {
	switch {
	case pct > 70:
		return red
	case pct >= 30:
		return yellow
	default:
		return green
	}
}

func labelToolModel(tool string, model *string) string {
	if model != nil && *model != "" {
		return tool + " (" + *model + ")"
	}
	return tool
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
