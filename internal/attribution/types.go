// Package attribution reconstructs who wrote each line of a commit:
// humans, AI agents, tab completions, or a mix. It populates line
// attribution rows from linked sessions and git diffs, reconciles
// overlapping claims into a per-line verdict, aggregates contribution
// stats, and moves attribution in and out of git notes.
package attribution

// AuthorType classifies who authored a line.
type AuthorType string

const (
	// AuthorHuman means no AI claim covers the line.
	AuthorHuman AuthorType = "human"
	// AuthorAIAgent means an agent session wrote the line.
	AuthorAIAgent AuthorType = "ai_agent"
	// AuthorAITab means the line came from inline tab completion.
	AuthorAITab AuthorType = "ai_tab"
	// AuthorMixed means conflicting claims or human edits over AI output.
	AuthorMixed AuthorType = "mixed"
)

// NormalizeAuthorType maps a stored author type string to the closed
// set. Empty and unknown values read as human; "ai_assist" is a legacy
// alias for ai_tab.
func NormalizeAuthorType(s string) AuthorType {
	switch s {
	case string(AuthorAIAgent):
		return AuthorAIAgent
	case string(AuthorAITab), "ai_assist":
		return AuthorAITab
	case string(AuthorMixed):
		return AuthorMixed
	default:
		return AuthorHuman
	}
}

// ToolStats is the line count contributed by one (tool, model) pair.
type ToolStats struct {
	Tool      string  `json:"tool"`
	Model     *string `json:"model,omitempty"`
	LineCount int     `json:"line_count"`
}

// ContributionStats summarizes authorship across a whole commit.
type ContributionStats struct {
	HumanLines         int         `json:"human_lines"`
	AIAgentLines       int         `json:"ai_agent_lines"`
	AIAssistLines      int         `json:"ai_assist_lines"`
	CollaborativeLines int         `json:"collaborative_lines"`
	TotalLines         int         `json:"total_lines"`
	AIPercentage       float64     `json:"ai_percentage"`
	ToolBreakdown      []ToolStats `json:"tool_breakdown,omitempty"`
	PrimaryTool        *string     `json:"primary_tool,omitempty"`
	Model              *string     `json:"model,omitempty"`
}

// HumanOnlyStats returns stats for a commit with no AI evidence at all.
func HumanOnlyStats(totalLines int) ContributionStats {
	return ContributionStats{HumanLines: totalLines, TotalLines: totalLines}
}

// SourceLine is one file line with its reconciled authorship verdict.
type SourceLine struct {
	LineNumber     int        `json:"line_number"`
	Content        string     `json:"content"`
	AuthorType     AuthorType `json:"author_type"`
	SessionID      *string    `json:"session_id,omitempty"`
	AIPercentage   *int       `json:"ai_percentage,omitempty"`
	Tool           *string    `json:"tool,omitempty"`
	Model          *string    `json:"model,omitempty"`
	TraceAvailable bool       `json:"trace_available"`
}

// SourceLensPage is one page of a file's attributed lines.
type SourceLensPage struct {
	Lines      []SourceLine `json:"lines"`
	TotalLines int          `json:"total_lines"`
	HasMore    bool         `json:"has_more"`
}

// CoverageSummary reports how much of a commit's changed surface is
// covered by attribution rows.
type CoverageSummary struct {
	TotalChangedLines int     `json:"total_changed_lines"`
	AttributedLines   int     `json:"attributed_lines"`
	CoveragePercent   float64 `json:"coverage_percent"`
}

// ImportSummary is the outcome of importing one commit's note.
type ImportSummary struct {
	CommitSHA        string `json:"commit_sha"`
	Status           string `json:"status"`
	ImportedRanges   int    `json:"imported_ranges"`
	ImportedSessions int    `json:"imported_sessions"`
}

// BatchSummary tallies a batch note import.
type BatchSummary struct {
	Total    int `json:"total"`
	Imported int `json:"imported"`
	Missing  int `json:"missing"`
	Failed   int `json:"failed"`
}

// ExportSummary is the outcome of exporting one commit's note.
type ExportSummary struct {
	CommitSHA string `json:"commit_sha"`
	Status    string `json:"status"`
}

// NoteSummary describes the note state of a commit without importing it.
type NoteSummary struct {
	CommitSHA         string           `json:"commit_sha"`
	HasNote           bool             `json:"has_note"`
	NoteRef           *string          `json:"note_ref,omitempty"`
	NoteHash          *string          `json:"note_hash,omitempty"`
	SchemaVersion     *string          `json:"schema_version,omitempty"`
	MetadataAvailable bool             `json:"metadata_available"`
	MetadataCached    bool             `json:"metadata_cached"`
	PromptCount       *int             `json:"prompt_count,omitempty"`
	Coverage          *CoverageSummary `json:"coverage,omitempty"`
}

// Import and export statuses.
const (
	StatusImported = "imported"
	StatusMissing  = "missing"
	StatusInvalid  = "invalid"
	StatusExported = "exported"
	StatusEmpty    = "empty"
)
