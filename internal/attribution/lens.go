package attribution

import (
	"github.com/anthropic/narrative/internal/store"
)

// lineMeta is the reconciled verdict for one line. The zero-ish default
// (AuthorHuman, everything else unset) is what a line with no claims
// reads as.
type lineMeta struct {
	authorType     AuthorType
	sessionID      *string
	aiPercentage   *int
	tool           *string
	model          *string
	traceAvailable bool
}

// FileSourceLens returns one page of a file's lines at a commit, each
// carrying its reconciled authorship. Attribution rows are populated on
// demand; an offset at or past the end yields an empty page.
func (s *Service) FileSourceLens(repoID int64, commitSHA, filePath string, offset, limit int) (*SourceLensPage, error) {
	if err := s.EnsureLineAttributions(repoID, commitSHA); err != nil {
		logf("ensure attributions for %s: %v", commitSHA, err)
	}

	repo, err := s.openRepo(repoID)
	if err != nil {
		return nil, err
	}
	fileLines, err := repo.FileLines(commitSHA, filePath)
	if err != nil {
		return nil, err
	}
	if len(fileLines) == 0 {
		return &SourceLensPage{Lines: []SourceLine{}, TotalLines: 0, HasMore: false}, nil
	}

	attrs, err := s.store.LineAttributionsForFile(repoID, commitSHA, filePath)
	if err != nil {
		return nil, err
	}
	meta := buildLineMeta(len(fileLines), attrs)

	totalLines := len(fileLines)
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	if offset >= totalLines {
		return &SourceLensPage{Lines: []SourceLine{}, TotalLines: totalLines, HasMore: false}, nil
	}

	end := offset + limit
	if end > totalLines {
		end = totalLines
	}

	lines := make([]SourceLine, 0, end-offset)
	for i := offset; i < end; i++ {
		m := meta[i]
		lines = append(lines, SourceLine{
			LineNumber:     i + 1,
			Content:        fileLines[i],
			AuthorType:     m.authorType,
			SessionID:      m.sessionID,
			AIPercentage:   m.aiPercentage,
			Tool:           m.tool,
			Model:          m.model,
			TraceAvailable: m.traceAvailable,
		})
	}

	return &SourceLensPage{
		Lines:      lines,
		TotalLines: totalLines,
		HasMore:    end < totalLines,
	}, nil
}

// buildLineMeta folds attribution rows into one verdict per line. Rows
// apply in ascending start order; spans are clamped to the file.
func buildLineMeta(totalLines int, attrs []store.FileAttribution) []lineMeta {
	lines := make([]lineMeta, totalLines)
	for i := range lines {
		lines[i].authorType = AuthorHuman
	}

	for _, attr := range attrs {
		start := attr.StartLine
		if start < 1 {
			start = 1
		}
		end := attr.EndLine
		if end < start {
			end = start
		}
		for lineNum := start; lineNum <= end; lineNum++ {
			if lineNum > totalLines {
				break
			}
			applyLineAttr(&lines[lineNum-1], attr)
		}
	}
	return lines
}

// applyLineAttr reconciles one claim into a line's verdict.
//
// A default (human) line adopts the claim wholesale. After that, a
// claim of a different type, or an unmixed claim from a different known
// session, degrades the line to mixed at 50%; an incoming mixed claim
// contributes its own percentage. Unset session/tool/model fields are
// back-filled from later claims, and trace availability is sticky.
func applyLineAttr(meta *lineMeta, attr store.FileAttribution) {
	incoming := NormalizeAuthorType(attr.AuthorType)
	incomingTrace := attr.TraceAvailable

	if meta.authorType == AuthorHuman {
		meta.authorType = incoming
		meta.sessionID = attr.SessionID
		meta.aiPercentage = attr.AIPercentage
		meta.tool = attr.Tool
		meta.model = attr.Model
		meta.traceAvailable = incomingTrace
		return
	}

	shouldMix := meta.authorType != incoming ||
		(incoming != AuthorMixed &&
			meta.sessionID != nil && attr.SessionID != nil &&
			*meta.sessionID != *attr.SessionID)

	if shouldMix {
		meta.authorType = AuthorMixed
		pct := 50
		meta.aiPercentage = &pct
	} else if incoming == AuthorMixed && attr.AIPercentage != nil {
		meta.aiPercentage = attr.AIPercentage
	}

	if meta.sessionID == nil {
		meta.sessionID = attr.SessionID
	}
	if meta.tool == nil {
		meta.tool = attr.Tool
	}
	if meta.model == nil {
		meta.model = attr.Model
	}
	meta.traceAvailable = meta.traceAvailable || incomingTrace
}
