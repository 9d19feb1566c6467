// Package notecodec serializes commit attribution into the portable note
// body format and parses it back. The body is a plain-text section of
// per-file session ranges, a literal "---" separator, and a JSON tail
// with per-session source metadata.
//
// The format is forgiving on the way in: malformed range tokens are
// dropped, and a bad JSON tail never invalidates a file section that
// already parsed. Message bodies are never embedded; the JSON tail
// always carries messages_redacted.
package notecodec

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// SchemaVersion identifies the note payload schema written by Build.
const SchemaVersion = "narrative/attribution/1.0.0"

// Range attributes a 1-based inclusive line span to a session.
type Range struct {
	SessionID string
	StartLine int
	EndLine   int
}

// File groups the attributed ranges of one file path.
type File struct {
	Path   string
	Ranges []Range
}

// SourceMeta describes one session referenced by the note.
type SourceMeta struct {
	Tool           *string
	Model          *string
	CheckpointKind *string
	ConversationID *string
}

// Note is the parsed form of a note body. A note with files but no
// sources is valid: the JSON tail is best-effort.
type Note struct {
	Files            []File
	Sources          map[string]SourceMeta
	RewriteKey       *string
	RewriteAlgorithm *string
	SchemaVersion    *string
}

type notePayload struct {
	SchemaVersion    *string                      `json:"schema_version"`
	BaseCommitSHA    *string                      `json:"base_commit_sha"`
	RewriteKey       *string                      `json:"rewrite_key,omitempty"`
	RewriteAlgorithm *string                      `json:"rewrite_algorithm,omitempty"`
	Prompts          map[string]noteSourcePayload `json:"prompts"`
	// Legacy alias for Prompts; accepted on parse, never written.
	Sources          map[string]noteSourcePayload `json:"sources,omitempty"`
	MessagesRedacted *bool                        `json:"messages_redacted,omitempty"`
}

type noteSourcePayload struct {
	AgentID          *noteAgentID `json:"agent_id"`
	CheckpointKind   *string      `json:"checkpoint_kind,omitempty"`
	Model            *string      `json:"model,omitempty"`
	MessagesRedacted *bool        `json:"messages_redacted,omitempty"`
}

type noteAgentID struct {
	Tool  *string `json:"tool"`
	ID    *string `json:"id"`
	Model *string `json:"model"`
}

// Parse decodes a note body. File blocks are introduced by unindented
// path lines; indented lines carry "session_id N-M,N,..." ranges.
// Everything after the first "---" line is the JSON tail.
func Parse(message string) Note {
	var (
		files       []File
		currentFile *File
		jsonLines   []string
		inJSON      bool
	)

	for _, line := range strings.Split(message, "\n") {
		if !inJSON && strings.TrimSpace(line) == "---" {
			inJSON = true
			continue
		}
		if inJSON {
			jsonLines = append(jsonLines, line)
			continue
		}

		trimmed := strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(trimmed) == "" {
			continue
		}

		if !strings.HasPrefix(trimmed, " ") && !strings.HasPrefix(trimmed, "\t") {
			if currentFile != nil {
				files = append(files, *currentFile)
			}
			currentFile = &File{Path: strings.TrimSpace(trimmed)}
			continue
		}

		if currentFile == nil {
			continue
		}

		fields := strings.Fields(trimmed)
		if len(fields) < 2 {
			continue
		}
		sessionID := fields[0]
		rangeText := strings.Join(fields[1:], " ")

		for _, segment := range strings.Split(rangeText, ",") {
			seg := strings.TrimSpace(segment)
			if seg == "" {
				continue
			}
			if start, end, ok := strings.Cut(seg, "-"); ok {
				startLine := atoiOr(start, 0)
				endLine := atoiOr(end, startLine)
				if startLine > 0 {
					currentFile.Ranges = append(currentFile.Ranges, Range{
						SessionID: sessionID, StartLine: startLine, EndLine: endLine,
					})
				}
			} else if lineNum := atoiOr(seg, 0); lineNum > 0 {
				currentFile.Ranges = append(currentFile.Ranges, Range{
					SessionID: sessionID, StartLine: lineNum, EndLine: lineNum,
				})
			}
		}
	}
	if currentFile != nil {
		files = append(files, *currentFile)
	}

	note := Note{Files: files, Sources: make(map[string]SourceMeta)}

	jsonText := strings.TrimSpace(strings.Join(jsonLines, "\n"))
	if jsonText == "" {
		return note
	}

	var payload notePayload
	if err := json.Unmarshal([]byte(jsonText), &payload); err != nil {
		// A broken JSON tail must not discard the parsed file section.
		return note
	}

	note.RewriteKey = payload.RewriteKey
	note.RewriteAlgorithm = payload.RewriteAlgorithm
	note.SchemaVersion = payload.SchemaVersion

	sources := payload.Prompts
	if sources == nil {
		sources = payload.Sources
	}
	for sessionID, src := range sources {
		meta := SourceMeta{CheckpointKind: src.CheckpointKind, Model: src.Model}
		if src.AgentID != nil {
			meta.Tool = src.AgentID.Tool
			meta.ConversationID = src.AgentID.ID
			if src.AgentID.Model != nil {
				meta.Model = src.AgentID.Model
			}
		}
		note.Sources[sessionID] = meta
	}
	return note
}

// Build serializes attribution data into a note body. Files are sorted
// by path, sessions within a file sorted by id, and each session's
// ranges merged (adjacent or overlapping spans combine).
func Build(commitSHA string, files []File, sources map[string]SourceMeta, rewriteKey, rewriteAlgorithm *string) string {
	var lines []string

	sortedFiles := make([]File, len(files))
	copy(sortedFiles, files)
	sort.Slice(sortedFiles, func(i, j int) bool { return sortedFiles[i].Path < sortedFiles[j].Path })

	for _, file := range sortedFiles {
		lines = append(lines, file.Path)

		bySession := make(map[string][][2]int)
		for _, rng := range file.Ranges {
			bySession[rng.SessionID] = append(bySession[rng.SessionID], [2]int{rng.StartLine, rng.EndLine})
		}

		sessionIDs := make([]string, 0, len(bySession))
		for id := range bySession {
			sessionIDs = append(sessionIDs, id)
		}
		sort.Strings(sessionIDs)

		for _, sessionID := range sessionIDs {
			merged := mergePairs(bySession[sessionID])
			tokens := make([]string, 0, len(merged))
			for _, pair := range merged {
				if pair[0] == pair[1] {
					tokens = append(tokens, strconv.Itoa(pair[0]))
				} else {
					tokens = append(tokens, strconv.Itoa(pair[0])+"-"+strconv.Itoa(pair[1]))
				}
			}
			lines = append(lines, "  "+sessionID+" "+strings.Join(tokens, ","))
		}
	}

	redacted := true
	payload := notePayload{
		SchemaVersion:    ptr(SchemaVersion),
		BaseCommitSHA:    ptr(commitSHA),
		RewriteKey:       rewriteKey,
		RewriteAlgorithm: rewriteAlgorithm,
		Prompts:          buildSourcesPayload(sources),
		MessagesRedacted: &redacted,
	}

	jsonBytes, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		jsonBytes = []byte("{}")
	}

	lines = append(lines, "---", string(jsonBytes))
	return strings.Join(lines, "\n")
}

func buildSourcesPayload(sources map[string]SourceMeta) map[string]noteSourcePayload {
	out := make(map[string]noteSourcePayload, len(sources))
	redacted := true
	for sessionID, meta := range sources {
		id := meta.ConversationID
		if id == nil {
			sid := sessionID
			id = &sid
		}
		out[sessionID] = noteSourcePayload{
			AgentID:          &noteAgentID{Tool: meta.Tool, ID: id, Model: meta.Model},
			CheckpointKind:   meta.CheckpointKind,
			MessagesRedacted: &redacted,
		}
	}
	return out
}

// mergePairs sorts spans by start and merges spans whose gap is at most
// one line, keeping the larger end.
func mergePairs(pairs [][2]int) [][2]int {
	if len(pairs) == 0 {
		return pairs
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })

	merged := make([][2]int, 0, len(pairs))
	for _, pair := range pairs {
		if len(merged) > 0 && pair[0] <= merged[len(merged)-1][1]+1 {
			if pair[1] > merged[len(merged)-1][1] {
				merged[len(merged)-1][1] = pair[1]
			}
			continue
		}
		merged = append(merged, pair)
	}
	return merged
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

func ptr(s string) *string {
	return &s
}
