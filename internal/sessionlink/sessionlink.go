// Package sessionlink decides which linked AI sessions claim a changed
// file when a commit has more than one candidate session.
package sessionlink

import (
	"encoding/json"

	"github.com/anthropic/narrative/internal/store"
)

// MatchStrategy selects the sessions responsible for one file out of a
// commit's linked sessions, ordered by descending link confidence.
// Implementations return indexes into the sessions slice.
type MatchStrategy interface {
	Match(filePath string, sessions []store.LinkedSession) []int
}

// FileListStrategy matches sessions whose declared file list contains
// the path. When no session declares the file, the highest-confidence
// session claims it so every changed file gets an owner.
type FileListStrategy struct{}

// Match implements MatchStrategy.
func (FileListStrategy) Match(filePath string, sessions []store.LinkedSession) []int {
	var matched []int
	for i, session := range sessions {
		if sessionFiles(session.Files)[filePath] {
			matched = append(matched, i)
		}
	}
	if len(matched) == 0 && len(sessions) > 0 {
		matched = []int{0}
	}
	return matched
}

// sessionFiles decodes a session's JSON file list. Missing or malformed
// lists are treated as empty.
func sessionFiles(raw *string) map[string]bool {
	if raw == nil {
		return nil
	}
	var paths []string
	if err := json.Unmarshal([]byte(*raw), &paths); err != nil {
		return nil
	}
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return set
}
