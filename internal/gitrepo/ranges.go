package gitrepo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ChangeKind classifies a changed range as a pure insertion or a
// replacement of deleted lines.
type ChangeKind int

const (
	// Added marks lines inserted with no deletion immediately before them.
	Added ChangeKind = iota
	// Modified marks lines that replaced deleted lines.
	Modified
)

func (k ChangeKind) String() string {
	if k == Modified {
		return "modified"
	}
	return "added"
}

// ChangedRange is a contiguous run of changed lines in a commit's
// post-image, 1-based inclusive.
type ChangedRange struct {
	StartLine int
	EndLine   int
	Kind      ChangeKind
}

// rangeState tracks the open run while walking a file's diff.
type rangeState struct {
	start       int
	prev        int
	kind        ChangeKind
	open        bool
	sawDeletion bool
}

func (st *rangeState) flush(ranges *[]ChangedRange) {
	if st.open {
		*ranges = append(*ranges, ChangedRange{StartLine: st.start, EndLine: st.prev, Kind: st.kind})
	}
	st.open = false
}

// ListCommitFiles returns the paths touched by a commit versus its first
// parent, sorted.
func (r *Repo) ListCommitFiles(sha string) ([]string, error) {
	c, err := r.Commit(sha)
	if err != nil {
		return nil, err
	}
	changes, err := r.commitChanges(c)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, change := range changes {
		seen[changePath(change)] = true
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// ChangedRangesByFile returns the changed line ranges of every file in a
// commit versus its first parent. Binary files and content-identical
// renames yield no ranges.
func (r *Repo) ChangedRangesByFile(sha string) (map[string][]ChangedRange, error) {
	c, err := r.Commit(sha)
	if err != nil {
		return nil, err
	}
	changes, err := r.commitChanges(c)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]ChangedRange)
	for _, change := range changes {
		path := changePath(change)
		ranges, err := changeRanges(change)
		if err != nil {
			return nil, fmt.Errorf("ranges for %s in %s: %w", path, sha, err)
		}
		out[path] = ranges
	}
	return out, nil
}

// ChangedRanges returns the changed line ranges of a single file in a
// commit. A file not touched by the commit yields an empty slice.
func (r *Repo) ChangedRanges(sha, filePath string) ([]ChangedRange, error) {
	c, err := r.Commit(sha)
	if err != nil {
		return nil, err
	}
	changes, err := r.commitChanges(c)
	if err != nil {
		return nil, err
	}

	for _, change := range changes {
		if changePath(change) != filePath {
			continue
		}
		ranges, err := changeRanges(change)
		if err != nil {
			return nil, fmt.Errorf("ranges for %s in %s: %w", filePath, sha, err)
		}
		return ranges, nil
	}
	return nil, nil
}

// changeRanges walks one file's diff chunks and run-length encodes the
// added lines of the post-image. A deletion flushes the open run and arms
// the Modified kind for the next run; an unchanged chunk flushes and
// disarms it.
func changeRanges(change *object.Change) ([]ChangedRange, error) {
	patch, err := change.Patch()
	if err != nil {
		// Binary or otherwise unpatchable content carries no line ranges.
		return nil, nil
	}

	var ranges []ChangedRange
	for _, fp := range patch.FilePatches() {
		if fp.IsBinary() {
			continue
		}

		var st rangeState
		newLine := 1
		for _, chunk := range fp.Chunks() {
			n := chunkLineCount(chunk.Content())
			if n == 0 {
				continue
			}
			switch chunk.Type() {
			case diff.Equal:
				st.flush(&ranges)
				st.sawDeletion = false
				newLine += n
			case diff.Delete:
				st.flush(&ranges)
				st.sawDeletion = true
			case diff.Add:
				if st.open && newLine == st.prev+1 {
					st.prev = newLine + n - 1
				} else {
					st.flush(&ranges)
					kind := Added
					if st.sawDeletion {
						kind = Modified
					}
					st = rangeState{start: newLine, prev: newLine + n - 1, kind: kind, open: true, sawDeletion: st.sawDeletion}
				}
				newLine += n
			}
		}
		st.flush(&ranges)
	}
	return ranges, nil
}

// chunkLineCount counts the lines in a diff chunk, including a final
// line without a trailing newline.
func chunkLineCount(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}
