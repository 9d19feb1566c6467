package gitrepo

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/go-git/go-git/v5/plumbing/format/diff"
)

// RewriteKeyAlgorithm names the digest scheme used for rewrite keys.
const RewriteKeyAlgorithm = "patch-id"

// ComputeRewriteKey digests a commit's first-parent diff in a form that
// survives history rewrites: the literal commit id, surrounding context,
// and whitespace do not participate. Each added/removed content line is
// hashed as (file path, +/- marker, whitespace-stripped line), in diff
// order. A commit with no content lines (pure rename or mode change)
// falls back to hashing its tree id so every commit gets a key.
func (r *Repo) ComputeRewriteKey(sha string) (string, error) {
	c, err := r.Commit(sha)
	if err != nil {
		return "", err
	}
	changes, err := r.commitChanges(c)
	if err != nil {
		return "", err
	}

	hasher := sha256.New()
	sawContent := false

	for _, change := range changes {
		path := changePath(change)
		patch, err := change.Patch()
		if err != nil {
			continue // binary content has no lines to hash
		}
		for _, fp := range patch.FilePatches() {
			if fp.IsBinary() {
				continue
			}
			for _, chunk := range fp.Chunks() {
				var marker byte
				switch chunk.Type() {
				case diff.Add:
					marker = '+'
				case diff.Delete:
					marker = '-'
				default:
					continue
				}
				for _, line := range chunkLines(chunk.Content()) {
					hasher.Write([]byte(path))
					hasher.Write([]byte{'\n', marker, '\n'})
					hasher.Write([]byte(stripWhitespace(line)))
					hasher.Write([]byte{'\n'})
					sawContent = true
				}
			}
		}
	}

	if !sawContent {
		hasher.Write([]byte(c.TreeHash.String()))
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// chunkLines splits chunk content into lines, dropping the empty tail
// produced by a trailing newline.
func chunkLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// stripWhitespace removes every whitespace rune from a line.
func stripWhitespace(line string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, line)
}
