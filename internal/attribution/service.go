package attribution

import (
	"log"

	"github.com/anthropic/narrative/internal/gitrepo"
	"github.com/anthropic/narrative/internal/sessionlink"
	"github.com/anthropic/narrative/internal/store"
)

// Service runs attribution operations against one store. Git
// repositories are opened per call from the registered repo root.
type Service struct {
	store *store.Store
	match sessionlink.MatchStrategy
}

// New creates a Service with the default file-list session matcher.
func New(st *store.Store) *Service {
	return &Service{store: st, match: sessionlink.FileListStrategy{}}
}

// NewWithStrategy creates a Service with a custom session matcher.
func NewWithStrategy(st *store.Store, match sessionlink.MatchStrategy) *Service {
	return &Service{store: st, match: match}
}

// Store exposes the underlying store for callers that mix direct store
// access with attribution operations.
func (s *Service) Store() *store.Store {
	return s.store
}

// LineAttributions returns a commit's raw attribution rows, populating
// them on demand. filePath narrows the result to one file when non-empty.
// These are the stored claims, not reconciled verdicts; overlaps are
// resolved by the source lens.
func (s *Service) LineAttributions(repoID int64, commitSHA, filePath string) ([]store.LineAttribution, error) {
	if err := s.EnsureLineAttributions(repoID, commitSHA); err != nil {
		logf("ensure attributions for %s: %v", commitSHA, err)
	}

	rows, err := s.store.LineAttributionsForCommit(repoID, commitSHA)
	if err != nil {
		return nil, err
	}
	if filePath == "" {
		return rows, nil
	}

	filtered := rows[:0]
	for _, row := range rows {
		if row.FilePath == filePath {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

func (s *Service) openRepo(repoID int64) (*gitrepo.Repo, error) {
	root, err := s.store.RepoRoot(repoID)
	if err != nil {
		return nil, err
	}
	return gitrepo.Open(root)
}

// logf reports non-fatal failures on best-effort paths (cache writes,
// rewrite key persistence).
func logf(format string, args ...any) {
	log.Printf("attribution: "+format, args...)
}
