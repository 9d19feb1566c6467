package attribution

import (
	"github.com/anthropic/narrative/internal/gitrepo"
	"github.com/anthropic/narrative/internal/store"
)

// EnsureLineAttributions makes sure a commit has attribution rows,
// populating them on first touch. Population tries, in order:
//
//  1. Existing rows: nothing to do.
//  2. A donor commit with the same rewrite key (the commit was amended
//     or rebased): rows are copied over and stats recomputed.
//  3. Linked sessions: each changed range of each file is attributed to
//     the sessions that claim the file, added lines to the agent and
//     replaced lines as a 50% human/AI mix.
//
// A commit with no linked sessions stays row-free, which reads as fully
// human. The rewrite key is persisted on every population path.
func (s *Service) EnsureLineAttributions(repoID int64, commitSHA string) error {
	exists, err := s.store.HasLineAttributions(repoID, commitSHA)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if restored, err := s.restoreViaRewriteKey(repoID, commitSHA); err == nil && restored {
		return nil
	}

	sessions, err := s.store.LinkedSessions(repoID, commitSHA)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return nil
	}

	repo, err := s.openRepo(repoID)
	if err != nil {
		return err
	}

	files, err := repo.ListCommitFiles(commitSHA)
	if err != nil {
		return err
	}

	for _, filePath := range files {
		targets := s.match.Match(filePath, sessions)

		ranges, err := repo.ChangedRanges(commitSHA, filePath)
		if err != nil {
			return err
		}
		for _, rng := range ranges {
			authorType, aiPercentage := classifyRange(rng.Kind)
			for _, idx := range targets {
				session := sessions[idx]
				sessionID := session.SessionID
				tool := session.Tool
				if err := s.store.InsertLineAttribution(store.LineAttribution{
					RepoID:       repoID,
					CommitSHA:    commitSHA,
					FilePath:     filePath,
					StartLine:    rng.StartLine,
					EndLine:      rng.EndLine,
					SessionID:    &sessionID,
					AuthorType:   string(authorType),
					AIPercentage: aiPercentage,
					Tool:         &tool,
					Model:        session.Model,
				}); err != nil {
					return err
				}
			}
		}
	}

	if _, err := s.storeRewriteKey(repoID, commitSHA); err != nil {
		logf("store rewrite key for %s: %v", commitSHA, err)
	}
	return nil
}

// classifyRange maps a changed range to its initial attribution: pure
// insertions belong to the agent, replacements of deleted lines start as
// an even mix.
func classifyRange(kind gitrepo.ChangeKind) (AuthorType, *int) {
	if kind == gitrepo.Modified {
		pct := 50
		return AuthorMixed, &pct
	}
	return AuthorAIAgent, nil
}

// restoreViaRewriteKey copies attribution rows from a content-identical
// donor commit, if one exists.
func (s *Service) restoreViaRewriteKey(repoID int64, commitSHA string) (bool, error) {
	rewriteKey, err := s.storeRewriteKey(repoID, commitSHA)
	if err != nil {
		return false, err
	}
	if rewriteKey == "" {
		return false, nil
	}

	donor, err := s.store.CommitByRewriteKey(repoID, rewriteKey, commitSHA)
	if err != nil || donor == "" {
		return false, err
	}

	copied, err := s.store.CopyLineAttributions(repoID, donor, commitSHA)
	if err != nil {
		return false, err
	}
	if copied == 0 {
		return false, nil
	}

	if stats, err := s.computeStatsFromAttributions(repoID, commitSHA); err == nil && stats != nil {
		if err := s.cacheStats(repoID, commitSHA, nil, *stats); err != nil {
			logf("cache stats for %s: %v", commitSHA, err)
		}
	}
	return true, nil
}

// storeRewriteKey computes and persists the commit's rewrite key,
// returning it. A commit whose key cannot be computed (unresolvable sha,
// unreadable trees) stores nothing and returns "".
func (s *Service) storeRewriteKey(repoID int64, commitSHA string) (string, error) {
	repo, err := s.openRepo(repoID)
	if err != nil {
		return "", err
	}
	rewriteKey, err := repo.ComputeRewriteKey(commitSHA)
	if err != nil {
		return "", nil
	}
	if err := s.store.UpsertRewriteKey(repoID, commitSHA, rewriteKey, gitrepo.RewriteKeyAlgorithm); err != nil {
		return "", err
	}
	return rewriteKey, nil
}
