package attribution

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/anthropic/narrative/internal/gitrepo"
	"github.com/anthropic/narrative/internal/notecodec"
	"github.com/anthropic/narrative/internal/store"
)

// Identity used to sign exported notes when the repository has no
// configured committer.
const (
	exportFallbackName  = "Narrative"
	exportFallbackEmail = "narrative@local"
)

func noteHash(message string) string {
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])
}

// ImportNote pulls a commit's attribution note into local storage. The
// primary ref is tried first, then the legacy ref. A missing note clears
// stale note metadata and reports "missing"; a note with no parseable
// file section reports "invalid". A successful import fully replaces the
// commit's attribution rows.
func (s *Service) ImportNote(repoID int64, commitSHA string) (ImportSummary, error) {
	summary := ImportSummary{CommitSHA: commitSHA}

	repo, err := s.openRepo(repoID)
	if err != nil {
		return summary, err
	}

	noteRef := gitrepo.AttributionNotesRef
	message, found, err := repo.ReadNote(noteRef, commitSHA)
	if err != nil {
		return summary, err
	}
	if !found {
		noteRef = gitrepo.LegacyAttributionNotesRef
		message, found, err = repo.ReadNote(noteRef, commitSHA)
		if err != nil {
			return summary, err
		}
	}

	if !found {
		if err := s.store.ClearNoteMeta(repoID, commitSHA); err != nil {
			logf("clear note meta for %s: %v", commitSHA, err)
		}
		summary.Status = StatusMissing
		return summary, nil
	}

	parsed := notecodec.Parse(message)
	if len(parsed.Files) == 0 {
		if err := s.store.ClearNoteMeta(repoID, commitSHA); err != nil {
			logf("clear note meta for %s: %v", commitSHA, err)
		}
		summary.Status = StatusInvalid
		return summary, nil
	}

	metadataAvailable := len(parsed.Sources) > 0
	if err := s.store.UpsertNoteMeta(repoID, store.NoteMeta{
		CommitSHA:         commitSHA,
		NoteRef:           noteRef,
		NoteHash:          noteHash(message),
		SchemaVersion:     parsed.SchemaVersion,
		MetadataAvailable: metadataAvailable,
		MetadataCached:    false,
		PromptCount:       len(parsed.Sources),
	}); err != nil {
		return summary, err
	}

	prefs, err := s.store.FetchOrCreatePrefs(repoID)
	if err != nil {
		return summary, err
	}
	metadataCached := prefs.CachePromptMetadata && metadataAvailable
	if err := s.store.MarkMetadataCached(repoID, commitSHA, metadataCached); err != nil {
		logf("mark metadata cached for %s: %v", commitSHA, err)
	}

	ranges, sessions, err := s.storeAttributionsFromNote(repoID, commitSHA, parsed)
	if err != nil {
		return summary, err
	}

	if err := s.storeRewriteKeyFromNote(repoID, commitSHA, parsed); err != nil {
		logf("store rewrite key for %s: %v", commitSHA, err)
	}

	if stats, err := s.computeStatsFromAttributions(repoID, commitSHA); err == nil && stats != nil {
		if err := s.cacheStats(repoID, commitSHA, nil, *stats); err != nil {
			logf("cache stats for %s: %v", commitSHA, err)
		}
	}

	summary.Status = StatusImported
	summary.ImportedRanges = ranges
	summary.ImportedSessions = sessions
	return summary, nil
}

// ImportNotesBatch imports notes for many commits sequentially. Per-item
// failures are tallied, never fatal.
func (s *Service) ImportNotesBatch(repoID int64, commitSHAs []string) (BatchSummary, error) {
	var batch BatchSummary
	for _, commitSHA := range commitSHAs {
		summary, err := s.ImportNote(repoID, commitSHA)
		switch {
		case err != nil:
			batch.Failed++
		case summary.Status == StatusImported:
			batch.Imported++
		default:
			batch.Missing++
		}
	}
	batch.Total = batch.Imported + batch.Missing + batch.Failed
	return batch, nil
}

// storeAttributionsFromNote replaces the commit's attribution rows with
// the note's ranges. Sessions the note does not describe are enriched
// from the local sessions table when known. Returns the range and unique
// session counts.
func (s *Service) storeAttributionsFromNote(repoID int64, commitSHA string, parsed notecodec.Note) (int, int, error) {
	if err := s.store.DeleteLineAttributions(repoID, commitSHA); err != nil {
		return 0, 0, err
	}

	rangeCount := 0
	sessionIDs := make(map[string]bool)

	for _, file := range parsed.Files {
		for _, rng := range file.Ranges {
			meta := parsed.Sources[rng.SessionID]

			if meta.Tool == nil || meta.Model == nil || meta.ConversationID == nil {
				if known, err := s.store.SessionMeta(rng.SessionID); err == nil && known != nil {
					if meta.Tool == nil {
						meta.Tool = known.Tool
					}
					if meta.Model == nil {
						meta.Model = known.Model
					}
					if meta.ConversationID == nil {
						meta.ConversationID = known.ConversationID
					}
				}
			}

			authorType := AuthorAIAgent
			if meta.CheckpointKind != nil {
				switch *meta.CheckpointKind {
				case "ai_tab", "ai_assist":
					authorType = AuthorAITab
				}
			}

			sessionID := rng.SessionID
			if err := s.store.InsertLineAttribution(store.LineAttribution{
				RepoID:     repoID,
				CommitSHA:  commitSHA,
				FilePath:   file.Path,
				StartLine:  rng.StartLine,
				EndLine:    rng.EndLine,
				SessionID:  &sessionID,
				AuthorType: string(authorType),
				Tool:       meta.Tool,
				Model:      meta.Model,
			}); err != nil {
				return 0, 0, err
			}

			rangeCount++
			sessionIDs[rng.SessionID] = true
		}
	}

	return rangeCount, len(sessionIDs), nil
}

// storeRewriteKeyFromNote persists the note's rewrite key under the
// note's algorithm. A note without a key gets one computed locally.
func (s *Service) storeRewriteKeyFromNote(repoID int64, commitSHA string, parsed notecodec.Note) error {
	algorithm := gitrepo.RewriteKeyAlgorithm
	if parsed.RewriteAlgorithm != nil {
		algorithm = *parsed.RewriteAlgorithm
	}

	if parsed.RewriteKey != nil {
		return s.store.UpsertRewriteKey(repoID, commitSHA, *parsed.RewriteKey, algorithm)
	}

	repo, err := s.openRepo(repoID)
	if err != nil {
		return err
	}
	rewriteKey, err := repo.ComputeRewriteKey(commitSHA)
	if err != nil {
		return nil
	}
	return s.store.UpsertRewriteKey(repoID, commitSHA, rewriteKey, algorithm)
}

// ExportNote writes the commit's attribution rows into a git note under
// the primary ref. A commit without rows exports nothing and reports
// "empty". Rows without a session are skipped: the note format has no
// way to express an unowned range.
func (s *Service) ExportNote(repoID int64, commitSHA string) (ExportSummary, error) {
	summary := ExportSummary{CommitSHA: commitSHA}

	rows, err := s.store.LineAttributionsForCommit(repoID, commitSHA)
	if err != nil {
		return summary, err
	}
	if len(rows) == 0 {
		summary.Status = StatusEmpty
		return summary, nil
	}

	filesByPath := make(map[string]*notecodec.File)
	sources := make(map[string]notecodec.SourceMeta)

	for _, row := range rows {
		if row.SessionID == nil {
			continue
		}
		sessionID := *row.SessionID

		file, ok := filesByPath[row.FilePath]
		if !ok {
			file = &notecodec.File{Path: row.FilePath}
			filesByPath[row.FilePath] = file
		}
		file.Ranges = append(file.Ranges, notecodec.Range{
			SessionID: sessionID,
			StartLine: row.StartLine,
			EndLine:   row.EndLine,
		})

		source := sources[sessionID]
		if source.Tool == nil {
			source.Tool = row.Tool
		}
		if source.Model == nil {
			source.Model = row.Model
		}
		if source.CheckpointKind == nil {
			kind := "ai_agent"
			if NormalizeAuthorType(row.AuthorType) == AuthorAITab {
				kind = "ai_tab"
			}
			source.CheckpointKind = &kind
		}
		sources[sessionID] = source
	}

	for sessionID, source := range sources {
		if known, err := s.store.SessionMeta(sessionID); err == nil && known != nil {
			if source.Tool == nil {
				source.Tool = known.Tool
			}
			if source.Model == nil {
				source.Model = known.Model
			}
			if source.ConversationID == nil {
				source.ConversationID = known.ConversationID
			}
			sources[sessionID] = source
		}
	}

	files := make([]notecodec.File, 0, len(filesByPath))
	for _, file := range filesByPath {
		files = append(files, *file)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	repo, err := s.openRepo(repoID)
	if err != nil {
		return summary, err
	}

	var rewriteKey, algorithm *string
	if key, err := repo.ComputeRewriteKey(commitSHA); err == nil {
		algo := gitrepo.RewriteKeyAlgorithm
		rewriteKey, algorithm = &key, &algo
		if err := s.store.UpsertRewriteKey(repoID, commitSHA, key, algo); err != nil {
			logf("store rewrite key for %s: %v", commitSHA, err)
		}
	}

	noteText := notecodec.Build(commitSHA, files, sources, rewriteKey, algorithm)

	name, email := repo.DefaultSignature(exportFallbackName, exportFallbackEmail)
	if err := repo.WriteNote(gitrepo.AttributionNotesRef, commitSHA, noteText, name, email); err != nil {
		return summary, err
	}

	summary.Status = StatusExported
	return summary, nil
}

// CommitNoteSummary reports the last-seen note state of a commit from
// local metadata, with current attribution coverage attached.
func (s *Service) CommitNoteSummary(repoID int64, commitSHA string) (NoteSummary, error) {
	summary := NoteSummary{CommitSHA: commitSHA}

	meta, err := s.store.NoteMeta(repoID, commitSHA)
	if err != nil {
		return summary, err
	}
	if meta != nil {
		summary.HasNote = true
		summary.NoteRef = &meta.NoteRef
		summary.NoteHash = &meta.NoteHash
		summary.SchemaVersion = meta.SchemaVersion
		summary.MetadataAvailable = meta.MetadataAvailable
		summary.MetadataCached = meta.MetadataCached
		count := meta.PromptCount
		summary.PromptCount = &count
	}

	if coverage, err := s.Coverage(repoID, commitSHA); err == nil {
		summary.Coverage = coverage
	}
	return summary, nil
}
