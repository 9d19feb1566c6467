package attribution

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/anthropic/narrative/internal/gitrepo"
	"github.com/anthropic/narrative/internal/store"
)

// --- Fixtures ---

type testEnv struct {
	dir    string
	git    *gogit.Repository
	store  *store.Store
	svc    *Service
	repoID int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	git, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	repoID, err := st.AddRepo(dir, "test-repo")
	if err != nil {
		t.Fatal(err)
	}

	return &testEnv{dir: dir, git: git, store: st, svc: New(st), repoID: repoID}
}

func (e *testEnv) writeFile(t *testing.T, name, content string) {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) commit(t *testing.T, message string, files ...string) string {
	t.Helper()
	wt, err := e.git.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		if _, err := wt.Add(f); err != nil {
			t.Fatal(err)
		}
	}
	hash, err := wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test Author", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatal(err)
	}
	return hash.String()
}

func (e *testEnv) addSession(t *testing.T, id, tool, model string, files ...string) {
	t.Helper()
	sess := store.Session{ID: id, Tool: tool, TraceAvailable: true}
	if model != "" {
		sess.Model = &model
	}
	if len(files) > 0 {
		data, err := json.Marshal(files)
		if err != nil {
			t.Fatal(err)
		}
		encoded := string(data)
		sess.Files = &encoded
	}
	if err := e.store.UpsertSession(sess); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) link(t *testing.T, commitSHA, sessionID string, confidence float64) {
	t.Helper()
	if err := e.store.LinkSession(e.repoID, commitSHA, sessionID, confidence); err != nil {
		t.Fatal(err)
	}
}

// --- Ensure ---

func TestEnsure_AddedLinesAttributedToAgent(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "base.txt", "base\n")
	e.commit(t, "base", "base.txt")

	e.writeFile(t, "f.txt", "one\ntwo\nthree\n")
	sha := e.commit(t, "add f", "f.txt")

	e.addSession(t, "s1", "claude-code", "opus", "f.txt")
	e.link(t, sha, "s1", 1.0)

	if err := e.svc.EnsureLineAttributions(e.repoID, sha); err != nil {
		t.Fatal(err)
	}

	rows, err := e.store.LineAttributionsForCommit(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1: %+v", len(rows), rows)
	}
	row := rows[0]
	if row.FilePath != "f.txt" || row.StartLine != 1 || row.EndLine != 3 {
		t.Errorf("row = %+v", row)
	}
	if row.AuthorType != "ai_agent" {
		t.Errorf("author type = %q, want ai_agent", row.AuthorType)
	}
	if row.AIPercentage != nil {
		t.Errorf("ai percentage = %v, want nil for pure additions", row.AIPercentage)
	}
	if row.SessionID == nil || *row.SessionID != "s1" {
		t.Errorf("session = %v", row.SessionID)
	}
	if row.Tool == nil || *row.Tool != "claude-code" {
		t.Errorf("tool = %v", row.Tool)
	}

	key, algo, err := e.store.RewriteKey(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if key == "" {
		t.Error("rewrite key not persisted after population")
	}
	if algo != gitrepo.RewriteKeyAlgorithm {
		t.Errorf("algorithm = %q", algo)
	}
}

func TestEnsure_ModifiedLinesAreMixed(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "f.txt", "a\nb\nc\n")
	e.commit(t, "base", "f.txt")

	e.writeFile(t, "f.txt", "a\nB\nc\n")
	sha := e.commit(t, "edit", "f.txt")

	e.addSession(t, "s1", "claude-code", "", "f.txt")
	e.link(t, sha, "s1", 1.0)

	if err := e.svc.EnsureLineAttributions(e.repoID, sha); err != nil {
		t.Fatal(err)
	}

	rows, err := e.store.LineAttributionsForCommit(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows: %+v", len(rows), rows)
	}
	if rows[0].AuthorType != "mixed" {
		t.Errorf("author type = %q, want mixed", rows[0].AuthorType)
	}
	if rows[0].AIPercentage == nil || *rows[0].AIPercentage != 50 {
		t.Errorf("ai percentage = %v, want 50", rows[0].AIPercentage)
	}
}

func TestEnsure_NoLinkedSessionsLeavesNoRows(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "f.txt", "x\n")
	sha := e.commit(t, "initial", "f.txt")

	if err := e.svc.EnsureLineAttributions(e.repoID, sha); err != nil {
		t.Fatal(err)
	}

	exists, err := e.store.HasLineAttributions(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("rows created for a commit with no linked sessions")
	}
}

func TestEnsure_Idempotent(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "f.txt", "x\ny\n")
	sha := e.commit(t, "initial", "f.txt")
	e.addSession(t, "s1", "claude-code", "", "f.txt")
	e.link(t, sha, "s1", 1.0)

	if err := e.svc.EnsureLineAttributions(e.repoID, sha); err != nil {
		t.Fatal(err)
	}
	first, _ := e.store.LineAttributionsForCommit(e.repoID, sha)

	if err := e.svc.EnsureLineAttributions(e.repoID, sha); err != nil {
		t.Fatal(err)
	}
	second, _ := e.store.LineAttributionsForCommit(e.repoID, sha)

	if len(first) != len(second) {
		t.Errorf("row count changed on second ensure: %d -> %d", len(first), len(second))
	}
}

func TestEnsure_SessionFileMatching(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "base.txt", "base\n")
	e.commit(t, "base", "base.txt")

	e.writeFile(t, "owned.txt", "o\n")
	e.writeFile(t, "orphan.txt", "x\n")
	sha := e.commit(t, "two files", "owned.txt", "orphan.txt")

	e.addSession(t, "s-low", "cursor", "", "owned.txt")
	e.addSession(t, "s-high", "claude-code", "")
	e.link(t, sha, "s-low", 0.4)
	e.link(t, sha, "s-high", 0.9)

	if err := e.svc.EnsureLineAttributions(e.repoID, sha); err != nil {
		t.Fatal(err)
	}

	rows, err := e.store.LineAttributionsForCommit(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}

	bySession := make(map[string]string)
	for _, row := range rows {
		if row.SessionID != nil {
			bySession[row.FilePath] = *row.SessionID
		}
	}
	if bySession["owned.txt"] != "s-low" {
		t.Errorf("owned.txt session = %q, want the declaring session", bySession["owned.txt"])
	}
	// Nothing declares orphan.txt: the highest-confidence session claims it.
	if bySession["orphan.txt"] != "s-high" {
		t.Errorf("orphan.txt session = %q, want highest-confidence fallback", bySession["orphan.txt"])
	}
}

func TestEnsure_RestoresFromRewriteKeyDonor(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "f.txt", "alpha\nbeta\n")
	sha := e.commit(t, "add f", "f.txt")

	repo, err := gitrepo.Open(e.dir)
	if err != nil {
		t.Fatal(err)
	}
	key, err := repo.ComputeRewriteKey(sha)
	if err != nil {
		t.Fatal(err)
	}

	// A donor commit (the pre-rebase sha) shares the rewrite key and
	// carries attribution rows.
	donor := "0000000000000000000000000000000000000001"
	if err := e.store.UpsertRewriteKey(e.repoID, donor, key, gitrepo.RewriteKeyAlgorithm); err != nil {
		t.Fatal(err)
	}
	sessionID := "s1"
	if err := e.store.InsertLineAttribution(store.LineAttribution{
		RepoID: e.repoID, CommitSHA: donor, FilePath: "f.txt",
		StartLine: 1, EndLine: 2, SessionID: &sessionID, AuthorType: "ai_agent",
	}); err != nil {
		t.Fatal(err)
	}

	if err := e.svc.EnsureLineAttributions(e.repoID, sha); err != nil {
		t.Fatal(err)
	}

	rows, err := e.store.LineAttributionsForCommit(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want donor copy: %+v", len(rows), rows)
	}
	if rows[0].SessionID == nil || *rows[0].SessionID != "s1" {
		t.Errorf("session = %v, want donor row's session", rows[0].SessionID)
	}
	if rows[0].AuthorType != "ai_agent" {
		t.Errorf("author type = %q", rows[0].AuthorType)
	}
}

func TestLineAttributions_OptionalFileFilter(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "base.txt", "base\n")
	e.commit(t, "base", "base.txt")

	e.writeFile(t, "a.txt", "a\n")
	e.writeFile(t, "b.txt", "b\n")
	sha := e.commit(t, "two files", "a.txt", "b.txt")
	e.addSession(t, "s1", "claude-code", "", "a.txt", "b.txt")
	e.link(t, sha, "s1", 1.0)

	all, err := e.svc.LineAttributions(e.repoID, sha, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d rows, want 2: %+v", len(all), all)
	}

	only, err := e.svc.LineAttributions(e.repoID, sha, "b.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(only) != 1 || only[0].FilePath != "b.txt" {
		t.Errorf("filtered rows = %+v", only)
	}
}

// --- Source lens ---

func TestFileSourceLens_VerdictsAndPagination(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "base.txt", "base\n")
	e.commit(t, "base", "base.txt")

	e.writeFile(t, "f.txt", "l1\nl2\nl3\nl4\nl5\n")
	sha := e.commit(t, "add f", "f.txt")
	e.addSession(t, "s1", "claude-code", "opus", "f.txt")
	e.link(t, sha, "s1", 1.0)

	page, err := e.svc.FileSourceLens(e.repoID, sha, "f.txt", 0, 3)
	if err != nil {
		t.Fatal(err)
	}
	if page.TotalLines != 5 {
		t.Errorf("total lines = %d, want 5", page.TotalLines)
	}
	if len(page.Lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(page.Lines))
	}
	if !page.HasMore {
		t.Error("has_more = false, want true")
	}
	first := page.Lines[0]
	if first.LineNumber != 1 || first.Content != "l1" {
		t.Errorf("first line = %+v", first)
	}
	if first.AuthorType != AuthorAIAgent {
		t.Errorf("author = %s, want ai_agent", first.AuthorType)
	}
	if !first.TraceAvailable {
		t.Error("trace availability not joined from the session")
	}

	tail, err := e.svc.FileSourceLens(e.repoID, sha, "f.txt", 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail.Lines) != 2 || tail.HasMore {
		t.Errorf("tail page: %d lines, has_more=%v", len(tail.Lines), tail.HasMore)
	}
	if tail.Lines[0].LineNumber != 4 {
		t.Errorf("tail starts at line %d, want 4", tail.Lines[0].LineNumber)
	}

	past, err := e.svc.FileSourceLens(e.repoID, sha, "f.txt", 99, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(past.Lines) != 0 || past.HasMore {
		t.Errorf("past-the-end page: %d lines, has_more=%v", len(past.Lines), past.HasMore)
	}
	if past.TotalLines != 5 {
		t.Errorf("past-the-end total = %d, want 5", past.TotalLines)
	}
}

func TestFileSourceLens_NegativeWindowYieldsEmptyPage(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "f.txt", "a\nb\nc\n")
	sha := e.commit(t, "initial", "f.txt")

	page, err := e.svc.FileSourceLens(e.repoID, sha, "f.txt", 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Lines) != 0 {
		t.Errorf("got %d lines, want 0", len(page.Lines))
	}
	if page.TotalLines != 3 {
		t.Errorf("total lines = %d, want 3", page.TotalLines)
	}
	if !page.HasMore {
		t.Error("has_more = false, want true")
	}

	page, err = e.svc.FileSourceLens(e.repoID, sha, "f.txt", -5, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Lines) != 2 || page.Lines[0].LineNumber != 1 {
		t.Errorf("negative offset page = %+v", page.Lines)
	}
}

func TestFileSourceLens_UnattributedFileIsHuman(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "f.txt", "a\nb\n")
	sha := e.commit(t, "initial", "f.txt")

	page, err := e.svc.FileSourceLens(e.repoID, sha, "f.txt", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range page.Lines {
		if line.AuthorType != AuthorHuman {
			t.Errorf("line %d = %s, want human", line.LineNumber, line.AuthorType)
		}
	}
}

// --- Stats ---

func TestCommitStats_FullyAIAddedFile(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "base.txt", "base\n")
	e.commit(t, "base", "base.txt")

	e.writeFile(t, "f.txt", "l1\nl2\nl3\nl4\n")
	sha := e.commit(t, "add f", "f.txt")
	e.addSession(t, "s1", "claude-code", "opus", "f.txt")
	e.link(t, sha, "s1", 1.0)

	stats, err := e.svc.CommitStats(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if stats.AIAgentLines != 4 || stats.TotalLines != 4 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.AIPercentage != 100.0 {
		t.Errorf("ai percentage = %v, want 100", stats.AIPercentage)
	}
	if stats.PrimaryTool == nil || *stats.PrimaryTool != "claude-code" {
		t.Errorf("primary tool = %v", stats.PrimaryTool)
	}
	if len(stats.ToolBreakdown) != 1 || stats.ToolBreakdown[0].LineCount != 4 {
		t.Errorf("tool breakdown = %+v", stats.ToolBreakdown)
	}

	// Stats are cached after first computation.
	cached, err := e.store.CachedStats(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if cached == nil || cached.AIAgentLines != 4 {
		t.Errorf("cached stats = %+v", cached)
	}
}

func TestCommitStats_CachedFastPath(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "f.txt", "a\nb\n")
	sha := e.commit(t, "initial", "f.txt")
	e.addSession(t, "s1", "claude-code", "", "f.txt")
	e.link(t, sha, "s1", 1.0)

	first, err := e.svc.CommitStats(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}

	// Remove the underlying rows: the cache must still answer.
	if err := e.store.DeleteLineAttributions(e.repoID, sha); err != nil {
		t.Fatal(err)
	}
	second, err := e.svc.CommitStats(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if second.AIAgentLines != first.AIAgentLines || second.TotalLines != first.TotalLines {
		t.Errorf("cached stats diverged: %+v vs %+v", first, second)
	}
}

func TestCommitStats_NoEvidenceIsHumanOnly(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "f.txt", "x\n")
	sha := e.commit(t, "initial", "f.txt")

	stats, err := e.svc.CommitStats(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if stats.AIPercentage != 0 || stats.AIAgentLines != 0 {
		t.Errorf("stats = %+v, want human-only", stats)
	}
}

func TestComputeStatsBatch(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "a.txt", "a\n")
	sha1 := e.commit(t, "first", "a.txt")
	e.writeFile(t, "b.txt", "b\n")
	sha2 := e.commit(t, "second", "b.txt")

	e.addSession(t, "s1", "claude-code", "", "a.txt", "b.txt")
	e.link(t, sha1, "s1", 1.0)
	e.link(t, sha2, "s1", 1.0)

	computed, err := e.svc.ComputeStatsBatch(e.repoID, []string{sha1, sha2, "ffffffffffffffffffffffffffffffffffffffff"})
	if err != nil {
		t.Fatal(err)
	}
	if computed != 2 {
		t.Errorf("computed = %d, want 2 (unknown sha skipped)", computed)
	}

	// Already cached commits are skipped on the next run.
	computed, err = e.svc.ComputeStatsBatch(e.repoID, []string{sha1, sha2})
	if err != nil {
		t.Fatal(err)
	}
	if computed != 0 {
		t.Errorf("computed = %d on second run, want 0", computed)
	}
}

// --- Coverage ---

func TestCoverage_FullyAttributedCommit(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "base.txt", "base\n")
	e.commit(t, "base", "base.txt")

	e.writeFile(t, "f.txt", "l1\nl2\nl3\n")
	sha := e.commit(t, "add f", "f.txt")
	e.addSession(t, "s1", "claude-code", "", "f.txt")
	e.link(t, sha, "s1", 1.0)
	if err := e.svc.EnsureLineAttributions(e.repoID, sha); err != nil {
		t.Fatal(err)
	}

	coverage, err := e.svc.Coverage(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if coverage == nil {
		t.Fatal("coverage = nil, want summary")
	}
	if coverage.TotalChangedLines != 3 || coverage.AttributedLines != 3 {
		t.Errorf("coverage = %+v", coverage)
	}
	if coverage.CoveragePercent != 100.0 {
		t.Errorf("percent = %v, want 100", coverage.CoveragePercent)
	}
}

func TestCoverage_NoAttributionsIsNil(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "f.txt", "x\n")
	sha := e.commit(t, "initial", "f.txt")

	coverage, err := e.svc.Coverage(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if coverage != nil {
		t.Errorf("coverage = %+v, want nil", coverage)
	}
}

// --- Notes ---

func TestExportImportRoundTrip(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "base.txt", "base\n")
	e.commit(t, "base", "base.txt")

	e.writeFile(t, "f.txt", "l1\nl2\n")
	sha := e.commit(t, "add f", "f.txt")
	e.addSession(t, "s1", "claude-code", "opus", "f.txt")
	e.link(t, sha, "s1", 1.0)
	if err := e.svc.EnsureLineAttributions(e.repoID, sha); err != nil {
		t.Fatal(err)
	}

	exported, err := e.svc.ExportNote(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if exported.Status != StatusExported {
		t.Fatalf("export status = %q", exported.Status)
	}

	repo, err := gitrepo.Open(e.dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, found, err := repo.ReadNote(gitrepo.AttributionNotesRef, sha); err != nil || !found {
		t.Fatalf("exported note not readable: found=%v err=%v", found, err)
	}

	// Wipe local state and import the note back.
	if err := e.store.DeleteLineAttributions(e.repoID, sha); err != nil {
		t.Fatal(err)
	}

	imported, err := e.svc.ImportNote(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if imported.Status != StatusImported {
		t.Fatalf("import status = %q", imported.Status)
	}
	if imported.ImportedRanges != 1 || imported.ImportedSessions != 1 {
		t.Errorf("import summary = %+v", imported)
	}

	rows, err := e.store.LineAttributionsForCommit(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows after import: %+v", len(rows), rows)
	}
	row := rows[0]
	if row.FilePath != "f.txt" || row.StartLine != 1 || row.EndLine != 2 {
		t.Errorf("row = %+v", row)
	}
	if row.AuthorType != "ai_agent" {
		t.Errorf("author type = %q", row.AuthorType)
	}
	if row.Tool == nil || *row.Tool != "claude-code" {
		t.Errorf("tool = %v", row.Tool)
	}

	meta, err := e.store.NoteMeta(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if meta == nil {
		t.Fatal("note meta not recorded")
	}
	if meta.NoteRef != gitrepo.AttributionNotesRef {
		t.Errorf("note ref = %q", meta.NoteRef)
	}
	if !meta.MetadataAvailable || meta.PromptCount != 1 {
		t.Errorf("note meta = %+v", meta)
	}
}

func TestExportNote_EmptyWithoutRows(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "f.txt", "x\n")
	sha := e.commit(t, "initial", "f.txt")

	summary, err := e.svc.ExportNote(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Status != StatusEmpty {
		t.Errorf("status = %q, want empty", summary.Status)
	}
}

func TestImportNote_MissingNote(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "f.txt", "x\n")
	sha := e.commit(t, "initial", "f.txt")

	summary, err := e.svc.ImportNote(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Status != StatusMissing {
		t.Errorf("status = %q, want missing", summary.Status)
	}
}

func TestImportNote_InvalidNote(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "f.txt", "x\n")
	sha := e.commit(t, "initial", "f.txt")

	repo, err := gitrepo.Open(e.dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.WriteNote(gitrepo.AttributionNotesRef, sha, "---\n{}", "N", "n@local"); err != nil {
		t.Fatal(err)
	}

	summary, err := e.svc.ImportNote(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Status != StatusInvalid {
		t.Errorf("status = %q, want invalid", summary.Status)
	}
}

func TestImportNote_LegacyRefFallback(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "f.txt", "one\ntwo\n")
	sha := e.commit(t, "initial", "f.txt")

	repo, err := gitrepo.Open(e.dir)
	if err != nil {
		t.Fatal(err)
	}
	message := "f.txt\n  legacy-sess 1-2\n---\n{}"
	if err := repo.WriteNote(gitrepo.LegacyAttributionNotesRef, sha, message, "N", "n@local"); err != nil {
		t.Fatal(err)
	}

	summary, err := e.svc.ImportNote(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Status != StatusImported {
		t.Fatalf("status = %q, want imported via legacy ref", summary.Status)
	}

	meta, err := e.store.NoteMeta(e.repoID, sha)
	if err != nil || meta == nil {
		t.Fatalf("note meta missing: %v", err)
	}
	if meta.NoteRef != gitrepo.LegacyAttributionNotesRef {
		t.Errorf("note ref = %q, want legacy", meta.NoteRef)
	}
}

func TestImportNotesBatch_Tally(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "a.txt", "a\n")
	sha1 := e.commit(t, "first", "a.txt")
	e.writeFile(t, "b.txt", "b\n")
	sha2 := e.commit(t, "second", "b.txt")

	repo, err := gitrepo.Open(e.dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.WriteNote(gitrepo.AttributionNotesRef, sha1, "a.txt\n  s1 1\n---\n{}", "N", "n@local"); err != nil {
		t.Fatal(err)
	}

	batch, err := e.svc.ImportNotesBatch(e.repoID, []string{sha1, sha2})
	if err != nil {
		t.Fatal(err)
	}
	if batch.Total != 2 || batch.Imported != 1 || batch.Missing != 1 || batch.Failed != 0 {
		t.Errorf("batch = %+v", batch)
	}
}

func TestCommitNoteSummary(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "base.txt", "base\n")
	e.commit(t, "base", "base.txt")

	e.writeFile(t, "f.txt", "l1\n")
	sha := e.commit(t, "add f", "f.txt")
	e.addSession(t, "s1", "claude-code", "", "f.txt")
	e.link(t, sha, "s1", 1.0)
	if err := e.svc.EnsureLineAttributions(e.repoID, sha); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.ExportNote(e.repoID, sha); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.ImportNote(e.repoID, sha); err != nil {
		t.Fatal(err)
	}

	summary, err := e.svc.CommitNoteSummary(e.repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if !summary.HasNote {
		t.Fatal("has_note = false after import")
	}
	if summary.NoteRef == nil || *summary.NoteRef != gitrepo.AttributionNotesRef {
		t.Errorf("note ref = %v", summary.NoteRef)
	}
	if summary.Coverage == nil || summary.Coverage.CoveragePercent != 100.0 {
		t.Errorf("coverage = %+v", summary.Coverage)
	}
}

func TestLogfCarriesPackagePrefix(t *testing.T) {
	var buf bytes.Buffer
	prevOut := log.Writer()
	prevFlags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	}()

	logf("recompute stats for %s: unavailable", "abc123")

	got := buf.String()
	if !strings.HasPrefix(got, "attribution: ") {
		t.Errorf("log line = %q, want attribution: prefix", got)
	}
	if !strings.Contains(got, "abc123") {
		t.Errorf("log line = %q, want formatted args", got)
	}
}
