package store

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func strptr(s string) *string { return &s }
func intptr(n int) *int       { return &n }
func boolptr(b bool) *bool    { return &b }

func TestMigrations_RecordVersionAndReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}

	var version string
	err = st.DB().QueryRow(`SELECT value FROM app_state WHERE key = 'schema_version'`).Scan(&version)
	if err != nil {
		t.Fatal(err)
	}
	if version != "2" {
		t.Errorf("schema version = %q, want 2", version)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopening an up-to-date database must not re-run migrations.
	st2, err := New(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = st2.Close()
}

func TestAddRepo_ReRegisteringKeepsID(t *testing.T) {
	st := newTestStore(t)

	id1, err := st.AddRepo("/tmp/project", "first")
	if err != nil {
		t.Fatal(err)
	}
	id2, err := st.AddRepo("/tmp/project", "renamed")
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Errorf("ids differ: %d vs %d", id1, id2)
	}

	repo, err := st.RepoByPath("/tmp/project")
	if err != nil {
		t.Fatal(err)
	}
	if repo == nil || repo.Name != "renamed" {
		t.Errorf("repo = %+v, want updated name", repo)
	}
}

func TestRepoRoot(t *testing.T) {
	st := newTestStore(t)
	id, err := st.AddRepo("/tmp/project", "p")
	if err != nil {
		t.Fatal(err)
	}

	root, err := st.RepoRoot(id)
	if err != nil {
		t.Fatal(err)
	}
	if root != "/tmp/project" {
		t.Errorf("root = %q", root)
	}

	if _, err := st.RepoRoot(9999); err == nil {
		t.Error("unknown repo id must be an error")
	}
}

func TestRepoByPath_UnknownIsNil(t *testing.T) {
	st := newTestStore(t)
	repo, err := st.RepoByPath("/nowhere")
	if err != nil {
		t.Fatal(err)
	}
	if repo != nil {
		t.Errorf("repo = %+v, want nil", repo)
	}
}

func TestUpsertSession_UpdateAndMeta(t *testing.T) {
	st := newTestStore(t)

	if err := st.UpsertSession(Session{ID: "s1", Tool: "cursor"}); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertSession(Session{
		ID:             "s1",
		Tool:           "claude-code",
		Model:          strptr("opus"),
		ConversationID: strptr("conv-1"),
		TraceAvailable: true,
	}); err != nil {
		t.Fatal(err)
	}

	meta, err := st.SessionMeta("s1")
	if err != nil {
		t.Fatal(err)
	}
	if meta == nil {
		t.Fatal("meta = nil")
	}
	if meta.Tool == nil || *meta.Tool != "claude-code" {
		t.Errorf("tool = %v", meta.Tool)
	}
	if meta.Model == nil || *meta.Model != "opus" {
		t.Errorf("model = %v", meta.Model)
	}
	if meta.ConversationID == nil || *meta.ConversationID != "conv-1" {
		t.Errorf("conversation id = %v", meta.ConversationID)
	}
	if !meta.TraceAvailable {
		t.Error("trace availability lost on upsert")
	}
}

func TestSessionMeta_UnknownIsNil(t *testing.T) {
	st := newTestStore(t)
	meta, err := st.SessionMeta("ghost")
	if err != nil {
		t.Fatal(err)
	}
	if meta != nil {
		t.Errorf("meta = %+v, want nil", meta)
	}
}

func TestLinkedSessions_OrderedByConfidence(t *testing.T) {
	st := newTestStore(t)
	repoID, _ := st.AddRepo("/tmp/p", "p")
	for _, id := range []string{"low", "high", "mid"} {
		if err := st.UpsertSession(Session{ID: id, Tool: "t"}); err != nil {
			t.Fatal(err)
		}
	}
	sha := "abc"
	st.LinkSession(repoID, sha, "low", 0.2)
	st.LinkSession(repoID, sha, "high", 0.9)
	st.LinkSession(repoID, sha, "mid", 0.5)

	linked, err := st.LinkedSessions(repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if len(linked) != 3 {
		t.Fatalf("got %d linked sessions", len(linked))
	}
	if linked[0].SessionID != "high" || linked[1].SessionID != "mid" || linked[2].SessionID != "low" {
		t.Errorf("order = %s, %s, %s", linked[0].SessionID, linked[1].SessionID, linked[2].SessionID)
	}
}

func TestLineAttributions_Lifecycle(t *testing.T) {
	st := newTestStore(t)
	repoID, _ := st.AddRepo("/tmp/p", "p")
	sha := "abc"

	exists, err := st.HasLineAttributions(repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("rows exist before any insert")
	}

	rows := []LineAttribution{
		{RepoID: repoID, CommitSHA: sha, FilePath: "z.go", StartLine: 1, EndLine: 2, AuthorType: "ai_agent", SessionID: strptr("s1")},
		{RepoID: repoID, CommitSHA: sha, FilePath: "a.go", StartLine: 5, EndLine: 9, AuthorType: "mixed", AIPercentage: intptr(50)},
		{RepoID: repoID, CommitSHA: sha, FilePath: "a.go", StartLine: 1, EndLine: 3, AuthorType: "ai_tab", Tool: strptr("cursor")},
	}
	for _, row := range rows {
		if err := st.InsertLineAttribution(row); err != nil {
			t.Fatal(err)
		}
	}

	got, err := st.LineAttributionsForCommit(repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d rows", len(got))
	}
	// Ordered by file path, then start line.
	if got[0].FilePath != "a.go" || got[0].StartLine != 1 {
		t.Errorf("row[0] = %+v", got[0])
	}
	if got[1].FilePath != "a.go" || got[1].StartLine != 5 {
		t.Errorf("row[1] = %+v", got[1])
	}
	if got[2].FilePath != "z.go" {
		t.Errorf("row[2] = %+v", got[2])
	}
	if got[1].AIPercentage == nil || *got[1].AIPercentage != 50 {
		t.Errorf("ai percentage = %v", got[1].AIPercentage)
	}

	copied, err := st.CopyLineAttributions(repoID, sha, "def")
	if err != nil {
		t.Fatal(err)
	}
	if copied != 3 {
		t.Errorf("copied = %d, want 3", copied)
	}

	if err := st.DeleteLineAttributions(repoID, sha); err != nil {
		t.Fatal(err)
	}
	exists, _ = st.HasLineAttributions(repoID, sha)
	if exists {
		t.Error("rows survive delete")
	}
	// The copy is untouched.
	exists, _ = st.HasLineAttributions(repoID, "def")
	if !exists {
		t.Error("copied rows lost")
	}
}

func TestLineAttributionsForFile_JoinsTraceAvailability(t *testing.T) {
	st := newTestStore(t)
	repoID, _ := st.AddRepo("/tmp/p", "p")
	sha := "abc"

	if err := st.UpsertSession(Session{ID: "s1", Tool: "claude-code", TraceAvailable: true}); err != nil {
		t.Fatal(err)
	}
	st.InsertLineAttribution(LineAttribution{
		RepoID: repoID, CommitSHA: sha, FilePath: "f.go",
		StartLine: 1, EndLine: 2, SessionID: strptr("s1"), AuthorType: "ai_agent",
	})
	st.InsertLineAttribution(LineAttribution{
		RepoID: repoID, CommitSHA: sha, FilePath: "f.go",
		StartLine: 5, EndLine: 5, AuthorType: "mixed",
	})

	got, err := st.LineAttributionsForFile(repoID, sha, "f.go")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows", len(got))
	}
	if !got[0].TraceAvailable {
		t.Error("session-backed row must report trace availability")
	}
	if got[1].TraceAvailable {
		t.Error("sessionless row must not report trace availability")
	}
}

func TestRewriteKey_UpsertAndLookup(t *testing.T) {
	st := newTestStore(t)
	repoID, _ := st.AddRepo("/tmp/p", "p")

	key, algo, err := st.RewriteKey(repoID, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if key != "" || algo != "" {
		t.Errorf("unset key = %q/%q, want empty", key, algo)
	}

	if err := st.UpsertRewriteKey(repoID, "abc", "k1", "patch-id"); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertRewriteKey(repoID, "abc", "k2", "patch-id"); err != nil {
		t.Fatal(err)
	}

	key, algo, err = st.RewriteKey(repoID, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if key != "k2" || algo != "patch-id" {
		t.Errorf("key = %q/%q, want k2/patch-id", key, algo)
	}
}

func TestCommitByRewriteKey_RequiresAttributionRows(t *testing.T) {
	st := newTestStore(t)
	repoID, _ := st.AddRepo("/tmp/p", "p")

	st.UpsertRewriteKey(repoID, "donor", "shared", "patch-id")
	st.UpsertRewriteKey(repoID, "target", "shared", "patch-id")

	// The donor has no rows yet: nothing to restore from.
	sha, err := st.CommitByRewriteKey(repoID, "shared", "target")
	if err != nil {
		t.Fatal(err)
	}
	if sha != "" {
		t.Errorf("donor = %q, want none without rows", sha)
	}

	st.InsertLineAttribution(LineAttribution{
		RepoID: repoID, CommitSHA: "donor", FilePath: "f.go",
		StartLine: 1, EndLine: 1, AuthorType: "ai_agent",
	})

	sha, err = st.CommitByRewriteKey(repoID, "shared", "target")
	if err != nil {
		t.Fatal(err)
	}
	if sha != "donor" {
		t.Errorf("donor = %q, want donor", sha)
	}

	// A commit never matches itself.
	sha, _ = st.CommitByRewriteKey(repoID, "shared", "donor")
	if sha == "donor" {
		t.Error("donor matched itself")
	}
}

func TestNoteMeta_UpsertClearMark(t *testing.T) {
	st := newTestStore(t)
	repoID, _ := st.AddRepo("/tmp/p", "p")

	meta, err := st.NoteMeta(repoID, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if meta != nil {
		t.Errorf("meta = %+v, want nil before upsert", meta)
	}

	if err := st.UpsertNoteMeta(repoID, NoteMeta{
		CommitSHA:         "abc",
		NoteRef:           "refs/notes/narrative-attribution",
		NoteHash:          "h1",
		SchemaVersion:     strptr("narrative/attribution/1.0.0"),
		MetadataAvailable: true,
		PromptCount:       3,
	}); err != nil {
		t.Fatal(err)
	}
	// Re-upsert for the same ref replaces, not duplicates.
	if err := st.UpsertNoteMeta(repoID, NoteMeta{
		CommitSHA:         "abc",
		NoteRef:           "refs/notes/narrative-attribution",
		NoteHash:          "h2",
		MetadataAvailable: true,
		PromptCount:       4,
	}); err != nil {
		t.Fatal(err)
	}

	meta, err = st.NoteMeta(repoID, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if meta == nil {
		t.Fatal("meta = nil after upsert")
	}
	if meta.NoteHash != "h2" || meta.PromptCount != 4 {
		t.Errorf("meta = %+v", meta)
	}
	if meta.MetadataCached {
		t.Error("metadata_cached defaults to false")
	}

	if err := st.MarkMetadataCached(repoID, "abc", true); err != nil {
		t.Fatal(err)
	}
	meta, _ = st.NoteMeta(repoID, "abc")
	if !meta.MetadataCached {
		t.Error("metadata_cached not updated")
	}

	if err := st.ClearNoteMeta(repoID, "abc"); err != nil {
		t.Fatal(err)
	}
	meta, _ = st.NoteMeta(repoID, "abc")
	if meta != nil {
		t.Errorf("meta = %+v after clear, want nil", meta)
	}
}

func TestContributionStats_CacheRoundTrip(t *testing.T) {
	st := newTestStore(t)
	repoID, _ := st.AddRepo("/tmp/p", "p")
	sha := "abc"

	cached, err := st.CachedStats(repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if cached != nil {
		t.Errorf("cached = %+v before upsert", cached)
	}

	row := ContributionStatsRow{
		HumanLines:   2,
		AIAgentLines: 8,
		TotalLines:   10,
		AIPercentage: 80.0,
		Tool:         strptr("claude-code"),
		Model:        strptr("opus"),
	}
	if err := st.UpsertContributionStats(repoID, sha, nil, row); err != nil {
		t.Fatal(err)
	}
	if err := st.ReplaceToolStats(repoID, sha, []ToolStatsRow{
		{Tool: "claude-code", Model: strptr("opus"), LineCount: 8},
	}); err != nil {
		t.Fatal(err)
	}

	cached, err = st.CachedStats(repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if cached == nil {
		t.Fatal("cached = nil after upsert")
	}
	if cached.AIAgentLines != 8 || cached.AIPercentage != 80.0 {
		t.Errorf("cached = %+v", cached)
	}
	if cached.Tool == nil || *cached.Tool != "claude-code" {
		t.Errorf("tool = %v", cached.Tool)
	}

	breakdown, err := st.ToolBreakdown(repoID, sha)
	if err != nil {
		t.Fatal(err)
	}
	if len(breakdown) != 1 || breakdown[0].LineCount != 8 {
		t.Errorf("breakdown = %+v", breakdown)
	}

	// Replacing with an empty set clears the breakdown.
	if err := st.ReplaceToolStats(repoID, sha, nil); err != nil {
		t.Fatal(err)
	}
	breakdown, _ = st.ToolBreakdown(repoID, sha)
	if len(breakdown) != 0 {
		t.Errorf("breakdown = %+v after clear", breakdown)
	}
}

func TestPrefs_DefaultsAndPartialUpdate(t *testing.T) {
	st := newTestStore(t)
	repoID, _ := st.AddRepo("/tmp/p", "p")

	prefs, err := st.FetchOrCreatePrefs(repoID)
	if err != nil {
		t.Fatal(err)
	}
	if prefs.CachePromptMetadata || prefs.StorePromptText {
		t.Errorf("prefs = %+v, want caching defaults off", prefs)
	}
	if !prefs.ShowLineOverlays {
		t.Error("overlays must default on")
	}
	if prefs.RetentionDays != nil {
		t.Errorf("retention = %v, want unset", prefs.RetentionDays)
	}

	updated, err := st.UpdatePrefs(repoID, PrefsUpdate{
		CachePromptMetadata: boolptr(true),
		RetentionDays:       intptr(30),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !updated.CachePromptMetadata {
		t.Error("cache_prompt_metadata not updated")
	}
	if updated.RetentionDays == nil || *updated.RetentionDays != 30 {
		t.Errorf("retention = %v", updated.RetentionDays)
	}
	// Untouched fields keep their values.
	if !updated.ShowLineOverlays {
		t.Error("overlays flipped by unrelated update")
	}

	cleared, err := st.UpdatePrefs(repoID, PrefsUpdate{ClearRetentionDays: true})
	if err != nil {
		t.Fatal(err)
	}
	if cleared.RetentionDays != nil {
		t.Errorf("retention = %v after clear", cleared.RetentionDays)
	}
	if !cleared.CachePromptMetadata {
		t.Error("clearing retention must not reset other prefs")
	}

	// The update is persisted, not just returned.
	reloaded, err := st.FetchOrCreatePrefs(repoID)
	if err != nil {
		t.Fatal(err)
	}
	if !reloaded.CachePromptMetadata || reloaded.RetentionDays != nil {
		t.Errorf("reloaded = %+v", reloaded)
	}
}
