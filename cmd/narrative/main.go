package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/anthropic/narrative/internal/attribution"
	"github.com/anthropic/narrative/internal/config"
	"github.com/anthropic/narrative/internal/report"
	"github.com/anthropic/narrative/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "narrative",
		Short: "Line-level attribution of human and AI authorship",
		Long: `narrative tracks which lines of a git repository were written by
humans, AI agents, or tab completions, and moves that attribution
in and out of git notes so it travels with the repository.`,
	}

	rootCmd.AddCommand(repoCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(linkCmd())
	rootCmd.AddCommand(ensureCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(statsBatchCmd())
	rootCmd.AddCommand(rowsCmd())
	rootCmd.AddCommand(lensCmd())
	rootCmd.AddCommand(coverageCmd())
	rootCmd.AddCommand(noteCmd())
	rootCmd.AddCommand(prefsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore loads config, ensures the data directory, and opens the
// SQLite store. The --db flag, when set, overrides the configured path.
func openStore(dbPath string) (*store.Store, error) {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPath == "" {
		if err := cfg.EnsureDataDir(); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dbPath = cfg.DBPath
	}
	return store.New(dbPath)
}

// resolveRepo registers (or re-finds) the repository at repoPath and
// returns its id. Registration is an upsert keyed on the absolute path.
func resolveRepo(st *store.Store, repoPath string) (int64, error) {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return 0, fmt.Errorf("resolve repo path: %w", err)
	}
	return st.AddRepo(abs, filepath.Base(abs))
}

func repoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage tracked repositories",
	}

	var name string
	addCmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Register a git repository for attribution tracking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(dbFlag(cmd))
			if err != nil {
				return err
			}
			defer st.Close()

			abs, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve repo path: %w", err)
			}
			if name == "" {
				name = filepath.Base(abs)
			}
			id, err := st.AddRepo(abs, name)
			if err != nil {
				return err
			}
			fmt.Printf("registered %s (repo id %d)\n", abs, id)
			return nil
		},
	}
	addCmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the directory name)")

	cmd.AddCommand(addCmd)
	addDBFlag(cmd)
	return cmd
}

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage AI tool sessions",
	}

	var (
		id             string
		tool           string
		model          string
		conversationID string
		files          []string
		trace          bool
	)
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Record an AI session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tool == "" {
				return fmt.Errorf("--tool is required")
			}
			st, err := openStore(dbFlag(cmd))
			if err != nil {
				return err
			}
			defer st.Close()

			if id == "" {
				id = uuid.NewString()
			}

			sess := store.Session{ID: id, Tool: tool, TraceAvailable: trace}
			if model != "" {
				sess.Model = &model
			}
			if conversationID != "" {
				sess.ConversationID = &conversationID
			}
			if len(files) > 0 {
				encoded := encodeFileList(files)
				sess.Files = &encoded
			}

			if err := st.UpsertSession(sess); err != nil {
				return err
			}
			fmt.Printf("recorded session %s\n", id)
			return nil
		},
	}
	addCmd.Flags().StringVar(&id, "id", "", "Session id (generated when omitted)")
	addCmd.Flags().StringVar(&tool, "tool", "", "Tool that ran the session (required)")
	addCmd.Flags().StringVar(&model, "model", "", "Model used by the session")
	addCmd.Flags().StringVar(&conversationID, "conversation", "", "Conversation id within the tool")
	addCmd.Flags().StringSliceVar(&files, "files", nil, "Files the session touched")
	addCmd.Flags().BoolVar(&trace, "trace", false, "A full trace of the session is available")

	cmd.AddCommand(addCmd)
	addDBFlag(cmd)
	return cmd
}

func linkCmd() *cobra.Command {
	var (
		repoPath   string
		sessionID  string
		confidence float64
	)
	cmd := &cobra.Command{
		Use:   "link <commit-sha>",
		Short: "Link a session to a commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}
			st, err := openStore(dbFlag(cmd))
			if err != nil {
				return err
			}
			defer st.Close()

			repoID, err := resolveRepo(st, repoPath)
			if err != nil {
				return err
			}
			if err := st.LinkSession(repoID, args[0], sessionID, confidence); err != nil {
				return err
			}
			fmt.Printf("linked session %s to %s\n", sessionID, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&repoPath, "repo", ".", "Path to the git repository")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id to link (required)")
	cmd.Flags().Float64Var(&confidence, "confidence", 1.0, "Link confidence (0-1)")
	addDBFlag(cmd)
	return cmd
}

func ensureCmd() *cobra.Command {
	var repoPath string
	cmd := &cobra.Command{
		Use:   "ensure <commit-sha>",
		Short: "Populate line attributions for a commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(dbFlag(cmd))
			if err != nil {
				return err
			}
			defer st.Close()

			repoID, err := resolveRepo(st, repoPath)
			if err != nil {
				return err
			}
			if err := attribution.New(st).EnsureLineAttributions(repoID, args[0]); err != nil {
				return err
			}
			fmt.Printf("attributions ensured for %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&repoPath, "repo", ".", "Path to the git repository")
	addDBFlag(cmd)
	return cmd
}

func statsCmd() *cobra.Command {
	var (
		repoPath   string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "stats <commit-sha>",
		Short: "Show contribution stats for a commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(dbFlag(cmd))
			if err != nil {
				return err
			}
			defer st.Close()

			repoID, err := resolveRepo(st, repoPath)
			if err != nil {
				return err
			}
			stats, err := attribution.New(st).CommitStats(repoID, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				fmt.Println(report.FormatJSON(stats))
			} else {
				fmt.Print(report.FormatStats(args[0], stats))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&repoPath, "repo", ".", "Path to the git repository")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	addDBFlag(cmd)
	return cmd
}

func statsBatchCmd() *cobra.Command {
	var repoPath string
	cmd := &cobra.Command{
		Use:   "stats-batch <commit-sha>...",
		Short: "Pre-compute and cache stats for many commits",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(dbFlag(cmd))
			if err != nil {
				return err
			}
			defer st.Close()

			repoID, err := resolveRepo(st, repoPath)
			if err != nil {
				return err
			}
			computed, err := attribution.New(st).ComputeStatsBatch(repoID, args)
			if err != nil {
				return err
			}
			fmt.Printf("computed stats for %d of %d commits\n", computed, len(args))
			return nil
		},
	}
	cmd.Flags().StringVar(&repoPath, "repo", ".", "Path to the git repository")
	addDBFlag(cmd)
	return cmd
}

func rowsCmd() *cobra.Command {
	var repoPath string
	cmd := &cobra.Command{
		Use:   "rows <commit-sha> [file]",
		Short: "List a commit's raw attribution rows",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(dbFlag(cmd))
			if err != nil {
				return err
			}
			defer st.Close()

			repoID, err := resolveRepo(st, repoPath)
			if err != nil {
				return err
			}
			filePath := ""
			if len(args) == 2 {
				filePath = args[1]
			}
			rows, err := attribution.New(st).LineAttributions(repoID, args[0], filePath)
			if err != nil {
				return err
			}
			fmt.Print(report.FormatAttributionRows(args[0], rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&repoPath, "repo", ".", "Path to the git repository")
	addDBFlag(cmd)
	return cmd
}

func lensCmd() *cobra.Command {
	var (
		repoPath   string
		offset     int
		limit      int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "lens <commit-sha> <file>",
		Short: "Show per-line authorship for a file at a commit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.ConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if limit <= 0 {
				limit = cfg.LensPageSize
			}

			st, err := openStore(dbFlag(cmd))
			if err != nil {
				return err
			}
			defer st.Close()

			repoID, err := resolveRepo(st, repoPath)
			if err != nil {
				return err
			}
			page, err := attribution.New(st).FileSourceLens(repoID, args[0], args[1], offset, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				fmt.Println(report.FormatJSON(page))
			} else {
				fmt.Print(report.FormatLensPage(args[1], page, cfg.ShowLineNumber))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&repoPath, "repo", ".", "Path to the git repository")
	cmd.Flags().IntVar(&offset, "offset", 0, "First line to show (0-based)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Lines per page (defaults to configured page size)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	addDBFlag(cmd)
	return cmd
}

func coverageCmd() *cobra.Command {
	var (
		repoPath   string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "coverage <commit-sha>",
		Short: "Show how much of a commit's changes are attributed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(dbFlag(cmd))
			if err != nil {
				return err
			}
			defer st.Close()

			repoID, err := resolveRepo(st, repoPath)
			if err != nil {
				return err
			}
			coverage, err := attribution.New(st).Coverage(repoID, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				fmt.Println(report.FormatJSON(coverage))
			} else {
				fmt.Print(report.FormatCoverage(args[0], coverage))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&repoPath, "repo", ".", "Path to the git repository")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	addDBFlag(cmd)
	return cmd
}

func noteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Move attribution in and out of git notes",
	}

	var (
		repoPath   string
		jsonOutput bool
	)

	importCmd := &cobra.Command{
		Use:   "import <commit-sha>",
		Short: "Import a commit's attribution note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(dbFlag(cmd))
			if err != nil {
				return err
			}
			defer st.Close()

			repoID, err := resolveRepo(st, repoPath)
			if err != nil {
				return err
			}
			summary, err := attribution.New(st).ImportNote(repoID, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				fmt.Println(report.FormatJSON(summary))
			} else {
				fmt.Print(report.FormatImportSummary(summary))
			}
			return nil
		},
	}

	importBatchCmd := &cobra.Command{
		Use:   "import-batch <commit-sha>...",
		Short: "Import attribution notes for many commits",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(dbFlag(cmd))
			if err != nil {
				return err
			}
			defer st.Close()

			repoID, err := resolveRepo(st, repoPath)
			if err != nil {
				return err
			}
			batch, err := attribution.New(st).ImportNotesBatch(repoID, args)
			if err != nil {
				return err
			}
			if jsonOutput {
				fmt.Println(report.FormatJSON(batch))
			} else {
				fmt.Print(report.FormatBatchSummary(batch))
			}
			return nil
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export <commit-sha>",
		Short: "Export a commit's attribution into a git note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(dbFlag(cmd))
			if err != nil {
				return err
			}
			defer st.Close()

			repoID, err := resolveRepo(st, repoPath)
			if err != nil {
				return err
			}
			summary, err := attribution.New(st).ExportNote(repoID, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				fmt.Println(report.FormatJSON(summary))
			} else {
				fmt.Print(report.FormatExportSummary(summary))
			}
			return nil
		},
	}

	summaryCmd := &cobra.Command{
		Use:   "summary <commit-sha>",
		Short: "Show the note state of a commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(dbFlag(cmd))
			if err != nil {
				return err
			}
			defer st.Close()

			repoID, err := resolveRepo(st, repoPath)
			if err != nil {
				return err
			}
			summary, err := attribution.New(st).CommitNoteSummary(repoID, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				fmt.Println(report.FormatJSON(summary))
			} else {
				fmt.Print(report.FormatNoteSummary(summary))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&repoPath, "repo", ".", "Path to the git repository")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.AddCommand(importCmd, importBatchCmd, exportCmd, summaryCmd)
	addDBFlag(cmd)
	return cmd
}

func prefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change per-repo attribution preferences",
	}

	var repoPath string

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show preferences for a repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(dbFlag(cmd))
			if err != nil {
				return err
			}
			defer st.Close()

			repoID, err := resolveRepo(st, repoPath)
			if err != nil {
				return err
			}
			prefs, err := st.FetchOrCreatePrefs(repoID)
			if err != nil {
				return err
			}
			fmt.Println(report.FormatJSON(prefs))
			return nil
		},
	}

	var (
		cacheMetadata  bool
		storePromptTxt bool
		showOverlays   bool
		retentionDays  int
		clearRetention bool
	)
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Change preferences for a repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(dbFlag(cmd))
			if err != nil {
				return err
			}
			defer st.Close()

			repoID, err := resolveRepo(st, repoPath)
			if err != nil {
				return err
			}

			var update store.PrefsUpdate
			if cmd.Flags().Changed("cache-metadata") {
				update.CachePromptMetadata = &cacheMetadata
			}
			if cmd.Flags().Changed("store-prompt-text") {
				update.StorePromptText = &storePromptTxt
			}
			if cmd.Flags().Changed("show-overlays") {
				update.ShowLineOverlays = &showOverlays
			}
			if clearRetention {
				update.ClearRetentionDays = true
			} else if cmd.Flags().Changed("retention-days") {
				update.RetentionDays = &retentionDays
			}

			prefs, err := st.UpdatePrefs(repoID, update)
			if err != nil {
				return err
			}
			fmt.Println(report.FormatJSON(prefs))
			return nil
		},
	}
	setCmd.Flags().BoolVar(&cacheMetadata, "cache-metadata", false, "Cache note metadata locally")
	setCmd.Flags().BoolVar(&storePromptTxt, "store-prompt-text", false, "Allow storing redacted prompt payloads")
	setCmd.Flags().BoolVar(&showOverlays, "show-overlays", true, "Show line attribution overlays")
	setCmd.Flags().IntVar(&retentionDays, "retention-days", 0, "Days to retain cached metadata")
	setCmd.Flags().BoolVar(&clearRetention, "clear-retention", false, "Unset metadata retention")

	cmd.PersistentFlags().StringVar(&repoPath, "repo", ".", "Path to the git repository")
	cmd.AddCommand(showCmd, setCmd)
	addDBFlag(cmd)
	return cmd
}

// addDBFlag registers the shared --db override on a command tree.
func addDBFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().String("db", "", "Path to the SQLite database (overrides config)")
}

func dbFlag(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("db")
	return v
}

func encodeFileList(files []string) string {
	data, err := json.Marshal(files)
	if err != nil {
		return "[]"
	}
	return string(data)
}
