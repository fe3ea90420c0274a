// Package main provides the docsync CLI: keep a folder of documents in sync
// with a vector store, and query it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/docsync/internal/app"
	"github.com/bull/docsync/internal/config"
	"github.com/bull/docsync/internal/indexer"
	"github.com/bull/docsync/internal/monitor"
	"github.com/bull/docsync/internal/watch"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "docsync",
	Short: "Incremental document ingestion into a vector store",
	Long: `docsync keeps the chunk embeddings of a folder of PDF, Word, Markdown and
text documents in sync with a vector store. Only new and modified documents
are re-embedded; removed documents are deleted from the store.

Configuration is read from an optional YAML file (--config), a .env file,
environment variables and flags, in increasing order of precedence.

Environment variables:
  DOCSYNC_WATCH_DIR   Folder to synchronize (default: data)
  DOCSYNC_STATE_DIR   Hash record directory (default: <watch dir>/.docsync)
  DOCSYNC_STORE       qdrant or memory (default: qdrant)
  QDRANT_HOST         Qdrant hostname (default: localhost)
  QDRANT_PORT         Qdrant gRPC port (default: 6334)
  OPENAI_API_KEY      OpenAI API key for embeddings`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle over the folder",
	Long: `Compares every document in the folder against the hash record and
updates the store:

  new documents       chunked, embedded and added
  modified documents  old chunks deleted, new chunks added
  deleted documents   chunks removed
  unchanged documents left alone

With --reset the collection and hash record are cleared first.`,
	RunE: runSync,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the folder and sync whenever it changes",
	Long: `Polls the folder every --interval and runs a sync cycle when the listing
changed. Exits after --max-unchanged without changes; 0 watches until
interrupted.`,
	RunE: runWatch,
}

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Print the passages most similar to a question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index counts and files changed since the last sync",
	RunE:  runStatus,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.String("dir", "", "Folder to synchronize")
	pf.String("state-dir", "", "Directory for the hash record and lock")
	pf.String("store", "", "Chunk store backend: qdrant or memory")
	pf.StringSlice("extensions", nil, "Restrict to these extensions (e.g. .pdf,.md)")

	syncCmd.Flags().Bool("reset", false, "Clear the collection and hash record before syncing")
	syncCmd.Flags().Int("chunk-size", 0, "Characters per chunk")
	syncCmd.Flags().Int("chunk-overlap", 0, "Characters shared by adjacent chunks")

	watchCmd.Flags().Bool("reset", false, "Clear the collection and hash record before the first cycle")
	watchCmd.Flags().Duration("interval", 0, "Polling interval")
	watchCmd.Flags().Duration("max-unchanged", 0, "Exit after this long without changes (0 watches forever)")
	watchCmd.Flags().Bool("notify", false, "Wake early on filesystem events")

	queryCmd.Flags().IntP("results", "n", 0, "Number of passages to print")

	rootCmd.AddCommand(syncCmd, watchCmd, queryCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig applies flags the user set on top of file and environment
// configuration, then validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("dir") {
		cfg.WatchDir, _ = flags.GetString("dir")
	}
	if flags.Changed("state-dir") {
		cfg.StateDir, _ = flags.GetString("state-dir")
	}
	if flags.Changed("store") {
		cfg.Store.Backend, _ = flags.GetString("store")
	}
	if flags.Changed("extensions") {
		cfg.Extensions, _ = flags.GetStringSlice("extensions")
	}
	if flags.Changed("chunk-size") {
		cfg.Chunk.Size, _ = flags.GetInt("chunk-size")
	}
	if flags.Changed("chunk-overlap") {
		cfg.Chunk.Overlap, _ = flags.GetInt("chunk-overlap")
	}
	if flags.Changed("interval") {
		cfg.Monitor.Interval, _ = flags.GetDuration("interval")
	}
	if flags.Changed("max-unchanged") {
		cfg.Monitor.MaxUnchanged, _ = flags.GetDuration("max-unchanged")
	}
	if flags.Changed("notify") {
		cfg.Monitor.Notify, _ = flags.GetBool("notify")
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, app.NewLogger(os.Stderr, cfg.LogLevel), nil
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	start := time.Now()

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	reset, _ := cmd.Flags().GetBool("reset")

	fmt.Printf("Syncing %s into %s store...\n", cfg.WatchDir, cfg.Store.Backend)
	syncer, err := app.OpenSyncer(ctx, cfg, reset, logger)
	if err != nil {
		return err
	}
	defer syncer.Close()

	if reset {
		fmt.Println("Collection and hash record cleared")
	}

	result, err := syncer.Engine.Run(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Println()
	printResult(result)
	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Millisecond))

	if len(result.Failed) > 0 {
		return fmt.Errorf("%d document(s) failed", len(result.Failed))
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	reset, _ := cmd.Flags().GetBool("reset")

	syncer, err := app.OpenSyncer(ctx, cfg, reset, logger)
	if err != nil {
		return err
	}
	defer syncer.Close()

	opts := []monitor.Option{
		monitor.WithLogger(logger),
		monitor.WithCycleHook(func(result *indexer.SyncResult) {
			if result.Changed() || len(result.Failed) > 0 {
				printResult(result)
			}
		}),
	}
	if cfg.Monitor.Notify {
		notifier, err := watch.New(cfg.WatchDir, syncer.Engine.Accept, logger)
		if err != nil {
			return err
		}
		defer notifier.Close()
		opts = append(opts, monitor.WithNotifier(notifier))
	}

	m, err := monitor.New(syncer.Engine, cfg.Monitor.Interval, cfg.Monitor.MaxUnchanged, opts...)
	if err != nil {
		return err
	}

	fmt.Printf("Watching %s (interval %s", cfg.WatchDir, cfg.Monitor.Interval)
	if cfg.Monitor.MaxUnchanged > 0 {
		fmt.Printf(", exit after %s unchanged", cfg.Monitor.MaxUnchanged)
	}
	fmt.Println(")")

	err = m.Run(ctx)
	if errors.Is(err, context.Canceled) {
		fmt.Println("Interrupted")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println("No changes within the quiet period, exiting")
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	results := cfg.Server.Results
	if cmd.Flags().Changed("results") {
		results, _ = cmd.Flags().GetInt("results")
	}

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	embedder, err := app.NewEmbedder(cfg, logger)
	if err != nil {
		return err
	}

	searcher := &app.Searcher{Embedder: embedder, Store: store}
	chunks, err := searcher.Search(ctx, strings.Join(args, " "), results)
	if err != nil {
		return err
	}

	if len(chunks) == 0 {
		fmt.Println("No matching passages found.")
		return nil
	}
	for i, chunk := range chunks {
		fmt.Printf("%d. %s [chunk %d] score %.3f\n", i+1, chunk.SourceFile, chunk.ChunkIndex, chunk.Score)
		fmt.Println(chunk.Content)
		fmt.Println()
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	extractor, err := app.NewExtractor(cfg)
	if err != nil {
		return err
	}

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	status, err := app.Status(ctx, store, cfg.WatchDir, cfg.ResolvedStateDir(), extractor.Supports)
	if err != nil {
		return err
	}

	fmt.Printf("Documents: %d (%d tracked)\n", len(status.Documents), status.TrackedDocs)
	fmt.Printf("Chunks: %d\n", status.TotalChunks)
	if status.LastSync.IsZero() {
		fmt.Println("Last sync: never")
	} else {
		fmt.Printf("Last sync: %s\n", status.LastSync.Format(time.RFC3339))
	}
	for _, name := range status.Pending {
		fmt.Printf("  pending: %s\n", name)
	}
	for _, name := range status.Removed {
		fmt.Printf("  removed: %s\n", name)
	}
	if status.Lag() > 0 {
		fmt.Printf("%d file(s) changed since the last sync\n", status.Lag())
	}
	return nil
}

func printResult(result *indexer.SyncResult) {
	fmt.Println("Sync complete!")
	fmt.Printf("  Documents: %d (%d new, %d modified, %d unchanged, %d deleted)\n",
		result.TotalDocs, result.New, result.Modified, result.Unchanged, result.Deleted)
	fmt.Printf("  Chunks: %d written, %d removed\n", result.ChunksWritten, result.ChunksRemoved)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))

	if len(result.Failed) > 0 {
		fmt.Println()
		fmt.Println("Failed documents:")
		for _, failed := range result.Failed {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}
	if len(result.Skipped) > 0 {
		fmt.Println()
		fmt.Println("Skipped documents:")
		for _, skipped := range result.Skipped {
			fmt.Printf("  - %s: %s\n", skipped.Path, skipped.Reason)
		}
	}
}
