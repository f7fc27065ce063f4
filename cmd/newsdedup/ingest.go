package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/newsdedup/internal/config"
	"github.com/steveyegge/newsdedup/internal/feeds"
	"github.com/steveyegge/newsdedup/internal/handoff"
	"github.com/steveyegge/newsdedup/internal/ingest"
	"github.com/steveyegge/newsdedup/internal/report"
	"github.com/steveyegge/newsdedup/internal/seencache"
	"github.com/steveyegge/newsdedup/internal/significance"
	"github.com/steveyegge/newsdedup/internal/types"
)

var (
	ingestConfigPath string
	ingestFeeds      []string
	ingestInput      string
	ingestWorkers    int
	ingestDryRun     bool
	ingestJSON       bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch feeds and run every item through the pipeline",
	Long: `Fetch the configured feeds (and any --feed URLs), check each item for
duplicates, store new articles, patch edited ones and hand new or
significantly changed articles off for analysis.

Articles can also be read from a JSON array with --input (use - for stdin).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(ingestConfigPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("workers") {
			cfg.Ingest.Workers = ingestWorkers
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		for _, u := range ingestFeeds {
			cfg.Feeds = append(cfg.Feeds, feeds.Feed{URL: u})
		}
		if len(cfg.Feeds) == 0 && ingestInput == "" {
			return fmt.Errorf("nothing to ingest: configure feeds, pass --feed or --input")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		articles, err := collectArticles(ctx, cmd.InOrStdin(), cfg)
		if err != nil {
			return err
		}

		rep, err := runPipeline(ctx, cfg, articles)
		if rep != nil {
			if ingestJSON {
				if werr := writeJSON(cmd.OutOrStdout(), rep); werr != nil {
					return werr
				}
			} else {
				printRunReport(cmd.OutOrStdout(), rep)
			}
		}
		return err
	},
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestConfigPath, "config", "c", "", "YAML config file (default $NEWSDEDUP_CONFIG)")
	ingestCmd.Flags().StringArrayVar(&ingestFeeds, "feed", nil, "feed URL to fetch (repeatable)")
	ingestCmd.Flags().StringVar(&ingestInput, "input", "", "read articles from a JSON file instead of or alongside feeds")
	ingestCmd.Flags().IntVarP(&ingestWorkers, "workers", "w", ingest.DefaultWorkers, "articles processed concurrently")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "run the arbiter but write nothing and hand nothing off")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "print the run report as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func collectArticles(ctx context.Context, stdin io.Reader, cfg *config.Config) ([]types.IncomingArticle, error) {
	var articles []types.IncomingArticle

	if len(cfg.Feeds) > 0 {
		fetched, err := feeds.NewFetcher(cfg.FetchConfig(), nil).FetchAll(ctx, cfg.Feeds)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			// partial results are still worth processing
			slog.Warn("some feeds failed", "error", err)
		}
		articles = append(articles, fetched...)
	}

	if ingestInput != "" {
		in, err := readArticles(stdin, ingestInput)
		if err != nil {
			return nil, err
		}
		articles = append(articles, in...)
	}
	return articles, nil
}

func readArticles(stdin io.Reader, path string) ([]types.IncomingArticle, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		r = f
	}
	var articles []types.IncomingArticle
	if err := json.NewDecoder(r).Decode(&articles); err != nil {
		return nil, fmt.Errorf("decoding input %s: %w", path, err)
	}
	return articles, nil
}

func runPipeline(ctx context.Context, cfg *config.Config, articles []types.IncomingArticle) (*ingest.RunReport, error) {
	store, err := openStore(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	eng, err := newEngine(store)
	if err != nil {
		return nil, err
	}

	sigCfg, err := significance.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	sig, err := significance.New(sigCfg)
	if err != nil {
		return nil, err
	}

	cache, err := newSeenCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer cache.Close()

	publisher, err := newPublisher(cfg)
	if err != nil {
		return nil, err
	}
	defer publisher.Close()

	opts := []ingest.Option{
		ingest.WithSeenCache(cache),
		ingest.WithPublisher(publisher),
		ingest.WithWorkers(cfg.Ingest.Workers),
		ingest.WithDryRun(ingestDryRun),
	}
	if fn := eng.failoverStats(); fn != nil {
		opts = append(opts, ingest.WithFailoverStats(fn))
	}
	archiver, err := newArchiver(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if archiver != nil {
		opts = append(opts, ingest.WithArchiver(archiver))
	}

	pipeline, err := ingest.NewPipeline(eng.arbiter, store, sig, opts...)
	if err != nil {
		return nil, err
	}
	return pipeline.Run(ctx, articles)
}

func newSeenCache(ctx context.Context, cfg *config.Config) (seencache.Cache, error) {
	rc, ok := cfg.SeenCache()
	if !ok {
		return seencache.NewMemory(cfg.SeenTTL()), nil
	}
	cache, err := seencache.NewRedis(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("seen cache: %w", err)
	}
	return cache, nil
}

func newPublisher(cfg *config.Config) (handoff.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return handoff.NewLogPublisher(slog.Default()), nil
	}
	pub, err := handoff.NewKafkaPublisher(cfg.Kafka)
	if err != nil {
		return nil, err
	}
	return pub, nil
}

func newArchiver(ctx context.Context, cfg *config.Config) (report.Archiver, error) {
	switch {
	case cfg.Archive.Bucket != "":
		a, err := report.NewS3Archiver(ctx, cfg.Archive.S3Config)
		if err != nil {
			return nil, err
		}
		return a, nil
	case cfg.Archive.Dir != "":
		return report.NewFileArchiver(cfg.Archive.Dir), nil
	}
	return nil, nil
}

func printRunReport(w io.Writer, rep *ingest.RunReport) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	title := "=== Ingest Run ==="
	if rep.DryRun {
		title = "=== Ingest Run (dry run) ==="
	}
	fmt.Fprintf(w, "\n%s %s\n\n", cyan(title), gray(rep.RunID))

	fmt.Fprintf(w, "%s\n", yellow("Actions:"))
	for _, a := range []ingest.Action{
		ingest.ActionStored, ingest.ActionSkipped, ingest.ActionPatched, ingest.ActionReanalyze,
		ingest.ActionSeen, ingest.ActionInvalid, ingest.ActionFailed,
	} {
		n := rep.Actions[a]
		line := fmt.Sprintf("  %-10s %d", a+":", n)
		if a == ingest.ActionFailed && n > 0 {
			line = color.RedString(line)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "  %-10s %d\n\n", "total:", rep.Processed)

	fmt.Fprintf(w, "%s\n", yellow("Arbitration:"))
	for _, m := range []types.Method{
		types.MethodURL, types.MethodContentHash, types.MethodNoSimilar, types.MethodLowSimilarity, types.MethodAI,
	} {
		fmt.Fprintf(w, "  %-15s %d\n", string(m)+":", rep.Methods[m])
	}
	fmt.Fprintf(w, "  AI calls: %d, fail-open: %d\n", rep.AIChecks, rep.AIFallbacks)
	if rep.AIFailover != nil && rep.AIFailover.Current != "" {
		fmt.Fprintf(w, "  AI provider: %s\n", rep.AIFailover.Current)
	}
	if rep.PublishFailures > 0 {
		fmt.Fprintf(w, "  %s\n", color.YellowString("%d analysis hand-offs failed", rep.PublishFailures))
	}
	fmt.Fprintln(w)

	for _, r := range rep.Results {
		if r.Action != ingest.ActionFailed && r.Action != ingest.ActionReanalyze {
			continue
		}
		mark := color.RedString("✗")
		detail := r.Error
		if r.Action == ingest.ActionReanalyze {
			mark = color.YellowString("↻")
			detail = fmt.Sprintf("article %d", r.ArticleID)
		}
		fmt.Fprintf(w, "%s %s %s\n", mark, r.Title, gray(detail))
	}

	if rep.ArchiveLocation != "" {
		fmt.Fprintf(w, "\nReport archived to %s\n", rep.ArchiveLocation)
	}
	fmt.Fprintf(w, "Duration: %s\n", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))
}
