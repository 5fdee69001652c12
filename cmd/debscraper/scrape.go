package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nao1215/debscraper/internal/config"
	"github.com/nao1215/debscraper/internal/database"
	"github.com/nao1215/debscraper/internal/downloader"
	"github.com/nao1215/debscraper/internal/model"
	"github.com/spf13/cobra"
)

// noURLsMessage is printed when a run has no seeds.
const noURLsMessage = "Done: no urls given."

// NewScrapeCmd creates the scrape command.
func NewScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Crawl package pools and feed new archives to symsorter",
		Long: `Scrape crawls the given pool listings, downloads every .deb and .ddeb
archive not yet in the cache, extracts each archive's data tarball and runs
symsorter once per package over the extracted trees.

Archives are remembered under <output>/<prefix>/debscraber_cache once
symsorter has returned, so an interrupted or failed package is retried on
the next run.

Examples:
  # Scrape Ubuntu's pool into ./output
  debscraper scrape -p ubuntu -u http://archive.ubuntu.com/ubuntu/pool/

  # Several pools, fixed bundle suffix, lower download concurrency
  debscraper scrape -p ubuntu --bundle-suffix 2024-01-01 \
    --downloading-concurrency 4 \
    -u http://archive.ubuntu.com/ubuntu/pool/main/ \
    -u http://ddebs.ubuntu.com/pool/main/

  # Expose Prometheus metrics while running
  debscraper scrape -c debscraper.yaml --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: runScrapeCmd,
	}

	addCrawlFlags(cmd.Flags())
	addScrapeFlags(cmd.Flags())

	return cmd
}

// runScrapeCmd executes the scrape command.
func runScrapeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	if len(cfg.Seeds) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), noURLsMessage)
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	return runScrape(ctx, cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// runScrape crawls, processes and reports. Package failures end up in the
// report; only setup failures and interruption are returned.
func runScrape(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) error {
	logger.Info("starting scrape",
		"seeds", cfg.Seeds,
		"prefix", cfg.Prefix,
		"output", cfg.Output,
		"scrapingConcurrency", cfg.ScrapingConcurrency,
		"downloadingConcurrency", cfg.DownloadingConcurrency,
	)

	rt, err := newRunEnv(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	runReport := model.NewRunReport(cfg.Prefix, cfg.Seeds)

	fmt.Fprintf(stderr, "Crawling %d pool listing(s)...\n", len(cfg.Seeds))
	result, crawlErr := rt.crawl(ctx, cfg.Seeds)
	if result == nil {
		return crawlErr
	}
	runReport.SetDiscovered(result.Packages)
	fmt.Fprintf(stderr, "Found %d package(s), %d archive(s) in %d listing(s)\n",
		runReport.PackagesDiscovered, runReport.ArtifactsDiscovered, result.Listings)

	var runErr error
	if crawlErr != nil {
		runErr = crawlErr
	} else {
		bundleSuffix := cfg.BundleSuffixOrToday(time.Now())
		pl := downloader.NewPipeline(rt.downloadPool, cfg.Output, cfg.Prefix, bundleSuffix,
			downloader.WithRunner(downloader.NewExecRunner(logger)),
			downloader.WithTools(downloader.Tools{
				Ar:        cfg.Tools.Ar,
				Tar:       cfg.Tools.Tar,
				Symsorter: cfg.Tools.Symsorter,
			}),
			downloader.WithStrictSorter(cfg.StrictSorter),
			downloader.WithFetcher(rt.fetcher),
			downloader.WithLogger(logger),
			downloader.WithMetrics(rt.metrics),
		)

		fmt.Fprintf(stderr, "Processing %d package(s) (bundle suffix %s)...\n",
			len(result.Packages), bundleSuffix)
		results, err := pl.Run(ctx, result.Packages)
		if model.IsSetup(err) {
			return err
		}
		for _, res := range results {
			runReport.AddResult(res)
		}
		if err != nil {
			runErr = fmt.Errorf("run interrupted: %w", err)
		}
	}

	runReport.Finish()

	if err := outputRunReport(cfg, runReport, stdout); err != nil {
		logger.Error("report failed", "error", err)
	}

	// The history entry is written even when interrupted so partial runs
	// remain visible.
	if cfg.SaveToDB {
		if err := saveRunReport(cfg.DBDir, runReport, logger); err != nil {
			logger.Error("failed to save run", "error", err)
		}
	}

	if failures := len(runReport.Failures()); failures > 0 {
		fmt.Fprintf(stderr, "%d package(s) failed; they will be retried on the next run\n", failures)
	}

	return runErr
}

// outputRunReport renders the report to the configured destination.
func outputRunReport(cfg *config.Config, runReport *model.RunReport, stdout io.Writer) error {
	out, closeOut, err := openReportOutput(cfg, stdout)
	if err != nil {
		return err
	}

	if _, err := newReportWriter(cfg, out).Write(runReport); err != nil {
		_ = closeOut() //nolint:errcheck // write error takes precedence
		return err
	}
	if err := closeOut(); err != nil {
		return fmt.Errorf("failed to close report file: %w", err)
	}
	if cfg.ReportFile != "" {
		fmt.Fprintf(stdout, "Report written to: %s\n", cfg.ReportFile)
	}
	return nil
}

// saveRunReport records the run in the history database. It uses a fresh
// context so an interrupted run is still recorded.
func saveRunReport(dbDir string, runReport *model.RunReport, logger *slog.Logger) error {
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id, err := db.SaveRun(ctx, runReport)
	if err != nil {
		return err
	}
	logger.Info("run saved", "id", id, "db", db.Path())
	return nil
}
