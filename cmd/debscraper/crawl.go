package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Discover packages without downloading them",
		Long: `Crawl walks the given pool listings and prints every package it finds
together with its archive URLs. Nothing is downloaded and no cache entries
are written.

Examples:
  # List all packages below a pool
  debscraper crawl -u http://archive.ubuntu.com/ubuntu/pool/main/z/

  # JSON for other tools
  debscraper crawl -j -u http://ddebs.ubuntu.com/pool/main/ > packages.json`,
		Args: cobra.NoArgs,
		RunE: runCrawlCmd,
	}

	addCrawlFlags(cmd.Flags())

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	if len(cfg.Seeds) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), noURLsMessage)
		return nil
	}

	// Discovery needs no prefix; validate the rest with a placeholder.
	check := *cfg
	if check.Prefix == "" {
		check.Prefix = "crawl"
	}
	if err := check.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	rt, err := newRunEnv(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, crawlErr := rt.crawl(ctx, cfg.Seeds)
	if result == nil {
		return crawlErr
	}

	out, closeOut, err := openReportOutput(cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if _, err := newReportWriter(cfg, out).WritePackages(result.Packages); err != nil {
		_ = closeOut() //nolint:errcheck // write error takes precedence
		return err
	}
	if err := closeOut(); err != nil {
		return fmt.Errorf("failed to close report file: %w", err)
	}

	if result.PagesFailed > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d listing(s) could not be fetched\n", result.PagesFailed)
	}

	return crawlErr
}
