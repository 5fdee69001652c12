package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/debscraper/internal/config"
	"github.com/nao1215/debscraper/internal/database"
	"github.com/nao1215/debscraper/internal/model"
)

const (
	noHistoryMessage  = "No run history found."
	historyDateLayout = "2006-01-02 15:04:05"
	defaultHistoryMax = 20
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded scrape runs",
		Long: `History reads the run database written by 'debscraper scrape'.

Without flags it lists the most recent runs. Use --run to show one run's
package results, --package to follow a single package across runs and
--prune-before to drop old entries.

Examples:
  # Recent runs for the ubuntu prefix
  debscraper history --prefix ubuntu

  # Packages that failed in the latest run
  debscraper history --run latest --failed

  # How zlib fared over time, as JSON
  debscraper history --package zlib -j

  # Forget runs started before 2024
  debscraper history --prune-before 2024-01-01`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("prefix", "", "Only list runs with this prefix")
	cmd.Flags().IntP("limit", "n", defaultHistoryMax, "Maximum number of runs to list (0 for all)")
	cmd.Flags().String("run", "", "Show the run with this ID, or 'latest'")
	cmd.Flags().Bool("failed", false, "With --run, show only failed packages")
	cmd.Flags().String("package", "", "Show the history of one package")
	cmd.Flags().String("prune-before", "", "Delete runs started before this date (format: YYYY-MM-DD)")
	cmd.Flags().String("db-dir", "", "Run history directory (default: XDG data directory)")
	cmd.Flags().BoolP("json", "j", false, "Output JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown (mutually exclusive with --json)")

	return cmd
}

// historyOptions holds the parsed history flags.
type historyOptions struct {
	prefix      string
	limit       int
	run         string
	failed      bool
	pkg         string
	pruneBefore string
	dbDir       string
	json        bool
	markdown    bool
}

func parseHistoryFlags(cmd *cobra.Command) (*historyOptions, error) {
	flags := cmd.Flags()
	opts := &historyOptions{}

	var err error
	if opts.prefix, err = flags.GetString("prefix"); err != nil {
		return nil, err
	}
	if opts.limit, err = flags.GetInt("limit"); err != nil {
		return nil, err
	}
	if opts.run, err = flags.GetString("run"); err != nil {
		return nil, err
	}
	if opts.failed, err = flags.GetBool("failed"); err != nil {
		return nil, err
	}
	if opts.pkg, err = flags.GetString("package"); err != nil {
		return nil, err
	}
	if opts.pruneBefore, err = flags.GetString("prune-before"); err != nil {
		return nil, err
	}
	if opts.dbDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if opts.json, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if opts.markdown, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}

	if opts.json && opts.markdown {
		return nil, config.ErrConflictingReportFormats
	}
	if opts.failed && opts.run == "" {
		return nil, errors.New("--failed requires --run")
	}
	if opts.limit < 0 {
		return nil, errors.New("--limit must not be negative")
	}
	if opts.dbDir == "" {
		opts.dbDir = config.XDGDataDir()
	}
	return opts, nil
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	opts, err := parseHistoryFlags(cmd)
	if err != nil {
		return err
	}

	// Validate the date before opening the database.
	var pruneBefore time.Time
	if opts.pruneBefore != "" {
		pruneBefore, err = time.Parse(config.BundleDateLayout, opts.pruneBefore)
		if err != nil {
			return fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}
	}

	dbOpts := database.ReadOnlyOptions()
	if opts.pruneBefore != "" {
		dbOpts = database.DefaultOptions()
	}

	out := cmd.OutOrStdout()
	db, err := database.Open(opts.dbDir, dbOpts)
	if errors.Is(err, database.ErrDatabaseNotFound) {
		fmt.Fprintln(out, noHistoryMessage)
		fmt.Fprintln(out, "\nUse 'debscraper scrape' to record a run.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()

	switch {
	case opts.pruneBefore != "":
		n, err := db.DeleteRunsBefore(ctx, pruneBefore)
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
		fmt.Fprintf(out, "Deleted %d run(s) started before %s\n", n, opts.pruneBefore)
		return nil
	case opts.pkg != "":
		return showPackageHistory(ctx, db, opts, out)
	case opts.run != "":
		return showRun(ctx, db, opts, out)
	default:
		return listRuns(ctx, db, opts, out)
	}
}

// listRuns prints the run history table.
func listRuns(ctx context.Context, db *database.RunDB, opts *historyOptions, out io.Writer) error {
	runs, err := db.ListRuns(ctx, opts.prefix, opts.limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if opts.json {
		return writeJSON(out, runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, noHistoryMessage)
		return nil
	}

	header := []string{"ID", "Started", "Prefix", "Packages", "Completed", "Cached", "Failed", "Duration"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.StartedAt.Local().Format(historyDateLayout),
			r.Prefix,
			strconv.Itoa(r.PackagesDiscovered),
			strconv.Itoa(r.Completed),
			strconv.Itoa(r.Cached),
			strconv.Itoa(r.Failed),
			r.Duration().Round(time.Second).String(),
		})
	}

	if opts.markdown {
		md := markdown.NewMarkdown(out)
		md.H1("debscraper Run History")
		md.PlainText("")
		md.Table(markdown.TableSet{Header: header, Rows: rows})
		return md.Build()
	}

	fmt.Fprintf(out, "Run history (%d runs):\n\n", len(runs))
	fmt.Fprintf(out, "  %-6s  %-19s  %-12s  %8s  %9s  %6s  %6s  %s\n",
		header[0], header[1], header[2], header[3], header[4], header[5], header[6], header[7])
	fmt.Fprintln(out, "  "+strings.Repeat("-", 90))
	for _, row := range rows {
		fmt.Fprintf(out, "  %-6s  %-19s  %-12s  %8s  %9s  %6s  %6s  %s\n",
			row[0], row[1], row[2], row[3], row[4], row[5], row[6], row[7])
	}
	fmt.Fprintln(out, "\nUse 'debscraper history --run <id>' to see a run's packages.")
	return nil
}

// resolveRunID turns the --run value into an ID.
func resolveRunID(ctx context.Context, db *database.RunDB, run string) (int64, error) {
	if run == "latest" {
		id, err := db.LatestRunID(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to find latest run: %w", err)
		}
		return id, nil
	}
	id, err := strconv.ParseInt(run, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid run ID %q (use a number or 'latest')", run)
	}
	return id, nil
}

// showRun prints one run, or only its failed packages.
func showRun(ctx context.Context, db *database.RunDB, opts *historyOptions, out io.Writer) error {
	id, err := resolveRunID(ctx, db, opts.run)
	if err != nil {
		return err
	}
	if id == 0 {
		fmt.Fprintln(out, noHistoryMessage)
		return nil
	}

	if opts.failed {
		records, err := db.GetPackageResults(ctx, id, model.PackageFailed)
		if err != nil {
			return fmt.Errorf("failed to get package results: %w", err)
		}
		return writePackageRecords(out, fmt.Sprintf("Failed packages of run %d", id), records, opts)
	}

	runReport, err := db.GetRun(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get run %d: %w", id, err)
	}
	if runReport == nil {
		return fmt.Errorf("run with ID %d not found", id)
	}

	cfg := &config.Config{JSONReport: opts.json, MarkdownReport: opts.markdown, Verbose: true}
	_, err = newReportWriter(cfg, out).Write(runReport)
	return err
}

// showPackageHistory prints every recorded result of one package.
func showPackageHistory(ctx context.Context, db *database.RunDB, opts *historyOptions, out io.Writer) error {
	records, err := db.PackageHistory(ctx, opts.pkg)
	if err != nil {
		return fmt.Errorf("failed to get package history: %w", err)
	}
	return writePackageRecords(out, "History of "+opts.pkg, records, opts)
}

// writePackageRecords renders package records as text, JSON or Markdown.
func writePackageRecords(out io.Writer, title string, records []database.PackageRecord, opts *historyOptions) error {
	if opts.json {
		return writeJSON(out, records)
	}

	if len(records) == 0 {
		fmt.Fprintf(out, "%s: none\n", title)
		return nil
	}

	header := []string{"Run", "Started", "Package", "Status", "Fetched", "Cached", "Error"}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			strconv.FormatInt(r.RunID, 10),
			r.StartedAt.Local().Format(historyDateLayout),
			r.Package,
			string(r.Status),
			strconv.Itoa(r.Fetched),
			strconv.Itoa(r.Cached),
			r.Error,
		})
	}

	if opts.markdown {
		md := markdown.NewMarkdown(out)
		md.H1(title)
		md.PlainText("")
		md.Table(markdown.TableSet{Header: header, Rows: rows})
		return md.Build()
	}

	fmt.Fprintf(out, "%s (%d):\n\n", title, len(records))
	for _, row := range rows {
		line := fmt.Sprintf("  #%-5s  %s  %-24s  %-9s  fetched=%s cached=%s",
			row[0], row[1], row[2], row[3], row[4], row[5])
		if row[6] != "" {
			line += "  " + row[6]
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
