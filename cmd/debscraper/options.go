package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nao1215/debscraper/internal/config"
	"github.com/nao1215/debscraper/internal/crawler"
	"github.com/nao1215/debscraper/internal/fetch"
	seclog "github.com/nao1215/debscraper/internal/log"
	"github.com/nao1215/debscraper/internal/metrics"
	"github.com/nao1215/debscraper/internal/model"
	"github.com/nao1215/debscraper/internal/pool"
	"github.com/nao1215/debscraper/internal/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// addCrawlFlags registers the flags shared by scrape and crawl.
func addCrawlFlags(flags *pflag.FlagSet) {
	flags.StringArrayP("pool-url", "u", nil,
		"Pool listing URL to crawl (repeatable)")
	flags.Int("scraping-concurrency", config.DefaultScrapingConcurrency,
		"Maximum concurrent listing fetches")
	flags.DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each HTTP request")
	flags.String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	flags.String("proxy", "",
		"Proxy URL (http, https, socks5 or socks5h)")
	flags.Float64("rate-limit", 0,
		"Per-host request limit in requests per second (0 disables)")
	flags.Int("rate-burst", config.DefaultRateBurst,
		"Per-host burst size when --rate-limit is set")
	flags.String("metrics-addr", "",
		"Serve Prometheus metrics on this address, e.g. :9090")
	flags.StringP("config", "c", "",
		"Configuration file path (default: .debscraper in current or home directory)")

	flags.BoolP("json", "j", false,
		"Output JSON (mutually exclusive with --markdown)")
	flags.BoolP("markdown", "m", false,
		"Output Markdown (mutually exclusive with --json)")
	flags.StringP("report-file", "r", "",
		"Write the report to this file instead of stdout")
}

// addScrapeFlags registers the flags only scrape uses.
func addScrapeFlags(flags *pflag.FlagSet) {
	flags.Int("downloading-concurrency", config.DefaultDownloadingConcurrency,
		"Maximum packages processed at once")
	flags.StringP("output", "o", config.DefaultOutput,
		"Directory symsorter writes into")
	flags.StringP("prefix", "p", "",
		"Sorter prefix (required)")
	flags.String("bundle-suffix", "",
		"Bundle identifier suffix (default: today's UTC date)")
	flags.String("ar", "", "Path to ar (default: ar in PATH)")
	flags.String("tar", "", "Path to tar (default: tar in PATH)")
	flags.String("symsorter", "", "Path to symsorter (default: symsorter in PATH)")
	flags.Bool("strict-sorter", false,
		"Fail a package when symsorter exits non-zero")
	flags.String("db-dir", "",
		"Run history directory (default: XDG data directory)")
	flags.Bool("no-history", false,
		"Do not record the run in the history database")
}

// buildConfig layers defaults, the configuration file and changed flags.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}

	explicit := cfg.ConfigFilePath != ""
	path := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case path != "":
		file, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		cfg.ApplyFile(file)
	case explicit:
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	if changed("pool-url") {
		if cfg.Seeds, err = flags.GetStringArray("pool-url"); err != nil {
			return nil, err
		}
	}
	if changed("scraping-concurrency") {
		if cfg.ScrapingConcurrency, err = flags.GetInt("scraping-concurrency"); err != nil {
			return nil, err
		}
	}
	if changed("downloading-concurrency") {
		if cfg.DownloadingConcurrency, err = flags.GetInt("downloading-concurrency"); err != nil {
			return nil, err
		}
	}
	if changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if changed("rate-limit") {
		if cfg.RateLimit, err = flags.GetFloat64("rate-limit"); err != nil {
			return nil, err
		}
	}
	if changed("rate-burst") {
		if cfg.RateBurst, err = flags.GetInt("rate-burst"); err != nil {
			return nil, err
		}
	}
	if changed("strict-sorter") {
		if cfg.StrictSorter, err = flags.GetBool("strict-sorter"); err != nil {
			return nil, err
		}
	}

	stringFlags := map[string]*string{
		"user-agent":    &cfg.UserAgent,
		"proxy":         &cfg.ProxyURL,
		"metrics-addr":  &cfg.MetricsAddr,
		"output":        &cfg.Output,
		"prefix":        &cfg.Prefix,
		"bundle-suffix": &cfg.BundleSuffix,
		"ar":            &cfg.Tools.Ar,
		"tar":           &cfg.Tools.Tar,
		"symsorter":     &cfg.Tools.Symsorter,
		"db-dir":        &cfg.DBDir,
	}
	for name, dst := range stringFlags {
		if !changed(name) {
			continue
		}
		if *dst, err = flags.GetString(name); err != nil {
			return nil, err
		}
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report-file"); err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)

	if flags.Lookup("no-history") != nil {
		noHistory, err := flags.GetBool("no-history")
		if err != nil {
			return nil, err
		}
		cfg.SaveToDB = !noHistory
		if cfg.DBDir == "" {
			cfg.DBDir = config.XDGDataDir()
		}
	}

	return cfg, nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger creates the sanitizing logger on w.
func setupLogger(w io.Writer, verbose bool) *slog.Logger {
	return seclog.NewSecureLogger(w, verbose)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// runEnv holds the components shared by one scrape or crawl run.
type runEnv struct {
	logger       *slog.Logger
	metrics      *metrics.Metrics
	fetcher      *fetch.Fetcher
	scrapePool   *pool.Pool
	downloadPool *pool.Pool
	server       *http.Server
}

// newRunEnv builds client pools, the fetcher and, when configured, the
// metrics endpoint. Failures are setup errors.
func newRunEnv(cfg *config.Config, logger *slog.Logger) (*runEnv, error) {
	factory, err := pool.NewHTTPClientFactory(pool.ClientOptions{
		Timeout:  cfg.Timeout,
		ProxyURL: cfg.ProxyURL,
	})
	if err != nil {
		return nil, model.NewError(model.KindSetup, "client", "", err)
	}

	rt := &runEnv{logger: logger}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rt.metrics = metrics.New(reg)

		ln, err := net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			return nil, model.NewError(model.KindSetup, "metrics", "", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		rt.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := rt.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		logger.Info("serving metrics", "addr", ln.Addr().String())
	}

	rt.fetcher = fetch.NewFetcher(
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithHostLimiter(fetch.NewHostLimiter(cfg.RateLimit, cfg.RateBurst)),
		fetch.WithLogger(logger),
		fetch.WithMetrics(rt.metrics),
	)
	rt.scrapePool = pool.New(cfg.ScrapingConcurrency, pool.WithClientFactory(factory))
	rt.downloadPool = pool.New(cfg.DownloadingConcurrency, pool.WithClientFactory(factory))

	return rt, nil
}

// crawl runs discovery over cfg.Seeds.
func (rt *runEnv) crawl(ctx context.Context, seeds []string) (*crawler.Result, error) {
	spider := crawler.NewSpider(rt.scrapePool,
		crawler.WithFetcher(rt.fetcher),
		crawler.WithSpiderLogger(rt.logger),
		crawler.WithSpiderMetrics(rt.metrics),
	)
	return spider.Crawl(ctx, seeds)
}

// Close drops pooled connections and stops the metrics server.
func (rt *runEnv) Close() {
	rt.scrapePool.Close()
	rt.downloadPool.Close()
	if rt.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.server.Shutdown(ctx) //nolint:errcheck // best effort on exit
	}
}

// newReportWriter returns the writer for cfg's format.
func newReportWriter(cfg *config.Config, out io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(out)
	default:
		return report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
}

// openReportOutput returns the report destination: ReportFile, or stdout.
// Report files are created with owner-only permissions.
func openReportOutput(cfg *config.Config, stdout io.Writer) (io.Writer, func() error, error) {
	if cfg.ReportFile == "" {
		return stdout, func() error { return nil }, nil
	}

	if dir := filepath.Dir(cfg.ReportFile); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create report file: %w", err)
	}
	return f, f.Close, nil
}
