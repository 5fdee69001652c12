package config

import (
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "debscraper"

	// DefaultScrapingConcurrency is the number of listings fetched at once.
	DefaultScrapingConcurrency = 128

	// DefaultDownloadingConcurrency is the number of packages processed at once.
	// Each package holds extracted trees on disk, so this stays well below
	// the scraping concurrency.
	DefaultDownloadingConcurrency = 16

	// DefaultOutput is the sorter output directory.
	DefaultOutput = "./output"

	// DefaultTimeout bounds a single HTTP request including the body.
	// Large debug symbol packages take minutes on slow mirrors.
	DefaultTimeout = 5 * time.Minute

	// DefaultUserAgent identifies debscraper in HTTP requests.
	DefaultUserAgent = "debscraper/1.0 (+https://github.com/nao1215/debscraper)"

	// DefaultRateBurst is the per-host burst used when a rate limit is set.
	DefaultRateBurst = 8

	// BundleDateLayout formats the default bundle suffix.
	BundleDateLayout = "2006-01-02"
)

// Tools holds the external executables. Empty values mean PATH lookup of
// the default names.
type Tools struct {
	Ar        string `yaml:"ar,omitempty"`
	Tar       string `yaml:"tar,omitempty"`
	Symsorter string `yaml:"symsorter,omitempty"`
}

// Config holds all options of a run. It is built from defaults, then the
// configuration file, then CLI flags.
type Config struct {
	// Seeds are the pool directory URLs the crawl starts from.
	Seeds []string

	// ScrapingConcurrency bounds concurrent listing fetches.
	ScrapingConcurrency int

	// DownloadingConcurrency bounds concurrently processed packages.
	DownloadingConcurrency int

	// Output is the directory the sorter writes into. The cache lives
	// under <Output>/<Prefix>.
	Output string

	// Prefix is the sorter prefix. Required.
	Prefix string

	// BundleSuffix is appended to package names to form bundle identifiers.
	// Empty means today's UTC date.
	BundleSuffix string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	UserAgent string

	// ProxyURL routes all requests through an http, https, socks5 or
	// socks5h proxy.
	ProxyURL string

	// RateLimit is the per-host request rate in requests per second.
	// Zero disables limiting.
	RateLimit float64
	RateBurst int

	Tools Tools

	// StrictSorter fails a package when the sorter exits non-zero instead
	// of logging a warning.
	StrictSorter bool

	// DBDir is the directory of the run history database.
	DBDir string

	// SaveToDB records the run in the history database.
	SaveToDB bool

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9090".
	MetricsAddr string

	JSONReport     bool
	MarkdownReport bool

	// ReportFile receives the run report instead of stdout.
	ReportFile string

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the explicit configuration file path.
	// If empty, .debscraper is searched in the current and home directories.
	ConfigFilePath string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		ScrapingConcurrency:    DefaultScrapingConcurrency,
		DownloadingConcurrency: DefaultDownloadingConcurrency,
		Output:                 DefaultOutput,
		Timeout:                DefaultTimeout,
		UserAgent:              DefaultUserAgent,
		RateBurst:              DefaultRateBurst,
	}
}

// BundleSuffixOrToday returns BundleSuffix, or now's UTC date when unset.
func (c *Config) BundleSuffixOrToday(now time.Time) string {
	if c.BundleSuffix != "" {
		return c.BundleSuffix
	}
	return now.UTC().Format(BundleDateLayout)
}

// ApplyFile copies every value set in f into c.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}
	if len(f.Seeds) > 0 {
		c.Seeds = append([]string(nil), f.Seeds...)
	}
	if f.ScrapingConcurrency != 0 {
		c.ScrapingConcurrency = f.ScrapingConcurrency
	}
	if f.DownloadingConcurrency != 0 {
		c.DownloadingConcurrency = f.DownloadingConcurrency
	}
	if f.Output != "" {
		c.Output = f.Output
	}
	if f.Prefix != "" {
		c.Prefix = f.Prefix
	}
	if f.BundleSuffix != "" {
		c.BundleSuffix = f.BundleSuffix
	}
	if f.Timeout != 0 {
		c.Timeout = f.Timeout
	}
	if f.UserAgent != "" {
		c.UserAgent = f.UserAgent
	}
	if f.ProxyURL != "" {
		c.ProxyURL = f.ProxyURL
	}
	if f.RateLimit != 0 {
		c.RateLimit = f.RateLimit
	}
	if f.RateBurst != 0 {
		c.RateBurst = f.RateBurst
	}
	if f.Tools.Ar != "" {
		c.Tools.Ar = f.Tools.Ar
	}
	if f.Tools.Tar != "" {
		c.Tools.Tar = f.Tools.Tar
	}
	if f.Tools.Symsorter != "" {
		c.Tools.Symsorter = f.Tools.Symsorter
	}
	if f.StrictSorter {
		c.StrictSorter = true
	}
	if f.DBDir != "" {
		c.DBDir = f.DBDir
	}
	if f.MetricsAddr != "" {
		c.MetricsAddr = f.MetricsAddr
	}
}

// XDGDataDir returns the XDG data directory for debscraper.
// On Linux: ~/.local/share/debscraper
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for debscraper.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
// An empty seed list is valid; the caller decides what an empty run means.
func (c *Config) Validate() error {
	if c.Prefix == "" {
		return ErrNoPrefix
	}

	if c.ScrapingConcurrency <= 0 {
		return ErrInvalidScrapingConcurrency
	}

	if c.DownloadingConcurrency <= 0 {
		return ErrInvalidDownloadingConcurrency
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.RateLimit < 0 || (c.RateLimit > 0 && c.RateBurst <= 0) {
		return ErrInvalidRateLimit
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	for _, seed := range c.Seeds {
		if !validSeed(seed) {
			return &SeedError{URL: seed}
		}
	}

	return nil
}

func validSeed(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
