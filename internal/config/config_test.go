package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewConfig documents the defaults.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default scraping concurrency is 128", func(t *testing.T) {
		t.Parallel()
		if cfg.ScrapingConcurrency != 128 {
			t.Errorf("expected 128, got %d", cfg.ScrapingConcurrency)
		}
	})

	t.Run("default downloading concurrency is 16", func(t *testing.T) {
		t.Parallel()
		if cfg.DownloadingConcurrency != 16 {
			t.Errorf("expected 16, got %d", cfg.DownloadingConcurrency)
		}
	})

	t.Run("default output is ./output", func(t *testing.T) {
		t.Parallel()
		if cfg.Output != "./output" {
			t.Errorf("expected ./output, got %q", cfg.Output)
		}
	})

	t.Run("no prefix and no seeds by default", func(t *testing.T) {
		t.Parallel()
		if cfg.Prefix != "" || len(cfg.Seeds) != 0 {
			t.Errorf("unexpected prefix %q or seeds %v", cfg.Prefix, cfg.Seeds)
		}
	})

	t.Run("rate limiting is off", func(t *testing.T) {
		t.Parallel()
		if cfg.RateLimit != 0 {
			t.Errorf("expected no rate limit, got %v", cfg.RateLimit)
		}
	})
}

func TestBundleSuffixOrToday(t *testing.T) {
	t.Parallel()

	// 23:30 in UTC-5 is already the next day in UTC.
	now := time.Date(2024, 3, 9, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))

	t.Run("defaults to the UTC date", func(t *testing.T) {
		t.Parallel()
		cfg := NewConfig()
		if got := cfg.BundleSuffixOrToday(now); got != "2024-03-10" {
			t.Errorf("expected 2024-03-10, got %q", got)
		}
	})

	t.Run("explicit suffix wins", func(t *testing.T) {
		t.Parallel()
		cfg := NewConfig()
		cfg.BundleSuffix = "noble"
		if got := cfg.BundleSuffixOrToday(now); got != "noble" {
			t.Errorf("expected noble, got %q", got)
		}
	})
}

// TestConfigValidate tests one validation rule per case.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.Prefix = "ubuntu"
		cfg.Seeds = []string{"http://archive.ubuntu.com/ubuntu/pool/"}
		return cfg
	}

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{name: "valid config", modify: func(*Config) {}},
		{name: "no seeds is valid", modify: func(c *Config) { c.Seeds = nil }},
		{name: "https seed", modify: func(c *Config) { c.Seeds = []string{"https://ddebs.ubuntu.com/pool/"} }},
		{name: "missing prefix", modify: func(c *Config) { c.Prefix = "" }, want: ErrNoPrefix},
		{name: "zero scraping concurrency", modify: func(c *Config) { c.ScrapingConcurrency = 0 }, want: ErrInvalidScrapingConcurrency},
		{name: "negative downloading concurrency", modify: func(c *Config) { c.DownloadingConcurrency = -1 }, want: ErrInvalidDownloadingConcurrency},
		{name: "zero timeout", modify: func(c *Config) { c.Timeout = 0 }, want: ErrInvalidTimeout},
		{name: "negative rate", modify: func(c *Config) { c.RateLimit = -1 }, want: ErrInvalidRateLimit},
		{name: "rate without burst", modify: func(c *Config) { c.RateLimit = 5; c.RateBurst = 0 }, want: ErrInvalidRateLimit},
		{name: "json and markdown", modify: func(c *Config) { c.JSONReport = true; c.MarkdownReport = true }, want: ErrConflictingReportFormats},
		{name: "ftp seed", modify: func(c *Config) { c.Seeds = []string{"ftp://archive.ubuntu.com/pool/"} }, want: ErrInvalidSeedURL},
		{name: "relative seed", modify: func(c *Config) { c.Seeds = []string{"ubuntu/pool/"} }, want: ErrInvalidSeedURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("seed error names the seed", func(t *testing.T) {
		t.Parallel()

		cfg := validConfig()
		cfg.Seeds = []string{"gopher://example/"}

		var seedErr *SeedError
		if err := cfg.Validate(); !errors.As(err, &seedErr) || seedErr.URL != "gopher://example/" {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestApplyFile(t *testing.T) {
	t.Parallel()

	t.Run("nil file changes nothing", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		cfg.ApplyFile(nil)
		if cfg.ScrapingConcurrency != DefaultScrapingConcurrency {
			t.Error("defaults were modified")
		}
	})

	t.Run("set values override defaults", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		cfg.ApplyFile(&File{
			Seeds:                  []string{"http://archive.ubuntu.com/ubuntu/pool/"},
			DownloadingConcurrency: 4,
			Prefix:                 "ubuntu",
			Timeout:                time.Minute,
			Tools:                  Tools{Symsorter: "/opt/symsorter"},
			StrictSorter:           true,
		})

		if len(cfg.Seeds) != 1 || cfg.Prefix != "ubuntu" {
			t.Errorf("unexpected seeds or prefix: %v %q", cfg.Seeds, cfg.Prefix)
		}
		if cfg.DownloadingConcurrency != 4 || cfg.Timeout != time.Minute {
			t.Errorf("unexpected values: %+v", cfg)
		}
		if cfg.Tools.Symsorter != "/opt/symsorter" || cfg.Tools.Ar != "" {
			t.Errorf("unexpected tools: %+v", cfg.Tools)
		}
		if !cfg.StrictSorter {
			t.Error("expected strict sorter")
		}
		if cfg.ScrapingConcurrency != DefaultScrapingConcurrency || cfg.Output != DefaultOutput {
			t.Error("unset values overwrote defaults")
		}
	})
}

// TestLoadConfigFile tests the LoadConfigFile function.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.debscraper")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".debscraper")
		content := `seeds:
  - http://archive.ubuntu.com/ubuntu/pool/
  - http://ddebs.ubuntu.com/pool/
prefix: ubuntu
downloadingConcurrency: 8
timeout: 90s
rateLimit: 2.5
tools:
  symsorter: /usr/local/bin/symsorter
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Seeds) != 2 || cfg.Prefix != "ubuntu" {
			t.Errorf("unexpected seeds or prefix: %+v", cfg)
		}
		if cfg.DownloadingConcurrency != 8 {
			t.Errorf("expected 8, got %d", cfg.DownloadingConcurrency)
		}
		if cfg.Timeout != 90*time.Second {
			t.Errorf("expected 90s, got %v", cfg.Timeout)
		}
		if cfg.RateLimit != 2.5 {
			t.Errorf("expected 2.5, got %v", cfg.RateLimit)
		}
		if cfg.Tools.Symsorter != "/usr/local/bin/symsorter" {
			t.Errorf("unexpected tools: %+v", cfg.Tools)
		}
	})

	t.Run("empty file is valid", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".debscraper")
		if err := os.WriteFile(configPath, nil, 0600); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil || cfg == nil {
			t.Fatalf("expected empty config, got %v, %v", cfg, err)
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".debscraper")
		if err := os.WriteFile(configPath, []byte(`invalid: yaml: content: [}`), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("rejects unknown keys", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".debscraper")
		if err := os.WriteFile(configPath, []byte("prefx: ubuntu\n"), 0600); err != nil {
			t.Fatal(err)
		}

		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for unknown key")
		}
	})
}

// TestFindConfigFile tests the FindConfigFile function.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("prefix: ubuntu\n"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if result := FindConfigFile(configPath); result != configPath {
			t.Errorf("expected %q, got %q", configPath, result)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()

		if result := FindConfigFile("/nonexistent/path/config.yaml"); result != "" {
			t.Errorf("expected empty string, got %q", result)
		}
	})
}

func TestXDGDirs(t *testing.T) {
	t.Parallel()

	for name, dir := range map[string]string{"data": XDGDataDir(), "config": XDGConfigDir()} {
		if filepath.Base(dir) != AppName {
			t.Errorf("%s dir %q does not end in %s", name, dir, AppName)
		}
	}
}
