package config

import (
	"errors"
	"fmt"
)

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoPrefix is returned when no sorter prefix is configured.
	ErrNoPrefix = errors.New("no prefix specified: use --prefix or set prefix in the config file")

	// ErrInvalidScrapingConcurrency is returned when the scraping concurrency is not positive.
	ErrInvalidScrapingConcurrency = errors.New("invalid scraping concurrency: must be positive")

	// ErrInvalidDownloadingConcurrency is returned when the downloading concurrency is not positive.
	ErrInvalidDownloadingConcurrency = errors.New("invalid downloading concurrency: must be positive")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRateLimit is returned for a negative rate or a rate without burst.
	ErrInvalidRateLimit = errors.New("invalid rate limit: rate must be non-negative and burst positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidSeedURL is returned when a seed is not an absolute http(s) URL.
	ErrInvalidSeedURL = errors.New("invalid seed url: must be an absolute http or https URL")
)

// SeedError reports the offending seed. It matches ErrInvalidSeedURL.
type SeedError struct {
	URL string
}

func (e *SeedError) Error() string {
	return fmt.Sprintf("%s: %q", ErrInvalidSeedURL, e.URL)
}

func (e *SeedError) Unwrap() error {
	return ErrInvalidSeedURL
}
