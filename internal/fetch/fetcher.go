// Package fetch performs HTTP GETs with a fixed retry policy.
//
// Transport failures (dial errors, timeouts, broken bodies) are retried up to
// DefaultMaxRetries times with a fixed DefaultBackoff between attempts. A
// response with a non-2xx status is not a transport failure: Get returns it
// unchanged and lets the caller decide.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nao1215/debscraper/internal/metrics"
	"github.com/nao1215/debscraper/internal/model"
)

const (
	// DefaultMaxRetries is the number of repeated attempts after the first.
	DefaultMaxRetries = 5

	// DefaultBackoff is the fixed wait between attempts.
	DefaultBackoff = 500 * time.Millisecond

	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "debscraper/1.0 (+https://github.com/nao1215/debscraper)"

	// DefaultMaxBodySize caps listing pages read into memory.
	DefaultMaxBodySize = 32 * 1024 * 1024
)

// Response is a fully read HTTP response.
type Response struct {
	// URL is the requested URL.
	URL string

	// StatusCode is the HTTP status of the final response.
	StatusCode int

	// Body is the complete response body.
	Body []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Fetcher issues GET requests on caller-provided clients.
// It is safe for concurrent use.
type Fetcher struct {
	maxRetries  int
	backoff     time.Duration
	userAgent   string
	maxBodySize int64
	limiter     *HostLimiter
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(f *Fetcher) {
		if n >= 0 {
			f.maxRetries = n
		}
	}
}

// WithBackoff sets the wait between attempts.
func WithBackoff(d time.Duration) Option {
	return func(f *Fetcher) {
		if d >= 0 {
			f.backoff = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBodySize sets the largest page body Get will read.
func WithMaxBodySize(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithHostLimiter enables per-host rate limiting.
func WithHostLimiter(l *HostLimiter) Option {
	return func(f *Fetcher) {
		f.limiter = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// NewFetcher creates a Fetcher with the default retry policy.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		maxRetries:  DefaultMaxRetries,
		backoff:     DefaultBackoff,
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Get fetches rawURL and reads the whole body.
// A non-2xx response is returned with a nil error.
func (f *Fetcher) Get(ctx context.Context, client *http.Client, rawURL string) (*Response, error) {
	var result *Response

	err := f.retry(ctx, "fetch", rawURL, func() error {
		resp, err := f.do(ctx, client, rawURL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
		if err != nil {
			return fmt.Errorf("failed to read body: %w", err)
		}
		if int64(len(body)) > f.maxBodySize {
			return permanent(model.NewError(model.KindTask, "fetch", rawURL, ErrBodyTooLarge))
		}

		result = &Response{URL: rawURL, StatusCode: resp.StatusCode, Body: body}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Download streams rawURL into path and returns the number of bytes written.
// The file is truncated on every attempt. A non-2xx response is a task failure.
func (f *Fetcher) Download(ctx context.Context, client *http.Client, rawURL, path string) (int64, error) {
	var written int64

	err := f.retry(ctx, "download", rawURL, func() error {
		resp, err := f.do(ctx, client, rawURL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return permanent(model.NewError(model.KindTask, "download", rawURL,
				fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)))
		}

		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // scratch path built by the pipeline
		if err != nil {
			return permanent(model.NewError(model.KindTask, "download", rawURL, err))
		}

		n, copyErr := io.Copy(file, resp.Body)
		closeErr := file.Close()
		if copyErr != nil {
			return fmt.Errorf("failed to read body: %w", copyErr)
		}
		if closeErr != nil {
			return permanent(model.NewError(model.KindTask, "download", rawURL, closeErr))
		}

		written = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	f.metrics.ObserveBytes(written)
	return written, nil
}

// do sends one GET request. Request construction errors are permanent.
func (f *Fetcher) do(ctx context.Context, client *http.Client, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, permanent(model.NewError(model.KindParse, "fetch", rawURL, err))
	}
	req.Header.Set("User-Agent", f.userAgent)

	if f.limiter != nil {
		start := time.Now()
		if err := f.limiter.Wait(ctx, req.URL.Host); err != nil {
			return nil, permanent(err)
		}
		f.metrics.ObserveRateLimitWait(time.Since(start).Seconds())
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	f.metrics.ObserveResponse(resp.StatusCode)
	return resp, nil
}

// retry runs attempt until it succeeds, fails permanently, or the retry
// ceiling is reached. Exhaustion returns the last error as a transient failure.
func (f *Fetcher) retry(ctx context.Context, op, rawURL string, attempt func() error) error {
	var lastErr error

	for i := 0; i <= f.maxRetries; i++ {
		if i > 0 {
			f.metrics.ObserveRetry()
			f.logger.Debug("retrying request",
				"op", op,
				"url", rawURL,
				"attempt", i+1,
				"error", lastErr,
			)
			if err := sleep(ctx, f.backoff); err != nil {
				return err
			}
		}

		err := attempt()
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err
	}

	f.metrics.ObserveFetchFailure()
	return model.NewError(model.KindTransient, op, rawURL,
		fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, f.maxRetries+1, lastErr))
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

