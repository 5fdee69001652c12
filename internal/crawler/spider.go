package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"

	"github.com/nao1215/debscraper/internal/fetch"
	"github.com/nao1215/debscraper/internal/metrics"
	"github.com/nao1215/debscraper/internal/model"
	"github.com/nao1215/debscraper/internal/pool"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidSeed is returned when a seed is not an absolute http(s) URL.
var ErrInvalidSeed = errors.New("seed must be an absolute http or https URL")

// Result is the outcome of a crawl.
type Result struct {
	// Packages maps package names to their download URLs.
	Packages map[string][]string

	// PagesCrawled is the number of listing pages fetched with a 2xx status.
	PagesCrawled int64

	// PagesFailed is the number of listing pages that could not be fetched
	// or answered with a non-2xx status.
	PagesFailed int64

	// Listings is the number of distinct listing URLs queued, seeds included.
	Listings int
}

// Spider walks pool directory listings breadth-first and collects the
// package archives they link to. Concurrency is bounded by the pool: one
// slot per in-flight page.
type Spider struct {
	pool    *pool.Pool
	fetcher *fetch.Fetcher
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithFetcher sets the fetcher used for listing pages.
func WithFetcher(f *fetch.Fetcher) SpiderOption {
	return func(s *Spider) {
		if f != nil {
			s.fetcher = f
		}
	}
}

// WithSpiderLogger sets the logger.
func WithSpiderLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSpiderMetrics sets the metrics sink.
func WithSpiderMetrics(m *metrics.Metrics) SpiderOption {
	return func(s *Spider) {
		s.metrics = m
	}
}

// NewSpider creates a Spider that draws clients from p.
func NewSpider(p *pool.Pool, opts ...SpiderOption) *Spider {
	s := &Spider{
		pool:   p,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.fetcher == nil {
		s.fetcher = fetch.NewFetcher(fetch.WithLogger(s.logger), fetch.WithMetrics(s.metrics))
	}

	return s
}

// Crawl runs until every reachable listing under the seeds has been
// visited. Page failures are logged and contribute no links. An invalid
// seed is a setup error returned before any request is made. When ctx is
// cancelled the partial result is returned together with ctx's error.
func (s *Spider) Crawl(ctx context.Context, seeds []string) (*Result, error) {
	parsed := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		u, err := url.Parse(seed)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, model.NewError(model.KindSetup, "seed", seed, ErrInvalidSeed)
		}
		parsed = append(parsed, u.String())
	}

	frontier := NewFrontier()
	for _, seed := range parsed {
		frontier.Push(seed)
	}

	var (
		packages = NewPackages()
		crawled  atomic.Int64
		failed   atomic.Int64
		g        errgroup.Group
	)

	for {
		pageURL, ok := frontier.Next(ctx)
		if !ok {
			break
		}

		slot, err := s.pool.Acquire(ctx)
		if err != nil {
			frontier.Done()
			break
		}

		g.Go(func() error {
			defer frontier.Done()
			defer s.pool.Release(slot)

			s.metrics.TaskStarted(metrics.StageCrawl)
			defer s.metrics.TaskFinished(metrics.StageCrawl)

			if s.visit(ctx, slot, pageURL, frontier, packages) {
				crawled.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // tasks never return errors

	result := &Result{
		Packages:     packages.Snapshot(),
		PagesCrawled: crawled.Load(),
		PagesFailed:  failed.Load(),
		Listings:     frontier.Seen(),
	}

	s.logger.Info("crawl finished",
		"pages", result.PagesCrawled,
		"failed", result.PagesFailed,
		"packages", len(result.Packages),
		"artifacts", packages.ArtifactCount(),
	)

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("crawl interrupted: %w", err)
	}
	return result, nil
}

// visit fetches one listing, queues its child listings and records its
// artifacts. It reports whether the page was fetched with a 2xx status.
func (s *Spider) visit(ctx context.Context, slot *pool.Slot, pageURL string, frontier *Frontier, packages *Packages) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		s.logger.Warn("skipping unparseable listing", "url", pageURL, "error", err)
		return false
	}

	resp, err := s.fetcher.Get(ctx, slot.Client(), pageURL)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("listing fetch failed", "url", pageURL, "error", err)
		}
		return false
	}
	if !resp.OK() {
		s.logger.Warn("listing returned non-success status", "url", pageURL, "status", resp.StatusCode)
		return false
	}

	links := Classify(u, resp.Body)

	queued := 0
	for _, l := range links {
		if l.IsListing() && frontier.Push(l.URL) {
			queued++
		}
	}
	artifacts := packages.Add(links)
	s.metrics.ObserveDiscovered(queued, artifacts)

	s.logger.Debug("listing crawled",
		"url", pageURL,
		"listings", queued,
		"artifacts", artifacts,
		"packages_total", packages.Len(),
		"artifacts_total", packages.ArtifactCount(),
	)
	return true
}
