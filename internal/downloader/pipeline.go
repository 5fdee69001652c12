package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/nao1215/debscraper/internal/fetch"
	"github.com/nao1215/debscraper/internal/metrics"
	"github.com/nao1215/debscraper/internal/model"
	"github.com/nao1215/debscraper/internal/pool"
	"golang.org/x/sync/errgroup"
)

// Default tool names, resolved through PATH.
const (
	DefaultArPath        = "ar"
	DefaultTarPath       = "tar"
	DefaultSymsorterPath = "symsorter"
)

// archiveName is the scratch file name of a downloaded package.
const archiveName = "package.deb"

// dataTarballs are the data members recognized inside a .deb, in lookup order.
var dataTarballs = []string{
	"data.tar.xz",
	"data.tar.gz",
	"data.tar.bz2",
	"data.tar.zst",
	"data.tar.lzma",
	"data.tar",
}

// Tools holds the executables the pipeline shells out to.
type Tools struct {
	Ar        string
	Tar       string
	Symsorter string
}

// DefaultTools returns the PATH-resolved tool names.
func DefaultTools() Tools {
	return Tools{Ar: DefaultArPath, Tar: DefaultTarPath, Symsorter: DefaultSymsorterPath}
}

// Pipeline downloads, unpacks and sorts every package of a crawl result.
// Each package runs in its own task holding one download pool slot.
type Pipeline struct {
	pool         *pool.Pool
	fetcher      *fetch.Fetcher
	runner       Runner
	tools        Tools
	output       string
	prefix       string
	bundleSuffix string
	strictSorter bool
	scratchDir   string
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRunner sets the subprocess runner.
func WithRunner(r Runner) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.runner = r
		}
	}
}

// WithTools overrides tool paths. Empty fields keep their defaults.
func WithTools(t Tools) Option {
	return func(p *Pipeline) {
		if t.Ar != "" {
			p.tools.Ar = t.Ar
		}
		if t.Tar != "" {
			p.tools.Tar = t.Tar
		}
		if t.Symsorter != "" {
			p.tools.Symsorter = t.Symsorter
		}
	}
}

// WithFetcher sets the fetcher used for archives.
func WithFetcher(f *fetch.Fetcher) Option {
	return func(p *Pipeline) {
		if f != nil {
			p.fetcher = f
		}
	}
}

// WithStrictSorter makes a non-zero sorter exit fail the package.
func WithStrictSorter(strict bool) Option {
	return func(p *Pipeline) {
		p.strictSorter = strict
	}
}

// WithScratchDir sets the parent of per-run scratch directories.
// The default is the output directory.
func WithScratchDir(dir string) Option {
	return func(p *Pipeline) {
		p.scratchDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// NewPipeline creates a pipeline writing bundles named <package>-<bundleSuffix>
// under output with the given sorter prefix.
func NewPipeline(p *pool.Pool, output, prefix, bundleSuffix string, opts ...Option) *Pipeline {
	pl := &Pipeline{
		pool:         p,
		tools:        DefaultTools(),
		output:       output,
		prefix:       prefix,
		bundleSuffix: bundleSuffix,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(pl)
	}

	if pl.runner == nil {
		pl.runner = NewExecRunner(pl.logger)
	}
	if pl.fetcher == nil {
		pl.fetcher = fetch.NewFetcher(fetch.WithLogger(pl.logger), fetch.WithMetrics(pl.metrics))
	}

	return pl
}

// Cache returns the marker cache the pipeline uses.
func (pl *Pipeline) Cache() *Cache {
	return NewCache(pl.output, pl.prefix)
}

// BundleID returns the sorter bundle identifier for pkg.
func (pl *Pipeline) BundleID(pkg string) string {
	return pkg + "-" + pl.bundleSuffix
}

// Run processes every package and returns one result per package, sorted
// by name. Package failures are logged and recorded in the results; the
// returned error is a setup failure or the context's error.
func (pl *Pipeline) Run(ctx context.Context, packages map[string][]string) ([]model.PackageResult, error) {
	if err := pl.resolveTools(); err != nil {
		return nil, err
	}

	cache := pl.Cache()
	if err := cache.Ensure(); err != nil {
		return nil, model.NewError(model.KindSetup, "cache", "", err)
	}

	scratchParent := pl.scratchDir
	if scratchParent == "" {
		scratchParent = pl.output
	}
	scratchParent, err := filepath.Abs(scratchParent)
	if err != nil {
		return nil, model.NewError(model.KindSetup, "scratch", "", err)
	}
	scratch, err := os.MkdirTemp(scratchParent, ".debscraper-")
	if err != nil {
		return nil, model.NewError(model.KindSetup, "scratch", "",
			fmt.Errorf("failed to create scratch directory: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			pl.logger.Warn("failed to remove scratch directory", "dir", scratch, "error", err)
		}
	}()

	names := make([]string, 0, len(packages))
	for name := range packages {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		mu      sync.Mutex
		results = make([]model.PackageResult, 0, len(names))
		g       errgroup.Group
	)

	for _, name := range names {
		slot, err := pl.pool.Acquire(ctx)
		if err != nil {
			break
		}

		g.Go(func() error {
			defer pl.pool.Release(slot)

			pl.metrics.TaskStarted(metrics.StageDownload)
			defer pl.metrics.TaskFinished(metrics.StageDownload)

			res := pl.processPackage(ctx, slot, cache, scratch, name, packages[name])
			pl.metrics.ObservePackage(string(res.Status))

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // tasks record failures in their results

	sort.Slice(results, func(i, j int) bool {
		return results[i].Package < results[j].Package
	})

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// processPackage handles one package end to end. Cache markers are
// written only after the sorter returns.
func (pl *Pipeline) processPackage(ctx context.Context, slot *pool.Slot, cache *Cache, scratch, pkg string, urls []string) model.PackageResult {
	start := time.Now()
	res := model.PackageResult{
		Package:  pkg,
		BundleID: pl.BundleID(pkg),
		URLs:     len(urls),
	}

	fail := func(err error) model.PackageResult {
		res.Status = model.PackageFailed
		res.Error = err.Error()
		res.ErrorKind = model.KindOf(err).String()
		res.Duration = time.Since(start)
		if ctx.Err() == nil {
			pl.logger.Warn("package failed", "package", pkg, "kind", res.ErrorKind, "error", err)
		}
		return res
	}

	workDir, err := os.MkdirTemp(scratch, "pkg-")
	if err != nil {
		return fail(model.NewError(model.KindTask, "scratch", "", err))
	}
	defer os.RemoveAll(workDir) //nolint:errcheck // the run's scratch root is removed as well

	var (
		trees   []string
		pending []string
	)

	for i, u := range urls {
		if cache.Has(u) {
			res.Cached++
			pl.metrics.ObserveCacheHit()
			pl.logger.Debug("artifact cached", "package", pkg, "url", u)
			continue
		}

		tree, err := pl.fetchAndExtract(ctx, slot, u, filepath.Join(workDir, strconv.Itoa(i)))
		if err != nil {
			return fail(err)
		}
		trees = append(trees, tree)
		pending = append(pending, u)
		res.Fetched++
	}

	if len(trees) == 0 {
		res.Status = model.PackageCached
		res.Duration = time.Since(start)
		return res
	}

	if err := pl.runSorter(ctx, pkg, trees); err != nil {
		return fail(err)
	}
	res.Sorted = true

	for _, u := range pending {
		if err := cache.Mark(u); err != nil {
			return fail(model.NewError(model.KindTask, "cache", u, err))
		}
	}

	res.Status = model.PackageCompleted
	res.Duration = time.Since(start)
	pl.logger.Info("package bundled",
		"package", pkg,
		"bundle", res.BundleID,
		"fetched", res.Fetched,
		"cached", res.Cached,
	)
	return res
}

// fetchAndExtract downloads rawURL into dir, unpacks the .deb with ar and
// its data tarball with tar, and returns the extracted tree.
func (pl *Pipeline) fetchAndExtract(ctx context.Context, slot *pool.Slot, rawURL, dir string) (string, error) {
	arDir := filepath.Join(dir, "ar")
	tree := filepath.Join(dir, "tree")
	for _, d := range []string{arDir, tree} {
		if err := os.MkdirAll(d, 0750); err != nil {
			return "", model.NewError(model.KindTask, "scratch", rawURL, err)
		}
	}

	archive := filepath.Join(dir, archiveName)
	if _, err := pl.fetcher.Download(ctx, slot.Client(), rawURL, archive); err != nil {
		return "", err
	}

	err := pl.runner.Run(ctx, arDir, pl.tools.Ar, "x", archive)
	pl.metrics.ObserveSubprocess("ar", err)
	if err != nil {
		return "", wrapSubprocess("ar", rawURL, err)
	}

	data, err := findDataTarball(arDir)
	if err != nil {
		return "", model.NewError(model.KindTask, "unpack", rawURL, err)
	}

	err = pl.runner.Run(ctx, tree, pl.tools.Tar, "xf", data)
	pl.metrics.ObserveSubprocess("tar", err)
	if err != nil {
		return "", wrapSubprocess("tar", rawURL, err)
	}

	return tree, nil
}

// runSorter runs the sorter once over every extracted tree of pkg.
func (pl *Pipeline) runSorter(ctx context.Context, pkg string, trees []string) error {
	args := []string{
		"--bundle-id", pl.BundleID(pkg),
		"--prefix", pl.prefix,
		"--output", pl.output,
		"--ignore-errors",
		"-zz",
		"-q",
	}
	args = append(args, trees...)

	err := pl.runner.Run(ctx, "", pl.tools.Symsorter, args...)
	pl.metrics.ObserveSubprocess("symsorter", err)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, ErrToolNotStarted) {
		return wrapSubprocess("symsorter", "", err)
	}
	if pl.strictSorter {
		return model.NewError(model.KindSubprocess, "symsorter", "", fmt.Errorf("%w: %w", ErrSorterFailed, err))
	}

	pl.logger.Warn("symbol sorter reported errors", "package", pkg, "error", err)
	return nil
}

// toolResolver is implemented by runners that can check a tool before use.
type toolResolver interface {
	Resolve(name string) (string, error)
}

// resolveTools fails the run before any task starts when a tool cannot be
// executed. Runners without a resolver are trusted as is.
func (pl *Pipeline) resolveTools() error {
	resolver, ok := pl.runner.(toolResolver)
	if !ok {
		return nil
	}
	for _, tool := range []string{pl.tools.Ar, pl.tools.Tar, pl.tools.Symsorter} {
		if _, err := resolver.Resolve(tool); err != nil {
			return model.NewError(model.KindSetup, "tool", "", err)
		}
	}
	return nil
}

// findDataTarball returns the data.tar member unpacked into dir.
func findDataTarball(dir string) (string, error) {
	for _, name := range dataTarballs {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", ErrNoDataTarball
}

// wrapSubprocess classifies a runner error unless it already is.
func wrapSubprocess(op, rawURL string, err error) error {
	var classified *model.Error
	if errors.As(err, &classified) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return model.NewError(model.KindSubprocess, op, rawURL, err)
}
