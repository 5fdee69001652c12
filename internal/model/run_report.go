package model

import (
	"sort"
	"sync"
	"time"
)

// PackageStatus is the outcome of assembling one package bundle.
type PackageStatus string

const (
	// PackageCompleted means the sorter ran and cache markers were written.
	PackageCompleted PackageStatus = "completed"

	// PackageCached means every URL of the package was already cached,
	// so nothing was fetched and the sorter was not invoked.
	PackageCached PackageStatus = "cached"

	// PackageFailed means a fetch, extraction or sorter step failed.
	// No cache marker was written for this package.
	PackageFailed PackageStatus = "failed"
)

// PackageResult records what the download pipeline did for one package.
type PackageResult struct {
	// Package is the package name (second-to-last path segment of its URLs).
	Package string `json:"package"`

	// BundleID is the identifier handed to the sorter: <package>-<suffix>.
	BundleID string `json:"bundle_id"`

	// URLs is the number of download URLs known for the package.
	URLs int `json:"urls"`

	// Fetched is the number of URLs downloaded and extracted in this run.
	Fetched int `json:"fetched"`

	// Cached is the number of URLs skipped because a marker already existed.
	Cached int `json:"cached"`

	// Sorted reports whether the sorter was invoked.
	Sorted bool `json:"sorted"`

	// Status is the final outcome.
	Status PackageStatus `json:"status"`

	// Error holds the failure message when Status is PackageFailed.
	Error string `json:"error,omitempty"`

	// ErrorKind is the taxonomy kind of Error.
	ErrorKind string `json:"error_kind,omitempty"`

	// Duration is the wall time spent on the package.
	Duration time.Duration `json:"duration"`
}

// RunReport summarizes one crawl and download run.
// AddResult may be called from concurrent download tasks.
type RunReport struct {
	// Prefix is the sorter path prefix the run wrote under.
	Prefix string `json:"prefix"`

	// Seeds are the pool listing URLs the crawl started from.
	Seeds []string `json:"seeds"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run ended. Zero while running.
	FinishedAt time.Time `json:"finished_at"`

	// PackagesDiscovered is the number of distinct packages found by the crawl.
	PackagesDiscovered int `json:"packages_discovered"`

	// ArtifactsDiscovered is the number of download URLs found by the crawl.
	ArtifactsDiscovered int `json:"artifacts_discovered"`

	// Packages holds one result per package the pipeline processed.
	Packages []PackageResult `json:"packages"`

	mu sync.Mutex
}

// NewRunReport creates a report for a run starting now.
func NewRunReport(prefix string, seeds []string) *RunReport {
	return &RunReport{
		Prefix:    prefix,
		Seeds:     append([]string(nil), seeds...),
		StartedAt: time.Now(),
		Packages:  make([]PackageResult, 0),
	}
}

// SetDiscovered records crawl totals from a finalized package map.
func (r *RunReport) SetDiscovered(packages map[string][]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.PackagesDiscovered = len(packages)
	r.ArtifactsDiscovered = 0
	for _, urls := range packages {
		r.ArtifactsDiscovered += len(urls)
	}
}

// AddResult appends a package result.
func (r *RunReport) AddResult(result PackageResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Packages = append(r.Packages, result)
}

// Finish stamps the end time and sorts results by package name.
func (r *RunReport) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.FinishedAt = time.Now()
	sort.Slice(r.Packages, func(i, j int) bool {
		return r.Packages[i].Package < r.Packages[j].Package
	})
}

// Duration returns the elapsed run time. A running report measures up to now.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// CountStatus returns the number of packages with the given status.
func (r *RunReport) CountStatus(status PackageStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, p := range r.Packages {
		if p.Status == status {
			n++
		}
	}
	return n
}

// TotalFetched returns the number of URLs downloaded across all packages.
func (r *RunReport) TotalFetched() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, p := range r.Packages {
		n += p.Fetched
	}
	return n
}

// TotalCached returns the number of URLs skipped because of the cache.
func (r *RunReport) TotalCached() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, p := range r.Packages {
		n += p.Cached
	}
	return n
}

// Failures returns the failed package results.
func (r *RunReport) Failures() []PackageResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var failed []PackageResult
	for _, p := range r.Packages {
		if p.Status == PackageFailed {
			failed = append(failed, p)
		}
	}
	return failed
}
