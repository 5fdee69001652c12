package model

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// TestRunReportCounts tests the aggregate helpers of RunReport.
func TestRunReportCounts(t *testing.T) {
	t.Parallel()

	r := NewRunReport("ubuntu", []string{"http://archive.example/ubuntu/pool/"})
	r.SetDiscovered(map[string][]string{
		"libc6": {"http://a/1.deb", "http://a/2.deb"},
		"zlib":  {"http://a/3.deb"},
	})
	r.AddResult(PackageResult{Package: "zlib", Fetched: 1, Status: PackageCompleted, Sorted: true})
	r.AddResult(PackageResult{Package: "libc6", Fetched: 1, Cached: 1, Status: PackageFailed, Error: "exit status 2"})
	r.AddResult(PackageResult{Package: "bash", Cached: 3, Status: PackageCached})
	r.Finish()

	if r.PackagesDiscovered != 2 {
		t.Errorf("expected 2 packages discovered, got %d", r.PackagesDiscovered)
	}
	if r.ArtifactsDiscovered != 3 {
		t.Errorf("expected 3 artifacts discovered, got %d", r.ArtifactsDiscovered)
	}
	if got := r.CountStatus(PackageCompleted); got != 1 {
		t.Errorf("expected 1 completed, got %d", got)
	}
	if got := r.TotalFetched(); got != 2 {
		t.Errorf("expected 2 fetched, got %d", got)
	}
	if got := r.TotalCached(); got != 4 {
		t.Errorf("expected 4 cached, got %d", got)
	}
	if failed := r.Failures(); len(failed) != 1 || failed[0].Package != "libc6" {
		t.Errorf("unexpected failures: %+v", failed)
	}
	if r.Packages[0].Package != "bash" {
		t.Errorf("expected results sorted by package, got %q first", r.Packages[0].Package)
	}
	if r.FinishedAt.IsZero() {
		t.Error("expected FinishedAt to be set")
	}
	if r.Duration() < 0 {
		t.Error("expected non-negative duration")
	}
}

// TestRunReportConcurrentAdd tests that AddResult is safe for concurrent use.
func TestRunReportConcurrentAdd(t *testing.T) {
	t.Parallel()

	r := NewRunReport("p", nil)
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.AddResult(PackageResult{Package: "x", Status: PackageCompleted, Duration: time.Millisecond})
		}()
	}
	wg.Wait()

	if len(r.Packages) != 50 {
		t.Errorf("expected 50 results, got %d", len(r.Packages))
	}
}

// TestRunReportJSON tests that the report serializes with stable field names.
func TestRunReportJSON(t *testing.T) {
	t.Parallel()

	r := NewRunReport("ubuntu", []string{"http://a/pool/"})
	r.AddResult(PackageResult{Package: "zlib", BundleID: "zlib-2024-01-01", Status: PackageCompleted})

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, key := range []string{"prefix", "seeds", "packages", "started_at"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("expected key %q in JSON output", key)
		}
	}
}
