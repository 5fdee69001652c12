package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/debscraper/internal/model"
)

// dropConnection closes the connection without writing a response,
// which the client sees as a transport failure.
func dropConnection(t *testing.T, w http.ResponseWriter) {
	t.Helper()

	hj, ok := w.(http.Hijacker)
	if !ok {
		t.Fatal("response writer does not support hijacking")
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		t.Fatalf("hijack failed: %v", err)
	}
	_ = conn.Close()
}

// flakyServer drops the first failures connections, then serves body.
func flakyServer(t *testing.T, failures int32, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := hits.Add(1)
		if n <= failures {
			dropConnection(t, w)
			return
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)

	return server, &hits
}

func newTestClient() *http.Client {
	return &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
}

// TestNewFetcherDefaults tests the default retry policy.
func TestNewFetcherDefaults(t *testing.T) {
	t.Parallel()

	f := NewFetcher()
	if f.maxRetries != 5 {
		t.Errorf("expected 5 retries, got %d", f.maxRetries)
	}
	if f.backoff != 500*time.Millisecond {
		t.Errorf("expected 500ms backoff, got %v", f.backoff)
	}
	if f.userAgent != DefaultUserAgent {
		t.Errorf("expected default user agent, got %q", f.userAgent)
	}
}

// TestGet tests the retry behavior of Get.
func TestGet(t *testing.T) {
	t.Parallel()

	t.Run("succeeds on first attempt", func(t *testing.T) {
		t.Parallel()

		server, hits := flakyServer(t, 0, http.StatusOK, "<html></html>")
		f := NewFetcher(WithBackoff(time.Millisecond))

		resp, err := f.Get(context.Background(), newTestClient(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !resp.OK() || string(resp.Body) != "<html></html>" {
			t.Errorf("unexpected response: %d %q", resp.StatusCode, resp.Body)
		}
		if hits.Load() != 1 {
			t.Errorf("expected 1 request, got %d", hits.Load())
		}
	})

	t.Run("retries transport failures", func(t *testing.T) {
		t.Parallel()

		server, hits := flakyServer(t, 2, http.StatusOK, "ok")
		f := NewFetcher(WithBackoff(time.Millisecond))

		resp, err := f.Get(context.Background(), newTestClient(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(resp.Body) != "ok" {
			t.Errorf("expected body 'ok', got %q", resp.Body)
		}
		if hits.Load() != 3 {
			t.Errorf("expected 3 requests, got %d", hits.Load())
		}
	})

	t.Run("gives up after six attempts", func(t *testing.T) {
		t.Parallel()

		server, hits := flakyServer(t, 100, http.StatusOK, "")
		f := NewFetcher(WithBackoff(time.Millisecond))

		_, err := f.Get(context.Background(), newTestClient(), server.URL)
		if !errors.Is(err, ErrRetriesExhausted) {
			t.Fatalf("expected ErrRetriesExhausted, got %v", err)
		}
		if model.KindOf(err) != model.KindTransient {
			t.Errorf("expected transient kind, got %v", model.KindOf(err))
		}
		if hits.Load() != 6 {
			t.Errorf("expected 6 attempts, got %d", hits.Load())
		}
	})

	t.Run("does not retry non-2xx status", func(t *testing.T) {
		t.Parallel()

		server, hits := flakyServer(t, 0, http.StatusNotFound, "missing")
		f := NewFetcher(WithBackoff(time.Millisecond))

		resp, err := f.Get(context.Background(), newTestClient(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != http.StatusNotFound || resp.OK() {
			t.Errorf("expected 404 response, got %d", resp.StatusCode)
		}
		if hits.Load() != 1 {
			t.Errorf("expected 1 request, got %d", hits.Load())
		}
	})

	t.Run("rejects oversized body without retry", func(t *testing.T) {
		t.Parallel()

		server, hits := flakyServer(t, 0, http.StatusOK, "0123456789")
		f := NewFetcher(WithBackoff(time.Millisecond), WithMaxBodySize(4))

		_, err := f.Get(context.Background(), newTestClient(), server.URL)
		if !errors.Is(err, ErrBodyTooLarge) {
			t.Fatalf("expected ErrBodyTooLarge, got %v", err)
		}
		if hits.Load() != 1 {
			t.Errorf("expected 1 request, got %d", hits.Load())
		}
	})

	t.Run("invalid URL is a parse failure", func(t *testing.T) {
		t.Parallel()

		f := NewFetcher(WithBackoff(time.Millisecond))
		_, err := f.Get(context.Background(), newTestClient(), "http://[::1")
		if err == nil {
			t.Fatal("expected error")
		}
		if model.KindOf(err) != model.KindParse {
			t.Errorf("expected parse kind, got %v", model.KindOf(err))
		}
	})

	t.Run("stops waiting when context is cancelled", func(t *testing.T) {
		t.Parallel()

		server, _ := flakyServer(t, 100, http.StatusOK, "")
		f := NewFetcher(WithBackoff(time.Hour))

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := f.Get(ctx, newTestClient(), server.URL)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
		if time.Since(start) > 5*time.Second {
			t.Error("backoff did not observe cancellation")
		}
	})

	t.Run("sends user agent", func(t *testing.T) {
		t.Parallel()

		var got atomic.Value
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			got.Store(r.UserAgent())
		}))
		defer server.Close()

		f := NewFetcher(WithUserAgent("test-agent/1"))
		if _, err := f.Get(context.Background(), newTestClient(), server.URL); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Load() != "test-agent/1" {
			t.Errorf("expected user agent 'test-agent/1', got %v", got.Load())
		}
	})
}

// TestDownload tests streaming downloads.
func TestDownload(t *testing.T) {
	t.Parallel()

	t.Run("writes body to file after retry", func(t *testing.T) {
		t.Parallel()

		server, hits := flakyServer(t, 1, http.StatusOK, "!<arch>\n")
		f := NewFetcher(WithBackoff(time.Millisecond))
		path := filepath.Join(t.TempDir(), "pkg.deb")

		n, err := f.Download(context.Background(), newTestClient(), server.URL, path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != int64(len("!<arch>\n")) {
			t.Errorf("expected %d bytes, got %d", len("!<arch>\n"), n)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read download: %v", err)
		}
		if string(data) != "!<arch>\n" {
			t.Errorf("unexpected file content %q", data)
		}
		if hits.Load() != 2 {
			t.Errorf("expected 2 requests, got %d", hits.Load())
		}
	})

	t.Run("non-2xx status is a task failure", func(t *testing.T) {
		t.Parallel()

		server, hits := flakyServer(t, 0, http.StatusInternalServerError, "")
		f := NewFetcher(WithBackoff(time.Millisecond))
		path := filepath.Join(t.TempDir(), "pkg.deb")

		_, err := f.Download(context.Background(), newTestClient(), server.URL, path)
		if !errors.Is(err, ErrUnexpectedStatus) {
			t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
		}
		if model.KindOf(err) != model.KindTask {
			t.Errorf("expected task kind, got %v", model.KindOf(err))
		}
		if hits.Load() != 1 {
			t.Errorf("expected 1 request, got %d", hits.Load())
		}
	})
}
