package fetch

import (
	"context"
	"testing"
	"time"
)

// TestNewHostLimiter tests limiter construction.
func TestNewHostLimiter(t *testing.T) {
	t.Parallel()

	if NewHostLimiter(0, 1) != nil {
		t.Error("expected nil limiter for zero rate")
	}
	if NewHostLimiter(-1, 1) != nil {
		t.Error("expected nil limiter for negative rate")
	}

	var disabled *HostLimiter
	if err := disabled.Wait(context.Background(), "example.com"); err != nil {
		t.Errorf("nil limiter must not fail: %v", err)
	}
}

// TestHostLimiterWait tests per-host isolation and cancellation.
func TestHostLimiterWait(t *testing.T) {
	t.Parallel()

	t.Run("hosts have independent buckets", func(t *testing.T) {
		t.Parallel()

		l := NewHostLimiter(0.001, 1)
		ctx := context.Background()

		if err := l.Wait(ctx, "a.example"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// A different host still has its burst token.
		if err := l.Wait(ctx, "b.example"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// Host names map to the same bucket regardless of case.
		if l.limiterFor("A.EXAMPLE") != l.limiterFor("a.example") {
			t.Error("expected case-insensitive host buckets")
		}
		if len(l.limiters) != 2 {
			t.Errorf("expected 2 limiters, got %d", len(l.limiters))
		}
	})

	t.Run("exhausted bucket honors context", func(t *testing.T) {
		t.Parallel()

		l := NewHostLimiter(0.001, 1)
		if err := l.Wait(context.Background(), "c.example"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := l.Wait(ctx, "c.example"); err == nil {
			t.Error("expected an error while the bucket is empty")
		}
	})
}
