package pool

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestNew tests pool construction.
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("clamps capacity to one", func(t *testing.T) {
		t.Parallel()
		p := New(0)
		if p.Capacity() != 1 {
			t.Errorf("expected capacity 1, got %d", p.Capacity())
		}
	})

	t.Run("starts idle with no clients", func(t *testing.T) {
		t.Parallel()
		p := New(4)
		if !p.IsIdle() {
			t.Error("expected new pool to be idle")
		}
		if s := p.Stats(); s.Created != 0 || s.Idle != 0 || s.InUse != 0 {
			t.Errorf("unexpected stats: %+v", s)
		}
	})
}

// TestAcquireRelease tests reuse and bookkeeping.
func TestAcquireRelease(t *testing.T) {
	t.Parallel()

	t.Run("reuses released client", func(t *testing.T) {
		t.Parallel()

		var built atomic.Int32
		p := New(2, WithClientFactory(func() *http.Client {
			built.Add(1)
			return &http.Client{}
		}))

		ctx := context.Background()
		first, err := p.Acquire(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.IsIdle() {
			t.Error("expected pool to be busy while a slot is out")
		}
		p.Release(first)

		second, err := p.Acquire(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer p.Release(second)

		if second.Client() != first.Client() {
			t.Error("expected the idle client to be reused")
		}
		if built.Load() != 1 {
			t.Errorf("expected 1 client built, got %d", built.Load())
		}
	})

	t.Run("double release is a no-op", func(t *testing.T) {
		t.Parallel()

		p := New(1)
		slot, err := p.Acquire(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		p.Release(slot)
		p.Release(slot)
		p.Release(nil)

		s := p.Stats()
		if s.InUse != 0 || s.Idle != 1 {
			t.Errorf("unexpected stats after double release: %+v", s)
		}

		// Capacity must still be one: a second acquire must block.
		held, err := p.Acquire(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer p.Release(held)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		if _, err := p.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})

	t.Run("acquire returns context error when cancelled", func(t *testing.T) {
		t.Parallel()

		p := New(1)
		held, err := p.Acquire(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer p.Release(held)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := p.Acquire(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if s := p.Stats(); s.InUse != 1 {
			t.Errorf("failed acquire must not change counters: %+v", s)
		}
	})
}

// TestCapacityBound tests that outstanding checkouts never exceed capacity.
func TestCapacityBound(t *testing.T) {
	t.Parallel()

	const capacity = 3
	p := New(capacity)

	var (
		current atomic.Int32
		peak    atomic.Int32
		wg      sync.WaitGroup
	)

	for range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			slot, err := p.Acquire(context.Background())
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}

			s := p.Stats()
			if s.InUse+s.Idle > capacity || s.Created > capacity {
				t.Errorf("pool exceeded capacity: %+v", s)
			}

			time.Sleep(time.Millisecond)
			current.Add(-1)
			p.Release(slot)
		}()
	}
	wg.Wait()

	if peak.Load() > capacity {
		t.Errorf("peak concurrency %d exceeds capacity %d", peak.Load(), capacity)
	}
	s := p.Stats()
	if s.Created > capacity {
		t.Errorf("created %d clients, capacity %d", s.Created, capacity)
	}
	if !p.IsIdle() {
		t.Error("expected pool to be idle after all releases")
	}
	p.Close()
}
