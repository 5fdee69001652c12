package crawler

import (
	"context"
	"sync"
)

// Frontier is the queue of listing URLs discovered but not yet crawled,
// paired with a count of dispatched tasks that have not finished.
//
// The crawl is quiescent when the queue is empty and no task is
// outstanding; only then does Next report that the crawl is over. A task
// is outstanding from the moment Next hands out its URL until Done is
// called for it, so a running task can never be mistaken for an idle one.
//
// URLs are handed out in push order. Listing URLs are deduplicated: Push
// ignores a URL it has seen before.
type Frontier struct {
	mu          sync.Mutex
	cond        *sync.Cond
	pending     []string
	seen        map[string]struct{}
	outstanding int
	closed      bool
}

// NewFrontier creates an empty frontier.
func NewFrontier() *Frontier {
	f := &Frontier{
		seen: make(map[string]struct{}),
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Push enqueues rawURL unless it was pushed before.
// It reports whether the URL was added.
func (f *Frontier) Push(rawURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	if _, ok := f.seen[rawURL]; ok {
		return false
	}
	f.seen[rawURL] = struct{}{}
	f.pending = append(f.pending, rawURL)
	f.cond.Signal()
	return true
}

// Next blocks until a URL is available and returns it, counting it as
// outstanding. It returns false once the frontier is quiescent or ctx is
// done; every later call also returns false.
func (f *Frontier) Next(ctx context.Context) (string, bool) {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cond.Broadcast()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if f.closed {
			return "", false
		}
		if ctx.Err() != nil {
			return "", false
		}
		if len(f.pending) > 0 {
			next := f.pending[0]
			f.pending[0] = ""
			f.pending = f.pending[1:]
			f.outstanding++
			return next, true
		}
		if f.outstanding == 0 {
			f.closed = true
			f.cond.Broadcast()
			return "", false
		}
		f.cond.Wait()
	}
}

// Done marks one URL returned by Next as finished. Listings discovered by
// that task must be pushed before Done is called.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.outstanding > 0 {
		f.outstanding--
	}
	if f.outstanding == 0 {
		f.cond.Broadcast()
	}
}

// Outstanding returns the number of dispatched, unfinished tasks.
func (f *Frontier) Outstanding() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outstanding
}

// Pending returns the number of queued URLs.
func (f *Frontier) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Seen returns the number of distinct URLs ever pushed.
func (f *Frontier) Seen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}
