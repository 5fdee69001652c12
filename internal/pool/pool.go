package pool

import (
	"context"
	"net/http"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Slot is a checked-out client. It must be returned with Pool.Release.
type Slot struct {
	client   *http.Client
	released bool
}

// Client returns the HTTP client owned by the slot.
func (s *Slot) Client() *http.Client {
	return s.client
}

// Stats is a point-in-time view of the pool counters.
type Stats struct {
	// Capacity is the configured maximum number of slots.
	Capacity int

	// Created is the number of clients built so far. Never exceeds Capacity.
	Created int

	// InUse is the number of outstanding checkouts.
	InUse int

	// Idle is the number of clients waiting on the free-list.
	Idle int
}

// Pool is a bounded set of reusable HTTP clients.
// Admission is controlled by a weighted semaphore; the free-list and the
// counters are guarded by mu.
type Pool struct {
	capacity int
	sem      *semaphore.Weighted
	factory  func() *http.Client

	mu      sync.Mutex
	idle    []*http.Client
	created int
	inUse   int
}

// Option configures a Pool.
type Option func(*Pool)

// WithClientFactory sets the constructor used to build new clients.
// The default builds a client with DefaultClientOptions.
func WithClientFactory(factory func() *http.Client) Option {
	return func(p *Pool) {
		if factory != nil {
			p.factory = factory
		}
	}
}

// New creates a pool holding at most capacity clients.
// A capacity below one is treated as one. New never fails.
func New(capacity int, opts ...Option) *Pool {
	if capacity < 1 {
		capacity = 1
	}

	p := &Pool{
		capacity: capacity,
		sem:      semaphore.NewWeighted(int64(capacity)),
		idle:     make([]*http.Client, 0, capacity),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.factory == nil {
		p.factory = func() *http.Client {
			return newHTTPClient(DefaultClientOptions(), nil)
		}
	}

	return p
}

// Capacity returns the configured maximum number of slots.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Acquire waits until a slot is free and returns it, reusing an idle client
// when one exists. The only error is the context's.
func (p *Pool) Acquire(ctx context.Context) (*Slot, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.inUse++
	if n := len(p.idle); n > 0 {
		client := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return &Slot{client: client}, nil
	}
	p.created++
	p.mu.Unlock()

	// Holding an admission unit guarantees created cannot pass capacity.
	return &Slot{client: p.factory()}, nil
}

// Release returns the slot's client to the free-list and frees one
// admission unit. Releasing the same slot twice is a no-op.
func (p *Pool) Release(s *Slot) {
	if s == nil {
		return
	}

	p.mu.Lock()
	if s.released {
		p.mu.Unlock()
		return
	}
	s.released = true
	p.inUse--
	p.idle = append(p.idle, s.client)
	p.mu.Unlock()

	p.sem.Release(1)
}

// IsIdle reports whether no checkouts are outstanding.
// The answer may be stale by the time the caller acts on it.
func (p *Pool) IsIdle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse == 0
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Capacity: p.capacity,
		Created:  p.created,
		InUse:    p.inUse,
		Idle:     len(p.idle),
	}
}

// Close closes idle connections held by clients on the free-list.
// Clients still checked out are unaffected.
func (p *Pool) Close() {
	p.mu.Lock()
	idle := append([]*http.Client(nil), p.idle...)
	p.mu.Unlock()

	for _, c := range idle {
		c.CloseIdleConnections()
	}
}
