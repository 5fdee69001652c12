// Package pool provides a bounded, reusable set of HTTP clients.
//
// A Pool hands out Slots. Each Slot owns one *http.Client with its own
// transport and connection cache. Slots are created lazily up to the pool
// capacity and returned to an idle free-list on release, so connections are
// reused across tasks.
//
// At most capacity slots exist and at most capacity checkouts are
// outstanding at any moment. Acquire waits without a timeout; the only way
// out of the wait is context cancellation.
//
// # Usage
//
//	factory, err := pool.NewHTTPClientFactory(pool.ClientOptions{Timeout: 30 * time.Second})
//	p := pool.New(128, pool.WithClientFactory(factory))
//	defer p.Close()
//
//	slot, err := p.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer p.Release(slot)
//	resp, err := slot.Client().Get(url)
package pool
