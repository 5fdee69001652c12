// Package crawler discovers Debian package archives under pool directory
// listings.
//
// # Components
//
//   - Classify: turns a listing body into Listing and Artifact links
//   - Frontier: the pending listing queue plus the outstanding task count
//   - Packages: the package name to download URLs map
//   - Spider: drives the crawl, one pool slot per in-flight listing
//
// # Traversal rules
//
// A link is followed only if it stays on the page's origin, carries no query
// string, and descends from the page's directory. On a static directory tree
// this makes the crawl a strict descent, so it always terminates. Listings
// are also deduplicated, which keeps symlink cycles on the server from
// causing repeated work.
//
// # Termination
//
// The crawl ends at quiescence: no pending listings and no task in flight.
// A task counts as in flight from dispatch until its slot is released and its
// discovered listings are queued.
//
// # Usage
//
//	p := pool.New(128)
//	spider := crawler.NewSpider(p, crawler.WithSpiderLogger(logger))
//	result, err := spider.Crawl(ctx, []string{"http://archive.ubuntu.com/ubuntu/pool/"})
package crawler
