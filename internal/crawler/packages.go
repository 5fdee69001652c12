package crawler

import "sync"

// Packages maps a package name to the download URLs found for it.
// Add is atomic per batch; readers see a consistent snapshot.
type Packages struct {
	mu        sync.Mutex
	urls      map[string][]string
	artifacts int
}

// NewPackages creates an empty package map.
func NewPackages() *Packages {
	return &Packages{urls: make(map[string][]string)}
}

// Add merges the artifact links of one page. Listings are ignored.
// It returns the number of artifacts merged.
func (p *Packages) Add(links []Link) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	added := 0
	for _, l := range links {
		if !l.IsArtifact() {
			continue
		}
		p.urls[l.Package] = append(p.urls[l.Package], l.URL)
		added++
	}
	p.artifacts += added
	return added
}

// Len returns the number of distinct packages.
func (p *Packages) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.urls)
}

// ArtifactCount returns the number of URLs merged so far.
func (p *Packages) ArtifactCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.artifacts
}

// Snapshot returns a deep copy of the map.
func (p *Packages) Snapshot() map[string][]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string][]string, len(p.urls))
	for pkg, urls := range p.urls {
		out[pkg] = append([]string(nil), urls...)
	}
	return out
}
