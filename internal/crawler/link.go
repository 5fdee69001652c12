package crawler

// LinkKind discriminates the variants of Link.
type LinkKind int

const (
	// LinkListing is a directory index page to be crawled further.
	LinkListing LinkKind = iota

	// LinkArtifact is a downloadable .deb or .ddeb archive.
	LinkArtifact
)

// String returns the variant name.
func (k LinkKind) String() string {
	switch k {
	case LinkListing:
		return "listing"
	case LinkArtifact:
		return "artifact"
	default:
		return "unknown"
	}
}

// Link is a classified anchor target. Package is set only for artifacts.
type Link struct {
	Kind    LinkKind
	URL     string
	Package string
}

// NewListingLink returns a Link for a directory listing.
func NewListingLink(rawURL string) Link {
	return Link{Kind: LinkListing, URL: rawURL}
}

// NewArtifactLink returns a Link for a package archive.
func NewArtifactLink(pkg, rawURL string) Link {
	return Link{Kind: LinkArtifact, URL: rawURL, Package: pkg}
}

// IsListing reports whether l is a listing.
func (l Link) IsListing() bool { return l.Kind == LinkListing }

// IsArtifact reports whether l is an artifact.
func (l Link) IsArtifact() bool { return l.Kind == LinkArtifact }
