package crawler

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// hrefPattern matches double-quoted href attributes anywhere in the body.
// Directory indexes are not always well-formed HTML, so no parser is used.
var hrefPattern = regexp.MustCompile(`(?i)\bhref="([^"]+)"`)

// Archive extensions recognized as artifacts.
var artifactSuffixes = []string{".deb", ".ddeb"}

// Classify extracts the listings and artifacts linked from a page body.
//
// A candidate is kept only when, after resolution against pageURL, it has
// no query string, the same origin as pageURL, at least as many '/' in its
// path as pageURL, and a path under pageURL's directory. Fragments are
// dropped. Links that parse badly or are not valid UTF-8 are skipped.
func Classify(pageURL *url.URL, body []byte) []Link {
	base := *pageURL
	base.Fragment = ""
	base.RawFragment = ""

	baseOrigin := origin(&base)
	baseDepth := strings.Count(base.EscapedPath(), "/")
	baseDir := directoryOf(base.EscapedPath())

	var (
		links []Link
		seen  = make(map[string]bool)
	)

	for _, m := range hrefPattern.FindAllSubmatch(body, -1) {
		raw := m[1]
		if !utf8.Valid(raw) {
			continue
		}

		ref, err := url.Parse(strings.TrimSpace(html.UnescapeString(string(raw))))
		if err != nil {
			continue
		}

		target := base.ResolveReference(ref)
		if target.RawQuery != "" || target.ForceQuery {
			continue
		}
		target.Fragment = ""
		target.RawFragment = ""

		if origin(target) != baseOrigin {
			continue
		}

		path := target.EscapedPath()
		if strings.Count(path, "/") < baseDepth {
			continue
		}
		if !strings.HasPrefix(path, baseDir) {
			continue
		}

		link, ok := classifyPath(target)
		if !ok {
			continue
		}
		if link.IsListing() && path == base.EscapedPath() {
			continue
		}

		if seen[link.URL] {
			continue
		}
		seen[link.URL] = true
		links = append(links, link)
	}

	return links
}

// classifyPath decides the variant of a resolved same-origin URL.
func classifyPath(target *url.URL) (Link, bool) {
	path := target.Path

	for _, suffix := range artifactSuffixes {
		if strings.HasSuffix(path, suffix) {
			pkg := packageName(path)
			if pkg == "" {
				return Link{}, false
			}
			return NewArtifactLink(pkg, target.String()), true
		}
	}

	if strings.HasSuffix(path, "/") {
		return NewListingLink(target.String()), true
	}

	return Link{}, false
}

// packageName returns the second-to-last segment of path, which in a
// Debian pool layout is the source package directory.
func packageName(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 {
		return ""
	}
	return segments[len(segments)-2]
}

// origin returns scheme://host:port with default ports made explicit.
func origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	return scheme + "://" + host + ":" + port
}

// directoryOf returns path up to and including its last '/'.
func directoryOf(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[:i+1]
	}
	return "/"
}
