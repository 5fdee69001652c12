// Package main provides the entry point for the debscraper CLI.
//
// debscraper crawls Debian-style package pools, downloads every .deb and
// .ddeb archive it finds, unpacks them and feeds the contents to symsorter,
// producing one debug symbol bundle per package.
//
// Usage:
//
//	debscraper scrape --prefix ubuntu -u http://archive.ubuntu.com/ubuntu/pool/
//	debscraper crawl -u http://ddebs.ubuntu.com/pool/main/z/
//	debscraper history
//
// See --help for all available options.
package main

func main() {
	Execute()
}
