// Package downloader turns crawled package archives into sorted symbol
// bundles.
//
// For every package the Pipeline downloads each archive not yet in the
// Cache, unpacks it with ar, extracts its data tarball with tar, and hands
// all extracted trees of the package to symsorter in a single call under the
// bundle identifier <package>-<suffix>. Only after the sorter returns are
// the cache markers for those archives written. An interrupted run therefore
// never leaves a marker for work the sorter did not see.
//
// Packages run concurrently, bounded by the download pool. A failing package
// is recorded in its result and does not affect its siblings.
package downloader
