// Package model defines the data structures shared across debscraper.
//
// This package contains the following main types:
//   - Kind and Error: the closed error taxonomy used by every stage
//   - RunReport: the summary of one crawl and download run
//   - PackageResult: the outcome of assembling a single package bundle
//
// The models are serializable to JSON for report output and database storage.
package model
