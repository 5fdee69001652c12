// Package database stores run history in SQLite.
//
// Every scrape run is saved as a row in runs, holding the run totals and the
// full JSON report, plus one row per package in package_results. The history
// command reads it back to list runs, show one run's packages, or trace a
// single package across runs.
//
// The file lives at <dir>/debscraper.db and is opened through the CGO-free
// modernc.org/sqlite driver with WAL enabled.
package database
