package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/debscraper/internal/model"
)

// FileName is the database file created inside the database directory.
const FileName = "debscraper.db"

// RunDB stores run reports and their per-package results.
type RunDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// ReadOnlyOptions opens an existing database without creating it.
func ReadOnlyOptions() Options {
	return Options{EnableWAL: true}
}

// Open opens or creates the RunDB in dbDir.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file. The foreign_keys pragma is
	// applied per connection so pruned runs cascade to their results.
	dsn := dbPath + "?mode=rw&_pragma=foreign_keys(1)"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Path returns the database file path.
func (rdb *RunDB) Path() string {
	return rdb.dbPath
}

// Close closes the database connection.
func (rdb *RunDB) Close() error {
	return rdb.db.Close()
}

func (rdb *RunDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		prefix TEXT NOT NULL,
		seeds TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		packages_discovered INTEGER NOT NULL DEFAULT 0,
		artifacts_discovered INTEGER NOT NULL DEFAULT 0,
		completed INTEGER NOT NULL DEFAULT 0,
		cached INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_prefix ON runs(prefix);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS package_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		package TEXT NOT NULL,
		bundle_id TEXT NOT NULL,
		status TEXT NOT NULL,
		urls INTEGER NOT NULL DEFAULT 0,
		fetched INTEGER NOT NULL DEFAULT 0,
		cached INTEGER NOT NULL DEFAULT 0,
		sorted INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		error_kind TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_results_run ON package_results(run_id);
	CREATE INDEX IF NOT EXISTS idx_results_package ON package_results(package);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// RunSummary is one row of the run history.
type RunSummary struct {
	ID                  int64     `json:"id"`
	Prefix              string    `json:"prefix"`
	Seeds               []string  `json:"seeds"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	PackagesDiscovered  int       `json:"packages_discovered"`
	ArtifactsDiscovered int       `json:"artifacts_discovered"`
	Completed           int       `json:"completed"`
	Cached              int       `json:"cached"`
	Failed              int       `json:"failed"`
}

// Duration returns the run's wall time.
func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// PackageRecord is a stored package result with the run it belongs to.
type PackageRecord struct {
	RunID     int64     `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	model.PackageResult
}

// SaveRun stores report and its package results in one transaction and
// returns the new run ID.
func (rdb *RunDB) SaveRun(ctx context.Context, report *model.RunReport) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}
	seedsJSON, err := json.Marshal(report.Seeds)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize seeds: %w", err)
	}

	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	result, err := tx.ExecContext(ctx, `
	INSERT INTO runs (prefix, seeds, started_at, finished_at, packages_discovered,
		artifacts_discovered, completed, cached, failed, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.Prefix,
		string(seedsJSON),
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.FinishedAt),
		report.PackagesDiscovered,
		report.ArtifactsDiscovered,
		report.CountStatus(model.PackageCompleted),
		report.CountStatus(model.PackageCached),
		report.CountStatus(model.PackageFailed),
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save run: %w", err)
	}

	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO package_results (run_id, package, bundle_id, status, urls, fetched,
		cached, sorted, error, error_kind, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare package insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range report.Packages {
		if _, err := stmt.ExecContext(ctx,
			runID,
			p.Package,
			p.BundleID,
			string(p.Status),
			p.URLs,
			p.Fetched,
			p.Cached,
			p.Sorted,
			nullString(p.Error),
			nullString(p.ErrorKind),
			p.Duration.Milliseconds(),
		); err != nil {
			return 0, fmt.Errorf("failed to save package %s: %w", p.Package, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return runID, nil
}

// ListRuns returns the most recent runs first. A non-empty prefix filters
// by sorter prefix; limit <= 0 returns every run.
func (rdb *RunDB) ListRuns(ctx context.Context, prefix string, limit int) ([]RunSummary, error) {
	query := `
	SELECT id, prefix, seeds, started_at, finished_at, packages_discovered,
		artifacts_discovered, completed, cached, failed
	FROM runs
	WHERE 1=1
	`
	args := make([]any, 0, 2)

	if prefix != "" {
		query += " AND prefix = ?"
		args = append(args, prefix)
	}
	query += " ORDER BY started_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			s                 RunSummary
			seeds             string
			started, finished string
		)
		if err := rows.Scan(&s.ID, &s.Prefix, &seeds, &started, &finished,
			&s.PackagesDiscovered, &s.ArtifactsDiscovered, &s.Completed, &s.Cached, &s.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(seeds), &s.Seeds); err != nil {
			s.Seeds = nil
		}
		s.StartedAt = parseTimestamp(started)
		s.FinishedAt = parseTimestamp(finished)
		runs = append(runs, s)
	}

	return runs, rows.Err()
}

// GetRun returns the full report of a run, or nil if it does not exist.
func (rdb *RunDB) GetRun(ctx context.Context, id int64) (*model.RunReport, error) {
	var reportJSON string
	err := rdb.db.QueryRowContext(ctx, "SELECT report_json FROM runs WHERE id = ?", id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report model.RunReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// LatestRunID returns the ID of the most recent run, or 0 if there is none.
func (rdb *RunDB) LatestRunID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := rdb.db.QueryRowContext(ctx, "SELECT MAX(id) FROM runs").Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get latest run: %w", err)
	}
	return id.Int64, nil
}

// GetPackageResults returns the package results of a run sorted by name.
// A non-empty status filters the results.
func (rdb *RunDB) GetPackageResults(ctx context.Context, runID int64, status model.PackageStatus) ([]PackageRecord, error) {
	query := selectPackageRecords + " WHERE r.run_id = ?"
	args := []any{runID}
	if status != "" {
		query += " AND r.status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY r.package"

	return rdb.queryPackageRecords(ctx, query, args...)
}

// PackageHistory returns every stored result of one package, newest first.
func (rdb *RunDB) PackageHistory(ctx context.Context, pkg string) ([]PackageRecord, error) {
	query := selectPackageRecords + " WHERE r.package = ? ORDER BY u.started_at DESC, r.run_id DESC"
	return rdb.queryPackageRecords(ctx, query, pkg)
}

const selectPackageRecords = `
	SELECT r.run_id, u.started_at, r.package, r.bundle_id, r.status, r.urls, r.fetched,
		r.cached, r.sorted, r.error, r.error_kind, r.duration_ms
	FROM package_results r
	JOIN runs u ON u.id = r.run_id`

func (rdb *RunDB) queryPackageRecords(ctx context.Context, query string, args ...any) ([]PackageRecord, error) {
	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query package results: %w", err)
	}
	defer rows.Close()

	var records []PackageRecord
	for rows.Next() {
		var (
			rec        PackageRecord
			started    string
			status     string
			errMsg     sql.NullString
			errKind    sql.NullString
			durationMS int64
		)
		if err := rows.Scan(&rec.RunID, &started, &rec.Package, &rec.BundleID, &status,
			&rec.URLs, &rec.Fetched, &rec.Cached, &rec.Sorted, &errMsg, &errKind, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan package result: %w", err)
		}
		rec.StartedAt = parseTimestamp(started)
		rec.Status = model.PackageStatus(status)
		rec.Error = errMsg.String
		rec.ErrorKind = errKind.String
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}

	return records, rows.Err()
}

// DeleteRunsBefore removes runs started before t and returns how many were removed.
func (rdb *RunDB) DeleteRunsBefore(ctx context.Context, t time.Time) (int64, error) {
	result, err := rdb.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", formatTimestamp(t))
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return result.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// storedLayout keeps lexical order equal to time order.
const storedLayout = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(storedLayout)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	storedLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999",
}

// parseTimestamp tries each known format and returns the zero time if
// none matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
