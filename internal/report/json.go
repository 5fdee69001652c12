package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/debscraper/internal/model"
)

// JSONWriter outputs reports as JSON for tool integration.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
	version      string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the debscraper version in every document.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RunDocument is the JSON document of a scrape run.
type RunDocument struct {
	Version string           `json:"version,omitempty"`
	Report  *model.RunReport `json:"report"`
	Summary RunSummary       `json:"summary"`
}

// RunSummary holds the totals of a run.
type RunSummary struct {
	Completed       int     `json:"completed"`
	Cached          int     `json:"cached"`
	Failed          int     `json:"failed"`
	URLsFetched     int     `json:"urls_fetched"`
	URLsCached      int     `json:"urls_cached"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// PackagesDocument is the JSON document of a crawl.
type PackagesDocument struct {
	Version   string              `json:"version,omitempty"`
	Packages  map[string][]string `json:"packages"`
	Count     int                 `json:"package_count"`
	Artifacts int                 `json:"artifact_count"`
}

// Write outputs the run report with its summary.
func (w *JSONWriter) Write(report *model.RunReport) (int, error) {
	return w.writeJSON(RunDocument{
		Version: w.version,
		Report:  report,
		Summary: RunSummary{
			Completed:       report.CountStatus(model.PackageCompleted),
			Cached:          report.CountStatus(model.PackageCached),
			Failed:          report.CountStatus(model.PackageFailed),
			URLsFetched:     report.TotalFetched(),
			URLsCached:      report.TotalCached(),
			DurationSeconds: report.Duration().Seconds(),
		},
	})
}

// WritePackages outputs the package map with sorted URL lists.
func (w *JSONWriter) WritePackages(packages map[string][]string) (int, error) {
	_, sorted := sortedPackages(packages)
	return w.writeJSON(PackagesDocument{
		Version:   w.version,
		Packages:  sorted,
		Count:     len(sorted),
		Artifacts: countURLs(sorted),
	})
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
