package report

import (
	"io"
	"sort"

	"github.com/nao1215/debscraper/internal/model"
)

// Writer writes run output in one format.
type Writer interface {
	// Write outputs the report of a scrape run.
	Write(report *model.RunReport) (int, error)

	// WritePackages outputs a crawl result: package names and their
	// download URLs.
	WritePackages(packages map[string][]string) (int, error)
}

// MultiWriter writes to multiple Writers in order and stops on the first error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
func (m *MultiWriter) Write(report *model.RunReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WritePackages outputs the package map to all configured Writers.
func (m *MultiWriter) WritePackages(packages map[string][]string) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WritePackages(packages)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// sortedPackages returns package names in order and each URL list sorted.
func sortedPackages(packages map[string][]string) ([]string, map[string][]string) {
	names := make([]string, 0, len(packages))
	sorted := make(map[string][]string, len(packages))
	for name, urls := range packages {
		names = append(names, name)
		u := append([]string(nil), urls...)
		sort.Strings(u)
		sorted[name] = u
	}
	sort.Strings(names)
	return names, sorted
}

func countURLs(packages map[string][]string) int {
	n := 0
	for _, urls := range packages {
		n += len(urls)
	}
	return n
}
