package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/debscraper/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs plain-text reports for the terminal.
type SimpleWriter struct {
	baseWriter

	// verbose lists every package instead of only failures.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose lists every package result.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the run report.
func (w *SimpleWriter) Write(report *model.RunReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, "DEBSCRAPER RUN")

	fmt.Fprintf(&sb, "Prefix:         %s\n", report.Prefix)
	for i, seed := range report.Seeds {
		label := "Seeds:"
		if i > 0 {
			label = ""
		}
		fmt.Fprintf(&sb, "%-16s%s\n", label, seed)
	}
	fmt.Fprintf(&sb, "Started:        %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "Duration:       %s\n", report.Duration().Round(time.Millisecond))
	sb.WriteString("\n")

	w.writeSection(&sb, "SUMMARY")
	fmt.Fprintf(&sb, "  Packages found:   %d\n", report.PackagesDiscovered)
	fmt.Fprintf(&sb, "  Archives found:   %d\n", report.ArtifactsDiscovered)
	fmt.Fprintf(&sb, "  Completed:        %d\n", report.CountStatus(model.PackageCompleted))
	fmt.Fprintf(&sb, "  Already cached:   %d\n", report.CountStatus(model.PackageCached))
	fmt.Fprintf(&sb, "  Failed:           %d\n", report.CountStatus(model.PackageFailed))
	fmt.Fprintf(&sb, "  Archives fetched: %d\n", report.TotalFetched())
	fmt.Fprintf(&sb, "  Archives skipped: %d\n", report.TotalCached())
	sb.WriteString("\n")

	if failures := report.Failures(); len(failures) > 0 {
		w.writeSection(&sb, "FAILURES")
		for _, f := range failures {
			fmt.Fprintf(&sb, "  [!] %s (%s)\n", f.Package, f.ErrorKind)
			fmt.Fprintf(&sb, "      %s\n", f.Error)
		}
		sb.WriteString("\n")
	}

	if w.verbose && len(report.Packages) > 0 {
		w.writeSection(&sb, "PACKAGES")
		for _, p := range report.Packages {
			fmt.Fprintf(&sb, "  %-9s %s  fetched=%d cached=%d\n",
				p.Status, p.BundleID, p.Fetched, p.Cached)
		}
		sb.WriteString("\n")
	}

	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")

	return io.WriteString(w.output, sb.String())
}

// WritePackages outputs one block per package with its URLs.
func (w *SimpleWriter) WritePackages(packages map[string][]string) (int, error) {
	var sb strings.Builder

	names, sorted := sortedPackages(packages)
	for _, name := range names {
		fmt.Fprintf(&sb, "%s\n", name)
		for _, u := range sorted[name] {
			fmt.Fprintf(&sb, "  %s\n", u)
		}
	}
	fmt.Fprintf(&sb, "\n%d packages, %d archives\n", len(names), countURLs(sorted))

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	pad := (ruleWidth - len(title)) / 2
	sb.WriteString(strings.Repeat(" ", pad) + title + "\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}
