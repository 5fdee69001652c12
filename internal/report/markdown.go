package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/debscraper/internal/model"
)

// MarkdownWriter outputs GitHub-flavored Markdown reports.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the run report.
func (w *MarkdownWriter) Write(report *model.RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("debscraper Run Report")
	md.PlainText("")

	rows := [][]string{
		{"Prefix", "`" + report.Prefix + "`"},
		{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"Duration", report.Duration().Round(time.Millisecond).String()},
		{"Packages Found", strconv.Itoa(report.PackagesDiscovered)},
		{"Archives Found", strconv.Itoa(report.ArtifactsDiscovered)},
	}
	md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: rows})
	md.PlainText("")

	if len(report.Seeds) > 0 {
		md.H2("Seeds")
		md.PlainText("")
		seeds := make([]string, len(report.Seeds))
		for i, s := range report.Seeds {
			seeds[i] = "`" + s + "`"
		}
		md.BulletList(seeds...)
		md.PlainText("")
	}

	w.writeSummary(md, report)
	w.writePackages(md, report)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [debscraper](https://github.com/nao1215/debscraper)*")

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.RunReport) {
	completed := report.CountStatus(model.PackageCompleted)
	cached := report.CountStatus(model.PackageCached)
	failed := report.CountStatus(model.PackageFailed)

	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Status", "Packages"},
		Rows: [][]string{
			{"✅ Completed", strconv.Itoa(completed)},
			{"💾 Cached", strconv.Itoa(cached)},
			{"❌ Failed", strconv.Itoa(failed)},
			{"**Archives fetched**", "**" + strconv.Itoa(report.TotalFetched()) + "**"},
			{"**Archives skipped**", "**" + strconv.Itoa(report.TotalCached()) + "**"},
		},
	})
	md.PlainText("")

	if completed+cached+failed > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Package Outcomes"),
			piechart.WithShowData(true),
		)
		for _, s := range []struct {
			label string
			n     int
		}{{"Completed", completed}, {"Cached", cached}, {"Failed", failed}} {
			if s.n > 0 {
				chart.LabelAndIntValue(s.label, uint64(s.n)) //nolint:gosec // counts are non-negative
			}
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case failed > 0 && completed == 0 && cached == 0:
		md.Cautionf("Every package failed (%d). Check mirror reachability and tool paths.", failed)
	case failed > 0:
		md.Warningf("%d package(s) failed and will be retried on the next run.", failed)
	case completed == 0 && cached > 0:
		md.Note("Nothing new: every archive was already cached.")
	case completed > 0:
		md.Tip("All packages were bundled successfully.")
	default:
		md.Note("No packages were discovered.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writePackages(md *markdown.Markdown, report *model.RunReport) {
	md.H2("Packages")
	md.PlainText("")

	if len(report.Packages) == 0 {
		md.PlainText("No packages processed.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Packages))
	for i, p := range report.Packages {
		errText := "-"
		if p.Error != "" {
			errText = truncateString(p.Error, 60)
		}
		rows[i] = []string{
			p.Package,
			"`" + p.BundleID + "`",
			string(p.Status),
			strconv.Itoa(p.Fetched),
			strconv.Itoa(p.Cached),
			errText,
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Package", "Bundle", "Status", "Fetched", "Cached", "Error"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, f := range report.Failures() {
		md.Details(f.Package+" ("+f.ErrorKind+")", f.Error)
	}
}

// WritePackages outputs a crawl result as a package table and URL lists.
func (w *MarkdownWriter) WritePackages(packages map[string][]string) (int, error) {
	md := markdown.NewMarkdown(w.output)
	names, sorted := sortedPackages(packages)

	md.H1("Discovered Packages")
	md.PlainText("")
	md.PlainTextf("%d packages, %d archives", len(names), countURLs(sorted))
	md.PlainText("")

	rows := make([][]string, len(names))
	for i, name := range names {
		rows[i] = []string{name, strconv.Itoa(len(sorted[name]))}
	}
	md.Table(markdown.TableSet{Header: []string{"Package", "Archives"}, Rows: rows})
	md.PlainText("")

	for _, name := range names {
		md.H2(name)
		md.PlainText("")
		md.BulletList(sorted[name]...)
		md.PlainText("")
	}

	return len(md.String()), md.Build()
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
