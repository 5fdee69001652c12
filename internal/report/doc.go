// Package report renders run and crawl results.
//
//   - SimpleWriter: plain text for the terminal
//   - JSONWriter: JSON documents for tool integration
//   - MarkdownWriter: GitHub-flavored Markdown with a mermaid outcome chart
//
// Writers implement Writer and can be combined with MultiWriter.
package report
