package sync

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

// maxReportRows bounds how many records each report table shows.
const maxReportRows = 500

// Entry is the report projection of one row.
type Entry struct {
	PageID string
	MalID  *int64
	Title  string
	URL    string
	Year   *int64
	Reason string
	// CoverURL is the remote cover to mirror and CoverPath its path inside
	// the snapshot directory; both empty when the row has no cover.
	CoverURL  string
	CoverPath string
}

// WriteReport renders the dataset card: front matter, then the matched
// records, then the unmatched ones with their reasons so operators can
// review and override them.
func WriteReport(w io.Writer, source string, entries []Entry) error {
	var matched, unmatched []Entry
	for _, e := range entries {
		if e.MalID != nil {
			matched = append(matched, e)
		} else {
			unmatched = append(unmatched, e)
		}
	}

	if err := writeFrontMatter(w, source, len(entries)); err != nil {
		return err
	}

	fmt.Fprintf(w, "This is the information integration of %s and myanimelist.\n\n", source)

	fmt.Fprintf(w, "# Matched\n\n")
	fmt.Fprintf(w, "%s matched record(s) in total, %s shown.\n\n",
		humanize.Comma(int64(len(matched))), humanize.Comma(int64(capRows(len(matched)))))
	writeMatchedTable(w, matched)

	fmt.Fprintf(w, "\n# Unmatched\n\n")
	fmt.Fprintf(w, "%s unmatched record(s) in total, %s shown.\n\n",
		humanize.Comma(int64(len(unmatched))), humanize.Comma(int64(capRows(len(unmatched)))))
	writeUnmatchedTable(w, unmatched)

	return nil
}

func writeFrontMatter(w io.Writer, source string, total int) error {
	_, err := fmt.Fprintf(w, `---
license: other
language:
- en
- ja
tags:
- art
- anime
size_categories:
- %s
annotations_creators:
- no-annotation
source_datasets:
- %s
- myanimelist
---

`, sizeCategory(total), source)
	return err
}

func writeMatchedTable(w io.Writer, matched []Entry) {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"ID", "Cover", "Title", "Year"})
	for _, e := range matched[:capRows(len(matched))] {
		cover := ""
		if e.CoverPath != "" {
			cover = fmt.Sprintf("![%s](%s)", e.PageID, e.CoverPath)
		}
		tw.AppendRow(table.Row{
			fmt.Sprintf("#%d", *e.MalID),
			cover,
			fmt.Sprintf("[%s](%s)", e.Title, e.URL),
			yearText(e.Year),
		})
	}
	fmt.Fprintln(w, tw.RenderMarkdown())
}

func writeUnmatchedTable(w io.Writer, unmatched []Entry) {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Page ID", "Title", "Year", "Reason"})
	for _, e := range unmatched[:capRows(len(unmatched))] {
		tw.AppendRow(table.Row{e.PageID, fmt.Sprintf("[%s](%s)", e.Title, e.URL), yearText(e.Year), e.Reason})
	}
	fmt.Fprintln(w, tw.RenderMarkdown())
}

func yearText(year *int64) string {
	if year == nil {
		return "N/A"
	}
	return fmt.Sprintf("%d", *year)
}

func capRows(n int) int {
	if n > maxReportRows {
		return maxReportRows
	}
	return n
}

// sizeCategory converts a record count into the dataset card's size tag.
func sizeCategory(n int) string {
	switch {
	case n < 1000:
		return "n<1K"
	case n < 10_000:
		return "1K<n<10K"
	case n < 100_000:
		return "10K<n<100K"
	case n < 1_000_000:
		return "100K<n<1M"
	default:
		return "1M<n<10M"
	}
}
