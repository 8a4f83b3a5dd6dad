// Package report renders a finished crawl run as a Markdown document.
package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/maltedev/property-crawler/internal/crawler"
)

// WriteMarkdown writes a summary of the run to output. runErr is the error
// Controller.Run returned, if any.
func WriteMarkdown(output io.Writer, summary crawler.Summary, runErr error) error {
	md := markdown.NewMarkdown(output)

	writeHeader(md, summary, runErr)
	writeCounts(md, summary.Stats)
	writeOutcome(md, summary.Stats)

	return md.Build()
}

func writeHeader(md *markdown.Markdown, s crawler.Summary, runErr error) {
	md.H1("Crawl Report")
	md.PlainText("")

	finished := "-"
	if s.FinishedAt != nil {
		finished = s.FinishedAt.Format("2006-01-02 15:04:05 MST")
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run", "`" + s.ID + "`"},
			{"Seed", s.BaseURL},
			{"Strategy", s.Strategy},
			{"Max Depth", strconv.Itoa(s.MaxDepth)},
			{"Started", s.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Finished", finished},
			{"Duration", s.Duration.Round(time.Millisecond).String()},
			{"Status", statusText(s, runErr)},
		},
	})
	md.PlainText("")
}

func statusText(s crawler.Summary, runErr error) string {
	switch {
	case runErr != nil:
		return "Stopped early: " + runErr.Error()
	case s.Running:
		return "Running"
	default:
		return "Complete"
	}
}

func writeCounts(md *markdown.Markdown, st crawler.Stats) {
	md.H2("Totals")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Counter", "Value"},
		Rows: [][]string{
			{"Pages visited", strconv.FormatInt(st.PagesVisited, 10)},
			{"URLs dispatched", strconv.FormatInt(st.URLsDispatched, 10)},
			{"Fetch failures", strconv.FormatInt(st.FetchFailures, 10)},
			{"Listings found", strconv.FormatInt(st.ListingsFound, 10)},
			{"Listings written", strconv.FormatInt(st.ListingsWritten, 10)},
			{"Skipped (missing fields)", strconv.FormatInt(st.ListingsSkipped, 10)},
			{"Invalid", strconv.FormatInt(st.ListingsInvalid, 10)},
			{"Store failures", strconv.FormatInt(st.ListingsFailed, 10)},
		},
	})
	md.PlainText("")

	if st.ListingsFound > 0 {
		writePieChart(md, st)
	}
}

func writePieChart(md *markdown.Markdown, st crawler.Stats) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Listing Outcomes"),
		piechart.WithShowData(true),
	)

	if st.ListingsWritten > 0 {
		chart.LabelAndIntValue("Written", uint64(st.ListingsWritten))
	}
	if st.ListingsSkipped > 0 {
		chart.LabelAndIntValue("Skipped", uint64(st.ListingsSkipped))
	}
	if st.ListingsInvalid > 0 {
		chart.LabelAndIntValue("Invalid", uint64(st.ListingsInvalid))
	}
	if st.ListingsFailed > 0 {
		chart.LabelAndIntValue("Store failure", uint64(st.ListingsFailed))
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func writeOutcome(md *markdown.Markdown, st crawler.Stats) {
	switch {
	case st.ListingsFailed > 0:
		md.Warningf("%d listing(s) were rejected by the store.", st.ListingsFailed)
	case st.PagesVisited == 0:
		md.Cautionf("No page could be fetched (%d failure(s)).", st.FetchFailures)
	case st.ListingsWritten == 0:
		md.Note("No listings were written.")
	default:
		md.Tip(fmt.Sprintf("%d listing(s) written from %d page(s).", st.ListingsWritten, st.PagesVisited))
	}
	md.PlainText("")
}
