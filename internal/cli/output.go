package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/pfrederiksen/status-history/internal/logger"
	"github.com/pfrederiksen/status-history/internal/scraper"
	"github.com/pfrederiksen/status-history/internal/storage"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// ArchiveRow describes one archive file written during the run.
type ArchiveRow struct {
	Label   string `json:"label"`
	Path    string `json:"path"`
	Records int    `json:"records"`
	Size    int64  `json:"size_bytes"`
}

// OutputResult contains data to be output
type OutputResult struct {
	RunID     string             `json:"run_id"`
	StartedAt time.Time          `json:"started_at"`
	Summary   *scraper.Summary   `json:"summary"`
	Archives  []ArchiveRow       `json:"archives"`
	Counters  map[string]int64   `json:"counters,omitempty"`
	Gauges    map[string]float64 `json:"gauges,omitempty"`
	Timings   map[string]string  `json:"timings,omitempty"`
}

func newOutputResult(runID string, started time.Time, summary *scraper.Summary, snapshot logger.Snapshot, order SortOrder) *OutputResult {
	rows := make([]ArchiveRow, 0, len(summary.Archives))
	for _, a := range summary.Archives {
		rows = append(rows, ArchiveRow{
			Label:   a.Label,
			Path:    a.Path,
			Records: a.Records,
			Size:    storage.Size(a.Path),
		})
	}
	sortArchives(rows, order)

	timings := make(map[string]string, len(snapshot.Timings))
	for name, stats := range snapshot.Timings {
		timings[name] = fmt.Sprintf("%d runs, avg %s", stats.Count, stats.Average.Round(time.Millisecond))
	}

	return &OutputResult{
		RunID:     runID,
		StartedAt: started,
		Summary:   summary,
		Archives:  rows,
		Counters:  snapshot.Counters,
		Gauges:    snapshot.Gauges,
		Timings:   timings,
	}
}

// WriteOutput writes the result in the specified format
func WriteOutput(w io.Writer, result *OutputResult, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatText:
		return writeText(w, result, verbose)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeJSON outputs results as JSON
func writeJSON(w io.Writer, result *OutputResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// writeText outputs results as a table of archive files followed by totals
func writeText(w io.Writer, result *OutputResult, verbose bool) error {
	s := result.Summary

	if len(result.Archives) == 0 {
		fmt.Fprintln(w, "No records archived.")
	} else {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		if isTerminal(w) {
			t.SetStyle(table.StyleRounded)
		} else {
			t.SetStyle(table.StyleDefault)
		}
		t.AppendHeader(table.Row{"Partition", "File", "Records", "Size"})

		total := 0
		for _, a := range result.Archives {
			t.AppendRow(table.Row{a.Label, a.Path, humanize.Comma(int64(a.Records)), humanize.Bytes(uint64(a.Size))})
			total += a.Records
		}
		t.AppendFooter(table.Row{"", "Total", humanize.Comma(int64(total)), ""})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight},
			{Number: 4, Align: text.AlignRight},
		})
		t.Render()
	}

	kind := s.Kind
	if s.Service != "" {
		kind = fmt.Sprintf("%s (%s)", s.Kind, s.Service)
	}
	fmt.Fprintf(w, "\n%s: %d pages, %d records in %s\n",
		kind, s.Pages, s.Records, s.Duration.Round(time.Second))
	if s.NewIncidents > 0 {
		fmt.Fprintf(w, "New since last archive: %d\n", s.NewIncidents)
	}
	if s.Skipped > 0 {
		fmt.Fprintf(w, "Skipped malformed days: %d\n", s.Skipped)
	}
	if s.Exhausted {
		fmt.Fprintln(w, "Warning: stopped early because a page kept re-rendering.")
	}

	if verbose {
		fmt.Fprintf(w, "Run ID: %s\n", result.RunID)
		for _, name := range sortedKeys(result.Counters) {
			fmt.Fprintf(w, "  %s: %s\n", name, humanize.Comma(result.Counters[name]))
		}
		for _, name := range sortedKeys(result.Gauges) {
			fmt.Fprintf(w, "  %s: %g\n", name, result.Gauges[name])
		}
		for _, name := range sortedKeys(result.Timings) {
			fmt.Fprintf(w, "  %s: %s\n", name, result.Timings[name])
		}
	}

	return nil
}
