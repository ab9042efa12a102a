// Package cli provides output helpers for the miwake command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/hyperjump/miwake/internal/indexer"
	"github.com/hyperjump/miwake/internal/models"
	"github.com/hyperjump/miwake/internal/search"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("invalid output format %q (use text or json)", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteIdentifyResult writes a lookup result to w in the given format.
func WriteIdentifyResult(w io.Writer, res *models.IdentifyResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	if !res.Matched {
		reason := ""
		if res.Reason != "" {
			reason = " (" + res.Reason + ")"
		}
		_, err := fmt.Fprintf(w, "%s%s in %.3fs\n", models.NoMatch, reason, res.ElapsedSeconds())
		return err
	}
	_, err := fmt.Fprintf(w, "%s in %.3fs\n  entry: %s\n  good matches: %d\n  match ratio: %.2f%%\n  candidates: %d\n",
		res.ID, res.ElapsedSeconds(), res.EntryID, res.GoodMatches, res.MatchRatio, res.Candidates)
	return err
}

// WriteStatus writes catalog statistics to w in the given format.
func WriteStatus(w io.Writer, st *search.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	rows := [][]string{
		{"Entries", strconv.Itoa(st.Entries)},
		{"Sources", strconv.Itoa(st.Sources)},
		{"Backend", st.Backend},
		{"Cache path", st.CachePath},
		{"Disk usage", FormatBytes(st.DiskUsageBytes)},
		{"Index", st.Index},
	}
	if st.CorpusDir != "" {
		rows = append(rows, []string{"Corpus", st.CorpusDir})
	}
	_, err := fmt.Fprintln(w, renderTable([]string{"Field", "Value"}, rows, nil))
	return err
}

// WriteBuildReport writes a corpus build summary to w in the given format.
// Skipped sources are listed in the text form.
func WriteBuildReport(w io.Writer, rep *indexer.BuildReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, rep)
	}
	if _, err := fmt.Fprintf(w, "Built %d entries from %d of %d files in %d batches (%s), build %s\n",
		rep.Entries, rep.Indexed, rep.Files, rep.Batches, rep.Duration.Round(1e6), rep.BuildID); err != nil {
		return err
	}
	var rows [][]string
	for _, o := range rep.Outcomes {
		if o.Skipped != "" {
			rows = append(rows, []string{o.ID, o.Skipped})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	_, err := fmt.Fprintln(w, renderTable([]string{"Skipped", "Reason"}, rows, nil))
	return err
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
