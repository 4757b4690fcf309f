package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/mgpai22/captionstitch/internal/estimate"
	"github.com/mgpai22/captionstitch/internal/segment"
)

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
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// planTable lists each segment with its estimated work units.
func planTable(segs []segment.Segment, report estimate.Report) string {
	rows := make([][]string, 0, len(segs)+1)
	for i, s := range segs {
		units := 0
		if i < len(report.PerSegmentUnits) {
			units = report.PerSegmentUnits[i]
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", s.Index+1),
			formatClock(s.Start),
			formatClock(s.End),
			fmt.Sprintf("%.1fs", s.Duration()),
			fmt.Sprintf("%d", units),
		})
	}
	rows = append(rows, []string{"Total", "", "", "", fmt.Sprintf("%d", report.TotalUnits)})
	return renderTable(
		[]string{"Segment", "Start", "End", "Length", "Units"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
	)
}

// outcomeTable summarises a finished run per segment.
func outcomeTable(outcomes []segment.Outcome) string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		detail := ""
		if o.Err != nil {
			detail = o.Err.Error()
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", o.Segment.Index+1),
			fmt.Sprintf("%s-%s", formatClock(o.Segment.Start), formatClock(o.Segment.End)),
			o.Status.String(),
			fmt.Sprintf("%d", len(o.Captions)),
			detail,
		})
	}
	return renderTable(
		[]string{"Segment", "Range", "Status", "Captions", "Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

// formatClock renders seconds as H:MM:SS.
func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, total/60%60, total%60)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
