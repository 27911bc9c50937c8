package panel

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/platformbuilds/mirador-mcp/internal/frame"
)

const (
	defaultPlotWidth  = 60
	defaultPlotHeight = 10
	axisWidth         = 10
	maxCellWidth      = 80
)

// RenderText renders a view for a terminal or an MCP tool result.
// A placeholder renders as exactly its text.
func RenderText(v View) string {
	switch v.Kind {
	case ViewPlaceholder:
		return v.Placeholder
	case ViewGraph:
		return renderGraphText(v.Graph, v.Size)
	case ViewLogTable:
		return renderLogsText(v.Logs, v.LogOptions)
	case ViewTable:
		return renderTableText(v.Table, v.Traces)
	}
	return ""
}

func renderGraphText(g *Graph, size Dimensions) string {
	if g == nil || len(g.Series) == 0 {
		return NoData
	}
	s := g.Series[0]

	var b strings.Builder
	if g.ShowLegend {
		fmt.Fprintf(&b, "── %s (%d points)\n", s.Label, len(s.Points))
	}
	if len(s.Points) == 0 {
		b.WriteString("(empty series)\n")
		return b.String()
	}

	width := defaultPlotWidth
	if size.Width > axisWidth+10 {
		width = min(size.Width-axisWidth-2, 200)
	}
	height := defaultPlotHeight
	if size.Height > 4 {
		height = min(size.Height-3, 40)
	}

	lo, hi := s.Points[0].Value, s.Points[0].Value
	for _, p := range s.Points {
		lo = math.Min(lo, p.Value)
		hi = math.Max(hi, p.Value)
	}

	grid := make([][]byte, height)
	for i := range grid {
		grid[i] = []byte(strings.Repeat(" ", width))
	}
	rowOf := func(v float64) int {
		if hi == lo {
			return height / 2
		}
		r := int(math.Round((v - lo) / (hi - lo) * float64(height-1)))
		return height - 1 - r
	}
	colOf := func(i int) int {
		if len(s.Points) == 1 {
			return 0
		}
		return i * (width - 1) / (len(s.Points) - 1)
	}

	if g.ShowLines && len(s.Points) > 1 {
		for i := 0; i < len(s.Points)-1; i++ {
			c0, c1 := colOf(i), colOf(i+1)
			v0, v1 := s.Points[i].Value, s.Points[i+1].Value
			for c := c0; c <= c1; c++ {
				frac := 0.0
				if c1 > c0 {
					frac = float64(c-c0) / float64(c1-c0)
				}
				grid[rowOf(v0+(v1-v0)*frac)][c] = '-'
			}
		}
	}
	for i, p := range s.Points {
		grid[rowOf(p.Value)][colOf(i)] = '*'
	}

	for i, row := range grid {
		label := ""
		switch i {
		case 0:
			label = formatValue(hi)
		case height - 1:
			label = formatValue(lo)
		}
		fmt.Fprintf(&b, "%*s │%s\n", axisWidth-2, label, strings.TrimRight(string(row), " "))
	}

	loc := g.Location
	if loc == nil {
		loc = time.UTC
	}
	first := s.Points[0].Time.In(loc).Format("15:04:05")
	last := s.Points[len(s.Points)-1].Time.In(loc).Format("15:04:05")
	gap := max(1, width-len(first)-len(last))
	fmt.Fprintf(&b, "%*s └%s\n", axisWidth-2, "", strings.Repeat("─", width))
	fmt.Fprintf(&b, "%*s  %s%s%s\n", axisWidth-2, "", first, strings.Repeat(" ", gap), last)
	return b.String()
}

func renderLogsText(rows []LogRow, opts LogsOptions) string {
	if len(rows) == 0 {
		return "(no log records)"
	}
	levelWidth := len("LEVEL")
	for _, r := range rows {
		levelWidth = max(levelWidth, len(r.Level))
	}

	var b strings.Builder
	for _, r := range rows {
		if opts.ShowTimestamp {
			t := r.Time
			if t == "" {
				t = strings.Repeat("-", len(LogTimeLayout))
			}
			b.WriteString(t)
			b.WriteString("  ")
		}
		fmt.Fprintf(&b, "%-*s  %s", levelWidth, strings.ToUpper(r.Level), r.Message)
		if opts.ShowLabels && r.Labels != "" {
			b.WriteString("  ")
			b.WriteString(r.Labels)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func renderTableText(fr *frame.Frame, opts TracesOptions) string {
	if fr == nil {
		return ""
	}
	cols := opts.visibleColumns(fr)
	if len(cols) == 0 {
		return ""
	}
	rows := fr.Rows()

	widths := make([]int, len(cols))
	cells := make([][]string, rows)
	for c, f := range cols {
		widths[c] = len(f.Display())
	}
	for r := 0; r < rows; r++ {
		cells[r] = make([]string, len(cols))
		for c, f := range cols {
			cell := truncate(cellText(f, r), maxCellWidth)
			cells[r][c] = cell
			widths[c] = max(widths[c], len(cell))
		}
	}

	var b strings.Builder
	writeRow := func(vals []string) {
		for c, v := range vals {
			if c > 0 {
				b.WriteString("  ")
			}
			if c == len(vals)-1 {
				b.WriteString(v)
			} else {
				fmt.Fprintf(&b, "%-*s", widths[c], v)
			}
		}
		b.WriteByte('\n')
	}

	header := make([]string, len(cols))
	rule := make([]string, len(cols))
	for c, f := range cols {
		header[c] = f.Display()
		rule[c] = strings.Repeat("-", widths[c])
	}
	writeRow(header)
	writeRow(rule)
	for _, row := range cells {
		writeRow(row)
	}
	return b.String()
}

// cellText formats one table cell. Durations in a "duration" column are
// milliseconds.
func cellText(f *frame.Field, i int) string {
	if f.Type == frame.FieldTypeNumber {
		if v, ok := f.Float(i); ok {
			if f.Name == "duration" {
				return formatMillis(v)
			}
			return formatValue(v)
		}
	}
	return f.String(i)
}

func formatValue(v float64) string {
	av := math.Abs(v)
	switch {
	case av >= 1e9:
		return fmt.Sprintf("%.1fG", v/1e9)
	case av >= 1e6:
		return fmt.Sprintf("%.1fM", v/1e6)
	case av >= 1e4:
		return fmt.Sprintf("%.1fK", v/1e3)
	case v == math.Trunc(v):
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

func formatMillis(ms float64) string {
	switch {
	case ms < 1:
		return fmt.Sprintf("%.0fµs", ms*1000)
	case ms < 1000:
		return fmt.Sprintf("%.0fms", ms)
	default:
		return fmt.Sprintf("%.1fs", ms/1000)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
