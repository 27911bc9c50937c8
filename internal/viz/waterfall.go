// Package viz renders traces, service graphs and health reports as plain
// text for the CLI and MCP tool results.
package viz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/platformbuilds/mirador-mcp/internal/model"
)

const (
	maxSpansPerTrace = 50
	maxTraces        = 5
	defaultBarWidth  = 20
)

// Waterfall renders an ASCII waterfall for each trace, earliest first.
// Width controls the total line width; 0 uses a sensible default (80).
func Waterfall(traces []model.Trace, width int) string {
	if len(traces) == 0 {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	ordered := make([]model.Trace, 0, len(traces))
	for _, t := range traces {
		if len(t.Spans) > 0 {
			ordered = append(ordered, t)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return earliestStart(ordered[i].Spans) < earliestStart(ordered[j].Spans)
	})

	overflow := 0
	if len(ordered) > maxTraces {
		overflow = len(ordered) - maxTraces
		ordered = ordered[:maxTraces]
	}

	var b strings.Builder
	for i, t := range ordered {
		if i > 0 {
			b.WriteByte('\n')
		}
		renderTrace(&b, t, width)
	}
	if overflow > 0 {
		fmt.Fprintf(&b, "\n... +%d more traces\n", overflow)
	}
	return b.String()
}

// TraceWaterfall renders a single trace.
func TraceWaterfall(t model.Trace, width int) string {
	return Waterfall([]model.Trace{t}, width)
}

func renderTrace(b *strings.Builder, t model.Trace, width int) {
	spans := append([]model.Span(nil), t.Spans...)
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].StartTime < spans[j].StartTime
	})

	minStart := spans[0].StartTime
	maxEnd := minStart
	for _, s := range spans {
		if end := spanEnd(s); end > maxEnd {
			maxEnd = end
		}
	}
	totalDur := maxEnd - minStart

	shortID := t.TraceID
	if len(shortID) > 6 {
		shortID = shortID[:6]
	}
	fmt.Fprintf(b, "Trace %s (%d spans, %s)\n", shortID, len(spans), formatDuration(totalDur))

	order, err := flatten(t.TraceID, spans)
	if err != nil {
		fmt.Fprintf(b, "  ! %v\n", err)
	}

	spanOverflow := 0
	if len(order) > maxSpansPerTrace {
		spanOverflow = len(order) - maxSpansPerTrace
		order = order[:maxSpansPerTrace]
	}

	maxDurErrLen := 0
	for _, entry := range order {
		n := len(formatDuration(spanEnd(*entry.span) - entry.span.StartTime))
		if spanFailed(entry.span) {
			n += len(errMarker)
		}
		maxDurErrLen = max(maxDurErrLen, n)
	}

	for _, entry := range order {
		renderSpanRow(b, entry, minStart, totalDur, width, maxDurErrLen)
	}
	if spanOverflow > 0 {
		fmt.Fprintf(b, "  ... +%d more spans\n", spanOverflow)
	}
}

const errMarker = " !! ERR"

type treeEntry struct {
	span   *model.Span
	depth  int
	isLast []bool // at each depth level, whether this node is the last child
}

// flatten walks the span tree depth first. A malformed trace still renders,
// flat and in start order, alongside the tree error.
func flatten(traceID string, spans []model.Span) ([]treeEntry, error) {
	tree, err := model.BuildSpanTree(traceID, spans)
	if err != nil {
		out := make([]treeEntry, len(spans))
		for i := range spans {
			out[i] = treeEntry{span: &spans[i], isLast: []bool{i == len(spans)-1}}
		}
		return out, err
	}

	var out []treeEntry
	for ri, root := range tree.Roots {
		walkTree(&out, root, 0, []bool{ri == len(tree.Roots)-1})
	}
	return out, nil
}

func walkTree(out *[]treeEntry, node *model.SpanNode, depth int, isLast []bool) {
	*out = append(*out, treeEntry{span: node.Span, depth: depth, isLast: isLast})
	for ci, child := range node.Children {
		childIsLast := append(append([]bool{}, isLast...), ci == len(node.Children)-1)
		walkTree(out, child, depth+1, childIsLast)
	}
}

func renderSpanRow(b *strings.Builder, entry treeEntry, minStart, totalDur int64, width int, maxDurErrLen int) {
	barWidth := defaultBarWidth

	// Tree-drawing characters are multi-byte UTF-8 but occupy one column.
	var prefix strings.Builder
	prefixCols := 1
	prefix.WriteString(" ")
	for d := 0; d < entry.depth; d++ {
		if d < len(entry.isLast)-1 {
			if entry.isLast[d] {
				prefix.WriteString("  ")
			} else {
				prefix.WriteString("│ ")
			}
			prefixCols += 2
		}
	}
	if entry.depth > 0 {
		if entry.isLast[len(entry.isLast)-1] {
			prefix.WriteString("└─ ")
		} else {
			prefix.WriteString("├─ ")
		}
		prefixCols += 3
	}

	op := entry.span.Operation
	if op == "" {
		op = entry.span.Name
	}
	label := entry.span.Service + "." + op

	errSuffix := ""
	if spanFailed(entry.span) {
		errSuffix = errMarker
	}

	start := entry.span.StartTime
	end := spanEnd(*entry.span)
	durStr := formatDuration(end - start)

	// Layout: prefix + label + " [" + bar + "] " + durErr
	fixedCols := prefixCols + 2 + barWidth + 2 + maxDurErrLen
	labelBudget := max(width-fixedCols, 8)
	if r := []rune(label); len(r) > labelBudget {
		label = string(r[:labelBudget-1]) + "…"
	}
	paddedLabel := label + strings.Repeat(" ", max(0, labelBudget-len([]rune(label))))

	bar := buildBar(start, end, minStart, totalDur, barWidth)

	durErrStr := durStr + errSuffix
	paddedDurErr := durErrStr + strings.Repeat(" ", max(0, maxDurErrLen-len(durErrStr)))

	fmt.Fprintf(b, "%s%s [%s] %s\n", prefix.String(), paddedLabel, bar, paddedDurErr)
}

func buildBar(start, end, minStart, totalDur int64, barWidth int) string {
	if totalDur <= 0 {
		return strings.Repeat("#", barWidth)
	}

	startPos := int((start - minStart) * int64(barWidth) / totalDur)
	endPos := int((end - minStart) * int64(barWidth) / totalDur)
	startPos = min(startPos, barWidth-1)
	endPos = min(max(endPos, startPos+1), barWidth)

	bar := make([]byte, barWidth)
	for i := range bar {
		if i >= startPos && i < endPos {
			bar[i] = '#'
		} else {
			bar[i] = '.'
		}
	}
	return string(bar)
}

// spanEnd clamps negative durations to zero.
func spanEnd(s model.Span) int64 {
	return s.StartTime + max(s.Duration, 0)
}

func earliestStart(spans []model.Span) int64 {
	if len(spans) == 0 {
		return 0
	}
	m := spans[0].StartTime
	for _, s := range spans[1:] {
		m = min(m, s.StartTime)
	}
	return m
}

// formatDuration formats a millisecond duration.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}
