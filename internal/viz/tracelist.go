package viz

import (
	"fmt"
	"strings"

	"github.com/platformbuilds/mirador-mcp/internal/model"
)

// TraceList renders a compact table of trace search results, one line per
// trace: status, short id, root service/operation and duration.
func TraceList(traces []model.Trace) string {
	if len(traces) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Traces (%d)\n", len(traces))

	for _, t := range traces {
		shortID := t.TraceID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}

		label := rootLabel(t)
		if r := []rune(label); len(r) > 40 {
			label = string(r[:39]) + "…"
		}

		fmt.Fprintf(&b, "  %s %s  %-40s  %8s  %d spans\n",
			traceIcon(t), shortID, label, formatDuration(t.Duration), len(t.Spans))
	}

	return b.String()
}

// rootLabel is the earliest parentless span as service/operation.
func rootLabel(t model.Trace) string {
	var root *model.Span
	for i := range t.Spans {
		s := &t.Spans[i]
		if s.ParentID != "" {
			continue
		}
		if root == nil || s.StartTime < root.StartTime {
			root = s
		}
	}
	if root == nil {
		return strings.Join(t.Services, ",")
	}
	op := root.Operation
	if op == "" {
		op = root.Name
	}
	return root.Service + "/" + op
}

func traceIcon(t model.Trace) string {
	for i := range t.Spans {
		if spanFailed(&t.Spans[i]) {
			return "✗"
		}
	}
	return "✓"
}
