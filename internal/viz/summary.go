package viz

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/platformbuilds/mirador-mcp/internal/model"
)

// CaptureOverview renders fill-level bars for the local capture buffers.
func CaptureOverview(stats CaptureStats) string {
	var b strings.Builder

	b.WriteString("Capture Buffers\n")
	writeBar(&b, "Spans", stats.SpanCount, stats.SpanCapacity)
	writeBar(&b, "Logs", stats.LogCount, stats.LogCapacity)
	fmt.Fprintf(&b, "  Traces: %s\n", formatCount(stats.TraceCount))

	return b.String()
}

func writeBar(b *strings.Builder, label string, count, capacity int) {
	barWidth := 20
	filled := 0
	if capacity > 0 {
		filled = min(count*barWidth/capacity, barWidth)
	}
	bar := strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)
	fmt.Fprintf(b, "  %-8s [%s]  %s / %s\n", label, bar, formatCount(count), formatCount(capacity))
}

// ServiceSummary renders a horizontal bar chart of services.
// Width controls total line width; 0 uses default (80).
func ServiceSummary(services []ServiceStats, width int) string {
	if len(services) == 0 {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	totalSpans, maxCount, maxNameLen := 0, 0, 0
	for _, s := range services {
		totalSpans += s.SpanCount
		maxCount = max(maxCount, s.SpanCount)
		maxNameLen = max(maxNameLen, len(s.Name))
	}
	maxNameLen = min(maxNameLen, 20, max(width/4, 8))

	var b strings.Builder
	fmt.Fprintf(&b, "Services (%d active, %d spans)\n", len(services), totalSpans)

	barBudget := 20
	for _, s := range services {
		name := s.Name
		if len(name) > maxNameLen {
			name = name[:maxNameLen-1] + "…"
		}

		barLen := 0
		if maxCount > 0 {
			barLen = s.SpanCount * barBudget / maxCount
		}
		if barLen < 1 && s.SpanCount > 0 {
			barLen = 1
		}

		errStr := ""
		if s.ErrorCount > 0 {
			errStr = fmt.Sprintf(" (%d errors)", s.ErrorCount)
		}

		fmt.Fprintf(&b, "  %-*s  %s%s  %d spans%s\n", maxNameLen, name,
			strings.Repeat("#", barLen), strings.Repeat(" ", barBudget-barLen), s.SpanCount, errStr)
	}

	return b.String()
}

func sortServices(s []ServiceStats) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].SpanCount != s[j].SpanCount {
			return s[i].SpanCount > s[j].SpanCount
		}
		return s[i].Name < s[j].Name
	})
}

// ServiceGraph renders the edges of a service graph, one caller -> callee
// pair per line, with the rates and latency percentiles reported on each.
func ServiceGraph(g *model.ServiceGraphResponse) string {
	if g == nil || len(g.Edges) == 0 {
		return "Service graph: no edges\n"
	}

	edges := append([]model.ServiceEdge(nil), g.Edges...)
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})

	pairWidth := 0
	for _, e := range edges {
		pairWidth = max(pairWidth, len(e.Source)+len(e.Target)+4)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Service graph (%d services, %d edges)\n", len(g.Nodes), len(edges))
	for _, e := range edges {
		pair := e.Source + " -> " + e.Target
		fmt.Fprintf(&b, "  %-*s", pairWidth, pair)
		m := e.Metadata
		if m == nil {
			b.WriteByte('\n')
			continue
		}
		if m.RequestRate != nil {
			fmt.Fprintf(&b, "  %.2f req/s", *m.RequestRate)
		}
		if m.ErrorRate != nil {
			fmt.Fprintf(&b, "  %.1f%% err", *m.ErrorRate*100)
		}
		if l := m.Latency; l != nil {
			for _, p := range []struct {
				name string
				v    *float64
			}{{"p50", l.P50}, {"p90", l.P90}, {"p99", l.P99}} {
				if p.v != nil {
					fmt.Fprintf(&b, "  %s=%s", p.name, formatMillis(*p.v))
				}
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// ServiceGraphWindows renders windowed edges with the latency statistic
// selected by agg. Missing percentiles fall back to the average.
func ServiceGraphWindows(w *model.ServiceGraphTimeWindowResponse, agg model.Aggregation) string {
	if w == nil || len(w.Windows) == 0 {
		return "Service graph: no windows\n"
	}
	if agg == "" {
		agg = model.AggAvg
	}

	var b strings.Builder
	for i, win := range w.Windows {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Window %s .. %s (%d edges)\n",
			time.UnixMilli(win.Start).UTC().Format(time.RFC3339),
			time.UnixMilli(win.End).UTC().Format(time.RFC3339),
			len(win.Edges))
		for _, e := range win.Edges {
			fmt.Fprintf(&b, "  %s -> %s  %.2f req/s  %.1f%% err  %s=%s\n",
				e.Source, e.Target, e.RequestRate, e.ErrorRate*100, agg, formatMillis(e.Latency.Stat(agg)))
		}
	}
	return b.String()
}

// Health renders liveness and, when available, per-component readiness.
func Health(h *model.HealthResponse, r *model.ReadinessResponse) string {
	var b strings.Builder
	if h != nil {
		status := h.Status
		if status == "" {
			status = "ok"
		}
		fmt.Fprintf(&b, "Mirador Core %s: %s", orDash(h.Version), status)
		if h.Uptime > 0 {
			fmt.Fprintf(&b, " (up %s)", (time.Duration(h.Uptime) * time.Second).String())
		}
		b.WriteByte('\n')
	}
	if r == nil {
		return b.String()
	}

	ready := "not ready"
	if r.Ready {
		ready = "ready"
	}
	fmt.Fprintf(&b, "Readiness: %s\n", ready)

	names := make([]string, 0, len(r.Details))
	width := 0
	for name := range r.Details {
		names = append(names, name)
		width = max(width, len(name))
	}
	sort.Strings(names)
	for _, name := range names {
		c := r.Details[name]
		fmt.Fprintf(&b, "  %-*s  %s", width, name, c.Status)
		if c.Message != "" {
			fmt.Fprintf(&b, "  %s", c.Message)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatMillis(ms float64) string {
	if ms < 1000 {
		return fmt.Sprintf("%.1fms", ms)
	}
	return fmt.Sprintf("%.2fs", ms/1000)
}

func formatCount(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1_000_000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1_000_000, (n%1_000_000)/1000, n%1000)
}
