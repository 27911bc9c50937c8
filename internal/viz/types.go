package viz

import "github.com/platformbuilds/mirador-mcp/internal/model"

// ServiceStats describes one service for the service summary bar chart.
type ServiceStats struct {
	Name       string
	SpanCount  int
	ErrorCount int
}

// CaptureStats describes the fill level of the local capture buffers.
type CaptureStats struct {
	SpanCount    int
	SpanCapacity int
	LogCount     int
	LogCapacity  int
	TraceCount   int
}

// ErrorTag and StatusTag are the span tags that mark a failed span.
const (
	ErrorTag  = model.TagError
	StatusTag = model.TagStatusCode
)

func spanFailed(s *model.Span) bool { return s.Failed() }

// ServicesFromTraces counts spans and failed spans per service, ordered by
// span count.
func ServicesFromTraces(traces []model.Trace) []ServiceStats {
	idx := map[string]int{}
	var out []ServiceStats
	for _, t := range traces {
		for i := range t.Spans {
			s := &t.Spans[i]
			j, ok := idx[s.Service]
			if !ok {
				j = len(out)
				idx[s.Service] = j
				out = append(out, ServiceStats{Name: s.Service})
			}
			out[j].SpanCount++
			if spanFailed(s) {
				out[j].ErrorCount++
			}
		}
	}
	sortServices(out)
	return out
}
