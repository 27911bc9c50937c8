package storage

import (
	"sort"
	"sync"

	"github.com/platformbuilds/mirador-mcp/internal/model"
)

// DefaultSpanCapacity is the span buffer size used when none is configured.
const DefaultSpanCapacity = 10_000

// TraceStore keeps the most recent spans and indexes them by trace id.
// Evicted spans leave the index with the buffer.
type TraceStore struct {
	spans      *RingBuffer[*model.Span]
	mu         sync.RWMutex
	traceIndex map[string][]*model.Span
	*notifier
}

// NewTraceStore creates a trace store holding up to capacity spans.
func NewTraceStore(capacity int) *TraceStore {
	return &TraceStore{
		spans:      NewRingBuffer[*model.Span](capacity),
		traceIndex: make(map[string][]*model.Span),
		notifier:   newNotifier(),
	}
}

// Add stores spans and notifies subscribers.
func (ts *TraceStore) Add(spans ...model.Span) {
	if len(spans) == 0 {
		return
	}
	ts.mu.Lock()
	for i := range spans {
		s := spans[i]
		if old, evicted := ts.spans.Add(&s); evicted {
			ts.unindex(old)
		}
		ts.traceIndex[s.TraceID] = append(ts.traceIndex[s.TraceID], &s)
	}
	ts.mu.Unlock()
	ts.notify()
}

// unindex drops an evicted span. Callers hold mu.
func (ts *TraceStore) unindex(old *model.Span) {
	list := ts.traceIndex[old.TraceID]
	for i, s := range list {
		if s == old {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(ts.traceIndex, old.TraceID)
		return
	}
	ts.traceIndex[old.TraceID] = list
}

// Trace assembles the stored spans of one trace.
func (ts *TraceStore) Trace(traceID string) (model.Trace, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	list := ts.traceIndex[traceID]
	if len(list) == 0 {
		return model.Trace{}, false
	}
	return model.NewTrace(traceID, copySpans(list)), true
}

// Traces returns every stored trace, most recent start first.
func (ts *TraceStore) Traces() []model.Trace {
	ts.mu.RLock()
	out := make([]model.Trace, 0, len(ts.traceIndex))
	for id, list := range ts.traceIndex {
		out = append(out, model.NewTrace(id, copySpans(list)))
	}
	ts.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime > out[j].StartTime
		}
		return out[i].TraceID < out[j].TraceID
	})
	return out
}

// Query returns the traces matching q, most recent first, capped at q.Limit.
func (ts *TraceStore) Query(q model.TracesQuery) ([]model.Trace, error) {
	f, err := newSpanFilter(q)
	if err != nil {
		return nil, err
	}
	var out []model.Trace
	for _, t := range ts.Traces() {
		if !f.matchTrace(t) {
			continue
		}
		out = append(out, t)
		if q.Limit != nil && *q.Limit > 0 && len(out) >= *q.Limit {
			break
		}
	}
	return out, nil
}

// Services lists the distinct service names, sorted.
func (ts *TraceStore) Services() []string {
	return distinct(ts.spans.GetAll(), func(s *model.Span) (string, bool) {
		return s.Service, s.Service != ""
	})
}

// Operations lists the distinct operations of a service, sorted.
func (ts *TraceStore) Operations(service string) []string {
	return distinct(ts.spans.GetAll(), func(s *model.Span) (string, bool) {
		op := s.Operation
		if op == "" {
			op = s.Name
		}
		return op, s.Service == service && op != ""
	})
}

// TraceStats describes the store fill level.
type TraceStats struct {
	SpanCount  int
	Capacity   int
	TraceCount int
	Received   uint64
}

func (ts *TraceStore) Stats() TraceStats {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return TraceStats{
		SpanCount:  ts.spans.Size(),
		Capacity:   ts.spans.Capacity(),
		TraceCount: len(ts.traceIndex),
		Received:   ts.spans.Total(),
	}
}

// Clear removes all spans.
func (ts *TraceStore) Clear() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.spans.Clear()
	ts.traceIndex = make(map[string][]*model.Span)
}

// ServiceGraph derives caller -> callee edges from parent/child spans that
// cross a service boundary. Calls are bucketed by the callee start time into
// windows of step milliseconds over [start, end]; a nil step yields one
// window. A non-zero bound is used as given and rates divide by the window
// it defines. A zero bound is unbounded and takes the observed extent of the
// stored spans.
func (ts *TraceStore) ServiceGraph(start, end int64, step *int64) model.ServiceGraphTimeWindowResponse {
	var calls []graphCall
	lo, hi := int64(0), int64(0)
	observed := false
	ts.mu.RLock()
	for _, list := range ts.traceIndex {
		byID := make(map[string]*model.Span, len(list))
		for _, s := range list {
			byID[s.ID] = s
		}
		for _, s := range list {
			if !observed || s.StartTime < lo {
				lo = s.StartTime
			}
			if !observed || s.StartTime+s.Duration > hi {
				hi = s.StartTime + s.Duration
			}
			observed = true
			parent, ok := byID[s.ParentID]
			if !ok || parent.Service == s.Service || parent.Service == "" || s.Service == "" {
				continue
			}
			calls = append(calls, graphCall{
				source: parent.Service,
				target: s.Service,
				at:     s.StartTime,
				dur:    float64(max(s.Duration, 0)),
				failed: s.Failed(),
			})
		}
	}
	ts.mu.RUnlock()

	if start == 0 {
		start = lo
	}
	if end == 0 {
		end = hi
	}
	resp := model.ServiceGraphTimeWindowResponse{Status: "success"}
	if end < start {
		return resp
	}

	width := end - start
	if step != nil && *step > 0 {
		width = *step
	}
	for ws := start; ; ws += width {
		we := min(ws+width, end)
		resp.Windows = append(resp.Windows, windowEdges(ws, we, we >= end, calls))
		if we >= end || width == 0 {
			break
		}
	}
	return resp
}

// graphCall is one cross-service parent/child span pair.
type graphCall struct {
	source, target string
	at             int64
	dur            float64
	failed         bool
}

// windowEdges aggregates the calls in [start, end). The last window also
// takes calls at end.
func windowEdges(start, end int64, last bool, calls []graphCall) model.ServiceGraphWindow {
	type agg struct {
		durs   []float64
		failed int
	}
	win := model.ServiceGraphWindow{Start: start, End: end, Edges: []model.ServiceGraphEdge{}}
	byEdge := map[[2]string]*agg{}
	var order [][2]string
	for _, c := range calls {
		if c.at < start || c.at > end || (c.at == end && !last) {
			continue
		}
		key := [2]string{c.source, c.target}
		a, ok := byEdge[key]
		if !ok {
			a = &agg{}
			byEdge[key] = a
			order = append(order, key)
		}
		a.durs = append(a.durs, c.dur)
		if c.failed {
			a.failed++
		}
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i][0] != order[j][0] {
			return order[i][0] < order[j][0]
		}
		return order[i][1] < order[j][1]
	})

	seconds := float64(end-start) / 1000
	for _, key := range order {
		a := byEdge[key]
		sum := summarize(a.durs)
		n := float64(len(a.durs))
		rate := n
		if seconds > 0 {
			rate = n / seconds
		}
		win.Edges = append(win.Edges, model.ServiceGraphEdge{
			Source: key[0],
			Target: key[1],
			Latency: model.ServiceGraphLatency{
				AvgMs: sum.avg,
				P50Ms: model.Float64(sum.p50),
				P90Ms: model.Float64(sum.p90),
				P95Ms: model.Float64(sum.p95),
				P99Ms: model.Float64(sum.p99),
			},
			ErrorRate:   float64(a.failed) / n,
			RequestRate: rate,
		})
	}
	return win
}

func copySpans(list []*model.Span) []model.Span {
	out := make([]model.Span, len(list))
	for i, s := range list {
		out[i] = *s
	}
	return out
}

func distinct(spans []*model.Span, key func(*model.Span) (string, bool)) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range spans {
		k, ok := key(s)
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
