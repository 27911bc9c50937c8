package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/platformbuilds/mirador-mcp/internal/model"
)

// DefaultLogCapacity is the log buffer size used when none is configured.
const DefaultLogCapacity = 50_000

// DefaultHistogramBucket is the histogram bucket width when the query has
// no step.
const DefaultHistogramBucket = time.Minute

type tailEntry struct {
	seq   uint64
	entry model.LogEntry
}

// LogTail keeps the most recent log entries. Every entry gets a sequence
// number so followers can ask for what they have not seen yet.
type LogTail struct {
	entries *RingBuffer[tailEntry]
	mu      sync.Mutex
	seq     uint64
	*notifier
}

// NewLogTail creates a tail holding up to capacity entries.
func NewLogTail(capacity int) *LogTail {
	return &LogTail{
		entries:  NewRingBuffer[tailEntry](capacity),
		notifier: newNotifier(),
	}
}

// Append stores one entry. Its signature matches client.LogSink.
func (t *LogTail) Append(e model.LogEntry) error {
	t.AppendAll([]model.LogEntry{e})
	return nil
}

// AppendAll stores entries in order and notifies subscribers once.
func (t *LogTail) AppendAll(entries []model.LogEntry) {
	if len(entries) == 0 {
		return
	}
	t.mu.Lock()
	for _, e := range entries {
		t.seq++
		t.entries.Add(tailEntry{seq: t.seq, entry: e})
	}
	t.mu.Unlock()
	t.notify()
}

// Entries returns every buffered entry, oldest first.
func (t *LogTail) Entries() []model.LogEntry {
	all := t.entries.GetAll()
	out := make([]model.LogEntry, len(all))
	for i, te := range all {
		out[i] = te.entry
	}
	return out
}

// Since returns the buffered entries appended after sequence number after,
// and the sequence number of the newest entry.
func (t *LogTail) Since(after uint64) ([]model.LogEntry, uint64) {
	var out []model.LogEntry
	last := after
	for _, te := range t.entries.GetAll() {
		if te.seq <= after {
			continue
		}
		out = append(out, te.entry)
		last = te.seq
	}
	return out, last
}

// Seq returns the sequence number of the newest entry.
func (t *LogTail) Seq() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seq
}

// match returns the entries matching q, oldest first.
func (t *LogTail) match(query string, rng *model.TimeRange) ([]model.LogEntry, error) {
	m, err := CompileLogQuery(query)
	if err != nil {
		return nil, err
	}
	var out []model.LogEntry
	for _, e := range t.Entries() {
		if rng != nil && !inRange(entryMillis(e), rng) {
			continue
		}
		if m(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Query searches the buffer. Hits are newest first unless q asks for asc;
// Total counts every match before the limit.
func (t *LogTail) Query(q model.LogsQuery) (*model.LogsQueryResponse, error) {
	hits, err := t.match(q.Query, q.Range())
	if err != nil {
		return nil, err
	}
	total := int64(len(hits))

	sortField := q.OrderBy
	if sortField == "" {
		sortField = "timestamp"
	}
	asc := q.OrderDirection == model.OrderAsc
	sort.SliceStable(hits, func(i, j int) bool {
		less := compareField(hits[i], hits[j], sortField)
		if asc {
			return less < 0
		}
		return less > 0
	})

	if q.Limit != nil && *q.Limit > 0 && len(hits) > *q.Limit {
		hits = hits[:*q.Limit]
	}
	if len(q.Fields) > 0 {
		for i := range hits {
			hits[i] = project(hits[i], q.Fields)
		}
	}
	return &model.LogsQueryResponse{
		BaseResponse: model.BaseResponse{Status: "success"},
		Hits:         hits,
		Total:        total,
	}, nil
}

func compareField(a, b model.LogEntry, field string) int {
	if field == "timestamp" {
		ta, tb := entryMillis(a), entryMillis(b)
		switch {
		case ta < tb:
			return -1
		case ta > tb:
			return 1
		}
		return 0
	}
	va, vb := a.Fields.Get(field), b.Fields.Get(field)
	if va.Kind == model.KindNumber && vb.Kind == model.KindNumber {
		switch {
		case va.Num < vb.Num:
			return -1
		case va.Num > vb.Num:
			return 1
		}
		return 0
	}
	sa, sb := va.String(), vb.String()
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

func project(e model.LogEntry, fields []string) model.LogEntry {
	out := model.LogEntry{Timestamp: e.Timestamp, Fields: make(model.Fields, len(fields))}
	for _, f := range fields {
		if v, ok := e.Fields[f]; ok {
			out.Fields[f] = v
		}
	}
	return out
}

// Histogram counts matches per time bucket. The bucket width is the query
// step in milliseconds, DefaultHistogramBucket otherwise. Entries without a
// parseable timestamp are not counted.
func (t *LogTail) Histogram(q model.LogsQuery) (*model.LogsHistogramResponse, error) {
	hits, err := t.match(q.Query, q.Range())
	if err != nil {
		return nil, err
	}
	width := DefaultHistogramBucket.Milliseconds()
	if r := q.Range(); r != nil && r.Step != nil && *r.Step > 0 {
		width = *r.Step
	}

	counts := map[int64]int64{}
	for _, e := range hits {
		ts, ok := e.Time()
		if !ok {
			continue
		}
		ms := ts.UnixMilli()
		counts[ms-mod(ms, width)]++
	}
	keys := make([]int64, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	resp := &model.LogsHistogramResponse{
		BaseResponse: model.BaseResponse{Status: "success"},
		Buckets:      make([]model.HistogramBucket, 0, len(keys)),
	}
	for _, k := range keys {
		resp.Buckets = append(resp.Buckets, model.HistogramBucket{
			Timestamp: time.UnixMilli(k).UTC().Format(time.RFC3339),
			Count:     counts[k],
		})
	}
	return resp, nil
}

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// Facets counts distinct values of each field in q.Fields ("level" when
// empty) across the matches, most frequent first.
func (t *LogTail) Facets(q model.LogsQuery) (*model.LogsFacetResponse, error) {
	hits, err := t.match(q.Query, q.Range())
	if err != nil {
		return nil, err
	}
	fields := q.Fields
	if len(fields) == 0 {
		fields = []string{"level"}
	}

	resp := &model.LogsFacetResponse{
		BaseResponse: model.BaseResponse{Status: "success"},
		Facets:       make(map[string][]model.FacetValue, len(fields)),
	}
	for _, f := range fields {
		idx := map[string]int{}
		var values []model.FacetValue
		for _, e := range hits {
			v := e.Fields.Get(f)
			if f == "level" {
				v = model.StringValue(e.Level())
			}
			if v.IsNull() {
				continue
			}
			key := v.String()
			i, ok := idx[key]
			if !ok {
				i = len(values)
				idx[key] = i
				values = append(values, model.FacetValue{Value: v})
			}
			values[i].Count++
		}
		sort.SliceStable(values, func(i, j int) bool {
			if values[i].Count != values[j].Count {
				return values[i].Count > values[j].Count
			}
			return values[i].Value.String() < values[j].Value.String()
		})
		if values == nil {
			values = []model.FacetValue{}
		}
		resp.Facets[f] = values
	}
	return resp, nil
}

// LogStats describes the tail fill level.
type LogStats struct {
	LogCount int
	Capacity int
	Received uint64
	Levels   map[string]int
}

func (t *LogTail) Stats() LogStats {
	levels := map[string]int{}
	for _, e := range t.Entries() {
		levels[e.Level()]++
	}
	return LogStats{
		LogCount: t.entries.Size(),
		Capacity: t.entries.Capacity(),
		Received: t.entries.Total(),
		Levels:   levels,
	}
}

// Clear removes all entries. Sequence numbers keep increasing.
func (t *LogTail) Clear() {
	t.entries.Clear()
}
