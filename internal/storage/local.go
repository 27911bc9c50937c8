package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platformbuilds/mirador-mcp/internal/client"
	"github.com/platformbuilds/mirador-mcp/internal/model"
)

// ErrUnsupported is returned by LocalAPI for operations that need a Mirador
// Core backend, such as metrics and schema management.
var ErrUnsupported = errors.New("not available from local capture")

// LocalAPI answers the trace, log and service graph parts of client.API
// from locally captured data.
type LocalAPI struct {
	Traces  *TraceStore
	Logs    *LogTail
	Version string
	started time.Time
}

var _ client.API = (*LocalAPI)(nil)

// NewLocalAPI wraps the stores. Either may be nil.
func NewLocalAPI(traces *TraceStore, logs *LogTail, version string) *LocalAPI {
	if traces == nil {
		traces = NewTraceStore(DefaultSpanCapacity)
	}
	if logs == nil {
		logs = NewLogTail(DefaultLogCapacity)
	}
	return &LocalAPI{Traces: traces, Logs: logs, Version: version, started: time.Now()}
}

func unsupported(op string) error {
	return fmt.Errorf("%s: %w", op, ErrUnsupported)
}

func (l *LocalAPI) Health(ctx context.Context) (*model.HealthResponse, error) {
	now := time.Now()
	return &model.HealthResponse{
		BaseResponse: model.BaseResponse{Status: "healthy"},
		Version:      l.Version,
		Uptime:       now.Sub(l.started).Seconds(),
		Timestamp:    now.UTC().Format(time.RFC3339),
	}, nil
}

func (l *LocalAPI) Readiness(ctx context.Context) (*model.ReadinessResponse, error) {
	ts, ls := l.Traces.Stats(), l.Logs.Stats()
	return &model.ReadinessResponse{
		BaseResponse: model.BaseResponse{Status: "ok"},
		Ready:        true,
		Details: map[string]model.ComponentStatus{
			"traces": {Status: "ok", Message: fmt.Sprintf("%d spans in %d traces", ts.SpanCount, ts.TraceCount)},
			"logs":   {Status: "ok", Message: fmt.Sprintf("%d entries", ls.LogCount)},
		},
	}, nil
}

func (l *LocalAPI) QueryLogs(ctx context.Context, q model.LogsQuery) (*model.LogsQueryResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return l.Logs.Query(q)
}

// StreamLogs delivers the buffered matches oldest first. With TailMode it
// then follows new entries until ctx is cancelled or MaxLines is reached.
func (l *LocalAPI) StreamLogs(ctx context.Context, q model.LogsStreamQuery, sink client.LogSink) (int, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	if sink == nil {
		return 0, errors.New("stream logs: nil sink")
	}
	m, err := CompileLogQuery(q.Query)
	if err != nil {
		return 0, err
	}
	limit := 0
	if q.MaxLines != nil {
		limit = *q.MaxLines
	}

	// subscribe before reading the backlog so nothing slips between them
	signal, unsubscribe := l.Logs.Subscribe()
	defer unsubscribe()

	n := 0
	deliver := func(entries []model.LogEntry) (bool, error) {
		for _, e := range entries {
			if !inRange(entryMillis(e), q.Range()) || !m(e) {
				continue
			}
			if err := sink(e); err != nil {
				return true, err
			}
			n++
			if limit > 0 && n >= limit {
				return true, nil
			}
		}
		return false, nil
	}

	backlog, seq := l.Logs.Since(0)
	if done, err := deliver(backlog); done || err != nil {
		return n, err
	}
	if !q.TailMode {
		return n, nil
	}

	for {
		select {
		case <-ctx.Done():
			return n, nil
		case <-signal:
			var fresh []model.LogEntry
			fresh, seq = l.Logs.Since(seq)
			if done, err := deliver(fresh); done || err != nil {
				return n, err
			}
		}
	}
}

func (l *LocalAPI) LogsHistogram(ctx context.Context, q model.LogsQuery) (*model.LogsHistogramResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return l.Logs.Histogram(q)
}

func (l *LocalAPI) LogsFacets(ctx context.Context, q model.LogsQuery) (*model.LogsFacetResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return l.Logs.Facets(q)
}

func (l *LocalAPI) QueryMetrics(ctx context.Context, q model.MetricsQuery) (*model.MetricsQueryResponse, error) {
	return nil, unsupported("query metrics")
}

func (l *LocalAPI) MetricNames(ctx context.Context) ([]string, error) {
	return nil, unsupported("metric names")
}

func (l *LocalAPI) MetricLabels(ctx context.Context, metric string) (map[string][]string, error) {
	return nil, unsupported("metric labels")
}

func (l *LocalAPI) QueryTraces(ctx context.Context, q model.TracesQuery) (*model.TracesQueryResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	traces, err := l.Traces.Query(q)
	if err != nil {
		return nil, err
	}
	if traces == nil {
		traces = []model.Trace{}
	}
	return &model.TracesQueryResponse{
		BaseResponse: model.BaseResponse{Status: "success"},
		Traces:       traces,
		Total:        int64(len(traces)),
	}, nil
}

func (l *LocalAPI) TraceByID(ctx context.Context, q model.TracesByIdQuery) (*model.TracesQueryResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	t, ok := l.Traces.Trace(q.TraceID)
	if !ok {
		return nil, &client.NotFoundError{Path: "/api/v1/traces/" + q.TraceID}
	}
	return &model.TracesQueryResponse{
		BaseResponse: model.BaseResponse{Status: "success"},
		Traces:       []model.Trace{t},
		Total:        1,
	}, nil
}

func (l *LocalAPI) TraceServices(ctx context.Context) ([]string, error) {
	return l.Traces.Services(), nil
}

func (l *LocalAPI) TraceOperations(ctx context.Context, service string) ([]string, error) {
	return l.Traces.Operations(service), nil
}

func (l *LocalAPI) SchemaVersions(ctx context.Context, schemaType, name string) (*model.SchemaVersionResponse, error) {
	return nil, unsupported("schema versions")
}

func (l *LocalAPI) CreateSchema(ctx context.Context, schemaType string, item model.SchemaItem) (*model.SchemaResponse, error) {
	return nil, unsupported("create schema")
}

func (l *LocalAPI) UpdateSchema(ctx context.Context, schemaType, name string, item model.SchemaItem) (*model.SchemaResponse, error) {
	return nil, unsupported("update schema")
}

func (l *LocalAPI) DeleteSchema(ctx context.Context, schemaType, name string) error {
	return unsupported("delete schema")
}

func (l *LocalAPI) BulkCreateSchema(ctx context.Context, schemaType string, req model.BulkSchemaRequest) (*model.SchemaResponse, error) {
	return nil, unsupported("bulk create schema")
}

// ServiceGraph collapses the windowed graph over [Start, End] into nodes
// and edges. Latency percentiles come from the captured span durations.
func (l *LocalAPI) ServiceGraph(ctx context.Context, req model.ServiceGraphRequest) (*model.ServiceGraphResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	windows := l.Traces.ServiceGraph(req.Start, req.End, nil)

	resp := &model.ServiceGraphResponse{
		BaseResponse: model.BaseResponse{Status: "success"},
		Nodes:        []model.ServiceNode{},
		Edges:        []model.ServiceEdge{},
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	seen := map[string]bool{}
	addNode := func(name string) {
		if !seen[name] {
			seen[name] = true
			resp.Nodes = append(resp.Nodes, model.ServiceNode{ID: name, Name: name, Type: "service"})
		}
	}
	for _, w := range windows.Windows {
		for _, e := range w.Edges {
			if !req.Includes(e.Source, e.Target) {
				continue
			}
			addNode(e.Source)
			addNode(e.Target)
			resp.Edges = append(resp.Edges, model.ServiceEdge{
				Source: e.Source,
				Target: e.Target,
				Metadata: &model.EdgeMetadata{
					RequestRate: model.Float64(e.RequestRate),
					ErrorRate:   model.Float64(e.ErrorRate),
					Latency: &model.EdgeLatency{
						P50: e.Latency.P50Ms,
						P90: e.Latency.P90Ms,
						P99: e.Latency.P99Ms,
					},
				},
			})
		}
	}
	return resp, nil
}
