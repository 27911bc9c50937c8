package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeRangeValidate(t *testing.T) {
	tests := []struct {
		name    string
		tr      TimeRange
		wantErr bool
	}{
		{"ordered", TimeRange{Start: 1, End: 2}, false},
		{"equal", TimeRange{Start: 5, End: 5}, false},
		{"reversed", TimeRange{Start: 10, End: 2}, true},
		{"open end", TimeRange{Start: 10}, false},
		{"positive step", TimeRange{Start: 1, End: 2, Step: Int64(15)}, false},
		{"zero step", TimeRange{Start: 1, End: 2, Step: Int64(0)}, true},
		{"negative step", TimeRange{Start: 1, End: 2, Step: Int64(-1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tr.Validate()
			if tt.wantErr {
				var ve *ValidationError
				assert.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     interface{ Validate() error }
		wantErr string
	}{
		{"logs ok", LogsQuery{Query: "error", QueryLanguage: LanguageLucene, OrderDirection: OrderDesc}, ""},
		{"logs empty query", LogsQuery{}, "query"},
		{"logs bad language", LogsQuery{Query: "x", QueryLanguage: "sql"}, "queryLanguage"},
		{"logs bad direction", LogsQuery{Query: "x", OrderDirection: "up"}, "orderDirection"},
		{"logs bad range", LogsQuery{Query: "x", BaseQuery: BaseQuery{TimeRange: &TimeRange{Start: 9, End: 1}}}, "timeRange"},
		{"stream negative max", LogsStreamQuery{Query: "x", MaxLines: Int(-1)}, "maxLines"},
		{"metrics zero step", MetricsQuery{Query: "up", Step: Int64(0)}, "step"},
		{"traces durations", TracesQuery{MinDuration: "2s", MaxDuration: "1s"}, "minDuration"},
		{"traces bad duration", TracesQuery{MinDuration: "soon"}, "minDuration"},
		{"trace id required", TracesByIdQuery{}, "traceId"},
		{"bulk empty", BulkSchemaRequest{DryRun: true}, "items"},
		{"graph bad agg", ServiceGraphRequest{Start: 1, End: 2, Aggregation: "p42"}, "aggregation"},
		{"graph ok", ServiceGraphRequest{Start: 1, End: 2, Aggregation: AggP95}, ""},
		{"metricsql reversed", MetricsQLFunctionRequest{Query: "rate(x)", Start: Int64(5), End: Int64(1)}, "start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCapabilities(t *testing.T) {
	tr := &TimeRange{Start: 1, End: 2}
	queries := []any{
		LogsQuery{BaseQuery: BaseQuery{TenantScope: TenantScope{TenantID: "acme"}, TimeRange: tr}},
		LogsStreamQuery{BaseQuery: BaseQuery{TenantScope: TenantScope{TenantID: "acme"}, TimeRange: tr}},
		MetricsQuery{BaseQuery: BaseQuery{TenantScope: TenantScope{TenantID: "acme"}, TimeRange: tr}},
		TracesQuery{BaseQuery: BaseQuery{TenantScope: TenantScope{TenantID: "acme"}, TimeRange: tr}},
		TracesByIdQuery{BaseQuery: BaseQuery{TenantScope: TenantScope{TenantID: "acme"}, TimeRange: tr}},
		SchemaQuery{BaseQuery: BaseQuery{TenantScope: TenantScope{TenantID: "acme"}, TimeRange: tr}},
	}
	for _, q := range queries {
		scoped, ok := q.(TenantScoped)
		require.True(t, ok, "%T is not TenantScoped", q)
		assert.Equal(t, "acme", scoped.Tenant())

		ranged, ok := q.(TimeRanged)
		require.True(t, ok, "%T is not TimeRanged", q)
		assert.Equal(t, tr, ranged.Range())
	}
}

func TestLogsQueryJSONShape(t *testing.T) {
	q := LogsQuery{
		BaseQuery: BaseQuery{TenantScope: TenantScope{TenantID: "t1"}, TimeRange: &TimeRange{Start: 1, End: 2}},
		Query:     "level:error",
		Limit:     Int(10),
	}
	b, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tenantId":"t1","timeRange":{"start":1,"end":2},"query":"level:error","limit":10}`, string(b))
}

func TestLogEntryDecode(t *testing.T) {
	raw := `{"timestamp":"2021-09-30T18:40:00Z","message":"boom","level":"error","status":500,"ok":false,"ctx":{"a":1},"gone":null}`

	var e LogEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &e))

	assert.Equal(t, "2021-09-30T18:40:00Z", e.Timestamp)
	assert.Equal(t, "boom", e.Message())
	assert.Equal(t, "error", e.Level())
	assert.Equal(t, KindNumber, e.Fields["status"].Kind)
	assert.Equal(t, 500.0, e.Fields["status"].Num)
	assert.Equal(t, KindBool, e.Fields["ok"].Kind)
	assert.Equal(t, KindJSON, e.Fields["ctx"].Kind)
	assert.JSONEq(t, `{"a":1}`, string(e.Fields["ctx"].Raw))
	assert.True(t, e.Fields["gone"].IsNull())
	assert.True(t, e.Fields.Get("missing").IsNull())
	_, hasTS := e.Fields["timestamp"]
	assert.False(t, hasTS)

	ts, ok := e.Time()
	require.True(t, ok)
	assert.Equal(t, int64(1633027200), ts.Unix())

	out, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestLogEntryDefaults(t *testing.T) {
	e := LogEntry{Timestamp: "1633027200000", Fields: Fields{"msg": StringValue("short form")}}
	assert.Equal(t, "info", e.Level())
	assert.Equal(t, "short form", e.Message())

	ts, ok := e.Time()
	require.True(t, ok)
	assert.Equal(t, int64(1633027200), ts.Unix())
}

func TestBaseResponse(t *testing.T) {
	assert.True(t, BaseResponse{Status: "ok"}.OK())
	assert.True(t, BaseResponse{Status: "success"}.OK())
	assert.NoError(t, BaseResponse{Status: "ok"}.Err())

	failed := BaseResponse{Status: "error", Error: "index missing"}
	assert.False(t, failed.OK())
	var apiErr *APIError
	require.True(t, errors.As(failed.Err(), &apiErr))
	assert.Equal(t, "index missing", apiErr.Message)

	assert.False(t, BaseResponse{Status: "ok", Error: "partial"}.OK())
}

func TestEdgeMetadataRoundTrip(t *testing.T) {
	raw := `{"requestRate":12.5,"errorRate":0.1,"latency":{"p50":3,"p99":40},"protocol":"grpc"}`
	var m EdgeMetadata
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	require.NotNil(t, m.RequestRate)
	assert.Equal(t, 12.5, *m.RequestRate)
	require.NotNil(t, m.Latency)
	assert.Nil(t, m.Latency.P90)
	assert.Equal(t, "grpc", m.Extra.Get("protocol").String())

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestLatencyStat(t *testing.T) {
	l := ServiceGraphLatency{AvgMs: 10, P99Ms: Float64(80)}
	assert.Equal(t, 10.0, l.Stat(AggAvg))
	assert.Equal(t, 80.0, l.Stat(AggP99))
	assert.Equal(t, 10.0, l.Stat(AggP90), "missing percentile falls back to avg")
}

func TestBuildSpanTree(t *testing.T) {
	spans := []Span{
		{ID: "c", ParentID: "a", StartTime: 30},
		{ID: "a", StartTime: 0},
		{ID: "b", ParentID: "a", StartTime: 10},
		{ID: "d", ParentID: "b", StartTime: 12},
	}
	tree, err := BuildSpanTree("t", spans)
	require.NoError(t, err)
	require.Len(t, tree.Roots, 1)
	root := tree.Roots[0]
	assert.Equal(t, "a", root.Span.ID)
	require.Len(t, root.Children, 2)
	assert.Equal(t, "b", root.Children[0].Span.ID)
	assert.Equal(t, "c", root.Children[1].Span.ID)
	assert.Equal(t, "d", root.Children[0].Children[0].Span.ID)

	assert.NoError(t, NewTrace("t", spans).Validate())
}

func TestBuildSpanTreeMalformed(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		spans := []Span{
			{ID: "root"},
			{ID: "x", ParentID: "y"},
			{ID: "y", ParentID: "x"},
			{ID: "z", ParentID: "x"},
		}
		_, err := BuildSpanTree("t", spans)
		var te *TreeError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, ProblemCycle, te.Problem)
		assert.Equal(t, []string{"x", "y"}, te.SpanIDs)
	})

	t.Run("self parent", func(t *testing.T) {
		_, err := BuildSpanTree("t", []Span{{ID: "s", ParentID: "s"}})
		var te *TreeError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, ProblemCycle, te.Problem)
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := BuildSpanTree("t", []Span{{ID: "s"}, {ID: "s"}})
		var te *TreeError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, ProblemDuplicateID, te.Problem)
	})

	t.Run("orphan becomes root", func(t *testing.T) {
		tree, err := BuildSpanTree("t", []Span{{ID: "a"}, {ID: "b", ParentID: "missing"}})
		require.NoError(t, err)
		assert.Len(t, tree.Roots, 2)
		assert.Equal(t, []string{"b"}, tree.Orphans)

		err = Trace{TraceID: "t", Spans: []Span{{ID: "a"}, {ID: "b", ParentID: "missing"}}}.Validate()
		var te *TreeError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, ProblemMultipleRoots, te.Problem)
	})
}

func TestNewTrace(t *testing.T) {
	tr := NewTrace("abc", []Span{
		{ID: "1", Service: "api", Operation: "GET /", StartTime: 100, Duration: 50},
		{ID: "2", ParentID: "1", Service: "db", Operation: "query", StartTime: 110, Duration: 60},
		{ID: "3", ParentID: "1", Service: "api", Operation: "render", StartTime: 120, Duration: 5},
	})
	assert.Equal(t, int64(100), tr.StartTime)
	assert.Equal(t, int64(70), tr.Duration)
	assert.Equal(t, []string{"api", "db"}, tr.Services)
	assert.Equal(t, []string{"GET /", "query", "render"}, tr.Operations)
}
