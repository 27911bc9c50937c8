package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/platformbuilds/mirador-mcp/internal/datasource"
	"github.com/platformbuilds/mirador-mcp/internal/filereader"
	"github.com/platformbuilds/mirador-mcp/internal/frame"
	"github.com/platformbuilds/mirador-mcp/internal/model"
	"github.com/platformbuilds/mirador-mcp/internal/panel"
	"github.com/platformbuilds/mirador-mcp/internal/viz"
)

// Tool: mirador_health

type HealthInput struct{}

type HealthOutput struct {
	Status     string            `json:"status" jsonschema:"Liveness status reported by Mirador Core"`
	Version    string            `json:"version,omitempty" jsonschema:"Mirador Core version"`
	UptimeSecs float64           `json:"uptime_seconds" jsonschema:"Server uptime in seconds"`
	Ready      bool              `json:"ready" jsonschema:"Whether every component is ready"`
	Components map[string]string `json:"components,omitempty" jsonschema:"Readiness status per component"`
	Summary    string            `json:"summary" jsonschema:"Human readable health summary"`
}

func (s *Server) handleHealth(ctx context.Context, _ *mcp.CallToolRequest, _ HealthInput) (*mcp.CallToolResult, HealthOutput, error) {
	h, err := s.api.Health(ctx)
	if err != nil {
		return nil, HealthOutput{}, fmt.Errorf("health check failed: %w", err)
	}
	out := HealthOutput{Status: h.Status, Version: h.Version, UptimeSecs: h.Uptime}

	r, err := s.api.Readiness(ctx)
	if err != nil {
		s.logger.Sugar().Debugw("readiness unavailable", "error", err)
		r = nil
	}
	if r != nil {
		out.Ready = r.Ready
		out.Components = make(map[string]string, len(r.Details))
		for name, c := range r.Details {
			out.Components[name] = c.Status
		}
	}
	out.Summary = viz.Health(h, r)
	return &mcp.CallToolResult{}, out, nil
}

// Tool: mirador_query_logs

type QueryLogsInput struct {
	Query    string   `json:"query" jsonschema:"Lucene or Bleve query, e.g. 'level:error service:payments'; '*' matches all"`
	Language string   `json:"language,omitempty" jsonschema:"Query language: lucene (default) or bleve"`
	Start    string   `json:"start,omitempty" jsonschema:"Range start: unix ms, RFC3339, 'now' or 'now-1h'"`
	End      string   `json:"end,omitempty" jsonschema:"Range end: unix ms, RFC3339, 'now' or 'now-1h'"`
	Limit    int      `json:"limit,omitempty" jsonschema:"Maximum hits to return (default 100)"`
	Fields   []string `json:"fields,omitempty" jsonschema:"Only return these fields"`
	Order    string   `json:"order,omitempty" jsonschema:"Timestamp order: desc (default) or asc"`
	Tenant   string   `json:"tenant,omitempty" jsonschema:"Tenant id"`
}

type LogHit struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

type QueryLogsOutput struct {
	Total int64    `json:"total" jsonschema:"Total matching hits"`
	Hits  []LogHit `json:"hits" jsonschema:"Returned hits"`
}

const defaultLogLimit = 100

func (s *Server) handleQueryLogs(ctx context.Context, _ *mcp.CallToolRequest, in QueryLogsInput) (*mcp.CallToolResult, QueryLogsOutput, error) {
	rng, err := s.timeRange(in.Start, in.End)
	if err != nil {
		return nil, QueryLogsOutput{}, err
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultLogLimit
	}
	resp, err := s.api.QueryLogs(ctx, model.LogsQuery{
		BaseQuery:      model.BaseQuery{TenantScope: model.TenantScope{TenantID: in.Tenant}, TimeRange: rng},
		Query:          in.Query,
		QueryLanguage:  model.QueryLanguage(in.Language),
		Limit:          model.Int(limit),
		Fields:         in.Fields,
		OrderDirection: model.OrderDirection(in.Order),
	})
	if err != nil {
		return nil, QueryLogsOutput{}, fmt.Errorf("logs query failed: %w", err)
	}

	out := QueryLogsOutput{Total: resp.Total, Hits: make([]LogHit, 0, len(resp.Hits))}
	for _, e := range resp.Hits {
		out.Hits = append(out.Hits, logHit(e))
	}
	return &mcp.CallToolResult{}, out, nil
}

// Tool: mirador_query_metrics

type QueryMetricsInput struct {
	Query  string `json:"query" jsonschema:"MetricsQL expression"`
	Start  string `json:"start,omitempty" jsonschema:"Range start (default now-1h)"`
	End    string `json:"end,omitempty" jsonschema:"Range end (default now)"`
	Step   string `json:"step,omitempty" jsonschema:"Resolution as a Go duration, e.g. 30s"`
	Tenant string `json:"tenant,omitempty" jsonschema:"Tenant id"`
	Width  int    `json:"width,omitempty" jsonschema:"Plot width in characters (default 60)"`
}

type SeriesSummary struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Points int               `json:"points"`
	Min    float64           `json:"min"`
	Max    float64           `json:"max"`
	Last   float64           `json:"last"`
}

type QueryMetricsOutput struct {
	Series []SeriesSummary `json:"series" jsonschema:"Per series statistics"`
	Plot   string          `json:"plot" jsonschema:"Text plot of the series"`
}

func (s *Server) handleQueryMetrics(ctx context.Context, _ *mcp.CallToolRequest, in QueryMetricsInput) (*mcp.CallToolResult, QueryMetricsOutput, error) {
	start, end := in.Start, in.End
	if start == "" && end == "" {
		start, end = "now-1h", "now"
	}
	rng, err := s.timeRange(start, end)
	if err != nil {
		return nil, QueryMetricsOutput{}, err
	}
	q := model.MetricsQuery{
		BaseQuery: model.BaseQuery{TenantScope: model.TenantScope{TenantID: in.Tenant}, TimeRange: rng},
		Query:     in.Query,
	}
	if in.Step != "" {
		d, err := time.ParseDuration(in.Step)
		if err != nil {
			return nil, QueryMetricsOutput{}, fmt.Errorf("invalid step %q: %w", in.Step, err)
		}
		q.Step = model.Int64(d.Milliseconds())
	}

	resp, err := s.api.QueryMetrics(ctx, q)
	if err != nil {
		return nil, QueryMetricsOutput{}, fmt.Errorf("metrics query failed: %w", err)
	}

	out := QueryMetricsOutput{Series: make([]SeriesSummary, 0, len(resp.Series))}
	for _, series := range resp.Series {
		sum := SeriesSummary{Name: series.Name, Labels: series.Labels, Points: len(series.Points)}
		for i, p := range series.Points {
			if i == 0 || p.Value < sum.Min {
				sum.Min = p.Value
			}
			if i == 0 || p.Value > sum.Max {
				sum.Max = p.Value
			}
			sum.Last = p.Value
		}
		out.Series = append(out.Series, sum)
	}

	width := in.Width
	if width <= 0 {
		width = 60
	}
	view := panel.RenderMetrics(frame.FromMetrics(resp), panel.Context{Dimensions: panel.Dimensions{Width: width, Height: 12}}, panel.DefaultMetricsOptions())
	out.Plot = panel.RenderText(view)
	return &mcp.CallToolResult{}, out, nil
}

// Tool: mirador_query_traces

type QueryTracesInput struct {
	Service     string            `json:"service,omitempty" jsonschema:"Only traces with a span from this service"`
	Operation   string            `json:"operation,omitempty" jsonschema:"Only traces with a span of this operation"`
	MinDuration string            `json:"min_duration,omitempty" jsonschema:"Minimum span duration, e.g. 250ms"`
	MaxDuration string            `json:"max_duration,omitempty" jsonschema:"Maximum span duration, e.g. 2s"`
	Tags        map[string]string `json:"tags,omitempty" jsonschema:"Span tags that must match exactly"`
	Start       string            `json:"start,omitempty" jsonschema:"Range start"`
	End         string            `json:"end,omitempty" jsonschema:"Range end"`
	Limit       int               `json:"limit,omitempty" jsonschema:"Maximum traces (default 20)"`
	Tenant      string            `json:"tenant,omitempty" jsonschema:"Tenant id"`
}

type TraceSummary struct {
	TraceID       string   `json:"trace_id"`
	RootService   string   `json:"root_service"`
	RootOperation string   `json:"root_operation"`
	StartTime     string   `json:"start_time"`
	DurationMs    int64    `json:"duration_ms"`
	SpanCount     int      `json:"span_count"`
	ErrorCount    int      `json:"error_count"`
	Services      []string `json:"services"`
}

type QueryTracesOutput struct {
	Total  int64          `json:"total" jsonschema:"Total matching traces"`
	Traces []TraceSummary `json:"traces" jsonschema:"Matching traces, newest first"`
	List   string         `json:"list" jsonschema:"Compact text listing"`
}

const defaultTraceLimit = 20

func (s *Server) handleQueryTraces(ctx context.Context, _ *mcp.CallToolRequest, in QueryTracesInput) (*mcp.CallToolResult, QueryTracesOutput, error) {
	rng, err := s.timeRange(in.Start, in.End)
	if err != nil {
		return nil, QueryTracesOutput{}, err
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultTraceLimit
	}
	resp, err := s.api.QueryTraces(ctx, model.TracesQuery{
		BaseQuery:   model.BaseQuery{TenantScope: model.TenantScope{TenantID: in.Tenant}, TimeRange: rng},
		Service:     in.Service,
		Operation:   in.Operation,
		Tags:        in.Tags,
		MinDuration: in.MinDuration,
		MaxDuration: in.MaxDuration,
		Limit:       model.Int(limit),
	})
	if err != nil {
		return nil, QueryTracesOutput{}, fmt.Errorf("traces query failed: %w", err)
	}

	out := QueryTracesOutput{Total: resp.Total, Traces: make([]TraceSummary, 0, len(resp.Traces))}
	for _, t := range resp.Traces {
		out.Traces = append(out.Traces, traceSummary(t))
	}
	out.List = viz.TraceList(resp.Traces)
	return &mcp.CallToolResult{}, out, nil
}

// Tool: mirador_get_trace

type GetTraceInput struct {
	TraceID string `json:"trace_id" jsonschema:"Trace id (hex)"`
	Width   int    `json:"width,omitempty" jsonschema:"Waterfall width in characters (default 80)"`
	Tenant  string `json:"tenant,omitempty" jsonschema:"Tenant id"`
}

type GetTraceOutput struct {
	Summary   TraceSummary `json:"summary" jsonschema:"Trace summary"`
	Waterfall string       `json:"waterfall" jsonschema:"Span waterfall"`
	Spans     []model.Span `json:"spans" jsonschema:"All spans of the trace"`
}

func (s *Server) handleGetTrace(ctx context.Context, _ *mcp.CallToolRequest, in GetTraceInput) (*mcp.CallToolResult, GetTraceOutput, error) {
	resp, err := s.api.TraceByID(ctx, model.TracesByIdQuery{
		BaseQuery: model.BaseQuery{TenantScope: model.TenantScope{TenantID: in.Tenant}},
		TraceID:   in.TraceID,
	})
	if err != nil {
		return nil, GetTraceOutput{}, fmt.Errorf("get trace failed: %w", err)
	}
	if len(resp.Traces) == 0 {
		return nil, GetTraceOutput{}, fmt.Errorf("trace %s not found", in.TraceID)
	}

	t := resp.Traces[0]
	return &mcp.CallToolResult{}, GetTraceOutput{
		Summary:   traceSummary(t),
		Waterfall: viz.TraceWaterfall(t, in.Width),
		Spans:     t.Spans,
	}, nil
}

// Tool: mirador_trace_services

type TraceServicesInput struct {
	Service string `json:"service,omitempty" jsonschema:"List this service's operations instead of all services"`
}

type TraceServicesOutput struct {
	Services   []string `json:"services,omitempty" jsonschema:"Services that reported spans"`
	Operations []string `json:"operations,omitempty" jsonschema:"Operations of the requested service"`
}

func (s *Server) handleTraceServices(ctx context.Context, _ *mcp.CallToolRequest, in TraceServicesInput) (*mcp.CallToolResult, TraceServicesOutput, error) {
	if in.Service != "" {
		ops, err := s.api.TraceOperations(ctx, in.Service)
		if err != nil {
			return nil, TraceServicesOutput{}, fmt.Errorf("list operations failed: %w", err)
		}
		return &mcp.CallToolResult{}, TraceServicesOutput{Operations: ops}, nil
	}
	services, err := s.api.TraceServices(ctx)
	if err != nil {
		return nil, TraceServicesOutput{}, fmt.Errorf("list services failed: %w", err)
	}
	return &mcp.CallToolResult{}, TraceServicesOutput{Services: services}, nil
}

// Tool: mirador_service_graph

type ServiceGraphInput struct {
	Start       string   `json:"start,omitempty" jsonschema:"Range start (default now-1h)"`
	End         string   `json:"end,omitempty" jsonschema:"Range end (default now)"`
	Step        string   `json:"step,omitempty" jsonschema:"Window size as a Go duration"`
	Services    []string `json:"services,omitempty" jsonschema:"Only edges touching these services"`
	Aggregation string   `json:"aggregation,omitempty" jsonschema:"Latency statistic: avg, p50, p90, p95 or p99"`
}

type EdgeSummary struct {
	Source      string   `json:"source"`
	Target      string   `json:"target"`
	RequestRate *float64 `json:"request_rate,omitempty"`
	ErrorRate   *float64 `json:"error_rate,omitempty"`
	P50Ms       *float64 `json:"p50_ms,omitempty"`
	P90Ms       *float64 `json:"p90_ms,omitempty"`
	P99Ms       *float64 `json:"p99_ms,omitempty"`
}

type ServiceGraphOutput struct {
	Services []string      `json:"services" jsonschema:"Nodes of the graph"`
	Edges    []EdgeSummary `json:"edges" jsonschema:"Caller to callee edges"`
	Graph    string        `json:"graph" jsonschema:"Text rendering of the edges"`
}

func (s *Server) handleServiceGraph(ctx context.Context, _ *mcp.CallToolRequest, in ServiceGraphInput) (*mcp.CallToolResult, ServiceGraphOutput, error) {
	start, end := in.Start, in.End
	if start == "" {
		start = "now-1h"
	}
	if end == "" {
		end = "now"
	}
	rng, err := s.timeRange(start, end)
	if err != nil {
		return nil, ServiceGraphOutput{}, err
	}
	req := model.ServiceGraphRequest{
		Start:       rng.Start,
		End:         rng.End,
		Services:    in.Services,
		Aggregation: model.Aggregation(in.Aggregation),
	}
	if in.Step != "" {
		d, err := time.ParseDuration(in.Step)
		if err != nil {
			return nil, ServiceGraphOutput{}, fmt.Errorf("invalid step %q: %w", in.Step, err)
		}
		req.Step = model.Int64(d.Milliseconds())
	}

	g, err := s.api.ServiceGraph(ctx, req)
	if err != nil {
		return nil, ServiceGraphOutput{}, fmt.Errorf("service graph failed: %w", err)
	}

	out := ServiceGraphOutput{Services: make([]string, 0, len(g.Nodes)), Edges: make([]EdgeSummary, 0, len(g.Edges))}
	for _, n := range g.Nodes {
		out.Services = append(out.Services, n.Name)
	}
	for _, e := range g.Edges {
		sum := EdgeSummary{Source: e.Source, Target: e.Target}
		if m := e.Metadata; m != nil {
			sum.RequestRate, sum.ErrorRate = m.RequestRate, m.ErrorRate
			if m.Latency != nil {
				sum.P50Ms, sum.P90Ms, sum.P99Ms = m.Latency.P50, m.Latency.P90, m.Latency.P99
			}
		}
		out.Edges = append(out.Edges, sum)
	}
	out.Graph = viz.ServiceGraph(g)
	return &mcp.CallToolResult{}, out, nil
}

// Tool: mirador_schema_versions

type SchemaVersionsInput struct {
	Type string `json:"type" jsonschema:"Schema type: metrics, logs or traces"`
	Name string `json:"name" jsonschema:"Schema name"`
}

type SchemaVersionsOutput struct {
	Versions []model.SchemaVersion `json:"versions" jsonschema:"Revisions, as returned by Mirador Core"`
}

func (s *Server) handleSchemaVersions(ctx context.Context, _ *mcp.CallToolRequest, in SchemaVersionsInput) (*mcp.CallToolResult, SchemaVersionsOutput, error) {
	if in.Type == "" || in.Name == "" {
		return nil, SchemaVersionsOutput{}, fmt.Errorf("type and name are required")
	}
	resp, err := s.api.SchemaVersions(ctx, in.Type, in.Name)
	if err != nil {
		return nil, SchemaVersionsOutput{}, fmt.Errorf("schema versions failed: %w", err)
	}
	versions := resp.Versions
	if versions == nil {
		versions = []model.SchemaVersion{}
	}
	return &mcp.CallToolResult{}, SchemaVersionsOutput{Versions: versions}, nil
}

// Tool: mirador_bulk_create_schema

type BulkCreateSchemaInput struct {
	Type   string           `json:"type" jsonschema:"Schema type: metrics, logs or traces"`
	Items  []map[string]any `json:"items" jsonschema:"Schema definitions to create"`
	DryRun bool             `json:"dry_run,omitempty" jsonschema:"Validate only, persist nothing"`
}

type BulkCreateSchemaOutput struct {
	Created int              `json:"created" jsonschema:"Number of items returned by the server"`
	DryRun  bool             `json:"dry_run" jsonschema:"Whether nothing was persisted"`
	Items   []map[string]any `json:"items" jsonschema:"Items as stored"`
}

func (s *Server) handleBulkCreateSchema(ctx context.Context, _ *mcp.CallToolRequest, in BulkCreateSchemaInput) (*mcp.CallToolResult, BulkCreateSchemaOutput, error) {
	if in.Type == "" {
		return nil, BulkCreateSchemaOutput{}, fmt.Errorf("type is required")
	}
	req := model.BulkSchemaRequest{DryRun: in.DryRun, Items: make([]model.SchemaItem, 0, len(in.Items))}
	for i, raw := range in.Items {
		item, err := toFields(raw)
		if err != nil {
			return nil, BulkCreateSchemaOutput{}, fmt.Errorf("item %d: %w", i, err)
		}
		req.Items = append(req.Items, item)
	}
	if err := req.Validate(); err != nil {
		return nil, BulkCreateSchemaOutput{}, err
	}

	resp, err := s.api.BulkCreateSchema(ctx, in.Type, req)
	if err != nil {
		return nil, BulkCreateSchemaOutput{}, fmt.Errorf("bulk create failed: %w", err)
	}
	out := BulkCreateSchemaOutput{Created: len(resp.Items), DryRun: resp.DryRun || in.DryRun, Items: make([]map[string]any, 0, len(resp.Items))}
	for _, item := range resp.Items {
		out.Items = append(out.Items, fieldsAny(item))
	}
	return &mcp.CallToolResult{}, out, nil
}

// Tool: mirador_render_panel

type RenderPanelInput struct {
	Kind     string `json:"kind" jsonschema:"Panel kind: metrics, logs or traces"`
	Expr     string `json:"expr" jsonschema:"Query expression; traces use 'service=... operation=... minDuration=...'"`
	From     string `json:"from,omitempty" jsonschema:"Range start (default now-1h)"`
	To       string `json:"to,omitempty" jsonschema:"Range end (default now)"`
	Width    int    `json:"width,omitempty" jsonschema:"Panel width"`
	Height   int    `json:"height,omitempty" jsonschema:"Panel height"`
	Format   string `json:"format,omitempty" jsonschema:"Output format: text (default) or html"`
	TimeZone string `json:"time_zone,omitempty" jsonschema:"IANA time zone for timestamps (default UTC)"`
}

type RenderPanelOutput struct {
	View    string `json:"view" jsonschema:"Rendered shape: placeholder, graph, log_table or table"`
	Content string `json:"content" jsonschema:"Rendered panel"`
}

func (s *Server) handleRenderPanel(ctx context.Context, _ *mcp.CallToolRequest, in RenderPanelInput) (*mcp.CallToolResult, RenderPanelOutput, error) {
	kind := panel.Kind(strings.ToLower(in.Kind))
	switch kind {
	case panel.KindMetrics, panel.KindLogs, panel.KindTraces:
	default:
		return nil, RenderPanelOutput{}, fmt.Errorf("unknown panel kind %q", in.Kind)
	}

	pctx := panel.Context{Dimensions: panel.Dimensions{Width: in.Width, Height: in.Height}}
	if in.TimeZone != "" {
		loc, err := time.LoadLocation(in.TimeZone)
		if err != nil {
			return nil, RenderPanelOutput{}, fmt.Errorf("invalid time zone %q: %w", in.TimeZone, err)
		}
		pctx.Location = loc
	}

	from, to := in.From, in.To
	if from == "" && to == "" {
		from, to = "now-1h", "now"
	}
	resp := s.datasource.Query(ctx, datasource.Query{
		RefID:     "A",
		QueryType: datasource.QueryType(kind),
		Expr:      in.Expr,
		From:      from,
		To:        to,
	})
	if resp.Error != "" {
		return nil, RenderPanelOutput{}, fmt.Errorf("%s", resp.Error)
	}

	view := panel.Render(kind, resp.Frames, pctx, panel.DefaultOptions())
	out := RenderPanelOutput{View: string(view.Kind)}
	switch strings.ToLower(in.Format) {
	case "", "text":
		out.Content = panel.RenderText(view)
	case "html":
		html, err := panel.RenderHTML(view)
		if err != nil {
			return nil, RenderPanelOutput{}, fmt.Errorf("render html: %w", err)
		}
		out.Content = string(html)
	default:
		return nil, RenderPanelOutput{}, fmt.Errorf("unknown format %q", in.Format)
	}
	return &mcp.CallToolResult{}, out, nil
}

// Tool: mirador_capture_status

type CaptureStatusInput struct{}

type CaptureStatusOutput struct {
	Endpoint     string              `json:"endpoint,omitempty" jsonschema:"OTLP gRPC endpoint accepting traces and logs"`
	EnvVars      map[string]string   `json:"environment_vars,omitempty" jsonschema:"Suggested exporter settings"`
	SpanCount    int                 `json:"span_count"`
	SpanCapacity int                 `json:"span_capacity"`
	TraceCount   int                 `json:"trace_count"`
	LogCount     int                 `json:"log_count"`
	LogCapacity  int                 `json:"log_capacity"`
	LogLevels    map[string]int      `json:"log_levels,omitempty"`
	FileSources  []filereader.Stats  `json:"file_sources,omitempty"`
	Overview     string              `json:"overview" jsonschema:"Buffer fill levels and busiest services"`
}

func (s *Server) handleCaptureStatus(_ context.Context, _ *mcp.CallToolRequest, _ CaptureStatusInput) (*mcp.CallToolResult, CaptureStatusOutput, error) {
	ts, ls := s.capture.Traces.Stats(), s.capture.Logs.Stats()
	out := CaptureStatusOutput{
		Endpoint:     s.capture.Endpoint,
		SpanCount:    ts.SpanCount,
		SpanCapacity: ts.Capacity,
		TraceCount:   ts.TraceCount,
		LogCount:     ls.LogCount,
		LogCapacity:  ls.Capacity,
		LogLevels:    ls.Levels,
		FileSources:  s.FileSourceStats(),
	}
	if out.Endpoint != "" {
		out.EnvVars = map[string]string{
			"OTEL_EXPORTER_OTLP_ENDPOINT": "http://" + out.Endpoint,
			"OTEL_EXPORTER_OTLP_PROTOCOL": "grpc",
		}
	}
	out.Overview = s.captureOverview()
	return &mcp.CallToolResult{}, out, nil
}

func (s *Server) captureOverview() string {
	ts, ls := s.capture.Traces.Stats(), s.capture.Logs.Stats()
	overview := viz.CaptureOverview(viz.CaptureStats{
		SpanCount:    ts.SpanCount,
		SpanCapacity: ts.Capacity,
		LogCount:     ls.LogCount,
		LogCapacity:  ls.Capacity,
		TraceCount:   ts.TraceCount,
	})
	if services := viz.ServiceSummary(viz.ServicesFromTraces(s.capture.Traces.Traces()), 0); services != "" {
		overview += "\n" + services
	}
	return overview
}

// Tool: mirador_watch_directory / mirador_unwatch_directory

type WatchDirectoryInput struct {
	Directory  string `json:"directory" jsonschema:"Directory holding traces/ and logs/ subdirectories of OTLP JSON lines"`
	ActiveOnly *bool  `json:"active_only,omitempty" jsonschema:"Skip rotated archives (default true)"`
}

type WatchDirectoryOutput struct {
	Watching []string `json:"watching" jsonschema:"Directories now being followed"`
	Message  string   `json:"message"`
}

func (s *Server) handleWatchDirectory(ctx context.Context, _ *mcp.CallToolRequest, in WatchDirectoryInput) (*mcp.CallToolResult, WatchDirectoryOutput, error) {
	activeOnly := true
	if in.ActiveOnly != nil {
		activeOnly = *in.ActiveOnly
	}
	// the source outlives this call
	if err := s.AddFileSource(context.WithoutCancel(ctx), in.Directory, activeOnly); err != nil {
		return nil, WatchDirectoryOutput{}, err
	}
	return &mcp.CallToolResult{}, WatchDirectoryOutput{
		Watching: s.watching(),
		Message:  fmt.Sprintf("watching %s", in.Directory),
	}, nil
}

type UnwatchDirectoryInput struct {
	Directory string `json:"directory" jsonschema:"Directory to stop following"`
}

func (s *Server) handleUnwatchDirectory(_ context.Context, _ *mcp.CallToolRequest, in UnwatchDirectoryInput) (*mcp.CallToolResult, WatchDirectoryOutput, error) {
	if err := s.RemoveFileSource(in.Directory); err != nil {
		return nil, WatchDirectoryOutput{}, err
	}
	return &mcp.CallToolResult{}, WatchDirectoryOutput{
		Watching: s.watching(),
		Message:  fmt.Sprintf("stopped watching %s", in.Directory),
	}, nil
}

func (s *Server) watching() []string {
	stats := s.FileSourceStats()
	dirs := make([]string, 0, len(stats))
	for _, st := range stats {
		dirs = append(dirs, st.Directory)
	}
	return dirs
}

// Tool: mirador_clear_capture

type ClearCaptureInput struct{}

type ClearCaptureOutput struct {
	Message string `json:"message"`
}

func (s *Server) handleClearCapture(_ context.Context, _ *mcp.CallToolRequest, _ ClearCaptureInput) (*mcp.CallToolResult, ClearCaptureOutput, error) {
	s.capture.Traces.Clear()
	s.capture.Logs.Clear()
	return &mcp.CallToolResult{}, ClearCaptureOutput{Message: "cleared captured spans and logs"}, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "mirador_health",
		Description: "Check Mirador Core liveness and per-component readiness. Call this first when a query fails.",
	}, s.handleHealth)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "mirador_query_logs",
		Description: "Search logs with a Lucene or Bleve query. Returns the total hit count and up to limit hits, newest first.",
	}, s.handleQueryLogs)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "mirador_query_metrics",
		Description: "Run a MetricsQL range query. Returns min/max/last per series and a text plot.",
	}, s.handleQueryMetrics)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "mirador_query_traces",
		Description: "Find traces by service, operation, tags and span duration. Returns one summary per trace.",
	}, s.handleQueryTraces)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "mirador_get_trace",
		Description: "Fetch one trace by id with all spans and a waterfall showing where time was spent and which spans failed.",
	}, s.handleGetTrace)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "mirador_trace_services",
		Description: "List services that reported spans, or the operations of one service.",
	}, s.handleTraceServices)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "mirador_service_graph",
		Description: "Caller to callee service edges with request rate, error rate and latency percentiles.",
	}, s.handleServiceGraph)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "mirador_schema_versions",
		Description: "List the revisions of a metrics, logs or traces schema definition.",
	}, s.handleSchemaVersions)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "mirador_bulk_create_schema",
		Description: "Create many schema definitions at once. Use dry_run to validate without persisting.",
	}, s.handleBulkCreateSchema)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "mirador_render_panel",
		Description: "Run a panel query and render it as the dashboard would: a graph for metrics, a log table for logs, a span table for traces.",
	}, s.handleRenderPanel)

	if s.capture == nil {
		return
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "mirador_capture_status",
		Description: "Local capture: the OTLP endpoint to export to and how full the span and log buffers are.",
	}, s.handleCaptureStatus)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "mirador_watch_directory",
		Description: "Local capture: import and follow OTLP JSON files written by a Collector file exporter.",
	}, s.handleWatchDirectory)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "mirador_unwatch_directory",
		Description: "Local capture: stop following a directory.",
	}, s.handleUnwatchDirectory)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "mirador_clear_capture",
		Description: "Local capture: drop every captured span and log.",
	}, s.handleClearCapture)
}

// Conversion helpers

func (s *Server) timeRange(start, end string) (*model.TimeRange, error) {
	return datasource.Query{From: start, To: end}.TimeRange(s.now())
}

func logHit(e model.LogEntry) LogHit {
	hit := LogHit{Timestamp: e.Timestamp, Level: e.Level(), Message: e.Message()}
	rest := make(map[string]any, len(e.Fields))
	for k, v := range e.Fields {
		if k == "level" || k == "message" || k == "msg" {
			continue
		}
		rest[k] = valueAny(v)
	}
	if len(rest) > 0 {
		hit.Fields = rest
	}
	return hit
}

func valueAny(v model.Value) any {
	switch v.Kind {
	case model.KindString:
		return v.Str
	case model.KindNumber:
		return v.Num
	case model.KindBool:
		return v.Bool
	case model.KindJSON:
		var out any
		if err := json.Unmarshal(v.Raw, &out); err == nil {
			return out
		}
		return string(v.Raw)
	}
	return nil
}

func fieldsAny(f model.Fields) map[string]any {
	out := make(map[string]any, len(f))
	for k, v := range f {
		out[k] = valueAny(v)
	}
	return out
}

func toFields(raw map[string]any) (model.Fields, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var f model.Fields
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	return f, nil
}

func traceSummary(t model.Trace) TraceSummary {
	sum := TraceSummary{
		TraceID:    t.TraceID,
		StartTime:  time.UnixMilli(t.StartTime).UTC().Format(time.RFC3339Nano),
		DurationMs: t.Duration,
		SpanCount:  len(t.Spans),
		Services:   t.Services,
	}
	var root *model.Span
	for i := range t.Spans {
		sp := &t.Spans[i]
		if sp.Failed() {
			sum.ErrorCount++
		}
		if sp.ParentID == "" && (root == nil || sp.StartTime < root.StartTime) {
			root = sp
		}
	}
	if root != nil {
		sum.RootService = root.Service
		sum.RootOperation = root.Operation
		if sum.RootOperation == "" {
			sum.RootOperation = root.Name
		}
	}
	if sum.Services == nil {
		sum.Services = []string{}
	}
	return sum
}
