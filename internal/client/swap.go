package client

import (
	"context"
	"sync/atomic"

	"github.com/platformbuilds/mirador-mcp/internal/model"
)

// Swappable forwards every call to the current API. Calls that start after
// Replace use the new API; calls already running finish on the old one.
type Swappable struct {
	cur atomic.Pointer[apiRef]
}

type apiRef struct{ api API }

var _ API = (*Swappable)(nil)

func NewSwappable(api API) *Swappable {
	s := &Swappable{}
	s.Replace(api)
	return s
}

// Replace installs api for subsequent calls.
func (s *Swappable) Replace(api API) {
	s.cur.Store(&apiRef{api: api})
}

// Current returns the API calls are forwarded to.
func (s *Swappable) Current() API {
	return s.cur.Load().api
}

func (s *Swappable) Health(ctx context.Context) (*model.HealthResponse, error) {
	return s.Current().Health(ctx)
}

func (s *Swappable) Readiness(ctx context.Context) (*model.ReadinessResponse, error) {
	return s.Current().Readiness(ctx)
}

func (s *Swappable) QueryLogs(ctx context.Context, q model.LogsQuery) (*model.LogsQueryResponse, error) {
	return s.Current().QueryLogs(ctx, q)
}

func (s *Swappable) StreamLogs(ctx context.Context, q model.LogsStreamQuery, sink LogSink) (int, error) {
	return s.Current().StreamLogs(ctx, q, sink)
}

func (s *Swappable) LogsHistogram(ctx context.Context, q model.LogsQuery) (*model.LogsHistogramResponse, error) {
	return s.Current().LogsHistogram(ctx, q)
}

func (s *Swappable) LogsFacets(ctx context.Context, q model.LogsQuery) (*model.LogsFacetResponse, error) {
	return s.Current().LogsFacets(ctx, q)
}

func (s *Swappable) QueryMetrics(ctx context.Context, q model.MetricsQuery) (*model.MetricsQueryResponse, error) {
	return s.Current().QueryMetrics(ctx, q)
}

func (s *Swappable) MetricNames(ctx context.Context) ([]string, error) {
	return s.Current().MetricNames(ctx)
}

func (s *Swappable) MetricLabels(ctx context.Context, metric string) (map[string][]string, error) {
	return s.Current().MetricLabels(ctx, metric)
}

func (s *Swappable) QueryTraces(ctx context.Context, q model.TracesQuery) (*model.TracesQueryResponse, error) {
	return s.Current().QueryTraces(ctx, q)
}

func (s *Swappable) TraceByID(ctx context.Context, q model.TracesByIdQuery) (*model.TracesQueryResponse, error) {
	return s.Current().TraceByID(ctx, q)
}

func (s *Swappable) TraceServices(ctx context.Context) ([]string, error) {
	return s.Current().TraceServices(ctx)
}

func (s *Swappable) TraceOperations(ctx context.Context, service string) ([]string, error) {
	return s.Current().TraceOperations(ctx, service)
}

func (s *Swappable) SchemaVersions(ctx context.Context, schemaType, name string) (*model.SchemaVersionResponse, error) {
	return s.Current().SchemaVersions(ctx, schemaType, name)
}

func (s *Swappable) CreateSchema(ctx context.Context, schemaType string, item model.SchemaItem) (*model.SchemaResponse, error) {
	return s.Current().CreateSchema(ctx, schemaType, item)
}

func (s *Swappable) UpdateSchema(ctx context.Context, schemaType, name string, item model.SchemaItem) (*model.SchemaResponse, error) {
	return s.Current().UpdateSchema(ctx, schemaType, name, item)
}

func (s *Swappable) DeleteSchema(ctx context.Context, schemaType, name string) error {
	return s.Current().DeleteSchema(ctx, schemaType, name)
}

func (s *Swappable) BulkCreateSchema(ctx context.Context, schemaType string, req model.BulkSchemaRequest) (*model.SchemaResponse, error) {
	return s.Current().BulkCreateSchema(ctx, schemaType, req)
}

func (s *Swappable) ServiceGraph(ctx context.Context, req model.ServiceGraphRequest) (*model.ServiceGraphResponse, error) {
	return s.Current().ServiceGraph(ctx, req)
}
