// Package client defines the Mirador Core API contract and its HTTP
// implementation.
package client

import (
	"context"

	"github.com/platformbuilds/mirador-mcp/internal/model"
)

// LogSink receives streamed log entries. Returning an error stops the stream.
type LogSink func(entry model.LogEntry) error

// API is the full set of Mirador Core operations. Logical failures reported
// in a response body surface as *model.APIError; transport failures as
// *StatusCodeError or *NotFoundError.
type API interface {
	// Health and status
	Health(ctx context.Context) (*model.HealthResponse, error)
	Readiness(ctx context.Context) (*model.ReadinessResponse, error)

	// Logs
	QueryLogs(ctx context.Context, q model.LogsQuery) (*model.LogsQueryResponse, error)
	// StreamLogs blocks delivering entries to sink until the stream ends,
	// MaxLines is reached or ctx is cancelled. It returns the number of
	// entries delivered.
	StreamLogs(ctx context.Context, q model.LogsStreamQuery, sink LogSink) (int, error)
	LogsHistogram(ctx context.Context, q model.LogsQuery) (*model.LogsHistogramResponse, error)
	LogsFacets(ctx context.Context, q model.LogsQuery) (*model.LogsFacetResponse, error)

	// Metrics
	QueryMetrics(ctx context.Context, q model.MetricsQuery) (*model.MetricsQueryResponse, error)
	MetricNames(ctx context.Context) ([]string, error)
	MetricLabels(ctx context.Context, metric string) (map[string][]string, error)

	// Traces
	QueryTraces(ctx context.Context, q model.TracesQuery) (*model.TracesQueryResponse, error)
	TraceByID(ctx context.Context, q model.TracesByIdQuery) (*model.TracesQueryResponse, error)
	TraceServices(ctx context.Context) ([]string, error)
	TraceOperations(ctx context.Context, service string) ([]string, error)

	// Schema management
	SchemaVersions(ctx context.Context, schemaType, name string) (*model.SchemaVersionResponse, error)
	CreateSchema(ctx context.Context, schemaType string, item model.SchemaItem) (*model.SchemaResponse, error)
	UpdateSchema(ctx context.Context, schemaType, name string, item model.SchemaItem) (*model.SchemaResponse, error)
	DeleteSchema(ctx context.Context, schemaType, name string) error
	BulkCreateSchema(ctx context.Context, schemaType string, req model.BulkSchemaRequest) (*model.SchemaResponse, error)

	// Service graph
	ServiceGraph(ctx context.Context, req model.ServiceGraphRequest) (*model.ServiceGraphResponse, error)
}
