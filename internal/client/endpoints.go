package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/platformbuilds/mirador-mcp/internal/model"
)

const apiPrefix = "/api/v1"

func (c *Client) Health(ctx context.Context) (*model.HealthResponse, error) {
	var out model.HealthResponse
	if err := c.do(ctx, call{op: "health", method: http.MethodGet, path: "/health"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Readiness returns the readiness report. When the body reports a logical
// failure the decoded report is returned alongside the error so callers can
// still show per-component details.
func (c *Client) Readiness(ctx context.Context) (*model.ReadinessResponse, error) {
	var out model.ReadinessResponse
	if err := c.do(ctx, call{op: "readiness", method: http.MethodGet, path: "/ready"}, &out); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return &out, err
		}
		return nil, err
	}
	return &out, nil
}

func (c *Client) QueryLogs(ctx context.Context, q model.LogsQuery) (*model.LogsQueryResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	var out model.LogsQueryResponse
	err := c.do(ctx, call{op: "logs.query", method: http.MethodPost, path: apiPrefix + "/logs/query", tenant: q.Tenant(), body: q}, &out)
	if err != nil {
		return nil, err
	}
	if q.Limit != nil && *q.Limit > 0 && len(out.Hits) > *q.Limit {
		out.Hits = out.Hits[:*q.Limit]
	}
	return &out, nil
}

func (c *Client) LogsHistogram(ctx context.Context, q model.LogsQuery) (*model.LogsHistogramResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	var out model.LogsHistogramResponse
	if err := c.do(ctx, call{op: "logs.histogram", method: http.MethodPost, path: apiPrefix + "/logs/histogram", tenant: q.Tenant(), body: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LogsFacets(ctx context.Context, q model.LogsQuery) (*model.LogsFacetResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	var out model.LogsFacetResponse
	if err := c.do(ctx, call{op: "logs.facets", method: http.MethodPost, path: apiPrefix + "/logs/facets", tenant: q.Tenant(), body: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) QueryMetrics(ctx context.Context, q model.MetricsQuery) (*model.MetricsQueryResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	var out model.MetricsQueryResponse
	if err := c.do(ctx, call{op: "metrics.query", method: http.MethodPost, path: apiPrefix + "/metrics/query", tenant: q.Tenant(), body: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MetricNames(ctx context.Context) ([]string, error) {
	var out envelope[[]string]
	if err := c.do(ctx, call{op: "metrics.names", method: http.MethodGet, path: apiPrefix + "/metrics/names"}, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) MetricLabels(ctx context.Context, metric string) (map[string][]string, error) {
	if metric == "" {
		return nil, &model.ValidationError{Field: "metric", Reason: "is required"}
	}
	var out envelope[map[string][]string]
	q := url.Values{"metric": []string{metric}}
	if err := c.do(ctx, call{op: "metrics.labels", method: http.MethodGet, path: apiPrefix + "/metrics/labels", query: q}, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) QueryTraces(ctx context.Context, q model.TracesQuery) (*model.TracesQueryResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	var out model.TracesQueryResponse
	if err := c.do(ctx, call{op: "traces.search", method: http.MethodPost, path: apiPrefix + "/traces/search", tenant: q.Tenant(), body: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TraceByID(ctx context.Context, q model.TracesByIdQuery) (*model.TracesQueryResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	var out model.TracesQueryResponse
	path := apiPrefix + "/traces/" + url.PathEscape(q.TraceID)
	if err := c.do(ctx, call{op: "traces.get", method: http.MethodGet, path: path, tenant: q.Tenant(), query: rangeParams(q.TimeRange)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TraceServices(ctx context.Context) ([]string, error) {
	var out envelope[[]string]
	if err := c.do(ctx, call{op: "traces.services", method: http.MethodGet, path: apiPrefix + "/traces/services"}, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) TraceOperations(ctx context.Context, service string) ([]string, error) {
	if service == "" {
		return nil, &model.ValidationError{Field: "service", Reason: "is required"}
	}
	var out envelope[[]string]
	path := apiPrefix + "/traces/services/" + url.PathEscape(service) + "/operations"
	if err := c.do(ctx, call{op: "traces.operations", method: http.MethodGet, path: path}, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) SchemaVersions(ctx context.Context, schemaType, name string) (*model.SchemaVersionResponse, error) {
	if err := requireSchema(schemaType, name); err != nil {
		return nil, err
	}
	var out model.SchemaVersionResponse
	if err := c.do(ctx, call{op: "schema.versions", method: http.MethodGet, path: schemaPath(schemaType, name) + "/versions"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateSchema(ctx context.Context, schemaType string, item model.SchemaItem) (*model.SchemaResponse, error) {
	if err := requireSchema(schemaType, "-"); err != nil {
		return nil, err
	}
	var out model.SchemaResponse
	if err := c.do(ctx, call{op: "schema.create", method: http.MethodPost, path: schemaPath(schemaType, ""), body: item}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateSchema(ctx context.Context, schemaType, name string, item model.SchemaItem) (*model.SchemaResponse, error) {
	if err := requireSchema(schemaType, name); err != nil {
		return nil, err
	}
	var out model.SchemaResponse
	if err := c.do(ctx, call{op: "schema.update", method: http.MethodPut, path: schemaPath(schemaType, name), body: item}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteSchema(ctx context.Context, schemaType, name string) error {
	if err := requireSchema(schemaType, name); err != nil {
		return err
	}
	return c.do(ctx, call{op: "schema.delete", method: http.MethodDelete, path: schemaPath(schemaType, name)}, nil)
}

// BulkCreateSchema posts many items. The dry-run flag travels both as a
// query parameter and in the body; a dry-run reply is always marked DryRun.
func (c *Client) BulkCreateSchema(ctx context.Context, schemaType string, req model.BulkSchemaRequest) (*model.SchemaResponse, error) {
	if err := requireSchema(schemaType, "-"); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	q := url.Values{"dryRun": []string{strconv.FormatBool(req.DryRun)}}
	var out model.SchemaResponse
	if err := c.do(ctx, call{op: "schema.bulk", method: http.MethodPost, path: schemaPath(schemaType, "") + "/bulk", query: q, body: req}, &out); err != nil {
		return nil, err
	}
	if req.DryRun {
		out.DryRun = true
	}
	return &out, nil
}

// ServiceGraph fetches the graph. When Services is set, edges touching none
// of them are dropped even if the server returned them.
func (c *Client) ServiceGraph(ctx context.Context, req model.ServiceGraphRequest) (*model.ServiceGraphResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var out model.ServiceGraphResponse
	if err := c.do(ctx, call{op: "service_graph", method: http.MethodPost, path: apiPrefix + "/service-graph", body: req}, &out); err != nil {
		return nil, err
	}
	if len(req.Services) > 0 {
		edges := out.Edges[:0]
		for _, e := range out.Edges {
			if req.Includes(e.Source, e.Target) {
				edges = append(edges, e)
			}
		}
		out.Edges = edges
	}
	return &out, nil
}

func schemaPath(schemaType, name string) string {
	p := apiPrefix + "/schema/" + url.PathEscape(schemaType)
	if name != "" {
		p += "/" + url.PathEscape(name)
	}
	return p
}

func requireSchema(schemaType, name string) error {
	if schemaType == "" {
		return &model.ValidationError{Field: "type", Reason: "is required"}
	}
	if name == "" {
		return &model.ValidationError{Field: "name", Reason: "is required"}
	}
	return nil
}

func rangeParams(tr *model.TimeRange) url.Values {
	if tr == nil {
		return nil
	}
	v := url.Values{}
	if tr.Start != 0 {
		v.Set("start", strconv.FormatInt(tr.Start, 10))
	}
	if tr.End != 0 {
		v.Set("end", strconv.FormatInt(tr.End, 10))
	}
	return v
}
