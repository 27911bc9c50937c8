// Package datasource answers panel queries and health checks against a
// Mirador Core API, returning data frames keyed by query reference id.
package datasource

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/platformbuilds/mirador-mcp/internal/client"
	"github.com/platformbuilds/mirador-mcp/internal/frame"
	"github.com/platformbuilds/mirador-mcp/internal/model"
)

// Health check messages.
const (
	MsgHealthOK  = "Success: Connected to Mirador Core"
	msgHealthErr = "Error connecting to Mirador Core: %v"
)

// HealthStatus is the outcome of CheckHealth.
type HealthStatus string

const (
	HealthOK    HealthStatus = "OK"
	HealthError HealthStatus = "ERROR"
)

type HealthResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message"`
}

// Response is the result of one query. Error is set instead of Frames on
// failure.
type Response struct {
	Frames []*frame.Frame `json:"frames,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Datasource runs queries against an API.
type Datasource struct {
	api    client.API
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Datasource.
type Option func(*Datasource)

// WithClock sets the clock that relative times such as "now-1h" resolve
// against.
func WithClock(now func() time.Time) Option {
	return func(d *Datasource) {
		if now != nil {
			d.now = now
		}
	}
}

func New(api client.API, logger *zap.Logger, opts ...Option) *Datasource {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Datasource{api: api, logger: logger.Named("datasource"), now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// QueryData runs every query concurrently. A failing query only fails its
// own response.
func (d *Datasource) QueryData(ctx context.Context, queries []Query) map[string]Response {
	out := make(map[string]Response, len(queries))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, q := range queries {
		wg.Add(1)
		go func(q Query) {
			defer wg.Done()
			resp := d.Query(ctx, q)
			mu.Lock()
			out[q.RefID] = resp
			mu.Unlock()
		}(q)
	}
	wg.Wait()
	return out
}

// Query runs a single query.
func (d *Datasource) Query(ctx context.Context, q Query) Response {
	d.logger.Debug("handling query",
		zap.String("refId", q.RefID),
		zap.String("type", string(q.Type())),
		zap.String("expr", q.Expr),
		zap.String("from", q.From),
		zap.String("to", q.To))

	rng, err := q.TimeRange(d.now())
	if err != nil {
		return Response{Error: fmt.Sprintf("invalid time range: %v", err)}
	}

	var frames []*frame.Frame
	switch q.Type() {
	case QueryMetrics:
		frames, err = d.metrics(ctx, q, rng)
	case QueryLogs:
		frames, err = d.logs(ctx, q, rng)
	case QueryTraces:
		frames, err = d.traces(ctx, q, rng)
	default:
		return Response{Error: fmt.Sprintf("unknown query type: %s", q.QueryType)}
	}
	if err != nil {
		d.logger.Warn("query failed", zap.String("refId", q.RefID), zap.Error(err))
		return Response{Error: fmt.Sprintf("%s query failed: %v", q.Type(), err)}
	}
	return Response{Frames: frames}
}

func (d *Datasource) metrics(ctx context.Context, q Query, rng *model.TimeRange) ([]*frame.Frame, error) {
	resp, err := d.api.QueryMetrics(ctx, model.MetricsQuery{
		BaseQuery: model.BaseQuery{TimeRange: rng},
		Query:     q.Expr,
	})
	if err != nil {
		return nil, err
	}
	return frame.FromMetrics(resp), nil
}

func (d *Datasource) logs(ctx context.Context, q Query, rng *model.TimeRange) ([]*frame.Frame, error) {
	expr := q.Expr
	if strings.TrimSpace(expr) == "" {
		expr = "*"
	}
	resp, err := d.api.QueryLogs(ctx, model.LogsQuery{
		BaseQuery: model.BaseQuery{TimeRange: rng},
		Query:     expr,
	})
	if err != nil {
		return nil, err
	}
	return frame.FromLogs(resp), nil
}

func (d *Datasource) traces(ctx context.Context, q Query, rng *model.TimeRange) ([]*frame.Frame, error) {
	tq, err := ParseTraceExpr(q.Expr)
	if err != nil {
		return nil, err
	}
	tq.TimeRange = rng
	resp, err := d.api.QueryTraces(ctx, tq)
	if err != nil {
		return nil, err
	}
	return frame.FromTraces(resp), nil
}

// CheckHealth reports whether Mirador Core answers its health endpoint with
// a healthy status.
func (d *Datasource) CheckHealth(ctx context.Context) HealthResult {
	h, err := d.api.Health(ctx)
	if err == nil && !h.OK() {
		err = h.Err()
	}
	if err != nil {
		return HealthResult{Status: HealthError, Message: fmt.Sprintf(msgHealthErr, err)}
	}
	return HealthResult{Status: HealthOK, Message: MsgHealthOK}
}
