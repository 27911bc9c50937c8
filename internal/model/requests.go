package model

import (
	"fmt"
	"strings"
	"time"
)

// BaseQuery is embedded by every data query.
type BaseQuery struct {
	TenantScope
	TimeRange     *TimeRange `json:"timeRange,omitempty"`
	MaxDataPoints *int       `json:"maxDataPoints,omitempty"`
}

// Range returns the optional time range.
func (q BaseQuery) Range() *TimeRange { return q.TimeRange }

// Validate checks the shared fields.
func (q BaseQuery) Validate() error {
	if q.TimeRange != nil {
		if err := q.TimeRange.Validate(); err != nil {
			return err
		}
	}
	if q.MaxDataPoints != nil && *q.MaxDataPoints < 0 {
		return &ValidationError{Field: "maxDataPoints", Reason: "must not be negative"}
	}
	return nil
}

// QueryLanguage selects the log query dialect.
type QueryLanguage string

const (
	LanguageLucene QueryLanguage = "lucene"
	LanguageBleve  QueryLanguage = "bleve"
)

// OrderDirection orders log hits.
type OrderDirection string

const (
	OrderAsc  OrderDirection = "asc"
	OrderDesc OrderDirection = "desc"
)

// LogsQuery searches logs. Also used for histograms and facets.
type LogsQuery struct {
	BaseQuery
	Query          string         `json:"query"`
	QueryLanguage  QueryLanguage  `json:"queryLanguage,omitempty"`
	Limit          *int           `json:"limit,omitempty"`
	Fields         []string       `json:"fields,omitempty"`
	OrderBy        string         `json:"orderBy,omitempty"`
	OrderDirection OrderDirection `json:"orderDirection,omitempty"`
}

func (q LogsQuery) Validate() error {
	if err := q.BaseQuery.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(q.Query) == "" {
		return &ValidationError{Field: "query", Reason: "is required"}
	}
	switch q.QueryLanguage {
	case "", LanguageLucene, LanguageBleve:
	default:
		return &ValidationError{Field: "queryLanguage", Reason: fmt.Sprintf("unsupported language %q", q.QueryLanguage)}
	}
	switch q.OrderDirection {
	case "", OrderAsc, OrderDesc:
	default:
		return &ValidationError{Field: "orderDirection", Reason: fmt.Sprintf("must be asc or desc, got %q", q.OrderDirection)}
	}
	if q.Limit != nil && *q.Limit < 0 {
		return &ValidationError{Field: "limit", Reason: "must not be negative"}
	}
	return nil
}

// LogsStreamQuery subscribes to a live log stream.
type LogsStreamQuery struct {
	BaseQuery
	Query    string `json:"query"`
	TailMode bool   `json:"tailMode,omitempty"`
	MaxLines *int   `json:"maxLines,omitempty"`
}

func (q LogsStreamQuery) Validate() error {
	if err := q.BaseQuery.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(q.Query) == "" {
		return &ValidationError{Field: "query", Reason: "is required"}
	}
	if q.MaxLines != nil && *q.MaxLines < 0 {
		return &ValidationError{Field: "maxLines", Reason: "must not be negative"}
	}
	return nil
}

// MetricsQuery runs a MetricsQL range query.
type MetricsQuery struct {
	BaseQuery
	Query string `json:"query"`
	Step  *int64 `json:"step,omitempty"`
}

func (q MetricsQuery) Validate() error {
	if err := q.BaseQuery.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(q.Query) == "" {
		return &ValidationError{Field: "query", Reason: "is required"}
	}
	if q.Step != nil && *q.Step <= 0 {
		return &ValidationError{Field: "step", Reason: "must be greater than zero"}
	}
	return nil
}

// MetricsQLFunctionRequest evaluates a single MetricsQL function.
type MetricsQLFunctionRequest struct {
	Query string `json:"query"`
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
	Step  *int64 `json:"step,omitempty"`
}

func (r MetricsQLFunctionRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return &ValidationError{Field: "query", Reason: "is required"}
	}
	if r.Start != nil && r.End != nil && *r.Start > *r.End {
		return &ValidationError{Field: "start", Reason: "is after end"}
	}
	if r.Step != nil && *r.Step <= 0 {
		return &ValidationError{Field: "step", Reason: "must be greater than zero"}
	}
	return nil
}

// TracesQuery searches traces.
type TracesQuery struct {
	BaseQuery
	Service     string            `json:"service,omitempty"`
	Operation   string            `json:"operation,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	MinDuration string            `json:"minDuration,omitempty"`
	MaxDuration string            `json:"maxDuration,omitempty"`
	Limit       *int              `json:"limit,omitempty"`
}

// DurationBounds parses MinDuration and MaxDuration. Unset bounds are zero.
func (q TracesQuery) DurationBounds() (minDur, maxDur time.Duration, err error) {
	if q.MinDuration != "" {
		if minDur, err = time.ParseDuration(q.MinDuration); err != nil {
			return 0, 0, &ValidationError{Field: "minDuration", Reason: err.Error()}
		}
	}
	if q.MaxDuration != "" {
		if maxDur, err = time.ParseDuration(q.MaxDuration); err != nil {
			return 0, 0, &ValidationError{Field: "maxDuration", Reason: err.Error()}
		}
	}
	return minDur, maxDur, nil
}

func (q TracesQuery) Validate() error {
	if err := q.BaseQuery.Validate(); err != nil {
		return err
	}
	minDur, maxDur, err := q.DurationBounds()
	if err != nil {
		return err
	}
	if maxDur > 0 && minDur > maxDur {
		return &ValidationError{Field: "minDuration", Reason: "is greater than maxDuration"}
	}
	if q.Limit != nil && *q.Limit < 0 {
		return &ValidationError{Field: "limit", Reason: "must not be negative"}
	}
	return nil
}

// TracesByIdQuery fetches a single trace.
type TracesByIdQuery struct {
	BaseQuery
	TraceID string `json:"traceId"`
}

func (q TracesByIdQuery) Validate() error {
	if err := q.BaseQuery.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(q.TraceID) == "" {
		return &ValidationError{Field: "traceId", Reason: "is required"}
	}
	return nil
}

// SchemaQuery filters schema definitions.
type SchemaQuery struct {
	BaseQuery
	Name    string `json:"name,omitempty"`
	Type    string `json:"type,omitempty"`
	Version string `json:"version,omitempty"`
}

// BulkSchemaRequest creates many schema items at once. With DryRun set the
// server validates the items but persists nothing.
type BulkSchemaRequest struct {
	Items  []SchemaItem `json:"items"`
	DryRun bool         `json:"dryRun,omitempty"`
}

func (r BulkSchemaRequest) Validate() error {
	if len(r.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "must not be empty"}
	}
	return nil
}

// ServiceGraphRequest asks for a windowed service graph.
type ServiceGraphRequest struct {
	Start       int64       `json:"start"`
	End         int64       `json:"end"`
	Step        *int64      `json:"step,omitempty"`
	Services    []string    `json:"services,omitempty"`
	Aggregation Aggregation `json:"aggregation,omitempty"`
}

func (r ServiceGraphRequest) Validate() error {
	if err := (TimeRange{Start: r.Start, End: r.End, Step: r.Step}).Validate(); err != nil {
		return err
	}
	if !r.Aggregation.Valid() {
		return &ValidationError{Field: "aggregation", Reason: fmt.Sprintf("unsupported statistic %q", r.Aggregation)}
	}
	return nil
}

// Includes reports whether the edge touches one of the requested services.
// An empty filter includes everything.
func (r ServiceGraphRequest) Includes(source, target string) bool {
	if len(r.Services) == 0 {
		return true
	}
	for _, s := range r.Services {
		if s == source || s == target {
			return true
		}
	}
	return false
}
