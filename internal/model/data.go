package model

// TraceService describes a traced service in the schema catalog.
type TraceService struct {
	TenantScope
	AuthorInfo
	TaggedEntity
	VersionedEntity
	Service string `json:"service"`
	Purpose string `json:"purpose,omitempty"`
	Owner   string `json:"owner,omitempty"`
}

// TraceOperation is a TraceService narrowed to one operation.
type TraceOperation struct {
	TraceService
	Operation string `json:"operation"`
}

// Metric describes a metric in the schema catalog.
type Metric struct {
	TenantScope
	AuthorInfo
	TaggedEntity
	VersionedEntity
	Metric      string `json:"metric"`
	Description string `json:"description,omitempty"`
	Owner       string `json:"owner,omitempty"`
}

// LogField describes a structured log field.
type LogField struct {
	TenantScope
	AuthorInfo
	TaggedEntity
	VersionedEntity
	Field       string `json:"field"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Examples    Fields `json:"examples,omitempty"`
}

// Label describes a metric or log label.
type Label struct {
	TenantScope
	AuthorInfo
	Name          string `json:"name"`
	Type          string `json:"type"`
	Required      bool   `json:"required,omitempty"`
	AllowedValues Fields `json:"allowedValues,omitempty"`
	Description   string `json:"description,omitempty"`
}

// Aggregation selects the latency statistic of a service graph.
type Aggregation string

const (
	AggAvg Aggregation = "avg"
	AggP50 Aggregation = "p50"
	AggP90 Aggregation = "p90"
	AggP95 Aggregation = "p95"
	AggP99 Aggregation = "p99"
)

// Valid reports whether a is one of the known statistics. Empty is valid and means avg.
func (a Aggregation) Valid() bool {
	switch a {
	case "", AggAvg, AggP50, AggP90, AggP95, AggP99:
		return true
	}
	return false
}

// ServiceGraphLatency summarizes call latency in milliseconds.
type ServiceGraphLatency struct {
	AvgMs float64  `json:"avg_ms"`
	P50Ms *float64 `json:"p50_ms,omitempty"`
	P90Ms *float64 `json:"p90_ms,omitempty"`
	P95Ms *float64 `json:"p95_ms,omitempty"`
	P99Ms *float64 `json:"p99_ms,omitempty"`
}

// Stat returns the requested statistic, falling back to the average when the
// percentile was not reported.
func (l ServiceGraphLatency) Stat(agg Aggregation) float64 {
	var p *float64
	switch agg {
	case AggP50:
		p = l.P50Ms
	case AggP90:
		p = l.P90Ms
	case AggP95:
		p = l.P95Ms
	case AggP99:
		p = l.P99Ms
	}
	if p != nil {
		return *p
	}
	return l.AvgMs
}

// ServiceGraphEdge is one observed caller -> callee relationship.
type ServiceGraphEdge struct {
	Source      string              `json:"source"`
	Target      string              `json:"target"`
	Latency     ServiceGraphLatency `json:"latency"`
	ErrorRate   float64             `json:"errorRate"`
	RequestRate float64             `json:"requestRate"`
}

// ServiceGraphWindow groups edges aggregated over [Start, End].
type ServiceGraphWindow struct {
	Start int64              `json:"start"`
	End   int64              `json:"end"`
	Edges []ServiceGraphEdge `json:"edges"`
}

// ServiceGraphTimeWindowResponse is an ordered list of windows.
type ServiceGraphTimeWindowResponse struct {
	Status  string               `json:"status"`
	Windows []ServiceGraphWindow `json:"windows"`
}
