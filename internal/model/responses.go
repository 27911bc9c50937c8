package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fastjson"
)

// BaseResponse is embedded by every response. A non-empty Error together
// with a status other than "ok"/"success" is a logical failure.
type BaseResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// OK reports whether the response signals success.
func (r BaseResponse) OK() bool {
	if r.Error != "" {
		return false
	}
	switch strings.ToLower(r.Status) {
	case "ok", "success", "healthy", "":
		return true
	}
	return false
}

// Err returns an *APIError for a logical failure, nil otherwise.
func (r BaseResponse) Err() error {
	if r.OK() {
		return nil
	}
	return &APIError{Status: r.Status, Message: r.Error}
}

// Result exposes the embedded BaseResponse to generic callers.
func (r *BaseResponse) Result() *BaseResponse { return r }

// APIError is a logical failure reported in a response body.
type APIError struct {
	Status  string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("mirador: status %q", e.Status)
	}
	return fmt.Sprintf("mirador: %s (status %q)", e.Message, e.Status)
}

// LogEntry is one log hit. Timestamp is typed; every other key is kept in Fields.
type LogEntry struct {
	Timestamp string
	Fields    Fields
}

// Message returns the "message" field, falling back to "msg".
func (e LogEntry) Message() string {
	if v := e.Fields.Get("message"); !v.IsNull() {
		return v.String()
	}
	return e.Fields.Get("msg").String()
}

// Level returns the "level" field, "info" when absent or empty.
func (e LogEntry) Level() string {
	if lvl := e.Fields.Get("level").String(); lvl != "" {
		return lvl
	}
	return "info"
}

// Time parses Timestamp as RFC 3339 or unix milliseconds.
func (e LogEntry) Time() (time.Time, bool) {
	return ParseTimestamp(e.Timestamp)
}

// ParseTimestamp accepts RFC 3339 (with or without fraction) or a unix
// millisecond count.
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	return time.Time{}, false
}

// MarshalJSON flattens Fields next to timestamp.
func (e LogEntry) MarshalJSON() ([]byte, error) {
	m := make(map[string]Value, len(e.Fields)+1)
	for k, v := range e.Fields {
		m[k] = v
	}
	m["timestamp"] = StringValue(e.Timestamp)
	return json.Marshal(m)
}

// UnmarshalJSON reads timestamp and collects the remaining keys.
func (e *LogEntry) UnmarshalJSON(b []byte) error {
	var p fastjson.Parser
	fv, err := p.ParseBytes(b)
	if err != nil {
		return fmt.Errorf("decode log entry: %w", err)
	}
	obj, err := fv.Object()
	if err != nil {
		return fmt.Errorf("decode log entry: %w", err)
	}
	entry := LogEntry{Fields: make(Fields, obj.Len())}
	obj.Visit(func(key []byte, v *fastjson.Value) {
		if string(key) == "timestamp" {
			entry.Timestamp = valueOf(v).String()
			return
		}
		entry.Fields[string(key)] = valueOf(v)
	})
	*e = entry
	return nil
}

// LogsQueryResponse holds log hits. ScrollID continues pagination.
type LogsQueryResponse struct {
	BaseResponse
	Hits     []LogEntry `json:"hits"`
	Total    int64      `json:"total"`
	ScrollID string     `json:"scrollId,omitempty"`
}

// HistogramBucket counts hits in one time bucket.
type HistogramBucket struct {
	Timestamp string `json:"timestamp"`
	Count     int64  `json:"count"`
}

type LogsHistogramResponse struct {
	BaseResponse
	Buckets []HistogramBucket `json:"buckets"`
}

// FacetValue is one distinct field value with its occurrence count.
type FacetValue struct {
	Value Value `json:"value"`
	Count int64 `json:"count"`
}

type LogsFacetResponse struct {
	BaseResponse
	Facets map[string][]FacetValue `json:"facets"`
}

// MetricDataPoint is one sample; Timestamp is unix milliseconds.
type MetricDataPoint struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

type MetricSeries struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels"`
	Points []MetricDataPoint `json:"points"`
}

type MetricsQueryResponse struct {
	BaseResponse
	Series []MetricSeries `json:"series"`
}

// Span is one unit of work. StartTime is unix milliseconds and Duration is
// milliseconds.
type Span struct {
	ID        string            `json:"id"`
	TraceID   string            `json:"traceId"`
	ParentID  string            `json:"parentId,omitempty"`
	Name      string            `json:"name"`
	Service   string            `json:"service"`
	Operation string            `json:"operation"`
	StartTime int64             `json:"startTime"`
	Duration  int64             `json:"duration"`
	Tags      map[string]string `json:"tags"`
}

// Span tags that mark a failed span.
const (
	TagError      = "error"
	TagStatusCode = "otel.status_code"
)

// Failed reports whether the span's tags mark it as an error.
func (s Span) Failed() bool {
	return s.Tags[TagError] == "true" || s.Tags[TagStatusCode] == "ERROR"
}

// Trace aggregates the spans that share a trace id.
type Trace struct {
	TraceID    string   `json:"traceId"`
	Spans      []Span   `json:"spans"`
	StartTime  int64    `json:"startTime"`
	Duration   int64    `json:"duration"`
	Services   []string `json:"services"`
	Operations []string `json:"operations"`
}

type TracesQueryResponse struct {
	BaseResponse
	Traces []Trace `json:"traces"`
	Total  int64   `json:"total"`
}

// SchemaVersion is one revision of a named schema.
type SchemaVersion struct {
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
	Author    string `json:"author"`
}

type SchemaVersionResponse struct {
	BaseResponse
	Versions []SchemaVersion `json:"versions"`
}

// SchemaResponse returns created or updated items. DryRun echoes a dry-run
// request; such items were validated but not persisted.
type SchemaResponse struct {
	BaseResponse
	Items  []SchemaItem `json:"items"`
	DryRun bool         `json:"dryRun,omitempty"`
}

type ServiceNode struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Metadata Fields `json:"metadata,omitempty"`
}

// EdgeLatency holds the percentiles reported on a service edge.
type EdgeLatency struct {
	P50 *float64 `json:"p50,omitempty"`
	P90 *float64 `json:"p90,omitempty"`
	P99 *float64 `json:"p99,omitempty"`
}

// EdgeMetadata carries the known edge statistics; unknown keys land in Extra.
type EdgeMetadata struct {
	RequestRate *float64     `json:"requestRate,omitempty"`
	ErrorRate   *float64     `json:"errorRate,omitempty"`
	Latency     *EdgeLatency `json:"latency,omitempty"`
	Extra       Fields       `json:"-"`
}

var knownEdgeKeys = map[string]bool{"requestRate": true, "errorRate": true, "latency": true}

func (m EdgeMetadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+3)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.RequestRate != nil {
		out["requestRate"] = *m.RequestRate
	}
	if m.ErrorRate != nil {
		out["errorRate"] = *m.ErrorRate
	}
	if m.Latency != nil {
		out["latency"] = m.Latency
	}
	return json.Marshal(out)
}

func (m *EdgeMetadata) UnmarshalJSON(b []byte) error {
	type known EdgeMetadata
	var k known
	if err := json.Unmarshal(b, &k); err != nil {
		return err
	}
	var all Fields
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for key := range knownEdgeKeys {
		delete(all, key)
	}
	if len(all) > 0 {
		k.Extra = all
	}
	*m = EdgeMetadata(k)
	return nil
}

type ServiceEdge struct {
	Source   string        `json:"source"`
	Target   string        `json:"target"`
	Metadata *EdgeMetadata `json:"metadata,omitempty"`
}

type ServiceGraphResponse struct {
	BaseResponse
	Nodes     []ServiceNode `json:"nodes"`
	Edges     []ServiceEdge `json:"edges"`
	Timestamp string        `json:"timestamp"`
}

// HealthResponse reports server liveness. Uptime is in seconds.
type HealthResponse struct {
	BaseResponse
	Version   string  `json:"version"`
	Uptime    float64 `json:"uptime"`
	Timestamp string  `json:"timestamp"`
}

// ComponentStatus is the readiness of one dependency.
type ComponentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type ReadinessResponse struct {
	BaseResponse
	Ready   bool                       `json:"ready"`
	Details map[string]ComponentStatus `json:"details"`
}
