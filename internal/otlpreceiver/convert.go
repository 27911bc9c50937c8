package otlpreceiver

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/platformbuilds/mirador-mcp/internal/model"
)

// UnknownService names spans and logs whose resource has no service.name.
const UnknownService = "unknown"

// Tag keys set on converted spans besides the span attributes.
const (
	TagSpanKind          = "span.kind"
	TagStatusDescription = "otel.status_description"
	TagScope             = "otel.scope.name"
)

// SpansFromOTLP flattens resource spans into model spans. Ids become lower
// hex; times become unix milliseconds. Resource attributes are folded into
// the tags under their own keys, span attributes win on conflict.
func SpansFromOTLP(resourceSpans []*tracepb.ResourceSpans) []model.Span {
	var out []model.Span
	for _, rs := range resourceSpans {
		service := serviceName(rs.GetResource())
		resourceTags := attributeTags(rs.GetResource().GetAttributes())

		for _, ss := range rs.GetScopeSpans() {
			scope := ss.GetScope().GetName()
			for _, s := range ss.GetSpans() {
				tags := make(map[string]string, len(resourceTags)+len(s.GetAttributes())+3)
				for k, v := range resourceTags {
					tags[k] = v
				}
				for k, v := range attributeTags(s.GetAttributes()) {
					tags[k] = v
				}
				if scope != "" {
					tags[TagScope] = scope
				}
				if kind := spanKind(s.GetKind()); kind != "" {
					tags[TagSpanKind] = kind
				}
				switch s.GetStatus().GetCode() {
				case tracepb.Status_STATUS_CODE_ERROR:
					tags[model.TagStatusCode] = "ERROR"
					if msg := s.GetStatus().GetMessage(); msg != "" {
						tags[TagStatusDescription] = msg
					}
				case tracepb.Status_STATUS_CODE_OK:
					tags[model.TagStatusCode] = "OK"
				}

				start := s.GetStartTimeUnixNano()
				end := max(s.GetEndTimeUnixNano(), start)
				out = append(out, model.Span{
					ID:        hex.EncodeToString(s.GetSpanId()),
					TraceID:   hex.EncodeToString(s.GetTraceId()),
					ParentID:  hex.EncodeToString(s.GetParentSpanId()),
					Name:      s.GetName(),
					Service:   service,
					Operation: s.GetName(),
					StartTime: nanosToMillis(start),
					Duration:  durationMillis(end - start),
					Tags:      tags,
				})
			}
		}
	}
	return out
}

// LogsFromOTLP flattens resource logs into log entries. The body becomes
// "message", the severity "level", and attributes become fields.
func LogsFromOTLP(resourceLogs []*logspb.ResourceLogs) []model.LogEntry {
	var out []model.LogEntry
	for _, rl := range resourceLogs {
		service := serviceName(rl.GetResource())

		for _, sl := range rl.GetScopeLogs() {
			for _, lr := range sl.GetLogRecords() {
				fields := make(model.Fields, len(lr.GetAttributes())+5)
				for _, kv := range lr.GetAttributes() {
					fields[kv.GetKey()] = anyToValue(kv.GetValue())
				}
				fields["service"] = model.StringValue(service)
				fields["message"] = model.StringValue(anyToString(lr.GetBody()))
				fields["level"] = model.StringValue(severity(lr))
				if id := lr.GetTraceId(); len(id) > 0 {
					fields["trace_id"] = model.StringValue(hex.EncodeToString(id))
				}
				if id := lr.GetSpanId(); len(id) > 0 {
					fields["span_id"] = model.StringValue(hex.EncodeToString(id))
				}

				ts := lr.GetTimeUnixNano()
				if ts == 0 {
					ts = lr.GetObservedTimeUnixNano()
				}
				entry := model.LogEntry{Fields: fields}
				if ts > 0 {
					entry.Timestamp = time.Unix(0, int64(ts)).UTC().Format(time.RFC3339Nano)
				}
				out = append(out, entry)
			}
		}
	}
	return out
}

func nanosToMillis(n uint64) int64 {
	return int64(n / uint64(time.Millisecond))
}

// durationMillis rounds up so a span that took any time never reads as 0ms.
func durationMillis(n uint64) int64 {
	ms := uint64(time.Millisecond)
	return int64((n + ms - 1) / ms)
}

func serviceName(r *resourcepb.Resource) string {
	for _, attr := range r.GetAttributes() {
		if attr.GetKey() == "service.name" {
			if sv := attr.GetValue().GetStringValue(); sv != "" {
				return sv
			}
		}
	}
	return UnknownService
}

func attributeTags(attrs []*commonpb.KeyValue) map[string]string {
	tags := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		tags[kv.GetKey()] = anyToString(kv.GetValue())
	}
	return tags
}

// anyToString renders scalars plainly and composites as OTLP JSON.
func anyToString(v *commonpb.AnyValue) string {
	if v == nil {
		return ""
	}
	switch x := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return x.StringValue
	case *commonpb.AnyValue_IntValue:
		return strconv.FormatInt(x.IntValue, 10)
	case *commonpb.AnyValue_DoubleValue:
		return strconv.FormatFloat(x.DoubleValue, 'g', -1, 64)
	case *commonpb.AnyValue_BoolValue:
		return strconv.FormatBool(x.BoolValue)
	case *commonpb.AnyValue_BytesValue:
		return hex.EncodeToString(x.BytesValue)
	case nil:
		return ""
	}
	b, err := protojson.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func anyToValue(v *commonpb.AnyValue) model.Value {
	switch x := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return model.StringValue(x.StringValue)
	case *commonpb.AnyValue_IntValue:
		return model.NumberValue(float64(x.IntValue))
	case *commonpb.AnyValue_DoubleValue:
		return model.NumberValue(x.DoubleValue)
	case *commonpb.AnyValue_BoolValue:
		return model.BoolValue(x.BoolValue)
	case nil:
		return model.Value{}
	case *commonpb.AnyValue_BytesValue:
		return model.StringValue(hex.EncodeToString(x.BytesValue))
	}
	if b, err := protojson.Marshal(v); err == nil {
		return model.RawValue(b)
	}
	return model.Value{}
}

// severity prefers the severity text, then maps the severity number onto
// the usual level names.
func severity(lr *logspb.LogRecord) string {
	if txt := lr.GetSeverityText(); txt != "" {
		return strings.ToLower(txt)
	}
	n := lr.GetSeverityNumber()
	switch {
	case n == logspb.SeverityNumber_SEVERITY_NUMBER_UNSPECIFIED:
		return "info"
	case n <= logspb.SeverityNumber_SEVERITY_NUMBER_TRACE4:
		return "trace"
	case n <= logspb.SeverityNumber_SEVERITY_NUMBER_DEBUG4:
		return "debug"
	case n <= logspb.SeverityNumber_SEVERITY_NUMBER_INFO4:
		return "info"
	case n <= logspb.SeverityNumber_SEVERITY_NUMBER_WARN4:
		return "warn"
	case n <= logspb.SeverityNumber_SEVERITY_NUMBER_ERROR4:
		return "error"
	}
	return "fatal"
}

func spanKind(k tracepb.Span_SpanKind) string {
	switch k {
	case tracepb.Span_SPAN_KIND_SERVER:
		return "server"
	case tracepb.Span_SPAN_KIND_CLIENT:
		return "client"
	case tracepb.Span_SPAN_KIND_PRODUCER:
		return "producer"
	case tracepb.Span_SPAN_KIND_CONSUMER:
		return "consumer"
	case tracepb.Span_SPAN_KIND_INTERNAL:
		return "internal"
	}
	return ""
}
