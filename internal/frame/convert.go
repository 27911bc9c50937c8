package frame

import (
	"encoding/json"
	"time"

	"github.com/platformbuilds/mirador-mcp/internal/model"
)

// FromMetrics returns one frame per series with a time and a value column.
// The value column carries the series labels and name.
func FromMetrics(resp *model.MetricsQueryResponse) []*Frame {
	if resp == nil {
		return nil
	}
	frames := make([]*Frame, 0, len(resp.Series))
	for _, s := range resp.Series {
		times := make([]any, 0, len(s.Points))
		values := make([]any, 0, len(s.Points))
		for _, p := range s.Points {
			times = append(times, time.UnixMilli(p.Timestamp).UTC())
			values = append(values, p.Value)
		}
		value := NewField("value", FieldTypeNumber, values)
		value.Labels = s.Labels
		value.DisplayName = s.Name
		frames = append(frames, New(s.Name, NewField("time", FieldTypeTime, times), value))
	}
	return frames
}

// FromLogs returns a single frame with time, message, level and labels.
// Level defaults to "info". Labels holds the remaining fields as JSON.
func FromLogs(resp *model.LogsQueryResponse) []*Frame {
	if resp == nil {
		return nil
	}
	return []*Frame{FromLogEntries("logs", resp.Hits)}
}

// FromLogEntries builds the logs frame from raw entries.
func FromLogEntries(name string, entries []model.LogEntry) *Frame {
	n := len(entries)
	times := make([]any, 0, n)
	messages := make([]any, 0, n)
	levels := make([]any, 0, n)
	labels := make([]any, 0, n)
	for _, e := range entries {
		if t, ok := e.Time(); ok {
			times = append(times, t.UTC())
		} else {
			times = append(times, nil)
		}
		messages = append(messages, e.Message())
		levels = append(levels, e.Level())
		labels = append(labels, labelJSON(e.Fields))
	}
	return New(name,
		NewField("time", FieldTypeTime, times),
		NewField("message", FieldTypeString, messages),
		NewField("level", FieldTypeString, levels),
		NewField("labels", FieldTypeString, labels),
	)
}

func labelJSON(fields model.Fields) string {
	rest := make(model.Fields, len(fields))
	for k, v := range fields {
		switch k {
		case "message", "msg", "level":
			continue
		}
		rest[k] = v
	}
	if len(rest) == 0 {
		return ""
	}
	b, err := json.Marshal(rest)
	if err != nil {
		return ""
	}
	return string(b)
}

// FromTraces returns a single frame with one row per span.
func FromTraces(resp *model.TracesQueryResponse) []*Frame {
	if resp == nil {
		return nil
	}
	var times, traceIDs, spanIDs, services, operations, durations []any
	for _, tr := range resp.Traces {
		for _, s := range tr.Spans {
			times = append(times, time.UnixMilli(s.StartTime).UTC())
			traceIDs = append(traceIDs, s.TraceID)
			spanIDs = append(spanIDs, s.ID)
			services = append(services, s.Service)
			operations = append(operations, s.Operation)
			durations = append(durations, float64(s.Duration))
		}
	}
	return []*Frame{New("traces",
		NewField("time", FieldTypeTime, times),
		NewField("traceID", FieldTypeString, traceIDs),
		NewField("spanID", FieldTypeString, spanIDs),
		NewField("service", FieldTypeString, services),
		NewField("operation", FieldTypeString, operations),
		NewField("duration", FieldTypeNumber, durations),
	)}
}
