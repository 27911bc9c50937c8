package viz

import (
	"strings"
	"testing"

	"github.com/platformbuilds/mirador-mcp/internal/model"
)

func TestCaptureOverview(t *testing.T) {
	result := CaptureOverview(CaptureStats{
		SpanCount:    1204,
		SpanCapacity: 10000,
		LogCount:     4891,
		LogCapacity:  50000,
		TraceCount:   37,
	})

	for _, want := range []string{"Capture Buffers", "Spans", "Logs", "Traces: 37", "1,204", "10,000"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected %q, got:\n%s", want, result)
		}
	}
}

func TestCaptureOverview_Empty(t *testing.T) {
	result := CaptureOverview(CaptureStats{SpanCapacity: 10000, LogCapacity: 50000})
	if !strings.Contains(result, "[....................]") {
		t.Errorf("expected empty bar, got:\n%s", result)
	}
}

func TestServiceSummary_Empty(t *testing.T) {
	if result := ServiceSummary(nil, 80); result != "" {
		t.Errorf("expected empty string for nil services, got %q", result)
	}
}

func TestServiceSummary(t *testing.T) {
	services := []ServiceStats{
		{Name: "my-api", SpanCount: 28, ErrorCount: 2},
		{Name: "db-svc", SpanCount: 10, ErrorCount: 0},
		{Name: "cache-svc", SpanCount: 4, ErrorCount: 0},
	}
	result := ServiceSummary(services, 80)

	for _, want := range []string{"3 active", "42 spans", "my-api", "(2 errors)"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected %q, got:\n%s", want, result)
		}
	}
	for _, line := range strings.Split(result, "\n") {
		if strings.Contains(line, "db-svc") && strings.Contains(line, "error") {
			t.Errorf("db-svc should not have errors, got: %s", line)
		}
	}
}

func TestServicesFromTraces(t *testing.T) {
	traces := []model.Trace{
		model.NewTrace("t1", []model.Span{
			{ID: "a", Service: "api"},
			{ID: "b", ParentID: "a", Service: "db", Tags: map[string]string{ErrorTag: "true"}},
			{ID: "c", ParentID: "a", Service: "db"},
		}),
		model.NewTrace("t2", []model.Span{{ID: "d", Service: "api"}, {ID: "e", Service: "cache"}}),
	}
	got := ServicesFromTraces(traces)
	if len(got) != 3 {
		t.Fatalf("expected 3 services, got %+v", got)
	}
	// ties are broken by name
	if got[0].Name != "api" || got[1].Name != "db" || got[2].Name != "cache" {
		t.Errorf("unexpected order: %+v", got)
	}
	if got[1].ErrorCount != 1 || got[1].SpanCount != 2 {
		t.Errorf("unexpected db stats: %+v", got[1])
	}
}

func TestServiceGraph(t *testing.T) {
	if result := ServiceGraph(nil); !strings.Contains(result, "no edges") {
		t.Errorf("expected empty marker, got %q", result)
	}

	g := &model.ServiceGraphResponse{
		Nodes: []model.ServiceNode{{ID: "checkout"}, {ID: "payments"}, {ID: "db"}},
		Edges: []model.ServiceEdge{
			{Source: "payments", Target: "db"},
			{Source: "checkout", Target: "payments", Metadata: &model.EdgeMetadata{
				RequestRate: model.Float64(12.5),
				ErrorRate:   model.Float64(0.02),
				Latency:     &model.EdgeLatency{P50: model.Float64(20), P99: model.Float64(1500)},
			}},
		},
	}
	result := ServiceGraph(g)
	for _, want := range []string{"3 services, 2 edges", "checkout -> payments", "12.50 req/s", "2.0% err", "p50=20.0ms", "p99=1.50s"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected %q, got:\n%s", want, result)
		}
	}
	if strings.Contains(result, "p90=") {
		t.Errorf("unreported percentile rendered:\n%s", result)
	}
	if strings.Index(result, "checkout -> payments") > strings.Index(result, "payments -> db") {
		t.Errorf("expected edges sorted by source, got:\n%s", result)
	}
}

func TestServiceGraphWindows(t *testing.T) {
	w := &model.ServiceGraphTimeWindowResponse{Windows: []model.ServiceGraphWindow{{
		Start: 0, End: 60_000,
		Edges: []model.ServiceGraphEdge{{
			Source: "api", Target: "db", RequestRate: 3, ErrorRate: 0.5,
			Latency: model.ServiceGraphLatency{AvgMs: 40, P95Ms: model.Float64(90)},
		}},
	}}}

	if result := ServiceGraphWindows(w, model.AggP95); !strings.Contains(result, "p95=90.0ms") {
		t.Errorf("expected p95 stat, got:\n%s", result)
	}
	if result := ServiceGraphWindows(w, model.AggP99); !strings.Contains(result, "p99=40.0ms") {
		t.Errorf("expected fallback to avg, got:\n%s", result)
	}
	result := ServiceGraphWindows(w, "")
	for _, want := range []string{"avg=40.0ms", "1970-01-01T00:01:00Z", "50.0% err"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected %q, got:\n%s", want, result)
		}
	}
}

func TestHealth(t *testing.T) {
	h := &model.HealthResponse{BaseResponse: model.BaseResponse{Status: "healthy"}, Version: "v2.1.0", Uptime: 3600}
	r := &model.ReadinessResponse{Ready: false, Details: map[string]model.ComponentStatus{
		"victorialogs": {Status: "ok"},
		"valkey":       {Status: "down", Message: "connection refused"},
	}}
	result := Health(h, r)
	for _, want := range []string{"Mirador Core v2.1.0: healthy (up 1h0m0s)", "Readiness: not ready", "valkey        down  connection refused"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected %q, got:\n%s", want, result)
		}
	}
	if strings.Index(result, "valkey") > strings.Index(result, "victorialogs") {
		t.Errorf("expected components sorted, got:\n%s", result)
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		input    int
		expected string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{10000, "10,000"},
		{1234567, "1,234,567"},
	}
	for _, tt := range tests {
		if got := formatCount(tt.input); got != tt.expected {
			t.Errorf("formatCount(%d) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
