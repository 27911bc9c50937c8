package mcpserver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/platformbuilds/mirador-mcp/internal/model"
	"github.com/platformbuilds/mirador-mcp/internal/settings"
	"github.com/platformbuilds/mirador-mcp/internal/storage"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// newCapture returns capture buffers holding one failed checkout trace and
// two log lines.
func newCapture() *Capture {
	traces := storage.NewTraceStore(100)
	start := testNow.Add(-time.Minute).UnixMilli()
	traces.Add(
		model.Span{ID: "a", TraceID: "t1", Name: "GET /cart", Service: "frontend", Operation: "GET /cart", StartTime: start, Duration: 300},
		model.Span{ID: "b", TraceID: "t1", ParentID: "a", Name: "Charge", Service: "payments", Operation: "Charge", StartTime: start + 5, Duration: 120,
			Tags: map[string]string{model.TagStatusCode: "ERROR"}},
	)
	logs := storage.NewLogTail(100)
	logs.AppendAll([]model.LogEntry{
		{Timestamp: testNow.Add(-time.Minute).Format(time.RFC3339), Fields: model.Fields{
			"message": model.StringValue("card declined"),
			"level":   model.StringValue("error"),
			"service": model.StringValue("payments"),
		}},
		{Timestamp: testNow.Add(-time.Minute).Format(time.RFC3339), Fields: model.Fields{
			"message": model.StringValue("cart loaded"),
			"service": model.StringValue("frontend"),
		}},
	})
	return &Capture{Traces: traces, Logs: logs, Endpoint: "127.0.0.1:4317"}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	capture := newCapture()
	editor := settings.NewEditor(settings.Settings{
		JSONData:       settings.DataSourceOptions{BaseURL: "http://mirador:8080"},
		SecureJSONData: settings.SecureJSONData{AuthToken: "s3cret"},
	}, nil)

	srv, err := NewServer(storage.NewLocalAPI(capture.Traces, capture.Logs, "test"), ServerOptions{
		Settings: editor,
		Capture:  capture,
		Now:      func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestServerCreation(t *testing.T) {
	srv := newTestServer(t)
	if srv.mcpServer == nil {
		t.Fatal("mcp server is nil")
	}
	if srv.datasource == nil {
		t.Fatal("datasource is nil")
	}
	if srv.MCPServer() != srv.mcpServer {
		t.Fatal("MCPServer returned a different server")
	}
}

func TestServerCreationNilAPI(t *testing.T) {
	if _, err := NewServer(nil, ServerOptions{}); err == nil {
		t.Fatal("expected error for nil api, got nil")
	}
}

func TestFileSourcesRequireCapture(t *testing.T) {
	srv, err := NewServer(storage.NewLocalAPI(nil, nil, "test"), ServerOptions{})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	if err := srv.AddFileSource(context.Background(), t.TempDir(), true); err == nil {
		t.Fatal("expected error without capture")
	}
}

func TestAddRemoveFileSource(t *testing.T) {
	srv := newTestServer(t)
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := srv.AddFileSource(context.Background(), dir, true); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := srv.AddFileSource(context.Background(), dir, true); err == nil {
		t.Fatal("expected error adding the same directory twice")
	}

	stats := srv.FileSourceStats()
	if len(stats) != 1 || stats[0].Directory != dir {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := srv.RemoveFileSource(dir); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := srv.RemoveFileSource(dir); err == nil {
		t.Fatal("expected error removing an unwatched directory")
	}
	if n := len(srv.FileSourceStats()); n != 0 {
		t.Fatalf("expected no sources, got %d", n)
	}
}
