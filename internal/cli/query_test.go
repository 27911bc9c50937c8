package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/platformbuilds/mirador-mcp/internal/panel"
)

const testTraceFile = `{"resourceSpans":[{"resource":{"attributes":[{"key":"service.name","value":{"stringValue":"checkout"}}]},"scopeSpans":[{"spans":[` +
	`{"traceId":"0102030405060708090a0b0c0d0e0f10","spanId":"1111111111111111","name":"PlaceOrder","startTimeUnixNano":"1714564800000000000","endTimeUnixNano":"1714564800250000000"},` +
	`{"traceId":"0102030405060708090a0b0c0d0e0f10","spanId":"2222222222222222","parentSpanId":"1111111111111111","name":"ReserveStock","startTimeUnixNano":"1714564800010000000","endTimeUnixNano":"1714564800060000000"}` +
	`]}]}]}`

const testLogFile = `{"resourceLogs":[{"resource":{"attributes":[{"key":"service.name","value":{"stringValue":"payments"}}]},"scopeLogs":[{"logRecords":[{"timeUnixNano":"1714564800000000000","severityText":"ERROR","body":{"stringValue":"card declined"}}]}]}]}` + "\n"

func subcommand(t *testing.T, parent *cli.Command, name string) *cli.Command {
	t.Helper()
	for _, c := range parent.Commands {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no subcommand %q", name)
	return nil
}

func TestTraceFromImport(t *testing.T) {
	isolateEnv(t)
	path := writeFile(t, t.TempDir(), "traces.json", testTraceFile)

	var out bytes.Buffer
	err := runWith(t, TraceCommand("test").Flags, []string{"--import", path, "0102030405060708090a0b0c0d0e0f10"},
		func(ctx context.Context, cmd *cli.Command) error {
			return runTrace(ctx, cmd, "test", &out)
		})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "PlaceOrder")
	assert.Contains(t, out.String(), "ReserveStock")

	err = runWith(t, TraceCommand("test").Flags, []string{"--import", path, "ffff"},
		func(ctx context.Context, cmd *cli.Command) error {
			return runTrace(ctx, cmd, "test", &out)
		})
	assert.ErrorContains(t, err, "trace ffff")

	err = runWith(t, TraceCommand("test").Flags, []string{"--import", path},
		func(ctx context.Context, cmd *cli.Command) error {
			return runTrace(ctx, cmd, "test", &out)
		})
	assert.ErrorContains(t, err, "trace id is required")
}

func TestQueryFromImport(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	traces := writeFile(t, dir, "traces.json", testTraceFile)
	logs := writeFile(t, dir, "logs.jsonl", testLogFile)
	window := []string{"--import", traces, "--import", logs, "--from", "2024-05-01T11:00:00Z", "--to", "2024-05-01T13:00:00Z", "--tz", "UTC"}

	query := QueryCommand("test")
	run := func(kind string, args ...string) (string, error) {
		var out bytes.Buffer
		err := runWith(t, subcommand(t, query, kind).Flags, append(window, args...), func(ctx context.Context, cmd *cli.Command) error {
			return runQuery(ctx, cmd, "test", panel.Kind(kind), &out)
		})
		return out.String(), err
	}

	out, err := run("traces", "service=checkout")
	require.NoError(t, err)
	assert.Contains(t, out, "checkout")
	assert.Contains(t, out, "0102030405060708090a0b0c0d0e0f10")

	out, err = run("logs", "level:error")
	require.NoError(t, err)
	assert.Contains(t, out, "card declined")

	_, err = run("metrics")
	assert.ErrorContains(t, err, "MetricsQL expression is required")

	_, err = run("metrics", "up")
	assert.ErrorContains(t, err, "not available from local capture")
}

func TestImportRejectsUnknownSignal(t *testing.T) {
	isolateEnv(t)
	path := writeFile(t, t.TempDir(), "dump.json", testTraceFile)
	err := runWith(t, TraceCommand("test").Flags, []string{"--import", path, "abc"},
		func(ctx context.Context, cmd *cli.Command) error {
			return runTrace(ctx, cmd, "test", &bytes.Buffer{})
		})
	assert.ErrorContains(t, err, "import "+filepath.Join(filepath.Dir(path), "dump.json"))
}

func TestHealthCommand(t *testing.T) {
	isolateEnv(t)
	color.NoColor = true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/health":
			w.Write([]byte(`{"status":"healthy","version":"1.4.0","uptime":120}`))
		case "/ready":
			w.Write([]byte(`{"status":"success","ready":true,"details":{"victoria-metrics":{"status":"ok"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := runWith(t, HealthCommand("test").Flags, []string{"--mirador-url", srv.URL}, func(ctx context.Context, cmd *cli.Command) error {
		return runHealth(ctx, cmd, "test", &out)
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "✅ Success: Connected to Mirador Core")
	assert.Contains(t, out.String(), "Mirador Core 1.4.0")
	assert.Contains(t, out.String(), "victoria-metrics")

	srv.Close()
	out.Reset()
	err = runWith(t, HealthCommand("test").Flags, []string{"--mirador-url", srv.URL}, func(ctx context.Context, cmd *cli.Command) error {
		return runHealth(ctx, cmd, "test", &out)
	})
	assert.ErrorContains(t, err, "unhealthy")
	assert.Contains(t, out.String(), "❌ Error connecting to Mirador Core")
}
