package filereader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/mirador-mcp/internal/model"
	"github.com/platformbuilds/mirador-mcp/internal/otlpreceiver"
	"github.com/platformbuilds/mirador-mcp/internal/storage"
)

const traceLine = `{"resourceSpans":[{"resource":{"attributes":[{"key":"service.name","value":{"stringValue":"checkout"}}]},"scopeSpans":[{"spans":[{"traceId":"0102030405060708090a0b0c0d0e0f10","spanId":"1111111111111111","name":"PlaceOrder","startTimeUnixNano":"1714564800000000000","endTimeUnixNano":"1714564800250000000"}]}]}]}`

const logLine = `{"resourceLogs":[{"resource":{"attributes":[{"key":"service.name","value":{"stringValue":"payments"}}]},"scopeLogs":[{"logRecords":[{"timeUnixNano":"1714564800000000000","severityText":"ERROR","body":{"stringValue":"card declined"}}]}]}]}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(content)
	require.NoError(t, err)
}

func newSink() (otlpreceiver.StoreSink, *storage.TraceStore, *storage.LogTail) {
	traces := storage.NewTraceStore(100)
	logs := storage.NewLogTail(100)
	return otlpreceiver.StoreSink{Traces: traces, Logs: logs}, traces, logs
}

func TestNewValidatesDirectory(t *testing.T) {
	sink, _, _ := newSink()

	_, err := New(Config{}, sink, nil)
	assert.Error(t, err)

	_, err = New(Config{Directory: filepath.Join(t.TempDir(), "missing")}, sink, nil)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "plain")
	writeFile(t, file, "")
	_, err = New(Config{Directory: file}, sink, nil)
	assert.Error(t, err)
}

func TestInitialLoadAndFollow(t *testing.T) {
	dir := t.TempDir()
	tracesPath := filepath.Join(dir, "traces", "traces.jsonl")
	writeFile(t, tracesPath, traceLine+"\n"+"not json\n")
	writeFile(t, filepath.Join(dir, "logs", "logs.jsonl"), logLine+"\n")
	writeFile(t, filepath.Join(dir, "traces", "traces-2024-05-01T00-00-00.jsonl"), traceLine+"\n")

	sink, traces, logs := newSink()
	src, err := New(Config{Directory: dir, ActiveOnly: true}, sink, nil)
	require.NoError(t, err)
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	assert.Equal(t, 1, traces.Stats().SpanCount, "archive skipped and bad line ignored")
	assert.Equal(t, 1, logs.Stats().LogCount)

	tr, ok := traces.Trace("0102030405060708090a0b0c0d0e0f10")
	require.True(t, ok)
	assert.Equal(t, int64(250), tr.Spans[0].Duration)
	assert.Equal(t, "checkout", tr.Spans[0].Service)

	appendFile(t, tracesPath, traceLine+"\n")
	require.Eventually(t, func() bool {
		return traces.Stats().SpanCount == 2
	}, 5*time.Second, 20*time.Millisecond)

	stats := src.Stats()
	assert.Equal(t, dir, stats.Directory)
	assert.Len(t, stats.WatchedDirs, 2)
}

func TestDecodeKeepsHexIDs(t *testing.T) {
	const childLine = `{"resourceSpans":[{"resource":{"attributes":[{"key":"service.name","value":{"stringValue":"payments"}}]},"scopeSpans":[{"spans":[{"traceId":"0102030405060708090a0b0c0d0e0f10","spanId":"2222222222222222","parentSpanId":"1111111111111111","name":"Charge","startTimeUnixNano":"1714564800010000000","endTimeUnixNano":"1714564800130000000"}]}]}]}`
	const correlatedLog = `{"resourceLogs":[{"resource":{},"scopeLogs":[{"logRecords":[{"timeUnixNano":"1714564800000000000","traceId":"0102030405060708090a0b0c0d0e0f10","spanId":"2222222222222222","body":{"stringValue":"charged"}}]}]}]}`

	path := filepath.Join(t.TempDir(), "traces", "export.jsonl")
	writeFile(t, path, traceLine+"\n"+childLine+"\n")
	sink, traces, logs := newSink()
	n, err := Import(context.Background(), path, sink)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tr, ok := traces.Trace("0102030405060708090a0b0c0d0e0f10")
	require.True(t, ok, "trace is indexed by its hex id")
	require.Len(t, tr.Spans, 2)
	ids := map[string]string{}
	for _, sp := range tr.Spans {
		ids[sp.ID] = sp.ParentID
	}
	assert.Equal(t, map[string]string{"1111111111111111": "", "2222222222222222": "1111111111111111"}, ids)

	data, err := decodeLogs([]byte(correlatedLog))
	require.NoError(t, err)
	require.NoError(t, sink.ReceiveLogs(context.Background(), otlpreceiver.LogsFromOTLP(data.GetResourceLogs())))
	resp, err := logs.Query(model.LogsQuery{Query: "message:charged"})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", resp.Hits[0].Fields.Get("trace_id").String())
	assert.Equal(t, "2222222222222222", resp.Hits[0].Fields.Get("span_id").String())

	_, err = decodeTraces([]byte("not json"))
	assert.ErrorContains(t, err, "parse trace JSON")
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	sink, traces, logs := newSink()

	jsonPath := filepath.Join(dir, "traces.json")
	writeFile(t, jsonPath, traceLine)
	n, err := Import(context.Background(), jsonPath, sink)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, traces.Stats().SpanCount)

	// no trailing newline
	linesPath := filepath.Join(dir, "logs", "export.jsonl")
	writeFile(t, linesPath, logLine+"\n"+logLine)
	n, err = Import(context.Background(), linesPath, sink)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	resp, err := logs.Query(model.LogsQuery{Query: "level:error"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.Total)

	_, err = Import(context.Background(), filepath.Join(dir, "metrics.json"), sink)
	assert.Error(t, err)
}
