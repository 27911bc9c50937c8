package webui

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/mirador-mcp/internal/model"
	"github.com/platformbuilds/mirador-mcp/internal/settings"
	"github.com/platformbuilds/mirador-mcp/internal/storage"
)

func logEntry(level, msg string) model.LogEntry {
	return model.LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Fields: model.Fields{
			"level":   model.StringValue(level),
			"message": model.StringValue(msg),
			"service": model.StringValue("checkout"),
		},
	}
}

type fixture struct {
	srv    *httptest.Server
	logs   *storage.LogTail
	editor *settings.Editor
	saved  []settings.Settings
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{logs: storage.NewLogTail(100)}
	f.logs.Append(logEntry("error", "payment failed"))

	traces := storage.NewTraceStore(100)
	traces.Add(model.Span{ID: "a", TraceID: "t1", Name: "GET /cart", Service: "checkout", Operation: "GET /cart",
		StartTime: time.Now().Add(-time.Minute).UnixMilli(), Duration: 12})

	f.editor = settings.NewEditor(settings.Settings{
		JSONData:       settings.DataSourceOptions{BaseURL: "http://mirador:8080"},
		SecureJSONData: settings.SecureJSONData{AuthToken: "s3cret"},
	}, func(s settings.Settings) { f.saved = append(f.saved, s) })

	ui := New(storage.NewLocalAPI(traces, f.logs, "test"), Options{Settings: f.editor})
	mux := http.NewServeMux()
	ui.RegisterRoutes(mux)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func post(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestIndex(t *testing.T) {
	f := newFixture(t)
	status, body := get(t, f.srv.URL+"/")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "<title>Mirador</title>")

	status, _ = get(t, f.srv.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	status, body := get(t, f.srv.URL+"/api/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Success: Connected to Mirador Core")
}

func TestPanels(t *testing.T) {
	f := newFixture(t)

	status, body := get(t, f.srv.URL+"/api/panels/logs?expr=level:error&width=600&height=200")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "payment failed")

	status, body = get(t, f.srv.URL+"/api/panels/traces?expr=service%3Dcheckout&tz=UTC")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "GET /cart")

	// metrics need Mirador Core
	status, body = get(t, f.srv.URL+"/api/panels/metrics?expr=up")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, body, "metrics query failed")

	status, _ = get(t, f.srv.URL+"/api/panels/profiles")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = get(t, f.srv.URL+"/api/panels/logs?tz=Nowhere/Special")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSettingsNeverExposeToken(t *testing.T) {
	f := newFixture(t)

	status, body := get(t, f.srv.URL+"/api/settings")
	assert.Equal(t, http.StatusOK, status)
	assert.NotContains(t, body, "s3cret")
	assert.Contains(t, body, `"tokenState":"configured"`)

	code, view := post(t, f.srv.URL+"/api/settings", `{"authToken":"rotated"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "editing", view["tokenState"])
	require.NotEmpty(t, f.saved)
	assert.Equal(t, "rotated", f.saved[len(f.saved)-1].SecureJSONData.AuthToken)

	_, body = get(t, f.srv.URL+"/api/settings")
	assert.NotContains(t, body, "rotated")
}

func TestSettingsValidation(t *testing.T) {
	f := newFixture(t)

	code, view := post(t, f.srv.URL+"/api/settings", `{"baseURL":"not a url"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "invalid", view["urlState"])
	assert.Equal(t, settings.MsgURLInvalid, f.editor.Settings().JSONData.Error)

	code, _ = post(t, f.srv.URL+"/api/settings", `{"colour":"red"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, view = post(t, f.srv.URL+"/api/settings", `{"baseURL":"https://mirador.example.com"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "valid", view["urlState"])
}

func TestResetToken(t *testing.T) {
	f := newFixture(t)
	code, view := post(t, f.srv.URL+"/api/settings/reset-token", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "reset", view["tokenState"])
	assert.Empty(t, f.editor.Settings().SecureJSONData.AuthToken)
	assert.False(t, f.editor.Settings().SecureJSONFields.AuthToken)
}

func TestReadOnlySettings(t *testing.T) {
	ui := New(storage.NewLocalAPI(nil, nil, "test"), Options{})
	mux := http.NewServeMux()
	ui.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	status, _ := get(t, srv.URL+"/api/settings")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestLogTail(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/logs?query=level:error"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var line wsLogLine
	require.NoError(t, wsjson.Read(ctx, conn, &line))
	assert.Equal(t, "payment failed", line.Message)
	assert.Equal(t, "checkout", line.Service)

	// only new matching entries follow the backlog
	f.logs.Append(logEntry("info", "cart viewed"))
	f.logs.Append(logEntry("error", "card declined"))
	require.NoError(t, wsjson.Read(ctx, conn, &line))
	assert.Equal(t, "card declined", line.Message)
	assert.Equal(t, "error", line.Level)
}
