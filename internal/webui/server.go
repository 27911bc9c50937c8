// Package webui serves the panel page, the settings editor and a live log
// tail over WebSocket.
package webui

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/platformbuilds/mirador-mcp/internal/client"
	"github.com/platformbuilds/mirador-mcp/internal/datasource"
	"github.com/platformbuilds/mirador-mcp/internal/model"
	"github.com/platformbuilds/mirador-mcp/internal/panel"
	"github.com/platformbuilds/mirador-mcp/internal/settings"
)

//go:embed static/index.html
var staticFiles embed.FS

// Options configures the web UI.
type Options struct {
	Settings *settings.Editor // nil disables the settings endpoints
	Logger   *zap.Logger
}

// Server serves the embedded web UI and the log tail.
type Server struct {
	api        client.API
	datasource *datasource.Datasource
	settings   *settings.Editor
	logger     *zap.Logger
}

// New creates a web UI server on top of api.
func New(api client.API, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		api:        api,
		datasource: datasource.New(api, logger),
		settings:   opts.Settings,
		logger:     logger.Named("webui"),
	}
}

// RegisterRoutes attaches web UI routes to an existing ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleUI)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/panels/{kind}", s.handlePanel)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("POST /api/settings", s.handlePostSettings)
	mux.HandleFunc("POST /api/settings/reset-token", s.handleResetToken)
	mux.HandleFunc("GET /ws/logs", s.handleLogTail)
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	data, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "UI not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	res := s.datasource.CheckHealth(r.Context())
	status := http.StatusOK
	if res.Status != datasource.HealthOK {
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, res)
}

// handlePanel runs one panel query and returns the rendered HTML fragment.
// Query parameters: expr, from, to, width, height, tz.
func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	kind := panel.Kind(r.PathValue("kind"))
	switch kind {
	case panel.KindMetrics, panel.KindLogs, panel.KindTraces:
	default:
		http.Error(w, fmt.Sprintf("unknown panel kind %q", kind), http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	pctx := panel.Context{Dimensions: panel.Dimensions{
		Width:  atoiOr(q.Get("width"), 0),
		Height: atoiOr(q.Get("height"), 0),
	}}
	if tz := q.Get("tz"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid time zone %q", tz), http.StatusBadRequest)
			return
		}
		pctx.Location = loc
	}

	from, to := q.Get("from"), q.Get("to")
	if from == "" && to == "" {
		from, to = "now-1h", "now"
	}
	resp := s.datasource.Query(r.Context(), datasource.Query{
		RefID:     "A",
		QueryType: datasource.QueryType(kind),
		Expr:      q.Get("expr"),
		From:      from,
		To:        to,
	})
	if resp.Error != "" {
		http.Error(w, resp.Error, http.StatusBadGateway)
		return
	}

	html, err := panel.RenderHTML(panel.Render(kind, resp.Frames, pctx, panel.DefaultOptions()))
	if err != nil {
		s.logger.Error("render panel", zap.String("kind", string(kind)), zap.Error(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

// settingsView never carries the auth token.
type settingsView struct {
	Settings   settings.Settings   `json:"settings"`
	TokenState settings.TokenState `json:"tokenState"`
	URLState   settings.URLState   `json:"urlState"`
}

func (s *Server) currentSettings() settingsView {
	return settingsView{
		Settings:   s.settings.Settings().Redacted(),
		TokenState: s.settings.TokenState(),
		URLState:   s.settings.URLState(),
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		http.Error(w, "settings are read only", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, s.currentSettings())
}

// settingsUpdate applies only the fields present in the request.
type settingsUpdate struct {
	BaseURL   *string `json:"baseURL"`
	AuthToken *string `json:"authToken"`
}

func (s *Server) handlePostSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		http.Error(w, "settings are read only", http.StatusNotFound)
		return
	}
	var upd settingsUpdate
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&upd); err != nil {
		http.Error(w, fmt.Sprintf("invalid settings: %v", err), http.StatusBadRequest)
		return
	}

	if upd.BaseURL != nil {
		s.settings.SetBaseURL(*upd.BaseURL)
	}
	if upd.AuthToken != nil {
		s.settings.SetAuthToken(*upd.AuthToken)
	}
	s.logger.Info("settings updated",
		zap.Bool("baseURL", upd.BaseURL != nil),
		zap.Bool("authToken", upd.AuthToken != nil))

	status := http.StatusOK
	if s.settings.URLState() == settings.URLInvalid {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, s.currentSettings())
}

func (s *Server) handleResetToken(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		http.Error(w, "settings are read only", http.StatusNotFound)
		return
	}
	s.settings.ResetAuthToken()
	s.writeJSON(w, http.StatusOK, s.currentSettings())
}

// wsLogLine is one log entry pushed to the browser.
type wsLogLine struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Service   string `json:"service,omitempty"`
}

// handleLogTail streams matching log entries until the client goes away.
// Query parameters: query (default "*"), maxLines.
func (s *Server) handleLogTail(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for localhost dev
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	// CloseRead cancels ctx when the client disconnects.
	ctx := conn.CloseRead(r.Context())

	q := model.LogsStreamQuery{Query: strings.TrimSpace(r.URL.Query().Get("query")), TailMode: true}
	if q.Query == "" {
		q.Query = "*"
	}
	if n := atoiOr(r.URL.Query().Get("maxLines"), 0); n > 0 {
		q.MaxLines = model.Int(n)
	}

	n, err := s.api.StreamLogs(ctx, q, func(e model.LogEntry) error {
		line := wsLogLine{Timestamp: e.Timestamp, Level: e.Level(), Message: e.Message()}
		if v := e.Fields.Get("service"); !v.IsNull() {
			line.Service = v.String()
		}
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return wsjson.Write(writeCtx, conn, line)
	})
	s.logger.Debug("log tail finished", zap.String("query", q.Query), zap.Int("lines", n), zap.Error(err))

	if err != nil && ctx.Err() == nil {
		conn.Close(websocket.StatusInternalError, truncateReason(err.Error()))
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// truncateReason keeps close reasons under the 123 byte frame limit.
func truncateReason(s string) string {
	if len(s) > 120 {
		return s[:120]
	}
	return s
}

func atoiOr(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write JSON", zap.Error(err))
	}
}
