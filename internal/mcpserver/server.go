// Package mcpserver exposes Mirador Core queries, panel rendering and the
// local capture buffers as MCP tools and resources.
package mcpserver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/platformbuilds/mirador-mcp/internal/client"
	"github.com/platformbuilds/mirador-mcp/internal/datasource"
	"github.com/platformbuilds/mirador-mcp/internal/filereader"
	"github.com/platformbuilds/mirador-mcp/internal/otlpreceiver"
	"github.com/platformbuilds/mirador-mcp/internal/settings"
	"github.com/platformbuilds/mirador-mcp/internal/storage"
)

// Version is reported in the MCP implementation metadata.
const Version = "0.1.0"

// Capture is the local telemetry capture: the buffers filled by the OTLP
// receiver and any watched directories.
type Capture struct {
	Traces   *storage.TraceStore
	Logs     *storage.LogTail
	Endpoint string // OTLP gRPC endpoint, empty when no receiver runs
}

func (c *Capture) sink() otlpreceiver.StoreSink {
	return otlpreceiver.StoreSink{Traces: c.Traces, Logs: c.Logs}
}

// ServerOptions configures the MCP server.
type ServerOptions struct {
	Logger   *zap.Logger
	Settings *settings.Editor // nil hides mirador://settings
	Capture  *Capture         // nil hides the capture tools
	Now      func() time.Time
}

// Server wraps the MCP server around a Mirador Core API.
type Server struct {
	mcpServer  *mcp.Server
	api        client.API
	datasource *datasource.Datasource
	settings   *settings.Editor
	capture    *Capture
	logger     *zap.Logger
	now        func() time.Time

	fileSourcesMu sync.RWMutex
	fileSources   map[string]*filereader.FileSource
}

// NewServer registers the tools and resources against api.
func NewServer(api client.API, opts ServerOptions) (*Server, error) {
	if api == nil {
		return nil, fmt.Errorf("api cannot be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		api:         api,
		datasource:  datasource.New(api, logger, datasource.WithClock(now)),
		settings:    opts.Settings,
		capture:     opts.Capture,
		logger:      logger.Named("mcp"),
		now:         now,
		fileSources: make(map[string]*filereader.FileSource),
	}

	instructions := `Mirador Core observability server: metrics (MetricsQL), logs (Lucene/Bleve) and traces.

Workflow: mirador_health -> mirador_trace_services / mirador_query_* -> mirador_get_trace for a waterfall.
Times accept unix milliseconds, RFC3339, "now" or "now-1h". Panels render with mirador_render_panel.
Resources: mirador://health, mirador://settings.`
	if s.capture != nil {
		instructions += `

Local capture: point OTEL_EXPORTER_OTLP_ENDPOINT at mirador_capture_status's endpoint; captured traces and logs are queryable with the same tools.`
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "mirador-mcp",
		Title:   "Mirador Stack observability for agents",
		Version: Version,
	}, &mcp.ServerOptions{Instructions: instructions})

	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run serves MCP over stdio until ctx is cancelled or stdin closes.
func (s *Server) Run(ctx context.Context) error {
	err := s.mcpServer.Run(ctx, &mcp.StdioTransport{})
	s.stopAllFileSources()
	return err
}

// MCPServer returns the underlying server for other transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// Shutdown stops watched directories when a non-stdio transport is used.
func (s *Server) Shutdown() {
	s.stopAllFileSources()
}

// AddFileSource starts following a directory of OTLP JSON files into the
// capture buffers.
func (s *Server) AddFileSource(ctx context.Context, directory string, activeOnly bool) error {
	if s.capture == nil {
		return fmt.Errorf("local capture is not enabled")
	}

	s.fileSourcesMu.Lock()
	defer s.fileSourcesMu.Unlock()

	if _, exists := s.fileSources[directory]; exists {
		return fmt.Errorf("directory %s is already being watched", directory)
	}

	fs, err := filereader.New(filereader.Config{
		Directory:  directory,
		ActiveOnly: activeOnly,
	}, s.capture.sink(), s.logger)
	if err != nil {
		return fmt.Errorf("failed to create file source: %w", err)
	}
	if err := fs.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file source: %w", err)
	}

	s.fileSources[directory] = fs
	return nil
}

// RemoveFileSource stops following a directory. The source is stopped
// outside the lock.
func (s *Server) RemoveFileSource(directory string) error {
	s.fileSourcesMu.Lock()
	fs, exists := s.fileSources[directory]
	if !exists {
		s.fileSourcesMu.Unlock()
		return fmt.Errorf("directory %s is not being watched", directory)
	}
	delete(s.fileSources, directory)
	s.fileSourcesMu.Unlock()

	fs.Stop()
	return nil
}

// FileSourceStats returns stats for every watched directory, sorted.
func (s *Server) FileSourceStats() []filereader.Stats {
	s.fileSourcesMu.RLock()
	stats := make([]filereader.Stats, 0, len(s.fileSources))
	for _, fs := range s.fileSources {
		stats = append(stats, fs.Stats())
	}
	s.fileSourcesMu.RUnlock()

	sort.Slice(stats, func(i, j int) bool { return stats[i].Directory < stats[j].Directory })
	return stats
}

func (s *Server) stopAllFileSources() {
	s.fileSourcesMu.Lock()
	sources := make([]*filereader.FileSource, 0, len(s.fileSources))
	for _, fs := range s.fileSources {
		sources = append(sources, fs)
	}
	clear(s.fileSources)
	s.fileSourcesMu.Unlock()

	for _, fs := range sources {
		fs.Stop()
	}
}
