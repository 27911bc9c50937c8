package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// registerResources registers all MCP resources and resource templates.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "mirador://health",
		Name:        "health",
		Description: "Mirador Core liveness, version and per-component readiness.",
		MIMEType:    "text/plain",
	}, s.handleHealthResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "mirador://services",
		Name:        "services",
		Description: "Services that reported spans.",
		MIMEType:    "text/plain",
	}, s.handleServicesResource)

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "mirador://services/{service}",
		Name:        "service-detail",
		Description: "Operations of one service.",
		MIMEType:    "text/plain",
	}, s.handleServiceDetailResource)

	if s.settings != nil {
		s.mcpServer.AddResource(&mcp.Resource{
			URI:         "mirador://settings",
			Name:        "settings",
			Description: "Data source settings. The auth token is never shown, only whether one is configured.",
			MIMEType:    "application/json",
		}, s.handleSettingsResource)
	}

	if s.capture != nil {
		s.mcpServer.AddResource(&mcp.Resource{
			URI:         "mirador://capture",
			Name:        "capture",
			Description: "Local capture endpoint, buffer counts and capacities.",
			MIMEType:    "text/plain",
		}, s.handleCaptureResource)

		s.mcpServer.AddResource(&mcp.Resource{
			URI:         "mirador://file-sources",
			Name:        "file-sources",
			Description: "Directories being followed for OTLP JSON lines.",
			MIMEType:    "text/plain",
		}, s.handleFileSourcesResource)
	}
}

// ─── Static resource handlers ───────────────────────────────────────────

func (s *Server) handleHealthResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	_, out, err := s.handleHealth(ctx, nil, HealthInput{})
	if err != nil {
		return nil, err
	}
	return textResult(req.Params.URI, out.Summary), nil
}

func (s *Server) handleServicesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	services, err := s.api.TraceServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	sort.Strings(services)

	var b strings.Builder
	fmt.Fprintf(&b, "Services (%d)\n", len(services))
	b.WriteString("════════════\n")
	if len(services) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, svc := range services {
		fmt.Fprintf(&b, "  %s\n", svc)
	}
	return textResult(req.Params.URI, b.String()), nil
}

func (s *Server) handleSettingsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	view := struct {
		Settings   any    `json:"settings"`
		TokenState string `json:"tokenState"`
		URLState   string `json:"urlState"`
	}{
		Settings:   s.settings.Settings().Redacted(),
		TokenState: string(s.settings.TokenState()),
		URLState:   string(s.settings.URLState()),
	}
	b, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(b),
		}},
	}, nil
}

func (s *Server) handleCaptureResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	ts, ls := s.capture.Traces.Stats(), s.capture.Logs.Stats()

	var b strings.Builder
	b.WriteString("Local Capture\n")
	b.WriteString("═════════════\n")
	if s.capture.Endpoint != "" {
		fmt.Fprintf(&b, "  Endpoint:  %s (grpc)\n", s.capture.Endpoint)
		fmt.Fprintf(&b, "  Export:    OTEL_EXPORTER_OTLP_ENDPOINT=http://%s\n", s.capture.Endpoint)
	} else {
		b.WriteString("  Endpoint:  (receiver disabled)\n")
	}
	b.WriteByte('\n')
	fmt.Fprintf(&b, "  Spans:     %s / %s (%s)\n", fmtNum(ts.SpanCount), fmtNum(ts.Capacity), fmtPct(ts.SpanCount, ts.Capacity))
	fmt.Fprintf(&b, "  Traces:    %s\n", fmtNum(ts.TraceCount))
	fmt.Fprintf(&b, "  Logs:      %s / %s (%s)\n", fmtNum(ls.LogCount), fmtNum(ls.Capacity), fmtPct(ls.LogCount, ls.Capacity))
	fmt.Fprintf(&b, "  Received:  %s spans, %s logs\n", fmtNum(int(ts.Received)), fmtNum(int(ls.Received)))

	if len(ls.Levels) > 0 {
		b.WriteString("\n  Log Levels:\n")
		levels := make([]string, 0, len(ls.Levels))
		for k := range ls.Levels {
			levels = append(levels, k)
		}
		sort.Strings(levels)
		for _, lvl := range levels {
			fmt.Fprintf(&b, "    %-8s %s\n", lvl, fmtNum(ls.Levels[lvl]))
		}
	}
	return textResult(req.Params.URI, b.String()), nil
}

func (s *Server) handleFileSourcesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	stats := s.FileSourceStats()

	var b strings.Builder
	fmt.Fprintf(&b, "File Sources (%d)\n", len(stats))
	b.WriteString("═════════════════\n")

	if len(stats) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, stat := range stats {
		fmt.Fprintf(&b, "  %s\n", stat.Directory)
		fmt.Fprintf(&b, "    Files tracked: %d\n", stat.FilesTracked)
		if len(stat.WatchedDirs) > 0 {
			b.WriteString("    Watching:\n")
			for _, dir := range stat.WatchedDirs {
				fmt.Fprintf(&b, "      • %s\n", dir)
			}
		}
	}

	return textResult(req.Params.URI, b.String()), nil
}

// ─── Resource template handlers ─────────────────────────────────────────

func (s *Server) handleServiceDetailResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	service, err := extractURIParam(req.Params.URI, "mirador://services/")
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	ops, err := s.api.TraceOperations(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	if len(ops) == 0 {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	sort.Strings(ops)

	var b strings.Builder
	fmt.Fprintf(&b, "Service: %s\n", service)
	b.WriteString(strings.Repeat("═", len(service)+9) + "\n")
	fmt.Fprintf(&b, "  Operations (%d):\n", len(ops))
	for _, op := range ops {
		fmt.Fprintf(&b, "    %s\n", op)
	}
	return textResult(req.Params.URI, b.String()), nil
}

// ─── Helpers ────────────────────────────────────────────────────────────

// extractURIParam strips the prefix and URL-decodes the remainder.
func extractURIParam(uri, prefix string) (string, error) {
	if !strings.HasPrefix(uri, prefix) {
		return "", fmt.Errorf("invalid URI: %s", uri)
	}
	param := strings.TrimPrefix(uri, prefix)
	if param == "" {
		return "", fmt.Errorf("empty parameter in URI: %s", uri)
	}
	decoded, err := url.PathUnescape(param)
	if err != nil {
		return "", fmt.Errorf("invalid encoding in URI: %w", err)
	}
	return decoded, nil
}

func textResult(uri, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:  uri,
			Text: text,
		}},
	}
}

// fmtNum formats an integer with comma separators (e.g. 10,000).
func fmtNum(n int) string {
	if n < 0 {
		return "-" + fmtNum(-n)
	}
	s := fmt.Sprintf("%d", n)
	if n < 1000 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

func fmtPct(count, capacity int) string {
	if capacity == 0 {
		return "─"
	}
	return fmt.Sprintf("%.0f%%", float64(count)/float64(capacity)*100)
}
