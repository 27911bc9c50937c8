package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/platformbuilds/mirador-mcp/internal/client"
	"github.com/platformbuilds/mirador-mcp/internal/mcpserver"
	"github.com/platformbuilds/mirador-mcp/internal/otlpreceiver"
	"github.com/platformbuilds/mirador-mcp/internal/settings"
	"github.com/platformbuilds/mirador-mcp/internal/storage"
	"github.com/platformbuilds/mirador-mcp/internal/webui"
)

// ServeCommand returns the CLI command definition for the 'serve' subcommand.
// This command starts the MCP stdio server and, optionally, the local OTLP
// capture and the web UI.
func ServeCommand(version string) *cli.Command {
	flags := append(connectionFlags(),
		&cli.BoolFlag{
			Name:  "local",
			Usage: "Answer trace and log queries from locally captured OTLP data instead of Mirador Core",
		},
		&cli.IntFlag{
			Name:  "trace-buffer-size",
			Usage: "Number of spans to buffer in local mode",
			Value: 10_000,
		},
		&cli.IntFlag{
			Name:  "log-buffer-size",
			Usage: "Number of log records to buffer in local mode",
			Value: 50_000,
		},
		&cli.StringFlag{
			Name:  "otlp-host",
			Usage: "OTLP server bind address",
			Value: "127.0.0.1",
		},
		&cli.IntFlag{
			Name:  "otlp-port",
			Usage: "OTLP server port (0 for ephemeral)",
		},
		&cli.StringSliceFlag{
			Name:  "watch-dir",
			Usage: "Directory of OTLP JSON files to follow in local mode (repeatable)",
		},
		&cli.StringFlag{
			Name:  "otel-config",
			Usage: "OpenTelemetry Collector config whose file exporters are followed in local mode",
		},
		&cli.StringFlag{
			Name:  "webui-host",
			Usage: "Web UI bind address",
			Value: "127.0.0.1",
		},
		&cli.IntFlag{
			Name:  "webui-port",
			Usage: "Web UI port (0 disables the web UI)",
		},
		&cli.StringFlag{
			Name:  "otel-endpoint",
			Usage: "OTLP/gRPC host:port receiving this server's own traces",
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Start the MCP server",
		Description: `Starts an MCP server on stdio backed by Mirador Core. With --local, an
OTLP gRPC receiver is started instead (ephemeral port by default) and
trace and log tools answer from the captured data. --webui-port adds the
panel page, the settings editor and a live log tail.`,
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runServe(ctx, cmd, version)
		},
	}
}

// runServe is the action handler for the serve command.
// It wires together all components: backend, capture, MCP server and web UI.
func runServe(cliCtx context.Context, cmd *cli.Command, version string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(cliCtx)
	defer cancel()

	shutdownTelemetry, err := setupTelemetry(ctx, cfg.OtelEndpoint, version)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	token, err := cfg.ResolveToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve auth token: %w", err)
	}
	logger.Debug("configuration",
		zap.String("mirador_url", cfg.MiradorURL),
		zap.String("tenant", cfg.TenantID),
		zap.Bool("local", cfg.Local),
		zap.Bool("token", token != ""),
		zap.Int("webui_port", cfg.WebUIPort))

	// 1. Backend: Mirador Core, or the local capture buffers
	var (
		api     client.API
		capture *mcpserver.Capture
		receive *otlpreceiver.Server
		reload  = func(settings.Settings) {}
	)
	if cfg.Local {
		capture = &mcpserver.Capture{
			Traces: storage.NewTraceStore(cfg.TraceBufferSize),
			Logs:   storage.NewLogTail(cfg.LogBufferSize),
		}
		api = storage.NewLocalAPI(capture.Traces, capture.Logs, version)

		// 2. OTLP receiver feeding the buffers
		receive, err = otlpreceiver.NewServer(otlpreceiver.Config{Host: cfg.OTLPHost, Port: cfg.OTLPPort},
			otlpreceiver.StoreSink{Traces: capture.Traces, Logs: capture.Logs}, logger)
		if err != nil {
			return fmt.Errorf("failed to create OTLP server: %w", err)
		}
		capture.Endpoint = receive.Endpoint()
	} else {
		c, err := remoteClient(cfg, cfg.MiradorURL, token, version, logger)
		if err != nil {
			return err
		}
		swap := client.NewSwappable(c)
		api = swap
		reload = clientReloader(cfg, swap, cfg.MiradorURL, token, version, logger)
	}

	// settings edits are logged without the token; in remote mode a usable
	// change also swaps the client
	onChange := func(s settings.Settings) {
		logger.Info("data source settings changed",
			zap.String("base_url", s.JSONData.BaseURL),
			zap.Bool("token_configured", s.SecureJSONFields.AuthToken || s.SecureJSONData.AuthToken != ""))
		reload(s)
	}
	editor := settings.NewEditor(cfg.Settings(token), onChange)

	// 3. MCP server
	mcpServer, err := mcpserver.NewServer(api, mcpserver.ServerOptions{
		Logger:   logger,
		Settings: editor,
		Capture:  capture,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	errCh := make(chan error, 2)
	if receive != nil {
		go func() {
			if err := receive.Start(ctx); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("OTLP server error: %w", err)
			}
		}()
		fmt.Fprintf(os.Stderr, "🌐 OTLP gRPC receiver listening on %s\n", capture.Endpoint)
		fmt.Fprintf(os.Stderr, "   OTEL_EXPORTER_OTLP_ENDPOINT=http://%s\n", capture.Endpoint)

		for _, dir := range cfg.WatchDirs {
			if err := mcpServer.AddFileSource(ctx, dir, true); err != nil {
				logger.Warn("cannot watch directory", zap.String("dir", dir), zap.Error(err))
				continue
			}
			fmt.Fprintf(os.Stderr, "📂 Watching %s\n", dir)
		}
	} else if len(cfg.WatchDirs) > 0 {
		logger.Warn("watch directories need --local; ignoring", zap.Strings("dirs", cfg.WatchDirs))
	}

	// 4. Optional web UI
	if cfg.WebUIPort > 0 {
		addr := net.JoinHostPort(cfg.WebUIHost, strconv.Itoa(cfg.WebUIPort))
		ui := webui.New(api, webui.Options{Settings: editor, Logger: logger})
		go func() {
			if err := ui.ListenAndServe(ctx, addr); err != nil {
				errCh <- fmt.Errorf("web UI error: %w", err)
			}
		}()
		fmt.Fprintf(os.Stderr, "🖥️  Web UI on http://%s\n", addr)
	}

	// 5. Setup graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", zap.Stringer("signal", sig))
		case err := <-errCh:
			logger.Error("component failed, shutting down", zap.Error(err))
			errCh <- err
		case <-ctx.Done():
		}
		cancel()
		if receive != nil {
			receive.Stop()
		}
	}()

	// 6. Run MCP server on stdio (blocks until stdin closes or context cancelled)
	fmt.Fprintln(os.Stderr, "🎯 MCP server ready on stdio")

	runErr := mcpServer.Run(ctx)
	cancel()
	if receive != nil {
		receive.StopWait()
	}

	select {
	case err := <-errCh:
		return err
	default:
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("MCP server error: %w", runErr)
	}
	return nil
}

// clientReloader returns a settings callback that swaps in a new client when
// the base URL or token changes to something usable. Invalid edits keep the
// current client.
func clientReloader(cfg *Config, swap *client.Swappable, baseURL, token, version string, logger *zap.Logger) func(settings.Settings) {
	var mu sync.Mutex
	return func(s settings.Settings) {
		if s.JSONData.Error != "" || strings.TrimSpace(s.JSONData.BaseURL) == "" {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if s.JSONData.BaseURL == baseURL && s.SecureJSONData.AuthToken == token {
			return
		}
		c, err := remoteClient(cfg, s.JSONData.BaseURL, s.SecureJSONData.AuthToken, version, logger)
		if err != nil {
			logger.Warn("keeping current Mirador Core client", zap.Error(err))
			return
		}
		swap.Replace(c)
		baseURL, token = s.JSONData.BaseURL, s.SecureJSONData.AuthToken
		logger.Info("switched Mirador Core client", zap.String("base_url", c.BaseURL()))
	}
}
