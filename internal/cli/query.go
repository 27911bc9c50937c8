package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/platformbuilds/mirador-mcp/internal/client"
	"github.com/platformbuilds/mirador-mcp/internal/datasource"
	"github.com/platformbuilds/mirador-mcp/internal/filereader"
	"github.com/platformbuilds/mirador-mcp/internal/model"
	"github.com/platformbuilds/mirador-mcp/internal/otlpreceiver"
	"github.com/platformbuilds/mirador-mcp/internal/panel"
	"github.com/platformbuilds/mirador-mcp/internal/storage"
	"github.com/platformbuilds/mirador-mcp/internal/viz"
)

// importFlag loads OTLP JSON files and queries them instead of Mirador Core.
func importFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:  "import",
		Usage: "OTLP JSON file to query instead of Mirador Core (repeatable; traces*/logs* names)",
	}
}

// QueryCommand returns 'query metrics|logs|traces'.
func QueryCommand(version string) *cli.Command {
	sub := func(kind panel.Kind, usage, argName string) *cli.Command {
		return &cli.Command{
			Name:      string(kind),
			Usage:     usage,
			ArgsUsage: argName,
			Flags: append(connectionFlags(), importFlag(),
				&cli.StringFlag{Name: "from", Usage: "Range start: unix ms, RFC3339, now or now-<duration>", Value: "now-1h"},
				&cli.StringFlag{Name: "to", Usage: "Range end", Value: "now"},
				&cli.IntFlag{Name: "width", Usage: "Output width in characters", Value: 100},
				&cli.IntFlag{Name: "height", Usage: "Plot height in rows", Value: 16},
				&cli.StringFlag{Name: "tz", Usage: "Time zone for timestamps, e.g. Europe/Berlin"},
			),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return runQuery(ctx, cmd, version, kind, os.Stdout)
			},
		}
	}
	return &cli.Command{
		Name:  "query",
		Usage: "Run a metrics, logs or traces query and print the rendered panel",
		Commands: []*cli.Command{
			sub(panel.KindMetrics, "Run a MetricsQL range query", "<expr>"),
			sub(panel.KindLogs, "Search logs (Lucene syntax)", "[query]"),
			sub(panel.KindTraces, "Search traces: service=... operation=... minDuration=... tag.key=value", "[expr]"),
		},
	}
}

func runQuery(ctx context.Context, cmd *cli.Command, version string, kind panel.Kind, w io.Writer) error {
	cfg, logger, err := commandSetup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	api, err := openBackend(ctx, cmd, cfg, logger, version)
	if err != nil {
		return err
	}

	pctx := panel.Context{Dimensions: panel.Dimensions{Width: int(cmd.Int("width")), Height: int(cmd.Int("height"))}}
	if tz := cmd.String("tz"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("invalid time zone %q: %w", tz, err)
		}
		pctx.Location = loc
	}

	expr := cmd.Args().First()
	if kind == panel.KindMetrics && expr == "" {
		return fmt.Errorf("a MetricsQL expression is required")
	}

	resp := datasource.New(api, logger).Query(ctx, datasource.Query{
		RefID:     "A",
		QueryType: datasource.QueryType(kind),
		Expr:      expr,
		From:      cmd.String("from"),
		To:        cmd.String("to"),
	})
	if resp.Error != "" {
		return fmt.Errorf("%s", resp.Error)
	}
	fmt.Fprint(w, panel.RenderText(panel.Render(kind, resp.Frames, pctx, panel.DefaultOptions())))
	return nil
}

// TraceCommand returns 'trace <id>', printing the trace waterfall.
func TraceCommand(version string) *cli.Command {
	return &cli.Command{
		Name:      "trace",
		Usage:     "Print one trace as a waterfall",
		ArgsUsage: "<trace-id>",
		Flags: append(connectionFlags(), importFlag(),
			&cli.IntFlag{Name: "width", Usage: "Output width in characters", Value: 120},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runTrace(ctx, cmd, version, os.Stdout)
		},
	}
}

func runTrace(ctx context.Context, cmd *cli.Command, version string, w io.Writer) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("a trace id is required")
	}
	cfg, logger, err := commandSetup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	api, err := openBackend(ctx, cmd, cfg, logger, version)
	if err != nil {
		return err
	}
	resp, err := api.TraceByID(ctx, model.TracesByIdQuery{
		BaseQuery: model.BaseQuery{TenantScope: model.TenantScope{TenantID: cfg.TenantID}},
		TraceID:   id,
	})
	if err != nil {
		return fmt.Errorf("trace %s: %w", id, err)
	}
	fmt.Fprint(w, viz.Waterfall(resp.Traces, int(cmd.Int("width"))))
	return nil
}

// HealthCommand returns 'health', checking Mirador Core liveness and
// readiness.
func HealthCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check that Mirador Core is reachable and ready",
		Flags: connectionFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runHealth(ctx, cmd, version, os.Stdout)
		},
	}
}

func runHealth(ctx context.Context, cmd *cli.Command, version string, w io.Writer) error {
	cfg, logger, err := commandSetup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	api, err := newClient(ctx, cfg, logger, version)
	if err != nil {
		return err
	}

	res := datasource.New(api, logger).CheckHealth(ctx)
	if res.Status != datasource.HealthOK {
		fmt.Fprintln(w, color.RedString("❌ %s", res.Message))
		return fmt.Errorf("mirador core at %s is unhealthy", cfg.MiradorURL)
	}
	fmt.Fprintln(w, color.GreenString("✅ %s", res.Message))

	h, _ := api.Health(ctx)
	r, err := api.Readiness(ctx)
	if err != nil {
		fmt.Fprintln(w, color.YellowString("⚠️  readiness unavailable: %v", err))
		r = nil
	}
	fmt.Fprint(w, viz.Health(h, r))
	return nil
}

// commandSetup loads the configuration and the logger for one-shot
// commands.
func commandSetup(cmd *cli.Command) (*Config, *zap.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

// openBackend returns Mirador Core, or a LocalAPI over the --import files.
func openBackend(ctx context.Context, cmd *cli.Command, cfg *Config, logger *zap.Logger, version string) (client.API, error) {
	files := cmd.StringSlice("import")
	if len(files) == 0 {
		return newClient(ctx, cfg, logger, version)
	}

	traces := storage.NewTraceStore(cfg.TraceBufferSize)
	logs := storage.NewLogTail(cfg.LogBufferSize)
	sink := otlpreceiver.StoreSink{Traces: traces, Logs: logs}
	for _, path := range files {
		n, err := filereader.Import(ctx, path, sink)
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", path, err)
		}
		logger.Debug("imported", zap.String("path", path), zap.Int("documents", n))
	}
	return storage.NewLocalAPI(traces, logs, version), nil
}
