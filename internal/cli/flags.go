package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/platformbuilds/mirador-mcp/internal/client"
)

// connectionFlags are shared by every command that talks to Mirador Core.
func connectionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Config file (YAML, or JSON by extension); default is .mirador-mcp.yaml up to the repo root",
		},
		&cli.StringFlag{
			Name:  "mirador-url",
			Usage: "Mirador Core base URL (env " + EnvURL + ")",
		},
		&cli.StringFlag{
			Name:  "tenant",
			Usage: "Tenant sent as X-Tenant-ID (env " + EnvTenant + ")",
		},
		&cli.StringFlag{
			Name:  "timeout",
			Usage: "Per-request timeout, e.g. 30s",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable debug logging on stderr",
		},
	}
}

// loadConfig layers the command's flags over LoadEffectiveConfig.
func loadConfig(cmd *cli.Command) (*Config, error) {
	cfg, err := LoadEffectiveConfig(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	overlay := &Config{
		MiradorURL: cmd.String("mirador-url"),
		TenantID:   cmd.String("tenant"),
		Timeout:    cmd.String("timeout"),
		Verbose:    cmd.Bool("verbose"),
	}
	if cmd.Bool("local") || len(cmd.StringSlice("import")) > 0 {
		overlay.Local = true
	}
	if cmd.IsSet("trace-buffer-size") {
		overlay.TraceBufferSize = int(cmd.Int("trace-buffer-size"))
	}
	if cmd.IsSet("log-buffer-size") {
		overlay.LogBufferSize = int(cmd.Int("log-buffer-size"))
	}
	if cmd.IsSet("otlp-host") {
		overlay.OTLPHost = cmd.String("otlp-host")
	}
	if cmd.IsSet("otlp-port") {
		overlay.OTLPPort = int(cmd.Int("otlp-port"))
	}
	if cmd.IsSet("watch-dir") {
		overlay.WatchDirs = cmd.StringSlice("watch-dir")
	}
	if cmd.IsSet("webui-port") {
		overlay.WebUIPort = int(cmd.Int("webui-port"))
	}
	if cmd.IsSet("webui-host") {
		overlay.WebUIHost = cmd.String("webui-host")
	}
	if cmd.IsSet("otel-endpoint") {
		overlay.OtelEndpoint = cmd.String("otel-endpoint")
	}
	cfg = MergeConfigs(cfg, overlay)

	if path := cmd.String("otel-config"); path != "" {
		dirs, err := ParseOtelConfig(path)
		if err != nil {
			return nil, err
		}
		cfg.WatchDirs = appendUnique(cfg.WatchDirs, dirs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// newClient resolves the auth token and builds the Mirador Core client.
func newClient(ctx context.Context, cfg *Config, logger *zap.Logger, version string) (*client.Client, error) {
	token, err := cfg.ResolveToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve auth token: %w", err)
	}
	return remoteClient(cfg, cfg.MiradorURL, token, version, logger)
}

func remoteClient(cfg *Config, baseURL, token, version string, logger *zap.Logger) (*client.Client, error) {
	return client.New(client.Options{
		BaseURL:   baseURL,
		AuthToken: token,
		TenantID:  cfg.TenantID,
		Timeout:   cfg.TimeoutDuration(),
		UserAgent: "mirador-mcp/" + version,
		Logger:    logger,
	})
}

func appendUnique(dst []string, more ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, d := range dst {
		seen[d] = true
	}
	for _, d := range more {
		if !seen[d] {
			seen[d] = true
			dst = append(dst, d)
		}
	}
	return dst
}
