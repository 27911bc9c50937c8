package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	cliframework "github.com/urfave/cli/v3"

	"github.com/platformbuilds/mirador-mcp/internal/cli"
	"github.com/platformbuilds/mirador-mcp/internal/mcpserver"
)

func main() {
	version := mcpserver.Version
	app := &cliframework.Command{
		Name:    "mirador-mcp",
		Usage:   "Mirador Stack observability for AI agents and the terminal",
		Version: version,
		Commands: []*cliframework.Command{
			cli.ServeCommand(version),
			cli.QueryCommand(version),
			cli.TraceCommand(version),
			cli.HealthCommand(version),
			cli.DoctorCommand(version),
			cli.ConfigCommand(),
			cli.SealTokenCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("❌ error: %v", err))
		os.Exit(1)
	}
}
