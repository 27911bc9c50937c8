package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/platformbuilds/mirador-mcp/internal/settings"
)

const redactedSecret = "********"

// ConfigCommand returns 'config validate' and 'config show'.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect the effective configuration",
		Commands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "Load every config layer and report all problems",
				Flags: connectionFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runConfigValidate(cmd, os.Stdout)
				},
			},
			{
				Name:  "show",
				Usage: "Print the effective configuration with secrets hidden",
				Flags: connectionFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runConfigShow(cmd, os.Stdout)
				},
			},
		},
	}
}

func runConfigValidate(cmd *cli.Command, w io.Writer) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintln(w, color.RedString("❌ %v", err))
		return fmt.Errorf("configuration is invalid")
	}
	target := cfg.MiradorURL
	if cfg.Local {
		target = "local capture"
	}
	fmt.Fprintln(w, color.GreenString("✅ configuration is valid (%s)", target))
	return nil
}

func runConfigShow(cmd *cli.Command, w io.Writer) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	shown := redactConfig(*cfg)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(shown)
}

func redactConfig(cfg Config) Config {
	if cfg.AuthToken != "" {
		cfg.AuthToken = redactedSecret
	}
	if cfg.Vault.Token != "" {
		cfg.Vault.Token = redactedSecret
	}
	return cfg
}

// SealTokenCommand returns 'seal-token', which encrypts an auth token for
// the auth_token_file setting.
func SealTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "seal-token",
		Usage: "Encrypt an auth token read from stdin with " + settings.EnvMasterKey,
		Description: `Reads the token from the first line of stdin and prints the sealed form.
Save it to a file and point auth_token_file at it; serve opens it with the
same ` + settings.EnvMasterKey + `. --generate-key prints a new key instead.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "generate-key", Usage: "Print a new random master key and exit"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write the sealed token to this file (mode 0600)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runSealToken(cmd, os.Stdin, os.Stdout, os.Getenv)
		},
	}
}

func runSealToken(cmd *cli.Command, r io.Reader, w io.Writer, getenv func(string) string) error {
	if cmd.Bool("generate-key") {
		key, err := settings.GenerateMasterKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, key)
		return nil
	}

	key, err := settings.ParseMasterKey(getenv(settings.EnvMasterKey))
	if err != nil {
		return fmt.Errorf("%s: %w", settings.EnvMasterKey, err)
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return fmt.Errorf("no token on stdin")
	}

	sealed, err := settings.Seal(key, token)
	if err != nil {
		return err
	}
	if out := cmd.String("output"); out != "" {
		if err := os.WriteFile(out, []byte(sealed+"\n"), 0o600); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		fmt.Fprintln(w, color.GreenString("✅ sealed token written to %s", out))
		return nil
	}
	fmt.Fprintln(w, sealed)
	return nil
}
