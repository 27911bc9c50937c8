package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/platformbuilds/mirador-mcp/internal/datasource"
	"github.com/platformbuilds/mirador-mcp/internal/settings"
)

const mcpServerName = "mirador-mcp"

// DoctorCommand returns the CLI command definition for the 'doctor' subcommand.
// This command runs diagnostic checks to verify mirador-mcp is properly configured.
func DoctorCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Diagnose common setup and configuration issues",
		Description: `Run comprehensive checks to verify mirador-mcp is properly configured.

This command checks:
  - Binary location and permissions
  - MCP configuration file (mcp_settings.json)
  - mirador-mcp configuration layers
  - Auth token sources
  - Mirador Core connectivity

Exit codes:
  0 - All critical checks passed
  1 - One or more issues found`,
		Flags: connectionFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			d := &doctor{
				version: version,
				utils:   &realFsUtils{},
				out:     os.Stdout,
				getenv:  os.Getenv,
				loadConfig: func() (*Config, error) {
					return loadConfig(cmd)
				},
				checkHealth: func(cfg *Config) datasource.HealthResult {
					return liveHealth(ctx, cfg, version)
				},
			}
			return d.run()
		},
	}
}

type checkResult struct {
	Name       string
	Status     string // "pass", "warn", "fail"
	Message    string
	Suggestion string
	IsCritical bool
}

type fsUtils interface {
	Executable() (string, error)
	Stat(name string) (os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	UserHomeDir() (string, error)
	Getwd() (string, error)
}

type realFsUtils struct{}

func (r *realFsUtils) Executable() (string, error)           { return os.Executable() }
func (r *realFsUtils) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
func (r *realFsUtils) ReadFile(name string) ([]byte, error)  { return os.ReadFile(name) }
func (r *realFsUtils) UserHomeDir() (string, error)          { return os.UserHomeDir() }
func (r *realFsUtils) Getwd() (string, error)                { return os.Getwd() }

// doctor holds the injectable parts of the checks.
type doctor struct {
	version     string
	utils       fsUtils
	out         io.Writer
	getenv      func(string) string
	loadConfig  func() (*Config, error)
	checkHealth func(*Config) datasource.HealthResult

	cfg *Config // set by checkConfig
}

func liveHealth(ctx context.Context, cfg *Config, version string) datasource.HealthResult {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	api, err := newClient(ctx, cfg, zap.NewNop(), version)
	if err != nil {
		return datasource.HealthResult{Status: datasource.HealthError, Message: err.Error()}
	}
	return datasource.New(api, nil).CheckHealth(ctx)
}

func (d *doctor) run() error {
	fmt.Fprintf(d.out, "🔍 mirador-mcp doctor v%s\n\n", d.version)

	checks := []func() checkResult{
		d.checkBinary,
		d.checkMCPConfig,
		d.checkConfig,
		d.checkToken,
		d.checkConnectivity,
	}

	results := make([]checkResult, 0, len(checks))
	for _, check := range checks {
		result := check()
		results = append(results, result)
		d.printCheckResult(result)
	}

	fmt.Fprintln(d.out)
	summary := summarizeResults(results)
	d.printSummary(summary)

	if summary.FailCount > 0 {
		return fmt.Errorf("found %d issues that need attention", summary.FailCount)
	}
	return nil
}

func (d *doctor) printCheckResult(result checkResult) {
	var icon string
	switch result.Status {
	case "pass":
		icon = color.GreenString("✓")
	case "warn":
		icon = color.YellowString("⚠")
	case "fail":
		icon = color.RedString("✗")
	}

	fmt.Fprintf(d.out, "%s %s\n", icon, result.Message)

	if result.Suggestion != "" {
		fmt.Fprintf(d.out, "  %s\n", result.Suggestion)
	}
}

type resultSummary struct {
	PassCount int
	WarnCount int
	FailCount int
}

func summarizeResults(results []checkResult) resultSummary {
	var summary resultSummary
	for _, r := range results {
		switch r.Status {
		case "pass":
			summary.PassCount++
		case "warn":
			summary.WarnCount++
		case "fail":
			summary.FailCount++
		}
	}
	return summary
}

func (d *doctor) printSummary(summary resultSummary) {
	if summary.FailCount > 0 {
		fmt.Fprintf(d.out, "❌ Found %d issue(s) that need attention\n", summary.FailCount)
		if summary.WarnCount > 0 {
			fmt.Fprintf(d.out, "⚠️  %d warning(s)\n", summary.WarnCount)
		}
		return
	}
	if summary.WarnCount > 0 {
		fmt.Fprintf(d.out, "✅ All critical checks passed!\n")
		fmt.Fprintf(d.out, "⚠️  %d optional warning(s)\n", summary.WarnCount)
	} else {
		fmt.Fprintf(d.out, "✅ All checks passed!\n")
	}
	fmt.Fprintf(d.out, "💡 Run 'mirador-mcp serve --verbose' to start the server\n")
}

// Check 1: binary location and mode
func (d *doctor) checkBinary() checkResult {
	executable, err := d.utils.Executable()
	if err != nil {
		return checkResult{
			Name:       "binary",
			Status:     "fail",
			Message:    "Could not determine binary location",
			Suggestion: fmt.Sprintf("Error: %v", err),
			IsCritical: true,
		}
	}
	absPath, err := filepath.Abs(executable)
	if err != nil {
		absPath = executable
	}

	info, err := d.utils.Stat(executable)
	if err != nil || info == nil {
		return checkResult{
			Name:       "binary",
			Status:     "fail",
			Message:    "Could not stat binary",
			Suggestion: fmt.Sprintf("Error: %v", err),
			IsCritical: true,
		}
	}
	if info.Mode()&0111 == 0 {
		return checkResult{
			Name:       "binary",
			Status:     "fail",
			Message:    "Binary is not executable",
			Suggestion: fmt.Sprintf("Run: chmod +x %s", executable),
			IsCritical: true,
		}
	}

	return checkResult{
		Name:    "binary",
		Status:  "pass",
		Message: fmt.Sprintf("Binary: %s", absPath),
	}
}

// Check 2: MCP configuration
func (d *doctor) checkMCPConfig() checkResult {
	configPath := d.mcpConfigPath()
	allPaths := d.mcpConfigPaths()

	executable, _ := d.utils.Executable()
	absExecutable, _ := filepath.Abs(executable)

	if _, err := d.utils.Stat(configPath); err != nil {
		locationsList := ""
		for _, p := range allPaths {
			locationsList += fmt.Sprintf("  - %s\n", p)
		}
		first := ""
		if len(allPaths) > 0 {
			first = allPaths[0]
		}

		suggestion := fmt.Sprintf(`MCP config not found. Checked:
%s
  Create one at: %s
  For other MCP agents, use their config location

  Example config:
  {
    "mcpServers": {
      "%s": {
        "command": "%s",
        "args": ["serve"],
        "env": {"%s": "https://mirador.example.com"}
      }
    }
  }`, locationsList, first, mcpServerName, absExecutable, EnvURL)

		return checkResult{
			Name:       "mcp_config",
			Status:     "fail",
			Message:    "MCP config not found",
			Suggestion: suggestion,
			IsCritical: true,
		}
	}

	data, err := d.utils.ReadFile(configPath)
	if err != nil {
		return checkResult{
			Name:       "mcp_config",
			Status:     "fail",
			Message:    "Could not read MCP config",
			Suggestion: fmt.Sprintf("Error reading %s: %v", configPath, err),
			IsCritical: true,
		}
	}

	var config struct {
		MCPServers map[string]struct {
			Command string            `json:"command"`
			Env     map[string]string `json:"env"`
		} `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return checkResult{
			Name:       "mcp_config",
			Status:     "fail",
			Message:    "MCP config is not valid JSON",
			Suggestion: fmt.Sprintf("Error parsing %s: %v", configPath, err),
			IsCritical: true,
		}
	}

	agentName := "MCP agent"
	if strings.Contains(configPath, "claude-code") || strings.Contains(configPath, ".claude") {
		agentName = "Claude Code"
	} else if strings.Contains(configPath, ".gemini") {
		agentName = "Gemini CLI"
	}
	found := fmt.Sprintf("%s config found: %s", agentName, configPath)

	entry, ok := config.MCPServers[mcpServerName]
	if !ok {
		return checkResult{
			Name:       "mcp_config",
			Status:     "warn",
			Message:    found,
			Suggestion: fmt.Sprintf("Config does not contain a '%s' server entry", mcpServerName),
		}
	}
	if entry.Command != "" && entry.Command != absExecutable {
		return checkResult{
			Name:    "mcp_config",
			Status:  "warn",
			Message: found,
			Suggestion: fmt.Sprintf("Config path (%s) differs from current binary (%s)\n  Update config to use current binary if needed",
				entry.Command, absExecutable),
		}
	}
	if tok := entry.Env[EnvAuthToken]; tok != "" {
		return checkResult{
			Name:       "mcp_config",
			Status:     "warn",
			Message:    found,
			Suggestion: fmt.Sprintf("%s is stored in plain text; consider auth_token_file or vault", EnvAuthToken),
		}
	}

	return checkResult{
		Name:    "mcp_config",
		Status:  "pass",
		Message: found,
	}
}

// Check 3: effective mirador-mcp configuration
func (d *doctor) checkConfig() checkResult {
	cfg, err := d.loadConfig()
	if err != nil {
		return checkResult{
			Name:       "config",
			Status:     "fail",
			Message:    "Configuration is invalid",
			Suggestion: strings.ReplaceAll(err.Error(), "\n", "\n  "),
			IsCritical: true,
		}
	}
	d.cfg = cfg

	if cfg.Local {
		return checkResult{
			Name:    "config",
			Status:  "pass",
			Message: "Configuration valid: local capture mode",
		}
	}
	return checkResult{
		Name:    "config",
		Status:  "pass",
		Message: fmt.Sprintf("Configuration valid: %s", cfg.MiradorURL),
	}
}

// Check 4: auth token sources
func (d *doctor) checkToken() checkResult {
	if d.cfg == nil {
		return checkResult{Name: "token", Status: "warn", Message: "Auth token not checked (configuration invalid)"}
	}
	cfg := d.cfg
	switch {
	case cfg.AuthToken != "":
		return checkResult{Name: "token", Status: "pass", Message: "Auth token configured"}
	case cfg.AuthTokenFile != "":
		if _, err := settings.ParseMasterKey(d.getenv(settings.EnvMasterKey)); err != nil {
			return checkResult{
				Name:       "token",
				Status:     "fail",
				Message:    fmt.Sprintf("Sealed token file %s cannot be opened", cfg.AuthTokenFile),
				Suggestion: fmt.Sprintf("Set %s to the key used with seal-token: %v", settings.EnvMasterKey, err),
				IsCritical: true,
			}
		}
		if _, err := d.utils.Stat(cfg.AuthTokenFile); err != nil {
			return checkResult{
				Name:       "token",
				Status:     "fail",
				Message:    fmt.Sprintf("Sealed token file %s not found", cfg.AuthTokenFile),
				Suggestion: "Create it with: mirador-mcp seal-token -o " + cfg.AuthTokenFile,
				IsCritical: true,
			}
		}
		return checkResult{Name: "token", Status: "pass", Message: fmt.Sprintf("Auth token sealed in %s", cfg.AuthTokenFile)}
	case cfg.Vault.Addr != "":
		return checkResult{Name: "token", Status: "pass", Message: fmt.Sprintf("Auth token read from Vault at %s", cfg.Vault.Addr)}
	default:
		return checkResult{
			Name:       "token",
			Status:     "warn",
			Message:    "No auth token configured",
			Suggestion: fmt.Sprintf("Set %s, auth_token_file or vault if Mirador Core requires authentication", EnvAuthToken),
		}
	}
}

// Check 5: Mirador Core connectivity
func (d *doctor) checkConnectivity() checkResult {
	if d.cfg == nil {
		return checkResult{Name: "connectivity", Status: "warn", Message: "Connectivity not checked (configuration invalid)"}
	}
	if d.cfg.Local {
		return checkResult{Name: "connectivity", Status: "pass", Message: "Connectivity not needed in local capture mode"}
	}
	res := d.checkHealth(d.cfg)
	if res.Status != datasource.HealthOK {
		return checkResult{
			Name:       "connectivity",
			Status:     "fail",
			Message:    res.Message,
			Suggestion: "Check mirador_url, the tenant and network access; run 'mirador-mcp health -v' for details",
			IsCritical: true,
		}
	}
	return checkResult{Name: "connectivity", Status: "pass", Message: res.Message}
}

// mcpConfigPaths returns possible MCP config file paths for various agents
func (d *doctor) mcpConfigPaths() []string {
	homeDir, err := d.utils.UserHomeDir()
	if err != nil {
		return nil
	}

	cwd, _ := d.utils.Getwd()

	var paths []string

	// project-level configs first
	if cwd != "" {
		paths = append(paths,
			filepath.Join(cwd, ".gemini", "settings.json"),
			filepath.Join(cwd, ".claude", "settings.json"),
		)
	}

	switch runtime.GOOS {
	case "windows":
		appData := d.getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(homeDir, "AppData", "Roaming")
		}
		paths = append(paths, filepath.Join(appData, "Claude Code", "mcp_settings.json"))
	default:
		paths = append(paths, filepath.Join(homeDir, ".config", "claude-code", "mcp_settings.json"))
	}

	return paths
}

// mcpConfigPath returns the first existing MCP config file path
func (d *doctor) mcpConfigPath() string {
	paths := d.mcpConfigPaths()
	for _, path := range paths {
		if _, err := d.utils.Stat(path); err == nil {
			return path
		}
	}
	if len(paths) > 0 {
		return paths[0]
	}
	return ""
}
