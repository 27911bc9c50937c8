package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platformbuilds/mirador-mcp/internal/client"
	"github.com/platformbuilds/mirador-mcp/internal/settings"
)

// Environment variables read on top of the config files.
const (
	EnvURL       = "MIRADOR_URL"
	EnvAuthToken = "MIRADOR_AUTH_TOKEN"
	EnvTenant    = "MIRADOR_TENANT"
)

const projectConfigName = ".mirador-mcp.yaml"

// VaultConfig locates the auth token in a Vault KV secret.
type VaultConfig struct {
	Addr  string `yaml:"addr,omitempty" json:"addr,omitempty"`
	Token string `yaml:"token,omitempty" json:"token,omitempty"`
	Path  string `yaml:"path,omitempty" json:"path,omitempty"`
	Key   string `yaml:"key,omitempty" json:"key,omitempty"`
}

// Config holds the runtime configuration. It can be populated from config
// files, the environment, CLI flags, or all of them.
type Config struct {
	// Comment field for user documentation (ignored by the application)
	Comment string `yaml:"comment,omitempty" json:"comment,omitempty"`

	// Mirador Core connection
	MiradorURL    string      `yaml:"mirador_url,omitempty" json:"mirador_url,omitempty"`
	AuthToken     string      `yaml:"auth_token,omitempty" json:"auth_token,omitempty"`
	AuthTokenFile string      `yaml:"auth_token_file,omitempty" json:"auth_token_file,omitempty"` // sealed with seal-token
	Vault         VaultConfig `yaml:"vault,omitempty" json:"vault,omitempty"`
	TenantID      string      `yaml:"tenant_id,omitempty" json:"tenant_id,omitempty"`
	Timeout       string      `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Local capture: answer queries from captured OTLP data instead of
	// Mirador Core.
	Local           bool     `yaml:"local,omitempty" json:"local,omitempty"`
	TraceBufferSize int      `yaml:"trace_buffer_size,omitempty" json:"trace_buffer_size,omitempty"`
	LogBufferSize   int      `yaml:"log_buffer_size,omitempty" json:"log_buffer_size,omitempty"`
	OTLPHost        string   `yaml:"otlp_host,omitempty" json:"otlp_host,omitempty"`
	OTLPPort        int      `yaml:"otlp_port,omitempty" json:"otlp_port,omitempty"`
	WatchDirs       []string `yaml:"watch_dirs,omitempty" json:"watch_dirs,omitempty"`

	// Web UI; a zero port disables it.
	WebUIHost string `yaml:"webui_host,omitempty" json:"webui_host,omitempty"`
	WebUIPort int    `yaml:"webui_port,omitempty" json:"webui_port,omitempty"`

	// OTLP gRPC endpoint for this process's own traces.
	OtelEndpoint string `yaml:"otel_endpoint,omitempty" json:"otel_endpoint,omitempty"`

	Verbose bool `yaml:"verbose,omitempty" json:"verbose,omitempty"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Timeout:         client.DefaultTimeout.String(),
		TraceBufferSize: 10_000,
		LogBufferSize:   50_000,
		OTLPHost:        "127.0.0.1",
		OTLPPort:        0, // 0 means ephemeral port assignment
		WebUIHost:       "127.0.0.1",
	}
}

// LoadConfigFromFile loads a YAML or, by extension, JSON config file.
// Unknown keys are rejected.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if strings.EqualFold(filepath.Ext(path), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&config)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&config)
		if errors.Is(err, io.EOF) {
			err = nil // empty file
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &config, nil
}

// FindProjectConfig searches for a .mirador-mcp.yaml config file.
// It starts in the current directory and walks up looking for the file,
// stopping when it finds a .git directory (project root) or reaches root.
func FindProjectConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return findProjectConfigFrom(dir)
}

func findProjectConfigFrom(dir string) (string, error) {
	for {
		configPath := filepath.Join(dir, projectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		// stop at the repository root even without a config
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

// GlobalConfigPath returns ~/.config/mirador-mcp/config.yaml.
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "mirador-mcp", "config.yaml")
}

// MergeConfigs merges two configs with the overlay taking precedence.
// Fields in overlay override corresponding fields in base.
func MergeConfigs(base, overlay *Config) *Config {
	if base == nil {
		base = &Config{}
	}
	if overlay == nil {
		return base
	}

	merged := *base

	if overlay.MiradorURL != "" {
		merged.MiradorURL = overlay.MiradorURL
	}
	if overlay.AuthToken != "" {
		merged.AuthToken = overlay.AuthToken
	}
	if overlay.AuthTokenFile != "" {
		merged.AuthTokenFile = overlay.AuthTokenFile
	}
	if overlay.Vault.Addr != "" {
		merged.Vault.Addr = overlay.Vault.Addr
	}
	if overlay.Vault.Token != "" {
		merged.Vault.Token = overlay.Vault.Token
	}
	if overlay.Vault.Path != "" {
		merged.Vault.Path = overlay.Vault.Path
	}
	if overlay.Vault.Key != "" {
		merged.Vault.Key = overlay.Vault.Key
	}
	if overlay.TenantID != "" {
		merged.TenantID = overlay.TenantID
	}
	if overlay.Timeout != "" {
		merged.Timeout = overlay.Timeout
	}

	if overlay.Local {
		merged.Local = true
	}
	if overlay.TraceBufferSize > 0 {
		merged.TraceBufferSize = overlay.TraceBufferSize
	}
	if overlay.LogBufferSize > 0 {
		merged.LogBufferSize = overlay.LogBufferSize
	}
	if overlay.OTLPHost != "" {
		merged.OTLPHost = overlay.OTLPHost
	}
	if overlay.OTLPPort != 0 {
		merged.OTLPPort = overlay.OTLPPort
	}
	if len(overlay.WatchDirs) > 0 {
		merged.WatchDirs = overlay.WatchDirs
	}

	if overlay.WebUIHost != "" {
		merged.WebUIHost = overlay.WebUIHost
	}
	if overlay.WebUIPort > 0 {
		merged.WebUIPort = overlay.WebUIPort
	}
	if overlay.OtelEndpoint != "" {
		merged.OtelEndpoint = overlay.OtelEndpoint
	}
	if overlay.Verbose {
		merged.Verbose = true
	}

	return &merged
}

// ApplyEnv overlays the MIRADOR_* environment variables.
func ApplyEnv(cfg *Config, getenv func(string) string) *Config {
	return MergeConfigs(cfg, &Config{
		MiradorURL: getenv(EnvURL),
		AuthToken:  getenv(EnvAuthToken),
		TenantID:   getenv(EnvTenant),
	})
}

// LoadEffectiveConfig loads the effective configuration by merging:
// 1. Built-in defaults
// 2. Global config file (if exists)
// 3. Project config file, or the explicit configPath when given
// 4. MIRADOR_* environment variables
// Later sources override earlier ones. Flags are applied by the caller.
func LoadEffectiveConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	// the global config is optional; a broken one is reported
	if globalPath := GlobalConfigPath(); globalPath != "" {
		if _, err := os.Stat(globalPath); err == nil {
			globalCfg, err := LoadConfigFromFile(globalPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load global config: %w", err)
			}
			config = MergeConfigs(config, globalCfg)
		}
	}

	if configPath == "" {
		if projectPath, err := FindProjectConfig(); err == nil {
			projectCfg, err := LoadConfigFromFile(projectPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load project config: %w", err)
			}
			config = MergeConfigs(config, projectCfg)
		}
	} else {
		explicitCfg, err := LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = MergeConfigs(config, explicitCfg)
	}

	return ApplyEnv(config, os.Getenv), nil
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if !c.Local {
		if msg := settings.ValidateURL(c.MiradorURL); msg != "" {
			errs = append(errs, fmt.Errorf("mirador_url: %s", msg))
		}
	}
	if c.Timeout != "" {
		if d, err := time.ParseDuration(c.Timeout); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("timeout: invalid duration %q", c.Timeout))
		}
	}
	if c.TraceBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("trace_buffer_size: must be positive"))
	}
	if c.LogBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("log_buffer_size: must be positive"))
	}
	if c.OTLPPort < 0 || c.OTLPPort > 65535 {
		errs = append(errs, fmt.Errorf("otlp_port: %d out of range", c.OTLPPort))
	}
	if c.WebUIPort < 0 || c.WebUIPort > 65535 {
		errs = append(errs, fmt.Errorf("webui_port: %d out of range", c.WebUIPort))
	}
	if c.OtelEndpoint != "" {
		if _, _, err := net.SplitHostPort(c.OtelEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("otel_endpoint: %w", err))
		}
	}
	if c.Vault.Addr != "" && c.Vault.Path == "" {
		errs = append(errs, fmt.Errorf("vault.path: required when vault.addr is set"))
	}
	return errors.Join(errs...)
}

// TimeoutDuration returns the parsed client timeout, the client default
// when unset or invalid.
func (c *Config) TimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(c.Timeout); err == nil && d > 0 {
		return d
	}
	return client.DefaultTimeout
}

// ResolveToken returns the first auth token found in, in order: the config
// or environment, the sealed token file, Vault. No token is not an error.
func (c *Config) ResolveToken(ctx context.Context) (string, error) {
	sources := []settings.TokenSource{settings.StaticToken(c.AuthToken)}
	if c.AuthTokenFile != "" {
		key, err := settings.ParseMasterKey(os.Getenv(settings.EnvMasterKey))
		if err != nil {
			return "", fmt.Errorf("auth_token_file needs %s: %w", settings.EnvMasterKey, err)
		}
		sources = append(sources, settings.SealedFile{Path: c.AuthTokenFile, Key: key})
	}
	if c.Vault.Addr != "" {
		v, err := settings.NewVaultToken(c.Vault.Addr, c.Vault.Token, c.Vault.Path, c.Vault.Key, c.TimeoutDuration())
		if err != nil {
			return "", err
		}
		sources = append(sources, v)
	}

	tok, err := settings.FirstToken(ctx, sources...)
	if errors.Is(err, settings.ErrNoToken) {
		return "", nil
	}
	return tok, err
}

// Settings returns the data-source settings the config describes.
func (c *Config) Settings(token string) settings.Settings {
	return settings.Settings{
		JSONData: settings.DataSourceOptions{
			BaseURL: c.MiradorURL,
			Error:   settings.ValidateURL(c.MiradorURL),
		},
		SecureJSONData:   settings.SecureJSONData{AuthToken: token},
		SecureJSONFields: settings.SecureJSONFields{AuthToken: token != ""},
	}
}
