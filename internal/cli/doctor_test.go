package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/platformbuilds/mirador-mcp/internal/datasource"
)

type mockFsUtils struct {
	executable    string
	executableErr error
	statMap       map[string]os.FileInfo
	statErr       error
	readFileMap   map[string][]byte
	readFileErr   error
	homeDir       string
	homeDirErr    error
	cwd           string
	cwdErr        error
}

func (m *mockFsUtils) Executable() (string, error) { return m.executable, m.executableErr }
func (m *mockFsUtils) Stat(name string) (os.FileInfo, error) {
	if info, ok := m.statMap[name]; ok {
		return info, nil
	}
	return nil, m.statErr
}
func (m *mockFsUtils) ReadFile(name string) ([]byte, error) {
	if content, ok := m.readFileMap[name]; ok {
		return content, nil
	}
	return nil, m.readFileErr
}
func (m *mockFsUtils) UserHomeDir() (string, error) { return m.homeDir, m.homeDirErr }
func (m *mockFsUtils) Getwd() (string, error)       { return m.cwd, m.cwdErr }

func newTestDoctor(utils fsUtils, cfg *Config, cfgErr error, health datasource.HealthResult) (*doctor, *bytes.Buffer) {
	color.NoColor = true
	var out bytes.Buffer
	return &doctor{
		version:     "test-version",
		utils:       utils,
		out:         &out,
		getenv:      func(string) string { return "" },
		loadConfig:  func() (*Config, error) { return cfg, cfgErr },
		checkHealth: func(*Config) datasource.HealthResult { return health },
	}, &out
}

func remoteConfig() *Config {
	cfg := DefaultConfig()
	cfg.MiradorURL = "https://mirador.example.com"
	return cfg
}

func TestDoctorMissingMCPConfig(t *testing.T) {
	utils := &mockFsUtils{
		executable: "/usr/local/bin/mirador-mcp",
		homeDir:    "/home/testuser",
		cwd:        "/home/testuser/project",
		statMap: map[string]os.FileInfo{
			"/usr/local/bin/mirador-mcp": &mockFileInfo{mode: 0755},
		},
		statErr: os.ErrNotExist,
	}
	d, out := newTestDoctor(utils, remoteConfig(), nil,
		datasource.HealthResult{Status: datasource.HealthOK, Message: datasource.MsgHealthOK})

	err := d.run()
	assert.Error(t, err)
	assert.Contains(t, out.String(), "✗ MCP config not found")
	assert.Contains(t, out.String(), `"mirador-mcp": {`)
	assert.Contains(t, out.String(), "⚠ No auth token configured")
	assert.Contains(t, out.String(), "✓ "+datasource.MsgHealthOK)
	assert.Contains(t, out.String(), "❌ Found 1 issue(s) that need attention")
}

func TestDoctorAllPass(t *testing.T) {
	geminiConfig := filepath.Join("/home/testuser/project", ".gemini", "settings.json")
	utils := &mockFsUtils{
		executable: "/usr/local/bin/mirador-mcp",
		homeDir:    "/home/testuser",
		cwd:        "/home/testuser/project",
		statMap: map[string]os.FileInfo{
			geminiConfig:                 &mockFileInfo{mode: 0644},
			"/usr/local/bin/mirador-mcp": &mockFileInfo{mode: 0755},
		},
		readFileMap: map[string][]byte{
			geminiConfig: []byte(`{
				"mcpServers": {
					"mirador-mcp": {
						"command": "/usr/local/bin/mirador-mcp",
						"args": ["serve"]
					}
				}
			}`),
		},
	}
	cfg := remoteConfig()
	cfg.AuthToken = "s3cret"
	d, out := newTestDoctor(utils, cfg, nil,
		datasource.HealthResult{Status: datasource.HealthOK, Message: datasource.MsgHealthOK})

	err := d.run()
	assert.NoError(t, err)
	assert.Contains(t, out.String(), "✓ Gemini CLI config found: ")
	assert.Contains(t, out.String(), "✓ Configuration valid: https://mirador.example.com")
	assert.Contains(t, out.String(), "✓ Auth token configured")
	assert.Contains(t, out.String(), "✅ All checks passed!")
	assert.NotContains(t, out.String(), "s3cret")
}

func TestDoctorPlainTextTokenInMCPConfig(t *testing.T) {
	claudeConfig := filepath.Join("/home/testuser", ".config", "claude-code", "mcp_settings.json")
	utils := &mockFsUtils{
		executable: "/usr/local/bin/mirador-mcp",
		homeDir:    "/home/testuser",
		statMap: map[string]os.FileInfo{
			claudeConfig:                 &mockFileInfo{mode: 0644},
			"/usr/local/bin/mirador-mcp": &mockFileInfo{mode: 0755},
		},
		statErr: os.ErrNotExist,
		readFileMap: map[string][]byte{
			claudeConfig: []byte(`{"mcpServers":{"mirador-mcp":{"env":{"MIRADOR_AUTH_TOKEN":"abc"}}}}`),
		},
	}
	d, _ := newTestDoctor(utils, remoteConfig(), nil, datasource.HealthResult{Status: datasource.HealthOK})

	res := d.checkMCPConfig()
	assert.Equal(t, "warn", res.Status)
	assert.Contains(t, res.Message, "Claude Code")
	assert.Contains(t, res.Suggestion, "plain text")
}

func TestDoctorInvalidConfigSkipsConnectivity(t *testing.T) {
	utils := &mockFsUtils{executable: "/bin/mirador-mcp", statErr: os.ErrNotExist}
	called := false
	d, out := newTestDoctor(utils, nil, errors.New("invalid configuration:\nmirador_url: URL is required"), datasource.HealthResult{})
	d.checkHealth = func(*Config) datasource.HealthResult {
		called = true
		return datasource.HealthResult{}
	}

	assert.Error(t, d.run())
	assert.False(t, called)
	assert.Contains(t, out.String(), "✗ Configuration is invalid")
	assert.Contains(t, out.String(), "  mirador_url: URL is required")
	assert.Contains(t, out.String(), "⚠ Connectivity not checked")
}

func TestDoctorUnreachable(t *testing.T) {
	d, _ := newTestDoctor(&mockFsUtils{}, remoteConfig(), nil,
		datasource.HealthResult{Status: datasource.HealthError, Message: "Error connecting to Mirador Core: connection refused"})
	d.cfg = remoteConfig()

	res := d.checkConnectivity()
	assert.Equal(t, "fail", res.Status)
	assert.Contains(t, res.Message, "connection refused")

	d.cfg.Local = true
	assert.Equal(t, "pass", d.checkConnectivity().Status)
}

func TestDoctorSealedTokenNeedsKey(t *testing.T) {
	d, _ := newTestDoctor(&mockFsUtils{statErr: os.ErrNotExist}, nil, nil, datasource.HealthResult{})
	d.cfg = remoteConfig()
	d.cfg.AuthTokenFile = "/etc/mirador/token.sealed"

	res := d.checkToken()
	assert.Equal(t, "fail", res.Status)
	assert.Contains(t, res.Suggestion, "MIRADOR_MASTER_KEY")

	d.getenv = func(string) string { return "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f" }
	res = d.checkToken()
	assert.Equal(t, "fail", res.Status)
	assert.Contains(t, res.Suggestion, "seal-token")
}

// mockFileInfo implements os.FileInfo for testing purposes
type mockFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	isDir   bool
	sys     interface{}
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() os.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() interface{}   { return m.sys }
