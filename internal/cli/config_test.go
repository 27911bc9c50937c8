package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/platformbuilds/mirador-mcp/internal/client"
	"github.com/platformbuilds/mirador-mcp/internal/settings"
)

const testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// isolateEnv keeps the developer's own config and MIRADOR_* variables out
// of a test.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, name := range []string{EnvURL, EnvAuthToken, EnvTenant, settings.EnvMasterKey} {
		t.Setenv(name, "")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := writeFile(t, dir, "config.yaml", `
comment: staging
mirador_url: https://mirador.example.com
tenant_id: team-a
timeout: 5s
watch_dirs: [/tmp/otel]
vault:
  addr: https://vault:8200
  path: secret/data/mirador
`)
	cfg, err := LoadConfigFromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "https://mirador.example.com", cfg.MiradorURL)
	assert.Equal(t, "team-a", cfg.TenantID)
	assert.Equal(t, []string{"/tmp/otel"}, cfg.WatchDirs)
	assert.Equal(t, "secret/data/mirador", cfg.Vault.Path)

	jsonPath := writeFile(t, dir, "config.json", `{"mirador_url":"http://localhost:8080","local":true}`)
	cfg, err = LoadConfigFromFile(jsonPath)
	require.NoError(t, err)
	assert.True(t, cfg.Local)

	empty := writeFile(t, dir, "empty.yaml", "")
	cfg, err = LoadConfigFromFile(empty)
	require.NoError(t, err)
	assert.Equal(t, Config{}, *cfg)
}

func TestLoadConfigFromFileRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfigFromFile(writeFile(t, dir, "typo.yaml", "mirador_ulr: http://x\n"))
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = LoadConfigFromFile(writeFile(t, dir, "typo.json", `{"mirador_ulr":"http://x"}`))
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = LoadConfigFromFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestFindProjectConfigFrom(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "svc", "api")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	_, err := findProjectConfigFrom(nested)
	assert.ErrorIs(t, err, os.ErrNotExist)

	want := writeFile(t, root, projectConfigName, "tenant_id: a\n")
	got, err := findProjectConfigFrom(nested)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// the nearest file wins
	closer := writeFile(t, filepath.Join(root, "svc"), projectConfigName, "tenant_id: b\n")
	got, err = findProjectConfigFrom(nested)
	require.NoError(t, err)
	assert.Equal(t, closer, got)
}

func TestMergeConfigs(t *testing.T) {
	base := DefaultConfig()
	base.MiradorURL = "http://base:8080"
	base.TenantID = "base"

	merged := MergeConfigs(base, &Config{
		TenantID:  "overlay",
		Vault:     VaultConfig{Key: "token"},
		WebUIPort: 8099,
		Verbose:   true,
	})
	assert.Equal(t, "http://base:8080", merged.MiradorURL)
	assert.Equal(t, "overlay", merged.TenantID)
	assert.Equal(t, "token", merged.Vault.Key)
	assert.Equal(t, 8099, merged.WebUIPort)
	assert.True(t, merged.Verbose)
	assert.Equal(t, 10_000, merged.TraceBufferSize)
	assert.Equal(t, "base", base.TenantID, "base is not modified")

	assert.Same(t, base, MergeConfigs(base, nil))
	assert.Equal(t, Config{}, *MergeConfigs(nil, &Config{}))
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvURL:       "https://env.example.com",
		EnvAuthToken: "from-env",
	}
	cfg := ApplyEnv(&Config{MiradorURL: "http://file:8080", TenantID: "file"}, func(k string) string { return env[k] })
	assert.Equal(t, "https://env.example.com", cfg.MiradorURL)
	assert.Equal(t, "from-env", cfg.AuthToken)
	assert.Equal(t, "file", cfg.TenantID)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MiradorURL = "https://mirador.example.com"
	assert.NoError(t, cfg.Validate())

	local := DefaultConfig()
	local.Local = true
	assert.NoError(t, local.Validate(), "local capture needs no URL")

	bad := &Config{
		MiradorURL:   "mirador",
		Timeout:      "soon",
		OTLPPort:     70000,
		WebUIPort:    -1,
		OtelEndpoint: "collector",
		Vault:        VaultConfig{Addr: "https://vault:8200"},
	}
	err := bad.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"mirador_url: " + settings.MsgURLInvalid,
		`timeout: invalid duration "soon"`,
		"trace_buffer_size",
		"log_buffer_size",
		"otlp_port: 70000 out of range",
		"webui_port: -1 out of range",
		"otel_endpoint",
		"vault.path",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestTimeoutDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, (&Config{Timeout: "5s"}).TimeoutDuration())
	assert.Equal(t, client.DefaultTimeout, (&Config{}).TimeoutDuration())
	assert.Equal(t, client.DefaultTimeout, (&Config{Timeout: "-1s"}).TimeoutDuration())
}

func TestResolveToken(t *testing.T) {
	isolateEnv(t)
	ctx := context.Background()

	tok, err := (&Config{}).ResolveToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)

	tok, err = (&Config{AuthToken: "plain"}).ResolveToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "plain", tok)

	key, err := settings.ParseMasterKey(testMasterKey)
	require.NoError(t, err)
	sealed, err := settings.Seal(key, "sealed-token")
	require.NoError(t, err)
	path := writeFile(t, t.TempDir(), "token.sealed", sealed)

	_, err = (&Config{AuthTokenFile: path}).ResolveToken(ctx)
	assert.ErrorContains(t, err, settings.EnvMasterKey)

	t.Setenv(settings.EnvMasterKey, testMasterKey)
	tok, err = (&Config{AuthTokenFile: path}).ResolveToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sealed-token", tok)
}

func TestConfigSettings(t *testing.T) {
	s := (&Config{MiradorURL: "not a url"}).Settings("tok")
	assert.Equal(t, settings.MsgURLInvalid, s.JSONData.Error)
	assert.True(t, s.SecureJSONFields.AuthToken)
	assert.Equal(t, "tok", s.SecureJSONData.AuthToken)

	s = (&Config{MiradorURL: "https://mirador.example.com"}).Settings("")
	assert.Empty(t, s.JSONData.Error)
	assert.False(t, s.SecureJSONFields.AuthToken)
}

// runWith runs action under a command carrying flags, parsing args.
func runWith(t *testing.T, flags []cli.Flag, args []string, action cli.ActionFunc) error {
	t.Helper()
	cmd := &cli.Command{Name: "test", Flags: flags, Action: action}
	return cmd.Run(context.Background(), append([]string{"test"}, args...))
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	isolateEnv(t)
	t.Setenv(EnvTenant, "env-tenant")
	path := writeFile(t, t.TempDir(), "config.yaml", "mirador_url: https://file.example.com\ntenant_id: file-tenant\n")

	var cfg *Config
	err := runWith(t, connectionFlags(), []string{"--config", path, "--timeout", "3s"}, func(_ context.Context, cmd *cli.Command) error {
		var err error
		cfg, err = loadConfig(cmd)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "https://file.example.com", cfg.MiradorURL)
	assert.Equal(t, "env-tenant", cfg.TenantID)
	assert.Equal(t, "3s", cfg.Timeout)

	err = runWith(t, connectionFlags(), []string{"--config", path, "--tenant", "flag-tenant"}, func(_ context.Context, cmd *cli.Command) error {
		var err error
		cfg, err = loadConfig(cmd)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "flag-tenant", cfg.TenantID)
}

func TestLoadConfigServeFlags(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "watch_dirs: [/data/a]\n")
	otel := writeFile(t, dir, "collector.yaml", "exporters:\n  file/x:\n    path: /data/b/out.jsonl\n")

	var cfg *Config
	err := runWith(t, ServeCommand("test").Flags,
		[]string{"--config", path, "--local", "--otel-config", otel, "--webui-port", "8099", "--log-buffer-size", "7"},
		func(_ context.Context, cmd *cli.Command) error {
			var err error
			cfg, err = loadConfig(cmd)
			return err
		})
	require.NoError(t, err)
	assert.True(t, cfg.Local)
	assert.Equal(t, []string{"/data/a", "/data/b"}, cfg.WatchDirs)
	assert.Equal(t, 8099, cfg.WebUIPort)
	assert.Equal(t, 7, cfg.LogBufferSize)
	assert.Equal(t, 10_000, cfg.TraceBufferSize)
}

func TestLoadConfigInvalid(t *testing.T) {
	isolateEnv(t)
	path := writeFile(t, t.TempDir(), "config.yaml", "timeout: never\n")
	err := runWith(t, connectionFlags(), []string{"--config", path}, func(_ context.Context, cmd *cli.Command) error {
		_, err := loadConfig(cmd)
		return err
	})
	assert.ErrorContains(t, err, "invalid configuration")
	assert.ErrorContains(t, err, "mirador_url")
	assert.ErrorContains(t, err, "timeout")
}

func TestRedactConfig(t *testing.T) {
	cfg := Config{AuthToken: "s3cret", Vault: VaultConfig{Token: "hvs.x"}}
	shown := redactConfig(cfg)
	assert.Equal(t, redactedSecret, shown.AuthToken)
	assert.Equal(t, redactedSecret, shown.Vault.Token)
	assert.Equal(t, "s3cret", cfg.AuthToken)
}

func TestSealToken(t *testing.T) {
	env := map[string]string{settings.EnvMasterKey: testMasterKey}
	getenv := func(k string) string { return env[k] }

	var out bytes.Buffer
	err := runWith(t, SealTokenCommand().Flags, nil, func(_ context.Context, cmd *cli.Command) error {
		return runSealToken(cmd, strings.NewReader("my-token\n"), &out, getenv)
	})
	require.NoError(t, err)

	key, err := settings.ParseMasterKey(testMasterKey)
	require.NoError(t, err)
	opened, err := settings.Open(key, out.String())
	require.NoError(t, err)
	assert.Equal(t, "my-token", opened)

	target := filepath.Join(t.TempDir(), "token.sealed")
	out.Reset()
	err = runWith(t, SealTokenCommand().Flags, []string{"-o", target}, func(_ context.Context, cmd *cli.Command) error {
		return runSealToken(cmd, strings.NewReader("my-token"), &out, getenv)
	})
	require.NoError(t, err)
	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	tok, err := settings.SealedFile{Path: target, Key: key}.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "my-token", tok)

	err = runWith(t, SealTokenCommand().Flags, nil, func(_ context.Context, cmd *cli.Command) error {
		return runSealToken(cmd, strings.NewReader("\n"), &out, getenv)
	})
	assert.ErrorContains(t, err, "no token")

	out.Reset()
	err = runWith(t, SealTokenCommand().Flags, []string{"--generate-key"}, func(_ context.Context, cmd *cli.Command) error {
		return runSealToken(cmd, nil, &out, func(string) string { return "" })
	})
	require.NoError(t, err)
	_, err = settings.ParseMasterKey(out.String())
	assert.NoError(t, err)
}
