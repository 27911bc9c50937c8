package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/platformbuilds/mirador-mcp/internal/client"
	"github.com/platformbuilds/mirador-mcp/internal/settings"
)

// coreStub answers /health with its version and records the bearer token.
func coreStub(t *testing.T, version string) (*httptest.Server, func() string) {
	t.Helper()
	var (
		mu   sync.Mutex
		auth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = r.Header.Get("Authorization")
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","version":"` + version + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, func() string {
		mu.Lock()
		defer mu.Unlock()
		return auth
	}
}

func TestSettingsChangeSwapsClient(t *testing.T) {
	first, _ := coreStub(t, "1.0.0")
	second, secondAuth := coreStub(t, "2.0.0")
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.MiradorURL = first.URL
	c, err := remoteClient(cfg, first.URL, "old", "test", zap.NewNop())
	require.NoError(t, err)
	swap := client.NewSwappable(c)
	editor := settings.NewEditor(cfg.Settings("old"), clientReloader(cfg, swap, first.URL, "old", "test", zap.NewNop()))

	h, err := swap.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", h.Version)

	// invalid and unusable URLs keep the current client
	editor.SetBaseURL("not a url")
	assert.Same(t, c, swap.Current())
	editor.SetBaseURL("urn:mirador:core")
	assert.Same(t, c, swap.Current())

	editor.SetBaseURL(second.URL)
	h, err = swap.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", h.Version)
	assert.Equal(t, "Bearer old", secondAuth(), "token carried over")

	editor.SetAuthToken("rotated")
	_, err = swap.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bearer rotated", secondAuth())

	// the same settings again do not rebuild
	current := swap.Current()
	editor.SetBaseURL(second.URL)
	assert.Same(t, current, swap.Current())
}
