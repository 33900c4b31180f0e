package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/worker"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

const channelManifest = `
channels:
  - id: log.write
    direction: worker->host
    allow: ["main"]
    schema:
      fields:
        line:
          kind: string
          required: true
`

const workerManifest = `
workers:
  - id: main
    kind: script
    essential: true
    source: main.html
`

const mainPage = `<!DOCTYPE html>
<html><head><title>Main Window</title></head>
<body><script>
bridge.send("log.write", { line: "booted" });
bridge.ready();
</script></body></html>`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "channels.yaml"), []byte(channelManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "workers.yaml"), []byte(workerManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.html"), []byte(mainPage), 0o644))

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.RateLimit.Enabled = false
	cfg.Gateway.ManifestPath = filepath.Join(dir, "channels.yaml")
	cfg.Workers.Manifest = filepath.Join(dir, "workers.yaml")
	cfg.Workers.BaseDir = dir
	cfg.WindowState.Path = filepath.Join(dir, "state", "windows.toml")
	return cfg
}

func TestServerStartsManifestWorkers(t *testing.T) {
	cfg := testConfig(t)
	srv, err := NewServer(cfg, WithLogger(logging.Nop()))
	require.NoError(t, err)

	require.NoError(t, srv.StartWorkers(context.Background()))
	assert.Equal(t, []types.ContextID{"main"}, srv.Workers())

	w, ok := srv.Supervisor().Get("main")
	require.True(t, ok)
	assert.Equal(t, "Main Window", w.Config.Title)
	require.Eventually(t, func() bool {
		return w.State() == worker.StateReady
	}, 5*time.Second, 10*time.Millisecond)

	for _, path := range []string{"/health", "/workers", "/channels", "/windows", "/metrics"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "shell_bus_messages_total")
	assert.False(t, srv.Degraded())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	_, err = os.Stat(cfg.WindowState.Path)
	assert.NoError(t, err)
}

func TestServerRejectsBadManifest(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Gateway.ManifestPath, []byte(`
channels:
  - id: window.bounds.get
    direction: invoke
`), 0o644))

	_, err := NewServer(cfg, WithLogger(logging.Nop()))
	assert.Error(t, err)
}

func TestStartWorkersEssentialFailure(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Workers.Manifest, []byte(`
workers:
  - id: main
    source: missing.js
    essential: true
`), 0o644))

	srv, err := NewServer(cfg, WithLogger(logging.Nop()))
	require.NoError(t, err)
	assert.Error(t, srv.StartWorkers(context.Background()))
	require.NoError(t, srv.Shutdown(context.Background()))
}
