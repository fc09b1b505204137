package yaml_adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/specialistvlad/codebox/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "codebox.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	path := writeConfig(t, `
server:
  address: ":9100"
engine:
  kind: python
  env:
    MPLBACKEND: Agg
  max_download_bytes: 2048
dispatch:
  workers: 3
  max_timeout: 5m
sessions:
  idle_timeout: 600
catalog:
  backend: redis
  redis_url: ${REDIS_URL}
log:
  level: warn
`)
	loader := &Loader{lookupEnv: func(name string) (string, bool) {
		if name == "REDIS_URL" {
			return "redis://localhost:6379/2", true
		}
		return "", false
	}}

	// --- Act ---
	patch, err := loader.Load(context.Background(), path)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, ":9100", *patch.ServerAddress)
	assert.Equal(t, "python", *patch.EngineKind)
	assert.Equal(t, map[string]string{"MPLBACKEND": "Agg"}, patch.EngineEnv)
	assert.Equal(t, int64(2048), *patch.EngineMaxDownload)
	assert.Equal(t, 3, *patch.DispatchWorkers)
	assert.Equal(t, 5*time.Minute, *patch.DispatchMaxTimeout)
	assert.Equal(t, 10*time.Minute, *patch.SessionsIdleTimeout)
	assert.Equal(t, "redis", *patch.CatalogBackend)
	assert.Equal(t, "redis://localhost:6379/2", *patch.CatalogRedisURL)
	assert.Equal(t, "warn", *patch.LogLevel)
	assert.Nil(t, patch.LogFormat, "unset keys must stay nil")

	model, err := config.Resolve(patch)
	require.NoError(t, err)
	assert.Equal(t, 100, model.Dispatch.QueueDepth, "defaults should survive")
}

func TestLoader_EmptyFile(t *testing.T) {
	t.Parallel()

	patch, err := NewLoader().Load(context.Background(), writeConfig(t, ""))

	require.NoError(t, err)
	assert.Equal(t, config.Patch{}, patch)
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "unknown key", content: "server:\n  port: 8000\n", wantErr: "port"},
		{name: "wrong type", content: "dispatch:\n  workers: many\n", wantErr: "error parsing YAML"},
		{name: "bad duration", content: "catalog:\n  ttl: soon\n", wantErr: "catalog.ttl"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewLoader().Load(context.Background(), writeConfig(t, tc.content))

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
