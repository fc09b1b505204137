package hcl_adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/codebox/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testLoader(env map[string]string) *Loader {
	return &Loader{lookupEnv: func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}}
}

func TestLoader_SingleFile(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	path := writeFile(t, t.TempDir(), "codebox.hcl", `
		server {
		  address         = ":9000"
		  max_connections = 64
		}

		engine {
		  kind = "shell"
		  args = ["-e"]
		  env  = { LANG = "C.UTF-8" }

		  max_download_bytes = 1048576
		}

		dispatch {
		  workers      = 4
		  http_timeout = "45s"
		  ws_timeout   = 90
		}

		log {
		  level = "debug"
		  watch = true
		}
	`)

	// --- Act ---
	patch, err := testLoader(nil).Load(context.Background(), path)

	// --- Assert ---
	require.NoError(t, err)
	want := config.Patch{
		ServerAddress:        config.Ptr(":9000"),
		ServerMaxConnections: config.Ptr(64),
		EngineKind:           config.Ptr("shell"),
		EngineArgs:           []string{"-e"},
		EngineEnv:            map[string]string{"LANG": "C.UTF-8"},
		EngineMaxDownload:    config.Ptr(int64(1 << 20)),
		DispatchWorkers:      config.Ptr(4),
		DispatchHTTPTimeout:  config.Ptr(45 * time.Second),
		DispatchWSTimeout:    config.Ptr(90 * time.Second),
		LogLevel:             config.Ptr("debug"),
		LogWatch:             config.Ptr(true),
	}
	if diff := cmp.Diff(want, patch); diff != "" {
		t.Errorf("patch mismatch (-want +got):\n%s", diff)
	}
}

func TestLoader_EnvFunction(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	path := writeFile(t, t.TempDir(), "codebox.hcl", `
		catalog {
		  backend   = env("CODEBOX_CATALOG", "memory")
		  redis_url = env("REDIS_URL")
		}
	`)
	loader := testLoader(map[string]string{"REDIS_URL": "redis://cache:6379/0"})

	// --- Act ---
	patch, err := loader.Load(context.Background(), path)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "memory", *patch.CatalogBackend, "fallback should apply when the variable is unset")
	assert.Equal(t, "redis://cache:6379/0", *patch.CatalogRedisURL)
}

func TestLoader_EnvFunctionMissingVariable(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	path := writeFile(t, t.TempDir(), "codebox.hcl", `
		catalog {
		  redis_url = env("CODEBOX_UNSET_VARIABLE")
		}
	`)

	// --- Act ---
	_, err := testLoader(nil).Load(context.Background(), path)

	// --- Assert ---
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CODEBOX_UNSET_VARIABLE")
}

func TestLoader_Directory(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	writeFile(t, dir, "a_server.hcl", `server { address = ":7000" }`)
	writeFile(t, dir, "b_log.hcl", `log { format = "text" }`)
	writeFile(t, dir, "notes.txt", `this is not configuration`)

	// --- Act ---
	patch, err := testLoader(nil).Load(context.Background(), dir)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, ":7000", *patch.ServerAddress)
	assert.Equal(t, "text", *patch.LogFormat)
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "syntax error",
			content: `server {`,
			wantErr: "failed to parse",
		},
		{
			name:    "unknown block",
			content: `frobnicator {}`,
			wantErr: "failed to decode",
		},
		{
			name:    "unknown attribute",
			content: `server { port = 8000 }`,
			wantErr: "failed to decode",
		},
		{
			name:    "bad duration",
			content: `dispatch { max_timeout = "forever" }`,
			wantErr: "dispatch.max_timeout",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, t.TempDir(), "codebox.hcl", tc.content)

			_, err := testLoader(nil).Load(context.Background(), path)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoader_MissingPath(t *testing.T) {
	t.Parallel()

	_, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope.hcl"))

	require.Error(t, err)
}

func TestLoader_EmptyDirectory(t *testing.T) {
	t.Parallel()

	_, err := NewLoader().Load(context.Background(), t.TempDir())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .hcl files")
}
