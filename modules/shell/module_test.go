package shell

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/specialistvlad/codebox/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecutor(t *testing.T) *Executor {
	t.Helper()
	return newExecutorWithSpec(t, engine.Spec{Kind: Kind})
}

func newExecutorWithSpec(t *testing.T, spec engine.Spec) *Executor {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	spec.WorkDir = t.TempDir()
	factory, err := Builder(spec)
	require.NoError(t, err)
	e, err := factory(context.Background(), "test-key")
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e.(*Executor)
}

func TestExecutor_StatePersists(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	e := newExecutor(t)
	ctx := context.Background()

	// --- Act ---
	_, err := e.Execute(ctx, "X=5; mkdir sub && cd sub", nil)
	require.NoError(t, err)
	out, err := e.Execute(ctx, `echo "$X"; basename "$(pwd)"`, nil)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "5\nsub\n", out)
}

func TestExecutor_CapturesStderr(t *testing.T) {
	t.Parallel()

	e := newExecutor(t)

	out, err := e.Execute(context.Background(), "echo out; echo err >&2", nil)

	require.NoError(t, err)
	assert.Equal(t, "out\nerr\n", out)
}

func TestExecutor_OutputWithoutTrailingNewline(t *testing.T) {
	t.Parallel()

	e := newExecutor(t)

	out, err := e.Execute(context.Background(), "printf abc", nil)

	require.NoError(t, err)
	assert.Equal(t, "abc", out)
}

func TestExecutor_NonZeroExitIsAnEngineError(t *testing.T) {
	t.Parallel()

	e := newExecutor(t)

	_, err := e.Execute(context.Background(), "echo nope >&2; false", nil)

	require.ErrorIs(t, err, engine.ErrExecution)
	assert.Equal(t, "nope\nexit status 1", err.Error())
}

func TestExecutor_ExitKillsSession(t *testing.T) {
	t.Parallel()

	e := newExecutor(t)

	_, err := e.Execute(context.Background(), "exit 3", nil)

	require.ErrorIs(t, err, engine.ErrExecution)
	assert.Contains(t, err.Error(), "terminated unexpectedly")
}

func TestExecutor_StagesFiles(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o600))
	e := newExecutor(t)

	out, err := e.Execute(context.Background(), "cat in.txt", []string{src})

	require.NoError(t, err)
	assert.Equal(t, "payload", out)
}

func TestExecutor_DownloadLimit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()
	e := newExecutorWithSpec(t, engine.Spec{Kind: Kind, MaxDownloadBytes: 16})

	// --- Act ---
	_, err := e.Execute(context.Background(), "ls", []string{srv.URL + "/big.bin"})

	// --- Assert ---
	var execErr *engine.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "exceeds 16 bytes")
	assert.NoFileExists(t, filepath.Join(e.proc.Dir(), "big.bin"))
}

func TestExecutor_ContextCancellation(t *testing.T) {
	t.Parallel()

	e := newExecutor(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Execute(ctx, "sleep 30", nil)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNewNonce(t *testing.T) {
	t.Parallel()

	a, b := newNonce(), newNonce()

	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
	assert.Empty(t, strings.Trim(a, "0123456789abcdef"))
}
