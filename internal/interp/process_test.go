package interp

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startShell(t *testing.T) *Process {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	p, err := Start(context.Background(), Config{
		Command:     sh,
		Env:         os.Environ(),
		BaseDir:     t.TempDir(),
		GracePeriod: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProcess_RoundTripAndLog(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	p := startShell(t)
	replies := bufio.NewReader(p.Replies())

	// --- Act ---
	_, err := io.WriteString(p.Stdin(), "echo oops >&2; pwd; echo done\n")
	require.NoError(t, err)
	cwd, err := replies.ReadString('\n')
	require.NoError(t, err)
	done, err := replies.ReadString('\n')
	require.NoError(t, err)

	// --- Assert ---
	assert.Contains(t, cwd, "codebox-session-")
	assert.Equal(t, "done\n", done)
	assert.Contains(t, p.LogTail(1024), "oops")
	assert.True(t, p.Alive())
}

func TestProcess_KillUnblocksReaders(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	p := startShell(t)
	_, err := io.WriteString(p.Stdin(), "sleep 30\n")
	require.NoError(t, err)

	readErr := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(p.Replies()).ReadString('\n')
		readErr <- err
	}()

	// --- Act ---
	p.Kill()

	// --- Assert ---
	select {
	case err := <-readErr:
		require.ErrorIs(t, err, io.EOF)
	case <-time.After(5 * time.Second):
		t.Fatal("reader was not unblocked by Kill")
	}
	select {
	case <-p.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after Kill")
	}
	assert.False(t, p.Alive())
	assert.Error(t, p.ExitErr())
}

func TestProcess_CloseRemovesWorkingDirectory(t *testing.T) {
	t.Parallel()

	p := startShell(t)
	dir := p.Dir()
	require.DirExists(t, dir)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "Close must be idempotent")

	assert.NoDirExists(t, dir)
	assert.False(t, p.Alive())
}

func TestProcess_CloseKillsStubbornChild(t *testing.T) {
	t.Parallel()

	p := startShell(t)
	_, err := io.WriteString(p.Stdin(), "sleep 30\n")
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, p.Close())

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, p.Alive())
}

func TestStart_RejectsEmptyCommand(t *testing.T) {
	t.Parallel()

	_, err := Start(context.Background(), Config{})

	require.Error(t, err)
}

func TestMergeEnv(t *testing.T) {
	t.Parallel()

	got := MergeEnv(
		[]string{"PATH=/bin", "HOME=/root", "LANG=C"},
		map[string]string{"LANG": "C.UTF-8", "B": "2", "A": "1"},
	)

	assert.Equal(t, []string{"PATH=/bin", "HOME=/root", "A=1", "B=2", "LANG=C.UTF-8"}, got)
}
