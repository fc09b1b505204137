// Package shell provides the "shell" engine: one persistent POSIX shell per
// session. Variables, functions and the working directory carry over from
// one snippet to the next.
package shell

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/specialistvlad/codebox/internal/ctxlog"
	"github.com/specialistvlad/codebox/internal/engine"
	"github.com/specialistvlad/codebox/internal/fsutil"
	"github.com/specialistvlad/codebox/internal/interp"
	"github.com/specialistvlad/codebox/internal/registry"
)

const (
	// Kind is the engine kind this module registers.
	Kind = "shell"

	downloadTimeout = time.Minute
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the shell engine builder.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterEngine(Kind, Builder)
}

// Builder resolves the shell binary and returns a Factory for shell sessions.
func Builder(spec engine.Spec) (engine.Factory, error) {
	command := spec.Command
	if command == "" {
		command = "/bin/sh"
	}
	bin, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("shell %q: %w", command, err)
	}
	env := interp.MergeEnv(os.Environ(), spec.Env)

	return func(ctx context.Context, identity string) (engine.Executor, error) {
		proc, err := interp.Start(ctx, interp.Config{
			Command: bin,
			Args:    spec.Args,
			Env:     env,
			BaseDir: spec.WorkDir,
			Reply:   interp.ReplyStdout,
		})
		if err != nil {
			return nil, err
		}
		return &Executor{
			proc:      proc,
			stdout:    bufio.NewReader(proc.Replies()),
			stager:    fsutil.NewStager(downloadTimeout, spec.MaxDownloadBytes),
			maxOutput: spec.MaxOutputBytes,
		}, nil
	}, nil
}

// Executor is a shell session.
type Executor struct {
	proc      *interp.Process
	stdout    *bufio.Reader
	stager    *fsutil.Stager
	maxOutput int

	mu sync.Mutex
}

// Execute runs code in the persistent shell. A non-zero exit status is
// reported as an engine error carrying the captured output.
func (e *Executor) Execute(ctx context.Context, code string, files []string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.proc.Alive() {
		return "", engine.ErrClosed
	}
	if _, err := e.stager.Stage(ctx, e.proc.Dir(), files); err != nil {
		return "", &engine.ExecError{Message: err.Error(), Err: err}
	}

	stop := context.AfterFunc(ctx, e.proc.Kill)
	defer stop()

	nonce := newNonce()
	stderrFile := filepath.Join(os.TempDir(), "codebox_stderr_"+nonce)
	defer os.Remove(stderrFile)
	sentinel := "___CODEBOX_DONE_" + nonce

	// The brace group runs in the current shell so cd, exports and
	// variables persist; stdin is detached so commands cannot eat requests.
	wrapped := fmt.Sprintf("{ %s\n} 2>\"%s\" </dev/null; echo \"%s_${?}___\"\n", code, stderrFile, sentinel)
	if _, err := io.WriteString(e.proc.Stdin(), wrapped); err != nil {
		return "", e.lost(ctx, err)
	}

	var stdout strings.Builder
	exitCode := -1
	for {
		line, err := e.stdout.ReadString('\n')
		if err != nil {
			return "", e.lost(ctx, err)
		}
		trimmed := strings.TrimSuffix(line, "\n")
		// Output without a trailing newline shares the sentinel's line.
		if i := strings.Index(trimmed, sentinel+"_"); i >= 0 && strings.HasSuffix(trimmed, "___") {
			stdout.WriteString(trimmed[:i])
			exitCode, _ = strconv.Atoi(trimmed[i+len(sentinel)+1 : len(trimmed)-3])
			break
		}
		stdout.WriteString(line)
	}

	stderr, _ := os.ReadFile(stderrFile)
	out := stdout.String() + string(stderr)
	ctxlog.FromContext(ctx).Debug("Shell command finished.", "pid", e.proc.Pid(), "exit_code", exitCode)
	if exitCode != 0 {
		return "", engine.Errorf("%sexit status %d", engine.Truncate(out, e.maxOutput), exitCode)
	}
	return engine.Truncate(out, e.maxOutput), nil
}

func (e *Executor) lost(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &engine.ExecError{Message: "execution interrupted", Err: ctx.Err()}
	}
	return &engine.ExecError{Message: "shell process terminated unexpectedly; state lost", Err: err}
}

// Close stops the shell and removes its working directory.
func (e *Executor) Close() error {
	e.stager.Close()
	return e.proc.Close()
}

func newNonce() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
