// Package python provides the "python" engine: one persistent python3
// process per session, driven over a line-delimited JSON protocol.
package python

import (
	"bufio"
	"context"
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/specialistvlad/codebox/internal/ctxlog"
	"github.com/specialistvlad/codebox/internal/engine"
	"github.com/specialistvlad/codebox/internal/fsutil"
	"github.com/specialistvlad/codebox/internal/interp"
	"github.com/specialistvlad/codebox/internal/registry"
)

const (
	// Kind is the engine kind this module registers.
	Kind = "python"

	downloadTimeout = time.Minute
)

//go:embed driver.py
var driverSource string

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the python engine builder.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterEngine(Kind, Builder)
}

// Builder resolves the interpreter binary once and returns a Factory that
// starts one driver process per session.
func Builder(spec engine.Spec) (engine.Factory, error) {
	command := spec.Command
	if command == "" {
		command = "python3"
	}
	bin, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("python interpreter %q: %w", command, err)
	}
	args := append([]string{"-u"}, spec.Args...)
	args = append(args, "-c", driverSource)
	env := interp.MergeEnv(os.Environ(), spec.Env)
	env = interp.MergeEnv(env, map[string]string{"PYTHONIOENCODING": "utf-8", "PYTHONUNBUFFERED": "1"})

	return func(ctx context.Context, identity string) (engine.Executor, error) {
		proc, err := interp.Start(ctx, interp.Config{
			Command: bin,
			Args:    args,
			Env:     env,
			BaseDir: spec.WorkDir,
			Reply:   interp.ReplyFD3,
		})
		if err != nil {
			return nil, err
		}
		return &Executor{
			proc:      proc,
			replies:   bufio.NewReader(proc.Replies()),
			stager:    fsutil.NewStager(downloadTimeout, spec.MaxDownloadBytes),
			maxOutput: spec.MaxOutputBytes,
		}, nil
	}, nil
}

type request struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
}

type reply struct {
	ID     int64  `json:"id"`
	OK     bool   `json:"ok"`
	Output string `json:"output"`
	Error  string `json:"error"`
}

// Executor is a python session.
type Executor struct {
	proc      *interp.Process
	replies   *bufio.Reader
	stager    *fsutil.Stager
	maxOutput int

	mu  sync.Mutex
	seq int64
}

// Execute runs code in the session's namespace. The value of a trailing
// expression is appended to the captured output.
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

	e.seq++
	line, err := sonic.Marshal(request{ID: e.seq, Code: code})
	if err != nil {
		return "", err
	}
	if _, err := e.proc.Stdin().Write(append(line, '\n')); err != nil {
		return "", e.lost(ctx, err)
	}
	raw, err := e.replies.ReadBytes('\n')
	if err != nil {
		return "", e.lost(ctx, err)
	}

	var rep reply
	if err := sonic.Unmarshal(raw, &rep); err != nil {
		e.proc.Kill()
		return "", &engine.ExecError{Message: "python driver sent an invalid reply", Err: err}
	}
	if rep.ID != e.seq {
		e.proc.Kill()
		return "", engine.Errorf("python driver replied to request %d, expected %d", rep.ID, e.seq)
	}
	if !rep.OK {
		return "", &engine.ExecError{Message: engine.Truncate(rep.Output+rep.Error, e.maxOutput)}
	}
	ctxlog.FromContext(ctx).Debug("Python cell finished.", "pid", e.proc.Pid(), "output_bytes", len(rep.Output))
	return engine.Truncate(rep.Output, e.maxOutput), nil
}

func (e *Executor) lost(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &engine.ExecError{Message: "execution interrupted", Err: ctx.Err()}
	}
	msg := "python interpreter exited unexpectedly"
	if tail := strings.TrimSpace(e.proc.LogTail(2048)); tail != "" {
		msg += ": " + tail
	}
	return &engine.ExecError{Message: msg, Err: err}
}

// Close stops the interpreter and removes its working directory.
func (e *Executor) Close() error {
	e.stager.Close()
	return e.proc.Close()
}
