package interp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/specialistvlad/codebox/internal/ctxlog"
)

// ReplyChannel selects which child descriptor carries protocol replies.
type ReplyChannel int

const (
	// ReplyStdout reads replies from the child's stdout; stderr goes to the log.
	ReplyStdout ReplyChannel = iota
	// ReplyFD3 reads replies from fd 3; both stdout and stderr go to the log.
	ReplyFD3
)

// DefaultGracePeriod is how long Close waits for a clean exit before killing.
const DefaultGracePeriod = 2 * time.Second

// Config describes an interpreter process.
type Config struct {
	Command string
	Args    []string
	Env     []string
	// BaseDir is the parent of the per-process working directory. Empty
	// means the OS temp directory.
	BaseDir     string
	Reply       ReplyChannel
	GracePeriod time.Duration
}

// Process is a running interpreter.
type Process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	reply *os.File
	log   *os.File
	dir   string
	grace time.Duration

	exited  chan struct{}
	waitErr error

	closeOnce sync.Once
	closeErr  error
}

// Start launches the interpreter described by cfg.
func Start(ctx context.Context, cfg Config) (_ *Process, err error) {
	logger := ctxlog.FromContext(ctx)
	if cfg.Command == "" {
		return nil, errors.New("interp: command is empty")
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}

	dir, err := os.MkdirTemp(cfg.BaseDir, "codebox-session-")
	if err != nil {
		return nil, fmt.Errorf("creating working directory: %w", err)
	}
	var cleanup []func()
	defer func() {
		if err != nil {
			for i := len(cleanup) - 1; i >= 0; i-- {
				cleanup[i]()
			}
		}
	}()
	cleanup = append(cleanup, func() { os.RemoveAll(dir) })

	logFile, err := os.CreateTemp(cfg.BaseDir, "codebox-stderr-*.log")
	if err != nil {
		return nil, fmt.Errorf("creating interpreter log: %w", err)
	}
	cleanup = append(cleanup, func() { logFile.Close(); os.Remove(logFile.Name()) })

	replyR, replyW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating reply pipe: %w", err)
	}
	cleanup = append(cleanup, func() { replyR.Close(); replyW.Close() })

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = dir
	cmd.Env = cfg.Env
	setProcessGroup(cmd)
	switch cfg.Reply {
	case ReplyFD3:
		cmd.Stdout = logFile
		cmd.Stderr = logFile
		cmd.ExtraFiles = []*os.File{replyW}
	default:
		cmd.Stdout = replyW
		cmd.Stderr = logFile
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", cfg.Command, err)
	}
	// Only the child keeps the write end; EOF on replyR then means it died.
	replyW.Close()

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		reply:  replyR,
		log:    logFile,
		dir:    dir,
		grace:  cfg.GracePeriod,
		exited: make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()

	logger.Debug("Interpreter started.", "command", cfg.Command, "pid", cmd.Process.Pid, "dir", dir)
	return p, nil
}

// Stdin is where requests are written.
func (p *Process) Stdin() io.Writer { return p.stdin }

// Replies is where protocol replies are read.
func (p *Process) Replies() io.Reader { return p.reply }

// Dir is the process working directory.
func (p *Process) Dir() string { return p.dir }

// Pid returns the process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Exited is closed once the process has been reaped.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// Alive reports whether the process is still running.
func (p *Process) Alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// ExitErr returns the error from waiting on the process, once it has exited.
func (p *Process) ExitErr() error {
	select {
	case <-p.exited:
		return p.waitErr
	default:
		return nil
	}
}

// Kill sends SIGKILL to the whole process group. It never blocks and is safe
// to call at any time, including concurrently with readers and writers.
func (p *Process) Kill() {
	if !p.Alive() {
		return
	}
	killProcessGroup(p.cmd)
}

// LogTail returns up to n trailing bytes of everything the interpreter wrote
// outside the reply channel.
func (p *Process) LogTail(n int) string {
	data, err := os.ReadFile(p.log.Name())
	if err != nil {
		return ""
	}
	if len(data) > n {
		data = data[len(data)-n:]
	}
	return string(bytes.TrimSpace(data))
}

// Close asks the interpreter to exit by closing its stdin, kills the process
// group after the grace period, and removes the working directory.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		_ = p.stdin.Close()
		select {
		case <-p.exited:
		case <-time.After(p.grace):
			killProcessGroup(p.cmd)
			<-p.exited
		}
		p.reply.Close()
		p.log.Close()
		p.closeErr = errors.Join(os.RemoveAll(p.dir), os.Remove(p.log.Name()))
	})
	return p.closeErr
}

// MergeEnv appends extra to base, replacing entries of base that share a key.
// Extra keys are added in sorted order so the result is deterministic.
func MergeEnv(base []string, extra map[string]string) []string {
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, overridden := extra[k]; !overridden {
			out = append(out, kv)
		}
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}
