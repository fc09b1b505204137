package testutil

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/codebox/internal/engine"
)

// FakeExecutor is an in-process engine.Executor speaking a tiny line-based
// language, used to exercise session state without a real interpreter.
//
//	x = 5        assign
//	print(x)     append the value of x to the output (NameError if unset)
//	sleep(50)    sleep 50ms, honoring ctx and Close
//	hang()       block until Close, ignoring ctx
//	raise(msg)   fail with msg
//	panic()      panic inside Execute
//	files()      print the file references passed to Execute
type FakeExecutor struct {
	ID int

	mu     sync.Mutex
	vars   map[string]string
	calls  int
	closed chan struct{}
	once   sync.Once

	running atomic.Int32
	// MaxConcurrent records the highest number of overlapping Execute calls.
	MaxConcurrent atomic.Int32
}

func newFakeExecutor(id int) *FakeExecutor {
	return &FakeExecutor{ID: id, vars: make(map[string]string), closed: make(chan struct{})}
}

// Execute implements engine.Executor.
func (f *FakeExecutor) Execute(ctx context.Context, code string, files []string) (string, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		cur := f.MaxConcurrent.Load()
		if n <= cur || f.MaxConcurrent.CompareAndSwap(cur, n) {
			break
		}
	}

	select {
	case <-f.closed:
		return "", engine.ErrClosed
	default:
	}

	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	var out strings.Builder
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case line == "hang()":
			<-f.closed
			return "", engine.ErrClosed
		case line == "panic()":
			panic("fake executor panic")
		case line == "files()":
			out.WriteString(strings.Join(files, ","))
			out.WriteString("\n")
		case strings.HasPrefix(line, "sleep(") && strings.HasSuffix(line, ")"):
			ms, err := strconv.Atoi(line[len("sleep(") : len(line)-1])
			if err != nil {
				return "", engine.Errorf("SyntaxError: %s", line)
			}
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return "", &engine.ExecError{Message: "interrupted", Err: ctx.Err()}
			case <-f.closed:
				return "", engine.ErrClosed
			}
		case strings.HasPrefix(line, "raise(") && strings.HasSuffix(line, ")"):
			return "", engine.Errorf("%s", line[len("raise("):len(line)-1])
		case strings.HasPrefix(line, "print(") && strings.HasSuffix(line, ")"):
			name := line[len("print(") : len(line)-1]
			f.mu.Lock()
			v, ok := f.vars[name]
			f.mu.Unlock()
			if !ok {
				return "", engine.Errorf("NameError: name '%s' is not defined", name)
			}
			out.WriteString(v)
			out.WriteString("\n")
		case strings.Contains(line, "="):
			k, v, _ := strings.Cut(line, "=")
			f.mu.Lock()
			f.vars[strings.TrimSpace(k)] = strings.TrimSpace(v)
			f.mu.Unlock()
		default:
			return "", engine.Errorf("SyntaxError: %s", line)
		}
	}
	return out.String(), nil
}

// Close implements engine.Executor.
func (f *FakeExecutor) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

// Closed reports whether Close has been called.
func (f *FakeExecutor) Closed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// FakeFactory builds FakeExecutors and records what it built.
type FakeFactory struct {
	// Delay slows construction down to widen race windows.
	Delay time.Duration
	// Err, when set, makes construction fail.
	Err error

	created atomic.Int32
	mu      sync.Mutex
	built   []*FakeExecutor
}

// Factory returns the engine.Factory view of f.
func (f *FakeFactory) Factory() engine.Factory {
	return func(ctx context.Context, identity string) (engine.Executor, error) {
		if f.Delay > 0 {
			time.Sleep(f.Delay)
		}
		if f.Err != nil {
			return nil, fmt.Errorf("creating executor for %s: %w", identity, f.Err)
		}
		id := int(f.created.Add(1))
		e := newFakeExecutor(id)
		f.mu.Lock()
		f.built = append(f.built, e)
		f.mu.Unlock()
		return e, nil
	}
}

// Created returns how many executors have been constructed.
func (f *FakeFactory) Created() int { return int(f.created.Load()) }

// Built returns the executors constructed so far, in order.
func (f *FakeFactory) Built() []*FakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeExecutor(nil), f.built...)
}
