package engine

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// Executor runs code snippets against persistent interpreter state.
//
// Contract:
//   - Execute is never called concurrently on the same Executor; callers
//     serialize access.
//   - Execute returns the textual result on success. Any failure the engine
//     reports (user exception, crashed interpreter) is returned as an error,
//     and the caller treats the Executor's state as lost.
//   - Execute should return promptly once ctx is done, but callers must not
//     rely on it.
//   - Close may be called concurrently with a running Execute and must make
//     that call return. Close is idempotent.
type Executor interface {
	Execute(ctx context.Context, code string, files []string) (string, error)
	Close() error
}

// Spec describes how to build Executors of one kind.
type Spec struct {
	// Kind selects the registered engine module, e.g. "python" or "shell".
	Kind string
	// Command overrides the interpreter binary.
	Command string
	Args    []string
	// WorkDir is the parent directory for per-session working directories.
	// Empty means the OS temp directory.
	WorkDir string
	Env     map[string]string
	// MaxOutputBytes truncates results; zero disables truncation.
	MaxOutputBytes int
	// MaxDownloadBytes bounds each downloaded input file; zero disables the limit.
	MaxDownloadBytes int64
}

// Factory constructs a fresh Executor for the given session identity.
type Factory func(ctx context.Context, identity string) (Executor, error)

// Truncate returns s cut to at most max bytes, never inside a UTF-8 sequence,
// with a trailing notice. A non-positive max returns s unchanged.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("\n...[Output Truncated, %d bytes total]", len(s))
}
