package dispatcher

import (
	"fmt"
	"time"
)

// Kind classifies a failed execution.
type Kind string

const (
	KindTimeout        Kind = "timeout"
	KindExecutionError Kind = "execution_error"
	KindOverloaded     Kind = "overloaded"
	KindUnavailable    Kind = "unavailable"
)

// Request is a single unit of work for a session.
type Request struct {
	Code  string
	Files []string
	// Timeout bounds the whole request; zero means the dispatcher default.
	Timeout time.Duration
}

// Result is either a success carrying Text or a failure.
type Result struct {
	Text    string
	Failure *Failure
}

// OK reports whether the execution succeeded.
func (r Result) OK() bool { return r.Failure == nil }

// Failure describes why an execution produced no result.
type Failure struct {
	Kind    Kind
	Message string
	// Evicted is set when the session was discarded because of this failure.
	Evicted bool
}

func (f *Failure) Error() string { return f.Message }

func success(text string) Result { return Result{Text: text} }

func failure(kind Kind, evicted bool, format string, args ...any) Result {
	return Result{Failure: &Failure{Kind: kind, Message: fmt.Sprintf(format, args...), Evicted: evicted}}
}

func timedOut(timeout time.Duration, evicted bool) Result {
	return failure(KindTimeout, evicted, "Execution timed out after %s", humanSeconds(timeout))
}

func humanSeconds(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%d seconds", int(d/time.Second))
	}
	return d.String()
}
