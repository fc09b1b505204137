package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/codebox/internal/engine"
)

var (
	// ErrDiscarded is returned by Acquire once the session has been evicted.
	ErrDiscarded = errors.New("session: discarded")
	// ErrClosed is returned by the registry after Shutdown.
	ErrClosed = errors.New("session: registry is shut down")
	// ErrEmptyIdentity is returned when a caller presents no identity.
	ErrEmptyIdentity = errors.New("session: identity is empty")
)

// Reason explains why a session left the registry.
type Reason string

const (
	ReasonReleased Reason = "released"
	ReasonTimeout  Reason = "timeout"
	ReasonFault    Reason = "fault"
	ReasonIdle     Reason = "idle"
	ReasonShutdown Reason = "shutdown"
)

// Info is a point-in-time view of a session, safe to hand to observers.
// It never contains the raw identity.
type Info struct {
	Digest     string
	CreatedAt  time.Time
	LastUsedAt time.Time
	Executions int64
	Busy       bool
}

// Digest returns the SHA-256 hex digest used to refer to an identity in logs
// and the session catalog.
func Digest(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])
}

// Session binds one identity to its Executor.
type Session struct {
	identity  string
	digest    string
	exec      engine.Executor
	createdAt time.Time

	lastUsed   atomic.Int64
	executions atomic.Int64

	slot        chan struct{}
	discarded   chan struct{}
	discardOnce sync.Once

	closeOnce sync.Once
	closeErr  error
}

func newSession(identity string, exec engine.Executor, now time.Time) *Session {
	s := &Session{
		identity:  identity,
		digest:    Digest(identity),
		exec:      exec,
		createdAt: now,
		slot:      make(chan struct{}, 1),
		discarded: make(chan struct{}),
	}
	s.lastUsed.Store(now.UnixNano())
	return s
}

// Identity returns the caller identity the session is bound to.
func (s *Session) Identity() string { return s.identity }

// Executor returns the session's Executor.
func (s *Session) Executor() engine.Executor { return s.exec }

// LogID is a short, non-reversible handle for log lines.
func (s *Session) LogID() string { return s.digest[:12] }

// Acquire blocks until the caller holds the session exclusively, the session
// is discarded, or ctx is done.
func (s *Session) Acquire(ctx context.Context) error {
	if s.Discarded() {
		return ErrDiscarded
	}
	select {
	case s.slot <- struct{}{}:
		if s.Discarded() {
			s.Unlock()
			return ErrDiscarded
		}
		return nil
	case <-s.discarded:
		return ErrDiscarded
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) tryAcquire() bool {
	select {
	case s.slot <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock gives up the exclusive hold taken by Acquire.
func (s *Session) Unlock() {
	select {
	case <-s.slot:
	default:
	}
}

// Busy reports whether a caller currently holds the session.
func (s *Session) Busy() bool { return len(s.slot) > 0 }

// Discarded reports whether the session has been evicted.
func (s *Session) Discarded() bool {
	select {
	case <-s.discarded:
		return true
	default:
		return false
	}
}

// Info returns a snapshot of the session's metadata.
func (s *Session) Info() Info {
	return Info{
		Digest:     s.digest,
		CreatedAt:  s.createdAt,
		LastUsedAt: time.Unix(0, s.lastUsed.Load()),
		Executions: s.executions.Load(),
		Busy:       s.Busy(),
	}
}

func (s *Session) touch(now time.Time) {
	s.lastUsed.Store(now.UnixNano())
	s.executions.Add(1)
}

func (s *Session) idleSince() time.Time { return time.Unix(0, s.lastUsed.Load()) }

func (s *Session) discard() {
	s.discardOnce.Do(func() { close(s.discarded) })
}

// close discards the session and releases its Executor exactly once.
func (s *Session) close() error {
	s.discard()
	s.closeOnce.Do(func() {
		s.closeErr = s.exec.Close()
	})
	return s.closeErr
}
