package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/specialistvlad/codebox/internal/ctxlog"
	"github.com/specialistvlad/codebox/internal/engine"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Observer is notified about session lifecycle events. Implementations must
// not block; they run on the request path.
type Observer interface {
	SessionCreated(ctx context.Context, info Info)
	SessionUsed(ctx context.Context, info Info)
	SessionRemoved(ctx context.Context, info Info, reason Reason)
}

type nopObserver struct{}

func (nopObserver) SessionCreated(context.Context, Info)         {}
func (nopObserver) SessionUsed(context.Context, Info)            {}
func (nopObserver) SessionRemoved(context.Context, Info, Reason) {}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver installs a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithClock replaces time.Now, mostly for idle-eviction tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry maps identities to Sessions. The map lock is never held while an
// Executor is constructed, used or closed.
type Registry struct {
	factory  engine.Factory
	observer Observer
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	group   singleflight.Group
	closers sync.WaitGroup
}

// NewRegistry creates a Registry that builds Executors with factory.
func NewRegistry(factory engine.Factory, opts ...Option) *Registry {
	r := &Registry{
		factory:  factory,
		observer: nopObserver{},
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the live session for identity, if any.
func (r *Registry) Get(identity string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[identity]
	return s, ok
}

// GetOrCreate returns the session for identity, constructing it on first use.
// Concurrent callers for the same identity share a single construction.
func (r *Registry) GetOrCreate(ctx context.Context, identity string) (*Session, error) {
	if identity == "" {
		return nil, ErrEmptyIdentity
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if s, ok := r.sessions[identity]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	// The first caller's cancellation must not fail everyone sharing the call.
	buildCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(identity, func() (any, error) {
		return r.create(buildCtx, identity)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (r *Registry) create(ctx context.Context, identity string) (*Session, error) {
	logger := ctxlog.FromContext(ctx)

	r.mu.Lock()
	if s, ok := r.sessions[identity]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	exec, err := r.factory(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("creating executor: %w", err)
	}
	s := newSession(identity, exec, r.now())

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		if cerr := s.close(); cerr != nil {
			logger.Warn("Closing executor created during shutdown failed.", "session", s.LogID(), "error", cerr)
		}
		return nil, ErrClosed
	}
	r.sessions[identity] = s
	r.mu.Unlock()

	logger.Info("Session created.", "session", s.LogID())
	r.observer.SessionCreated(ctx, s.Info())
	return s, nil
}

// Touch records a completed execution on s.
func (r *Registry) Touch(ctx context.Context, s *Session) {
	s.touch(r.now())
	r.observer.SessionUsed(ctx, s.Info())
}

// Remove detaches and closes the session for identity. It is a no-op when no
// session exists.
func (r *Registry) Remove(ctx context.Context, identity string) error {
	r.mu.Lock()
	s, ok := r.sessions[identity]
	if ok {
		delete(r.sessions, identity)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}

	s.discard()
	r.observer.SessionRemoved(ctx, s.Info(), ReasonReleased)
	ctxlog.FromContext(ctx).Info("Session released.", "session", s.LogID())
	if err := s.close(); err != nil {
		return fmt.Errorf("closing executor: %w", err)
	}
	return nil
}

// Evict detaches s if it is still the live session for its identity, and
// closes its Executor in the background. It reports whether s was detached.
// s is marked discarded either way.
func (r *Registry) Evict(ctx context.Context, s *Session, reason Reason) bool {
	s.discard()

	r.mu.Lock()
	cur, ok := r.sessions[s.identity]
	detached := ok && cur == s
	if detached {
		delete(r.sessions, s.identity)
	}
	r.mu.Unlock()

	logger := ctxlog.FromContext(ctx)
	if detached {
		logger.Warn("Session evicted.", "session", s.LogID(), "reason", reason)
		r.observer.SessionRemoved(ctx, s.Info(), reason)
	}

	r.closers.Add(1)
	go func() {
		defer r.closers.Done()
		if err := s.close(); err != nil {
			logger.Warn("Closing evicted executor failed.", "session", s.LogID(), "error", err)
		}
	}()
	return detached
}

// Reap evicts sessions that are not busy and have been idle for longer than
// idle. It returns the number of sessions evicted.
func (r *Registry) Reap(ctx context.Context, idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	var stale []*Session
	r.mu.Lock()
	for _, s := range r.sessions {
		if !s.Busy() && s.idleSince().Before(cutoff) {
			stale = append(stale, s)
		}
	}
	r.mu.Unlock()

	n := 0
	for _, s := range stale {
		if r.reapOne(ctx, s, cutoff) {
			n++
		}
	}
	return n
}

// reapOne evicts s only while holding its slot, so a dispatch that acquired
// s after it was picked as a candidate is never cut off.
func (r *Registry) reapOne(ctx context.Context, s *Session, cutoff time.Time) bool {
	if !s.tryAcquire() {
		return false
	}
	defer s.Unlock()
	if !s.idleSince().Before(cutoff) {
		return false
	}
	return r.Evict(ctx, s, ReasonIdle)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns the metadata of every live session.
func (r *Registry) Snapshot() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	infos := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// Shutdown refuses new sessions and closes every existing one, waiting for
// background closes too. It returns early with ctx's error if ctx ends first.
func (r *Registry) Shutdown(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	r.mu.Lock()
	r.closed = true
	all := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	logger.Info("Shutting down sessions...", "count", len(all))

	var g errgroup.Group
	for _, s := range all {
		g.Go(func() error {
			s.discard()
			r.observer.SessionRemoved(ctx, s.Info(), ReasonShutdown)
			if err := s.close(); err != nil {
				return fmt.Errorf("closing session %s: %w", s.LogID(), err)
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		err := g.Wait()
		r.closers.Wait()
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("Session shutdown finished with errors.", "error", err)
			return err
		}
		logger.Debug("All sessions closed.")
		return nil
	case <-ctx.Done():
		logger.Warn("Session shutdown interrupted; some executors may still be closing.", "error", ctx.Err())
		return ctx.Err()
	}
}
