package wsserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/specialistvlad/codebox/internal/ctxlog"
	"github.com/specialistvlad/codebox/internal/dispatcher"
	"github.com/specialistvlad/codebox/internal/protocol"
	"github.com/specialistvlad/codebox/internal/session"
)

// Sessions resolves the session a connection binds to.
type Sessions interface {
	GetOrCreate(ctx context.Context, identity string) (*session.Session, error)
}

// Dispatcher runs and releases session work.
type Dispatcher interface {
	Execute(ctx context.Context, identity string, req dispatcher.Request) dispatcher.Result
	Release(ctx context.Context, identity string) error
}

// Config bounds connections and executions.
type Config struct {
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
	// ReadLimit is the largest accepted message in bytes.
	ReadLimit    int64
	WriteTimeout time.Duration
}

// Handler upgrades requests to WebSocket connections and serves them.
type Handler struct {
	sessions Sessions
	disp     Dispatcher
	cfg      Config
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    map[*conn]struct{}
	wg       sync.WaitGroup
	shutdown bool
}

// New creates a Handler.
func New(sessions Sessions, disp Dispatcher, cfg Config) *Handler {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Handler{
		sessions: sessions,
		disp:     disp,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			// Callers authenticate with X-API-Key, not cookies.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		ctxlog.FromContext(r.Context()).Warn("WebSocket upgrade failed.", "error", err)
		return
	}

	connID := uuid.NewString()
	identity := r.Header.Get(protocol.HeaderAPIKey)
	ctx := ctxlog.With(r.Context(), "conn_id", connID)
	if identity != "" {
		ctx = ctxlog.With(ctx, "session", session.Digest(identity)[:12])
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := &conn{
		h:        h,
		ws:       ws,
		id:       connID,
		identity: identity,
		cancel:   cancel,
		logger:   ctxlog.FromContext(ctx),
	}
	if !h.track(c) {
		c.close(websocket.CloseGoingAway, "Server shutting down")
		return
	}
	defer h.untrack(c)

	c.serve(ctx)
}

func (h *Handler) track(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shutdown {
		return false
	}
	h.conns[c] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Handler) untrack(c *conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	h.wg.Done()
}

// Len returns the number of open connections.
func (h *Handler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Shutdown refuses new connections, closes open ones with 1001 and waits for
// their handlers to return, bounded by ctx.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.shutdown = true
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.cancel()
		c.close(websocket.CloseGoingAway, "Server shutting down")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d websocket connections: %w", len(conns), ctx.Err())
	}
}

// timeout converts a requested number of seconds into a bounded duration.
func (h *Handler) timeout(seconds int) time.Duration {
	if seconds <= 0 {
		return h.cfg.DefaultTimeout
	}
	d := time.Duration(seconds) * time.Second
	if h.cfg.MaxTimeout > 0 && d > h.cfg.MaxTimeout {
		return h.cfg.MaxTimeout
	}
	return d
}
