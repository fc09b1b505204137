// Package gateway maps the stateless HTTP API onto the dispatcher: each
// request is one execution in the caller's session.
package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/specialistvlad/codebox/internal/catalog"
	"github.com/specialistvlad/codebox/internal/ctxlog"
	"github.com/specialistvlad/codebox/internal/dispatcher"
	"github.com/specialistvlad/codebox/internal/protocol"
	"github.com/specialistvlad/codebox/internal/session"
)

const detailNotAuthenticated = "Not authenticated"

// Dispatcher is the part of *dispatcher.Dispatcher the gateway uses.
type Dispatcher interface {
	Execute(ctx context.Context, identity string, req dispatcher.Request) dispatcher.Result
	Stats() dispatcher.Stats
}

// Config bounds HTTP executions.
type Config struct {
	// DefaultTimeout applies when the body carries no timeout.
	DefaultTimeout time.Duration
	// MaxTimeout caps any requested timeout.
	MaxTimeout   time.Duration
	MaxBodyBytes int64
}

// Gateway serves /execute, /health and /sessions.
type Gateway struct {
	disp    Dispatcher
	catalog catalog.Catalog
	cfg     Config
}

// SessionsReply is the body of GET /sessions.
type SessionsReply struct {
	Sessions   []catalog.Entry  `json:"sessions"`
	Dispatcher dispatcher.Stats `json:"dispatcher"`
}

// New creates a Gateway.
func New(d Dispatcher, c catalog.Catalog, cfg Config) *Gateway {
	return &Gateway{disp: d, catalog: c, cfg: cfg}
}

// Register installs the gateway routes on mux.
func (g *Gateway) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /execute", g.handleExecute)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /sessions", g.handleSessions)
}

func (g *Gateway) handleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := r.Header.Get(protocol.HeaderAPIKey)
	if identity == "" {
		writeError(ctx, w, http.StatusForbidden, detailNotAuthenticated)
		return
	}
	ctx = ctxlog.With(ctx, "session", session.Digest(identity)[:12])
	logger := ctxlog.FromContext(ctx)

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(ctx, w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(ctx, w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	body, err := protocol.DecodeExecuteBody(data)
	if err != nil {
		writeError(ctx, w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	timeout := g.timeout(body.Timeout)
	logger.Debug("Dispatching HTTP execution.", "timeout", timeout, "files", len(body.Files))
	res := g.disp.Execute(ctx, identity, dispatcher.Request{
		Code:    body.Code,
		Files:   body.Files,
		Timeout: timeout,
	})
	if !res.OK() {
		writeError(ctx, w, failureStatus(res.Failure), res.Failure.Message)
		return
	}
	writeJSON(ctx, w, http.StatusOK, protocol.ExecuteReply{Result: res.Text})
}

// timeout converts a requested number of seconds into a bounded duration.
func (g *Gateway) timeout(seconds int) time.Duration {
	if seconds <= 0 {
		return g.cfg.DefaultTimeout
	}
	d := time.Duration(seconds) * time.Second
	if g.cfg.MaxTimeout > 0 && d > g.cfg.MaxTimeout {
		return g.cfg.MaxTimeout
	}
	return d
}

func failureStatus(f *dispatcher.Failure) int {
	switch f.Kind {
	case dispatcher.KindOverloaded, dispatcher.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctxlog.FromContext(r.Context()).Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr)
	writeJSON(r.Context(), w, http.StatusOK, protocol.HealthReply{Status: "ok"})
}

func (g *Gateway) handleSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := g.catalog.List(ctx)
	if err != nil {
		ctxlog.FromContext(ctx).Error("Failed to list session catalog.", "error", err)
	}
	if entries == nil {
		entries = []catalog.Entry{}
	}
	writeJSON(ctx, w, http.StatusOK, SessionsReply{Sessions: entries, Dispatcher: g.disp.Stats()})
}
