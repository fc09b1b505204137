package app

import (
	"context"
	"net/http"

	"github.com/specialistvlad/codebox/internal/ctxlog"
	"github.com/specialistvlad/codebox/internal/gateway"
	"github.com/specialistvlad/codebox/internal/wsserver"
)

// buildHandler assembles the HTTP routes and the WebSocket endpoint.
func (a *App) buildHandler() http.Handler {
	cfg := a.config
	a.ws = wsserver.New(a.sessions, a.dispatcher, wsserver.Config{
		DefaultTimeout: cfg.Dispatch.WSTimeout,
		MaxTimeout:     cfg.Dispatch.MaxTimeout,
		ReadLimit:      cfg.WebSocket.ReadLimit,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
	})
	gw := gateway.New(a.dispatcher, a.catalog, gateway.Config{
		DefaultTimeout: cfg.Dispatch.HTTPTimeout,
		MaxTimeout:     cfg.Dispatch.MaxTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})

	mux := http.NewServeMux()
	gw.Register(mux)
	mux.Handle("GET /ws", a.ws)
	return gateway.WithRequestLogging(a.logger, mux)
}

// shutdownServer stops accepting requests, then closes WebSocket connections,
// which http.Server does not track once hijacked.
func (a *App) shutdownServer(srv *http.Server) error {
	logger := ctxlog.FromContext(a.ctx)

	ctx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()

	logger.Info("🛑 Shutting down HTTP server...")
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
		return err
	}
	if err := a.ws.Shutdown(ctx); err != nil {
		logger.Error("WebSocket shutdown failed", "error", err)
		return err
	}
	logger.Debug("HTTP server shut down gracefully.")
	return nil
}
