package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/specialistvlad/codebox/internal/config"
	"github.com/specialistvlad/codebox/internal/ctxlog"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.config.Server.Address)
	if err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(fmt.Errorf("failed to listen on %s: %w", a.config.Server.Address, err), a.Close(closeCtx))
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully and
// closes the application.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	logger := a.logger
	logger.Debug("App.Serve method started.")

	if n := a.config.Server.MaxConnections; n > 0 {
		ln = netutil.LimitListener(ln, n)
		logger.Debug("Connection limit enabled.", "max_connections", n)
	}
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: a.config.Server.ReadHeaderTimeout,
		// In-flight requests finish during graceful shutdown.
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("🚀 codebox listening", "address", ln.Addr().String(), "engine", a.config.Engine.Kind)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdownServer(srv)
	})
	if idle := a.config.Sessions.IdleTimeout; idle > 0 {
		g.Go(func() error {
			a.reapIdle(gctx, idle, a.config.Sessions.ReapInterval)
			return nil
		})
	}
	if a.config.Log.Watch && a.loader != nil {
		g.Go(func() error {
			if err := config.Watch(gctx, a.appConfig.ConfigPath, a.reload, a.applyReload); err != nil {
				logger.Error("Configuration watcher stopped.", "error", err)
			}
			return nil
		})
	}

	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()
	if closeErr := a.Close(closeCtx); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	logger.Info("🏁 Shutdown complete.")
	return err
}

// reapIdle evicts idle sessions every interval until ctx is done.
func (a *App) reapIdle(ctx context.Context, idle, interval time.Duration) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Idle session reaper started.", "idle_timeout", idle, "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.sessions.Reap(ctx, idle); n > 0 {
				logger.Info("🧹 Reaped idle sessions.", "count", n)
			}
		}
	}
}

func (a *App) reload(ctx context.Context) (*config.Model, error) {
	return resolveConfig(ctx, a.appConfig, a.loader)
}

// applyReload applies the settings that can change without a restart.
func (a *App) applyReload(m *config.Model) {
	newLevel := parseLevel(m.Log.Level)
	if a.level.Level() != newLevel {
		a.logger.Info("Log level changed.", "from", a.level.Level(), "to", newLevel)
		a.level.Set(newLevel)
	}
	a.logger.Debug("Configuration reloaded; only log.level is applied without restart.")
}
