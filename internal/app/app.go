package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/specialistvlad/codebox/internal/catalog"
	"github.com/specialistvlad/codebox/internal/config"
	"github.com/specialistvlad/codebox/internal/ctxlog"
	"github.com/specialistvlad/codebox/internal/dispatcher"
	"github.com/specialistvlad/codebox/internal/engine"
	"github.com/specialistvlad/codebox/internal/registry"
	"github.com/specialistvlad/codebox/internal/session"
	"github.com/specialistvlad/codebox/internal/wsserver"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	level  *slog.LevelVar
	ctx    context.Context

	appConfig *Config
	loader    config.Loader
	config    *config.Model

	engines    *registry.Registry
	catalog    catalog.Catalog
	observer   *catalog.Observer
	sessions   *session.Registry
	dispatcher *dispatcher.Dispatcher
	ws         *wsserver.Handler
	handler    http.Handler

	closeOnce sync.Once
	closeErr  error
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger, engine registry and
// session registry. When no modules are given the core engine modules are
// registered.
func NewApp(outW io.Writer, appConfig *Config, modules ...registry.Module) (*App, error) {
	var loader config.Loader
	if appConfig.ConfigPath != "" {
		var err error
		if loader, err = loaderFor(appConfig.ConfigPath); err != nil {
			return nil, err
		}
	}
	cfgModel, err := resolveConfig(context.Background(), appConfig, loader)
	if err != nil {
		return nil, err
	}

	level := new(slog.LevelVar)
	level.Set(parseLevel(cfgModel.Log.Level))
	logger := newLogger(level, cfgModel.Log.Format, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	// Create and populate the registry with engine modules.
	engines := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(engines)
	}
	logger.Debug("All engine modules registered.", "count", len(modules), "kinds", engines.Kinds())

	factory, err := engines.Factory(engineSpec(cfgModel.Engine))
	if err != nil {
		return nil, err
	}

	cat, err := openCatalog(ctx, cfgModel.Catalog)
	if err != nil {
		return nil, err
	}
	observer := catalog.NewObserver(ctx, cat)
	sessions := session.NewRegistry(factory, session.WithObserver(observer))
	disp := dispatcher.New(ctx, sessions, dispatcher.Config{
		Workers:        cfgModel.Dispatch.Workers,
		QueueDepth:     cfgModel.Dispatch.QueueDepth,
		DefaultTimeout: cfgModel.Dispatch.HTTPTimeout,
	})

	a := &App{
		outW:       outW,
		logger:     logger,
		level:      level,
		ctx:        ctx,
		appConfig:  appConfig,
		loader:     loader,
		config:     cfgModel,
		engines:    engines,
		catalog:    cat,
		observer:   observer,
		sessions:   sessions,
		dispatcher: disp,
	}
	a.handler = a.buildHandler()
	logger.Debug("Application initialized.", "engine", cfgModel.Engine.Kind, "catalog", cfgModel.Catalog.Backend)
	return a, nil
}

func engineSpec(e config.Engine) engine.Spec {
	return engine.Spec{
		Kind:             e.Kind,
		Command:          e.Command,
		Args:             e.Args,
		WorkDir:          e.WorkDir,
		Env:              e.Env,
		MaxOutputBytes:   e.MaxOutputBytes,
		MaxDownloadBytes: e.MaxDownloadBytes,
	}
}

func openCatalog(ctx context.Context, c config.Catalog) (catalog.Catalog, error) {
	switch c.Backend {
	case "redis":
		cat, err := catalog.NewRedis(ctx, c.RedisURL, c.KeyPrefix, c.TTL)
		if err != nil {
			return nil, fmt.Errorf("failed to open session catalog: %w", err)
		}
		return cat, nil
	default:
		return catalog.NewMemory(), nil
	}
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Model {
	return a.config
}

// Handler returns the HTTP handler serving every endpoint. This is primarily
// for testing.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Sessions returns the application's session registry. This is primarily for
// testing.
func (a *App) Sessions() *session.Registry {
	return a.sessions
}

// Close stops the dispatcher, closes every session and flushes the catalog.
// It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		logger := ctxlog.FromContext(a.ctx)
		logger.Debug("Closing application components...")
		var errs []error
		if err := a.dispatcher.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := a.sessions.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		a.observer.Close()
		if err := a.catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing catalog: %w", err))
		}
		a.closeErr = errors.Join(errs...)
		logger.Debug("Application components closed.", "error", a.closeErr)
	})
	return a.closeErr
}
