package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/appshell/internal/api"
	"github.com/eugenenazirov/appshell/internal/config"
	"github.com/eugenenazirov/appshell/internal/metrics"
	"github.com/eugenenazirov/appshell/internal/server"
	"github.com/eugenenazirov/appshell/internal/storage"
)

// Options carries everything the entrypoint resolved before the app starts.
type Options struct {
	Backend  server.Kind
	BindHost string
	Config   config.Resolved
	// Reload resolves the configuration again after a backend asked for a
	// restart. Nil turns a reload request into a normal error.
	Reload func() (config.Resolved, error)

	Loggers        server.Loggers
	Logger         *zap.Logger
	ReloadDebounce time.Duration
}

// App encapsulates the application dependencies and the selected backend.
type App struct {
	kind     server.Kind
	bindHost string
	cfg      config.Resolved
	reload   func() (config.Resolved, error)

	basket  storage.Basket
	metrics *metrics.Metrics
	handler *api.Handler

	loggers        server.Loggers
	logger         *zap.Logger
	reloadDebounce time.Duration
}

// New initializes the application with all dependencies from the provided options.
func New(opts Options) (*App, error) {
	if opts.BindHost == "" {
		return nil, errors.New("bind host is required")
	}
	if opts.Backend != server.Hypercorn && opts.Backend != server.Uvicorn {
		return nil, fmt.Errorf("%w: %s", server.ErrUnsupportedBackend, opts.Backend)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	basket := storage.NewMemoryBasket()
	m := metrics.New()
	handler := api.NewHandler(basket, api.WithMetrics(m))

	return &App{
		kind:           opts.Backend,
		bindHost:       opts.BindHost,
		cfg:            opts.Config,
		reload:         opts.Reload,
		basket:         basket,
		metrics:        m,
		handler:        handler,
		loggers:        opts.Loggers,
		logger:         logger,
		reloadDebounce: opts.ReloadDebounce,
	}, nil
}

// Backend builds the server for the current configuration without starting it.
func (a *App) Backend() (server.Backend, error) {
	return server.New(a.kind, a.cfg, a.bindHost, server.Deps{
		Handler:        a.handler,
		RouterOptions:  routerOptions(a.cfg.API),
		Loggers:        a.loggers,
		ReloadDebounce: a.reloadDebounce,
	})
}

// Run serves until ctx is cancelled. A backend that stops for a reload is
// relaunched with freshly resolved configuration; the basket survives. When
// the configuration no longer resolves the previous one is kept.
func (a *App) Run(ctx context.Context) error {
	for {
		backend, err := a.Backend()
		if err != nil {
			return err
		}

		a.metrics.SetBuildInfo(a.cfg.Environment, a.kind.String())
		a.logger.Info("starting server",
			zap.String("backend", backend.Kind().String()),
			zap.String("addr", backend.Addr()),
			zap.String("environment", a.cfg.Environment),
			zap.String("mode", a.cfg.Mode.String()),
		)

		err = backend.Launch(ctx)
		if !errors.Is(err, server.ErrReloadRequested) || a.reload == nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		cfg, err := a.reload()
		if err != nil {
			a.logger.Error("reload failed, keeping previous configuration",
				zap.String("config", a.cfg.ConfigLocation),
				zap.Error(err),
			)
			continue
		}
		a.cfg = cfg
		a.logger.Info("configuration reloaded", zap.String("config", cfg.ConfigLocation))
	}
}

func routerOptions(c config.APISection) []api.RouterOption {
	return []api.RouterOption{
		api.WithLogging(c.RequestLogging),
		api.WithRateLimit(c.RateLimitRPS, c.RateLimitBurst),
	}
}
