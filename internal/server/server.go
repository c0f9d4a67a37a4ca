// Package server launches the HTTP API on one of two interchangeable
// backends. Hypercorn runs on net/http, Uvicorn on fasthttp.
package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/appshell/internal/api"
	"github.com/eugenenazirov/appshell/internal/config"
)

// Backend is a configured server ready to be launched.
type Backend interface {
	Kind() Kind
	// Addr is the host:port the backend binds.
	Addr() string
	// Launch serves until ctx is cancelled or the server fails.
	Launch(ctx context.Context) error
}

// Loggers hands out named loggers; *logging.Registry satisfies it.
type Loggers interface {
	Logger(name string) *zap.Logger
}

// Deps are the collaborators shared by every backend.
type Deps struct {
	Handler       *api.Handler
	RouterOptions []api.RouterOption
	// Loggers supplies the hypercorn loggers. Uvicorn builds its own from
	// the logging document. Nil falls back to the global logger.
	Loggers Loggers
	// ReloadDebounce folds bursts of file events into one reload.
	ReloadDebounce time.Duration
}

func (d Deps) logger(name string) *zap.Logger {
	if d.Loggers == nil {
		return zap.L().Named(name)
	}
	return d.Loggers.Logger(name)
}

// New builds the backend of the given kind from the resolved configuration.
// bindHost is the interface both backends listen on.
func New(kind Kind, cfg config.Resolved, bindHost string, deps Deps) (Backend, error) {
	switch kind {
	case Hypercorn:
		return NewHypercornBackend(NewHypercornConfig(cfg, bindHost), deps), nil
	case Uvicorn:
		return NewUvicornBackend(NewUvicornConfig(cfg, bindHost), deps), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, kind)
	}
}
