package server

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/eugenenazirov/appshell/internal/api"
	"github.com/eugenenazirov/appshell/internal/config"
	"github.com/eugenenazirov/appshell/internal/logging"
)

// TLSMaterial is a complete certificate, key and key password triple.
type TLSMaterial struct {
	CertFile    string
	KeyFile     string
	KeyPassword string
}

// UvicornConfig configures the fasthttp backend.
type UvicornConfig struct {
	Host string
	Port int
	// TLS is nil unless cert, key and password are all configured.
	TLS *TLSMaterial

	Reload     bool
	WatchPaths []string

	// LogDocument is built into loggers private to this backend.
	LogDocument logging.Document

	ReadTimeout         time.Duration
	IdleTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

// NewUvicornConfig reads the port from [uvicorn]. TLS settings come from the
// [hypercorn] section so both backends share one set of certificates.
func NewUvicornConfig(cfg config.Resolved, bindHost string) UvicornConfig {
	out := UvicornConfig{
		Host:                bindHost,
		Port:                cfg.Uvicorn.PortOr(config.DefaultPort),
		Reload:              true,
		WatchPaths:          cfg.WatchPaths(),
		LogDocument:         cfg.LogDocument,
		ReadTimeout:         defaultWriteTimeout,
		IdleTimeout:         defaultIdleTimeout,
		ShutdownGracePeriod: cfg.API.ShutdownGracePeriod,
	}

	tlsSection := cfg.Hypercorn
	if tlsSection.SSLCertFile != "" && tlsSection.SSLKeyFile != "" && tlsSection.SSLKeyFilePwd != "" {
		out.TLS = &TLSMaterial{
			CertFile:    tlsSection.SSLCertFile,
			KeyFile:     tlsSection.SSLKeyFile,
			KeyPassword: tlsSection.SSLKeyFilePwd,
		}
	}
	return out
}

// UvicornBackend serves the API with fasthttp.
type UvicornBackend struct {
	cfg  UvicornConfig
	deps Deps
}

// NewUvicornBackend returns a backend that is not yet listening.
func NewUvicornBackend(cfg UvicornConfig, deps Deps) *UvicornBackend {
	return &UvicornBackend{cfg: cfg, deps: deps}
}

// Kind implements Backend.
func (b *UvicornBackend) Kind() Kind { return Uvicorn }

// Addr implements Backend.
func (b *UvicornBackend) Addr() string {
	return net.JoinHostPort(b.cfg.Host, strconv.Itoa(b.cfg.Port))
}

// Config returns the backend configuration.
func (b *UvicornBackend) Config() UvicornConfig { return b.cfg }

// Launch implements Backend. With Reload set it returns ErrReloadRequested
// after a graceful stop once a watched file changes.
func (b *UvicornBackend) Launch(ctx context.Context) error {
	ln, err := net.Listen("tcp", b.Addr())
	if err != nil {
		return fmt.Errorf("uvicorn listen %s: %w", b.Addr(), err)
	}
	return b.launchOn(ctx, ln)
}

func (b *UvicornBackend) launchOn(ctx context.Context, ln net.Listener) error {
	registry, err := logging.Build(b.cfg.LogDocument)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("uvicorn logging: %w", err)
	}
	defer registry.Close()
	logger := registry.Logger("uvicorn")

	var certPEM, keyPEM []byte
	if b.cfg.TLS != nil {
		certPEM, keyPEM, err = loadPEM(b.cfg.TLS.CertFile, b.cfg.TLS.KeyFile, b.cfg.TLS.KeyPassword)
		if err != nil {
			_ = ln.Close()
			return err
		}
	}

	srv := &fasthttp.Server{
		Name:                  "appshell",
		Handler:               api.NewFastRouter(b.deps.Handler, registry.Logger("uvicorn.access"), b.deps.RouterOptions...),
		ReadTimeout:           b.cfg.ReadTimeout,
		IdleTimeout:           b.cfg.IdleTimeout,
		NoDefaultServerHeader: true,
		CloseOnShutdown:       true,
		Logger:                zap.NewStdLog(logger),
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	changed := make(chan string, 1)
	if b.cfg.Reload && len(b.cfg.WatchPaths) > 0 {
		w, err := newWatcher(b.cfg.WatchPaths, b.deps.ReloadDebounce)
		if err != nil {
			logger.Warn("reload disabled", zap.Error(err))
		} else {
			defer w.Close()
			go func() {
				if path, ok := w.wait(ctx); ok {
					changed <- path
				}
			}()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if b.cfg.TLS != nil {
			errCh <- srv.ServeTLSEmbed(ln, certPEM, keyPEM)
			return
		}
		errCh <- srv.Serve(ln)
	}()

	logger.Info("server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", b.cfg.TLS != nil),
		zap.Bool("reload", b.cfg.Reload),
	)

	var result error
	select {
	case err := <-errCh:
		return err
	case path := <-changed:
		logger.Info("watched file changed, reloading", zap.String("path", path))
		result = ErrReloadRequested
	case <-ctx.Done():
		logger.Info("shutting down server")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), b.cfg.ShutdownGracePeriod)
	defer cancelShutdown()

	if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	// The listener is closed by now, so Serve only reports the shutdown.
	<-errCh

	return result
}
