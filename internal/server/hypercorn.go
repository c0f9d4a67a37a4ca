package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/appshell/internal/api"
	"github.com/eugenenazirov/appshell/internal/config"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultWriteTimeout      = 15 * time.Second
	defaultIdleTimeout       = 60 * time.Second
)

// HypercornConfig configures the net/http backend.
type HypercornConfig struct {
	Bind        string
	CertFile    string
	KeyFile     string
	KeyPassword string

	ReadHeaderTimeout   time.Duration
	WriteTimeout        time.Duration
	IdleTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

// NewHypercornConfig reads the [hypercorn] section. TLS fields are copied
// individually, so partial material reaches the server and fails there.
func NewHypercornConfig(cfg config.Resolved, bindHost string) HypercornConfig {
	section := cfg.Hypercorn
	return HypercornConfig{
		Bind:                net.JoinHostPort(bindHost, strconv.Itoa(section.PortOr(config.DefaultPort))),
		CertFile:            section.SSLCertFile,
		KeyFile:             section.SSLKeyFile,
		KeyPassword:         section.SSLKeyFilePwd,
		ReadHeaderTimeout:   defaultReadHeaderTimeout,
		WriteTimeout:        defaultWriteTimeout,
		IdleTimeout:         defaultIdleTimeout,
		ShutdownGracePeriod: cfg.API.ShutdownGracePeriod,
	}
}

// TLSRequested reports whether any TLS material is configured.
func (c HypercornConfig) TLSRequested() bool {
	return c.CertFile != "" || c.KeyFile != ""
}

// HypercornBackend serves the API with net/http.
type HypercornBackend struct {
	cfg    HypercornConfig
	deps   Deps
	logger *zap.Logger
}

// NewHypercornBackend returns a backend that is not yet listening.
func NewHypercornBackend(cfg HypercornConfig, deps Deps) *HypercornBackend {
	return &HypercornBackend{cfg: cfg, deps: deps, logger: deps.logger(Hypercorn.String())}
}

// Kind implements Backend.
func (b *HypercornBackend) Kind() Kind { return Hypercorn }

// Addr implements Backend.
func (b *HypercornBackend) Addr() string { return b.cfg.Bind }

// Config returns the backend configuration.
func (b *HypercornBackend) Config() HypercornConfig { return b.cfg }

// Launch implements Backend.
func (b *HypercornBackend) Launch(ctx context.Context) error {
	ln, err := net.Listen("tcp", b.cfg.Bind)
	if err != nil {
		return fmt.Errorf("hypercorn listen %s: %w", b.cfg.Bind, err)
	}
	return b.launchOn(ctx, ln)
}

func (b *HypercornBackend) launchOn(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           api.NewRouter(b.deps.Handler, b.deps.logger("hypercorn.access"), b.deps.RouterOptions...),
		ReadHeaderTimeout: b.cfg.ReadHeaderTimeout,
		WriteTimeout:      b.cfg.WriteTimeout,
		IdleTimeout:       b.cfg.IdleTimeout,
		ErrorLog:          zap.NewStdLog(b.logger),
	}

	if b.cfg.TLSRequested() {
		cert, err := loadKeyPair(b.cfg.CertFile, b.cfg.KeyFile, b.cfg.KeyPassword)
		if err != nil {
			_ = ln.Close()
			return err
		}
		srv.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		ln = tls.NewListener(ln, srv.TLSConfig)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	b.logger.Info("server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", b.cfg.TLSRequested()),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	b.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), b.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		b.logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := srv.Close(); closeErr != nil {
			b.logger.Error("forced close failed", zap.Error(closeErr))
		}
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
