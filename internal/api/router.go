package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RouterOption configures the behaviour of NewRouter and NewFastRouter.
type RouterOption func(*routerConfig)

// WithLogging controls whether access logs are emitted.
func WithLogging(enabled bool) RouterOption {
	return func(cfg *routerConfig) {
		cfg.enableLogging = enabled
	}
}

// WithRateLimiter overrides the default request rate limiter (primarily for tests).
func WithRateLimiter(limiter rateLimiter) RouterOption {
	return func(cfg *routerConfig) {
		cfg.rateLimiter = limiter
	}
}

// WithRateLimit configures a token bucket limiter. A zero rate or burst disables limiting.
func WithRateLimit(ratePerSecond float64, burst int) RouterOption {
	return func(cfg *routerConfig) {
		if ratePerSecond <= 0 || burst <= 0 {
			cfg.rateLimiter = nil
			return
		}
		cfg.rateLimiter = newTokenBucketLimiter(ratePerSecond, burst)
	}
}

// WithBackendLabel sets the backend label recorded in request metrics.
func WithBackendLabel(name string) RouterOption {
	return func(cfg *routerConfig) {
		cfg.backend = name
	}
}

type routerConfig struct {
	enableLogging bool
	logger        *zap.Logger
	rateLimiter   rateLimiter
	backend       string
}

func newRouterConfig(logger *zap.Logger, opts []RouterOption) routerConfig {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := routerConfig{
		enableLogging: true,
		logger:        logger,
		rateLimiter:   newTokenBucketLimiter(25, 50),
		backend:       "hypercorn",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRouter creates a net/http router with standard middleware.
func NewRouter(handler *Handler, logger *zap.Logger, opts ...RouterOption) http.Handler {
	cfg := newRouterConfig(logger, opts)

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", http.HandlerFunc(handler.handleRoot))
	mux.Handle("GET "+docsPath, http.HandlerFunc(handler.handleDocs))
	mux.Handle("GET "+openAPIPath, http.HandlerFunc(handler.handleOpenAPI))
	mux.Handle("POST /add_fruits", http.HandlerFunc(handler.handleAddFruit))
	mux.Handle("GET /fruits", http.HandlerFunc(handler.handleListFruits))
	mux.Handle("GET /healthz", http.HandlerFunc(handler.handleHealth))
	mux.Handle("GET /metrics", handler.metrics.Handler())

	// Outermost last: request id, rate limit, access log, metrics, recovery, CORS.
	var root http.Handler = mux
	root = corsMiddleware(root)
	root = recoveryMiddleware(cfg.logger, root)
	root = metricsMiddleware(handler, cfg.backend, root)
	if cfg.enableLogging {
		root = loggingMiddleware(cfg.logger, root)
	}
	root = rateLimitMiddleware(cfg.rateLimiter, root)
	root = requestIDMiddleware(root)

	return root
}

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":   "*",
	"Access-Control-Allow-Methods":  "GET,POST,OPTIONS",
	"Access-Control-Allow-Headers":  "Content-Type,Authorization,X-Requested-With",
	"Access-Control-Expose-Headers": requestIDHeader,
	"Access-Control-Max-Age":        "86400",
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for k, v := range corsHeaders {
			h.Set(k, v)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := newStatusWriter(w)
		start := time.Now()
		next.ServeHTTP(sw, r)

		logAccess(logger, accessEntry{
			method:    r.Method,
			path:      r.URL.Path,
			status:    sw.status,
			bytes:     sw.written,
			elapsed:   time.Since(start),
			requestID: requestIDFromContext(r.Context()),
			remote:    r.RemoteAddr,
		})
	})
}

// accessEntry is one access log line, shared by both router flavours.
type accessEntry struct {
	method    string
	path      string
	status    int
	bytes     int64
	elapsed   time.Duration
	requestID string
	remote    string
}

// logAccess logs server errors at error level and client errors at warn.
func logAccess(logger *zap.Logger, e accessEntry) {
	level := zapcore.InfoLevel
	switch {
	case e.status >= http.StatusInternalServerError:
		level = zapcore.ErrorLevel
	case e.status >= http.StatusBadRequest:
		level = zapcore.WarnLevel
	}

	if ce := logger.Check(level, "request completed"); ce != nil {
		ce.Write(
			zap.String("method", e.method),
			zap.String("path", e.path),
			zap.Int("status", e.status),
			zap.Int64("bytes", e.bytes),
			zap.Duration("duration", e.elapsed),
			zap.String("request_id", e.requestID),
			zap.String("remote_addr", e.remote),
		)
	}
}

func metricsMiddleware(handler *Handler, backend string, next http.Handler) http.Handler {
	if handler.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := newStatusWriter(w)
		start := time.Now()
		next.ServeHTTP(sw, r)
		handler.metrics.ObserveRequest(backend, r.Method, routeLabel(r.URL.Path), sw.status, time.Since(start))
	})
}

func recoveryMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logPanic(logger, rec, r.URL.Path, requestIDFromContext(r.Context()))
				writeError(w, http.StatusInternalServerError, "Internal error", "unexpected server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func logPanic(logger *zap.Logger, rec any, path, requestID string) {
	logger.Error("panic recovered",
		zap.String("panic", fmt.Sprint(rec)),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Stack("stack"),
	)
}

const requestIDHeader = "X-Request-ID"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := requestIDOrNew(r.Header.Get(requestIDHeader))
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(contextWithRequestID(r.Context(), id)))
	})
}

var requestIDFallback atomic.Uint64

// requestIDOrNew keeps a caller supplied id and otherwise mints a random one.
func requestIDOrNew(incoming string) string {
	if id := strings.TrimSpace(incoming); id != "" {
		return id
	}
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("%x-%d", time.Now().UnixNano(), requestIDFallback.Add(1))
	}
	return hex.EncodeToString(buf[:])
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// statusWriter remembers the status code and body size written through it.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}
