package api

import (
	"encoding/json"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

const fastRequestIDKey = string(requestIDContextKey)

// NewFastRouter creates a fasthttp request handler serving the same routes and
// middleware as NewRouter.
func NewFastRouter(handler *Handler, logger *zap.Logger, opts ...RouterOption) fasthttp.RequestHandler {
	cfg := newRouterConfig(logger, append([]RouterOption{WithBackendLabel("uvicorn")}, opts...))

	r := router.New()
	r.RedirectTrailingSlash = true
	r.GET("/", func(ctx *fasthttp.RequestCtx) {
		ctx.Redirect(docsPath, fasthttp.StatusTemporaryRedirect)
	})
	r.GET(docsPath, func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("text/html; charset=utf-8")
		ctx.SetBody(docsPage)
	})
	r.GET(openAPIPath, func(ctx *fasthttp.RequestCtx) {
		writeFastJSON(ctx, fasthttp.StatusOK, openAPIDocument)
	})
	r.POST("/add_fruits", handler.fastAddFruit)
	r.GET("/fruits", func(ctx *fasthttp.RequestCtx) {
		writeFastJSON(ctx, fasthttp.StatusOK, handler.listFruits())
	})
	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		writeFastJSON(ctx, fasthttp.StatusOK, handler.health())
	})
	r.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(handler.metrics.Handler()))

	root := r.Handler
	root = fastCORSMiddleware(root)
	root = fastRecoveryMiddleware(cfg.logger, root)
	root = fastMetricsMiddleware(handler, cfg.backend, root)
	if cfg.enableLogging {
		root = fastLoggingMiddleware(cfg.logger, root)
	}
	root = fastRateLimitMiddleware(cfg.rateLimiter, root)
	root = fastRequestIDMiddleware(root)

	return root
}

func (h *Handler) fastAddFruit(ctx *fasthttp.RequestCtx) {
	fruit := extractFruit(
		string(ctx.QueryArgs().Peek("fruit")),
		string(ctx.Request.Header.ContentType()),
		ctx.PostBody(),
	)
	status, payload := h.addFruit(fruit)
	writeFastJSON(ctx, status, payload)
}

func writeFastJSON(ctx *fasthttp.RequestCtx, status int, payload any) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	if err := json.NewEncoder(ctx).Encode(payload); err != nil {
		ctx.Error("unable to encode response", fasthttp.StatusInternalServerError)
	}
}

func writeFastError(ctx *fasthttp.RequestCtx, status int, message, details string) {
	writeFastJSON(ctx, status, errorResponse{Error: message, Details: details})
}

func fastCORSMiddleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		for k, v := range corsHeaders {
			ctx.Response.Header.Set(k, v)
		}

		if ctx.IsOptions() {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}

		next(ctx)
	}
}

func fastLoggingMiddleware(logger *zap.Logger, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)

		requestID, _ := ctx.UserValue(fastRequestIDKey).(string)
		logAccess(logger, accessEntry{
			method:    string(ctx.Method()),
			path:      string(ctx.Path()),
			status:    ctx.Response.StatusCode(),
			bytes:     int64(len(ctx.Response.Body())),
			elapsed:   time.Since(start),
			requestID: requestID,
			remote:    ctx.RemoteAddr().String(),
		})
	}
}

func fastMetricsMiddleware(handler *Handler, backend string, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	if handler.metrics == nil {
		return next
	}
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		handler.metrics.ObserveRequest(backend, string(ctx.Method()), routeLabel(string(ctx.Path())), ctx.Response.StatusCode(), time.Since(start))
	}
}

func fastRecoveryMiddleware(logger *zap.Logger, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		defer func() {
			if rec := recover(); rec != nil {
				requestID, _ := ctx.UserValue(fastRequestIDKey).(string)
				logPanic(logger, rec, string(ctx.Path()), requestID)
				ctx.Response.ResetBody()
				writeFastError(ctx, fasthttp.StatusInternalServerError, "Internal error", "unexpected server error")
			}
		}()
		next(ctx)
	}
}

func fastRequestIDMiddleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id := requestIDOrNew(string(ctx.Request.Header.Peek(requestIDHeader)))
		ctx.SetUserValue(fastRequestIDKey, id)
		ctx.Response.Header.Set(requestIDHeader, id)
		next(ctx)
	}
}
