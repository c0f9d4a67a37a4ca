package api

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

const (
	rateLimitedMessage = "Too many requests"
	rateLimitedDetails = "rate limit exceeded, please retry shortly"
)

// rateLimiter is satisfied by *rate.Limiter. One limiter guards a whole router.
type rateLimiter interface {
	Allow() bool
}

// newTokenBucketLimiter keeps fractional rates as configured, so 0.5 admits
// one request every two seconds. Callers pass a positive rate.
func newTokenBucketLimiter(ratePerSecond float64, burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(ratePerSecond), max(burst, 1))
}

func rateLimitMiddleware(limiter rateLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, rateLimitedMessage, rateLimitedDetails)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func fastRateLimitMiddleware(limiter rateLimiter, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	if limiter == nil {
		return next
	}
	return func(ctx *fasthttp.RequestCtx) {
		if !limiter.Allow() {
			writeFastError(ctx, fasthttp.StatusTooManyRequests, rateLimitedMessage, rateLimitedDetails)
			return
		}
		next(ctx)
	}
}
