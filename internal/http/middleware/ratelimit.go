package middleware

import (
	"time"

	"github.com/valyala/fasthttp"

	httpctx "github.com/ranggakrisnaa/activity-tracker-api/internal/http/ctx"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/http/respond"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/ratelimit"
)

// RateLimit enforces the per-caller sliding window, setting the
// X-RateLimit-* headers on every response the limiter decided and
// returning 429 with Retry-After + RATE_LIMIT_EXCEEDED on denial. When the
// limiter returns an error the request passes through without those
// headers. It must run after
// RequireAuth, since it needs the resolved caller.
func RateLimit(limiter *ratelimit.Limiter, defaultLimit int, window time.Duration) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(rc *fasthttp.RequestCtx) {
			caller, ok := httpctx.CallerFromCtx(rc)
			if !ok {
				respond.Error(rc, fasthttp.StatusUnauthorized, "authentication required before rate limiting")
				return
			}

			res, err := limiter.Check(rc, caller.CallerID, caller.RateLimit)
			if err != nil {
				// Availability over strict enforcement: a limiter error
				// never blocks the caller.
				next(rc)
				return
			}

			limit := caller.RateLimit
			if limit <= 0 {
				limit = defaultLimit
			}
			respond.RateLimitHeaders(rc, limit, res, window)

			if !res.Allowed {
				respond.ErrorCode(rc, fasthttp.StatusTooManyRequests, "rate limit exceeded", "RATE_LIMIT_EXCEEDED")
				return
			}
			next(rc)
		}
	}
}
