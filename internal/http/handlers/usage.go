package handlers

import (
	"strconv"

	"github.com/valyala/fasthttp"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/analytics"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/http/respond"
)

// UsageDaily handles GET /usage/daily?days=N (default 7).
func UsageDaily(svc *analytics.Service) fasthttp.RequestHandler {
	return func(rc *fasthttp.RequestCtx) {
		days := queryInt(rc, "days", 7)
		rows, err := svc.Daily(rc, days)
		if err != nil {
			respond.Error(rc, fasthttp.StatusInternalServerError, "failed to load daily usage")
			return
		}
		respond.OK(rc, fasthttp.StatusOK, "ok", map[string]interface{}{"data": rows})
	}
}

// UsageTop handles GET /usage/top?hours=H&limit=L (defaults 24/3).
func UsageTop(svc *analytics.Service) fasthttp.RequestHandler {
	return func(rc *fasthttp.RequestCtx) {
		hours := queryInt(rc, "hours", 24)
		limit := queryInt(rc, "limit", 3)
		rows, err := svc.Top(rc, hours, limit)
		if err != nil {
			respond.Error(rc, fasthttp.StatusInternalServerError, "failed to load top callers")
			return
		}
		respond.OK(rc, fasthttp.StatusOK, "ok", map[string]interface{}{"data": rows})
	}
}

func queryInt(rc *fasthttp.RequestCtx, key string, def int) int {
	raw := string(rc.QueryArgs().Peek(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
