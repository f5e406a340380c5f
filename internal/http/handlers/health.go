package handlers

import (
	"github.com/valyala/fasthttp"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/http/respond"
)

// Health handles GET /health: a liveness probe with no dependency checks.
func Health(rc *fasthttp.RequestCtx) {
	respond.OK(rc, fasthttp.StatusOK, "ok", nil)
}
