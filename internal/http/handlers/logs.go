package handlers

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	httpctx "github.com/ranggakrisnaa/activity-tracker-api/internal/http/ctx"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/http/respond"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/ingestion"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/metrics"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/store"
)

type logRequest struct {
	Endpoint  string `json:"endpoint"`
	Method    string `json:"method"`
	Status    int    `json:"status"`
	ElapsedMs int64  `json:"elapsed_ms"`
	IP        string `json:"ip"`
	UA        string `json:"ua"`
}

// Logs handles POST /logs: accepts one activity record per call and hands
// it to the ingestion pipeline. The response never waits on storage.
func Logs(pipeline *ingestion.Pipeline, retentionDays int) fasthttp.RequestHandler {
	return func(rc *fasthttp.RequestCtx) {
		caller, ok := httpctx.CallerFromCtx(rc)
		if !ok {
			respond.Error(rc, fasthttp.StatusUnauthorized, "authentication required")
			return
		}

		var req logRequest
		if err := json.Unmarshal(rc.PostBody(), &req); err != nil {
			respond.Error(rc, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Endpoint == "" || req.Method == "" {
			respond.Error(rc, fasthttp.StatusBadRequest, "endpoint and method are required")
			return
		}
		if req.IP == "" {
			req.IP = rc.RemoteIP().String()
		}
		if req.UA == "" {
			req.UA = string(rc.UserAgent())
		}

		now := time.Now()
		expires := now.AddDate(0, 0, retentionDays)
		record := store.ActivityRecord{
			CallerRowID:  caller.ID,
			CallerID:     caller.CallerID,
			CredentialID: httpctx.CredentialIDFromCtx(rc),
			Endpoint:     req.Endpoint,
			Method:       req.Method,
			Status:       req.Status,
			ElapsedMs:    req.ElapsedMs,
			RemoteAddr:   req.IP,
			UserAgent:    req.UA,
			Timestamp:    now,
			ExpiresAt:    &expires,
		}

		pipeline.Submit(record)

		metrics.RequestsTotal.WithLabelValues(caller.CallerID, req.Method, strconv.Itoa(req.Status)).Inc()
		metrics.RequestDuration.WithLabelValues(caller.CallerID, req.Method).Observe(float64(req.ElapsedMs))

		respond.OK(rc, fasthttp.StatusCreated, "accepted", nil)
	}
}
