package handlers

import (
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/auth"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/fanout"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/http/middleware"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/http/respond"
)

// Stream handles GET /usage/stream?token=...|apiKey=...&channel=...
// Authentication arrives via query parameters rather than headers since
// browser EventSource clients cannot set custom request headers.
func Stream(signer *auth.Signer, callers middleware.CallerLookup, hub *fanout.Hub, analytics fanout.Analytics) fasthttp.RequestHandler {
	return func(rc *fasthttp.RequestCtx) {
		callerID, ok := authenticateStreamRequest(rc, signer, callers)
		if !ok {
			respond.Error(rc, fasthttp.StatusUnauthorized, "invalid or missing credentials")
			return
		}

		channel := string(rc.QueryArgs().Peek("channel"))
		sub := fanout.NewSubscriber(uuid.NewString(), callerID, channel)

		hub.Join(sub)

		// The SSE body stream writer outlives this handler, so the hub
		// membership is released from the stream's own teardown, not here.
		sub.Stream(rc, rc, analytics, func() { hub.Leave(sub) })
	}
}

func authenticateStreamRequest(rc *fasthttp.RequestCtx, signer *auth.Signer, callers middleware.CallerLookup) (callerID string, ok bool) {
	if apiKey := string(rc.QueryArgs().Peek("apiKey")); apiKey != "" {
		cid, secret, valid := auth.SplitAPIKey(apiKey)
		if !valid {
			return "", false
		}
		caller, err := callers.CallerByCallerID(cid)
		if err != nil || !caller.Active {
			return "", false
		}
		if !auth.CompareAPIKey(caller.CredentialHash, apiKey) {
			return "", false
		}
		_ = secret
		return caller.CallerID, true
	}

	if token := string(rc.QueryArgs().Peek("token")); token != "" {
		claims, err := signer.Verify(token)
		if err != nil {
			return "", false
		}
		return claims.CallerID, true
	}

	return "", false
}
