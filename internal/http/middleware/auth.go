// Package middleware holds the fasthttp request middlewares chained in
// front of the API's handlers: request logging, authentication, and rate
// limiting.
package middleware

import (
	"log"

	"github.com/valyala/fasthttp"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/apperr"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/auth"
	httpctx "github.com/ranggakrisnaa/activity-tracker-api/internal/http/ctx"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/http/respond"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/store"
)

// CallerLookup resolves an external caller id to its stored row, as
// required to check an API key hash or an inactive account.
type CallerLookup interface {
	CallerByCallerID(callerID string) (*store.Caller, error)
}

// CallerStore extends CallerLookup with the last-seen update fired after
// every successful authentication.
type CallerStore interface {
	CallerLookup
	TouchLastSeen(callerRowID uint) error
}

// RequireAuth accepts either a bearer JWT (Authorization header) or an API
// key (X-API-Key header), attaching the resolved caller/claims to the
// request context on success. apiKeyOnly restricts the route to the key
// alone, which is what the ingestion endpoint requires.
func RequireAuth(signer *auth.Signer, callers CallerStore, apiKeyOnly bool) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(rc *fasthttp.RequestCtx) {
			if apiKey := string(rc.Request.Header.Peek("X-API-Key")); apiKey != "" {
				caller, err := resolveAPIKey(callers, apiKey)
				if err != nil {
					writeAuthError(rc, err)
					return
				}
				httpctx.SetCaller(rc, caller)
				httpctx.SetCredentialID(rc, auth.KeyID(apiKey))
				touchLastSeen(callers, caller.ID)
				next(rc)
				return
			}

			if apiKeyOnly {
				respond.Error(rc, fasthttp.StatusUnauthorized, "missing X-API-Key header")
				return
			}

			bearer := string(rc.Request.Header.Peek("Authorization"))
			const prefix = "Bearer "
			if len(bearer) <= len(prefix) || bearer[:len(prefix)] != prefix {
				respond.Error(rc, fasthttp.StatusUnauthorized, "missing bearer token or X-API-Key header")
				return
			}

			claims, err := signer.Verify(bearer[len(prefix):])
			if err != nil {
				respond.Error(rc, fasthttp.StatusUnauthorized, "invalid or expired token")
				return
			}
			caller, err := callers.CallerByCallerID(claims.CallerID)
			if err != nil {
				writeAuthError(rc, err)
				return
			}
			if !caller.Active {
				writeAuthError(rc, apperr.ErrForbidden)
				return
			}
			httpctx.SetClaims(rc, claims)
			httpctx.SetCaller(rc, caller)
			touchLastSeen(callers, caller.ID)
			next(rc)
		}
	}
}

// touchLastSeen updates the caller's last-seen timestamp as a spawned
// fire-and-forget task; failures are observed through the logging sink
// only.
func touchLastSeen(callers CallerStore, callerRowID uint) {
	go func() {
		if err := callers.TouchLastSeen(callerRowID); err != nil {
			log.Printf("auth: touch last-seen for caller row %d failed: %v", callerRowID, err)
		}
	}()
}

func resolveAPIKey(callers CallerLookup, apiKey string) (*store.Caller, error) {
	callerID, _, ok := auth.SplitAPIKey(apiKey)
	if !ok {
		return nil, apperr.ErrUnauthenticated
	}
	caller, err := callers.CallerByCallerID(callerID)
	if err != nil {
		return nil, apperr.ErrUnauthenticated
	}
	if !auth.CompareAPIKey(caller.CredentialHash, apiKey) {
		return nil, apperr.ErrUnauthenticated
	}
	if !caller.Active {
		return nil, apperr.ErrForbidden
	}
	return caller, nil
}

func writeAuthError(rc *fasthttp.RequestCtx, err error) {
	switch {
	case err == apperr.ErrForbidden:
		respond.Error(rc, fasthttp.StatusForbidden, "caller is inactive")
	default:
		respond.Error(rc, fasthttp.StatusUnauthorized, "invalid credentials")
	}
}
