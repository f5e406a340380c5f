// Package ctx stashes per-request authentication state on a
// fasthttp.RequestCtx's user-value map.
package ctx

import (
	"github.com/valyala/fasthttp"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/auth"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/store"
)

type key string

const (
	callerKey     key = "caller"
	claimsKey     key = "claims"
	credentialKey key = "credential_id"
)

// SetCaller attaches the authenticated caller row to the request.
func SetCaller(rc *fasthttp.RequestCtx, c *store.Caller) {
	rc.SetUserValue(callerKey, c)
}

// CallerFromCtx retrieves the caller attached by SetCaller, if any.
func CallerFromCtx(rc *fasthttp.RequestCtx) (*store.Caller, bool) {
	v := rc.UserValue(callerKey)
	if v == nil {
		return nil, false
	}
	c, ok := v.(*store.Caller)
	return c, ok
}

// SetClaims attaches verified JWT claims to the request, when auth was
// performed via bearer token rather than an API key.
func SetClaims(rc *fasthttp.RequestCtx, c *auth.Claims) {
	rc.SetUserValue(claimsKey, c)
}

// ClaimsFromCtx retrieves the claims attached by SetClaims, if any.
func ClaimsFromCtx(rc *fasthttp.RequestCtx) (*auth.Claims, bool) {
	v := rc.UserValue(claimsKey)
	if v == nil {
		return nil, false
	}
	c, ok := v.(*auth.Claims)
	return c, ok
}

// SetCredentialID records which credential authenticated the request, for
// denormalization onto ingested activity records.
func SetCredentialID(rc *fasthttp.RequestCtx, id string) {
	rc.SetUserValue(credentialKey, id)
}

// CredentialIDFromCtx retrieves the credential id, if one was attached.
func CredentialIDFromCtx(rc *fasthttp.RequestCtx) string {
	v, _ := rc.UserValue(credentialKey).(string)
	return v
}
