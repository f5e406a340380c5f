package middleware

import (
	"testing"

	"github.com/valyala/fasthttp"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/auth"
	httpctx "github.com/ranggakrisnaa/activity-tracker-api/internal/http/ctx"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/store"
)

type fakeCallerLookup struct {
	byID map[string]*store.Caller
}

func (f *fakeCallerLookup) CallerByCallerID(callerID string) (*store.Caller, error) {
	c, ok := f.byID[callerID]
	if !ok {
		return nil, errNotFound
	}
	return c, nil
}

func (f *fakeCallerLookup) TouchLastSeen(uint) error { return nil }

var errNotFound = fasthttpTestErr("not found")

type fasthttpTestErr string

func (e fasthttpTestErr) Error() string { return string(e) }

func mustCaller(t *testing.T, callerID string) (*store.Caller, string) {
	t.Helper()
	key, err := auth.GenerateAPIKey(callerID)
	if err != nil {
		t.Fatalf("generate api key failed: %v", err)
	}
	hash, err := auth.HashAPIKey(key)
	if err != nil {
		t.Fatalf("hash api key failed: %v", err)
	}
	return &store.Caller{CallerID: callerID, Active: true, CredentialHash: hash}, key
}

func TestRequireAuth_AcceptsValidAPIKey(t *testing.T) {
	caller, key := mustCaller(t, "CL-AAAAAAAAAAAA")
	lookup := &fakeCallerLookup{byID: map[string]*store.Caller{caller.CallerID: caller}}
	signer := auth.NewSigner("secret")

	var called bool
	handler := RequireAuth(signer, lookup, false)(func(rc *fasthttp.RequestCtx) {
		called = true
		got, ok := httpctx.CallerFromCtx(rc)
		if !ok || got.CallerID != caller.CallerID {
			t.Fatalf("expected caller in context, got %+v ok=%v", got, ok)
		}
	})

	var rc fasthttp.RequestCtx
	rc.Request.Header.Set("X-API-Key", key)
	handler(&rc)

	if !called {
		t.Fatal("expected handler to be invoked")
	}
}

func TestRequireAuth_RejectsWrongAPIKey(t *testing.T) {
	caller, _ := mustCaller(t, "CL-BBBBBBBBBBBB")
	lookup := &fakeCallerLookup{byID: map[string]*store.Caller{caller.CallerID: caller}}
	signer := auth.NewSigner("secret")

	handler := RequireAuth(signer, lookup, false)(func(rc *fasthttp.RequestCtx) {
		t.Fatal("handler should not be invoked")
	})

	var rc fasthttp.RequestCtx
	rc.Request.Header.Set("X-API-Key", "nx_CL-BBBBBBBBBBBB.wrong-secret")
	handler(&rc)

	if rc.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rc.Response.StatusCode())
	}
}

func TestRequireAuth_RejectsInactiveCaller(t *testing.T) {
	caller, key := mustCaller(t, "CL-CCCCCCCCCCCC")
	caller.Active = false
	lookup := &fakeCallerLookup{byID: map[string]*store.Caller{caller.CallerID: caller}}
	signer := auth.NewSigner("secret")

	handler := RequireAuth(signer, lookup, false)(func(rc *fasthttp.RequestCtx) {
		t.Fatal("handler should not be invoked")
	})

	var rc fasthttp.RequestCtx
	rc.Request.Header.Set("X-API-Key", key)
	handler(&rc)

	if rc.Response.StatusCode() != fasthttp.StatusForbidden {
		t.Fatalf("expected 403, got %d", rc.Response.StatusCode())
	}
}

func TestRequireAuth_AcceptsValidBearerToken(t *testing.T) {
	caller, _ := mustCaller(t, "CL-DDDDDDDDDDDD")
	lookup := &fakeCallerLookup{byID: map[string]*store.Caller{caller.CallerID: caller}}
	signer := auth.NewSigner("secret")

	token, err := signer.Issue(caller.CallerID, "a@acme.com", "Acme")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	var called bool
	handler := RequireAuth(signer, lookup, false)(func(rc *fasthttp.RequestCtx) {
		called = true
	})

	var rc fasthttp.RequestCtx
	rc.Request.Header.Set("Authorization", "Bearer "+token)
	handler(&rc)

	if !called {
		t.Fatal("expected handler to be invoked")
	}
}

func TestRequireAuth_APIKeyOnlyRejectsBearerToken(t *testing.T) {
	caller, _ := mustCaller(t, "CL-EEEEEEEEEEEE")
	lookup := &fakeCallerLookup{byID: map[string]*store.Caller{caller.CallerID: caller}}
	signer := auth.NewSigner("secret")
	token, _ := signer.Issue(caller.CallerID, "a@acme.com", "Acme")

	handler := RequireAuth(signer, lookup, true)(func(rc *fasthttp.RequestCtx) {
		t.Fatal("handler should not be invoked")
	})

	var rc fasthttp.RequestCtx
	rc.Request.Header.Set("Authorization", "Bearer "+token)
	handler(&rc)

	if rc.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rc.Response.StatusCode())
	}
}

func TestRequireAuth_RejectsInactiveCallerWithValidToken(t *testing.T) {
	caller, _ := mustCaller(t, "CL-FFFFFFFFFFFF")
	caller.Active = false
	lookup := &fakeCallerLookup{byID: map[string]*store.Caller{caller.CallerID: caller}}
	signer := auth.NewSigner("secret")

	token, err := signer.Issue(caller.CallerID, "a@acme.com", "Acme")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	handler := RequireAuth(signer, lookup, false)(func(rc *fasthttp.RequestCtx) {
		t.Fatal("handler should not be invoked")
	})

	var rc fasthttp.RequestCtx
	rc.Request.Header.Set("Authorization", "Bearer "+token)
	handler(&rc)

	if rc.Response.StatusCode() != fasthttp.StatusForbidden {
		t.Fatalf("expected 403 for inactive caller, got %d", rc.Response.StatusCode())
	}
}
