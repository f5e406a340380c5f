package respond

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/ratelimit"
)

func TestOK_WritesEnvelopeWithStatusCode(t *testing.T) {
	var rc fasthttp.RequestCtx
	OK(&rc, fasthttp.StatusCreated, "created", map[string]string{"a": "b"})

	if rc.Response.StatusCode() != fasthttp.StatusCreated {
		t.Fatalf("expected status 201, got %d", rc.Response.StatusCode())
	}

	var env Envelope
	if err := json.Unmarshal(rc.Response.Body(), &env); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !env.Success || env.Message != "created" || env.StatusCode != fasthttp.StatusCreated {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestErrorCode_CarriesMachineReadableCode(t *testing.T) {
	var rc fasthttp.RequestCtx
	ErrorCode(&rc, fasthttp.StatusTooManyRequests, "rate limit exceeded", "RATE_LIMIT_EXCEEDED")

	var env Envelope
	if err := json.Unmarshal(rc.Response.Body(), &env); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if env.Success {
		t.Fatal("expected success=false")
	}

	body, _ := json.Marshal(env.ResponseObject)
	var errBody ErrorBody
	if err := json.Unmarshal(body, &errBody); err != nil {
		t.Fatalf("unmarshal error body failed: %v", err)
	}
	if errBody.Code != "RATE_LIMIT_EXCEEDED" {
		t.Fatalf("expected RATE_LIMIT_EXCEEDED, got %q", errBody.Code)
	}
}

func TestRateLimitHeaders_SetsRetryAfterOnlyWhenDenied(t *testing.T) {
	var rc fasthttp.RequestCtx
	allowed := ratelimit.Result{Allowed: true, Remaining: 5, ResetAt: time.Now().Add(time.Hour)}
	RateLimitHeaders(&rc, 10, allowed, time.Hour)

	if string(rc.Response.Header.Peek("X-RateLimit-Limit")) != "10" {
		t.Fatalf("expected limit header 10, got %q", rc.Response.Header.Peek("X-RateLimit-Limit"))
	}
	if string(rc.Response.Header.Peek("X-RateLimit-Window")) != "3600s" {
		t.Fatalf("expected window header 3600s, got %q", rc.Response.Header.Peek("X-RateLimit-Window"))
	}
	if len(rc.Response.Header.Peek("Retry-After")) != 0 {
		t.Fatal("expected no Retry-After header when allowed")
	}

	var rc2 fasthttp.RequestCtx
	denied := ratelimit.Result{Allowed: false, Remaining: 0, ResetAt: time.Now().Add(30 * time.Second)}
	RateLimitHeaders(&rc2, 10, denied, time.Hour)
	if len(rc2.Response.Header.Peek("Retry-After")) == 0 {
		t.Fatal("expected Retry-After header when denied")
	}
}
