// Package respond builds the {success, message, responseObject, statusCode}
// JSON envelope and the X-RateLimit-* headers shared by every JSON
// endpoint.
package respond

import (
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/ratelimit"
)

// Envelope is the JSON shape returned by every JSON endpoint.
type Envelope struct {
	Success        bool        `json:"success"`
	Message        string      `json:"message"`
	ResponseObject interface{} `json:"responseObject"`
	StatusCode     int         `json:"statusCode"`
}

// ErrorBody is nested under responseObject on error responses that carry a
// machine-readable code, such as RATE_LIMIT_EXCEEDED.
type ErrorBody struct {
	Code string `json:"code"`
}

func write(rc *fasthttp.RequestCtx, status int, env Envelope) {
	env.StatusCode = status
	rc.SetStatusCode(status)
	rc.SetContentType("application/json")
	if err := json.NewEncoder(rc).Encode(env); err != nil {
		log.Printf("respond: encode failed: %v", err)
	}
}

// OK writes a 200/201-class success response carrying data.
func OK(rc *fasthttp.RequestCtx, status int, message string, data interface{}) {
	write(rc, status, Envelope{Success: true, Message: message, ResponseObject: data})
}

// Error writes a failure response with no structured body beyond the
// message.
func Error(rc *fasthttp.RequestCtx, status int, message string) {
	write(rc, status, Envelope{Success: false, Message: message})
}

// ErrorCode writes a failure response whose responseObject carries a
// machine-readable error code, used for 429 RATE_LIMIT_EXCEEDED.
func ErrorCode(rc *fasthttp.RequestCtx, status int, message, code string) {
	write(rc, status, Envelope{Success: false, Message: message, ResponseObject: ErrorBody{Code: code}})
}

// RateLimitHeaders sets the four X-RateLimit-* headers from a limiter
// result, plus Retry-After when the request was denied.
func RateLimitHeaders(rc *fasthttp.RequestCtx, limit int, res ratelimit.Result, window time.Duration) {
	rc.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	rc.Response.Header.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	rc.Response.Header.Set("X-RateLimit-Reset", res.ResetAt.UTC().Format(time.RFC3339))
	rc.Response.Header.Set("X-RateLimit-Window", strconv.Itoa(int(window.Seconds()))+"s")
	if !res.Allowed {
		retryAfter := int(time.Until(res.ResetAt).Seconds())
		if retryAfter < 0 {
			retryAfter = 0
		}
		rc.Response.Header.Set("Retry-After", strconv.Itoa(retryAfter))
	}
}
