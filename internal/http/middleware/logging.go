package middleware

import (
	"log"
	"time"

	"github.com/valyala/fasthttp"
)

// RequestLogger logs method, path, status, and duration for every
// request.
func RequestLogger(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(rc *fasthttp.RequestCtx) {
		start := time.Now()
		next(rc)
		log.Printf("%s %s -> %d (%s)", rc.Method(), rc.Path(), rc.Response.StatusCode(), time.Since(start))
	}
}
