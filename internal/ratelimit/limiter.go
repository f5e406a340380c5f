// Package ratelimit makes an atomic sliding-window admission decision
// per caller against the KV gateway, falling back to a single-process
// in-memory limiter when the shared store is unreachable.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/apperr"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/kv"
)

// Result is the outcome of a Check call.
type Result struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
	Current   int64
	// Fallback reports whether the decision was made by the local
	// in-process limiter because the KV store was unreachable.
	Fallback bool
}

// Limiter enforces a per-caller sliding-window request ceiling.
type Limiter struct {
	gw           kv.Gateway
	defaultLimit int
	window       time.Duration
	fallback     *localLimiter
}

// New constructs a Limiter backed by gw, with defaultLimit and window
// applied to callers that don't override the ceiling.
func New(gw kv.Gateway, defaultLimit int, window time.Duration) *Limiter {
	l := &Limiter{
		gw:           gw,
		defaultLimit: defaultLimit,
		window:       window,
		fallback:     newLocalLimiter(),
	}
	l.fallback.startSweep(5 * time.Minute)
	return l
}

// Check evaluates the sliding window for callerID. ceiling, if non-zero,
// overrides the default ceiling for this caller.
func (l *Limiter) Check(ctx context.Context, callerID string, ceiling int) (Result, error) {
	limit := l.defaultLimit
	if ceiling > 0 {
		limit = ceiling
	}

	key := "rate_limit:" + callerID
	now := time.Now()

	res, err := l.checkAtomic(ctx, key, now, limit)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, apperr.ErrKVUnavailable) {
		return Result{}, err
	}

	log.Printf("rate limiter falling back to local limiter for %s: %v", callerID, err)
	allowed, current, resetAt := l.fallback.check(callerID, now, limit, l.window)
	return Result{
		Allowed:   allowed,
		Remaining: max0(int64(limit) - current),
		ResetAt:   resetAt,
		Current:   current,
		Fallback:  true,
	}, nil
}

func (l *Limiter) checkAtomic(ctx context.Context, key string, now time.Time, limit int) (Result, error) {
	windowMs := l.window.Milliseconds()
	nowMs := now.UnixMilli()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	raw, err := l.gw.EvalAtomic(ctx, slidingWindowScript, []string{key}, nowMs, windowMs, limit, member)
	if err != nil {
		return Result{}, err
	}

	vals, ok := raw.([]interface{})
	if !ok || len(vals) < 3 {
		return Result{}, fmt.Errorf("rate limit script: unexpected reply %#v", raw)
	}

	allowed := toInt64(vals[0]) == 1
	current := toInt64(vals[1])
	resetMs := toInt64(vals[2])

	return Result{
		Allowed:   allowed,
		Remaining: max0(int64(limit) - current),
		ResetAt:   time.UnixMilli(resetMs),
		Current:   current,
	}, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func max0(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
