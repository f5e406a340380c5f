// Package retry implements the exponential-backoff retry harness wrapped
// around every durable log store query and insert. Only errors classified as
// transient are retried; everything else propagates on the first attempt.
package retry

import (
	"strings"
	"time"
)

// Config controls the retry schedule.
type Config struct {
	Attempts int
	Base     time.Duration
	Cap      time.Duration
}

// Default is the N=3, base=200ms, cap=5s schedule used for DB calls.
var Default = Config{Attempts: 3, Base: 200 * time.Millisecond, Cap: 5 * time.Second}

// transientMarkers is matched case-insensitively as substrings against an
// error's message. Anything not matching here is treated as non-transient
// and propagates immediately.
var transientMarkers = []string{
	"connection-refused",
	"connection refused",
	"timeout",
	"host-not-found",
	"no such host",
	"host-unreachable",
	"host unreachable",
	"connection-lost",
	"connection reset",
	"deadlock",
	"lock-timeout",
	"lock timeout",
	"too-many-connections",
	"too many connections",
	"query-failed",
}

// IsTransient reports whether err's message matches one of the known
// transient markers.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Do retries fn up to cfg.Attempts times with delay min(base*2^(n-1), cap)
// between attempts, but only while the returned error is transient. The
// first non-transient error, or the error from the final attempt, is
// returned to the caller.
func Do(cfg Config, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsTransient(err) {
			return err
		}
		if attempt == cfg.Attempts {
			break
		}
		delay := cfg.Base * (1 << (attempt - 1))
		if delay > cfg.Cap {
			delay = cfg.Cap
		}
		time.Sleep(delay)
	}
	return lastErr
}
