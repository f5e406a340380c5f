// Package hits keeps best-effort telemetry on cache fingerprint hit/miss
// rates, consumed by the pre-warmer to decide what to refresh. Recording
// and querying are best-effort against the KV gateway and never surface
// an error to a caller; only SetThreshold returns the gateway's error.
package hits

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/kv"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/metrics"
)

const (
	counterWindow      = 5 * time.Minute
	hitsKeyPrefix      = "cache:hits:"
	hitsKeySuffixMis   = ":miss"
	thresholdKeyPrefix = "cache:threshold:"
)

// Tracker records hit/miss counters per cache fingerprint.
type Tracker struct {
	gw        kv.Gateway
	threshold int
}

// New constructs a Tracker. threshold<=0 defaults to 100.
func New(gw kv.Gateway, threshold int) *Tracker {
	if threshold <= 0 {
		threshold = 100
	}
	return &Tracker{gw: gw, threshold: threshold}
}

func hitsKey(fingerprint string) string { return hitsKeyPrefix + fingerprint }
func missKey(fingerprint string) string { return hitsKeyPrefix + fingerprint + hitsKeySuffixMis }

// RecordHit increments the hit counter for fingerprint, best-effort.
func (t *Tracker) RecordHit(ctx context.Context, fingerprint string) {
	metrics.CacheHitsTotal.Inc()
	t.incr(ctx, hitsKey(fingerprint))
}

// RecordMiss increments the miss counter for fingerprint, best-effort.
func (t *Tracker) RecordMiss(ctx context.Context, fingerprint string) {
	metrics.CacheMissesTotal.Inc()
	t.incr(ctx, missKey(fingerprint))
}

// incr bumps key by 1 and, on its first creation (the counter was 1 right
// after the increment), sets the 5-minute expiry window.
func (t *Tracker) incr(ctx context.Context, key string) {
	v, err := t.gw.IncrBy(ctx, key, 1)
	if err != nil {
		log.Printf("hits: incrBy %s failed (best-effort): %v", key, err)
		return
	}
	if v == 1 {
		if err := t.gw.Expire(ctx, key, counterWindow); err != nil {
			log.Printf("hits: expire %s failed (best-effort): %v", key, err)
		}
	}
}

// Stats is the {hits, misses, hit_rate} result of a stats query.
type Stats struct {
	Hits    int64
	Misses  int64
	HitRate float64
}

// Stats reads the current hit/miss counters for fingerprint.
func (t *Tracker) Stats(ctx context.Context, fingerprint string) Stats {
	hits := t.readCounter(ctx, hitsKey(fingerprint))
	misses := t.readCounter(ctx, missKey(fingerprint))

	total := hits + misses
	var rate float64
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{Hits: hits, Misses: misses, HitRate: rate}
}

func (t *Tracker) readCounter(ctx context.Context, key string) int64 {
	val, ok, err := t.gw.Get(ctx, key)
	if err != nil || !ok {
		return 0
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// NeedsPrewarming reports whether fingerprint's hit rate has fallen below
// 50% with enough traffic (hits+misses > threshold) to be meaningful. The
// default threshold may be overridden per key via cache:threshold:<fp>.
func (t *Tracker) NeedsPrewarming(ctx context.Context, fingerprint string) bool {
	s := t.Stats(ctx, fingerprint)
	return s.HitRate < 0.5 && (s.Hits+s.Misses) > t.thresholdFor(ctx, fingerprint)
}

// SetThreshold stores a per-key traffic threshold override for
// fingerprint. A ttl of 0 makes the override persistent.
func (t *Tracker) SetThreshold(ctx context.Context, fingerprint string, threshold int, ttl time.Duration) error {
	return t.gw.Set(ctx, thresholdKeyPrefix+fingerprint, strconv.Itoa(threshold), ttl)
}

func (t *Tracker) thresholdFor(ctx context.Context, fingerprint string) int64 {
	val, ok, err := t.gw.Get(ctx, thresholdKeyPrefix+fingerprint)
	if err != nil || !ok {
		return int64(t.threshold)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil || n <= 0 {
		return int64(t.threshold)
	}
	return n
}

// HotKeys scans for counter keys, derives their unique fingerprints, and
// returns those that pass NeedsPrewarming.
func (t *Tracker) HotKeys(ctx context.Context) []string {
	keys, err := t.gw.Keys(ctx, hitsKeyPrefix+"*")
	if err != nil {
		log.Printf("hits: scan failed (best-effort): %v", err)
		return nil
	}

	seen := make(map[string]bool)
	var fingerprints []string
	for _, k := range keys {
		fp := strings.TrimPrefix(k, hitsKeyPrefix)
		fp = strings.TrimSuffix(fp, hitsKeySuffixMis)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		fingerprints = append(fingerprints, fp)
	}

	var hot []string
	for _, fp := range fingerprints {
		if t.NeedsPrewarming(ctx, fp) {
			hot = append(hot, fp)
		}
	}
	return hot
}
