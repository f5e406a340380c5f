// Package analytics serves daily-usage and top-caller aggregations
// through a read-through cache: fingerprinted results live in the KV
// gateway, misses fall back to the durable log store.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/hits"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/kv"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/store"
)

// DurableStore is the subset of store.Store the analytics service reads
// from, so tests can substitute a fake.
type DurableStore interface {
	DailyUsage(callerID string, days int) ([]store.DailyUsageRow, error)
	ActiveCallerIDs() ([]string, error)
	TopCallers(limit, hours int) ([]store.TopCallerRow, error)
}

// Service is the Analytics Service.
type Service struct {
	db       DurableStore
	cache    kv.Gateway
	tracker  *hits.Tracker
	dailyTTL time.Duration
	topTTL   time.Duration
}

// New constructs a Service. dailyTTL/topTTL<=0 default to 1 hour.
func New(db DurableStore, cache kv.Gateway, tracker *hits.Tracker, dailyTTL, topTTL time.Duration) *Service {
	if dailyTTL <= 0 {
		dailyTTL = time.Hour
	}
	if topTTL <= 0 {
		topTTL = time.Hour
	}
	return &Service{db: db, cache: cache, tracker: tracker, dailyTTL: dailyTTL, topTTL: topTTL}
}

func dailyFingerprint(days int) string { return fmt.Sprintf("usage:daily:%d", days) }
func topFingerprint(hours, limit int) string {
	return fmt.Sprintf("usage:top:%d:%d", hours, limit)
}

// Daily returns the per-caller daily usage rows across every active
// caller for the last `days` days, sorted by (date desc, count desc),
// served from cache when possible.
func (s *Service) Daily(ctx context.Context, days int) ([]store.DailyUsageRow, error) {
	fp := dailyFingerprint(days)

	if rows, ok := s.readCache(ctx, fp); ok {
		var out []store.DailyUsageRow
		if err := json.Unmarshal(rows, &out); err == nil {
			return out, nil
		}
	}

	out, err := s.computeDaily(days)
	if err != nil {
		return nil, err
	}
	s.writeCache(ctx, fp, out, s.dailyTTL)
	return out, nil
}

// Top returns the top `limit` callers by request count over the last
// `hours` hours, served from cache when possible.
func (s *Service) Top(ctx context.Context, hours, limit int) ([]store.TopCallerRow, error) {
	fp := topFingerprint(hours, limit)

	if rows, ok := s.readCache(ctx, fp); ok {
		var out []store.TopCallerRow
		if err := json.Unmarshal(rows, &out); err == nil {
			return out, nil
		}
	}

	out, err := s.db.TopCallers(limit, hours)
	if err != nil {
		return nil, err
	}
	s.writeCache(ctx, fp, out, s.topTTL)
	return out, nil
}

// readCache attempts the cache lookup, recording a hit or miss in the
// hit tracker (best-effort, never blocking the read).
func (s *Service) readCache(ctx context.Context, fp string) ([]byte, bool) {
	val, ok, err := s.cache.Get(ctx, fp)
	if err != nil || !ok || val == "" {
		if s.tracker != nil {
			s.tracker.RecordMiss(ctx, fp)
		}
		return nil, false
	}
	if s.tracker != nil {
		s.tracker.RecordHit(ctx, fp)
	}
	return []byte(val), true
}

// writeCache serializes result and writes it to the cache under fp with
// ttl. Failures are logged and swallowed; the response still returns.
// Empty results are never written, so a transient zero-caller window
// cannot poison the cache.
func (s *Service) writeCache(ctx context.Context, fp string, result interface{}, ttl time.Duration) {
	payload, err := json.Marshal(result)
	if err != nil {
		log.Printf("analytics: marshal %s failed: %v", fp, err)
		return
	}
	if isEmptyJSONArray(payload) {
		return
	}
	if err := s.cache.Set(ctx, fp, string(payload), ttl); err != nil {
		log.Printf("analytics: cache write %s failed (best-effort): %v", fp, err)
	}
}

func isEmptyJSONArray(payload []byte) bool {
	return string(payload) == "null" || string(payload) == "[]"
}

// computeDaily fans DailyUsage out across every active caller,
// concatenates per-caller rows (no cross-caller summation), and sorts by
// (date desc, count desc).
func (s *Service) computeDaily(days int) ([]store.DailyUsageRow, error) {
	callerIDs, err := s.db.ActiveCallerIDs()
	if err != nil {
		return nil, err
	}

	var all []store.DailyUsageRow
	for _, callerID := range callerIDs {
		rows, err := s.db.DailyUsage(callerID, days)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].Date.Equal(all[j].Date) {
			return all[i].Date.After(all[j].Date)
		}
		return all[i].Count > all[j].Count
	})
	return all, nil
}

// PrewarmDaily recomputes daily(days) and always writes it to cache,
// bypassing the cache-read step.
func (s *Service) PrewarmDaily(ctx context.Context, days int) error {
	out, err := s.computeDaily(days)
	if err != nil {
		return err
	}
	s.writeCache(ctx, dailyFingerprint(days), out, s.dailyTTL)
	return nil
}

// PrewarmTop recomputes top(hours, limit) and always writes it to cache,
// bypassing the cache-read step.
func (s *Service) PrewarmTop(ctx context.Context, hours, limit int) error {
	out, err := s.db.TopCallers(limit, hours)
	if err != nil {
		return err
	}
	s.writeCache(ctx, topFingerprint(hours, limit), out, s.topTTL)
	return nil
}
