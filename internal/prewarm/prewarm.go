// Package prewarm refreshes the analytics cache ahead of demand, once at
// startup and then on a fixed schedule driven by the hit tracker's
// telemetry.
package prewarm

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"
)

const scheduledInterval = 10 * time.Minute

// staticEntry is one of the fixed set of fingerprints always refreshed on
// both startup and scheduled passes.
type staticEntry struct {
	kind  string // "daily" or "top"
	days  int
	hours int
	limit int
}

var staticSet = []staticEntry{
	{kind: "daily", days: 7},
	{kind: "daily", days: 30},
	{kind: "top", hours: 24, limit: 3},
	{kind: "top", hours: 24, limit: 10},
	{kind: "top", hours: 168, limit: 10},
}

// Analytics is the subset of analytics.Service the pre-warmer needs.
type Analytics interface {
	PrewarmDaily(ctx context.Context, days int) error
	PrewarmTop(ctx context.Context, hours, limit int) error
}

// HitTracker is the subset of hits.Tracker the pre-warmer needs.
type HitTracker interface {
	HotKeys(ctx context.Context) []string
}

// Warmer runs the startup and scheduled pre-warm passes.
type Warmer struct {
	analytics Analytics
	tracker   HitTracker

	stop chan struct{}
}

// New constructs a Warmer.
func New(analytics Analytics, tracker HitTracker) *Warmer {
	return &Warmer{analytics: analytics, tracker: tracker}
}

// RunStartup executes the startup pre-warm pass over the static set.
// Failures are logged, never fatal.
func (w *Warmer) RunStartup(ctx context.Context) {
	w.warmStaticSet(ctx)
}

// Start launches the scheduled pre-warm pass, firing every 10 minutes.
func (w *Warmer) Start() {
	w.stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(scheduledInterval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				w.runScheduled(context.Background())
			}
		}
	}()
}

// Stop halts the scheduled pre-warm timer.
func (w *Warmer) Stop() {
	if w.stop != nil {
		close(w.stop)
		w.stop = nil
	}
}

// runScheduled consumes the hit tracker's hot fingerprints, re-warms each,
// then runs the static set.
func (w *Warmer) runScheduled(ctx context.Context) {
	for _, fp := range w.tracker.HotKeys(ctx) {
		w.warmFingerprint(ctx, fp)
	}
	w.warmStaticSet(ctx)
}

func (w *Warmer) warmStaticSet(ctx context.Context) {
	for _, e := range staticSet {
		var err error
		switch e.kind {
		case "daily":
			err = w.analytics.PrewarmDaily(ctx, e.days)
		case "top":
			err = w.analytics.PrewarmTop(ctx, e.hours, e.limit)
		}
		if err != nil {
			log.Printf("prewarm: static entry %+v failed: %v", e, err)
		}
	}
}

// warmFingerprint parses fp and invokes the matching
// prewarm variant. Fingerprints that don't match either shape are
// skipped.
func (w *Warmer) warmFingerprint(ctx context.Context, fp string) {
	if days, ok := parseDailyFingerprint(fp); ok {
		if err := w.analytics.PrewarmDaily(ctx, days); err != nil {
			log.Printf("prewarm: daily(%d) failed: %v", days, err)
		}
		return
	}
	if hours, limit, ok := parseTopFingerprint(fp); ok {
		if err := w.analytics.PrewarmTop(ctx, hours, limit); err != nil {
			log.Printf("prewarm: top(%d,%d) failed: %v", hours, limit, err)
		}
		return
	}
	// Anything else is skipped.
}

func parseDailyFingerprint(fp string) (days int, ok bool) {
	const prefix = "usage:daily:"
	if !strings.HasPrefix(fp, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(fp, prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseTopFingerprint(fp string) (hours, limit int, ok bool) {
	const prefix = "usage:top:"
	if !strings.HasPrefix(fp, prefix) {
		return 0, 0, false
	}
	parts := strings.Split(strings.TrimPrefix(fp, prefix), ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	l, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return h, l, true
}
