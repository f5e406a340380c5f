package prewarm

import (
	"context"
	"sync"
	"testing"
)

type fakeAnalytics struct {
	mu    sync.Mutex
	daily []int
	top   [][2]int
}

func (f *fakeAnalytics) PrewarmDaily(_ context.Context, days int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.daily = append(f.daily, days)
	return nil
}

func (f *fakeAnalytics) PrewarmTop(_ context.Context, hours, limit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.top = append(f.top, [2]int{hours, limit})
	return nil
}

type fakeTracker struct{ keys []string }

func (f *fakeTracker) HotKeys(context.Context) []string { return f.keys }

func TestWarmer_RunStartupWarmsStaticSet(t *testing.T) {
	fa := &fakeAnalytics{}
	w := New(fa, &fakeTracker{})
	w.RunStartup(context.Background())

	if len(fa.daily) != 2 || fa.daily[0] != 7 || fa.daily[1] != 30 {
		t.Fatalf("expected daily(7) and daily(30), got %v", fa.daily)
	}
	if len(fa.top) != 3 {
		t.Fatalf("expected 3 top entries, got %v", fa.top)
	}
}

func TestWarmer_ScheduledPassWarmsHotKeysThenStaticSet(t *testing.T) {
	fa := &fakeAnalytics{}
	ft := &fakeTracker{keys: []string{"usage:daily:14", "usage:top:48:5", "garbage"}}
	w := New(fa, ft)

	w.runScheduled(context.Background())

	if len(fa.daily) != 3 || fa.daily[0] != 14 {
		t.Fatalf("expected hot daily(14) followed by static daily entries, got %v", fa.daily)
	}
	if len(fa.top) != 4 || fa.top[0] != [2]int{48, 5} {
		t.Fatalf("expected hot top(48,5) followed by static top entries, got %v", fa.top)
	}
}

func TestParseDailyFingerprint(t *testing.T) {
	days, ok := parseDailyFingerprint("usage:daily:7")
	if !ok || days != 7 {
		t.Fatalf("expected (7, true), got (%d, %v)", days, ok)
	}
	if _, ok := parseDailyFingerprint("usage:top:24:3"); ok {
		t.Fatal("should not match a top fingerprint")
	}
}

func TestParseTopFingerprint(t *testing.T) {
	hours, limit, ok := parseTopFingerprint("usage:top:24:3")
	if !ok || hours != 24 || limit != 3 {
		t.Fatalf("expected (24, 3, true), got (%d, %d, %v)", hours, limit, ok)
	}
	if _, _, ok := parseTopFingerprint("usage:daily:7"); ok {
		t.Fatal("should not match a daily fingerprint")
	}
	if _, _, ok := parseTopFingerprint("garbage"); ok {
		t.Fatal("should skip unrecognized fingerprints")
	}
}
