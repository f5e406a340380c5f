// Package overflow holds activity records in a bounded in-process FIFO
// while the durable log store is transiently unreachable, so ingestion
// keeps accepting records through storage outages.
package overflow

import (
	"log"
	"sync"
	"time"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/metrics"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/store"
)

// Entry pairs an activity record with the timestamp it was admitted to
// the buffer.
type Entry struct {
	Record     store.ActivityRecord
	AdmittedAt time.Time
}

// Buffer is a bounded, oldest-drop FIFO. All operations are safe for
// concurrent use; add never blocks the caller and runs in O(1).
type Buffer struct {
	mu      sync.Mutex
	entries []Entry

	maxSize int
	maxAge  time.Duration

	stopCleanup chan struct{}
}

// New constructs a Buffer with the given bounds. maxSize<=0 defaults to
// 10,000; maxAge<=0 defaults to 1 hour.
func New(maxSize int, maxAge time.Duration) *Buffer {
	if maxSize <= 0 {
		maxSize = 10_000
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Buffer{maxSize: maxSize, maxAge: maxAge}
}

// Add appends record to the buffer. If the buffer is at capacity, the
// oldest entry is dropped and a warning is logged.
func (b *Buffer) Add(record store.ActivityRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, Entry{Record: record, AdmittedAt: time.Now()})
	if len(b.entries) > b.maxSize {
		dropped := b.entries[0]
		b.entries = b.entries[1:]
		log.Printf("overflow buffer at capacity (%d), dropped oldest entry admitted at %s", b.maxSize, dropped.AdmittedAt)
	}
	metrics.OverflowDepth.Set(float64(len(b.entries)))
}

// Len reports the current number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Flush atomically removes and returns every buffered entry.
func (b *Buffer) Flush() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return nil
	}
	out := b.entries
	b.entries = nil
	metrics.OverflowDepth.Set(0)
	return out
}

// Restore prepends entries back onto the buffer, used when a drain
// attempt fails and the caller wants to preserve ordering.
func (b *Buffer) Restore(entries []Entry) {
	if len(entries) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(entries, b.entries...)
	if len(b.entries) > b.maxSize {
		excess := len(b.entries) - b.maxSize
		log.Printf("overflow buffer restore exceeded capacity, dropping %d oldest entries", excess)
		b.entries = b.entries[excess:]
	}
	metrics.OverflowDepth.Set(float64(len(b.entries)))
}

// Cleanup removes entries older than maxAge.
func (b *Buffer) Cleanup() {
	cutoff := time.Now().Add(-b.maxAge)
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.entries[:0]
	for _, e := range b.entries {
		if e.AdmittedAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	b.entries = kept
	metrics.OverflowDepth.Set(float64(len(b.entries)))
}

// StartCleanupTimer runs Cleanup every 60 seconds until Stop is called.
func (b *Buffer) StartCleanupTimer() {
	b.stopCleanup = make(chan struct{})
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-b.stopCleanup:
				return
			case <-ticker.C:
				b.Cleanup()
			}
		}
	}()
}

// Stop halts the cleanup timer, if running.
func (b *Buffer) Stop() {
	if b.stopCleanup != nil {
		close(b.stopCleanup)
		b.stopCleanup = nil
	}
}
