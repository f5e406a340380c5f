// Package ingestion accepts activity records, batches them in memory,
// and flushes to the durable log store, diverting to the overflow buffer
// on transient failure. Submit never blocks on storage.
package ingestion

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/apperr"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/overflow"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/store"
)

// pendingSafetyCap bounds how large the pending queue may grow when a
// flush fails non-transiently and records are prepended back.
const pendingSafetyCap = 1000

// DurableStore is the subset of store.Store the pipeline needs, so tests
// can substitute a fake that simulates transient/fatal failures.
type DurableStore interface {
	BulkInsert(records []store.ActivityRecord) error
}

// Publisher is notified of every successfully-submitted record so the
// event fan-out can publish it, without the pipeline importing the
// fanout package directly.
type Publisher interface {
	PublishIngested(record store.ActivityRecord)
}

// Pipeline is the Ingestion Pipeline. Construct with New and call Start to
// launch its background flush timer.
type Pipeline struct {
	db       DurableStore
	overflow *overflow.Buffer
	pub      Publisher

	batchSize     int
	batchInterval time.Duration

	mu      sync.Mutex
	pending []store.ActivityRecord

	flushMu sync.Mutex // serializes flushes

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Pipeline. Call Start to begin the periodic flush timer.
func New(db DurableStore, ob *overflow.Buffer, pub Publisher, batchSize int, batchInterval time.Duration) *Pipeline {
	if batchSize <= 0 {
		batchSize = 100
	}
	if batchInterval <= 0 {
		batchInterval = 5 * time.Second
	}
	return &Pipeline{
		db:            db,
		overflow:      ob,
		pub:           pub,
		batchSize:     batchSize,
		batchInterval: batchInterval,
	}
}

// Submit enqueues record to the pending batch and returns immediately. If
// the batch reaches batchSize, a synchronous flush is triggered before
// Submit returns.
func (p *Pipeline) Submit(record store.ActivityRecord) {
	p.mu.Lock()
	p.pending = append(p.pending, record)
	shouldFlush := len(p.pending) >= p.batchSize
	p.mu.Unlock()

	if p.pub != nil {
		p.pub.PublishIngested(record)
	}

	if shouldFlush {
		p.flush()
	}
}

// Start launches the periodic flush timer. A tick that lands while a
// flush is still running waits on the flush lock rather than stacking a
// second flush.
func (p *Pipeline) Start() {
	p.stop = make(chan struct{})
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.batchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.mu.Lock()
				empty := len(p.pending) == 0
				p.mu.Unlock()
				if !empty {
					p.flush()
				}
			}
		}
	}()

	p.overflow.StartCleanupTimer()
}

// Shutdown stops the interval timer, flushes remaining pending records
// once, attempts to flush the overflow buffer once, then stops its
// cleanup timer.
func (p *Pipeline) Shutdown() {
	if p.stop != nil {
		close(p.stop)
		p.wg.Wait()
	}
	p.flush()
	p.drainOverflowOnce()
	p.overflow.Stop()
}

// flush drains the overflow buffer first, then bulk-inserts the swapped
// out pending batch, under the exclusive lock that serializes flushes;
// the actual writes run outside the pending-batch lock.
func (p *Pipeline) flush() {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	toWrite := p.pending
	p.pending = nil
	p.mu.Unlock()

	if p.overflow.Len() > 0 {
		p.drainOverflowOnce()
	}

	if len(toWrite) == 0 {
		return
	}

	if err := p.db.BulkInsert(toWrite); err != nil {
		p.handleFlushFailure(toWrite, err)
	}
}

func (p *Pipeline) handleFlushFailure(toWrite []store.ActivityRecord, err error) {
	if errors.Is(err, apperr.ErrStorageTransient) {
		for _, r := range toWrite {
			p.overflow.Add(r)
		}
		log.Printf("ingestion: diverted %d records to overflow buffer: %v", len(toWrite), err)
		return
	}

	p.mu.Lock()
	if len(p.pending)+len(toWrite) <= pendingSafetyCap {
		p.pending = append(toWrite, p.pending...)
		p.mu.Unlock()
		log.Printf("ingestion: re-queued %d records after non-transient failure: %v", len(toWrite), err)
		return
	}
	p.mu.Unlock()
	log.Printf("ingestion: dropped %d records after non-transient failure (pending queue at safety cap): %v", len(toWrite), err)
}

// drainOverflowOnce attempts a single drain of the overflow buffer; on
// failure the buffer is restored so nothing is lost.
func (p *Pipeline) drainOverflowOnce() {
	entries := p.overflow.Flush()
	if len(entries) == 0 {
		return
	}
	records := make([]store.ActivityRecord, len(entries))
	for i, e := range entries {
		records[i] = e.Record
	}
	if err := p.db.BulkInsert(records); err != nil {
		log.Printf("ingestion: overflow drain failed, restoring %d records: %v", len(records), err)
		p.overflow.Restore(entries)
	}
}

// PendingLen reports the current size of the pending batch, for tests and
// metrics.
func (p *Pipeline) PendingLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
