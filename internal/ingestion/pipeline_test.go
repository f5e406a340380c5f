package ingestion

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/apperr"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/overflow"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/store"
)

// fakeStore is a DurableStore test double whose BulkInsert behavior is
// scripted per call.
type fakeStore struct {
	mu      sync.Mutex
	results []error // consumed in order; once exhausted, nil is returned
	calls   [][]store.ActivityRecord
}

func (f *fakeStore) BulkInsert(records []store.ActivityRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]store.ActivityRecord, len(records))
	copy(cp, records)
	f.calls = append(f.calls, cp)

	if len(f.results) == 0 {
		return nil
	}
	err := f.results[0]
	f.results = f.results[1:]
	return err
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type noopPublisher struct{ count int }

func (p *noopPublisher) PublishIngested(store.ActivityRecord) { p.count++ }

func TestPipeline_FlushesAtBatchSize(t *testing.T) {
	fs := &fakeStore{}
	ob := overflow.New(10, time.Hour)
	pub := &noopPublisher{}
	p := New(fs, ob, pub, 3, time.Hour)

	p.Submit(store.ActivityRecord{Endpoint: "/a"})
	p.Submit(store.ActivityRecord{Endpoint: "/b"})
	if fs.callCount() != 0 {
		t.Fatalf("expected no flush before batch size reached, got %d calls", fs.callCount())
	}
	p.Submit(store.ActivityRecord{Endpoint: "/c"})
	if fs.callCount() != 1 {
		t.Fatalf("expected exactly 1 flush once batch size reached, got %d", fs.callCount())
	}
	if p.PendingLen() != 0 {
		t.Fatalf("expected pending drained after flush, got %d", p.PendingLen())
	}
	if pub.count != 3 {
		t.Fatalf("expected 3 publish notifications, got %d", pub.count)
	}
}

func TestPipeline_TransientFailureDivertsToOverflow(t *testing.T) {
	fs := &fakeStore{results: []error{apperr.ErrStorageTransient}}
	ob := overflow.New(10, time.Hour)
	p := New(fs, ob, nil, 1, time.Hour)

	p.Submit(store.ActivityRecord{Endpoint: "/a"})

	if ob.Len() != 1 {
		t.Fatalf("expected record diverted to overflow, got overflow len %d", ob.Len())
	}
	if p.PendingLen() != 0 {
		t.Fatalf("expected pending empty after diversion, got %d", p.PendingLen())
	}
}

func TestPipeline_NonTransientFailureRequeuesPending(t *testing.T) {
	fs := &fakeStore{results: []error{apperr.ErrStorageFatal}}
	ob := overflow.New(10, time.Hour)
	p := New(fs, ob, nil, 1, time.Hour)

	p.Submit(store.ActivityRecord{Endpoint: "/a"})

	if ob.Len() != 0 {
		t.Fatalf("non-transient failure should not touch overflow, got %d", ob.Len())
	}
	if p.PendingLen() != 1 {
		t.Fatalf("expected record re-queued to pending, got %d", p.PendingLen())
	}
}

func TestPipeline_FlushDrainsOverflowFirst(t *testing.T) {
	fs := &fakeStore{}
	ob := overflow.New(10, time.Hour)
	ob.Add(store.ActivityRecord{Endpoint: "/stale"})
	p := New(fs, ob, nil, 1, time.Hour)

	p.Submit(store.ActivityRecord{Endpoint: "/fresh"})

	if ob.Len() != 0 {
		t.Fatalf("expected overflow drained, got %d remaining", ob.Len())
	}
	if fs.callCount() != 2 {
		t.Fatalf("expected 2 bulk insert calls (overflow drain + fresh batch), got %d", fs.callCount())
	}
	if fs.calls[0][0].Endpoint != "/stale" {
		t.Fatalf("expected overflow drained before fresh batch, got %+v", fs.calls[0])
	}
}

func TestPipeline_OverflowDrainFailureRestoresEntries(t *testing.T) {
	fs := &fakeStore{results: []error{apperr.ErrStorageTransient}}
	ob := overflow.New(10, time.Hour)
	ob.Add(store.ActivityRecord{Endpoint: "/stale"})
	p := New(fs, ob, nil, 1, time.Hour)

	// Submitting one record at batchSize=1 triggers a single flush(),
	// which drains overflow exactly once before inserting the fresh batch.
	p.Submit(store.ActivityRecord{Endpoint: "/fresh"})

	if ob.Len() != 1 {
		t.Fatalf("expected stale entry restored after failed drain, got %d", ob.Len())
	}
	if fs.callCount() != 2 {
		t.Fatalf("expected drain attempt + fresh batch insert, got %d calls", fs.callCount())
	}
}

func TestPipeline_ShutdownFlushesPendingAndOverflow(t *testing.T) {
	fs := &fakeStore{}
	ob := overflow.New(10, time.Hour)
	ob.Add(store.ActivityRecord{Endpoint: "/stale"})
	p := New(fs, ob, nil, 100, time.Hour)
	p.Start()

	p.Submit(store.ActivityRecord{Endpoint: "/pending"})
	p.Shutdown()

	if p.PendingLen() != 0 {
		t.Fatalf("expected pending flushed on shutdown, got %d", p.PendingLen())
	}
	if ob.Len() != 0 {
		t.Fatalf("expected overflow flushed on shutdown, got %d", ob.Len())
	}
	if fs.callCount() == 0 {
		t.Fatal("expected at least one bulk insert during shutdown")
	}
}

func TestPipeline_ErrorsIsStorageTransient(t *testing.T) {
	if !errors.Is(apperr.ErrStorageTransient, apperr.ErrStorageTransient) {
		t.Fatal("sanity check: errors.Is should match identical sentinel")
	}
}
