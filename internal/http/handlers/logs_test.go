package handlers

import (
	"testing"
	"time"

	"github.com/valyala/fasthttp"

	httpctx "github.com/ranggakrisnaa/activity-tracker-api/internal/http/ctx"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/ingestion"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/overflow"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/store"
)

type fakeDurableStore struct {
	inserted [][]store.ActivityRecord
}

func (f *fakeDurableStore) BulkInsert(records []store.ActivityRecord) error {
	f.inserted = append(f.inserted, records)
	return nil
}

type noopPublisher struct{ count int }

func (p *noopPublisher) PublishIngested(store.ActivityRecord) { p.count++ }

func TestLogs_AcceptsValidRecordAndSubmitsToPipeline(t *testing.T) {
	db := &fakeDurableStore{}
	pub := &noopPublisher{}
	pipeline := ingestion.New(db, overflow.New(100, time.Hour), pub, 100, time.Hour)

	var rc fasthttp.RequestCtx
	httpctx.SetCaller(&rc, &store.Caller{ID: 1, CallerID: "CL-LOG"})
	rc.Request.SetBody([]byte(`{"endpoint":"/v1/things","method":"GET","status":200,"elapsed_ms":12}`))

	Logs(pipeline, 30)(&rc)

	if rc.Response.StatusCode() != fasthttp.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rc.Response.StatusCode(), rc.Response.Body())
	}
	if pipeline.PendingLen() != 1 {
		t.Fatalf("expected 1 pending record, got %d", pipeline.PendingLen())
	}
	if pub.count != 1 {
		t.Fatalf("expected publisher invoked once, got %d", pub.count)
	}
}

func TestLogs_RejectsMissingAuthentication(t *testing.T) {
	db := &fakeDurableStore{}
	pipeline := ingestion.New(db, overflow.New(100, time.Hour), &noopPublisher{}, 100, time.Hour)

	var rc fasthttp.RequestCtx
	rc.Request.SetBody([]byte(`{"endpoint":"/v1/things","method":"GET","status":200}`))
	Logs(pipeline, 30)(&rc)

	if rc.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rc.Response.StatusCode())
	}
}

func TestLogs_RejectsMissingFields(t *testing.T) {
	db := &fakeDurableStore{}
	pipeline := ingestion.New(db, overflow.New(100, time.Hour), &noopPublisher{}, 100, time.Hour)

	var rc fasthttp.RequestCtx
	httpctx.SetCaller(&rc, &store.Caller{ID: 1, CallerID: "CL-LOG2"})
	rc.Request.SetBody([]byte(`{"status":200}`))
	Logs(pipeline, 30)(&rc)

	if rc.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rc.Response.StatusCode())
	}
	if pipeline.PendingLen() != 0 {
		t.Fatal("expected no record submitted")
	}
}
