// Package fanout publishes every ingested activity record onto the KV
// gateway's pub/sub channel and redistributes received events to
// connected live subscribers, so one ingestion event reaches both the
// durable bus and every open stream.
package fanout

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/kv"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/store"
)

// LogChannel is the KV pub/sub channel carrying newly ingested records.
const LogChannel = "api:log:new"

// LogEvent is the payload published on LogChannel.
type LogEvent struct {
	CallerID  string    `json:"caller_id"`
	Endpoint  string    `json:"endpoint"`
	Method    string    `json:"method"`
	Status    int       `json:"status"`
	ElapsedMs int64     `json:"elapsed_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher fires an event onto LogChannel whenever the Ingestion
// Pipeline accepts a record. It implements ingestion.Publisher without
// the ingestion package needing to import fanout.
type Publisher struct {
	gw kv.Gateway
}

// NewPublisher constructs a Publisher.
func NewPublisher(gw kv.Gateway) *Publisher {
	return &Publisher{gw: gw}
}

// PublishIngested builds a LogEvent from record and fire-and-forgets it
// onto LogChannel. Failures are logged, never propagated.
func (p *Publisher) PublishIngested(record store.ActivityRecord) {
	event := LogEvent{
		CallerID:  record.CallerID,
		Endpoint:  record.Endpoint,
		Method:    record.Method,
		Status:    record.Status,
		ElapsedMs: record.ElapsedMs,
		Timestamp: record.Timestamp,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("fanout: marshal log event failed: %v", err)
		return
	}
	if err := p.gw.Publish(context.Background(), LogChannel, payload); err != nil {
		log.Printf("fanout: publish log event failed: %v", err)
	}
}

// Hub tracks live subscribers and redistributes events received on
// LogChannel to the rooms they've joined.
type Hub struct {
	mu          sync.RWMutex
	allClients  map[string]*Subscriber
	clientRooms map[string]map[string]*Subscriber // caller_id -> subscriber id -> *Subscriber

	cancelSub func()
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{
		allClients:  make(map[string]*Subscriber),
		clientRooms: make(map[string]map[string]*Subscriber),
	}
}

// Join admits sub to "all-clients" and its caller-specific room
// "client:<caller_id>".
func (h *Hub) Join(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.allClients[sub.ID] = sub
	if h.clientRooms[sub.CallerID] == nil {
		h.clientRooms[sub.CallerID] = make(map[string]*Subscriber)
	}
	h.clientRooms[sub.CallerID][sub.ID] = sub
}

// Leave releases every membership sub holds, per the lifecycle's
// disconnect clause.
func (h *Hub) Leave(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.allClients, sub.ID)
	if room := h.clientRooms[sub.CallerID]; room != nil {
		delete(room, sub.ID)
		if len(room) == 0 {
			delete(h.clientRooms, sub.CallerID)
		}
	}
}

// Start subscribes to LogChannel via gw and begins dispatching received
// events. Call Stop to tear down the subscription.
func (h *Hub) Start(ctx context.Context, gw kv.Gateway) error {
	cancel, err := gw.Subscribe(ctx, LogChannel, h.dispatch)
	if err != nil {
		return err
	}
	h.cancelSub = cancel
	return nil
}

// Stop cancels the underlying pub/sub subscription.
func (h *Hub) Stop() {
	if h.cancelSub != nil {
		h.cancelSub()
		h.cancelSub = nil
	}
}

// dispatch deserializes a raw LogChannel message and routes it to every
// subscriber joined to "logs" plus the caller-specific room. Dispatch
// order follows arrival order on this single subscription, so
// per-subscriber ordering is preserved.
func (h *Hub) dispatch(payload []byte) {
	var event LogEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Printf("fanout: unmarshal log event failed: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.allClients {
		if sub.IsSubscribed("logs") {
			sub.deliver("log:new", event)
		}
	}
	for _, sub := range h.clientRooms[event.CallerID] {
		if !sub.IsSubscribed("logs") {
			sub.deliver("log:new", event)
		}
	}
}
