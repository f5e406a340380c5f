package fanout

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/store"
)

const (
	heartbeatInterval = 30 * time.Second
	pushInterval      = 10 * time.Second
)

// Analytics is the subset of analytics.Service the periodic push needs.
type Analytics interface {
	Daily(ctx context.Context, days int) ([]store.DailyUsageRow, error)
	Top(ctx context.Context, hours, limit int) ([]store.TopCallerRow, error)
}

type outboundEvent struct {
	name string
	data interface{}
}

// Subscriber is one live SSE connection. It tracks which logical channels
// it's subscribed to ({usage:daily, usage:top, logs}, or "all" for every
// channel) and a mailbox of events waiting to be written to the stream.
type Subscriber struct {
	ID       string
	CallerID string

	mu         sync.Mutex
	subscribed map[string]bool

	events chan outboundEvent
}

// knownChannels is the set of logical channels a subscriber may join;
// anything else falls back to "all".
var knownChannels = map[string]bool{
	"all":         true,
	"logs":        true,
	"usage:daily": true,
	"usage:top":   true,
}

// NewSubscriber constructs a Subscriber joined to initialChannel (or "all"
// if empty or unrecognized).
func NewSubscriber(id, callerID, initialChannel string) *Subscriber {
	if !knownChannels[initialChannel] {
		initialChannel = "all"
	}
	return &Subscriber{
		ID:         id,
		CallerID:   callerID,
		subscribed: map[string]bool{initialChannel: true},
		events:     make(chan outboundEvent, 64),
	}
}

// Subscribe adds channel to this subscriber's membership. Unrecognized
// channels are ignored.
func (s *Subscriber) Subscribe(channel string) {
	if !knownChannels[channel] {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed[channel] = true
}

// Unsubscribe removes channel from this subscriber's membership.
func (s *Subscriber) Unsubscribe(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribed, channel)
}

// IsSubscribed reports whether channel (or "all") is in this subscriber's
// membership.
func (s *Subscriber) IsSubscribed(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed["all"] || s.subscribed[channel]
}

// deliver enqueues an event for this subscriber's stream, dropping it if
// the mailbox is full rather than blocking the publisher.
func (s *Subscriber) deliver(name string, data interface{}) {
	select {
	case s.events <- outboundEvent{name: name, data: data}:
	default:
	}
}

// Stream drives the long-lived SSE response body for this subscriber via
// fasthttp.RequestCtx.SetBodyStreamWriter. It emits the initial
// "connected" event, a 30s heartbeat comment, and (per channel
// membership) a 10s periodic push of daily/top analytics, until ctx is
// canceled or the connection closes. The body stream writer runs after
// the registering handler has returned, so teardown (releasing hub
// memberships) happens through onClose rather than in the handler.
func (s *Subscriber) Stream(rc *fasthttp.RequestCtx, ctx context.Context, analytics Analytics, onClose func()) {
	rc.Response.Header.Set("Content-Type", "text/event-stream")
	rc.Response.Header.Set("Cache-Control", "no-cache")
	rc.Response.Header.Set("Connection", "keep-alive")

	rc.SetBodyStreamWriter(func(w *bufio.Writer) {
		if onClose != nil {
			defer onClose()
		}

		writeEvent(w, "connected", map[string]interface{}{
			"caller_id": s.CallerID,
			"channel":   s.channelsSnapshot(),
			"timestamp": time.Now().UTC(),
		})
		w.Flush()

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()
		push := time.NewTicker(pushInterval)
		defer push.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-s.events:
				writeEvent(w, ev.name, ev.data)
				w.Flush()
			case <-heartbeat.C:
				fmt.Fprintf(w, ": heartbeat %d\n\n", time.Now().UnixMilli())
				w.Flush()
			case <-push.C:
				s.pushAnalytics(w, ctx, analytics)
			}
		}
	})
}

func (s *Subscriber) channelsSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.subscribed))
	for c := range s.subscribed {
		out = append(out, c)
	}
	return out
}

// pushAnalytics drives the periodic push: daily(7) if subscribed to
// all/usage:daily, top(24,3) if subscribed to all/usage:top.
func (s *Subscriber) pushAnalytics(w *bufio.Writer, ctx context.Context, analytics Analytics) {
	if s.IsSubscribed("usage:daily") {
		if rows, err := analytics.Daily(ctx, 7); err == nil {
			writeEvent(w, "usage:daily:update", rows)
		}
	}
	if s.IsSubscribed("usage:top") {
		if rows, err := analytics.Top(ctx, 24, 3); err == nil {
			writeEvent(w, "usage:top:update", rows)
		}
	}
	w.Flush()
}

// writeEvent writes one SSE frame: "event: <name>\ndata: <json>\n\n".
func writeEvent(w *bufio.Writer, name string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
}
