package fanout

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/kv"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/store"
)

func TestPublisher_PublishIngestedSerializesRecordOntoLogChannel(t *testing.T) {
	fake := kv.NewFake()
	var received []byte
	cancel, err := fake.Subscribe(context.Background(), LogChannel, func(payload []byte) {
		received = payload
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	pub := NewPublisher(fake)
	pub.PublishIngested(store.ActivityRecord{
		CallerID: "CL-1",
		Endpoint: "/logs",
		Method:   "POST",
		Status:   201,
	})

	if received == nil {
		t.Fatal("expected a message to be published")
	}
}

func TestHub_JoinThenLeaveReleasesMemberships(t *testing.T) {
	h := NewHub()
	sub := NewSubscriber("sub-1", "CL-1", "logs")
	h.Join(sub)

	h.mu.RLock()
	_, inAll := h.allClients["sub-1"]
	_, inRoom := h.clientRooms["CL-1"]["sub-1"]
	h.mu.RUnlock()
	if !inAll || !inRoom {
		t.Fatal("expected subscriber joined to all-clients and its caller room")
	}

	h.Leave(sub)
	h.mu.RLock()
	_, stillInAll := h.allClients["sub-1"]
	_, stillInRoom := h.clientRooms["CL-1"]["sub-1"]
	h.mu.RUnlock()
	if stillInAll || stillInRoom {
		t.Fatal("expected all memberships released after Leave")
	}
}

func TestHub_DispatchDeliversToLogsSubscribersAndCallerRoom(t *testing.T) {
	h := NewHub()

	logsSub := NewSubscriber("logs-sub", "CL-other", "logs")
	roomSub := NewSubscriber("room-sub", "CL-target", "usage:daily")
	bystander := NewSubscriber("bystander", "CL-other2", "usage:top")

	h.Join(logsSub)
	h.Join(roomSub)
	h.Join(bystander)

	h.dispatch(mustJSON(t, LogEvent{CallerID: "CL-target", Endpoint: "/logs", Method: "POST", Status: 201}))

	select {
	case ev := <-logsSub.events:
		if ev.name != "log:new" {
			t.Fatalf("expected log:new event, got %s", ev.name)
		}
	case <-time.After(time.Second):
		t.Fatal("expected logs-subscribed client to receive the event")
	}

	select {
	case ev := <-roomSub.events:
		if ev.name != "log:new" {
			t.Fatalf("expected log:new event, got %s", ev.name)
		}
	case <-time.After(time.Second):
		t.Fatal("expected caller-room client to receive the event")
	}

	select {
	case <-bystander.events:
		t.Fatal("bystander should not receive an event for a different caller")
	default:
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestSubscriber_ChannelMembershipLifecycle(t *testing.T) {
	sub := NewSubscriber("sub-x", "CL-1", "logs")
	if !sub.IsSubscribed("logs") {
		t.Fatal("expected initial channel membership")
	}
	if sub.IsSubscribed("usage:daily") {
		t.Fatal("should not be subscribed to usage:daily yet")
	}

	sub.Subscribe("usage:daily")
	if !sub.IsSubscribed("usage:daily") {
		t.Fatal("expected membership after Subscribe")
	}

	sub.Unsubscribe("usage:daily")
	if sub.IsSubscribed("usage:daily") {
		t.Fatal("expected membership released after Unsubscribe")
	}

	sub.Subscribe("not-a-channel")
	if sub.IsSubscribed("not-a-channel") {
		t.Fatal("unrecognized channels should be ignored")
	}
}

func TestSubscriber_UnrecognizedInitialChannelFallsBackToAll(t *testing.T) {
	sub := NewSubscriber("sub-y", "CL-1", "bogus")
	if !sub.IsSubscribed("logs") || !sub.IsSubscribed("usage:daily") {
		t.Fatal(`expected "all" membership to cover every channel`)
	}
}
