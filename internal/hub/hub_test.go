package hub

import (
	"encoding/json"
	"testing"
)

func newClient(id, branchID string) *Client {
	return &Client{
		ID:           id,
		Send:         make(chan []byte, 4),
		Subscription: Subscription{BranchID: branchID},
	}
}

func TestPublishServingRoutesByBranch(t *testing.T) {
	h := New()
	riyadh := newClient("c1", "b1")
	jeddah := newClient("c2", "b2")
	everything := newClient("c3", "")
	for _, c := range []*Client{riyadh, jeddah, everything} {
		h.Register(c)
	}

	h.PublishServing("b1", "007")

	select {
	case msg := <-riyadh.Send:
		var env eventEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if env.Type != "serving_update" {
			t.Fatalf("type = %q", env.Type)
		}
		var payload servingPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if payload.BookingID != "007" || payload.BranchID != "b1" {
			t.Fatalf("payload = %+v", payload)
		}
	default:
		t.Fatal("subscribed client received nothing")
	}

	select {
	case <-jeddah.Send:
		t.Fatal("other branch client received the event")
	default:
	}

	select {
	case <-everything.Send:
	default:
		t.Fatal("wildcard client received nothing")
	}
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	h := New()
	client := newClient("c1", "b1")
	h.Register(client)
	h.Unregister(client)

	if _, open := <-client.Send; open {
		t.Fatal("send channel still open after unregister")
	}

	// A broadcast after unregister must not reach the closed channel.
	h.PublishServing("b1", "001")
}

func TestParseSubscribe(t *testing.T) {
	msg, ok := ParseSubscribe([]byte(`{"action":"subscribe","branch_id":"b1"}`))
	if !ok || msg.BranchID != "b1" {
		t.Fatalf("ParseSubscribe() = %+v, %v", msg, ok)
	}
	if _, ok := ParseSubscribe([]byte(`{"action":"dance"}`)); ok {
		t.Fatal("unknown action accepted")
	}
	if _, ok := ParseSubscribe([]byte(`not json`)); ok {
		t.Fatal("invalid json accepted")
	}
}

func TestBroadcastDropsWhenClientBacklogged(t *testing.T) {
	h := New()
	slow := &Client{ID: "c1", Send: make(chan []byte)}
	h.Register(slow)

	// Unbuffered channel with no reader: broadcast must not block.
	h.PublishServing("b1", "001")
}
