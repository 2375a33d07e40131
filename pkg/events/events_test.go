package events

import (
	"testing"
	"time"

	"github.com/cuemby/minicluster/pkg/types"
)

func TestPublishReachesSubscribers(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(NewEvent(EventNodeStarted, "cluster-1", types.NodeRoleMaster, "127.0.0.1:7051", "master up"))

	select {
	case ev := <-sub:
		if ev.Type != EventNodeStarted {
			t.Errorf("expected node.started, got %s", ev.Type)
		}
		if ev.Address != "127.0.0.1:7051" {
			t.Errorf("unexpected address %q", ev.Address)
		}
		if ev.ID == "" {
			t.Error("event published without an ID")
		}
		if ev.Timestamp.IsZero() {
			t.Error("event published without a timestamp")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestPublishFillsMissingFields(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&Event{Type: EventClusterBuilt, ClusterID: "cluster-2"})

	select {
	case ev := <-sub:
		if ev.ID == "" {
			t.Error("ID not assigned on publish")
		}
		if ev.Timestamp.IsZero() {
			t.Error("timestamp not assigned on publish")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	// Never read from this subscriber; its buffer fills and overflow is
	// dropped rather than stalling Publish.
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			broker.Publish(&Event{Type: EventNodeStopped})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("publishing blocked on a slow subscriber")
	}
}

func TestUnsubscribe(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	if broker.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", broker.SubscriberCount())
	}

	broker.Unsubscribe(sub)
	if broker.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", broker.SubscriberCount())
	}

	// Double unsubscribe must not panic on the closed channel.
	broker.Unsubscribe(sub)
}

func TestStopIsIdempotent(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	broker.Stop()
	broker.Stop()

	// Publishing after stop must not block.
	done := make(chan struct{})
	go func() {
		broker.Publish(&Event{Type: EventClusterClosed})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked after stop")
	}
}
