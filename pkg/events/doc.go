/*
Package events provides publish/subscribe distribution of cluster
lifecycle events.

Integration tests that inject failures usually want to observe them too:
assert that a kill produced a stop event, that a restart produced exactly
one restart event, that teardown closed the cluster. The broker gives test
code and the status server a read-only feed of everything the supervisor
does, without coupling either to the supervisor's internals.

# Architecture

	┌───────────────────────────────┐
	│       Cluster Supervisor      │
	│  (publishes lifecycle events) │
	└──────────────┬────────────────┘
	               │ Publish
	               ▼
	┌───────────────────────────────┐
	│            Broker             │
	│   buffered channel (100)      │
	│   broadcast goroutine         │
	└──────┬──────────┬─────────────┘
	       │          │  non-blocking send
	       ▼          ▼
	  Subscriber  Subscriber   (buffered, 50 each)

## Event Flow

 1. Supervisor performs a lifecycle operation
 2. Event is published to the broker's buffered channel
 3. Broadcast goroutine fans it out to every subscriber
 4. Full subscriber buffers are skipped, never waited on

# Event Types

	node.started       a node process launched and its port opened
	node.stopped       a node was killed or died
	node.paused        SIGSTOP delivered
	node.resumed       SIGCONT delivered
	node.restarted     a stopped node was revived on its old address
	node.forced_kill   graceful stop escalated to SIGKILL
	cluster.built      all nodes up, handle returned
	cluster.closed     teardown finished
	process.reaped     an orphaned process from a crashed run was removed

# Usage Examples

## Observe a Kill from a Test

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	// ... kill a node through the supervisor ...

	select {
	case ev := <-sub:
		if ev.Type != events.EventNodeStopped {
			t.Fatalf("unexpected event %s", ev.Type)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no stop event observed")
	}

## Publish

	broker.Publish(events.NewEvent(
		events.EventNodeStarted, clusterID, types.NodeRoleMaster,
		"127.0.0.1:7051", "master listening"))

# Design Patterns

## Non-Blocking Broadcast

Lifecycle operations must never stall because an observer stopped
reading. The broadcast send is a select-with-default: a subscriber whose
buffer is full simply misses the event. Observers that need a complete
record should drain their channel promptly.

# See Also

  - pkg/cluster - The only publisher
  - pkg/api - Exposes cluster state that events describe incrementally
*/
package events
