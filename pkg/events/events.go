package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/minicluster/pkg/types"
)

// EventType represents the type of event
type EventType string

const (
	EventNodeStarted   EventType = "node.started"
	EventNodeStopped   EventType = "node.stopped"
	EventNodePaused    EventType = "node.paused"
	EventNodeResumed   EventType = "node.resumed"
	EventNodeRestarted EventType = "node.restarted"
	EventForcedKill    EventType = "node.forced_kill"
	EventClusterBuilt  EventType = "cluster.built"
	EventClusterClosed EventType = "cluster.closed"
	EventReaped        EventType = "process.reaped"
)

// Event represents a cluster lifecycle event
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	ClusterID string
	Role      types.NodeRole
	Address   string
	Message   string
}

// NewEvent creates an event with a fresh ID and timestamp
func NewEvent(t EventType, clusterID string, role types.NodeRole, address, message string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now(),
		ClusterID: clusterID,
		Role:      role,
		Address:   address,
		Message:   message,
	}
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution. Publishing never
// blocks the lifecycle operation that emitted the event: slow subscribers
// miss events rather than stall the cluster.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. Safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish publishes an event to all subscribers
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
