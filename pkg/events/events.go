package events

import (
	"sync"
	"time"

	"github.com/kloros-colony/fabric/pkg/types"
)

// Kind identifies what a Event carries.
type Kind string

const (
	KindZooidStateChange Kind = "zooid_state_change"
	KindOrchestratorTick Kind = "orchestrator_tick"
	KindBaselineCommit   Kind = "baseline_commit"
	KindBaselineRollback Kind = "baseline_rollback"
	KindPromotionApplied Kind = "promotion_applied"
	KindQuarantineTrip   Kind = "quarantine_trip"
)

// Event is the payload broadcast to every subscriber. Exactly one of
// StateChange or Detail is populated, depending on Kind.
type Event struct {
	Kind      Kind
	Timestamp time.Time

	StateChange *types.ZooidStateChangeEvent
	Detail      map[string]any
}

// Subscriber is a channel that receives events.
type Subscriber chan Event

// Broker fans a single published Event out to every live subscriber
// without blocking the publisher on a slow consumer.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan Event
	stopCh      chan struct{}
}

// NewBroker returns a Broker with internal buffering, ready to Start.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker's distribution loop.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe registers a new subscription.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish broadcasts event to every current subscriber.
func (b *Broker) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

// PublishStateChange is a convenience wrapper usable directly as a
// lifecycle.EventFunc / quarantine.EventFunc.
func (b *Broker) PublishStateChange(e types.ZooidStateChangeEvent) {
	b.Publish(Event{Kind: KindZooidStateChange, StateChange: &e})
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

func (b *Broker) broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
