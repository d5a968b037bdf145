package service

import "sync"

// EventType defines the type of event
type EventType string

const (
	EventSnapshot     EventType = "snapshot"      // payload: *simulation.Snapshot
	EventRunReset     EventType = "run_reset"     // payload: RunInfo
	EventRunFinished  EventType = "run_finished"  // payload: RunInfo
	EventRunPaused    EventType = "run_paused"    // payload: RunInfo
	EventRunResumed   EventType = "run_resumed"   // payload: RunInfo
	EventEdgeUpdated  EventType = "edge_updated"  // payload: EdgeUpdate
	EventReloadFailed EventType = "reload_failed" // payload: map with "error"
)

// Event represents an event that occurred in the system
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventBus allows publishing and subscribing to events
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers = append(eb.subscribers, ch)
}

// Unsubscribe removes a subscriber
func (eb *EventBus) Unsubscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, sub := range eb.subscribers {
		if sub == ch {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
