package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventGapDetected     EventType = "GAP_DETECTED"
	EventZoneFlipped     EventType = "ZONE_FLIPPED"
	EventZoneRetest      EventType = "ZONE_RETEST"
	EventSweepDetected   EventType = "SWEEP_DETECTED"
	EventBiasChanged     EventType = "BIAS_CHANGED"
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventSignalRejected  EventType = "SIGNAL_REJECTED"
	EventCycleSkipped    EventType = "CYCLE_SKIPPED"
	EventEngineStarted   EventType = "ENGINE_STARTED"
	EventEngineStopped   EventType = "ENGINE_STOPPED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishGapDetected publishes a gap detection event
func (eb *EventBus) PublishGapDetected(symbol, horizon, direction string, upper, lower float64) {
	eb.Publish(Event{
		Type: EventGapDetected,
		Data: map[string]interface{}{
			"symbol":    symbol,
			"horizon":   horizon,
			"direction": direction,
			"upper":     upper,
			"lower":     lower,
		},
	})
}

// PublishZoneFlipped publishes a zone invalidation/flip event
func (eb *EventBus) PublishZoneFlipped(symbol, horizon, newDirection string, upper, lower float64) {
	eb.Publish(Event{
		Type: EventZoneFlipped,
		Data: map[string]interface{}{
			"symbol":        symbol,
			"horizon":       horizon,
			"new_direction": newDirection,
			"upper":         upper,
			"lower":         lower,
		},
	})
}

// PublishZoneRetest publishes a re-entry into a still-valid zone
func (eb *EventBus) PublishZoneRetest(symbol, horizon, direction string, upper, lower, price float64) {
	eb.Publish(Event{
		Type: EventZoneRetest,
		Data: map[string]interface{}{
			"symbol":    symbol,
			"horizon":   horizon,
			"direction": direction,
			"upper":     upper,
			"lower":     lower,
			"price":     price,
		},
	})
}

// PublishSweepDetected publishes a stop-hunt sweep event
func (eb *EventBus) PublishSweepDetected(symbol, horizon, reversalDirection string, level float64) {
	eb.Publish(Event{
		Type: EventSweepDetected,
		Data: map[string]interface{}{
			"symbol":             symbol,
			"horizon":            horizon,
			"reversal_direction": reversalDirection,
			"level":              level,
		},
	})
}

// PublishBiasChanged publishes a bias transition for a symbol
func (eb *EventBus) PublishBiasChanged(symbol, previous, current string, tier int) {
	eb.Publish(Event{
		Type: EventBiasChanged,
		Data: map[string]interface{}{
			"symbol":   symbol,
			"previous": previous,
			"current":  current,
			"tier":     tier,
		},
	})
}

// PublishSignalGenerated publishes a signal generated event
func (eb *EventBus) PublishSignalGenerated(id, symbol, direction, orderKind string, entry, stop, target, confidence float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"id":         id,
			"symbol":     symbol,
			"direction":  direction,
			"order_kind": orderKind,
			"entry":      entry,
			"stop":       stop,
			"target":     target,
			"confidence": confidence,
		},
	})
}

// PublishSignalRejected publishes a rejection with its guard reason
func (eb *EventBus) PublishSignalRejected(symbol, reason, detail string) {
	eb.Publish(Event{
		Type: EventSignalRejected,
		Data: map[string]interface{}{
			"symbol": symbol,
			"reason": reason,
			"detail": detail,
		},
	})
}

// PublishCycleSkipped publishes a skipped evaluation cycle (market closed,
// unresolved symbol, unavailable data)
func (eb *EventBus) PublishCycleSkipped(symbol, reason string) {
	eb.Publish(Event{
		Type: EventCycleSkipped,
		Data: map[string]interface{}{
			"symbol": symbol,
			"reason": reason,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
