package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event describes a change to a store, or a failed store operation.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Store     string    `json:"store,omitempty"`
	Table     string    `json:"table,omitempty"`
	Key       string    `json:"key,omitempty"`
	Message   string    `json:"message"`

	// Level is info, warning or error.
	Level string                 `json:"level"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeStoreOpened  = "store.opened"
	EventTypeStoreClosed  = "store.closed"
	EventTypeStoreCleared = "store.cleared"
	EventTypeStoreDeleted = "store.deleted"
	EventTypeTableDeleted = "table.deleted"
	EventTypeItemSet      = "item.set"
	EventTypeItemRemoved  = "item.removed"
	EventTypeJSONImported = "json.imported"
	EventTypeError        = "error"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles a delivered event.
type EventSubscriber func(event Event)

// EventFilter reports whether an event should be delivered.
type EventFilter func(event Event) bool

// EventPublisher delivers store events to subscribers on the publishing
// goroutine. A nil or disabled publisher drops everything.
type EventPublisher struct {
	enabled bool
	gate    EventFilter

	mu          sync.RWMutex
	subscribers []subscriberEntry
	closed      bool
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

var eventLevels = map[string]int{
	EventLevelInfo:    0,
	EventLevelWarning: 1,
	EventLevelError:   2,
}

// NewEventPublisher returns a publisher that drops events below
// cfg.MinLevel.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	ep := &EventPublisher{enabled: cfg.Enabled}
	if cfg.MinLevel != "" {
		if _, ok := eventLevels[cfg.MinLevel]; !ok {
			return nil, fmt.Errorf("invalid event level: %q", cfg.MinLevel)
		}
		ep.gate = FilterByLevel(cfg.MinLevel)
	}
	return ep, nil
}

// Publish stamps event and hands it to every matching subscriber.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.enabled {
		return nil
	}
	if ep.gate != nil && !ep.gate(event) {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	closed, subscribers := ep.closed, ep.subscribers
	ep.mu.RUnlock()
	if closed {
		return errors.New("event publisher stopped")
	}
	for _, entry := range subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
	return nil
}

// PublishStoreOpened publishes a store opened event.
func (ep *EventPublisher) PublishStoreOpened(database, table string, encrypted bool) error {
	return ep.Publish(Event{
		Type:    EventTypeStoreOpened,
		Source:  "store",
		Store:   database,
		Table:   table,
		Message: fmt.Sprintf("Store %s opened on table %s", database, table),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"encrypted": encrypted,
		},
	})
}

// PublishStoreClosed publishes a store closed event.
func (ep *EventPublisher) PublishStoreClosed(database string) error {
	return ep.Publish(Event{
		Type:    EventTypeStoreClosed,
		Source:  "store",
		Store:   database,
		Message: fmt.Sprintf("Store %s closed", database),
		Level:   EventLevelInfo,
	})
}

// PublishStoreCleared publishes an event for a cleared table.
func (ep *EventPublisher) PublishStoreCleared(database, table string) error {
	return ep.Publish(Event{
		Type:    EventTypeStoreCleared,
		Source:  "store",
		Store:   database,
		Table:   table,
		Message: fmt.Sprintf("Table %s of store %s cleared", table, database),
		Level:   EventLevelWarning,
	})
}

// PublishStoreDeleted publishes a store deleted event.
func (ep *EventPublisher) PublishStoreDeleted(database string) error {
	return ep.Publish(Event{
		Type:    EventTypeStoreDeleted,
		Source:  "store",
		Store:   database,
		Message: fmt.Sprintf("Store %s deleted", database),
		Level:   EventLevelWarning,
	})
}

// PublishTableDeleted publishes a table deleted event.
func (ep *EventPublisher) PublishTableDeleted(database, table string) error {
	return ep.Publish(Event{
		Type:    EventTypeTableDeleted,
		Source:  "store",
		Store:   database,
		Table:   table,
		Message: fmt.Sprintf("Table %s deleted from store %s", table, database),
		Level:   EventLevelWarning,
	})
}

// PublishItemSet publishes an event for a stored key.
func (ep *EventPublisher) PublishItemSet(database, table, key string) error {
	return ep.Publish(Event{
		Type:    EventTypeItemSet,
		Source:  "store",
		Store:   database,
		Table:   table,
		Key:     key,
		Message: fmt.Sprintf("Key %s set in %s.%s", key, database, table),
		Level:   EventLevelInfo,
	})
}

// PublishItemRemoved publishes an event for a removed key.
func (ep *EventPublisher) PublishItemRemoved(database, table, key string) error {
	return ep.Publish(Event{
		Type:    EventTypeItemRemoved,
		Source:  "store",
		Store:   database,
		Table:   table,
		Key:     key,
		Message: fmt.Sprintf("Key %s removed from %s.%s", key, database, table),
		Level:   EventLevelInfo,
	})
}

// PublishJSONImported publishes an event for a completed JSON import.
func (ep *EventPublisher) PublishJSONImported(database string, changes int) error {
	return ep.Publish(Event{
		Type:    EventTypeJSONImported,
		Source:  "store",
		Store:   database,
		Message: fmt.Sprintf("Imported %d changes into store %s", changes, database),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"changes": changes,
		},
	})
}

// PublishError publishes a failed store operation.
func (ep *EventPublisher) PublishError(database, table, operation string, err error) error {
	return ep.Publish(Event{
		Type:    EventTypeError,
		Source:  "store",
		Store:   database,
		Table:   table,
		Message: fmt.Sprintf("%s failed: %v", operation, err),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"operation": operation,
		},
	})
}

// Subscribe registers subscriber. A nil filter receives every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	if ep == nil {
		return
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.subscribers = append(ep.subscribers, subscriberEntry{subscriber: subscriber, filter: filter})
}

// Shutdown stops delivery. Later publishes fail.
func (ep *EventPublisher) Shutdown(_ context.Context) error {
	if ep == nil {
		return nil
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.closed = true
	ep.subscribers = nil
	return nil
}

// FilterByLevel passes events at minLevel or above.
func FilterByLevel(minLevel string) EventFilter {
	floor := eventLevels[minLevel]
	return func(event Event) bool {
		return eventLevels[event.Level] >= floor
	}
}
