// Package outbox implements a transactional outbox for aggregate
// events. Events recorded by an aggregate root are stored in the same
// transaction as the aggregate change and published to Kafka by a
// separate polling worker, so an event never escapes a rolled-back save.
package outbox

import "time"

// Event is one domain event emitted by an aggregate.
type Event interface {
	// EventType identifies the event, e.g. "order.placed".
	EventType() string
	// EventData returns the JSON-serializable payload.
	EventData() any
	// AggregateID identifies the aggregate instance the event belongs to.
	AggregateID() string
	// EventVersion versions the event schema, e.g. "v1".
	EventVersion() string
	// Topic is the destination topic the event is published to.
	Topic() string
}

// EventSource is implemented by aggregate roots that record events
// during business operations. The repository drains the recorded
// events into the outbox inside the save transaction.
type EventSource interface {
	// Events returns and clears the recorded, not yet stored events.
	Events() []Event
}

// BaseEvent is a ready-made Event implementation for the common case.
type BaseEvent struct {
	Type        string    `json:"type"`
	Data        any       `json:"data"`
	AggregateId string    `json:"aggregate_id"`
	Version     string    `json:"version"`
	Destination string    `json:"-"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e BaseEvent) EventType() string { return e.Type }

func (e BaseEvent) EventData() any { return e.Data }

func (e BaseEvent) AggregateID() string { return e.AggregateId }

func (e BaseEvent) EventVersion() string {
	if e.Version == "" {
		return "v1"
	}
	return e.Version
}

func (e BaseEvent) Topic() string { return e.Destination }

// NewEvent builds a BaseEvent with the current timestamp.
func NewEvent(eventType, aggregateID, topic string, data any) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Data:        data,
		AggregateId: aggregateID,
		Destination: topic,
		Version:     "v1",
		Timestamp:   time.Now(),
	}
}
