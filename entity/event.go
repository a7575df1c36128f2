package entity

import (
	"encoding/json"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var ErrInvalidPayloadJSON = errors.New("payload json is not valid")

// Events is an alias type for a slice of Event.
type Events = []Event

// Event is an immutable fact describing something that happened to an
// entity. EventName is namespaced as "<entityName>:<eventName>". Body holds
// the typed, schema-validated payload.
//
// Events are constructed by the entity's dispatch path and by schema-driven
// decoding of stored events; client code never builds them by hand.
type Event struct {
	EventID        string
	EventCreatedAt time.Time
	EntityName     string
	EntityID       string
	EventName      string
	Body           any
}

// StorableEvents is an alias type for a slice of StorableEvent.
type StorableEvents = []StorableEvent

// StorableEvent is the DTO crossing the adapter boundary. It is built on
// scalars so that adapters stay completely agnostic of the typed event
// bodies used in client code.
type StorableEvent struct {
	EventID     string
	EventName   string
	EntityName  string
	EntityID    string
	OccurredAt  time.Time
	PayloadJSON []byte
}

// BuildStorableEvent is a factory method for StorableEvent.
// Returns an error if payloadJSON is not valid JSON.
func BuildStorableEvent(
	eventID string,
	eventName string,
	entityName string,
	entityID string,
	occurredAt time.Time,
	payloadJSON []byte,
) (StorableEvent, error) {

	if !json.Valid(payloadJSON) {
		return StorableEvent{}, ErrInvalidPayloadJSON
	}

	return StorableEvent{
		EventID:     eventID,
		EventName:   eventName,
		EntityName:  entityName,
		EntityID:    entityID,
		OccurredAt:  occurredAt,
		PayloadJSON: payloadJSON,
	}, nil
}

// StorableEventFrom serializes an Event's body and wraps it into the
// scalar DTO handed to adapters.
func StorableEventFrom(event Event) (StorableEvent, error) {
	payloadJSON, err := jsoniter.ConfigFastest.Marshal(event.Body)
	if err != nil {
		return StorableEvent{}, err
	}

	return BuildStorableEvent(
		event.EventID,
		event.EventName,
		event.EntityName,
		event.EntityID,
		event.EventCreatedAt,
		payloadJSON,
	)
}

// StorableEventsFrom converts multiple Events to StorableEvents.
func StorableEventsFrom(events Events) (StorableEvents, error) {
	storableEvents := make(StorableEvents, 0, len(events))

	for _, event := range events {
		storableEvent, err := StorableEventFrom(event)
		if err != nil {
			return nil, err
		}

		storableEvents = append(storableEvents, storableEvent)
	}

	return storableEvents, nil
}
