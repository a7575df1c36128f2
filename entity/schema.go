package entity

import (
	"errors"
	"slices"
	"strings"
)

// EventDefinition validates and decodes the body of one event variant.
// Implementations are supplied by a validation provider; the core never
// validates payloads itself.
type EventDefinition interface {
	// Validate reports all issues found in body. An empty result means the
	// body is valid.
	Validate(body any) []Issue

	// Decode rebuilds a typed body from its stored JSON payload.
	Decode(payloadJSON []byte) (any, error)
}

// StateDefinition validates a state value.
type StateDefinition interface {
	Validate(state any) []Issue
}

// Definition is the provider-produced bundle of validators for one entity
// class: one EventDefinition per event name (bare, without the entity
// namespace) and an optional validator for the state.
type Definition struct {
	Events map[string]EventDefinition
	State  StateDefinition
}

// Schema binds an entity name, a Definition, and the event name used to
// create new entities. It is a value object, safe to copy and share.
type Schema struct {
	entityName       string
	initialEventName string
	events           map[string]EventDefinition
	state            StateDefinition
	eventNames       []string // sorted bare event names
}

// DefineSchema validates and binds entityName, the provider-produced
// definition, and the initial event name used by the create path.
func DefineSchema(entityName string, definition Definition, initialEventName string) (Schema, error) {
	if entityName == "" {
		return Schema{}, ErrEmptyEntityName
	}

	if len(definition.Events) == 0 {
		return Schema{}, ErrNoEventDefinitions
	}

	if initialEventName == "" {
		return Schema{}, ErrEmptyInitialEventName
	}

	if _, ok := definition.Events[initialEventName]; !ok {
		return Schema{}, ErrUnknownInitialEvent
	}

	eventNames := make([]string, 0, len(definition.Events))
	for name := range definition.Events {
		eventNames = append(eventNames, name)
	}
	slices.Sort(eventNames)

	return Schema{
		entityName:       entityName,
		initialEventName: initialEventName,
		events:           definition.Events,
		state:            definition.State,
		eventNames:       eventNames,
	}, nil
}

// EntityName returns the bound entity name.
func (s Schema) EntityName() string {
	return s.entityName
}

// InitialEventName returns the bare name of the event dispatched by Create.
func (s Schema) InitialEventName() string {
	return s.initialEventName
}

// EventNames returns the sorted bare names of all registered events.
func (s Schema) EventNames() []string {
	return slices.Clone(s.eventNames)
}

// NamespacedEventName prefixes a bare event name with the entity name,
// producing the "<entityName>:<eventName>" form stored on Event envelopes.
func (s Schema) NamespacedEventName(eventName string) string {
	return s.entityName + ":" + eventName
}

// bareEventName strips this schema's namespace prefix if present.
func (s Schema) bareEventName(namespacedEventName string) string {
	return strings.TrimPrefix(namespacedEventName, s.entityName+":")
}

// ParseEventByName validates body against the definition registered under
// the bare eventName. It fails with an *UnknownEventError when the name is
// not registered and with a *ValidationError when the body is invalid.
func (s Schema) ParseEventByName(eventName string, body any) error {
	definition, ok := s.events[eventName]
	if !ok {
		return &UnknownEventError{
			EventName:       eventName,
			KnownEventNames: s.EventNames(),
		}
	}

	if issues := definition.Validate(body); len(issues) > 0 {
		return &ValidationError{
			EventName: s.NamespacedEventName(eventName),
			Issues:    issues,
		}
	}

	return nil
}

// ParseEvent tries every event definition in sorted name order and returns
// the bare name of the first definition the body satisfies. It fails with a
// generic *ValidationError when no definition matches.
func (s Schema) ParseEvent(body any) (string, error) {
	for _, eventName := range s.eventNames {
		if issues := s.events[eventName].Validate(body); len(issues) == 0 {
			return eventName, nil
		}
	}

	return "", &ValidationError{
		Issues: []Issue{
			{Message: "body does not match any event definition of entity " + s.entityName},
		},
	}
}

// ParseState validates a state value against the schema's state definition.
// Schemas without a state definition accept any state.
func (s Schema) ParseState(state any) error {
	if s.state == nil {
		return nil
	}

	if issues := s.state.Validate(state); len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}

	return nil
}

// EventFromStorable rebuilds a typed Event from its stored representation.
//
// An event name the schema does not know keeps its raw JSON payload as the
// body instead of failing: replay must survive event variants added by a
// newer writer, and the reducer's wildcard arm skips them. A known name
// with a corrupt payload is an error.
func (s Schema) EventFromStorable(storableEvent StorableEvent) (Event, error) {
	event := Event{
		EventID:        storableEvent.EventID,
		EventCreatedAt: storableEvent.OccurredAt,
		EntityName:     storableEvent.EntityName,
		EntityID:       storableEvent.EntityID,
		EventName:      storableEvent.EventName,
	}

	definition, ok := s.events[s.bareEventName(storableEvent.EventName)]
	if !ok {
		event.Body = append([]byte(nil), storableEvent.PayloadJSON...)
		return event, nil
	}

	body, err := definition.Decode(storableEvent.PayloadJSON)
	if err != nil {
		return Event{}, errors.Join(ErrDecodingStoredEventFailed, err)
	}

	event.Body = body

	return event, nil
}
