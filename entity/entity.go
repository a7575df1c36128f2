package entity

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// ClockFunc is the time source used for event creation timestamps.
type ClockFunc func() time.Time

// IDFunc generates unique identifiers for entities and events.
type IDFunc func() string

// EntityType binds a Schema and a Reducer into a constructor for entity
// instances. The clock and ID generator default to UTC wall-clock time and
// UUIDv7 but are injectable for deterministic tests.
type EntityType[S any] struct {
	schema Schema
	reduce Reducer[S]
	clock  ClockFunc
	newID  IDFunc
}

// TypeOption defines a functional option for configuring an EntityType.
type TypeOption[S any] func(*EntityType[S]) error

// WithClock sets the time source used for event creation timestamps.
func WithClock[S any](clock ClockFunc) TypeOption[S] {
	return func(t *EntityType[S]) error {
		t.clock = clock
		return nil
	}
}

// WithIDGenerator sets the generator used for entity and event IDs.
func WithIDGenerator[S any](newID IDFunc) TypeOption[S] {
	return func(t *EntityType[S]) error {
		t.newID = newID
		return nil
	}
}

// NewEntityType creates an EntityType from a defined schema and reducer
// with optional configuration.
func NewEntityType[S any](schema Schema, reduce Reducer[S], options ...TypeOption[S]) (EntityType[S], error) {
	if schema.entityName == "" {
		return EntityType[S]{}, ErrEmptyEntityName
	}

	if reduce == nil {
		return EntityType[S]{}, ErrNilReducer
	}

	t := EntityType[S]{
		schema: schema,
		reduce: reduce,
		clock:  defaultClock,
		newID:  defaultID,
	}

	for _, option := range options {
		if err := option(&t); err != nil {
			return EntityType[S]{}, err
		}
	}

	return t, nil
}

func defaultClock() time.Time {
	return time.Now().UTC()
}

// defaultID generates UUIDv7 so that generated IDs sort by creation time.
func defaultID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Schema returns the schema this entity type was defined with.
func (t EntityType[S]) Schema() Schema {
	return t.schema
}

// Create builds a new mutable entity by constructing, validating and
// reducing the schema's initial event. The initial event goes through the
// same dispatch path as every later event, so it is validated identically
// and ends up in the pending queue for the first commit.
//
// An empty entityID is replaced with a generated one.
func (t EntityType[S]) Create(entityID string, body any, options ...EventOption) (*Entity[S], error) {
	if entityID == "" {
		entityID = t.newID()
	}

	e := &Entity[S]{
		entityType: t,
		entityID:   entityID,
		mutable:    true,
	}

	if err := e.dispatch(t.schema.InitialEventName(), body, options...); err != nil {
		return nil, err
	}

	return e, nil
}

// LoadFromState builds a readonly entity from a precomputed state, without
// replaying any events. Dispatching on the result fails with
// ErrReadonlyEntity.
func (t EntityType[S]) LoadFromState(entityID string, state S) (*Entity[S], error) {
	if entityID == "" {
		return nil, ErrEmptyEntityID
	}

	return &Entity[S]{
		entityType:  t,
		entityID:    entityID,
		state:       state,
		initialized: true,
	}, nil
}

// UnsafeLoadMutableFromState builds a mutable entity from a precomputed
// state. This bypasses event-sourcing integrity: the caller asserts that
// state really is the fold of the entity's committed history. Events
// dispatched afterwards are reduced on top of the supplied state.
func (t EntityType[S]) UnsafeLoadMutableFromState(entityID string, state S) (*Entity[S], error) {
	e, err := t.LoadFromState(entityID, state)
	if err != nil {
		return nil, err
	}

	e.mutable = true

	return e, nil
}

// LoadFromEvents rebuilds an entity by folding the reducer over the given
// committed events, starting from the zero state. The events are considered
// already persisted: the pending queue stays empty and listeners are not
// notified. The result is mutable and can continue dispatching.
func (t EntityType[S]) LoadFromEvents(entityID string, events Events) (*Entity[S], error) {
	if entityID == "" {
		return nil, ErrEmptyEntityID
	}

	e := &Entity[S]{
		entityType: t,
		entityID:   entityID,
		mutable:    true,
	}

	for _, event := range events {
		e.state = t.reduce(e.state, event)
		e.initialized = true
	}

	return e, nil
}

// EventOption overrides envelope fields of a single event, mainly for
// deterministic tests and idempotent retries.
type EventOption func(*eventOptions)

type eventOptions struct {
	eventID   string
	createdAt time.Time
}

// WithEventID sets the event ID instead of generating one.
func WithEventID(eventID string) EventOption {
	return func(o *eventOptions) {
		o.eventID = eventID
	}
}

// WithEventCreatedAt sets the event creation timestamp instead of reading
// the entity's clock.
func WithEventCreatedAt(createdAt time.Time) EventOption {
	return func(o *eventOptions) {
		o.createdAt = createdAt
	}
}

type listener[S any] struct {
	id     int
	notify func(state S)
}

// Entity is an aggregate whose current state is fully derived from its
// event history. It owns its identity, the derived state, the queue of
// pending (not yet committed) events and the mutability flag.
//
// An entity instance must be owned by a single logical task at a time; no
// internal locking is provided. Dispatch, reduction and listener
// notification run synchronously without suspension.
type Entity[S any] struct {
	entityType     EntityType[S]
	entityID       string
	state          S
	initialized    bool
	mutable        bool
	pendingEvents  Events
	listeners      []listener[S]
	lastListenerID int
}

// EntityID returns the immutable identity of this entity instance.
func (e *Entity[S]) EntityID() string {
	return e.entityID
}

// EntityName returns the entity name fixed by the schema.
func (e *Entity[S]) EntityName() string {
	return e.entityType.schema.EntityName()
}

// IsMutable reports whether this instance may dispatch new events.
func (e *Entity[S]) IsMutable() bool {
	return e.mutable
}

// State returns the current derived state. It fails with
// ErrEntityUninitialized if no event has been applied yet, which can only
// happen for an entity loaded from an empty event sequence.
func (e *Entity[S]) State() (S, error) {
	if !e.initialized {
		var zero S
		return zero, ErrEntityUninitialized
	}

	return e.state, nil
}

// PendingEvents returns a copy of the events queued since the last
// successful commit, in dispatch order.
func (e *Entity[S]) PendingEvents() Events {
	return slices.Clone(e.pendingEvents)
}

// Subscribe registers a listener invoked synchronously after every
// successful dispatch with the state that dispatch produced. Listeners are
// not invoked on load or replay. The returned function unsubscribes this
// listener only; other listeners are unaffected.
func (e *Entity[S]) Subscribe(listenerFunc func(state S)) (unsubscribe func()) {
	e.lastListenerID++
	id := e.lastListenerID

	e.listeners = append(e.listeners, listener[S]{id: id, notify: listenerFunc})

	return func() {
		e.listeners = slices.DeleteFunc(e.listeners, func(l listener[S]) bool {
			return l.id == id
		})
	}
}

// dispatch constructs, validates, reduces and queues one event, then
// notifies listeners in registration order.
//
// Rejection is atomic: on a readonly entity no event is constructed, and on
// a validation failure state and pending queue are left untouched. State
// and pending queue are always updated together, so there is no window
// where they disagree.
func (e *Entity[S]) dispatch(eventName string, body any, options ...EventOption) error {
	if !e.mutable {
		return ErrReadonlyEntity
	}

	candidate := e.createEvent(eventName, body, options...)

	if err := e.entityType.schema.ParseEventByName(eventName, body); err != nil {
		return err
	}

	e.state = e.entityType.reduce(e.state, candidate)
	e.initialized = true
	e.pendingEvents = append(e.pendingEvents, candidate)

	// notify a snapshot: a listener may unsubscribe (itself or another
	// listener) during notification without disturbing this pass
	for _, l := range slices.Clone(e.listeners) {
		l.notify(e.state)
	}

	return nil
}

// createEvent is the pure construction of the event envelope, shared by
// dispatch and the initial-event path of Create.
func (e *Entity[S]) createEvent(eventName string, body any, options ...EventOption) Event {
	opts := eventOptions{}
	for _, option := range options {
		option(&opts)
	}

	eventID := opts.eventID
	if eventID == "" {
		eventID = e.entityType.newID()
	}

	createdAt := opts.createdAt
	if createdAt.IsZero() {
		createdAt = e.entityType.clock()
	}

	return Event{
		EventID:        eventID,
		EventCreatedAt: createdAt,
		EntityName:     e.entityType.schema.EntityName(),
		EntityID:       e.entityID,
		EventName:      e.entityType.schema.NamespacedEventName(eventName),
		Body:           body,
	}
}

// flushPendingEvents returns the pending queue and clears it. Only the
// repository calls this, at commit time.
func (e *Entity[S]) flushPendingEvents() Events {
	flushed := e.pendingEvents
	e.pendingEvents = nil

	return flushed
}

// restorePendingEvents puts flushed events back at the front of the queue
// after a failed commit, preserving dispatch order. A failed commit never
// silently discards events.
func (e *Entity[S]) restorePendingEvents(events Events) {
	e.pendingEvents = append(slices.Clone(events), e.pendingEvents...)
}
