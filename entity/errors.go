package entity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrReadonlyEntity is returned when a dispatch or mutation is attempted
	// on an entity instance that was loaded without write capability.
	ErrReadonlyEntity = errors.New("entity is readonly, dispatching events is not allowed")

	// ErrEntityUninitialized is returned when state is accessed before any
	// event has been applied to the entity.
	ErrEntityUninitialized = errors.New("entity state accessed before any event was applied")

	// ErrEntityNotFound is returned by the repository when no events exist
	// for the requested entity ID.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrNothingToCommit may be returned by adapters that treat a commit
	// without pending events as an error. The default adapter behavior is
	// to treat an empty commit as a no-op snapshot refresh.
	ErrNothingToCommit = errors.New("nothing to commit, the entity has no pending events")

	// ErrSnapshotNotFound is returned by snapshot-capable adapters when no
	// snapshot is stored for the requested entity ID.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSnapshotsUnsupported is returned when a snapshot load is requested
	// from an adapter that does not implement SnapshotReader.
	ErrSnapshotsUnsupported = errors.New("the configured adapter does not support snapshots")

	// ErrRetryableCommit marks adapter failures that are transient and safe
	// to retry with the same entity instance, e.g. serialization failures.
	// Adapters join it onto the underlying cause.
	ErrRetryableCommit = errors.New("commit failed with a retryable error")

	// ErrLoadingEventsFailed wraps adapter errors surfaced while loading an
	// entity's event history.
	ErrLoadingEventsFailed = errors.New("loading events failed")

	// ErrCommittingEventsFailed wraps adapter errors surfaced while
	// committing pending events. The pending queue is restored before this
	// error is returned, so the same entity instance can retry the commit.
	ErrCommittingEventsFailed = errors.New("committing events failed")

	// ErrDecodingStoredEventFailed wraps payload decoding errors for events
	// whose name is known to the schema but whose stored payload is corrupt.
	ErrDecodingStoredEventFailed = errors.New("decoding stored event failed")
)

var (
	ErrEmptyEntityName       = errors.New("entity name must not be empty")
	ErrEmptyEntityID         = errors.New("entity id must not be empty")
	ErrEmptyInitialEventName = errors.New("initial event name must not be empty")
	ErrNoEventDefinitions    = errors.New("schema must define at least one event")
	ErrUnknownInitialEvent   = errors.New("initial event name is not among the event definitions")
	ErrNilReducer            = errors.New("reducer must not be nil")
	ErrNilAdapter            = errors.New("adapter must not be nil")
	ErrNilEntity             = errors.New("entity must not be nil")
)

// Issue describes a single validation failure reported by a schema provider.
// Path holds the property-access segments leading to the offending value,
// empty for failures concerning the value as a whole.
type Issue struct {
	Path    []string
	Message string
}

// String renders the issue as "path.to.field: message".
func (i Issue) String() string {
	if len(i.Path) == 0 {
		return i.Message
	}

	return strings.Join(i.Path, ".") + ": " + i.Message
}

// ValidationError aggregates all issues reported while validating an event
// body or a state value against the schema. It is never auto-retried; the
// caller recovers by correcting the input.
type ValidationError struct {
	EventName string // namespaced event name, empty for state validation
	Issues    []Issue
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	rendered := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		rendered = append(rendered, issue.String())
	}

	subject := "state"
	if e.EventName != "" {
		subject = "event " + e.EventName
	}

	return fmt.Sprintf("validation of %s failed: %s", subject, strings.Join(rendered, "; "))
}

// UnknownEventError is returned when an event name is not registered in the
// schema. It carries the registered names for diagnosability.
type UnknownEventError struct {
	EventName       string
	KnownEventNames []string
}

// Error implements the error interface.
func (e *UnknownEventError) Error() string {
	return fmt.Sprintf(
		"unknown event name %q, known event names: %s",
		e.EventName,
		strings.Join(e.KnownEventNames, ", "),
	)
}
