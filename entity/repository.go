package entity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Commit carries everything an adapter needs to persist the outcome of one
// entity commit: the serialized new events and a snapshot of the current
// state. Adapters must persist both within one atomic operation.
type Commit struct {
	EntityName string
	EntityID   string
	Events     StorableEvents
	Snapshot   json.RawMessage // nil when the entity has no state yet
}

// Adapter is the storage boundary. Implementations persist events in the
// order given and return them back in that order.
//
// CommitEvents must be all-or-nothing: either every event (and the
// snapshot, if supported) is persisted, or nothing is. The core restores
// the pending queue when CommitEvents fails, so a partial write would leave
// store and entity permanently disagreeing.
type Adapter interface {
	GetEventsByEntityID(ctx context.Context, entityName string, entityID string) (StorableEvents, error)
	CommitEvents(ctx context.Context, commit Commit) error
}

// SnapshotReader is optionally implemented by adapters that persist the
// state snapshot handed to CommitEvents. It enables the repository's
// replay-free readonly load path.
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, entityName string, entityID string) (json.RawMessage, error)
}

// Repository coordinates loading and committing entities of one type
// against an adapter. It is the sole entry point for persistence
// operations. Repository values are cheap to copy; operations on different
// entity IDs are independent and may run concurrently.
type Repository[S any] struct {
	entityType       EntityType[S]
	adapter          Adapter
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
}

// RepositoryOption defines a functional option for configuring a Repository.
type RepositoryOption[S any] func(*Repository[S]) error

// WithLogger sets the structured logger for repository operations.
func WithLogger[S any](logger Logger) RepositoryOption[S] {
	return func(r *Repository[S]) error {
		r.logger = logger
		return nil
	}
}

// WithContextualLogging sets a context-aware logger, used in preference to
// the basic logger when both are configured.
func WithContextualLogging[S any](logger ContextualLogger) RepositoryOption[S] {
	return func(r *Repository[S]) error {
		r.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for repository operations.
func WithMetrics[S any](collector MetricsCollector) RepositoryOption[S] {
	return func(r *Repository[S]) error {
		r.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for repository operations.
func WithTracing[S any](collector TracingCollector) RepositoryOption[S] {
	return func(r *Repository[S]) error {
		r.tracingCollector = collector
		return nil
	}
}

// NewRepository binds an entity type to an adapter instance with optional
// observability configuration.
func NewRepository[S any](entityType EntityType[S], adapter Adapter, options ...RepositoryOption[S]) (Repository[S], error) {
	if adapter == nil {
		return Repository[S]{}, ErrNilAdapter
	}

	r := Repository[S]{
		entityType: entityType,
		adapter:    adapter,
	}

	for _, option := range options {
		if err := option(&r); err != nil {
			return Repository[S]{}, err
		}
	}

	return r, nil
}

// FindOne loads the full event history for entityID and replays it into a
// reconstructed entity. It fails with ErrEntityNotFound when no events
// exist. The result is mutable and can continue dispatching; callers that
// only query should read State and discard the instance, or use
// FindOneFromSnapshot for a readonly view.
func (r Repository[S]) FindOne(ctx context.Context, entityID string) (*Entity[S], error) {
	start := time.Now()
	entityName := r.entityType.schema.EntityName()
	ctx, span := r.startSpan(ctx, "repository.find_one", entityName, entityID)

	storableEvents, err := r.adapter.GetEventsByEntityID(ctx, entityName, entityID)
	if err != nil {
		joined := errors.Join(ErrLoadingEventsFailed, err)
		r.recordOperation(ctx, span, "find_one", entityName, StatusError, time.Since(start), joined)
		return nil, joined
	}

	if len(storableEvents) == 0 {
		r.recordOperation(ctx, span, "find_one", entityName, StatusNotFound, time.Since(start), nil)
		return nil, ErrEntityNotFound
	}

	events := make(Events, 0, len(storableEvents))
	for _, storableEvent := range storableEvents {
		event, decodeErr := r.entityType.schema.EventFromStorable(storableEvent)
		if decodeErr != nil {
			r.recordOperation(ctx, span, "find_one", entityName, StatusError, time.Since(start), decodeErr)
			return nil, decodeErr
		}

		events = append(events, event)
	}

	e, err := r.entityType.LoadFromEvents(entityID, events)
	if err != nil {
		r.recordOperation(ctx, span, "find_one", entityName, StatusError, time.Since(start), err)
		return nil, err
	}

	r.recordOperation(ctx, span, "find_one", entityName, StatusSuccess, time.Since(start), nil)

	return e, nil
}

// FindOneFromSnapshot builds a readonly entity from the stored state
// snapshot, without replaying events. It fails with
// ErrSnapshotsUnsupported when the adapter does not implement
// SnapshotReader, and with ErrSnapshotNotFound when no snapshot exists.
func (r Repository[S]) FindOneFromSnapshot(ctx context.Context, entityID string) (*Entity[S], error) {
	snapshotReader, ok := r.adapter.(SnapshotReader)
	if !ok {
		return nil, ErrSnapshotsUnsupported
	}

	entityName := r.entityType.schema.EntityName()

	data, err := snapshotReader.GetSnapshot(ctx, entityName, entityID)
	if err != nil {
		return nil, err
	}

	var state S
	if err = jsoniter.ConfigFastest.Unmarshal(data, &state); err != nil {
		return nil, err
	}

	if err = r.entityType.schema.ParseState(state); err != nil {
		return nil, err
	}

	return r.entityType.LoadFromState(entityID, state)
}

// Commit flushes the entity's pending events and hands them to the adapter
// together with a snapshot of the current state, in one atomic operation
// from the adapter's perspective.
//
// A commit without pending events is a no-op by default; adapters may
// return ErrNothingToCommit instead if configured to treat that as an
// error. On any adapter failure the flushed events are restored to the
// pending queue, so the same entity instance can retry.
func (r Repository[S]) Commit(ctx context.Context, e *Entity[S]) error {
	if e == nil {
		return ErrNilEntity
	}

	start := time.Now()
	entityName := r.entityType.schema.EntityName()
	ctx, span := r.startSpan(ctx, "repository.commit", entityName, e.EntityID())

	flushed := e.flushPendingEvents()

	commit, err := r.buildCommit(e, flushed)
	if err != nil {
		e.restorePendingEvents(flushed)
		r.recordOperation(ctx, span, "commit", entityName, StatusError, time.Since(start), err)
		return err
	}

	if err = r.adapter.CommitEvents(ctx, commit); err != nil {
		e.restorePendingEvents(flushed)
		joined := errors.Join(ErrCommittingEventsFailed, err)
		r.recordOperation(ctx, span, "commit", entityName, StatusError, time.Since(start), joined)
		return joined
	}

	r.recordOperation(ctx, span, "commit", entityName, StatusSuccess, time.Since(start), nil)

	return nil
}

func (r Repository[S]) buildCommit(e *Entity[S], flushed Events) (Commit, error) {
	storableEvents, err := StorableEventsFrom(flushed)
	if err != nil {
		return Commit{}, err
	}

	commit := Commit{
		EntityName: r.entityType.schema.EntityName(),
		EntityID:   e.EntityID(),
		Events:     storableEvents,
	}

	if e.initialized {
		snapshot, marshalErr := jsoniter.ConfigFastest.Marshal(e.state)
		if marshalErr != nil {
			return Commit{}, marshalErr
		}

		commit.Snapshot = snapshot
	}

	return commit, nil
}

/*** helpers for observability ***/

func (r Repository[S]) startSpan(ctx context.Context, name string, entityName string, entityID string) (context.Context, SpanContext) {
	if r.tracingCollector == nil {
		return ctx, nil
	}

	return r.tracingCollector.StartSpan(ctx, name, map[string]string{
		LabelEntityName: entityName,
		"entity_id":     entityID,
	})
}

func (r Repository[S]) recordOperation(
	ctx context.Context,
	span SpanContext,
	operation string,
	entityName string,
	status string,
	duration time.Duration,
	err error,
) {

	labels := map[string]string{
		LabelEntityName: entityName,
		LabelOperation:  operation,
		LabelStatus:     status,
	}

	metric := RepositoryFindDurationMetric
	if operation == "commit" {
		metric = RepositoryCommitDurationMetric
	}

	if r.metricsCollector != nil {
		if contextual, ok := r.metricsCollector.(ContextualMetricsCollector); ok {
			contextual.RecordDurationContext(ctx, metric, duration, labels)
		} else {
			r.metricsCollector.RecordDuration(metric, duration, labels)
		}
	}

	if r.tracingCollector != nil && span != nil {
		r.tracingCollector.FinishSpan(span, status, map[string]string{LabelOperation: operation})
	}

	r.logOperation(ctx, operation, entityName, status, duration, err)
}

func (r Repository[S]) logOperation(
	ctx context.Context,
	operation string,
	entityName string,
	status string,
	duration time.Duration,
	err error,
) {

	args := []any{
		LabelEntityName, entityName,
		LabelStatus, status,
		"duration_ms", durationToMilliseconds(duration),
	}
	if err != nil {
		args = append(args, "error", err.Error())
	}

	msg := "repository operation: " + operation

	switch {
	case r.contextualLogger != nil && err != nil:
		r.contextualLogger.ErrorContext(ctx, msg, args...)
	case r.contextualLogger != nil:
		r.contextualLogger.InfoContext(ctx, msg, args...)
	case r.logger != nil && err != nil:
		r.logger.Error(msg, args...)
	case r.logger != nil:
		r.logger.Info(msg, args...)
	}
}

// durationToMilliseconds converts a duration to float64 milliseconds with
// microsecond precision.
func durationToMilliseconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
