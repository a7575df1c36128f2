// Package memoryengine provides a mutex-guarded in-memory Adapter,
// intended for tests and development setups. Commits are atomic per
// entity stream and snapshots are kept alongside the events.
package memoryengine

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/eventfold/entity-sourcing-go/entity"
)

type streamKey struct {
	entityName string
	entityID   string
}

// Adapter is an in-memory implementation of entity.Adapter and
// entity.SnapshotReader.
type Adapter struct {
	mu            sync.RWMutex
	streams       map[streamKey]entity.StorableEvents
	snapshots     map[streamKey]json.RawMessage
	strictCommits bool
}

// Option defines a functional option for configuring the Adapter.
type Option func(*Adapter)

// WithStrictCommits makes CommitEvents fail with entity.ErrNothingToCommit
// when called without events, instead of treating it as a snapshot-only
// no-op.
func WithStrictCommits() Option {
	return func(a *Adapter) {
		a.strictCommits = true
	}
}

// NewAdapter creates an empty in-memory adapter.
func NewAdapter(options ...Option) *Adapter {
	a := &Adapter{
		streams:   make(map[streamKey]entity.StorableEvents),
		snapshots: make(map[streamKey]json.RawMessage),
	}

	for _, option := range options {
		option(a)
	}

	return a
}

// GetEventsByEntityID returns the committed events for one entity in
// commit order, empty if none exist.
func (a *Adapter) GetEventsByEntityID(_ context.Context, entityName string, entityID string) (entity.StorableEvents, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return slices.Clone(a.streams[streamKey{entityName, entityID}]), nil
}

// CommitEvents appends the commit's events to the entity's stream and
// stores its snapshot, all under one lock so the commit is atomic.
func (a *Adapter) CommitEvents(_ context.Context, commit entity.Commit) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(commit.Events) == 0 && a.strictCommits {
		return entity.ErrNothingToCommit
	}

	for _, event := range commit.Events {
		if event.EntityName != commit.EntityName || event.EntityID != commit.EntityID {
			return fmt.Errorf(
				"event %s belongs to %s/%s, not to the committed entity %s/%s",
				event.EventID, event.EntityName, event.EntityID, commit.EntityName, commit.EntityID,
			)
		}
	}

	key := streamKey{commit.EntityName, commit.EntityID}
	a.streams[key] = append(a.streams[key], commit.Events...)

	if commit.Snapshot != nil {
		a.snapshots[key] = slices.Clone(commit.Snapshot)
	}

	return nil
}

// GetSnapshot returns the most recently committed snapshot for one entity.
func (a *Adapter) GetSnapshot(_ context.Context, entityName string, entityID string) (json.RawMessage, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snapshot, ok := a.snapshots[streamKey{entityName, entityID}]
	if !ok {
		return nil, entity.ErrSnapshotNotFound
	}

	return slices.Clone(snapshot), nil
}

var _ entity.Adapter = (*Adapter)(nil)
var _ entity.SnapshotReader = (*Adapter)(nil)
