package sqliteengine_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventfold/entity-sourcing-go/entity"
	"github.com/eventfold/entity-sourcing-go/entity/jsonschemaprovider"
	"github.com/eventfold/entity-sourcing-go/entity/sqliteengine"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sqliteengine.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func migratedAdapter(t *testing.T, options ...sqliteengine.Option) *sqliteengine.Adapter {
	t.Helper()

	adapter, err := sqliteengine.NewAdapter(openTestDB(t), options...)
	require.NoError(t, err)
	require.NoError(t, adapter.Migrate(context.Background()))

	return adapter
}

func storableEvent(t *testing.T, eventID string, eventName string, entityID string, payloadJSON string) entity.StorableEvent {
	t.Helper()

	event, err := entity.BuildStorableEvent(
		eventID, eventName, "note", entityID,
		time.Date(2026, time.March, 14, 9, 30, 0, 123456000, time.UTC), []byte(payloadJSON))
	require.NoError(t, err)

	return event
}

func TestNewAdapter_RejectsNilConnections(t *testing.T) {
	_, err := sqliteengine.NewAdapter(nil)
	assert.ErrorIs(t, err, sqliteengine.ErrNilDatabaseConnection)
}

func TestOptions_RejectEmptyTableNames(t *testing.T) {
	db := openTestDB(t)

	_, err := sqliteengine.NewAdapter(db, sqliteengine.WithEventTableName(""))
	assert.ErrorIs(t, err, sqliteengine.ErrEmptyTableName)

	_, err = sqliteengine.NewAdapter(db, sqliteengine.WithSnapshotTableName(""))
	assert.ErrorIs(t, err, sqliteengine.ErrEmptyTableName)
}

func TestCommitAndGet_RoundTripsEventsInOrder(t *testing.T) {
	adapter := migratedAdapter(t)
	ctx := context.Background()

	err := adapter.CommitEvents(ctx, entity.Commit{
		EntityName: "note",
		EntityID:   "note-1",
		Events: entity.StorableEvents{
			storableEvent(t, "event-1", "note:written", "note-1", `{"text":"a"}`),
			storableEvent(t, "event-2", "note:edited", "note-1", `{"text":"b"}`),
		},
	})
	require.NoError(t, err)

	storableEvents, err := adapter.GetEventsByEntityID(ctx, "note", "note-1")
	require.NoError(t, err)

	require.Len(t, storableEvents, 2)
	assert.Equal(t, "event-1", storableEvents[0].EventID)
	assert.Equal(t, "note:written", storableEvents[0].EventName)
	assert.JSONEq(t, `{"text":"a"}`, string(storableEvents[0].PayloadJSON))
	assert.Equal(t, "event-2", storableEvents[1].EventID)
	assert.True(t, storableEvents[0].OccurredAt.Equal(
		time.Date(2026, time.March, 14, 9, 30, 0, 123456000, time.UTC)))
}

func TestGetEventsByEntityID_EmptyStreamIsEmptyNotAnError(t *testing.T) {
	adapter := migratedAdapter(t)

	storableEvents, err := adapter.GetEventsByEntityID(context.Background(), "note", "missing")
	require.NoError(t, err)
	assert.Empty(t, storableEvents)
}

func TestCommitEvents_DuplicateEventIDFailsAtomically(t *testing.T) {
	adapter := migratedAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.CommitEvents(ctx, entity.Commit{
		EntityName: "note",
		EntityID:   "note-1",
		Events:     entity.StorableEvents{storableEvent(t, "event-1", "note:written", "note-1", `{}`)},
	}))

	// the second commit reuses event-1, so both its events must be rejected
	err := adapter.CommitEvents(ctx, entity.Commit{
		EntityName: "note",
		EntityID:   "note-1",
		Events: entity.StorableEvents{
			storableEvent(t, "event-2", "note:edited", "note-1", `{}`),
			storableEvent(t, "event-1", "note:written", "note-1", `{}`),
		},
	})
	require.Error(t, err)

	storableEvents, err := adapter.GetEventsByEntityID(ctx, "note", "note-1")
	require.NoError(t, err)
	assert.Len(t, storableEvents, 1)
}

func TestSnapshots_UpsertAndRead(t *testing.T) {
	adapter := migratedAdapter(t)
	ctx := context.Background()

	_, err := adapter.GetSnapshot(ctx, "note", "note-1")
	assert.ErrorIs(t, err, entity.ErrSnapshotNotFound)

	require.NoError(t, adapter.CommitEvents(ctx, entity.Commit{
		EntityName: "note",
		EntityID:   "note-1",
		Events:     entity.StorableEvents{storableEvent(t, "event-1", "note:written", "note-1", `{}`)},
		Snapshot:   []byte(`{"text":"a"}`),
	}))
	require.NoError(t, adapter.CommitEvents(ctx, entity.Commit{
		EntityName: "note",
		EntityID:   "note-1",
		Events:     entity.StorableEvents{storableEvent(t, "event-2", "note:edited", "note-1", `{}`)},
		Snapshot:   []byte(`{"text":"b"}`),
	}))

	snapshot, err := adapter.GetSnapshot(ctx, "note", "note-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"b"}`, string(snapshot))
}

func TestCustomTableNames(t *testing.T) {
	adapter := migratedAdapter(t,
		sqliteengine.WithEventTableName("note_events"),
		sqliteengine.WithSnapshotTableName("note_snapshots"),
	)
	ctx := context.Background()

	require.NoError(t, adapter.CommitEvents(ctx, entity.Commit{
		EntityName: "note",
		EntityID:   "note-1",
		Events:     entity.StorableEvents{storableEvent(t, "event-1", "note:written", "note-1", `{}`)},
		Snapshot:   []byte(`{}`),
	}))

	storableEvents, err := adapter.GetEventsByEntityID(ctx, "note", "note-1")
	require.NoError(t, err)
	assert.Len(t, storableEvents, 1)
}

// The full stack against a real database: schema definitions from JSON
// Schemas, repository on top of the SQLite adapter.

type noteWritten struct {
	Text string `json:"text"`
}

type noteState struct {
	Text      string `json:"text"`
	Revisions int    `json:"revisions"`
}

func noteType(t *testing.T) entity.EntityType[noteState] {
	t.Helper()

	schema, err := entity.DefineSchema(
		"note",
		entity.Definition{
			Events: map[string]entity.EventDefinition{
				"written": jsonschemaprovider.MustEvent[noteWritten](`{
					"type": "object",
					"properties": {"text": {"type": "string", "minLength": 1}},
					"required": ["text"]
				}`),
			},
		},
		"written",
	)
	require.NoError(t, err)

	reduce := func(state noteState, event entity.Event) noteState {
		if event.EventName == "note:written" {
			if body, ok := event.Body.(noteWritten); ok {
				state.Text = body.Text
				state.Revisions++
			}
		}

		return state
	}

	entityType, err := entity.NewEntityType(schema, reduce)
	require.NoError(t, err)

	return entityType
}

func TestRepository_EndToEndAgainstSQLite(t *testing.T) {
	adapter := migratedAdapter(t)
	ctx := context.Background()

	repository, err := entity.NewRepository(noteType(t), adapter)
	require.NoError(t, err)

	note, err := noteType(t).Create("note-1", noteWritten{Text: "first"})
	require.NoError(t, err)
	require.NoError(t, entity.ApplyMutation(note, "written", func(dispatch entity.Dispatch) error {
		return dispatch(noteWritten{Text: "second"})
	}))

	require.NoError(t, repository.Commit(ctx, note))
	assert.Empty(t, note.PendingEvents())

	found, err := repository.FindOne(ctx, "note-1")
	require.NoError(t, err)

	state, err := found.State()
	require.NoError(t, err)
	assert.Equal(t, noteState{Text: "second", Revisions: 2}, state)

	snapshot, err := repository.FindOneFromSnapshot(ctx, "note-1")
	require.NoError(t, err)
	assert.False(t, snapshot.IsMutable())

	snapshotState, err := snapshot.State()
	require.NoError(t, err)
	assert.Equal(t, state, snapshotState)
}
