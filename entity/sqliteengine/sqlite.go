// Package sqliteengine provides an embedded SQLite implementation of the
// entity storage adapter, backed by the cgo-free modernc.org/sqlite
// driver. It is suitable for single-process deployments and for tests,
// where an in-memory database gives real SQL semantics without a server.
//
// Events are appended to an event table ordered by an autoincrement
// sequence and the state snapshot is upserted into a snapshot table, both
// within one transaction. SQLITE_BUSY and SQLITE_LOCKED failures are
// marked as retryable so callers can use entity.RetryCommit.
package sqliteengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sqlite "modernc.org/sqlite"

	"github.com/eventfold/entity-sourcing-go/entity"
)

const (
	defaultEventTableName    = "entity_events"
	defaultSnapshotTableName = "entity_snapshots"

	// primary result codes for busy and locked database handles
	sqliteBusy   = 5
	sqliteLocked = 6

	logMsgDBQueryFailed   = "database query execution failed"
	logMsgDBExecFailed    = "database execution failed during commit"
	logMsgCloseRowsFailed = "failed to close database rows"
	logMsgRollbackFailed  = "failed to roll back commit transaction"
	logMsgEventsCommitted = "events committed"
	logAttrError          = "error"
	logAttrEventCount     = "event_count"
	logAttrEntityName     = "entity_name"
	logAttrEntityID       = "entity_id"
)

var (
	// ErrNilDatabaseConnection is returned when NewAdapter receives a nil connection.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyTableName is returned when a table name option receives an empty string.
	ErrEmptyTableName = errors.New("table name must not be empty")
)

// Adapter is a SQLite implementation of entity.Adapter and
// entity.SnapshotReader.
type Adapter struct {
	db                *sql.DB
	eventTableName    string
	snapshotTableName string
	logger            entity.Logger
}

// Option defines a functional option for configuring the Adapter.
type Option func(*Adapter) error

// WithEventTableName sets the table name for committed events.
func WithEventTableName(tableName string) Option {
	return func(a *Adapter) error {
		if tableName == "" {
			return ErrEmptyTableName
		}

		a.eventTableName = tableName

		return nil
	}
}

// WithSnapshotTableName sets the table name for state snapshots.
func WithSnapshotTableName(tableName string) Option {
	return func(a *Adapter) error {
		if tableName == "" {
			return ErrEmptyTableName
		}

		a.snapshotTableName = tableName

		return nil
	}
}

// WithLogger sets the logger for the Adapter.
func WithLogger(logger entity.Logger) Option {
	return func(a *Adapter) error {
		a.logger = logger
		return nil
	}
}

// Open opens a SQLite database at the given DSN. The connection pool is
// limited to a single connection: SQLite serializes writers anyway, and
// each connection to ":memory:" would otherwise see its own database.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	return db, nil
}

// NewAdapter creates a new Adapter on an open SQLite database.
func NewAdapter(db *sql.DB, options ...Option) (*Adapter, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	a := &Adapter{
		db:                db,
		eventTableName:    defaultEventTableName,
		snapshotTableName: defaultSnapshotTableName,
	}

	for _, option := range options {
		if err := option(a); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// Migrate creates the event and snapshot tables if they do not exist.
func (a *Adapter) Migrate(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			sequence_number INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			event_name TEXT NOT NULL,
			entity_name TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			occurred_at TEXT NOT NULL,
			payload TEXT NOT NULL
		)`, a.eventTableName),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_entity_idx ON %s (entity_name, entity_id, sequence_number)`,
			a.eventTableName, a.eventTableName),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			entity_name TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			state TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (entity_name, entity_id)
		)`, a.snapshotTableName),
	}

	for _, statement := range statements {
		if _, err := a.db.ExecContext(ctx, statement); err != nil {
			return err
		}
	}

	return nil
}

// GetEventsByEntityID retrieves the committed events for one entity in
// commit order and returns them as entity.StorableEvents.
func (a *Adapter) GetEventsByEntityID(ctx context.Context, entityName string, entityID string) (entity.StorableEvents, error) {
	query := fmt.Sprintf(
		`SELECT event_id, event_name, occurred_at, payload FROM %s
		 WHERE entity_name = ? AND entity_id = ? ORDER BY sequence_number ASC`,
		a.eventTableName)

	rows, queryErr := a.db.QueryContext(ctx, query, entityName, entityID)
	if queryErr != nil {
		if a.logger != nil {
			a.logger.Error(logMsgDBQueryFailed, logAttrError, queryErr.Error())
		}

		return nil, queryErr
	}
	defer a.closeRows(rows)

	storableEvents := make(entity.StorableEvents, 0)

	for rows.Next() {
		var eventID, eventName, occurredAtText, payload string
		if scanErr := rows.Scan(&eventID, &eventName, &occurredAtText, &payload); scanErr != nil {
			return nil, scanErr
		}

		occurredAt, parseErr := time.Parse(time.RFC3339Nano, occurredAtText)
		if parseErr != nil {
			return nil, parseErr
		}

		event, buildErr := entity.BuildStorableEvent(eventID, eventName, entityName, entityID, occurredAt, []byte(payload))
		if buildErr != nil {
			return nil, buildErr
		}

		storableEvents = append(storableEvents, event)
	}

	return storableEvents, rows.Err()
}

// CommitEvents appends the commit's events and upserts its snapshot inside
// one transaction. A commit without events only refreshes the snapshot.
func (a *Adapter) CommitEvents(ctx context.Context, commit entity.Commit) error {
	if len(commit.Events) == 0 && commit.Snapshot == nil {
		return nil
	}

	tx, beginErr := a.db.BeginTx(ctx, nil)
	if beginErr != nil {
		return markRetryable(beginErr)
	}

	if err := a.execCommit(ctx, tx, commit); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && a.logger != nil {
			a.logger.Warn(logMsgRollbackFailed, logAttrError, rollbackErr.Error())
		}

		if a.logger != nil {
			a.logger.Error(logMsgDBExecFailed, logAttrError, err.Error())
		}

		return markRetryable(err)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return markRetryable(commitErr)
	}

	if a.logger != nil {
		a.logger.Info(logMsgEventsCommitted,
			logAttrEntityName, commit.EntityName,
			logAttrEntityID, commit.EntityID,
			logAttrEventCount, len(commit.Events))
	}

	return nil
}

func (a *Adapter) execCommit(ctx context.Context, tx *sql.Tx, commit entity.Commit) error {
	insertQuery := fmt.Sprintf(
		`INSERT INTO %s (event_id, event_name, entity_name, entity_id, occurred_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.eventTableName)

	for _, event := range commit.Events {
		_, insertErr := tx.ExecContext(ctx, insertQuery,
			event.EventID,
			event.EventName,
			event.EntityName,
			event.EntityID,
			event.OccurredAt.UTC().Format(time.RFC3339Nano),
			string(event.PayloadJSON),
		)
		if insertErr != nil {
			return insertErr
		}
	}

	if commit.Snapshot != nil {
		upsertQuery := fmt.Sprintf(
			`INSERT INTO %s (entity_name, entity_id, state, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (entity_name, entity_id)
			 DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
			a.snapshotTableName)

		_, upsertErr := tx.ExecContext(ctx, upsertQuery,
			commit.EntityName,
			commit.EntityID,
			string(commit.Snapshot),
			time.Now().UTC().Format(time.RFC3339Nano),
		)
		if upsertErr != nil {
			return upsertErr
		}
	}

	return nil
}

// GetSnapshot returns the most recently committed state snapshot for one entity.
func (a *Adapter) GetSnapshot(ctx context.Context, entityName string, entityID string) (json.RawMessage, error) {
	query := fmt.Sprintf(
		`SELECT state FROM %s WHERE entity_name = ? AND entity_id = ?`,
		a.snapshotTableName)

	var state string
	err := a.db.QueryRowContext(ctx, query, entityName, entityID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}

	return json.RawMessage(state), nil
}

func (a *Adapter) closeRows(rows *sql.Rows) {
	if closeErr := rows.Close(); closeErr != nil {
		if a.logger != nil {
			a.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}
	}
}

// markRetryable tags busy and locked failures with
// entity.ErrRetryableCommit.
func markRetryable(err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return errors.Join(entity.ErrRetryableCommit, err)
		}
	}

	return err
}

var _ entity.Adapter = (*Adapter)(nil)
var _ entity.SnapshotReader = (*Adapter)(nil)
