package postgresengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/eventfold/entity-sourcing-go/entity"
	"github.com/eventfold/entity-sourcing-go/entity/postgresengine/internal/adapters"
)

const (
	defaultEventTableName    = "entity_events"
	defaultSnapshotTableName = "entity_snapshots"

	logMsgBuildSelectQueryFailed = "failed to build select query"
	logMsgBuildInsertQueryFailed = "failed to build insert query"
	logMsgBuildUpsertQueryFailed = "failed to build snapshot upsert query"
	logMsgDBQueryFailed          = "database query execution failed"
	logMsgDBExecFailed           = "database execution failed during commit"
	logMsgCloseRowsFailed        = "failed to close database rows"
	logMsgScanRowFailed          = "failed to scan database row"
	logMsgBuildStorableFailed    = "failed to build storable event from database row"
	logMsgRollbackFailed         = "failed to roll back commit transaction"
	logMsgEventsCommitted        = "events committed"
	logMsgQueryCompleted         = "query completed"
	logMsgSQLExecuted            = "executed sql for: "
	logAttrError                 = "error"
	logAttrQuery                 = "query"
	logAttrEventCount            = "event_count"
	logAttrEventID               = "event_id"
	logAttrDurationMS            = "duration_ms"
	logAttrEntityName            = "entity_name"
	logAttrEntityID              = "entity_id"
	logActionSelect              = "select"
	logActionCommit              = "commit"

	colSequenceNumber = "sequence_number"
	colEventID        = "event_id"
	colEventName      = "event_name"
	colEntityName     = "entity_name"
	colEntityID       = "entity_id"
	colOccurredAt     = "occurred_at"
	colPayload        = "payload"
	colState          = "state"
	colUpdatedAt      = "updated_at"

	dialectPostgres = "postgres"
	castJsonb       = "?::jsonb"

	// serialization failures and deadlocks share the SQLSTATE class 40
	// and are safe to retry after the commit path restored the queue.
	retryableSQLStateClass = "40"
)

var (
	// ErrNilDatabaseConnection is returned when a constructor receives a nil connection.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyTableName is returned when a table name option receives an empty string.
	ErrEmptyTableName = errors.New("table name must not be empty")

	// ErrBuildingQueryFailed is returned when the SQL builder fails.
	ErrBuildingQueryFailed = errors.New("building the sql query failed")

	// ErrCommitIncomplete is returned when fewer rows were written than
	// events committed. The transaction is rolled back in that case.
	ErrCommitIncomplete = errors.New("commit wrote fewer events than expected")
)

type sqlQueryString = string

// Adapter is a PostgreSQL implementation of entity.Adapter and
// entity.SnapshotReader. Events are appended to the event table and the
// state snapshot is upserted into the snapshot table within one
// transaction, so a commit is atomic.
type Adapter struct {
	db                adapters.DBAdapter
	eventTableName    string
	snapshotTableName string
	logger            entity.Logger
}

type queryResultRow struct {
	eventID    string
	eventName  string
	occurredAt time.Time
	payload    []byte
}

// NewAdapterFromPGXPool creates a new Adapter using a pgx pool with optional configuration.
func NewAdapterFromPGXPool(db *pgxpool.Pool, options ...Option) (*Adapter, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newAdapter(adapters.NewPGXAdapter(db), options...)
}

// NewAdapterFromSQLDB creates a new Adapter using a sql.DB with optional configuration.
func NewAdapterFromSQLDB(db *sql.DB, options ...Option) (*Adapter, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newAdapter(adapters.NewSQLAdapter(db), options...)
}

// NewAdapterFromSQLX creates a new Adapter using a sqlx.DB with optional configuration.
func NewAdapterFromSQLX(db *sqlx.DB, options ...Option) (*Adapter, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newAdapter(adapters.NewSQLXAdapter(db), options...)
}

func newAdapter(db adapters.DBAdapter, options ...Option) (*Adapter, error) {
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
			%s BIGSERIAL PRIMARY KEY,
			%s TEXT NOT NULL UNIQUE,
			%s TEXT NOT NULL,
			%s TEXT NOT NULL,
			%s TEXT NOT NULL,
			%s TIMESTAMP WITH TIME ZONE NOT NULL,
			%s JSONB NOT NULL
		)`, a.eventTableName,
			colSequenceNumber, colEventID, colEventName, colEntityName, colEntityID, colOccurredAt, colPayload),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_entity_idx ON %s (%s, %s, %s)`,
			a.eventTableName, a.eventTableName, colEntityName, colEntityID, colSequenceNumber),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			%s TEXT NOT NULL,
			%s TEXT NOT NULL,
			%s JSONB NOT NULL,
			%s TIMESTAMP WITH TIME ZONE NOT NULL,
			PRIMARY KEY (%s, %s)
		)`, a.snapshotTableName,
			colEntityName, colEntityID, colState, colUpdatedAt, colEntityName, colEntityID),
	}

	for _, statement := range statements {
		if _, err := a.db.Exec(ctx, statement); err != nil {
			return err
		}
	}

	return nil
}

// GetEventsByEntityID retrieves the committed events for one entity in
// commit order and returns them as entity.StorableEvents.
func (a *Adapter) GetEventsByEntityID(ctx context.Context, entityName string, entityID string) (entity.StorableEvents, error) {
	var empty entity.StorableEvents

	sqlQuery, buildQueryErr := a.buildSelectQuery(entityName, entityID)
	if buildQueryErr != nil {
		if a.logger != nil {
			a.logger.Error(logMsgBuildSelectQueryFailed, logAttrError, buildQueryErr.Error())
		}
		return empty, buildQueryErr
	}

	start := time.Now()
	rows, queryErr := a.db.Query(ctx, sqlQuery)
	duration := time.Since(start)
	a.logQueryWithDuration(sqlQuery, logActionSelect, duration)

	if queryErr != nil {
		if a.logger != nil {
			a.logger.Error(logMsgDBQueryFailed, logAttrError, queryErr.Error(), logAttrQuery, sqlQuery)
		}

		return empty, queryErr
	}
	defer a.closeRows(rows)

	storableEvents, scanErr := a.processQueryResults(rows, entityName, entityID)
	if scanErr != nil {
		return empty, scanErr
	}

	a.logOperation(
		logMsgQueryCompleted,
		logAttrEntityName, entityName,
		logAttrEntityID, entityID,
		logAttrEventCount, len(storableEvents),
		logAttrDurationMS, a.durationToMilliseconds(duration))

	return storableEvents, nil
}

// closeRows safely closes database rows and logs any errors.
func (a *Adapter) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		if a.logger != nil {
			a.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}
	}
}

// processQueryResults converts database rows into storable events.
func (a *Adapter) processQueryResults(rows adapters.DBRows, entityName string, entityID string) (entity.StorableEvents, error) {
	var empty entity.StorableEvents
	result := queryResultRow{}
	storableEvents := make(entity.StorableEvents, 0)

	for rows.Next() {
		rowScanErr := rows.Scan(&result.eventID, &result.eventName, &result.occurredAt, &result.payload)
		if rowScanErr != nil {
			if a.logger != nil {
				a.logger.Error(logMsgScanRowFailed, logAttrError, rowScanErr.Error())
			}

			return empty, rowScanErr
		}

		event, buildStorableErr := entity.BuildStorableEvent(
			result.eventID, result.eventName, entityName, entityID, result.occurredAt, result.payload)
		if buildStorableErr != nil {
			if a.logger != nil {
				a.logger.Error(logMsgBuildStorableFailed, logAttrError, buildStorableErr.Error(), logAttrEventID, result.eventID)
			}

			return empty, buildStorableErr
		}

		storableEvents = append(storableEvents, event)
	}

	return storableEvents, nil
}

// CommitEvents appends the commit's events and upserts its snapshot inside
// one transaction. A commit without events only refreshes the snapshot.
// Serialization failures and deadlocks are marked with
// entity.ErrRetryableCommit so callers can retry through
// entity.RetryCommit.
func (a *Adapter) CommitEvents(ctx context.Context, commit entity.Commit) error {
	statements, buildErr := a.buildCommitStatements(commit)
	if buildErr != nil {
		return buildErr
	}

	if len(statements) == 0 {
		return nil
	}

	start := time.Now()
	execErr := a.executeInTransaction(ctx, statements, len(commit.Events))
	duration := time.Since(start)

	if execErr != nil {
		if a.logger != nil {
			a.logger.Error(logMsgDBExecFailed, logAttrError, execErr.Error())
		}

		return markRetryable(execErr)
	}

	a.logOperation(
		logMsgEventsCommitted,
		logAttrEntityName, commit.EntityName,
		logAttrEntityID, commit.EntityID,
		logAttrEventCount, len(commit.Events),
		logAttrDurationMS, a.durationToMilliseconds(duration))

	return nil
}

// GetSnapshot returns the most recently committed state snapshot for one entity.
func (a *Adapter) GetSnapshot(ctx context.Context, entityName string, entityID string) (json.RawMessage, error) {
	sqlQuery, buildQueryErr := a.buildSnapshotSelectQuery(entityName, entityID)
	if buildQueryErr != nil {
		return nil, buildQueryErr
	}

	rows, queryErr := a.db.Query(ctx, sqlQuery)
	if queryErr != nil {
		return nil, queryErr
	}
	defer a.closeRows(rows)

	if !rows.Next() {
		return nil, entity.ErrSnapshotNotFound
	}

	var state []byte
	if scanErr := rows.Scan(&state); scanErr != nil {
		return nil, scanErr
	}

	return state, nil
}

func (a *Adapter) buildCommitStatements(commit entity.Commit) ([]sqlQueryString, error) {
	statements := make([]sqlQueryString, 0, 2)

	if len(commit.Events) > 0 {
		insertQuery, buildInsertErr := a.buildInsertQuery(commit.Events)
		if buildInsertErr != nil {
			if a.logger != nil {
				a.logger.Error(logMsgBuildInsertQueryFailed, logAttrError, buildInsertErr.Error(), logAttrEventCount, len(commit.Events))
			}

			return nil, buildInsertErr
		}

		statements = append(statements, insertQuery)
	}

	if commit.Snapshot != nil {
		upsertQuery, buildUpsertErr := a.buildSnapshotUpsertQuery(commit)
		if buildUpsertErr != nil {
			if a.logger != nil {
				a.logger.Error(logMsgBuildUpsertQueryFailed, logAttrError, buildUpsertErr.Error())
			}

			return nil, buildUpsertErr
		}

		statements = append(statements, upsertQuery)
	}

	return statements, nil
}

func (a *Adapter) executeInTransaction(ctx context.Context, statements []sqlQueryString, expectedEventCount int) error {
	tx, beginErr := a.db.Begin(ctx)
	if beginErr != nil {
		return beginErr
	}

	for i, statement := range statements {
		result, execErr := tx.Exec(ctx, statement)
		if execErr != nil {
			a.rollback(ctx, tx)
			return execErr
		}

		// the first statement is the event insert when events are present
		if i == 0 && expectedEventCount > 0 {
			rowsAffected, rowsAffectedErr := result.RowsAffected()
			if rowsAffectedErr != nil {
				a.rollback(ctx, tx)
				return rowsAffectedErr
			}

			if rowsAffected < int64(expectedEventCount) {
				a.rollback(ctx, tx)
				return ErrCommitIncomplete
			}
		}
	}

	return tx.Commit(ctx)
}

func (a *Adapter) rollback(ctx context.Context, tx adapters.DBTx) {
	if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
		if a.logger != nil {
			a.logger.Warn(logMsgRollbackFailed, logAttrError, rollbackErr.Error())
		}
	}
}

func (a *Adapter) buildSelectQuery(entityName string, entityID string) (sqlQueryString, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(a.eventTableName).
		Select(colEventID, colEventName, colOccurredAt, colPayload).
		Where(goqu.Ex{colEntityName: entityName, colEntityID: entityID}).
		Order(goqu.I(colSequenceNumber).Asc())

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (a *Adapter) buildInsertQuery(storableEvents entity.StorableEvents) (sqlQueryString, error) {
	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(a.eventTableName).
		Cols(colEventID, colEventName, colEntityName, colEntityID, colOccurredAt, colPayload)

	for _, event := range storableEvents {
		insertStmt = insertStmt.Vals(goqu.Vals{
			event.EventID,
			event.EventName,
			event.EntityName,
			event.EntityID,
			event.OccurredAt,
			goqu.L(castJsonb, string(event.PayloadJSON)),
		})
	}

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (a *Adapter) buildSnapshotUpsertQuery(commit entity.Commit) (sqlQueryString, error) {
	upsertStmt := goqu.Dialect(dialectPostgres).
		Insert(a.snapshotTableName).
		Cols(colEntityName, colEntityID, colState, colUpdatedAt).
		Vals(goqu.Vals{
			commit.EntityName,
			commit.EntityID,
			goqu.L(castJsonb, string(commit.Snapshot)),
			time.Now().UTC(),
		}).
		OnConflict(goqu.DoUpdate(
			fmt.Sprintf("%s, %s", colEntityName, colEntityID),
			goqu.Record{
				colState:     goqu.L(castJsonb, string(commit.Snapshot)),
				colUpdatedAt: time.Now().UTC(),
			},
		))

	sqlQuery, _, toSQLErr := upsertStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (a *Adapter) buildSnapshotSelectQuery(entityName string, entityID string) (sqlQueryString, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(a.snapshotTableName).
		Select(colState).
		Where(goqu.Ex{colEntityName: entityName, colEntityID: entityID})

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// markRetryable tags transient transaction failures with
// entity.ErrRetryableCommit, for both the pgx and the lib/pq driver.
func markRetryable(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 && pgErr.Code[:2] == retryableSQLStateClass {
		return errors.Join(entity.ErrRetryableCommit, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code.Class()) == retryableSQLStateClass {
		return errors.Join(entity.ErrRetryableCommit, err)
	}

	return err
}

// logQueryWithDuration logs SQL queries with execution time at debug level if the logger is configured.
func (a *Adapter) logQueryWithDuration(sqlQuery string, action string, duration time.Duration) {
	if a.logger != nil {
		a.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, a.durationToMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if the logger is configured.
func (a *Adapter) logOperation(action string, args ...any) {
	if a.logger != nil {
		a.logger.Info(action, args...)
	}
}

// durationToMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func (a *Adapter) durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

var _ entity.Adapter = (*Adapter)(nil)
var _ entity.SnapshotReader = (*Adapter)(nil)
