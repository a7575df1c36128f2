// Package postgresengine provides a PostgreSQL implementation of the
// entity storage adapter.
//
// Events are appended to an event table ordered by a sequence number and
// the state snapshot is upserted into a snapshot table, both within one
// transaction. Serialization failures and deadlocks are marked as
// retryable so callers can use entity.RetryCommit.
//
// Multiple database libraries are supported through internal adapters:
// pgxpool.Pool, sql.DB, and sqlx.DB.
//
// Usage example:
//
//	db, _ := pgxpool.New(context.Background(), dsn)
//	adapter, _ := postgresengine.NewAdapterFromPGXPool(
//		db,
//		postgresengine.WithEventTableName("post_events"),
//		postgresengine.WithLogger(logger),
//	)
//	_ = adapter.Migrate(context.Background())
//
//	repository, _ := entity.NewRepository(postType, adapter)
package postgresengine
