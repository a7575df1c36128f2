// Package adapters provides database adapter implementations for the
// PostgreSQL storage engine.
//
// This package implements the adapter pattern to support multiple
// PostgreSQL database libraries: pgxpool.Pool, sql.DB, and sqlx.DB. All
// adapters provide equivalent functionality through a common DBAdapter
// interface, including transactional execution for atomic commits.
package adapters
