package postgresengine

import (
	"github.com/eventfold/entity-sourcing-go/entity"
)

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
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL queries with execution timing (development use)
// Info level: Event counts and durations (production-safe)
// Warn level: Non-critical issues like cleanup failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger entity.Logger) Option {
	return func(a *Adapter) error {
		a.logger = logger
		return nil
	}
}
