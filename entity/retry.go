package entity

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"time"
)

const (
	defaultRetryMaxAttempts  = 5
	defaultRetryBaseDelay    = 10 * time.Millisecond
	defaultRetryJitterFactor = 0.3
)

var (
	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")

	// ErrInvalidJitterFactor is returned when the jitter factor is not
	// between 0.0 and 1.0.
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

// RetryableFunc represents an operation that can be retried, typically a
// closure around Repository.Commit.
type RetryableFunc func(ctx context.Context) error

type retryConfig struct {
	maxAttempts      int
	baseDelay        time.Duration
	jitterFactor     float64
	metricsCollector MetricsCollector
	entityName       string
}

// RetryOption configures RetryCommit behavior.
type RetryOption func(*retryConfig) error

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(attempts int) RetryOption {
	return func(config *retryConfig) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}

		config.maxAttempts = attempts

		return nil
	}
}

// WithBaseDelay sets the base delay for exponential backoff. Actual delays
// grow as baseDelay, baseDelay*2, baseDelay*4 and so on.
func WithBaseDelay(delay time.Duration) RetryOption {
	return func(config *retryConfig) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}

		config.baseDelay = delay

		return nil
	}
}

// WithJitterFactor sets the jitter added to each backoff delay as a
// fraction of the delay, to prevent thundering-herd retries.
func WithJitterFactor(factor float64) RetryOption {
	return func(config *retryConfig) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}

		config.jitterFactor = factor

		return nil
	}
}

// WithRetryMetrics records retry attempts through the given collector,
// labeled with entityName.
func WithRetryMetrics(collector MetricsCollector, entityName string) RetryOption {
	return func(config *retryConfig) error {
		config.metricsCollector = collector
		config.entityName = entityName

		return nil
	}
}

// RetryCommit executes fn with exponential backoff, retrying only failures
// the adapter marked with ErrRetryableCommit. Every other error fails
// fast: validation and readonly errors are caller bugs, and timeouts
// during overload must not be amplified by retries.
//
// The commit path restores pending events on failure, so retrying with the
// same entity instance re-flushes the same events.
func RetryCommit(ctx context.Context, fn RetryableFunc, options ...RetryOption) error {
	config := &retryConfig{
		maxAttempts:  defaultRetryMaxAttempts,
		baseDelay:    defaultRetryBaseDelay,
		jitterFactor: defaultRetryJitterFactor,
	}

	for _, option := range options {
		if err := option(config); err != nil {
			return err
		}
	}

	var lastErr error

	for attempt := 0; attempt < config.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := config.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * config.jitterFactor //nolint:gosec // jitter needs no crypto randomness
			backoffDelay := delay + time.Duration(jitter)

			select {
			case <-time.After(backoffDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !errors.Is(lastErr, ErrRetryableCommit) {
			return lastErr
		}

		recordRetryAttempt(ctx, config, attempt)
	}

	return lastErr
}

func recordRetryAttempt(ctx context.Context, config *retryConfig, attempt int) {
	if config.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		LabelEntityName: config.entityName,
		"attempt":       strconv.Itoa(attempt + 1),
	}

	if contextual, ok := config.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, RepositoryCommitRetriesMetric, labels)
	} else {
		config.metricsCollector.IncrementCounter(RepositoryCommitRetriesMetric, labels)
	}
}
