package entity_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventfold/entity-sourcing-go/entity"
)

func TestRetryCommit_SucceedsOnFirstAttempt(t *testing.T) {
	attempts := 0

	err := entity.RetryCommit(context.Background(), func(context.Context) error {
		attempts++
		return nil
	}, entity.WithBaseDelay(0))

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryCommit_RetriesRetryableFailures(t *testing.T) {
	attempts := 0

	err := entity.RetryCommit(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("serialization conflict: %w", entity.ErrRetryableCommit)
		}
		return nil
	}, entity.WithBaseDelay(0))

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryCommit_FailsFastOnNonRetryableErrors(t *testing.T) {
	attempts := 0
	businessErr := errors.New("ticket is closed")

	err := entity.RetryCommit(context.Background(), func(context.Context) error {
		attempts++
		return businessErr
	}, entity.WithBaseDelay(0))

	assert.ErrorIs(t, err, businessErr)
	assert.Equal(t, 1, attempts)
}

func TestRetryCommit_GivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0

	err := entity.RetryCommit(context.Background(), func(context.Context) error {
		attempts++
		return entity.ErrRetryableCommit
	}, entity.WithMaxAttempts(3), entity.WithBaseDelay(0))

	assert.ErrorIs(t, err, entity.ErrRetryableCommit)
	assert.Equal(t, 3, attempts)
}

func TestRetryCommit_StopsWhenTheContextIsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := entity.RetryCommit(ctx, func(context.Context) error {
		attempts++
		cancel()
		return entity.ErrRetryableCommit
	}, entity.WithBaseDelay(time.Hour))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetryCommit_ValidatesOptions(t *testing.T) {
	noop := func(context.Context) error { return nil }

	err := entity.RetryCommit(context.Background(), noop, entity.WithMaxAttempts(0))
	assert.ErrorIs(t, err, entity.ErrInvalidMaxAttempts)

	err = entity.RetryCommit(context.Background(), noop, entity.WithBaseDelay(-time.Second))
	assert.ErrorIs(t, err, entity.ErrNegativeBaseDelay)

	err = entity.RetryCommit(context.Background(), noop, entity.WithJitterFactor(1.5))
	assert.ErrorIs(t, err, entity.ErrInvalidJitterFactor)
}

type countingCollector struct {
	counters map[string]int
}

func (c *countingCollector) RecordDuration(string, time.Duration, map[string]string) {}

func (c *countingCollector) IncrementCounter(metric string, _ map[string]string) {
	if c.counters == nil {
		c.counters = make(map[string]int)
	}
	c.counters[metric]++
}

func (c *countingCollector) RecordValue(string, float64, map[string]string) {}

func TestRetryCommit_RecordsRetryAttempts(t *testing.T) {
	collector := &countingCollector{}
	attempts := 0

	err := entity.RetryCommit(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return entity.ErrRetryableCommit
		}
		return nil
	}, entity.WithBaseDelay(0), entity.WithRetryMetrics(collector, ticketEntityName))

	require.NoError(t, err)
	assert.Equal(t, 2, collector.counters[entity.RepositoryCommitRetriesMetric])
}
