package oteladapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/eventfold/entity-sourcing-go/entity"
	"github.com/eventfold/entity-sourcing-go/entity/oteladapters"
)

func collectorWithReader(t *testing.T) (*oteladapters.MetricsCollector, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	return oteladapters.NewMetricsCollector(provider.Meter("test")), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &resourceMetrics))

	return resourceMetrics
}

func findMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()

	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name == name {
				return m
			}
		}
	}

	t.Fatalf("metric %q was not recorded", name)

	return metricdata.Metrics{}
}

func TestMetricsCollector_RecordDuration(t *testing.T) {
	collector, reader := collectorWithReader(t)

	collector.RecordDuration(entity.RepositoryCommitDurationMetric, 150*time.Millisecond, map[string]string{
		entity.LabelOperation: "commit",
		entity.LabelStatus:    entity.StatusSuccess,
	})

	m := findMetric(t, collect(t, reader), entity.RepositoryCommitDurationMetric)
	histogram, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "duration metric must be a float64 histogram")
	require.Len(t, histogram.DataPoints, 1)

	dataPoint := histogram.DataPoints[0]
	assert.Equal(t, uint64(1), dataPoint.Count)
	assert.InDelta(t, 0.15, dataPoint.Sum, 0.001, "durations are recorded in seconds")

	status, found := dataPoint.Attributes.Value(attribute.Key(entity.LabelStatus))
	require.True(t, found)
	assert.Equal(t, entity.StatusSuccess, status.AsString())
}

func TestMetricsCollector_IncrementCounter(t *testing.T) {
	collector, reader := collectorWithReader(t)

	collector.IncrementCounter(entity.RepositoryCommitRetriesMetric, map[string]string{"attempt": "1"})
	collector.IncrementCounterContext(context.Background(), entity.RepositoryCommitRetriesMetric, map[string]string{"attempt": "1"})

	m := findMetric(t, collect(t, reader), entity.RepositoryCommitRetriesMetric)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "counter metric must be an int64 sum")
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
}

func TestMetricsCollector_RecordValue(t *testing.T) {
	collector, reader := collectorWithReader(t)

	collector.RecordValue("entity_pending_events", 3, map[string]string{entity.LabelEntityName: "post"})

	m := findMetric(t, collect(t, reader), "entity_pending_events")
	gauge, ok := m.Data.(metricdata.Gauge[float64])
	require.True(t, ok, "value metric must be a float64 gauge")
	require.Len(t, gauge.DataPoints, 1)
	assert.InDelta(t, 3.0, gauge.DataPoints[0].Value, 0.001)
}

func TestMetricsCollector_ReusesInstrumentsPerName(t *testing.T) {
	collector, reader := collectorWithReader(t)

	collector.RecordDuration(entity.RepositoryFindDurationMetric, time.Millisecond, nil)
	collector.RecordDuration(entity.RepositoryFindDurationMetric, time.Millisecond, nil)

	m := findMetric(t, collect(t, reader), entity.RepositoryFindDurationMetric)
	histogram, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, histogram.DataPoints, 1)
	assert.Equal(t, uint64(2), histogram.DataPoints[0].Count)
}
