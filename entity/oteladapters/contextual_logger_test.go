package oteladapters_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventfold/entity-sourcing-go/entity"
	"github.com/eventfold/entity-sourcing-go/entity/oteladapters"
)

// recordingHandler captures slog records for assertions.
type recordingHandler struct {
	records *[]slog.Record
	attrs   []slog.Attr
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{records: &[]slog.Record{}}
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, record slog.Record) error {
	record.AddAttrs(h.attrs...)
	*h.records = append(*h.records, record)

	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &recordingHandler{records: h.records, attrs: append(h.attrs, attrs...)}
}

func (h *recordingHandler) WithGroup(string) slog.Handler { return h }

func TestSlogBridgeLogger_SatisfiesTheContextualLoggerInterface(t *testing.T) {
	var logger entity.ContextualLogger = oteladapters.NewSlogBridgeLogger("entity-sourcing")

	assert.NotNil(t, logger)
}

func TestSlogBridgeLoggerWithHandler_ForwardsAllLevels(t *testing.T) {
	handler := newRecordingHandler()
	logger := oteladapters.NewSlogBridgeLoggerWithHandler(handler)
	ctx := context.Background()

	logger.DebugContext(ctx, "debug message")
	logger.InfoContext(ctx, "info message", entity.LabelEntityName, "post")
	logger.WarnContext(ctx, "warn message")
	logger.ErrorContext(ctx, "error message")

	records := *handler.records
	require.Len(t, records, 4)
	assert.Equal(t, slog.LevelDebug, records[0].Level)
	assert.Equal(t, slog.LevelInfo, records[1].Level)
	assert.Equal(t, slog.LevelWarn, records[2].Level)
	assert.Equal(t, slog.LevelError, records[3].Level)
	assert.Equal(t, "info message", records[1].Message)

	found := false
	records[1].Attrs(func(attr slog.Attr) bool {
		if attr.Key == entity.LabelEntityName {
			found = true
			assert.Equal(t, "post", attr.Value.String())
		}
		return true
	})
	assert.True(t, found, "key/value args must be forwarded as attributes")
}
