package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventfold/entity-sourcing-go/example/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.EngineSQLite, cfg.StorageEngine)
	assert.Equal(t, "file:blog.db", cfg.SQLiteDSN)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_ReadsTheEnvironment(t *testing.T) {
	t.Setenv("BLOG_STORAGE_ENGINE", config.EngineMemory)
	t.Setenv("BLOG_LOG_LEVEL", "debug")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.EngineMemory, cfg.StorageEngine)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_RejectsUnknownEngines(t *testing.T) {
	t.Setenv("BLOG_STORAGE_ENGINE", "cassandra")

	_, err := config.Load()
	assert.ErrorIs(t, err, config.ErrUnknownEngine)
}
