package store_test

import (
	"testing"
	"time"

	"github.com/kiranshivaraju/finetunehub/internal/config"
	"github.com/kiranshivaraju/finetunehub/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfig(t *testing.T) {
	cfg, err := store.PoolConfig(config.DatabaseConfig{
		URL:             "postgres://u:p@localhost:5432/jobs",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	})
	require.NoError(t, err)

	assert.Equal(t, int32(10), cfg.MaxConns)
	assert.Equal(t, int32(2), cfg.MinConns)
	assert.Equal(t, 5*time.Minute, cfg.MaxConnLifetime)
	assert.Equal(t, "finetunehub", cfg.ConnConfig.RuntimeParams["application_name"])
}

func TestPoolConfig_KeepsExplicitApplicationName(t *testing.T) {
	cfg, err := store.PoolConfig(config.DatabaseConfig{
		URL: "postgres://u:p@localhost:5432/jobs?application_name=worker",
	})
	require.NoError(t, err)
	assert.Equal(t, "worker", cfg.ConnConfig.RuntimeParams["application_name"])
}

func TestPoolConfig_ZeroLimitsKeepDefaults(t *testing.T) {
	cfg, err := store.PoolConfig(config.DatabaseConfig{URL: "postgres://u:p@localhost:5432/jobs"})
	require.NoError(t, err)
	assert.Positive(t, cfg.MaxConns)
	assert.Positive(t, cfg.MaxConnLifetime)
}

func TestPoolConfig_InvalidURL(t *testing.T) {
	_, err := store.PoolConfig(config.DatabaseConfig{URL: "postgres://u:p@localhost:notaport/jobs"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse database URL")
}
