package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDatabaseDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 10, cfg.Database.MaxOpenConns)
	require.Equal(t, 5, cfg.Database.MaxIdleConns)
	require.Equal(t, time.Hour, cfg.Database.ConnMaxLifetime)
	require.Equal(t, 30*time.Minute, cfg.Database.ConnMaxIdleTime)
}

func TestLoadDatabasePoolOverrides(t *testing.T) {
	t.Setenv("DB_CONN_MAX_LIFETIME", "15m")
	t.Setenv("DB_CONN_MAX_IDLE_TIME", "2m")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 15*time.Minute, cfg.Database.ConnMaxLifetime)
	require.Equal(t, 2*time.Minute, cfg.Database.ConnMaxIdleTime)
}

func TestLoadQueueDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 3, cfg.Queue.MaxRetries)
	require.Equal(t, 30*time.Second, cfg.Queue.RetryBackoff)
	require.Equal(t, 10*time.Minute, cfg.Queue.StaleClaimAfter)
}

func TestLoadBadDurationFallsBack(t *testing.T) {
	t.Setenv("QUEUE_STALE_CLAIM_AFTER", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 10*time.Minute, cfg.Queue.StaleClaimAfter)
}
