package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SYNC_BATCH_SIZE", "")
	t.Setenv("STALE_AFTER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Sync.BatchSize)
	assert.Equal(t, 24*time.Hour, cfg.Sync.StaleAfter)
	assert.Equal(t, 7*24*time.Hour, cfg.Sync.CreativeTTL)
	assert.Equal(t, 3, cfg.External.MaxRetries)
	assert.Equal(t, time.Second, cfg.External.RetryBaseDelay)
	assert.Equal(t, 15*time.Second, cfg.External.CRMAPITimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SYNC_BATCH_SIZE", "4")
	t.Setenv("STALE_AFTER", "2h")
	t.Setenv("MAX_RETRIES", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Sync.BatchSize)
	assert.Equal(t, 2*time.Hour, cfg.Sync.StaleAfter)
	assert.Equal(t, 3, cfg.External.MaxRetries, "invalid ints fall back to the default")
}
