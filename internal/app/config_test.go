package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "0 3 * * *", cfg.ReconcileSweepCron)
	require.Equal(t, 5*time.Minute, cfg.SnapshotCacheTTL)
	require.Equal(t, 60, cfg.ReceivingRateLimit)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("RECONCILE_SWEEP_CRON", "every night")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "RECONCILE_SWEEP_CRON")

	t.Setenv("RECONCILE_SWEEP_CRON", "0 3 * * *")
	t.Setenv("LOG_FORMAT", "xml")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "LOG_FORMAT")

	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("RECEIVING_RATE_LIMIT", "0")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestIsProduction(t *testing.T) {
	var nilCfg *Config
	require.False(t, nilCfg.IsProduction())
	require.True(t, (&Config{AppEnv: "production"}).IsProduction())
}
