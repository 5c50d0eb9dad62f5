package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThatDefaultsAreUsedWithoutAConfigFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8880, cfg.Server.Port)
	assert.Equal(t, "Cosecha", cfg.Stores.Management.Name)
	assert.Equal(t, "Dispositivos", cfg.Stores.Telemetry.DevicesCollection)
	assert.Equal(t, 2025, cfg.Timestamps.GatewayYear)
	assert.Equal(t, 6, cfg.Timestamps.GatewayHourOffset)
	assert.Equal(t, 5*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, "reports", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 16, cfg.Probing.Concurrency)
}

func TestThatEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("TELEMETRY_SERVER_PORT", "9000")
	t.Setenv("TELEMETRY_TIMESTAMPS_GATEWAY_HOUR_OFFSET", "5")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Timestamps.GatewayHourOffset)
}

func TestThatAConfigFileIsRead(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("stores:\n  telemetry:\n    name: Lab\nprobing:\n  concurrency: 4\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "Lab", cfg.Stores.Telemetry.Name)
	assert.Equal(t, 4, cfg.Probing.Concurrency)
}

func TestThatPostgresStoresNeedADSN(t *testing.T) {
	t.Setenv("TELEMETRY_STORES_MANAGEMENT_DRIVER", "postgres")

	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestThatStoresMustHaveDistinctNames(t *testing.T) {
	t.Setenv("TELEMETRY_STORES_TELEMETRY_NAME", "Cosecha")

	_, err := Load(t.TempDir())
	assert.Error(t, err)
}
