package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/models"
)

func TestThatEntriesKeepTheDeviceID(t *testing.T) {
	f, err := decode("gw-1", []byte(`{"measureFrequency":30}`))
	require.NoError(t, err)

	assert.Equal(t, "gw-1", f.DeviceID)
	require.NotNil(t, f.Value)
	assert.Equal(t, 30.0, *f.Value)

	unset, err := decode("gw-2", []byte(`{"measureFrequency":null}`))
	require.NoError(t, err)
	assert.Nil(t, unset.Value)

	_, err = decode("gw-3", []byte(`not json`))
	assert.Error(t, err)
}

//TestThatFrequenciesRoundTripThroughRedis needs a server named by TELEMETRY_TEST_REDIS_ADDR
func TestThatFrequenciesRoundTripThroughRedis(t *testing.T) {
	addr := os.Getenv("TELEMETRY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TELEMETRY_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	client, err := Connect(ctx, addr, "", 0)
	require.NoError(t, err)
	defer client.Close()

	c := NewFrequencyCache(client, time.Minute)
	value := 12.0

	require.NoError(t, c.Set(ctx, models.MeasureFrequency{DeviceID: "gw-test", Value: &value}))

	f, ok, err := c.Get(ctx, "gw-test")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 12.0, *f.Value)

	require.NoError(t, c.Invalidate(ctx, "gw-test"))
	_, ok, err = c.Get(ctx, "gw-test")
	require.NoError(t, err)
	assert.False(t, ok)
}
