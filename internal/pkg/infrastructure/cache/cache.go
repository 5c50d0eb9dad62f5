package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/models"
)

const keyPrefix = "telemetry:measure-frequency:"

//Connect opens a redis client and checks that the server answers
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}

	return client, nil
}

//FrequencyCache keeps measure frequencies in redis for a limited time
type FrequencyCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewFrequencyCache(client redis.Cmdable, ttl time.Duration) *FrequencyCache {
	return &FrequencyCache{client: client, ttl: ttl}
}

func key(deviceID string) string {
	return keyPrefix + deviceID
}

//Get returns the cached frequency of a device. ok is false on a cache miss.
func (c *FrequencyCache) Get(ctx context.Context, deviceID string) (models.MeasureFrequency, bool, error) {
	b, err := c.client.Get(ctx, key(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.MeasureFrequency{}, false, nil
	}
	if err != nil {
		return models.MeasureFrequency{}, false, err
	}

	f, err := decode(deviceID, b)
	if err != nil {
		return models.MeasureFrequency{}, false, err
	}

	return f, true, nil
}

func (c *FrequencyCache) Set(ctx context.Context, f models.MeasureFrequency) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(f.DeviceID), b, c.ttl).Err()
}

//Invalidate drops the cached frequency of a device
func (c *FrequencyCache) Invalidate(ctx context.Context, deviceID string) error {
	return c.client.Del(ctx, key(deviceID)).Err()
}

func decode(deviceID string, b []byte) (models.MeasureFrequency, error) {
	f := models.MeasureFrequency{}
	if err := json.Unmarshal(b, &f); err != nil {
		return f, fmt.Errorf("corrupt cache entry for %s: %w", deviceID, err)
	}
	f.DeviceID = deviceID
	return f, nil
}
