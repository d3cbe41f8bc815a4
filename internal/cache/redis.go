package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Wafik13/PFE-sub001/internal/domain"
)

// latestTTL keeps stale readings from lingering after a device goes quiet.
const latestTTL = 5 * time.Minute

// ErrMiss is returned when no cached reading exists for a device.
var ErrMiss = errors.New("cache miss")

// Cache keeps the most recent reading per device for cheap dashboard reads.
type Cache struct {
	rdb *redis.Client
}

func New(addr string) *Cache {
	return &Cache{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *Cache) Close() error { return c.rdb.Close() }

func latestKey(deviceID string) string { return "latest:" + deviceID }

func (c *Cache) SetLatest(ctx context.Context, r *domain.Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, latestKey(r.DeviceID), payload, latestTTL).Err(); err != nil {
		return fmt.Errorf("cache set for %s: %w", r.DeviceID, err)
	}
	return nil
}

func (c *Cache) GetLatest(ctx context.Context, deviceID string) (*domain.Reading, error) {
	raw, err := c.rdb.Get(ctx, latestKey(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	var r domain.Reading
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Cache) Ping(ctx context.Context) bool {
	return c.rdb.Ping(ctx).Err() == nil
}
