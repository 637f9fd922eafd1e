package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/99minutos/courier-tracking/internal/core/domain"
)

const defaultGeocodeTTL = 24 * time.Hour

// GeocodeCache memoizes resolved destinations in Redis.
// Key format: geocode:<delivery_id>
type GeocodeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewGeocodeCache creates a GeocodeCache wrapping the given Redis client.
func NewGeocodeCache(client *redis.Client, ttl time.Duration) *GeocodeCache {
	if ttl <= 0 {
		ttl = defaultGeocodeTTL
	}
	return &GeocodeCache{client: client, ttl: ttl}
}

// Get returns the cached destination for deliveryID, if any.
func (c *GeocodeCache) Get(ctx context.Context, deliveryID string) (domain.Coordinates, bool, error) {
	raw, err := c.client.Get(ctx, key(deliveryID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Coordinates{}, false, nil
	}
	if err != nil {
		return domain.Coordinates{}, false, fmt.Errorf("geocode cache get: %w", err)
	}

	var pos domain.Coordinates
	if err := json.Unmarshal(raw, &pos); err != nil {
		return domain.Coordinates{}, false, fmt.Errorf("geocode cache decode: %w", err)
	}
	return pos, true, nil
}

// Set stores pos for deliveryID (expires after the configured TTL).
func (c *GeocodeCache) Set(ctx context.Context, deliveryID string, pos domain.Coordinates) error {
	raw, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("geocode cache encode: %w", err)
	}
	return c.client.Set(ctx, key(deliveryID), raw, c.ttl).Err()
}

func key(deliveryID string) string {
	return "geocode:" + deliveryID
}
