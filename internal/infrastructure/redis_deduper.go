package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const inboundKeyPrefix = "inbound:seen:"

// RedisDeduper remembers delivered inbound event ids for a fixed TTL.
type RedisDeduper struct {
	Redis *redis.Client
	ttl   time.Duration
}

func NewRedisDeduper(url string, ttl time.Duration) (*RedisDeduper, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisDeduper{Redis: redis.NewClient(opts), ttl: ttl}, nil
}

func (d *RedisDeduper) Ping(ctx context.Context) error {
	return d.Redis.Ping(ctx).Err()
}

// FirstDelivery reports true the first time eventID is seen within the TTL.
func (d *RedisDeduper) FirstDelivery(ctx context.Context, eventID string) (bool, error) {
	return d.Redis.SetNX(ctx, inboundKeyPrefix+eventID, 1, d.ttl).Result()
}

func (d *RedisDeduper) Close() error {
	return d.Redis.Close()
}
