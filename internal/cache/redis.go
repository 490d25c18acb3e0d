package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/ifnotGodTech/travelmate-backend-sub000/config"
	"github.com/redis/go-redis/v9"
)

// RedisCache backs the two shared resources of the saga: the per-booking
// mutex that serializes saga steps for one booking id, and the supplier
// auth token shared by every reservation call.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(cfg config.RedisConfig) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
	}
}

// AcquireBookingLock takes the saga mutex for a booking id. The TTL bounds
// how long a crashed saga step can keep the booking unprogressable.
func (c *RedisCache) AcquireBookingLock(ctx context.Context, bookingID string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, bookingLockKey(bookingID), "locked", ttl).Result()
}

func (c *RedisCache) ReleaseBookingLock(ctx context.Context, bookingID string) error {
	return c.client.Del(ctx, bookingLockKey(bookingID)).Err()
}

// GetSupplierToken returns the cached supplier token, or "" when absent
// or expired.
func (c *RedisCache) GetSupplierToken(ctx context.Context) (string, error) {
	token, err := c.client.Get(ctx, supplierTokenKey()).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return token, nil
}

func (c *RedisCache) SetSupplierToken(ctx context.Context, token string, ttl time.Duration) error {
	return c.client.Set(ctx, supplierTokenKey(), token, ttl).Err()
}

func (c *RedisCache) InvalidateSupplierToken(ctx context.Context) error {
	return c.client.Del(ctx, supplierTokenKey()).Err()
}

func bookingLockKey(bookingID string) string {
	return fmt.Sprintf("lock:booking:%s", bookingID)
}

func supplierTokenKey() string {
	return "auth:supplier:token"
}
