package revocation

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "revoked:"

// RedisRegistry stores one key per revoked token with a PX expiry, so Redis
// drops the entry on its own.
type RedisRegistry struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRedisRegistry(client redis.Cmdable) *RedisRegistry {
	return &RedisRegistry{client: client, now: time.Now}
}

func (r *RedisRegistry) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	// Redis expiry has millisecond resolution.
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return r.client.Set(ctx, redisKeyPrefix+HashToken(token), "1", ttl).Err()
}

func (r *RedisRegistry) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, redisKeyPrefix+HashToken(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
