package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard gives "claim once" semantics for a logical operation key.
// Claim atomically creates the key if absent; the caller that gets true is the
// one that should proceed. Release deletes the key so a legitimate retry is
// possible after a failure; successful claims are left to expire with the TTL
// so a replayed request within the window is still recognized as a duplicate.
type Guard interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type RedisGuard struct {
	client *redis.Client
}

func NewRedisGuard(redisAddr string) (*RedisGuard, error) {
	const op = "lock.NewRedisGuard"

	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisGuard{client: client}, nil
}

func (r *RedisGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	const op = "lock.RedisGuard.Claim"

	claimKey := fmt.Sprintf("claim:%s", key)
	result, err := r.client.SetNX(ctx, claimKey, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return result, nil
}

func (r *RedisGuard) Release(ctx context.Context, key string) error {
	const op = "lock.RedisGuard.Release"

	claimKey := fmt.Sprintf("claim:%s", key)
	_, err := r.client.Del(ctx, claimKey).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *RedisGuard) Close() error {
	return r.client.Close()
}
