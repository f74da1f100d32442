package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"robo-ingest/internal/model"

	"github.com/redis/go-redis/v9"
)

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisClient is the subset of *redis.Client the shared tier uses.
type RedisClient interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// Redis is the shared tier so several instances agree on what was admitted.
// 키는 TTL 로 만료된다 (플랫폼 재전송 창보다 길게 잡을 것).
type Redis struct {
	client RedisClient
	ttl    time.Duration
}

func NewRedis(client RedisClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func redisKey(k model.DedupKey) string {
	return "robo:dedup:" + k.String()
}

func (r *Redis) Contains(ctx context.Context, key model.DedupKey) (bool, error) {
	n, err := r.client.Exists(ctx, redisKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) Add(ctx context.Context, key model.DedupKey) error {
	// 이미 있으면 false 가 오지만 결과는 같다 (admitted).
	return r.client.SetNX(ctx, redisKey(key), 1, r.ttl).Err()
}
