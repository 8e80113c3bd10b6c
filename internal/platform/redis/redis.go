package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"outlivion-contest-backend/internal/common/config"
)

// RedisClient — подмножество go-redis, используемое сервисом.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Keys(ctx context.Context, pattern string) *redis.StringSliceCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	Close() error
}

type redisClientWrapper struct {
	client *redis.Client
}

func CreateRedisClient(cfg *config.Config) (RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &redisClientWrapper{client: client}, nil
}

func (w *redisClientWrapper) Ping(ctx context.Context) *redis.StatusCmd {
	return w.client.Ping(ctx)
}

func (w *redisClientWrapper) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	return w.client.Set(ctx, key, value, ttl)
}

func (w *redisClientWrapper) Get(ctx context.Context, key string) *redis.StringCmd {
	return w.client.Get(ctx, key)
}

func (w *redisClientWrapper) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	return w.client.Del(ctx, keys...)
}

func (w *redisClientWrapper) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	return w.client.Exists(ctx, keys...)
}

func (w *redisClientWrapper) Keys(ctx context.Context, pattern string) *redis.StringSliceCmd {
	return w.client.Keys(ctx, pattern)
}

func (w *redisClientWrapper) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	return w.client.XAdd(ctx, a)
}

func (w *redisClientWrapper) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	return w.client.XGroupCreateMkStream(ctx, stream, group, start)
}

func (w *redisClientWrapper) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	return w.client.XReadGroup(ctx, a)
}

func (w *redisClientWrapper) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	return w.client.XAck(ctx, stream, group, ids...)
}

func (w *redisClientWrapper) Close() error {
	return w.client.Close()
}
