package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"outlivion-contest-backend/internal/platform/redis"
)

// CacheService — read-through кэш поверх Redis. Кэш никогда не является
// источником правды: проекции пересчитываются из ledger и инвалидируются
// при каждой записи по затронутому ключу.
type CacheService struct {
	redisClient redis.RedisClient
}

func NewCacheService(redisClient redis.RedisClient) *CacheService {
	return &CacheService{
		redisClient: redisClient,
	}
}

// Get получает значение из кэша
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.redisClient.Get(ctx, key).Result()
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(data), dest)
}

// Set сохраняет значение в кэш
func (c *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return c.redisClient.Set(ctx, key, string(data), ttl).Err()
}

// Delete удаляет значение из кэша
func (c *CacheService) Delete(ctx context.Context, key string) error {
	return c.redisClient.Del(ctx, key).Err()
}

// DeletePattern удаляет все ключи по паттерну
func (c *CacheService) DeletePattern(ctx context.Context, pattern string) error {
	keys, err := c.redisClient.Keys(ctx, pattern).Result()
	if err != nil {
		return err
	}

	if len(keys) > 0 {
		return c.redisClient.Del(ctx, keys...).Err()
	}

	return nil
}

// GetOrSet получает значение из кэша или вычисляет и сохраняет новое
func (c *CacheService) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, setter func() (interface{}, error)) error {
	err := c.Get(ctx, key, dest)
	if err == nil {
		return nil
	}

	value, err := setter()
	if err != nil {
		return err
	}

	if err := c.Set(ctx, key, value, ttl); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, dest)
}

// SummaryKey — ключ кэша сводки по конкурсу для пользователя
func SummaryKey(contestID, userID string) string {
	return fmt.Sprintf("referral:summary:%s:%s", contestID, userID)
}

// ActiveContestKey — ключ кэша активного конкурса
func ActiveContestKey() string {
	return "contest:active"
}

// InvalidateReferral инвалидирует все проекции пользователя в конкурсе.
// Вызывается после каждой записи в ledger или event store.
func (c *CacheService) InvalidateReferral(ctx context.Context, contestID, userID string) error {
	return c.DeletePattern(ctx, fmt.Sprintf("referral:*:%s:%s", contestID, userID))
}
