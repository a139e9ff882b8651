package orgmemory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore 把记忆快照以 JSON 存入 Redis，用于跨进程共享课程
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "orgbench:memory:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With(zap.String("component", "memory_redis_store")),
	}
}

// Load 实现 Store.Load
func (s *RedisStore) Load(ctx context.Context, key string) (map[string][]string, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if err == redis.Nil {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var snapshot map[string][]string
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal memory snapshot: %w", err)
	}
	return snapshot, nil
}

// Save 实现 Store.Save
func (s *RedisStore) Save(ctx context.Context, key string, snapshot map[string][]string) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal memory snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	s.logger.Debug("memory snapshot saved",
		zap.String("key", key),
		zap.Int("categories", len(snapshot)),
	)
	return nil
}
