package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"check-deposit-go/internal/models"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "checkdeposit:session:"

// RedisCache shares the session to deposit mapping between processes.
// Read and write failures are logged and treated as misses.
type RedisCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewRedisCache(client *goredis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// NewRedisClient connects and pings the server.
func NewRedisClient(addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func (c *RedisCache) Get(ctx context.Context, sessionId string) (*models.Deposit, bool) {
	data, err := c.client.Get(ctx, keyPrefix+sessionId).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			zap.L().Warn("Idempotency cache read failed", zap.String("session_id", sessionId), zap.Error(err))
		}
		return nil, false
	}
	var d models.Deposit
	if err := json.Unmarshal(data, &d); err != nil {
		zap.L().Warn("Idempotency cache entry unreadable", zap.String("session_id", sessionId), zap.Error(err))
		return nil, false
	}
	return &d, true
}

func (c *RedisCache) Set(ctx context.Context, sessionId string, deposit *models.Deposit) {
	data, err := json.Marshal(deposit)
	if err != nil {
		zap.L().Warn("Idempotency cache marshal failed", zap.String("session_id", sessionId), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, keyPrefix+sessionId, data, c.ttl).Err(); err != nil {
		zap.L().Warn("Idempotency cache write failed", zap.String("session_id", sessionId), zap.Error(err))
	}
}

func (c *RedisCache) Delete(ctx context.Context, sessionId string) {
	if err := c.client.Del(ctx, keyPrefix+sessionId).Err(); err != nil {
		zap.L().Warn("Idempotency cache delete failed", zap.String("session_id", sessionId), zap.Error(err))
	}
}
