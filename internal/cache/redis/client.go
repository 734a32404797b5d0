package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/intelliquery/backend/internal/metrics"
	"github.com/intelliquery/backend/pkg/logger"
)

const cacheTypeIntent = "intent"

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func intentKey(queryHash string) string {
	return fmt.Sprintf("intent:%s", queryHash)
}

func counterKey(name string) string {
	return fmt.Sprintf("counter:%s", name)
}

// SetIntent caches a parsed intent under the hash of the question that
// produced it.
func (c *Client) SetIntent(ctx context.Context, queryHash string, intent interface{}, ttl time.Duration) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to marshal intent: %w", err)
	}

	err = c.client.Set(ctx, intentKey(queryHash), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set intent cache: %w", err)
	}

	logger.Debug("Intent cached", zap.String("query_hash", queryHash), zap.Duration("ttl", ttl))
	return nil
}

// GetIntent decodes a cached intent into out. It reports false on a miss.
func (c *Client) GetIntent(ctx context.Context, queryHash string, out interface{}) (bool, error) {
	data, err := c.client.Get(ctx, intentKey(queryHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.WithLabelValues(cacheTypeIntent).Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get intent cache: %w", err)
	}

	err = json.Unmarshal(data, out)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal intent: %w", err)
	}

	metrics.CacheHits.WithLabelValues(cacheTypeIntent).Inc()
	logger.Debug("Intent cache hit", zap.String("query_hash", queryHash))
	return true, nil
}

// InvalidateIntents drops every cached intent.
func (c *Client) InvalidateIntents(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, intentKey("*"), 0).Iterator()
	for iter.Next(ctx) {
		err := c.client.Del(ctx, iter.Val()).Err()
		if err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Intent cache invalidated")
	return nil
}

func (c *Client) IncrementCounter(ctx context.Context, name string) error {
	return c.client.Incr(ctx, counterKey(name)).Err()
}

func (c *Client) GetCounter(ctx context.Context, name string) (int64, error) {
	val, err := c.client.Get(ctx, counterKey(name)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return val, err
}
