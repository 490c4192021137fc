package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tasksync/internal/config"
	"tasksync/internal/models"

	"github.com/redis/go-redis/v9"
)

const lastRunKey = "tasksync:last_run"

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

// RedisRunRepository persists the last sync run in redis so the status
// endpoint survives process restarts.
type RedisRunRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRunRepository(client *redis.Client, ttl time.Duration) *RedisRunRepository {
	return &RedisRunRepository{client: client, ttl: ttl}
}

func (r *RedisRunRepository) SaveRun(ctx context.Context, run *models.SyncRun) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal sync run: %w", err)
	}
	if err := r.client.Set(ctx, lastRunKey, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set sync run in redis: %w", err)
	}
	return nil
}

func (r *RedisRunRepository) LastRun(ctx context.Context) (*models.SyncRun, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, lastRunKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync run from redis: %w", err)
	}

	var run models.SyncRun
	if err := json.Unmarshal([]byte(val), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync run: %w", err)
	}
	return &run, nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}
