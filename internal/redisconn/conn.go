// Package redisconn builds the Redis connection used by the optional cache
// tier, with a background health-check loop that logs connectivity loss.
package redisconn

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config mirrors the subset of connection knobs the search cache needs.
type Config struct {
	Addr                string
	Password            string
	DB                  int
	MaxRetries          int
	PoolSize            int
	MinIdleConns        int
	HealthCheckInterval time.Duration
}

// DefaultConfig targets a local Redis with modest pooling.
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Connect dials Redis, verifies connectivity, and starts a background
// health-check loop that stops when ctx is canceled.
func Connect(ctx context.Context, config Config, logger *zap.Logger) (*redis.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	if config.HealthCheckInterval > 0 {
		go healthCheckLoop(ctx, client, config.HealthCheckInterval, logger)
	}

	logger.Info("redis connected", zap.String("addr", config.Addr), zap.Int("pool_size", config.PoolSize))
	return client, nil
}

func healthCheckLoop(ctx context.Context, client *redis.Client, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := client.Ping(checkCtx).Err()
			cancel()
			if err != nil {
				logger.Warn("redis health check failed", zap.Error(err))
			}
		}
	}
}
