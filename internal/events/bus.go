package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maumercado/task-queue-go/internal/config"
)

// New constructs the Publisher the supervisor should use: a RedisPubSub
// when cfg.Enabled (so events fan out across separate supervisor
// processes sharing one ledger directory), otherwise an in-process
// MemoryBus. Grounded on RedisQueue.NewRedisQueue's connect-then-ping
// construction shape.
func New(cfg *config.RedisConfig) (Publisher, error) {
	if cfg == nil || !cfg.Enabled {
		return NewMemoryBus(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("events: connect to redis: %w", err)
	}

	return NewRedisPubSub(client), nil
}
