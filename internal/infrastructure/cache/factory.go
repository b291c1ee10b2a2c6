package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/erp/settlement/internal/domain/dunning"
	"github.com/erp/settlement/internal/infrastructure/config"
)

// LockerFactory creates account lockers based on configuration
type LockerFactory struct {
	redisConfig           config.RedisConfig
	options               LockerOptions
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// LockerFactoryOption is a functional option for configuring the factory
type LockerFactoryOption func(*LockerFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) LockerFactoryOption {
	return func(f *LockerFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-process locker when Redis is unavailable.
// Default is true.
func WithInMemoryFallback(allow bool) LockerFactoryOption {
	return func(f *LockerFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewLockerFactory creates a new factory
func NewLockerFactory(redisCfg config.RedisConfig, dunningCfg config.DunningConfig, opts ...LockerFactoryOption) *LockerFactory {
	f := &LockerFactory{
		redisConfig: redisCfg,
		options: LockerOptions{
			TTL:         dunningCfg.LockTTL,
			WaitTimeout: dunningCfg.LockWaitTimeout,
		},
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateRedisLocker connects to Redis and returns a distributed locker with its client
func (f *LockerFactory) CreateRedisLocker(ctx context.Context) (*RedisAccountLocker, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	opts := f.options
	opts.Logger = f.logger
	return NewRedisAccountLocker(client, opts), client, nil
}

// CreateLocker returns the Redis locker when Redis is enabled and reachable,
// otherwise the in-process locker if fallback is allowed. The returned close
// function releases the Redis client, if any.
func (f *LockerFactory) CreateLocker(ctx context.Context) (dunning.AccountLocker, func() error, error) {
	noop := func() error { return nil }
	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, using in-memory account locker")
		return NewInMemoryAccountLocker(f.options.WaitTimeout), noop, nil
	}

	locker, client, err := f.CreateRedisLocker(ctx)
	if err == nil {
		f.logger.Info("using Redis account locker", zap.String("addr", f.redisConfig.Addr()))
		return locker, client.Close, nil
	}

	if !f.allowInMemoryFallback {
		return nil, nil, fmt.Errorf("Redis required for account locking but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory account locker. "+
		"Concurrent evaluations on other instances are not serialized.",
		zap.Error(err),
	)
	return NewInMemoryAccountLocker(f.options.WaitTimeout), noop, nil
}
