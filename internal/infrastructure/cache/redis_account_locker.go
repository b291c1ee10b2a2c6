package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/erp/settlement/internal/domain/dunning"
)

const defaultLockKeyPrefix = "dunning:lock:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lock that another process re-acquired is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisAccountLocker implements dunning.AccountLocker with SET NX PX.
// Suitable for deployments where several instances evaluate the same accounts.
type RedisAccountLocker struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	wait      time.Duration
	retry     time.Duration
	logger    *zap.Logger
}

// LockerOptions tunes lock behaviour
type LockerOptions struct {
	TTL         time.Duration // lock expiry, protects against crashed holders
	WaitTimeout time.Duration // how long Lock waits for a busy account
	RetryDelay  time.Duration
	KeyPrefix   string
	Logger      *zap.Logger
}

func (o LockerOptions) withDefaults() LockerOptions {
	if o.TTL <= 0 {
		o.TTL = 30 * time.Second
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = 10 * time.Second
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 50 * time.Millisecond
	}
	if o.KeyPrefix == "" {
		o.KeyPrefix = defaultLockKeyPrefix
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// NewRedisAccountLocker creates a locker on an existing client
func NewRedisAccountLocker(client *redis.Client, opts LockerOptions) *RedisAccountLocker {
	opts = opts.withDefaults()
	return &RedisAccountLocker{
		client:    client,
		keyPrefix: opts.KeyPrefix,
		ttl:       opts.TTL,
		wait:      opts.WaitTimeout,
		retry:     opts.RetryDelay,
		logger:    opts.Logger,
	}
}

// Lock blocks until the account's key is ours, the wait timeout passes or ctx ends
func (l *RedisAccountLocker) Lock(ctx context.Context, accountID uuid.UUID) (func(), error) {
	key := l.keyPrefix + accountID.String()
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(waitCtx, key, token, l.ttl).Result()
		if err != nil && waitCtx.Err() == nil {
			return nil, fmt.Errorf("failed to acquire lock for account %s: %w", accountID, err)
		}
		if ok {
			return l.unlockFunc(key, token), nil
		}
		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("account %s is locked by another evaluation: %w", accountID, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisAccountLocker) unlockFunc(key, token string) func() {
	return func() {
		// The caller's context may already be canceled; release regardless.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		released, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
		switch {
		case err != nil:
			// the key still expires after the TTL
			l.logger.Warn("Failed to release account lock",
				zap.String("key", key),
				zap.Duration("ttl", l.ttl),
				zap.Error(err),
			)
		case released == 0:
			l.logger.Warn("Account lock expired before release",
				zap.String("key", key),
				zap.Duration("ttl", l.ttl),
			)
		}
	}
}

// Ensure RedisAccountLocker implements dunning.AccountLocker
var _ dunning.AccountLocker = (*RedisAccountLocker)(nil)

// Client returns the underlying Redis client, for health checks
func (l *RedisAccountLocker) Client() *redis.Client {
	return l.client
}
