package cache

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedisAccountLocker_Defaults(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: unreachableRedis.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisAccountLocker(client, LockerOptions{})
	assert.Equal(t, 30*time.Second, l.ttl)
	assert.Equal(t, 10*time.Second, l.wait)
	assert.Equal(t, defaultLockKeyPrefix, l.keyPrefix)
	assert.NotNil(t, l.logger)
	assert.Same(t, client, l.Client())
}

func TestRedisAccountLocker_ReleaseFailureIsLogged(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        unreachableRedis.Addr(),
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	core, logs := observer.New(zapcore.WarnLevel)
	l := NewRedisAccountLocker(client, LockerOptions{Logger: zap.New(core)})

	unlock := l.unlockFunc(defaultLockKeyPrefix+"acct-1", "token-1")
	require.NotPanics(t, unlock)

	entries := logs.FilterMessage("Failed to release account lock").All()
	require.Len(t, entries, 1)
	assert.Equal(t, defaultLockKeyPrefix+"acct-1", entries[0].ContextMap()["key"])
	assert.NotEmpty(t, entries[0].ContextMap()["error"])
}
