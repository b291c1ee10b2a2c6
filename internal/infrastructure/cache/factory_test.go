package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/erp/settlement/internal/infrastructure/config"
)

// unreachableRedis points at a port nothing listens on
var unreachableRedis = config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}

func TestLockerFactory_RedisDisabled(t *testing.T) {
	f := NewLockerFactory(config.RedisConfig{}, config.DunningConfig{LockWaitTimeout: time.Second})

	locker, closeFn, err := f.CreateLocker(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &InMemoryAccountLocker{}, locker)
	assert.NoError(t, closeFn())
}

func TestLockerFactory_FallbackWhenUnreachable(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := NewLockerFactory(unreachableRedis, config.DunningConfig{}, WithLogger(zap.New(core)))

	locker, _, err := f.CreateLocker(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &InMemoryAccountLocker{}, locker)
	assert.Equal(t, 1, logs.FilterMessageSnippet("falling back").Len())
}

func TestLockerFactory_NoFallback(t *testing.T) {
	f := NewLockerFactory(unreachableRedis, config.DunningConfig{}, WithInMemoryFallback(false))

	locker, _, err := f.CreateLocker(context.Background())
	require.Error(t, err)
	assert.Nil(t, locker)
	assert.Contains(t, err.Error(), "Redis required")
}
