package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/settlement/internal/domain/dunning"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/cache"
)

func TestDunning_ConcurrentEvaluateWritesOneTransition(t *testing.T) {
	tdb := NewSharedTestDB(t)
	tdb.CleanTables()
	client := NewRedisClient(t)

	accountID := uuid.New()
	issueInvoice(t, tdb, accountID, "120.00", 40)

	// two lockers on one Redis stand in for two service instances
	instances := []*cache.RedisAccountLocker{
		cache.NewRedisAccountLocker(client, cache.LockerOptions{WaitTimeout: 10 * time.Second}),
		cache.NewRedisAccountLocker(client, cache.LockerOptions{WaitTimeout: 10 * time.Second}),
	}

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changed int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		svc := newDunningService(t, tdb, instances[i%len(instances)])
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			result, err := svc.Evaluate(context.Background(), accountID)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, dunning.LevelBlocked, result.Level)
			mu.Lock()
			defer mu.Unlock()
			if result.Changed {
				changed++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, changed)
	assert.EqualValues(t, 1, tdb.Count("dunning_logs", "account_id = ?", accountID))
}

func TestDunning_LockHeldElsewhere(t *testing.T) {
	tdb := NewSharedTestDB(t)
	tdb.CleanTables()
	client := NewRedisClient(t)

	accountID := uuid.New()
	issueInvoice(t, tdb, accountID, "50.00", 20)

	holder := cache.NewRedisAccountLocker(client, cache.LockerOptions{})
	unlock, err := holder.Lock(context.Background(), accountID)
	require.NoError(t, err)

	impatient := cache.NewRedisAccountLocker(client, cache.LockerOptions{WaitTimeout: 150 * time.Millisecond})
	svc := newDunningService(t, tdb, impatient)

	_, err = svc.Evaluate(context.Background(), accountID)
	require.Error(t, err)
	assert.Equal(t, shared.CodeLockNotAcquired, shared.ErrorCode(err))
	assert.EqualValues(t, 0, tdb.Count("dunning_logs", "account_id = ?", accountID))

	unlock()
	result, err := svc.Evaluate(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, dunning.LevelReadOnly, result.Level)
}

func TestDunning_PaymentReversesRestrictions(t *testing.T) {
	tdb := NewSharedTestDB(t)
	tdb.CleanTables()
	client := NewRedisClient(t)

	accountID := uuid.New()
	invoiceID := issueInvoice(t, tdb, accountID, "300.00", 45)
	svc := newDunningService(t, tdb, cache.NewRedisAccountLocker(client, cache.LockerOptions{}))
	ctx := context.Background()

	result, err := svc.Evaluate(ctx, accountID)
	require.NoError(t, err)
	require.Equal(t, dunning.LevelBlocked, result.Level)

	state, err := svc.GetAccessState(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, state.IsBlocked)

	result, err = svc.MarkInvoicePaid(ctx, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, dunning.LevelNone, result.Level)
	assert.True(t, result.Changed)
	assert.Positive(t, result.Reversed)

	state, err = svc.GetAccessState(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, dunning.AccessStateNormal, state.State)

	// the history is append-only; the blocking entry is reversed, not removed
	assert.EqualValues(t, 2, tdb.Count("dunning_logs", "account_id = ?", accountID))
	assert.EqualValues(t, 1, tdb.Count("dunning_logs", "account_id = ? AND reversed_at IS NOT NULL", accountID))
}

func TestDunning_EvaluateAccountsBatch(t *testing.T) {
	tdb := NewSharedTestDB(t)
	tdb.CleanTables()
	client := NewRedisClient(t)

	warned, blocked, current := uuid.New(), uuid.New(), uuid.New()
	issueInvoice(t, tdb, warned, "10.00", 3)
	issueInvoice(t, tdb, blocked, "10.00", 31)
	issueInvoice(t, tdb, current, "10.00", -5)

	svc := newDunningService(t, tdb, cache.NewRedisAccountLocker(client, cache.LockerOptions{}))
	results := svc.EvaluateAccounts(context.Background(), []uuid.UUID{warned, blocked, current, blocked})
	require.Len(t, results, 3)

	levels := make(map[uuid.UUID]int, len(results))
	for _, r := range results {
		assert.Empty(t, r.Error)
		levels[r.AccountID] = r.Level
	}
	assert.Equal(t, dunning.LevelWarning, levels[warned])
	assert.Equal(t, dunning.LevelBlocked, levels[blocked])
	assert.Equal(t, dunning.LevelNone, levels[current])
}
