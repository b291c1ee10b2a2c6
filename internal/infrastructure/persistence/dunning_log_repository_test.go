package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/settlement/internal/domain/dunning"
	"github.com/erp/settlement/internal/domain/shared"
)

func appendTransition(t *testing.T, repo *GormDunningLogRepository, accountID uuid.UUID, to int, at time.Time) *dunning.Log {
	t.Helper()
	ctx := context.Background()
	prev, err := repo.LatestActive(ctx, accountID)
	require.NoError(t, err)
	entry, err := dunning.NewTransition(accountID, prev, to, dunning.OverdueSummary{}, at)
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, entry))
	return entry
}

func TestGormDunningLogRepository_History(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormDunningLogRepository(db)
	ctx := context.Background()
	accountID := uuid.New()

	latest, err := repo.LatestActive(ctx, accountID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	appendTransition(t, repo, accountID, 1, marchStart)
	appendTransition(t, repo, accountID, 2, marchStart.AddDate(0, 0, 15))
	third := appendTransition(t, repo, accountID, 3, marchStart.AddDate(0, 0, 30))

	latest, err = repo.LatestActive(ctx, accountID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, third.ID, latest.ID)
	assert.Equal(t, int64(3), latest.Sequence)

	t.Run("partial recovery reverses only higher levels", func(t *testing.T) {
		now := aprilStart
		drop := appendTransition(t, repo, accountID, 1, now)
		assert.Equal(t, int64(4), drop.Sequence)

		reversed, err := repo.ReverseAbove(ctx, accountID, 1, now)
		require.NoError(t, err)
		assert.Equal(t, int64(2), reversed)

		logs, err := repo.ListByAccount(ctx, accountID, shared.Filter{PageSize: 10})
		require.NoError(t, err)
		require.Len(t, logs, 4)
		assert.Equal(t, int64(4), logs[0].Sequence, "newest first")
		assert.False(t, logs[0].IsReversed())
		assert.True(t, logs[1].IsReversed())
		assert.True(t, logs[2].IsReversed())
		assert.False(t, logs[3].IsReversed(), "level 1 entry stays active")

		latest, err := repo.LatestActive(ctx, accountID)
		require.NoError(t, err)
		assert.Equal(t, drop.ID, latest.ID)
	})

	t.Run("reversing twice touches nothing", func(t *testing.T) {
		reversed, err := repo.ReverseAbove(ctx, accountID, 1, aprilStart.Add(time.Hour))
		require.NoError(t, err)
		assert.Zero(t, reversed)
	})

	t.Run("count and paging", func(t *testing.T) {
		count, err := repo.CountByAccount(ctx, accountID)
		require.NoError(t, err)
		assert.Equal(t, int64(4), count)

		page, err := repo.ListByAccount(ctx, accountID, shared.Filter{Page: 2, PageSize: 3})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, int64(1), page[0].Sequence)
	})
}

func TestGormDunningLogRepository_DuplicateSequence(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormDunningLogRepository(db)
	ctx := context.Background()
	accountID := uuid.New()

	first, err := dunning.NewTransition(accountID, nil, 1, dunning.OverdueSummary{}, marchStart)
	require.NoError(t, err)
	racer, err := dunning.NewTransition(accountID, nil, 2, dunning.OverdueSummary{}, marchStart)
	require.NoError(t, err)

	require.NoError(t, repo.Append(ctx, first))
	err = repo.Append(ctx, racer)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	assert.Equal(t, shared.CodeInvalidInput, shared.ErrorCode(repo.Append(ctx, nil)))
}
