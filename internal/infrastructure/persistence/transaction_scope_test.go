package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appdunning "github.com/erp/settlement/internal/application/dunning"
	appsettlement "github.com/erp/settlement/internal/application/settlement"
	"github.com/erp/settlement/internal/domain/dunning"
	"github.com/erp/settlement/internal/domain/shared"
)

func TestGormSettlementTransactionScope_RollsBackTogether(t *testing.T) {
	db := setupTestDB(t)
	scope := NewGormSettlementTransactionScope(db)
	ledger := NewGormLedgerSource(db)
	ctx := context.Background()

	partnerID := uuid.New()
	taken := newRecord(partnerID, "10.00", marchStart)
	free := newRecord(partnerID, "20.00", marchStart.AddDate(0, 0, 1))
	require.NoError(t, ledger.Record(ctx, taken, free))
	require.NoError(t, ledger.MarkSettled(ctx, []uuid.UUID{taken.ID}, uuid.New()))

	period := mustPeriod(t, marchStart, aprilStart)
	s := newTestSettlement(t, partnerID, period)

	err := scope.Execute(ctx, func(repos appsettlement.TransactionalRepositories) error {
		if err := repos.Settlements().Create(ctx, s); err != nil {
			return err
		}
		return repos.Ledger().MarkSettled(ctx, []uuid.UUID{free.ID, taken.ID}, s.ID)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	_, err = NewGormSettlementRepository(db).FindByID(ctx, s.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound, "settlement insert rolled back")

	remaining, err := ledger.FetchUnsettled(ctx, partnerID, period)
	require.NoError(t, err)
	require.Len(t, remaining, 1, "no record stays marked")
	assert.Equal(t, free.ID, remaining[0].ID)
}

func TestGormSettlementTransactionScope_Commits(t *testing.T) {
	db := setupTestDB(t)
	scope := NewGormSettlementTransactionScope(db)
	ctx := context.Background()

	s := newTestSettlement(t, uuid.New(), mustPeriod(t, marchStart, aprilStart))
	err := scope.Execute(ctx, func(repos appsettlement.TransactionalRepositories) error {
		return repos.Settlements().Create(ctx, s)
	})
	require.NoError(t, err)

	found, err := NewGormSettlementRepository(db).FindByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, found.ID)
}

func TestGormDunningTransactionScope(t *testing.T) {
	db := setupTestDB(t)
	scope := NewGormDunningTransactionScope(db)
	logs := NewGormDunningLogRepository(db)
	ctx := context.Background()
	accountID := uuid.New()

	entry, err := dunning.NewTransition(accountID, nil, 2, dunning.OverdueSummary{}, marchStart)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = scope.Execute(ctx, func(repos appdunning.TransactionalRepositories) error {
		if err := repos.Logs().Append(ctx, entry); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	count, err := logs.CountByAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Zero(t, count)

	err = scope.Execute(ctx, func(repos appdunning.TransactionalRepositories) error {
		return repos.Logs().Append(ctx, entry)
	})
	require.NoError(t, err)
	count, err = logs.CountByAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
