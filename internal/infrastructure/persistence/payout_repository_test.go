package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
)

func TestGormPayoutRepository(t *testing.T) {
	db := setupTestDB(t)
	settlements := NewGormSettlementRepository(db)
	repo := NewGormPayoutRepository(db)
	ctx := context.Background()

	s := newTestSettlement(t, uuid.New(), mustPeriod(t, marchStart, aprilStart))
	require.NoError(t, settlements.Create(ctx, s))
	require.NoError(t, s.StartProcessing(aprilStart))

	dest := settlement.Destination{Method: "bank_transfer", AccountReference: "DE89370400440532013000", HolderName: "Acme GmbH"}
	first, err := settlement.NewPayout(s, "bank_transfer", dest, aprilStart)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, first))

	second, err := settlement.NewPayout(s, "bank_transfer", dest, aprilStart.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, second))

	t.Run("find by id keeps the destination snapshot", func(t *testing.T) {
		found, err := repo.FindByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, dest, found.Destination)
		assert.Equal(t, first.ClientReference, found.ClientReference)
		assert.True(t, found.Amount.Equal(s.TotalPartnerNet))
		assert.Equal(t, settlement.PayoutStatusPending, found.Status)
	})

	t.Run("attempts are listed oldest first", func(t *testing.T) {
		attempts, err := repo.FindBySettlement(ctx, s.ID)
		require.NoError(t, err)
		require.Len(t, attempts, 2)
		assert.Equal(t, first.ID, attempts[0].ID)
		assert.Equal(t, second.ID, attempts[1].ID)
	})

	t.Run("save records the outcome", func(t *testing.T) {
		require.NoError(t, first.MarkProcessing(aprilStart))
		require.NoError(t, first.MarkPaid("prov-123", aprilStart.Add(time.Minute)))
		require.NoError(t, repo.Save(ctx, first))

		found, err := repo.FindByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, settlement.PayoutStatusPaid, found.Status)
		assert.Equal(t, "prov-123", found.ProviderReference)
		require.NotNil(t, found.ExecutedAt)
	})

	t.Run("filter by status", func(t *testing.T) {
		filter := settlement.PayoutFilter{
			SettlementID: &s.ID,
			Statuses:     []settlement.PayoutStatus{settlement.PayoutStatusPaid},
		}
		paid, err := repo.FindAll(ctx, filter)
		require.NoError(t, err)
		require.Len(t, paid, 1)
		assert.Equal(t, first.ID, paid[0].ID)

		count, err := repo.Count(ctx, settlement.PayoutFilter{PartnerID: &s.PartnerID})
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("duplicate client reference", func(t *testing.T) {
		dup := *second
		dup.ID = uuid.New()
		err := repo.Create(ctx, &dup)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})

	t.Run("save unknown payout", func(t *testing.T) {
		ghost, err := settlement.NewPayout(s, "bank_transfer", dest, aprilStart)
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Save(ctx, ghost), shared.ErrNotFound)
	})
}
