package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	appsettlement "github.com/erp/settlement/internal/application/settlement"
	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
)

// stubProvider answers every transfer with the configured result
type stubProvider struct {
	mu        sync.Mutex
	result    *settlement.TransferResult
	err       error
	status    settlement.ProviderStatus
	transfers []settlement.TransferRequest
}

func (p *stubProvider) Transfer(_ context.Context, req settlement.TransferRequest) (*settlement.TransferResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transfers = append(p.transfers, req)
	return p.result, p.err
}

func (p *stubProvider) QueryStatus(_ context.Context, _ string) (settlement.ProviderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, nil
}

func (p *stubProvider) transferCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.transfers)
}

type payoutFlow struct {
	db          *gorm.DB
	repo        *GormSettlementRepository
	payouts     *GormPayoutRepository
	settlements *appsettlement.SettlementService
	svc         *appsettlement.PayoutService
}

func newPayoutFlow(t *testing.T, provider *stubProvider) *payoutFlow {
	t.Helper()
	db := setupTestDB(t)
	clock := shared.FixedClock{At: aprilStart.AddDate(0, 0, 5)}
	settlements := NewGormSettlementRepository(db)
	payouts := NewGormPayoutRepository(db)
	fees := NewGormFeeScheduleRepository(db)
	scope := NewGormSettlementTransactionScope(db)

	return &payoutFlow{
		db:      db,
		repo:    settlements,
		payouts: payouts,
		settlements: appsettlement.NewSettlementService(settlements, payouts, fees, scope, nil, clock,
			appsettlement.SettlementConfig{CreateEmpty: true}, zap.NewNop()),
		svc: appsettlement.NewPayoutService(settlements, payouts, fees, provider, scope, nil, clock,
			appsettlement.PayoutConfig{Timeout: time.Second, ReconcileAttempts: 2, ReconcileInterval: time.Millisecond},
			zap.NewNop()),
	}
}

// generate stores a partner with a 5% card fee and returns its March settlement
func (f *payoutFlow) generate(t *testing.T) *settlement.Settlement {
	t.Helper()
	ctx := context.Background()
	fees := NewGormFeeScheduleRepository(f.db)
	partnerID := uuid.New()
	require.NoError(t, fees.SaveFeeSchedule(ctx, &settlement.FeeSchedule{
		PartnerID:       partnerID,
		PercentByMethod: map[string]decimal.Decimal{"card": decimal.NewFromInt(5)},
		FixedByMethod:   map[string]decimal.Decimal{},
	}))
	require.NoError(t, fees.SaveDestination(ctx, partnerID, settlement.Destination{
		Method:           "pix",
		AccountReference: "partner@example.com",
	}))
	require.NoError(t, NewGormLedgerSource(f.db).Record(ctx,
		newRecord(partnerID, "100.00", marchStart),
		newRecord(partnerID, "50.00", marchStart.AddDate(0, 0, 3)),
	))

	result, err := f.settlements.Generate(ctx, appsettlement.GenerateRequest{
		PartnerID:   partnerID,
		PeriodStart: marchStart,
		PeriodEnd:   aprilStart,
	})
	require.NoError(t, err)
	require.True(t, result.Created)
	return result.Settlement
}

func setupPayoutFlow(t *testing.T, provider *stubProvider) (*payoutFlow, *settlement.Settlement) {
	t.Helper()
	f := newPayoutFlow(t, provider)
	return f, f.generate(t)
}

func TestPayoutFlow_ExecutePayoutPaid(t *testing.T) {
	provider := &stubProvider{result: &settlement.TransferResult{Reference: "prov-1", Status: settlement.ProviderStatusPaid}}
	f, st := setupPayoutFlow(t, provider)
	ctx := context.Background()

	payout, err := f.svc.ExecutePayout(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.PayoutStatusPaid, payout.Status)
	assert.Equal(t, 1, provider.transferCount())
	assert.True(t, decimal.RequireFromString("142.50").Equal(provider.transfers[0].Amount))

	stored, err := f.repo.FindByID(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
	assert.Equal(t, 3, stored.Version)

	storedPayout, err := f.payouts.FindByID(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.PayoutStatusPaid, storedPayout.Status)
	assert.Equal(t, "prov-1", storedPayout.ProviderReference)

	_, err = f.svc.ExecutePayout(ctx, st.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
	assert.Equal(t, 1, provider.transferCount())
}

func TestPayoutFlow_ProviderRejectionThenRetry(t *testing.T) {
	provider := &stubProvider{err: settlement.ErrProviderRejected}
	f, st := setupPayoutFlow(t, provider)
	ctx := context.Background()

	failed, err := f.svc.ExecutePayout(ctx, st.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrProvider)
	require.NotNil(t, failed)

	stored, err := f.repo.FindByID(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusPending, stored.Status)
	assert.NotEmpty(t, stored.LastFailureReason)

	storedPayout, err := f.payouts.FindByID(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.PayoutStatusFailed, storedPayout.Status)

	provider.mu.Lock()
	provider.err = nil
	provider.result = &settlement.TransferResult{Reference: "prov-2", Status: settlement.ProviderStatusPaid}
	provider.mu.Unlock()

	paid, err := f.svc.ExecutePayout(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.PayoutStatusPaid, paid.Status)
	assert.NotEqual(t, failed.ClientReference, paid.ClientReference)

	stored, err = f.repo.FindByID(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusPaid, stored.Status)
	assert.Empty(t, stored.LastFailureReason)
}

func TestPayoutFlow_MarkPaidManually(t *testing.T) {
	provider := &stubProvider{}
	f, st := setupPayoutFlow(t, provider)
	ctx := context.Background()

	payout, err := f.svc.MarkSettlementPaidManually(ctx, appsettlement.ManualPaymentRequest{
		SettlementID: st.ID,
		Channel:      "bank_slip",
	})
	require.NoError(t, err)
	assert.Equal(t, settlement.PayoutMethodManual, payout.PayoutMethod)
	assert.Equal(t, "bank_slip", payout.Channel)
	assert.Zero(t, provider.transferCount())

	stored, err := f.repo.FindByID(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusPaid, stored.Status)

	storedPayout, err := f.payouts.FindByID(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.PayoutStatusPaid, storedPayout.Status)

	_, err = f.svc.MarkSettlementPaidManually(ctx, appsettlement.ManualPaymentRequest{SettlementID: st.ID, Channel: "cash"})
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}
