package settlement

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
)

// =============================================================================
// Repository mocks
// =============================================================================

type MockSettlementRepository struct {
	mock.Mock
}

func (m *MockSettlementRepository) FindByID(ctx context.Context, id uuid.UUID) (*settlement.Settlement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) FindActiveByPeriod(ctx context.Context, partnerID uuid.UUID, period settlement.Period) (*settlement.Settlement, error) {
	args := m.Called(ctx, partnerID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) FindOverlapping(ctx context.Context, partnerID uuid.UUID, period settlement.Period) ([]settlement.Settlement, error) {
	args := m.Called(ctx, partnerID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) FindAll(ctx context.Context, filter settlement.Filter) ([]settlement.Settlement, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) Count(ctx context.Context, filter settlement.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSettlementRepository) Create(ctx context.Context, s *settlement.Settlement) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSettlementRepository) SaveWithLock(ctx context.Context, s *settlement.Settlement) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

type MockPayoutRepository struct {
	mock.Mock
}

func (m *MockPayoutRepository) FindByID(ctx context.Context, id uuid.UUID) (*settlement.Payout, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Payout), args.Error(1)
}

func (m *MockPayoutRepository) FindBySettlement(ctx context.Context, settlementID uuid.UUID) ([]settlement.Payout, error) {
	args := m.Called(ctx, settlementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.Payout), args.Error(1)
}

func (m *MockPayoutRepository) FindAll(ctx context.Context, filter settlement.PayoutFilter) ([]settlement.Payout, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.Payout), args.Error(1)
}

func (m *MockPayoutRepository) Count(ctx context.Context, filter settlement.PayoutFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPayoutRepository) Create(ctx context.Context, p *settlement.Payout) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPayoutRepository) Save(ctx context.Context, p *settlement.Payout) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

type MockLedgerSource struct {
	mock.Mock
}

func (m *MockLedgerSource) FetchUnsettled(ctx context.Context, partnerID uuid.UUID, period settlement.Period) ([]settlement.TransactionRecord, error) {
	args := m.Called(ctx, partnerID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.TransactionRecord), args.Error(1)
}

func (m *MockLedgerSource) MarkSettled(ctx context.Context, transactionIDs []uuid.UUID, settlementID uuid.UUID) error {
	args := m.Called(ctx, transactionIDs, settlementID)
	return args.Error(0)
}

// =============================================================================
// Collaborator mocks
// =============================================================================

type MockFeeScheduleProvider struct {
	mock.Mock
}

func (m *MockFeeScheduleProvider) GetFeeSchedule(ctx context.Context, partnerID uuid.UUID) (*settlement.FeeSchedule, error) {
	args := m.Called(ctx, partnerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.FeeSchedule), args.Error(1)
}

type MockDestinationResolver struct {
	mock.Mock
}

func (m *MockDestinationResolver) GetDestination(ctx context.Context, partnerID uuid.UUID) (*settlement.Destination, error) {
	args := m.Called(ctx, partnerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Destination), args.Error(1)
}

type MockPayoutProvider struct {
	mock.Mock
}

func (m *MockPayoutProvider) Transfer(ctx context.Context, req settlement.TransferRequest) (*settlement.TransferResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.TransferResult), args.Error(1)
}

func (m *MockPayoutProvider) QueryStatus(ctx context.Context, reference string) (settlement.ProviderStatus, error) {
	args := m.Called(ctx, reference)
	return args.Get(0).(settlement.ProviderStatus), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

type MockStatementRenderer struct {
	mock.Mock
}

func (m *MockStatementRenderer) RenderStatementPDF(st *settlement.Settlement, payouts []settlement.Payout) ([]byte, error) {
	args := m.Called(st, payouts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockStatementArchive struct {
	mock.Mock
}

func (m *MockStatementArchive) Put(ctx context.Context, key string, body []byte, contentType string) error {
	args := m.Called(ctx, key, body, contentType)
	return args.Error(0)
}
