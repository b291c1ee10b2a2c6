package dunning

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/erp/settlement/internal/domain/dunning"
	"github.com/erp/settlement/internal/domain/shared"
)

type MockLogRepository struct {
	mock.Mock
}

func (m *MockLogRepository) LatestActive(ctx context.Context, accountID uuid.UUID) (*dunning.Log, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dunning.Log), args.Error(1)
}

func (m *MockLogRepository) Append(ctx context.Context, entry *dunning.Log) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLogRepository) ReverseAbove(ctx context.Context, accountID uuid.UUID, level int, at time.Time) (int64, error) {
	args := m.Called(ctx, accountID, level, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLogRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, filter shared.Filter) ([]dunning.Log, error) {
	args := m.Called(ctx, accountID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]dunning.Log), args.Error(1)
}

func (m *MockLogRepository) CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(int64), args.Error(1)
}

type MockOverrideRepository struct {
	mock.Mock
}

func (m *MockOverrideRepository) FindByAccount(ctx context.Context, accountID uuid.UUID) (*dunning.Override, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dunning.Override), args.Error(1)
}

func (m *MockOverrideRepository) Upsert(ctx context.Context, o *dunning.Override) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockOverrideRepository) DeleteByAccount(ctx context.Context, accountID uuid.UUID) error {
	args := m.Called(ctx, accountID)
	return args.Error(0)
}

type MockInvoiceStore struct {
	mock.Mock
}

func (m *MockInvoiceStore) ListOpenInvoices(ctx context.Context, accountID uuid.UUID) ([]dunning.Invoice, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]dunning.Invoice), args.Error(1)
}

func (m *MockInvoiceStore) MarkPaid(ctx context.Context, invoiceID uuid.UUID) error {
	args := m.Called(ctx, invoiceID)
	return args.Error(0)
}

func (m *MockInvoiceStore) FindByID(ctx context.Context, invoiceID uuid.UUID) (*dunning.Invoice, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dunning.Invoice), args.Error(1)
}

type MockAccountLocker struct {
	mock.Mock
	released int
}

func (m *MockAccountLocker) Lock(ctx context.Context, accountID uuid.UUID) (func(), error) {
	args := m.Called(ctx, accountID)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return func() { m.released++ }, nil
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}
