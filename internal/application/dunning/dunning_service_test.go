package dunning

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/erp/settlement/internal/domain/dunning"
	"github.com/erp/settlement/internal/domain/shared"
)

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	invoices  *MockInvoiceStore
	logs      *MockLogRepository
	overrides *MockOverrideRepository
	locker    *MockAccountLocker
	events    *MockEventPublisher
	service   *DunningService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		invoices:  new(MockInvoiceStore),
		logs:      new(MockLogRepository),
		overrides: new(MockOverrideRepository),
		locker:    new(MockAccountLocker),
		events:    new(MockEventPublisher),
	}
	svc, err := NewDunningService(
		f.invoices, f.logs, f.overrides, f.locker,
		NewNoOpTransactionScope(f.logs),
		f.events,
		shared.FixedClock{At: testNow},
		Config{Policy: dunning.DefaultPolicy(), MaxParallel: 2},
		nil,
	)
	require.NoError(t, err)
	f.service = svc
	return f
}

func overdueInvoice(accountID uuid.UUID, days int) dunning.Invoice {
	return dunning.Invoice{
		ID:         uuid.New(),
		AccountID:  accountID,
		Amount:     decimal.NewFromInt(200),
		AmountPaid: decimal.Zero,
		DueDate:    testNow.AddDate(0, 0, -days),
		Status:     dunning.InvoiceStatusOverdue,
	}
}

func TestNewDunningService_RejectsInvalidPolicy(t *testing.T) {
	_, err := NewDunningService(nil, nil, nil, nil, nil, nil, nil,
		Config{Policy: dunning.Policy{Thresholds: []int{30, 15}}}, nil)
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
}

func TestEvaluate_EscalatesAndRecoversAfterPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := uuid.New()
	inv := overdueInvoice(accountID, 20)

	f.locker.On("Lock", mock.Anything, accountID).Return(nil)
	f.overrides.On("FindByAccount", mock.Anything, accountID).Return(nil, nil)
	f.events.On("Publish", mock.Anything, mock.Anything).Return(nil)

	// First evaluation: 20 days overdue with a 15 day grace reaches read-only.
	f.invoices.On("ListOpenInvoices", mock.Anything, accountID).Return([]dunning.Invoice{inv}, nil).Once()
	f.logs.On("LatestActive", mock.Anything, accountID).Return(nil, nil).Once()
	var escalation *dunning.Log
	f.logs.On("Append", mock.Anything, mock.MatchedBy(func(l *dunning.Log) bool {
		return l.Level == dunning.LevelReadOnly
	})).Run(func(args mock.Arguments) {
		escalation = args.Get(1).(*dunning.Log)
	}).Return(nil).Once()

	result, err := f.service.Evaluate(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, dunning.LevelReadOnly, result.Level)
	assert.Equal(t, dunning.LevelNone, result.PreviousLevel)
	assert.Equal(t, dunning.AccessStateReadOnly, result.AccessState.State)
	assert.True(t, result.AccessState.IsReadOnly)
	assert.False(t, result.AccessState.IsBlocked)
	require.NotNil(t, escalation)
	assert.Equal(t, int64(1), escalation.Sequence)
	assert.Equal(t, dunning.ActionEscalatedToReadOnly, escalation.Action)
	assert.Equal(t, 20, result.Summary.MaxDaysOverdue)

	// The invoice is paid; the account drops back to normal and the
	// read-only restriction is reversed.
	f.invoices.On("FindByID", mock.Anything, inv.ID).Return(&inv, nil).Once()
	f.invoices.On("MarkPaid", mock.Anything, inv.ID).Return(nil).Once()
	f.invoices.On("ListOpenInvoices", mock.Anything, accountID).Return([]dunning.Invoice{}, nil).Once()
	f.logs.On("LatestActive", mock.Anything, accountID).Return(escalation, nil).Once()
	f.logs.On("Append", mock.Anything, mock.MatchedBy(func(l *dunning.Log) bool {
		return l.Level == dunning.LevelNone && l.Sequence == 2 && l.PreviousLevel == dunning.LevelReadOnly
	})).Return(nil).Once()
	f.logs.On("ReverseAbove", mock.Anything, accountID, dunning.LevelNone, testNow).Return(int64(1), nil).Once()

	result, err = f.service.MarkInvoicePaid(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, dunning.LevelNone, result.Level)
	assert.Equal(t, int64(1), result.Reversed)
	assert.Equal(t, dunning.ActionRevertedToNormal, result.Entry.Action)
	assert.Equal(t, dunning.AccessStateNormal, result.AccessState.State)
	assert.Equal(t, 2, f.locker.released)

	f.invoices.AssertExpectations(t)
	f.logs.AssertExpectations(t)
	f.events.AssertNumberOfCalls(t, "Publish", 2)
}

func TestEvaluate_UnchangedLevelWritesNothing(t *testing.T) {
	f := newFixture(t)
	accountID := uuid.New()
	latest := &dunning.Log{AccountID: accountID, Sequence: 3, Level: dunning.LevelWarning}

	f.locker.On("Lock", mock.Anything, accountID).Return(nil)
	f.invoices.On("ListOpenInvoices", mock.Anything, accountID).
		Return([]dunning.Invoice{overdueInvoice(accountID, 3)}, nil)
	f.logs.On("LatestActive", mock.Anything, accountID).Return(latest, nil)
	f.overrides.On("FindByAccount", mock.Anything, accountID).Return(nil, nil)

	result, err := f.service.Evaluate(context.Background(), accountID)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, dunning.LevelWarning, result.Level)
	assert.Nil(t, result.Entry)
	f.logs.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	f.events.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestEvaluate_PartialDropReversesOnlyHigherEntries(t *testing.T) {
	f := newFixture(t)
	accountID := uuid.New()
	latest := &dunning.Log{AccountID: accountID, Sequence: 4, Level: dunning.LevelBlocked}

	f.locker.On("Lock", mock.Anything, accountID).Return(nil)
	f.invoices.On("ListOpenInvoices", mock.Anything, accountID).
		Return([]dunning.Invoice{overdueInvoice(accountID, 5)}, nil)
	f.logs.On("LatestActive", mock.Anything, accountID).Return(latest, nil)
	f.logs.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.logs.On("ReverseAbove", mock.Anything, accountID, dunning.LevelWarning, testNow).Return(int64(2), nil)
	f.overrides.On("FindByAccount", mock.Anything, accountID).Return(nil, nil)
	f.events.On("Publish", mock.Anything, mock.Anything).Return(nil)

	result, err := f.service.Evaluate(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, dunning.LevelWarning, result.Level)
	assert.Equal(t, dunning.ActionReducedToWarning, result.Entry.Action)
	assert.Equal(t, int64(5), result.Entry.Sequence)
	assert.Equal(t, int64(2), result.Reversed)
}

func TestEvaluate_EscalationDoesNotReverse(t *testing.T) {
	f := newFixture(t)
	accountID := uuid.New()
	latest := &dunning.Log{AccountID: accountID, Sequence: 1, Level: dunning.LevelWarning}

	f.locker.On("Lock", mock.Anything, accountID).Return(nil)
	f.invoices.On("ListOpenInvoices", mock.Anything, accountID).
		Return([]dunning.Invoice{overdueInvoice(accountID, 45)}, nil)
	f.logs.On("LatestActive", mock.Anything, accountID).Return(latest, nil)
	f.logs.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.overrides.On("FindByAccount", mock.Anything, accountID).Return(nil, nil)
	f.events.On("Publish", mock.Anything, mock.Anything).Return(nil)

	result, err := f.service.Evaluate(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, dunning.LevelBlocked, result.Level)
	assert.True(t, result.AccessState.IsBlocked)
	f.logs.AssertNotCalled(t, "ReverseAbove", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEvaluate_ReevaluatesOnceAfterSequenceConflict(t *testing.T) {
	f := newFixture(t)
	accountID := uuid.New()
	winner := &dunning.Log{AccountID: accountID, Sequence: 1, Level: dunning.LevelWarning}

	f.locker.On("Lock", mock.Anything, accountID).Return(nil)
	f.invoices.On("ListOpenInvoices", mock.Anything, accountID).
		Return([]dunning.Invoice{overdueInvoice(accountID, 2)}, nil)
	f.logs.On("LatestActive", mock.Anything, accountID).Return(nil, nil).Once()
	f.logs.On("Append", mock.Anything, mock.Anything).Return(shared.ErrConcurrencyConflict).Once()
	f.logs.On("LatestActive", mock.Anything, accountID).Return(winner, nil).Once()
	f.overrides.On("FindByAccount", mock.Anything, accountID).Return(nil, nil)

	result, err := f.service.Evaluate(context.Background(), accountID)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, dunning.LevelWarning, result.Level)
	f.logs.AssertNumberOfCalls(t, "Append", 1)
}

func TestEvaluate_GivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newFixture(t)
	accountID := uuid.New()

	f.locker.On("Lock", mock.Anything, accountID).Return(nil)
	f.invoices.On("ListOpenInvoices", mock.Anything, accountID).
		Return([]dunning.Invoice{overdueInvoice(accountID, 2)}, nil)
	f.logs.On("LatestActive", mock.Anything, accountID).Return(nil, nil)
	f.logs.On("Append", mock.Anything, mock.Anything).Return(shared.ErrConcurrencyConflict)

	_, err := f.service.Evaluate(context.Background(), accountID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConcurrencyConflict))
	f.logs.AssertNumberOfCalls(t, "Append", maxEvaluateAttempts)
	assert.Equal(t, 1, f.locker.released)
}

func TestEvaluate_InvoiceStoreFailureIsDataInconsistency(t *testing.T) {
	f := newFixture(t)
	accountID := uuid.New()

	f.locker.On("Lock", mock.Anything, accountID).Return(nil)
	f.invoices.On("ListOpenInvoices", mock.Anything, accountID).Return(nil, errors.New("connection reset"))

	_, err := f.service.Evaluate(context.Background(), accountID)
	assert.Equal(t, shared.CodeDataInconsistency, shared.ErrorCode(err))
	f.logs.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestEvaluate_LockFailure(t *testing.T) {
	f := newFixture(t)
	accountID := uuid.New()
	f.locker.On("Lock", mock.Anything, accountID).Return(context.DeadlineExceeded)

	_, err := f.service.Evaluate(context.Background(), accountID)
	assert.Equal(t, shared.CodeLockNotAcquired, shared.ErrorCode(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	f.invoices.AssertNotCalled(t, "ListOpenInvoices", mock.Anything, mock.Anything)
}

func TestEvaluate_PublishFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	accountID := uuid.New()

	f.locker.On("Lock", mock.Anything, accountID).Return(nil)
	f.invoices.On("ListOpenInvoices", mock.Anything, accountID).
		Return([]dunning.Invoice{overdueInvoice(accountID, 1)}, nil)
	f.logs.On("LatestActive", mock.Anything, accountID).Return(nil, nil)
	f.logs.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.overrides.On("FindByAccount", mock.Anything, accountID).Return(nil, nil)
	f.events.On("Publish", mock.Anything, mock.Anything).Return(errors.New("bus closed"))

	result, err := f.service.Evaluate(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, dunning.LevelWarning, result.Level)
}

func TestEvaluateAccounts_CollectsPerAccountResults(t *testing.T) {
	f := newFixture(t)
	ok := uuid.New()
	broken := uuid.New()

	f.locker.On("Lock", mock.Anything, mock.Anything).Return(nil)
	f.invoices.On("ListOpenInvoices", mock.Anything, ok).Return([]dunning.Invoice{}, nil)
	f.invoices.On("ListOpenInvoices", mock.Anything, broken).Return(nil, errors.New("timeout"))
	f.logs.On("LatestActive", mock.Anything, ok).Return(nil, nil)
	f.overrides.On("FindByAccount", mock.Anything, ok).Return(nil, nil)

	results := f.service.EvaluateAccounts(context.Background(), []uuid.UUID{ok, broken, ok})
	require.Len(t, results, 2)
	assert.Equal(t, ok, results[0].AccountID)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, dunning.AccessStateNormal, results[0].AccessState.State)
	assert.Equal(t, broken, results[1].AccountID)
	assert.NotEmpty(t, results[1].Error)
}

func TestMarkInvoicePaid_CanceledInvoice(t *testing.T) {
	f := newFixture(t)
	inv := overdueInvoice(uuid.New(), 10)
	inv.Status = dunning.InvoiceStatusCanceled
	f.invoices.On("FindByID", mock.Anything, inv.ID).Return(&inv, nil)

	_, err := f.service.MarkInvoicePaid(context.Background(), inv.ID)
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
	f.invoices.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything)
}

func TestMarkInvoicePaid_NotFound(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.invoices.On("FindByID", mock.Anything, id).Return(nil, shared.ErrNotFound)

	_, err := f.service.MarkInvoicePaid(context.Background(), id)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestGetAccessState(t *testing.T) {
	accountID := uuid.New()
	future := testNow.Add(24 * time.Hour)

	tests := []struct {
		name     string
		latest   *dunning.Log
		override *dunning.Override
		expected dunning.AccessStateName
		forced   bool
	}{
		{name: "no history", expected: dunning.AccessStateNormal},
		{name: "warning stays normal", latest: &dunning.Log{Level: dunning.LevelWarning}, expected: dunning.AccessStateNormal},
		{name: "blocked", latest: &dunning.Log{Level: dunning.LevelBlocked}, expected: dunning.AccessStateBlocked},
		{
			name:     "active override wins",
			latest:   &dunning.Log{Level: dunning.LevelBlocked},
			override: &dunning.Override{AccountID: accountID, State: dunning.AccessStateNormal, ExpiresAt: &future},
			expected: dunning.AccessStateNormal,
			forced:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.logs.On("LatestActive", mock.Anything, accountID).Return(tt.latest, nil)
			f.overrides.On("FindByAccount", mock.Anything, accountID).Return(tt.override, nil)

			state, err := f.service.GetAccessState(context.Background(), accountID)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, state.State)
			assert.Equal(t, tt.forced, state.Overridden)
		})
	}
}

func TestListLogs(t *testing.T) {
	f := newFixture(t)
	accountID := uuid.New()
	entries := []dunning.Log{{AccountID: accountID, Sequence: 2}, {AccountID: accountID, Sequence: 1}}

	f.logs.On("ListByAccount", mock.Anything, accountID, mock.Anything).Return(entries, nil)
	f.logs.On("CountByAccount", mock.Anything, accountID).Return(int64(2), nil)

	page, err := f.service.ListLogs(context.Background(), accountID, shared.Filter{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, int64(2), page.Total)
}

func TestAccessOverrides(t *testing.T) {
	f := newFixture(t)
	accountID := uuid.New()

	f.overrides.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	f.overrides.On("DeleteByAccount", mock.Anything, accountID).Return(nil)

	o, err := f.service.SetAccessOverride(context.Background(), SetOverrideRequest{
		AccountID: accountID,
		State:     dunning.AccessStateNormal,
		Reason:    "payment plan agreed",
	})
	require.NoError(t, err)
	assert.Equal(t, dunning.AccessStateNormal, o.State)

	_, err = f.service.SetAccessOverride(context.Background(), SetOverrideRequest{
		AccountID: accountID,
		State:     "suspended",
		Reason:    "x",
	})
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))

	require.NoError(t, f.service.ClearAccessOverride(context.Background(), accountID))
	f.overrides.AssertNumberOfCalls(t, "Upsert", 1)
}

func TestEvaluate_SameAccountNeverInterleaves(t *testing.T) {
	accountID := uuid.New()
	logs := &memoryLogs{}
	invoices := new(MockInvoiceStore)
	overrides := new(MockOverrideRepository)
	invoices.On("ListOpenInvoices", mock.Anything, accountID).
		Return([]dunning.Invoice{overdueInvoice(accountID, 40)}, nil)
	overrides.On("FindByAccount", mock.Anything, accountID).Return(nil, nil)

	svc, err := NewDunningService(invoices, logs, overrides, &mutexLocker{},
		NewNoOpTransactionScope(logs), nil, shared.FixedClock{At: testNow},
		Config{Policy: dunning.DefaultPolicy()}, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Evaluate(context.Background(), accountID)
		}()
	}
	wg.Wait()

	assert.Len(t, logs.entries, 1)
}

// memoryLogs is a minimal in-memory log repository with a sequence constraint
type memoryLogs struct {
	mu      sync.Mutex
	entries []dunning.Log
}

func (m *memoryLogs) LatestActive(_ context.Context, accountID uuid.UUID) (*dunning.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].AccountID == accountID && m.entries[i].ReversedAt == nil {
			e := m.entries[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (m *memoryLogs) Append(_ context.Context, entry *dunning.Log) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.AccountID == entry.AccountID && e.Sequence == entry.Sequence {
			return shared.ErrConcurrencyConflict
		}
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryLogs) ReverseAbove(_ context.Context, accountID uuid.UUID, level int, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.entries {
		e := &m.entries[i]
		if e.AccountID == accountID && e.Level > level && e.ReversedAt == nil {
			e.ReversedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *memoryLogs) ListByAccount(context.Context, uuid.UUID, shared.Filter) ([]dunning.Log, error) {
	return nil, nil
}

func (m *memoryLogs) CountByAccount(context.Context, uuid.UUID) (int64, error) {
	return 0, nil
}

type mutexLocker struct {
	mu sync.Mutex
}

func (l *mutexLocker) Lock(context.Context, uuid.UUID) (func(), error) {
	l.mu.Lock()
	return l.mu.Unlock, nil
}
