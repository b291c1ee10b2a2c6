package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dunningapp "github.com/erp/settlement/internal/application/dunning"
	settlementapp "github.com/erp/settlement/internal/application/settlement"
	"github.com/erp/settlement/internal/domain/dunning"
	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/auth"
	"github.com/erp/settlement/internal/infrastructure/cache"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/erp/settlement/internal/infrastructure/export"
	"github.com/erp/settlement/internal/infrastructure/persistence"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/erp/settlement/internal/interfaces/http/middleware"
	"github.com/erp/settlement/internal/interfaces/http/router"
	"github.com/erp/settlement/tests/testutil"
)

var (
	marchStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	aprilStart = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	testNow    = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
)

// fakeProvider answers transfers and status queries from canned values
type fakeProvider struct {
	mu        sync.Mutex
	transfer  func(req settlement.TransferRequest) (*settlement.TransferResult, error)
	status    settlement.ProviderStatus
	statusErr error
	transfers int
}

func (p *fakeProvider) Transfer(_ context.Context, req settlement.TransferRequest) (*settlement.TransferResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transfers++
	if p.transfer == nil {
		return &settlement.TransferResult{Reference: "prov-" + req.ClientReference, Status: settlement.ProviderStatusPaid}, nil
	}
	return p.transfer(req)
}

func (p *fakeProvider) QueryStatus(_ context.Context, _ string) (settlement.ProviderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.statusErr
}

func (p *fakeProvider) set(fn func(*fakeProvider)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

// testEnv is the HTTP API over real services and an in-memory SQLite database
type testEnv struct {
	t        *testing.T
	engine   *gin.Engine
	db       *gorm.DB
	ledger   *persistence.GormLedgerSource
	fees     *persistence.GormFeeScheduleRepository
	invoices *persistence.GormInvoiceStore
	provider *fakeProvider
	jwt      *auth.JWTService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := persistence.Open(sqlite.Open(":memory:"), nil)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	clock := shared.FixedClock{At: testNow}
	settlements := persistence.NewGormSettlementRepository(db)
	payouts := persistence.NewGormPayoutRepository(db)
	fees := persistence.NewGormFeeScheduleRepository(db)
	invoices := persistence.NewGormInvoiceStore(db)
	provider := &fakeProvider{status: settlement.ProviderStatusPending}

	settlementService := settlementapp.NewSettlementService(
		settlements, payouts, fees, persistence.NewGormSettlementTransactionScope(db),
		nil, clock, settlementapp.SettlementConfig{CreateEmpty: true}, nil,
	)
	payoutService := settlementapp.NewPayoutService(
		settlements, payouts, fees, provider, persistence.NewGormSettlementTransactionScope(db),
		nil, clock, settlementapp.PayoutConfig{Timeout: time.Second, ReconcileAttempts: 1}, nil,
	)
	dunningService, err := dunningapp.NewDunningService(
		invoices,
		persistence.NewGormDunningLogRepository(db),
		persistence.NewGormOverrideRepository(db),
		cache.NewInMemoryAccountLocker(time.Second),
		persistence.NewGormDunningTransactionScope(db),
		nil, clock, dunningapp.Config{Policy: dunning.DefaultPolicy()}, nil,
	)
	require.NoError(t, err)

	jwtService := auth.NewJWTService(config.JWTConfig{
		Enabled: true,
		Secret:  "handler-test-secret-at-least-32-chars",
		Issuer:  "settlement-test",
	})

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.GET("/health", NewHealthHandler("settlement-engine", "test").Health)

	r := router.NewRouter(engine)
	r.Use(
		middleware.JWTAuthMiddleware(jwtService),
		middleware.AccessGuard(middleware.AccessGuardConfig{
			Resolver:          dunningService,
			BlockedReadRoutes: middleware.DefaultBlockedReadRoutes(r.APIPrefix()),
		}),
	)
	r.Register(NewSettlementHandler(settlementService, export.NewRenderer()).Routes()).
		Register(NewPayoutHandler(payoutService).Routes()).
		Register(NewDunningHandler(dunningService).Routes())
	r.Setup()

	return &testEnv{
		t:        t,
		engine:   engine,
		db:       db,
		ledger:   persistence.NewGormLedgerSource(db),
		fees:     fees,
		invoices: invoices,
		provider: provider,
		jwt:      jwtService,
	}
}

func (e *testEnv) operatorToken() string {
	return e.token(auth.IssueInput{Subject: "ops", Roles: []string{auth.RoleOperator}})
}

func (e *testEnv) partnerToken(partnerID uuid.UUID) string {
	return e.token(auth.IssueInput{Subject: "partner", PartnerID: partnerID, Roles: []string{auth.RolePartner}})
}

func (e *testEnv) accountToken(accountID uuid.UUID) string {
	return e.token(auth.IssueInput{Subject: "account", AccountID: accountID, Roles: []string{auth.RoleAccount}})
}

func (e *testEnv) token(input auth.IssueInput) string {
	e.t.Helper()
	token, _, err := e.jwt.Issue(input)
	require.NoError(e.t, err)
	return token
}

// seedPartner gives the partner a 10% card fee, a bank destination and the
// given March card transactions
func (e *testEnv) seedPartner(partnerID uuid.UUID, amounts ...string) {
	e.t.Helper()
	ctx := context.Background()
	require.NoError(e.t, e.fees.SaveFeeSchedule(ctx, &settlement.FeeSchedule{
		PartnerID:       partnerID,
		PercentByMethod: map[string]decimal.Decimal{"card": decimal.NewFromInt(10)},
		FixedByMethod:   map[string]decimal.Decimal{},
	}))
	require.NoError(e.t, e.fees.SaveDestination(ctx, partnerID, settlement.Destination{
		Method:           "bank_transfer",
		AccountReference: "DE89370400440532013000",
		HolderName:       "Partner GmbH",
	}))
	records := make([]settlement.TransactionRecord, 0, len(amounts))
	for i, amount := range amounts {
		records = append(records, settlement.TransactionRecord{
			ID:            uuid.New(),
			PartnerID:     partnerID,
			TenantID:      uuid.New(),
			GrossAmount:   decimal.RequireFromString(amount),
			PaymentMethod: "card",
			OccurredAt:    marchStart.Add(time.Duration(i+1) * 24 * time.Hour),
		})
	}
	if len(records) > 0 {
		require.NoError(e.t, e.ledger.Record(ctx, records...))
	}
}

// issueInvoice stores an open invoice that became due daysOverdue days ago
func (e *testEnv) issueInvoice(accountID uuid.UUID, amount string, daysOverdue int) uuid.UUID {
	e.t.Helper()
	inv := &dunning.Invoice{
		AccountID:  accountID,
		Amount:     decimal.RequireFromString(amount),
		AmountPaid: decimal.Zero,
		DueDate:    testNow.AddDate(0, 0, -daysOverdue),
		Status:     dunning.InvoiceStatusPending,
	}
	require.NoError(e.t, e.invoices.Issue(context.Background(), inv))
	return inv.ID
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	return testutil.DoJSON(e.t, e.engine, method, path, token, body)
}

// generate creates the March settlement of the partner and returns its ID
func (e *testEnv) generate(partnerID uuid.UUID) uuid.UUID {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/v1/settlements/generate", e.operatorToken(), generateBody(partnerID))
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	var result struct {
		Settlement struct {
			ID uuid.UUID `json:"id"`
		} `json:"settlement"`
	}
	decodeData(e.t, w, &result)
	return result.Settlement.ID
}

func generateBody(partnerID uuid.UUID) map[string]any {
	return map[string]any{
		"partner_id":   partnerID.String(),
		"period_start": marchStart.Format(time.RFC3339),
		"period_end":   aprilStart.Format(time.RFC3339),
	}
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	testutil.DecodeData(t, w, out)
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	return testutil.DecodeResponse(t, w)
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return testutil.ErrorCode(t, w)
}
