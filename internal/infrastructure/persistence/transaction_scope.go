package persistence

import (
	"context"

	"gorm.io/gorm"

	appdunning "github.com/erp/settlement/internal/application/dunning"
	appsettlement "github.com/erp/settlement/internal/application/settlement"
	"github.com/erp/settlement/internal/domain/dunning"
	"github.com/erp/settlement/internal/domain/settlement"
)

// GormSettlementTransactionScope implements the settlement TransactionScope using GORM transactions.
type GormSettlementTransactionScope struct {
	db *gorm.DB
}

// NewGormSettlementTransactionScope creates a new GormSettlementTransactionScope.
func NewGormSettlementTransactionScope(db *gorm.DB) *GormSettlementTransactionScope {
	return &GormSettlementTransactionScope{db: db}
}

// Execute runs fn within a database transaction.
// If fn returns an error, the transaction is rolled back.
func (s *GormSettlementTransactionScope) Execute(ctx context.Context, fn func(repos appsettlement.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&settlementTxRepositories{tx: tx})
	})
}

type settlementTxRepositories struct {
	tx *gorm.DB
}

// Settlements returns the settlement repository scoped to the current transaction.
func (r *settlementTxRepositories) Settlements() settlement.SettlementRepository {
	return NewGormSettlementRepository(r.tx)
}

// Payouts returns the payout repository scoped to the current transaction.
func (r *settlementTxRepositories) Payouts() settlement.PayoutRepository {
	return NewGormPayoutRepository(r.tx)
}

// Ledger returns the ledger source scoped to the current transaction.
func (r *settlementTxRepositories) Ledger() settlement.LedgerSource {
	return NewGormLedgerSource(r.tx)
}

// GormDunningTransactionScope implements the dunning TransactionScope using GORM transactions.
type GormDunningTransactionScope struct {
	db *gorm.DB
}

// NewGormDunningTransactionScope creates a new GormDunningTransactionScope.
func NewGormDunningTransactionScope(db *gorm.DB) *GormDunningTransactionScope {
	return &GormDunningTransactionScope{db: db}
}

// Execute runs fn within a database transaction.
func (s *GormDunningTransactionScope) Execute(ctx context.Context, fn func(repos appdunning.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&dunningTxRepositories{tx: tx})
	})
}

type dunningTxRepositories struct {
	tx *gorm.DB
}

// Logs returns the dunning log repository scoped to the current transaction.
func (r *dunningTxRepositories) Logs() dunning.LogRepository {
	return NewGormDunningLogRepository(r.tx)
}

var (
	_ appsettlement.TransactionScope          = (*GormSettlementTransactionScope)(nil)
	_ appsettlement.TransactionalRepositories = (*settlementTxRepositories)(nil)
	_ appdunning.TransactionScope             = (*GormDunningTransactionScope)(nil)
	_ appdunning.TransactionalRepositories    = (*dunningTxRepositories)(nil)
)
