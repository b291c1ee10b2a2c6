package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
)

// GormLedgerSource reads the transaction feed and marks records settled
type GormLedgerSource struct {
	db *gorm.DB
}

// NewGormLedgerSource creates a new GormLedgerSource
func NewGormLedgerSource(db *gorm.DB) *GormLedgerSource {
	return &GormLedgerSource{db: db}
}

// WithTx returns a new source bound to the given transaction
func (r *GormLedgerSource) WithTx(tx *gorm.DB) *GormLedgerSource {
	return &GormLedgerSource{db: tx}
}

// FetchUnsettled returns the partner's unsettled records with occurred_at in [start, end)
func (r *GormLedgerSource) FetchUnsettled(ctx context.Context, partnerID uuid.UUID, period settlement.Period) ([]settlement.TransactionRecord, error) {
	var rows []models.TransactionRecordModel
	err := r.db.WithContext(ctx).
		Where("partner_id = ? AND settled = ? AND occurred_at >= ? AND occurred_at < ?",
			partnerID, false, period.Start, period.End).
		Order("occurred_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	records := make([]settlement.TransactionRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].ToDomain()
	}
	return records, nil
}

// MarkSettled flips still-unsettled records to settled. When fewer rows than
// requested change, another settlement took some of them; the caller's
// transaction must roll back so nothing stays marked.
func (r *GormLedgerSource) MarkSettled(ctx context.Context, transactionIDs []uuid.UUID, settlementID uuid.UUID) error {
	if len(transactionIDs) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.TransactionRecordModel{}).
		Where("id IN ? AND settled = ?", transactionIDs, false).
		Updates(map[string]any{
			"settled":       true,
			"settlement_id": settlementID,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark records settled: %w", result.Error)
	}
	if result.RowsAffected != int64(len(transactionIDs)) {
		return shared.NewDomainError(shared.CodeConcurrency,
			fmt.Sprintf("%d of %d records were already settled", int64(len(transactionIDs))-result.RowsAffected, len(transactionIDs)))
	}
	return nil
}

// Record appends records to the feed. Used by imports and test fixtures.
func (r *GormLedgerSource) Record(ctx context.Context, records ...settlement.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]*models.TransactionRecordModel, len(records))
	for i, rec := range records {
		rows[i] = models.TransactionRecordModelFromDomain(rec)
	}
	return translateWriteError(r.db.WithContext(ctx).Create(rows).Error, "transaction record")
}

// Ensure GormLedgerSource implements settlement.LedgerSource
var _ settlement.LedgerSource = (*GormLedgerSource)(nil)
