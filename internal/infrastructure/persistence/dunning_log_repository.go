package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/settlement/internal/domain/dunning"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
)

// GormDunningLogRepository implements dunning.LogRepository.
// Rows are only ever inserted; reversal stamps reversed_at.
type GormDunningLogRepository struct {
	db *gorm.DB
}

// NewGormDunningLogRepository creates a new GormDunningLogRepository
func NewGormDunningLogRepository(db *gorm.DB) *GormDunningLogRepository {
	return &GormDunningLogRepository{db: db}
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormDunningLogRepository) WithTx(tx *gorm.DB) *GormDunningLogRepository {
	return &GormDunningLogRepository{db: tx}
}

// LatestActive returns the newest non-reversed entry, or nil
func (r *GormDunningLogRepository) LatestActive(ctx context.Context, accountID uuid.UUID) (*dunning.Log, error) {
	var model models.DunningLogModel
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND reversed_at IS NULL", accountID).
		Order("sequence DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// Append inserts a new entry
func (r *GormDunningLogRepository) Append(ctx context.Context, entry *dunning.Log) error {
	if entry == nil {
		return shared.NewDomainError(shared.CodeInvalidInput, "dunning log entry is required")
	}
	err := r.db.WithContext(ctx).Create(models.DunningLogModelFromDomain(entry)).Error
	return translateWriteError(err, "dunning log of account "+entry.AccountID.String())
}

// ReverseAbove stamps reversed_at on active entries whose level exceeds level
func (r *GormDunningLogRepository) ReverseAbove(ctx context.Context, accountID uuid.UUID, level int, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.DunningLogModel{}).
		Where("account_id = ? AND dunning_level > ? AND reversed_at IS NULL", accountID, level).
		Update("reversed_at", at)
	return result.RowsAffected, result.Error
}

// ListByAccount returns the account's history, newest first
func (r *GormDunningLogRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, filter shared.Filter) ([]dunning.Log, error) {
	page := filter.Normalize()
	var rows []models.DunningLogModel
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("sequence DESC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	logs := make([]dunning.Log, len(rows))
	for i := range rows {
		logs[i] = *rows[i].ToDomain()
	}
	return logs, nil
}

// CountByAccount counts the account's entries
func (r *GormDunningLogRepository) CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.DunningLogModel{}).Where("account_id = ?", accountID).Count(&count).Error
	return count, err
}

// Ensure GormDunningLogRepository implements dunning.LogRepository
var _ dunning.LogRepository = (*GormDunningLogRepository)(nil)
