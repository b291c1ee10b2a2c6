package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erp/settlement/internal/domain/dunning"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
)

// GormOverrideRepository implements dunning.OverrideRepository
type GormOverrideRepository struct {
	db *gorm.DB
}

// NewGormOverrideRepository creates a new GormOverrideRepository
func NewGormOverrideRepository(db *gorm.DB) *GormOverrideRepository {
	return &GormOverrideRepository{db: db}
}

// FindByAccount returns the account's override, or nil
func (r *GormOverrideRepository) FindByAccount(ctx context.Context, accountID uuid.UUID) (*dunning.Override, error) {
	var model models.AccessOverrideModel
	err := r.db.WithContext(ctx).First(&model, "account_id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// Upsert replaces the account's override
func (r *GormOverrideRepository) Upsert(ctx context.Context, o *dunning.Override) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "reason", "expires_at", "created_at"}),
		}).
		Create(models.AccessOverrideModelFromDomain(o)).Error
}

// DeleteByAccount removes the account's override
func (r *GormOverrideRepository) DeleteByAccount(ctx context.Context, accountID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&models.AccessOverrideModel{}).Error
}

// Ensure GormOverrideRepository implements dunning.OverrideRepository
var _ dunning.OverrideRepository = (*GormOverrideRepository)(nil)
