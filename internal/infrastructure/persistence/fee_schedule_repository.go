package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
)

// GormFeeScheduleRepository reads and writes fee schedules and payout destinations
type GormFeeScheduleRepository struct {
	db *gorm.DB
}

// NewGormFeeScheduleRepository creates a new GormFeeScheduleRepository
func NewGormFeeScheduleRepository(db *gorm.DB) *GormFeeScheduleRepository {
	return &GormFeeScheduleRepository{db: db}
}

// GetFeeSchedule returns the partner's schedule, or shared.ErrNotFound when it has no lines
func (r *GormFeeScheduleRepository) GetFeeSchedule(ctx context.Context, partnerID uuid.UUID) (*settlement.FeeSchedule, error) {
	var rows []models.FeeScheduleEntryModel
	if err := r.db.WithContext(ctx).Where("partner_id = ?", partnerID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read fee schedule: %w", err)
	}
	if len(rows) == 0 {
		return nil, shared.ErrNotFound
	}
	return models.FeeScheduleFromEntries(partnerID, rows), nil
}

// SaveFeeSchedule replaces the partner's schedule
func (r *GormFeeScheduleRepository) SaveFeeSchedule(ctx context.Context, fs *settlement.FeeSchedule) error {
	if err := fs.Validate(); err != nil {
		return err
	}
	rows := models.FeeScheduleEntriesFromDomain(fs, time.Now().UTC())
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("partner_id = ?", fs.PartnerID).Delete(&models.FeeScheduleEntryModel{}).Error; err != nil {
			return err
		}
		return tx.Create(&rows).Error
	})
}

// GetDestination returns where the partner is paid, or shared.ErrNotFound
func (r *GormFeeScheduleRepository) GetDestination(ctx context.Context, partnerID uuid.UUID) (*settlement.Destination, error) {
	var model models.PayoutDestinationModel
	if err := r.db.WithContext(ctx).First(&model, "partner_id = ?", partnerID).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return model.ToDomain(), nil
}

// SaveDestination upserts the partner's payout destination
func (r *GormFeeScheduleRepository) SaveDestination(ctx context.Context, partnerID uuid.UUID, dest settlement.Destination) error {
	if err := dest.Validate(); err != nil {
		return err
	}
	model := &models.PayoutDestinationModel{
		PartnerID:        partnerID,
		Method:           dest.Method,
		AccountReference: dest.AccountReference,
		HolderName:       dest.HolderName,
		UpdatedAt:        time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "partner_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"method", "account_reference", "holder_name", "updated_at"}),
		}).
		Create(model).Error
}

var (
	_ settlement.FeeScheduleProvider = (*GormFeeScheduleRepository)(nil)
	_ settlement.DestinationResolver = (*GormFeeScheduleRepository)(nil)
)
