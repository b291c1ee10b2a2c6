package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
)

// PayoutSortFields contains allowed sort fields for payouts
var PayoutSortFields = map[string]bool{
	"created_at":  true,
	"updated_at":  true,
	"executed_at": true,
	"amount":      true,
	"status":      true,
}

// GormPayoutRepository implements settlement.PayoutRepository using GORM
type GormPayoutRepository struct {
	db *gorm.DB
}

// NewGormPayoutRepository creates a new GormPayoutRepository
func NewGormPayoutRepository(db *gorm.DB) *GormPayoutRepository {
	return &GormPayoutRepository{db: db}
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormPayoutRepository) WithTx(tx *gorm.DB) *GormPayoutRepository {
	return &GormPayoutRepository{db: tx}
}

// FindByID finds a payout by its ID
func (r *GormPayoutRepository) FindByID(ctx context.Context, id uuid.UUID) (*settlement.Payout, error) {
	var model models.PayoutModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return model.ToDomain(), nil
}

// FindBySettlement returns every payout attempt for a settlement, oldest first
func (r *GormPayoutRepository) FindBySettlement(ctx context.Context, settlementID uuid.UUID) ([]settlement.Payout, error) {
	var rows []models.PayoutModel
	err := r.db.WithContext(ctx).
		Where("settlement_id = ?", settlementID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toPayouts(rows), nil
}

// FindAll finds payouts matching the filter
func (r *GormPayoutRepository) FindAll(ctx context.Context, filter settlement.PayoutFilter) ([]settlement.Payout, error) {
	var rows []models.PayoutModel
	page := filter.Filter.Normalize()
	err := r.applyFilter(r.db.WithContext(ctx).Model(&models.PayoutModel{}), filter).
		Order(ValidateSortField(page.OrderBy, PayoutSortFields, "created_at") + " " + ValidateSortOrder(page.OrderDir)).
		Order("id ASC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toPayouts(rows), nil
}

// Count counts payouts matching the filter
func (r *GormPayoutRepository) Count(ctx context.Context, filter settlement.PayoutFilter) (int64, error) {
	var count int64
	err := r.applyFilter(r.db.WithContext(ctx).Model(&models.PayoutModel{}), filter).Count(&count).Error
	return count, err
}

func (r *GormPayoutRepository) applyFilter(query *gorm.DB, filter settlement.PayoutFilter) *gorm.DB {
	if filter.PartnerID != nil {
		query = query.Where("partner_id = ?", *filter.PartnerID)
	}
	if filter.SettlementID != nil {
		query = query.Where("settlement_id = ?", *filter.SettlementID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	return query
}

// Create inserts a new payout
func (r *GormPayoutRepository) Create(ctx context.Context, p *settlement.Payout) error {
	if err := r.db.WithContext(ctx).Create(models.PayoutModelFromDomain(p)).Error; err != nil {
		return translateWriteError(err, "payout "+p.ClientReference)
	}
	return nil
}

// Save updates the mutable columns of an existing payout
func (r *GormPayoutRepository) Save(ctx context.Context, p *settlement.Payout) error {
	model := models.PayoutModelFromDomain(p)
	result := r.db.WithContext(ctx).
		Model(&models.PayoutModel{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"status":             model.Status,
			"channel":            model.Channel,
			"provider_reference": model.ProviderReference,
			"failure_reason":     model.FailureReason,
			"executed_at":        model.ExecutedAt,
			"updated_at":         model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func toPayouts(rows []models.PayoutModel) []settlement.Payout {
	out := make([]settlement.Payout, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

// Ensure GormPayoutRepository implements settlement.PayoutRepository
var _ settlement.PayoutRepository = (*GormPayoutRepository)(nil)
