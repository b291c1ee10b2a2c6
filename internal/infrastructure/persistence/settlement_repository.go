package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
)

// SettlementSortFields contains allowed sort fields for settlements
var SettlementSortFields = map[string]bool{
	"created_at":        true,
	"updated_at":        true,
	"period_start":      true,
	"period_end":        true,
	"total_gross":       true,
	"total_partner_net": true,
	"status":            true,
}

// GormSettlementRepository implements settlement.SettlementRepository using GORM
type GormSettlementRepository struct {
	db *gorm.DB
}

// NewGormSettlementRepository creates a new GormSettlementRepository
func NewGormSettlementRepository(db *gorm.DB) *GormSettlementRepository {
	return &GormSettlementRepository{db: db}
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormSettlementRepository) WithTx(tx *gorm.DB) *GormSettlementRepository {
	return &GormSettlementRepository{db: tx}
}

// FindByID finds a settlement by its ID
func (r *GormSettlementRepository) FindByID(ctx context.Context, id uuid.UUID) (*settlement.Settlement, error) {
	var model models.SettlementModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return model.ToDomain(), nil
}

// FindActiveByPeriod finds the non-cancelled settlement with exactly these bounds
func (r *GormSettlementRepository) FindActiveByPeriod(ctx context.Context, partnerID uuid.UUID, period settlement.Period) (*settlement.Settlement, error) {
	var model models.SettlementModel
	err := r.db.WithContext(ctx).
		Where("partner_id = ? AND period_start = ? AND period_end = ? AND status <> ?",
			partnerID, period.Start, period.End, settlement.StatusCancelled).
		First(&model).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return model.ToDomain(), nil
}

// FindOverlapping finds non-cancelled settlements whose half-open window intersects period
func (r *GormSettlementRepository) FindOverlapping(ctx context.Context, partnerID uuid.UUID, period settlement.Period) ([]settlement.Settlement, error) {
	var rows []models.SettlementModel
	err := r.db.WithContext(ctx).
		Where("partner_id = ? AND status <> ? AND period_start < ? AND period_end > ?",
			partnerID, settlement.StatusCancelled, period.End, period.Start).
		Order("period_start ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toSettlements(rows), nil
}

// FindAll finds settlements matching the filter
func (r *GormSettlementRepository) FindAll(ctx context.Context, filter settlement.Filter) ([]settlement.Settlement, error) {
	var rows []models.SettlementModel
	page := filter.Filter.Normalize()
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.SettlementModel{}), filter)
	query = query.
		Order(ValidateSortField(page.OrderBy, SettlementSortFields, "created_at") + " " + ValidateSortOrder(page.OrderDir)).
		Order("id ASC").
		Offset(page.Offset()).
		Limit(page.PageSize)
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toSettlements(rows), nil
}

// Count counts settlements matching the filter
func (r *GormSettlementRepository) Count(ctx context.Context, filter settlement.Filter) (int64, error) {
	var count int64
	err := r.applyFilter(r.db.WithContext(ctx).Model(&models.SettlementModel{}), filter).Count(&count).Error
	return count, err
}

func (r *GormSettlementRepository) applyFilter(query *gorm.DB, filter settlement.Filter) *gorm.DB {
	if filter.PartnerID != nil {
		query = query.Where("partner_id = ?", *filter.PartnerID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.PeriodFrom != nil {
		query = query.Where("period_start >= ?", *filter.PeriodFrom)
	}
	if filter.PeriodTo != nil {
		query = query.Where("period_end <= ?", *filter.PeriodTo)
	}
	return query
}

// Create inserts a new settlement. Losing the race for the partner's period
// surfaces as a concurrency conflict, an overlapping window as an invalid period.
func (r *GormSettlementRepository) Create(ctx context.Context, s *settlement.Settlement) error {
	model := models.SettlementModelFromDomain(s)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateWriteError(err, "settlement for period "+s.Period.String())
	}
	return nil
}

// SaveWithLock persists a transition of the settlement. The domain advances
// the version on every transition, so the stored row must still carry the
// version the settlement was loaded with.
func (r *GormSettlementRepository) SaveWithLock(ctx context.Context, s *settlement.Settlement) error {
	model := models.SettlementModelFromDomain(s)

	result := r.db.WithContext(ctx).
		Model(&models.SettlementModel{}).
		Where("id = ? AND version = ?", s.ID, s.Version-1).
		Updates(map[string]any{
			"status":              model.Status,
			"paid_at":             model.PaidAt,
			"last_failure_reason": model.LastFailureReason,
			"version":             model.Version,
			"updated_at":          model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.SettlementModel{}).Where("id = ?", s.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return shared.ErrNotFound
		}
		return shared.NewDomainError(shared.CodeConcurrency, "settlement "+s.ID.String()+" was modified by another process")
	}
	return nil
}

func toSettlements(rows []models.SettlementModel) []settlement.Settlement {
	out := make([]settlement.Settlement, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

// Ensure GormSettlementRepository implements settlement.SettlementRepository
var _ settlement.SettlementRepository = (*GormSettlementRepository)(nil)
