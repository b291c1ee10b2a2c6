package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/settlement/internal/domain/dunning"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
)

// GormInvoiceStore implements dunning.InvoiceStore over the invoices table
type GormInvoiceStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormInvoiceStore creates a new GormInvoiceStore
func NewGormInvoiceStore(db *gorm.DB) *GormInvoiceStore {
	return &GormInvoiceStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// ListOpenInvoices returns the account's unpaid, non-canceled invoices, oldest due first
func (s *GormInvoiceStore) ListOpenInvoices(ctx context.Context, accountID uuid.UUID) ([]dunning.Invoice, error) {
	var rows []models.InvoiceModel
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND status IN ?", accountID, []dunning.InvoiceStatus{
			dunning.InvoiceStatusPending,
			dunning.InvoiceStatusOverdue,
			dunning.InvoiceStatusPartiallyPaid,
		}).
		Order("due_date ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	invoices := make([]dunning.Invoice, len(rows))
	for i := range rows {
		invoices[i] = *rows[i].ToDomain()
	}
	return invoices, nil
}

// FindByID finds an invoice by ID
func (s *GormInvoiceStore) FindByID(ctx context.Context, invoiceID uuid.UUID) (*dunning.Invoice, error) {
	var model models.InvoiceModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", invoiceID).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return model.ToDomain(), nil
}

// MarkPaid settles an open invoice in full. Paid invoices are left untouched.
func (s *GormInvoiceStore) MarkPaid(ctx context.Context, invoiceID uuid.UUID) error {
	now := s.now()
	result := s.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ? AND status <> ?", invoiceID, dunning.InvoiceStatusCanceled).
		Updates(map[string]any{
			"status":      dunning.InvoiceStatusPaid,
			"amount_paid": gorm.Expr("amount"),
			"paid_at":     gorm.Expr("COALESCE(paid_at, ?)", now),
			"updated_at":  now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.InvoiceModel{}).Where("id = ?", invoiceID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return shared.ErrNotFound
		}
		return shared.NewDomainError(shared.CodeInvalidState, "canceled invoice cannot be paid")
	}
	return nil
}

// Issue stores a new invoice. Used by imports and fixtures.
func (s *GormInvoiceStore) Issue(ctx context.Context, inv *dunning.Invoice) error {
	now := s.now()
	model := &models.InvoiceModel{
		BaseModel:  models.BaseModel{ID: inv.ID, CreatedAt: now, UpdatedAt: now},
		AccountID:  inv.AccountID,
		Amount:     inv.Amount,
		AmountPaid: inv.AmountPaid,
		DueDate:    inv.DueDate,
		Status:     inv.Status,
		PaidAt:     inv.PaidAt,
	}
	if model.ID == uuid.Nil {
		model.ID = uuid.New()
		inv.ID = model.ID
	}
	return translateWriteError(s.db.WithContext(ctx).Create(model).Error, "invoice")
}

// Ensure GormInvoiceStore implements dunning.InvoiceStore
var _ dunning.InvoiceStore = (*GormInvoiceStore)(nil)
