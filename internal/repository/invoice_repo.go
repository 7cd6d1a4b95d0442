package repository

import (
	"context"
	"errors"

	"blagajna/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InvoiceListFilter narrows List.
type InvoiceListFilter struct {
	Status    string
	PremiseID string
	DeviceID  string
	Page      int
	Limit     int
}

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *model.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	FindLastNumber(ctx context.Context, premiseID, deviceID string) (int64, bool, error)
	HasReversal(ctx context.Context, originalID uuid.UUID) (bool, error)
	List(ctx context.Context, filter InvoiceListFilter) ([]model.Invoice, int64, error)
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

// Create inserts the invoice with its lines. A taken (premise, device, number) fails
// with gorm.ErrDuplicatedKey when the connection translates errors.
func (r *invoiceRepository) Create(ctx context.Context, invoice *model.Invoice) error {
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	for i := range invoice.Lines {
		if invoice.Lines[i].ID == uuid.Nil {
			invoice.Lines[i].ID = uuid.New()
		}
		invoice.Lines[i].InvoiceID = invoice.ID
	}
	return GetDB(ctx, r.db).Create(invoice).Error
}

func (r *invoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	err := GetDB(ctx, r.db).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		First(&invoice, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// FindLastNumber returns the highest number used on the device, whatever the status
// of the invoice holding it.
func (r *invoiceRepository) FindLastNumber(ctx context.Context, premiseID, deviceID string) (int64, bool, error) {
	var invoice model.Invoice
	err := GetDB(ctx, r.db).
		Select("invoice_number").
		Where("business_premise_id = ? AND electronic_device_id = ?", premiseID, deviceID).
		Order("invoice_number desc").
		Take(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return invoice.InvoiceNumber, true, nil
}

// HasReversal reports whether a storno of the invoice was confirmed or may have been.
func (r *invoiceRepository) HasReversal(ctx context.Context, originalID uuid.UUID) (bool, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.Invoice{}).
		Where("reference_invoice_id = ? AND status IN ?", originalID, []string{model.InvoiceConfirmed, model.InvoiceUnresolved}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *invoiceRepository) List(ctx context.Context, filter InvoiceListFilter) ([]model.Invoice, int64, error) {
	var invoices []model.Invoice
	var total int64

	db := GetDB(ctx, r.db)
	scoped := func(q *gorm.DB) *gorm.DB {
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if filter.PremiseID != "" {
			q = q.Where("business_premise_id = ?", filter.PremiseID)
		}
		if filter.DeviceID != "" {
			q = q.Where("electronic_device_id = ?", filter.DeviceID)
		}
		return q
	}

	if err := scoped(db.Model(&model.Invoice{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := scoped(db.Preload("Lines")).
		Order("issued_at desc, invoice_number desc").
		Offset(offset).Limit(filter.Limit).
		Find(&invoices).Error; err != nil {
		return nil, 0, err
	}

	return invoices, total, nil
}
