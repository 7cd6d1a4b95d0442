package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice status constants
const (
	InvoiceConfirmed  = "CONFIRMED"  // accepted by the Authority, EOR attached
	InvoiceRejected   = "REJECTED"   // answered with an error; the number stays used
	InvoiceUnresolved = "UNRESOLVED" // outcome unknown, needs reconciliation
)

// Invoice is a fiscal receipt. (premise, device, number) is unique so a number can be
// held by at most one row, whatever its status.
type Invoice struct {
	ID                 uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TaxNumber          string          `gorm:"type:varchar(20);not null" json:"tax_number"`
	BusinessPremiseID  string          `gorm:"type:varchar(20);not null;uniqueIndex:idx_invoice_identity,priority:1" json:"business_premise_id"`
	ElectronicDeviceID string          `gorm:"type:varchar(20);not null;uniqueIndex:idx_invoice_identity,priority:2" json:"electronic_device_id"`
	InvoiceNumber      int64           `gorm:"not null;uniqueIndex:idx_invoice_identity,priority:3" json:"invoice_number"`
	Year               int             `gorm:"not null" json:"year"` // carried, numbering does not reset on it
	IssuedAt           time.Time       `gorm:"not null;index" json:"issued_at"`
	MessageID          string          `gorm:"type:varchar(36);not null;index" json:"message_id"`
	OperatorTaxNumber  string          `gorm:"type:varchar(20)" json:"operator_tax_number"`
	InvoiceAmount      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"invoice_amount"`
	PaymentAmount      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"payment_amount"`
	ZOI                string          `gorm:"column:zoi;type:varchar(32);not null" json:"zoi"`
	EOR                *string         `gorm:"column:eor;type:varchar(64);uniqueIndex" json:"eor"`
	Status             string          `gorm:"type:varchar(20);not null;index" json:"status"`
	FailureReason      string          `gorm:"type:text" json:"failure_reason,omitempty"`
	SpecialNotes       string          `gorm:"type:text" json:"special_notes,omitempty"`
	ReferenceInvoiceID *uuid.UUID      `gorm:"type:uuid;index" json:"reference_invoice_id"` // storno -> original
	ReferenceInvoice   *Invoice        `gorm:"foreignKey:ReferenceInvoiceID" json:"reference_invoice,omitempty"`
	Lines              []InvoiceLine   `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"lines"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// InvoiceLine is one taxed item of an invoice.
type InvoiceLine struct {
	ID            uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	InvoiceID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	Position      int             `gorm:"not null" json:"position"`
	Description   string          `gorm:"type:varchar(255)" json:"description"`
	Rate          decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"rate"`
	Quantity      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:1" json:"quantity"`
	TaxableAmount decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"taxable_amount"`
	TaxAmount     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"tax_amount"`
	GrossAmount   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"gross_amount"`
}
