package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionIssueInvoice         = "ISSUE_INVOICE"
	ActionIssueStorno          = "ISSUE_STORNO"
	ActionRejectedSubmission   = "REJECTED_SUBMISSION"
	ActionUnresolvedSubmission = "UNRESOLVED_SUBMISSION" // reconcile against the Authority ledger
	ActionSequencingConflict   = "SEQUENCING_CONFLICT"
	ActionRegisterPremise      = "REGISTER_PREMISE"
)

// AuditLog tracks Who, What, and When for every fiscal submission outcome
type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Actor      string    `gorm:"type:varchar(50);index" json:"actor"` // operator tax number, empty for automated runs
	Action     string    `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string    `gorm:"type:varchar(50);index" json:"entity_id"`        // premise-device-number
	EntityName string    `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // message id of the attempt
	Details    string    `gorm:"type:jsonb" json:"details"`                      // Serialized JSON payload of the action
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}
