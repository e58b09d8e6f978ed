package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionAutoMatch       = "auto_match"
	ActionUnmatch         = "unmatch"
	ActionReconcile       = "reconcile"
	ActionIgnore          = "ignore"
	ActionUnignore        = "unignore"
	ActionValidateToDraft = "validate_to_draft"
	ActionFinalize        = "finalize"
	ActionSend            = "send"
	ActionCancel          = "cancel"
	ActionArchive         = "archive"
	ActionUnarchive       = "unarchive"
	ActionVatOverride     = "vat_override"
	ActionQuoteCreate     = "quote_create"
	ActionQuoteFinalize   = "quote_finalize"
)

type MatchAuditLog struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID    *uuid.UUID `gorm:"type:uuid;index" json:"transaction_id"`
	DocumentID       *uuid.UUID `gorm:"type:uuid;index" json:"document_id"`
	Action           string     `gorm:"index" json:"action"`
	PreviousDocument *uuid.UUID `gorm:"type:uuid" json:"previous_document"`
	NewDocument      *uuid.UUID `gorm:"type:uuid" json:"new_document"`
	PerformedBy      string     `json:"performed_by"`
	Reason           string     `json:"reason"`
	CreatedAt        time.Time  `json:"created_at"`
}
