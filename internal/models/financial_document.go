package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DocumentType string

const (
	DocumentCustomerInvoice DocumentType = "customer_invoice"
	DocumentQuote           DocumentType = "quote"
	DocumentCreditNote      DocumentType = "credit_note"
)

// Provider-side document statuses. Quotes and credit notes carry their own
// provider vocabulary (pending_approval, accepted, finalized...) verbatim.
const (
	DocumentStatusDraft     = "draft"
	DocumentStatusUnpaid    = "unpaid"
	DocumentStatusPaid      = "paid"
	DocumentStatusOverdue   = "overdue"
	DocumentStatusCancelled = "cancelled"
)

type WorkflowStatus string

const (
	WorkflowSynchronized   WorkflowStatus = "synchronized"
	WorkflowDraftValidated WorkflowStatus = "draft_validated"
	WorkflowFinalized      WorkflowStatus = "finalized"
	WorkflowSent           WorkflowStatus = "sent"
	WorkflowPaid           WorkflowStatus = "paid"
	WorkflowCancelled      WorkflowStatus = "cancelled"
)

// FinancialDocument is the local copy of a provider invoice, quote or credit
// note. Status belongs to the provider; WorkflowStatus is ours and only
// moves for customer invoices. RelatedDocumentID points a credit note at the
// invoice it corrects and a converted quote at its invoice.
type FinancialDocument struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentNumber      string          `gorm:"index" json:"document_number"`
	DocumentType        DocumentType    `gorm:"index;not null" json:"document_type"`
	Status              string          `gorm:"index" json:"status"`
	WorkflowStatus      WorkflowStatus  `gorm:"index;not null;default:synchronized" json:"workflow_status"`
	CustomerName        string          `gorm:"index" json:"customer_name"`
	SalesOrderID        *uuid.UUID      `gorm:"type:uuid;index" json:"sales_order_id"`
	PurchaseOrderNumber string          `json:"purchase_order_number"`
	Currency            string          `json:"currency"`
	TotalTTC            decimal.Decimal `gorm:"column:total_ttc;type:numeric(14,2)" json:"total_ttc"`
	AmountPaid          decimal.Decimal `gorm:"type:numeric(14,2)" json:"amount_paid"`
	DocumentDate        *time.Time      `json:"document_date"`
	DueDate             *time.Time      `json:"due_date"`
	PaidAt              *time.Time      `json:"paid_at"`
	QontoInvoiceID      *string         `gorm:"uniqueIndex" json:"qonto_invoice_id"`
	QontoQuoteID        *string         `gorm:"uniqueIndex" json:"qonto_quote_id,omitempty"`
	QontoCreditNoteID   *string         `gorm:"uniqueIndex" json:"qonto_credit_note_id,omitempty"`
	RelatedDocumentID   *uuid.UUID      `gorm:"type:uuid;index" json:"related_document_id,omitempty"`
	DeletedAt           *time.Time      `gorm:"index" json:"deleted_at"`
	SynchronizedAt      *time.Time      `json:"synchronized_at"`
	ValidatedToDraftAt  *time.Time      `json:"validated_to_draft_at"`
	ValidatedBy         *string         `json:"validated_by"`
	FinalizedAt         *time.Time      `json:"finalized_at"`
	SentAt              *time.Time      `json:"sent_at"`
	CancelledAt         *time.Time      `json:"cancelled_at"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// RemainingDue is what is still expected to be paid on the document.
func (d *FinancialDocument) RemainingDue() decimal.Decimal {
	return d.TotalTTC.Sub(d.AmountPaid)
}

func (d *FinancialDocument) IsArchived() bool {
	return d.DeletedAt != nil
}

func (d *FinancialDocument) IsCancelled() bool {
	return d.Status == DocumentStatusCancelled || d.WorkflowStatus == WorkflowCancelled
}
