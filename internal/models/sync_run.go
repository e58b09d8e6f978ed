package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type SyncScope string

const (
	ScopeIncremental SyncScope = "incremental"
	ScopeAll         SyncScope = "all"
)

type SyncRunStatus string

const (
	SyncRunning SyncRunStatus = "running"
	SyncSuccess SyncRunStatus = "success"
	SyncPartial SyncRunStatus = "partial"
	SyncFailed  SyncRunStatus = "failed"
)

const (
	ResourceTransactions   = "transactions"
	ResourceClientInvoices = "client_invoices"
	ResourceQuotes         = "quotes"
	ResourceCreditNotes    = "credit_notes"
)

// KnownResource reports whether resource names something the engine syncs
func KnownResource(resource string) bool {
	switch resource {
	case ResourceTransactions, ResourceClientInvoices, ResourceQuotes, ResourceCreditNotes:
		return true
	}
	return false
}

type SyncItemError struct {
	ItemID  string `json:"item_id"`
	Message string `json:"message"`
}

// SyncRun audits one sync invocation. Only the owning execution writes to it.
type SyncRun struct {
	ID           uuid.UUID                          `gorm:"type:uuid;primaryKey" json:"id"`
	Resource     string                             `gorm:"index;not null" json:"resource"`
	Scope        SyncScope                          `json:"scope"`
	FromDate     *time.Time                         `json:"from_date"`
	StartedAt    time.Time                          `gorm:"index" json:"started_at"`
	FinishedAt   *time.Time                         `json:"finished_at"`
	Status       SyncRunStatus                      `gorm:"index;not null" json:"status"`
	ItemsFetched int                                `json:"items_fetched"`
	ItemsCreated int                                `json:"items_created"`
	ItemsUpdated int                                `json:"items_updated"`
	ItemsSkipped int                                `json:"items_skipped"`
	ItemsFailed  int                                `json:"items_failed"`
	Errors       datatypes.JSONSlice[SyncItemError] `json:"errors"`
	Message      string                             `json:"message"`
	DurationMs   int64                              `json:"duration_ms"`
	CreatedAt    time.Time                          `json:"created_at"`
}
