package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const ExpenseCandidatePending = "pending"

// ExpenseCandidate stages an unmatched debit for expense creation downstream.
type ExpenseCandidate struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID uuid.UUID       `gorm:"type:uuid;uniqueIndex" json:"transaction_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(14,2)" json:"amount"`
	Label         string          `json:"label"`
	Counterparty  string          `json:"counterparty"`
	Status        string          `gorm:"index" json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}
