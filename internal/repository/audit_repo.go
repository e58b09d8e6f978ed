package repository

import (
	"context"

	"qonto-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) WithTx(tx *gorm.DB) *AuditRepository {
	return &AuditRepository{db: tx}
}

func (r *AuditRepository) Record(ctx context.Context, entry *models.MatchAuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *AuditRepository) ListForTransaction(ctx context.Context, txID uuid.UUID) ([]models.MatchAuditLog, error) {
	var entries []models.MatchAuditLog
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", txID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

func (r *AuditRepository) ListForDocument(ctx context.Context, docID uuid.UUID) ([]models.MatchAuditLog, error) {
	var entries []models.MatchAuditLog
	err := r.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

// StageExpense inserts an expense candidate once per transaction.
// Returns true when a new row was written.
func (r *AuditRepository) StageExpense(ctx context.Context, candidate *models.ExpenseCandidate) (bool, error) {
	if candidate.ID == uuid.Nil {
		candidate.ID = uuid.New()
	}
	// Use `OnConflict` to ignore duplicates
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "transaction_id"}}, DoNothing: true}).
		Create(candidate)
	return result.RowsAffected == 1, result.Error
}
