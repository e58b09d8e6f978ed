package repository

import (
	"context"
	"errors"
	"strings"

	"qonto-reconciliation-backend/internal/apperrors"
	"qonto-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BankTransactionRepository struct {
	db *gorm.DB
}

func NewBankTransactionRepository(db *gorm.DB) *BankTransactionRepository {
	return &BankTransactionRepository{db: db}
}

// WithTx returns a repository bound to an open transaction
func (r *BankTransactionRepository) WithTx(tx *gorm.DB) *BankTransactionRepository {
	return &BankTransactionRepository{db: tx}
}

func (r *BankTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BankTransaction, error) {
	var tx models.BankTransaction
	err := r.db.WithContext(ctx).First(&tx, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("transaction", id.String())
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// FindByExternalID returns nil, nil when the provider id is unknown locally
func (r *BankTransactionRepository) FindByExternalID(ctx context.Context, externalID string) (*models.BankTransaction, error) {
	var tx models.BankTransaction
	err := r.db.WithContext(ctx).
		Where("external_transaction_id = ?", externalID).
		Limit(1).
		Find(&tx).Error
	if err != nil {
		return nil, err
	}
	if tx.ID == uuid.Nil {
		return nil, nil
	}
	return &tx, nil
}

func (r *BankTransactionRepository) Create(ctx context.Context, tx *models.BankTransaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *BankTransactionRepository) Save(ctx context.Context, tx *models.BankTransaction) error {
	return r.db.WithContext(ctx).Save(tx).Error
}

// ListMissingInvoices is the manual follow-up queue: unmatched and without a receipt
func (r *BankTransactionRepository) ListMissingInvoices(ctx context.Context) ([]models.BankTransaction, error) {
	var txs []models.BankTransaction
	err := r.db.WithContext(ctx).
		Where("matching_status = ?", models.MatchingUnmatched).
		Where("has_attachment = ?", false).
		Order("emitted_at DESC").
		Find(&txs).Error
	return txs, err
}

// ListUnmatchedCredits returns incoming payments the matching pass should look at
func (r *BankTransactionRepository) ListUnmatchedCredits(ctx context.Context) ([]models.BankTransaction, error) {
	var txs []models.BankTransaction
	err := r.db.WithContext(ctx).
		Where("matching_status = ?", models.MatchingUnmatched).
		Where("side = ?", models.SideCredit).
		Order("emitted_at ASC").
		Find(&txs).Error
	return txs, err
}

func (r *BankTransactionRepository) ListMatched(ctx context.Context) ([]models.BankTransaction, error) {
	var txs []models.BankTransaction
	err := r.db.WithContext(ctx).
		Where("matching_status = ?", models.MatchingMatched).
		Find(&txs).Error
	return txs, err
}

// ListBoundTo returns matched transactions pointing at the document
func (r *BankTransactionRepository) ListBoundTo(ctx context.Context, documentID uuid.UUID) ([]models.BankTransaction, error) {
	var txs []models.BankTransaction
	err := r.db.WithContext(ctx).
		Where("matched_document_id = ?", documentID).
		Where("matching_status = ?", models.MatchingMatched).
		Find(&txs).Error
	return txs, err
}

// ListUnmatchedDebits returns debits with no bound document, candidates for expense staging
func (r *BankTransactionRepository) ListUnmatchedDebits(ctx context.Context, ids []uuid.UUID) ([]models.BankTransaction, error) {
	var txs []models.BankTransaction
	if len(ids) == 0 {
		return txs, nil
	}
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Where("side = ?", models.SideDebit).
		Where("matched_document_id IS NULL").
		Where("matching_status = ?", models.MatchingUnmatched).
		Find(&txs).Error
	return txs, err
}

// IsDocumentBound reports whether another transaction already claims the document
func (r *BankTransactionRepository) IsDocumentBound(ctx context.Context, documentID uuid.UUID, exceptTx uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BankTransaction{}).
		Where("matched_document_id = ?", documentID).
		Where("matching_status = ?", models.MatchingMatched).
		Where("id <> ?", exceptTx).
		Count(&count).Error
	return count > 0, err
}

// List pages through transactions ordered by id, filtered by matching status and a free-text search
func (r *BankTransactionRepository) List(
	ctx context.Context,
	status string,
	cursor string,
	limit int,
	search string,
) ([]models.BankTransaction, string, bool, error) {

	var txs []models.BankTransaction
	query := r.db.WithContext(ctx).
		Order("id ASC").
		Limit(limit + 1)

	if status != "" && status != "all" {
		query = query.Where("matching_status = ?", status)
	}

	if cursor != "" {
		query = query.Where("id > ?", cursor)
	}

	if search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(label) LIKE ? OR LOWER(counterparty_name) LIKE ? OR CAST(amount AS TEXT) LIKE ?",
			like, like, like,
		)
	}

	if err := query.Find(&txs).Error; err != nil {
		return nil, "", false, err
	}

	hasMore := false
	var nextCursor string

	if len(txs) > limit {
		hasMore = true
		nextCursor = txs[limit-1].ID.String()
		txs = txs[:limit]
	}

	return txs, nextCursor, hasMore, nil
}

type StatRow struct {
	MatchingStatus string
	Count          int64
	Sum            float64
}

// StatsByMatchingStatus groups counts and amounts by matching status
func (r *BankTransactionRepository) StatsByMatchingStatus(ctx context.Context) ([]StatRow, error) {
	var rows []StatRow
	err := r.db.WithContext(ctx).
		Model(&models.BankTransaction{}).
		Select("matching_status, COUNT(*) as count, COALESCE(SUM(amount),0) as sum").
		Group("matching_status").
		Scan(&rows).Error
	return rows, err
}
