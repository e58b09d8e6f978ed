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

type FinancialDocumentRepository struct {
	db *gorm.DB
}

func NewFinancialDocumentRepository(db *gorm.DB) *FinancialDocumentRepository {
	return &FinancialDocumentRepository{db: db}
}

// Expose DB for callers that open transactions
func (r *FinancialDocumentRepository) DB() *gorm.DB {
	return r.db
}

func (r *FinancialDocumentRepository) WithTx(tx *gorm.DB) *FinancialDocumentRepository {
	return &FinancialDocumentRepository{db: tx}
}

// GetByID fetch a single document by ID
func (r *FinancialDocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.FinancialDocument, error) {
	var doc models.FinancialDocument
	err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("invoice", id.String())
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByQontoID returns nil, nil when the provider id is unknown locally
func (r *FinancialDocumentRepository) FindByQontoID(ctx context.Context, qontoID string) (*models.FinancialDocument, error) {
	return r.findBy(ctx, "qonto_invoice_id", qontoID)
}

func (r *FinancialDocumentRepository) FindByQontoQuoteID(ctx context.Context, quoteID string) (*models.FinancialDocument, error) {
	return r.findBy(ctx, "qonto_quote_id", quoteID)
}

func (r *FinancialDocumentRepository) FindByQontoCreditNoteID(ctx context.Context, creditNoteID string) (*models.FinancialDocument, error) {
	return r.findBy(ctx, "qonto_credit_note_id", creditNoteID)
}

func (r *FinancialDocumentRepository) findBy(ctx context.Context, column, value string) (*models.FinancialDocument, error) {
	var doc models.FinancialDocument
	err := r.db.WithContext(ctx).
		Where(column+" = ?", value).
		Limit(1).
		Find(&doc).Error
	if err != nil {
		return nil, err
	}
	if doc.ID == uuid.Nil {
		return nil, nil
	}
	return &doc, nil
}

func (r *FinancialDocumentRepository) Create(ctx context.Context, doc *models.FinancialDocument) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *FinancialDocumentRepository) Save(ctx context.Context, doc *models.FinancialDocument) error {
	return r.db.WithContext(ctx).Save(doc).Error
}

// UpdateIfWorkflow applies updates only while the stored workflow status
// still equals expected. Returns false when another writer moved it first.
func (r *FinancialDocumentRepository) UpdateIfWorkflow(ctx context.Context, id uuid.UUID, expected models.WorkflowStatus, updates map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.FinancialDocument{}).
		Where("id = ? AND workflow_status = ?", id, expected).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListOpenInvoices returns customer invoices that can still receive a payment
func (r *FinancialDocumentRepository) ListOpenInvoices(ctx context.Context) ([]models.FinancialDocument, error) {
	var docs []models.FinancialDocument
	err := r.db.WithContext(ctx).
		Where("document_type = ?", models.DocumentCustomerInvoice).
		Where("deleted_at IS NULL").
		Where("status <> ?", models.DocumentStatusCancelled).
		Where("workflow_status NOT IN ?", []models.WorkflowStatus{models.WorkflowCancelled, models.WorkflowPaid}).
		Find(&docs).Error
	return docs, err
}

// ListByIDs loads documents by id, archived ones included
func (r *FinancialDocumentRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.FinancialDocument, error) {
	var docs []models.FinancialDocument
	if len(ids) == 0 {
		return docs, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&docs).Error
	return docs, err
}

// Search used for admin manual search with optional filters
func (r *FinancialDocumentRepository) Search(ctx context.Context, query string, workflowStatuses []string, includeArchived bool) ([]models.FinancialDocument, error) {
	var docs []models.FinancialDocument

	dbQuery := r.db.WithContext(ctx).Model(&models.FinancialDocument{})

	if query != "" {
		like := "%" + strings.ToLower(query) + "%"
		dbQuery = dbQuery.Where("LOWER(customer_name) LIKE ? OR LOWER(document_number) LIKE ?", like, like)
	}
	if len(workflowStatuses) > 0 {
		dbQuery = dbQuery.Where("workflow_status IN ?", workflowStatuses)
	}
	if !includeArchived {
		dbQuery = dbQuery.Where("deleted_at IS NULL")
	}

	err := dbQuery.Order("document_date DESC").Find(&docs).Error
	return docs, err
}
