package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"qonto-reconciliation-backend/internal/apperrors"
	"qonto-reconciliation-backend/internal/clients/qonto"
	"qonto-reconciliation-backend/internal/models"
	"qonto-reconciliation-backend/internal/repository"
	"qonto-reconciliation-backend/internal/services/workflow"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceProvider is the provider side of invoice actions
type InvoiceProvider interface {
	GetClientInvoice(ctx context.Context, id string) (*qonto.ClientInvoice, error)
	MarkClientInvoiceAsPaid(ctx context.Context, id string, paidAt time.Time) (*qonto.ClientInvoice, error)
	FinalizeClientInvoice(ctx context.Context, id string) (*qonto.ClientInvoice, error)
	SendClientInvoice(ctx context.Context, id string, emails []string) error
	CancelClientInvoice(ctx context.Context, id string) (*qonto.ClientInvoice, error)
	DeleteClientInvoice(ctx context.Context, id string) error
}

type ReconciliationService struct {
	provider        InvoiceProvider
	invoiceRepo     *repository.FinancialDocumentRepository
	transactionRepo *repository.BankTransactionRepository
	auditRepo       *repository.AuditRepository
	db              *gorm.DB
	log             zerolog.Logger
	now             func() time.Time
}

func NewReconciliationService(
	provider InvoiceProvider,
	invoiceRepo *repository.FinancialDocumentRepository,
	transactionRepo *repository.BankTransactionRepository,
	auditRepo *repository.AuditRepository,
	log zerolog.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		provider:        provider,
		invoiceRepo:     invoiceRepo,
		transactionRepo: transactionRepo,
		auditRepo:       auditRepo,
		db:              invoiceRepo.DB(),
		log:             log.With().Str("component", "reconciliation").Logger(),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// repos bundles transaction-scoped repositories
type repos struct {
	invoices     *repository.FinancialDocumentRepository
	transactions *repository.BankTransactionRepository
	audit        *repository.AuditRepository
}

// inTx runs fn inside one database transaction
func (s *ReconciliationService) inTx(ctx context.Context, fn func(r repos) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(repos{
			invoices:     s.invoiceRepo.WithTx(tx),
			transactions: s.transactionRepo.WithTx(tx),
			audit:        s.auditRepo.WithTx(tx),
		})
	})
}

type ReconcileResult struct {
	Invoice     *models.FinancialDocument `json:"invoice"`
	Transaction *models.BankTransaction   `json:"transaction"`
}

// ReconcileInvoice binds a credit transaction to an invoice and marks the
// invoice paid, at Qonto first and locally after. A provider failure leaves
// local state untouched.
func (s *ReconciliationService) ReconcileInvoice(ctx context.Context, invoiceID, transactionID uuid.UUID, actor string) (*ReconcileResult, error) {
	doc, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	tx, err := s.transactionRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	if err := checkPayable(doc); err != nil {
		return nil, err
	}
	if !tx.IsCredit() {
		return nil, apperrors.Validation("transaction %s is a debit and cannot pay an invoice", tx.ExternalTransactionID)
	}
	if tx.MatchingStatus == models.MatchingIgnored {
		return nil, apperrors.Validation("transaction %s is ignored, unignore it first", tx.ExternalTransactionID)
	}
	if tx.MatchingStatus == models.MatchingMatched && tx.MatchedDocumentID != nil && *tx.MatchedDocumentID != doc.ID {
		return nil, apperrors.Conflict("transaction %s is already bound to invoice %s", tx.ExternalTransactionID, tx.MatchedDocumentID)
	}
	taken, err := s.transactionRepo.IsDocumentBound(ctx, doc.ID, tx.ID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.Conflict("invoice %s is already bound to another transaction", doc.DocumentNumber)
	}

	paidAt := tx.EmittedAt
	if tx.SettledAt != nil {
		paidAt = *tx.SettledAt
	}
	remaining := doc.RemainingDue()
	details, err := json.Marshal(map[string]interface{}{
		"manual":            true,
		"invoice_id":        doc.ID.String(),
		"invoice_number":    doc.DocumentNumber,
		"performed_by":      actor,
		"amount_difference": tx.Amount.Sub(remaining).StringFixed(2),
	})
	if err != nil {
		return nil, fmt.Errorf("encode match details: %w", err)
	}

	if _, err := s.provider.MarkClientInvoiceAsPaid(ctx, *doc.QontoInvoiceID, paidAt); err != nil {
		remote, settled := s.refreshRejected(ctx, doc, err, models.DocumentStatusPaid)
		if !settled {
			return nil, fmt.Errorf("mark invoice %s as paid: %w", doc.DocumentNumber, err)
		}
		s.log.Warn().Err(err).
			Str("invoice", doc.DocumentNumber).
			Str("remote_status", remote.Status).
			Msg("invoice already paid at Qonto, recording reconciliation locally")
	}

	now := s.now()
	previous := tx.MatchedDocumentID
	doc.PaidAt = &paidAt
	if err := workflow.Apply(doc, models.WorkflowPaid, actor, now); err != nil {
		return nil, err
	}

	tx.MatchingStatus = models.MatchingMatched
	tx.MatchedDocumentID = &doc.ID
	tx.MatchedAt = &now
	tx.ConfidenceScore = 100
	tx.MatchDetails = details

	err = s.inTx(ctx, func(r repos) error {
		if err := r.invoices.Save(ctx, doc); err != nil {
			return err
		}
		if err := r.transactions.Save(ctx, tx); err != nil {
			return err
		}
		return r.audit.Record(ctx, &models.MatchAuditLog{
			TransactionID:    &tx.ID,
			DocumentID:       &doc.ID,
			Action:           models.ActionReconcile,
			PreviousDocument: previous,
			NewDocument:      &doc.ID,
			PerformedBy:      actor,
		})
	})
	if err != nil {
		s.log.Error().Err(err).
			Str("invoice", doc.DocumentNumber).
			Str("transaction", tx.ExternalTransactionID).
			Msg("invoice marked paid at Qonto but local commit failed, next invoice sync will catch up")
		return nil, fmt.Errorf("failed to record reconciliation: %w", err)
	}

	s.log.Info().
		Str("invoice", doc.DocumentNumber).
		Str("transaction", tx.ExternalTransactionID).
		Str("actor", actor).
		Msg("invoice reconciled")
	return &ReconcileResult{Invoice: doc, Transaction: tx}, nil
}

func checkPayable(doc *models.FinancialDocument) error {
	switch {
	case doc.DocumentType != models.DocumentCustomerInvoice:
		return apperrors.Validation("%s %s is not a customer invoice", doc.DocumentType, doc.DocumentNumber)
	case doc.IsArchived():
		return invalid(doc, models.WorkflowPaid, "invoice is archived")
	case doc.Status == models.DocumentStatusDraft:
		return invalid(doc, models.WorkflowPaid, "a draft invoice cannot be marked paid, finalize it first")
	case doc.IsCancelled():
		return invalid(doc, models.WorkflowPaid, "invoice is cancelled")
	case doc.WorkflowStatus == models.WorkflowPaid || doc.Status == models.DocumentStatusPaid:
		return apperrors.Conflict("invoice %s is already paid", doc.DocumentNumber)
	case doc.QontoInvoiceID == nil:
		return apperrors.Validation("invoice %s is not linked to Qonto", doc.DocumentNumber)
	case !workflow.CanTransition(doc.WorkflowStatus, models.WorkflowPaid):
		return invalid(doc, models.WorkflowPaid, "")
	}
	return nil
}

// ValidateToDraft moves a synchronized invoice to draft_validated. The
// update is guarded on the stored status so a concurrent call loses cleanly.
func (s *ReconciliationService) ValidateToDraft(ctx context.Context, invoiceID uuid.UUID, actorID string) (*models.FinancialDocument, error) {
	doc, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if doc.WorkflowStatus != models.WorkflowSynchronized {
		return nil, invalid(doc, models.WorkflowDraftValidated, "only synchronized invoices can be validated")
	}
	if err := workflow.Apply(doc, models.WorkflowDraftValidated, actorID, s.now()); err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(r repos) error {
		ok, err := r.invoices.UpdateIfWorkflow(ctx, doc.ID, models.WorkflowSynchronized, map[string]interface{}{
			"workflow_status":       doc.WorkflowStatus,
			"validated_to_draft_at": doc.ValidatedToDraftAt,
			"validated_by":          doc.ValidatedBy,
		})
		if err != nil {
			return err
		}
		if !ok {
			return &apperrors.InvalidTransitionError{
				Entity:    "invoice " + doc.DocumentNumber,
				Current:   "changed concurrently",
				Attempted: string(models.WorkflowDraftValidated),
			}
		}
		return r.audit.Record(ctx, &models.MatchAuditLog{
			DocumentID:  &doc.ID,
			Action:      models.ActionValidateToDraft,
			PerformedBy: actorID,
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// FinalizeInvoice finalizes at Qonto when the provider copy is still a
// draft, then moves the local workflow.
func (s *ReconciliationService) FinalizeInvoice(ctx context.Context, invoiceID uuid.UUID, actor string) (*models.FinancialDocument, error) {
	doc, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := checkMovable(doc, models.WorkflowFinalized); err != nil {
		return nil, err
	}

	if doc.Status == models.DocumentStatusDraft {
		if doc.QontoInvoiceID == nil {
			return nil, apperrors.Validation("invoice %s is not linked to Qonto", doc.DocumentNumber)
		}
		remote, err := s.provider.FinalizeClientInvoice(ctx, *doc.QontoInvoiceID)
		if err != nil {
			var settled bool
			remote, settled = s.refreshRejected(ctx, doc, err,
				models.DocumentStatusUnpaid, models.DocumentStatusOverdue, models.DocumentStatusPaid)
			if !settled {
				return nil, fmt.Errorf("finalize invoice %s: %w", doc.DocumentNumber, err)
			}
		}
		doc.Status = remote.Status
		if remote.InvoiceNumber != "" {
			doc.DocumentNumber = remote.InvoiceNumber
		}
	}

	return s.moveAndSave(ctx, doc, models.WorkflowFinalized, models.ActionFinalize, actor, "")
}

// SendInvoice emails a finalized invoice through Qonto
func (s *ReconciliationService) SendInvoice(ctx context.Context, invoiceID uuid.UUID, emails []string, actor string) (*models.FinancialDocument, error) {
	if len(emails) == 0 {
		return nil, apperrors.Validation("at least one recipient email is required")
	}
	doc, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := checkMovable(doc, models.WorkflowSent); err != nil {
		return nil, err
	}
	if doc.QontoInvoiceID == nil {
		return nil, apperrors.Validation("invoice %s is not linked to Qonto", doc.DocumentNumber)
	}

	if err := s.provider.SendClientInvoice(ctx, *doc.QontoInvoiceID, emails); err != nil {
		return nil, fmt.Errorf("send invoice %s: %w", doc.DocumentNumber, err)
	}
	return s.moveAndSave(ctx, doc, models.WorkflowSent, models.ActionSend, actor, fmt.Sprintf("sent to %d recipients", len(emails)))
}

// CancelInvoice cancels at Qonto (drafts are deleted there) and unbinds any
// transaction that pointed at the invoice.
func (s *ReconciliationService) CancelInvoice(ctx context.Context, invoiceID uuid.UUID, actor, reason string) (*models.FinancialDocument, error) {
	doc, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := checkMovable(doc, models.WorkflowCancelled); err != nil {
		return nil, err
	}

	if doc.QontoInvoiceID != nil && doc.Status != models.DocumentStatusCancelled {
		if doc.Status == models.DocumentStatusDraft {
			err = s.provider.DeleteClientInvoice(ctx, *doc.QontoInvoiceID)
		} else {
			_, err = s.provider.CancelClientInvoice(ctx, *doc.QontoInvoiceID)
		}
		if err != nil {
			return nil, fmt.Errorf("cancel invoice %s: %w", doc.DocumentNumber, err)
		}
	}

	return s.moveAndSave(ctx, doc, models.WorkflowCancelled, models.ActionCancel, actor, reason)
}

// refreshRejected reads the provider copy after Qonto refused an action with
// a conflict or validation error. It reports whether the invoice already
// stands in one of want there, meaning the action happened out of band.
func (s *ReconciliationService) refreshRejected(ctx context.Context, doc *models.FinancialDocument, actionErr error, want ...string) (*qonto.ClientInvoice, bool) {
	if !errors.Is(actionErr, apperrors.ErrConflict) && !errors.Is(actionErr, apperrors.ErrValidation) {
		return nil, false
	}
	remote, err := s.provider.GetClientInvoice(ctx, *doc.QontoInvoiceID)
	if err != nil {
		s.log.Warn().Err(err).Str("invoice", doc.DocumentNumber).Msg("could not refresh invoice from Qonto")
		return nil, false
	}
	for _, status := range want {
		if remote.Status == status {
			return remote, true
		}
	}
	return remote, false
}

func checkMovable(doc *models.FinancialDocument, to models.WorkflowStatus) error {
	if doc.IsArchived() {
		return invalid(doc, to, "invoice is archived")
	}
	if !workflow.CanTransition(doc.WorkflowStatus, to) {
		return invalid(doc, to, "")
	}
	if to == models.WorkflowFinalized && doc.Status != models.DocumentStatusDraft && doc.Status != models.DocumentStatusUnpaid && doc.Status != models.DocumentStatusOverdue {
		return invalid(doc, to, "provider status is "+doc.Status)
	}
	return nil
}

func (s *ReconciliationService) moveAndSave(ctx context.Context, doc *models.FinancialDocument, to models.WorkflowStatus, action, actor, reason string) (*models.FinancialDocument, error) {
	if err := workflow.Apply(doc, to, actor, s.now()); err != nil {
		return nil, err
	}
	err := s.inTx(ctx, func(r repos) error {
		if err := r.invoices.Save(ctx, doc); err != nil {
			return err
		}
		if to == models.WorkflowCancelled {
			if err := s.unbindAll(ctx, r, doc, actor, "invoice cancelled"); err != nil {
				return err
			}
		}
		return r.audit.Record(ctx, &models.MatchAuditLog{
			DocumentID:  &doc.ID,
			Action:      action,
			PerformedBy: actor,
			Reason:      reason,
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("invoice", doc.DocumentNumber).Str("workflow_status", string(to)).Str("actor", actor).Msg("invoice workflow moved")
	return doc, nil
}

// ArchiveInvoice soft-deletes the invoice; it leaves matching and
// reconciliation until unarchived.
func (s *ReconciliationService) ArchiveInvoice(ctx context.Context, invoiceID uuid.UUID, actor string) (*models.FinancialDocument, error) {
	doc, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if doc.IsArchived() {
		return nil, apperrors.Conflict("invoice %s is already archived", doc.DocumentNumber)
	}
	now := s.now()
	doc.DeletedAt = &now

	err = s.inTx(ctx, func(r repos) error {
		if err := r.invoices.Save(ctx, doc); err != nil {
			return err
		}
		if err := s.unbindAll(ctx, r, doc, actor, "invoice archived"); err != nil {
			return err
		}
		return r.audit.Record(ctx, &models.MatchAuditLog{DocumentID: &doc.ID, Action: models.ActionArchive, PerformedBy: actor})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *ReconciliationService) UnarchiveInvoice(ctx context.Context, invoiceID uuid.UUID, actor string) (*models.FinancialDocument, error) {
	doc, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !doc.IsArchived() {
		return nil, apperrors.Conflict("invoice %s is not archived", doc.DocumentNumber)
	}
	doc.DeletedAt = nil

	err = s.inTx(ctx, func(r repos) error {
		if err := r.invoices.Save(ctx, doc); err != nil {
			return err
		}
		return r.audit.Record(ctx, &models.MatchAuditLog{DocumentID: &doc.ID, Action: models.ActionUnarchive, PerformedBy: actor})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// unbindAll reverts transactions matched to doc. Paid invoices keep their
// binding, the money did arrive.
func (s *ReconciliationService) unbindAll(ctx context.Context, r repos, doc *models.FinancialDocument, actor, reason string) error {
	if doc.WorkflowStatus == models.WorkflowPaid {
		return nil
	}
	bound, err := r.transactions.ListBoundTo(ctx, doc.ID)
	if err != nil {
		return err
	}
	for i := range bound {
		tx := &bound[i]
		tx.MatchingStatus = models.MatchingUnmatched
		tx.MatchedDocumentID = nil
		tx.MatchedAt = nil
		tx.ConfidenceScore = 0
		tx.MatchDetails = nil
		if err := r.transactions.Save(ctx, tx); err != nil {
			return err
		}
		if err := r.audit.Record(ctx, &models.MatchAuditLog{
			TransactionID:    &tx.ID,
			DocumentID:       &doc.ID,
			Action:           models.ActionUnmatch,
			PreviousDocument: &doc.ID,
			PerformedBy:      actor,
			Reason:           reason,
		}); err != nil {
			return err
		}
	}
	return nil
}

func invalid(doc *models.FinancialDocument, to models.WorkflowStatus, reason string) error {
	return &apperrors.InvalidTransitionError{
		Entity:    "invoice " + doc.DocumentNumber,
		Current:   string(doc.WorkflowStatus),
		Attempted: string(to),
		Reason:    reason,
	}
}

// SearchInvoices used for admin manual search with optional filters
func (s *ReconciliationService) SearchInvoices(ctx context.Context, query string, workflowStatuses []string, includeArchived bool) ([]models.FinancialDocument, error) {
	return s.invoiceRepo.Search(ctx, query, workflowStatuses, includeArchived)
}

// ListMissingInvoices is the queue of unmatched transactions without receipt
func (s *ReconciliationService) ListMissingInvoices(ctx context.Context) ([]models.BankTransaction, error) {
	return s.transactionRepo.ListMissingInvoices(ctx)
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func (s *ReconciliationService) ListTransactions(
	ctx context.Context,
	status string,
	cursor string,
	limit int,
	search string,
) ([]models.BankTransaction, string, bool, error) {
	switch models.MatchingStatus(status) {
	case "", "all", models.MatchingUnmatched, models.MatchingMatched, models.MatchingIgnored:
	default:
		return nil, "", false, apperrors.Validation("unknown matching status %q", status)
	}
	if cursor != "" {
		if _, err := uuid.Parse(cursor); err != nil {
			return nil, "", false, apperrors.Validation("invalid cursor %q", cursor)
		}
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return s.transactionRepo.List(ctx, status, cursor, limit, search)
}

type TransactionStats struct {
	Total       int64   `json:"total"`
	TotalAmount float64 `json:"total_amount"`

	MatchedCount int64   `json:"matched_count"`
	MatchedSum   float64 `json:"matched_sum"`

	UnmatchedCount int64   `json:"unmatched_count"`
	UnmatchedSum   float64 `json:"unmatched_sum"`

	IgnoredCount int64   `json:"ignored_count"`
	IgnoredSum   float64 `json:"ignored_sum"`
}

func (s *ReconciliationService) TransactionStats(ctx context.Context) (TransactionStats, error) {
	var stats TransactionStats

	rows, err := s.transactionRepo.StatsByMatchingStatus(ctx)
	if err != nil {
		return stats, err
	}

	for _, r := range rows {
		stats.Total += r.Count
		stats.TotalAmount += r.Sum

		switch models.MatchingStatus(r.MatchingStatus) {
		case models.MatchingMatched:
			stats.MatchedCount = r.Count
			stats.MatchedSum = r.Sum
		case models.MatchingUnmatched:
			stats.UnmatchedCount = r.Count
			stats.UnmatchedSum = r.Sum
		case models.MatchingIgnored:
			stats.IgnoredCount = r.Count
			stats.IgnoredSum = r.Sum
		}
	}
	return stats, nil
}

// IgnoreTransaction takes a transaction out of matching and the missing-invoice queue
func (s *ReconciliationService) IgnoreTransaction(ctx context.Context, txID uuid.UUID, actor, reason string) (*models.BankTransaction, error) {
	tx, err := s.transactionRepo.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	switch tx.MatchingStatus {
	case models.MatchingIgnored:
		return nil, apperrors.Conflict("transaction %s is already ignored", tx.ExternalTransactionID)
	case models.MatchingMatched:
		return nil, apperrors.Conflict("transaction %s is matched to an invoice", tx.ExternalTransactionID)
	}
	tx.MatchingStatus = models.MatchingIgnored
	return tx, s.saveWithAudit(ctx, tx, models.ActionIgnore, actor, reason)
}

func (s *ReconciliationService) UnignoreTransaction(ctx context.Context, txID uuid.UUID, actor string) (*models.BankTransaction, error) {
	tx, err := s.transactionRepo.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.MatchingStatus != models.MatchingIgnored {
		return nil, apperrors.Conflict("transaction %s is not ignored", tx.ExternalTransactionID)
	}
	tx.MatchingStatus = models.MatchingUnmatched
	return tx, s.saveWithAudit(ctx, tx, models.ActionUnignore, actor, "")
}

var allowedVatRates = []decimal.Decimal{
	decimal.NewFromInt(0),
	decimal.RequireFromString("5.5"),
	decimal.NewFromInt(10),
	decimal.NewFromInt(20),
}

// UpdateManualVat overrides the VAT split of a transaction. A nil rate
// clears it.
func (s *ReconciliationService) UpdateManualVat(ctx context.Context, txID uuid.UUID, rate *decimal.Decimal, actor string) (*models.BankTransaction, error) {
	if rate != nil && !isAllowedRate(*rate) {
		return nil, apperrors.Validation("vat rate %s is not one of 0, 5.5, 10, 20", rate)
	}
	tx, err := s.transactionRepo.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}

	reason := "cleared"
	if rate == nil {
		tx.ClearVat()
	} else {
		tx.ApplyVat(*rate, models.VatSourceManual)
		reason = "rate " + rate.String()
	}
	return tx, s.saveWithAudit(ctx, tx, models.ActionVatOverride, actor, reason)
}

func isAllowedRate(rate decimal.Decimal) bool {
	for _, r := range allowedVatRates {
		if r.Equal(rate) {
			return true
		}
	}
	return false
}

func (s *ReconciliationService) saveWithAudit(ctx context.Context, tx *models.BankTransaction, action, actor, reason string) error {
	return s.inTx(ctx, func(r repos) error {
		if err := r.transactions.Save(ctx, tx); err != nil {
			return err
		}
		return r.audit.Record(ctx, &models.MatchAuditLog{
			TransactionID: &tx.ID,
			DocumentID:    tx.MatchedDocumentID,
			Action:        action,
			PerformedBy:   actor,
			Reason:        reason,
		})
	})
}

// History returns the audit trail of a transaction
func (s *ReconciliationService) History(ctx context.Context, txID uuid.UUID) ([]models.MatchAuditLog, error) {
	if _, err := s.transactionRepo.GetByID(ctx, txID); err != nil {
		return nil, err
	}
	return s.auditRepo.ListForTransaction(ctx, txID)
}
