package qontosync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"qonto-reconciliation-backend/internal/clients/qonto"
	"qonto-reconciliation-backend/internal/models"
)

// SyncCreditNotes pulls client credit notes into FinancialDocument and
// links each one to the invoice it corrects when that invoice is stored.
func (e *Engine) SyncCreditNotes(ctx context.Context, opts Options) (*Result, error) {
	return syncDocuments(ctx, e, opts, documentSource[qonto.ClientCreditNote]{
		resource: models.ResourceCreditNotes,
		list: func(ctx context.Context, page, perPage int) (documentPage[qonto.ClientCreditNote], error) {
			p, err := e.provider.ListClientCreditNotes(ctx, qonto.PageParams{Page: page, PerPage: perPage})
			if err != nil {
				return documentPage[qonto.ClientCreditNote]{}, err
			}
			return documentPage[qonto.ClientCreditNote]{items: p.CreditNotes, rejected: p.Rejected, rawCount: p.RawCount, meta: p.Meta}, nil
		},
		ref: func(cn *qonto.ClientCreditNote) (string, time.Time) {
			return cn.ID, cn.UpdatedAt
		},
		upsert: e.upsertCreditNote,
	})
}

func (e *Engine) upsertCreditNote(ctx context.Context, cn *qonto.ClientCreditNote) (outcome, error) {
	creditNoteID := cn.ID
	incoming := &models.FinancialDocument{
		DocumentNumber:    cn.CreditNoteNumber,
		DocumentType:      models.DocumentCreditNote,
		Status:            cn.Status,
		CustomerName:      entityName(cn.Client),
		Currency:          strings.ToUpper(cn.Currency),
		TotalTTC:          cn.TotalAmount.Abs(), // stored as a magnitude
		QontoCreditNoteID: &creditNoteID,
	}
	var err error
	if incoming.DocumentDate, err = parseDate(cn.IssueDate); err != nil {
		return outcomeSkipped, fmt.Errorf("issue_date: %w", err)
	}

	existing, err := e.docRepo.FindByQontoCreditNoteID(ctx, cn.ID)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("lookup failed: %w", err)
	}
	_, out, err := e.upsertLinked(ctx, existing, incoming, cn.InvoiceID)
	return out, err
}
