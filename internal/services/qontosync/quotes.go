package qontosync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"qonto-reconciliation-backend/internal/clients/qonto"
	"qonto-reconciliation-backend/internal/models"
)

// SyncQuotes pulls client quotes into FinancialDocument
func (e *Engine) SyncQuotes(ctx context.Context, opts Options) (*Result, error) {
	return syncDocuments(ctx, e, opts, documentSource[qonto.ClientQuote]{
		resource: models.ResourceQuotes,
		list: func(ctx context.Context, page, perPage int) (documentPage[qonto.ClientQuote], error) {
			p, err := e.provider.ListClientQuotes(ctx, qonto.PageParams{Page: page, PerPage: perPage})
			if err != nil {
				return documentPage[qonto.ClientQuote]{}, err
			}
			return documentPage[qonto.ClientQuote]{items: p.Quotes, rejected: p.Rejected, rawCount: p.RawCount, meta: p.Meta}, nil
		},
		ref: func(q *qonto.ClientQuote) (string, time.Time) {
			return q.ID, q.UpdatedAt
		},
		upsert: func(ctx context.Context, q *qonto.ClientQuote) (outcome, error) {
			_, out, err := e.upsertQuote(ctx, q)
			return out, err
		},
	})
}

// StoreQuote records a quote the caller just created or changed at Qonto
func (e *Engine) StoreQuote(ctx context.Context, q *qonto.ClientQuote) (*models.FinancialDocument, error) {
	doc, _, err := e.upsertQuote(ctx, q)
	return doc, err
}

func (e *Engine) upsertQuote(ctx context.Context, q *qonto.ClientQuote) (*models.FinancialDocument, outcome, error) {
	incoming, err := mapQuote(q)
	if err != nil {
		return nil, outcomeSkipped, err
	}
	existing, err := e.docRepo.FindByQontoQuoteID(ctx, q.ID)
	if err != nil {
		return nil, outcomeSkipped, fmt.Errorf("lookup failed: %w", err)
	}
	return e.upsertLinked(ctx, existing, incoming, q.ConvertedToInvoiceID)
}

func mapQuote(q *qonto.ClientQuote) (*models.FinancialDocument, error) {
	quoteID := q.ID
	doc := &models.FinancialDocument{
		DocumentNumber:      q.QuoteNumber,
		DocumentType:        models.DocumentQuote,
		Status:              q.Status,
		CustomerName:        entityName(q.Client),
		PurchaseOrderNumber: q.PurchaseOrderNumber,
		Currency:            strings.ToUpper(q.Currency),
		TotalTTC:            q.TotalAmount,
		QontoQuoteID:        &quoteID,
	}

	var err error
	if doc.DocumentDate, err = parseDate(q.IssueDate); err != nil {
		return nil, fmt.Errorf("issue_date: %w", err)
	}
	// a quote's due date is when the offer lapses
	if doc.DueDate, err = parseDate(q.ExpiryDate); err != nil {
		return nil, fmt.Errorf("expiry_date: %w", err)
	}
	return doc, nil
}
