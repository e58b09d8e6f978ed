package qontosync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"qonto-reconciliation-backend/internal/clients/qonto"
	"qonto-reconciliation-backend/internal/models"
	"qonto-reconciliation-backend/internal/services/workflow"
)

// SyncInvoices pulls client invoices into FinancialDocument and reruns
// matching when any invoice changed.
func (e *Engine) SyncInvoices(ctx context.Context, opts Options) (*Result, error) {
	return syncDocuments(ctx, e, opts, documentSource[qonto.ClientInvoice]{
		resource: models.ResourceClientInvoices,
		list: func(ctx context.Context, page, perPage int) (documentPage[qonto.ClientInvoice], error) {
			p, err := e.provider.ListClientInvoices(ctx, qonto.InvoiceParams{Page: page, PerPage: perPage})
			if err != nil {
				return documentPage[qonto.ClientInvoice]{}, err
			}
			return documentPage[qonto.ClientInvoice]{items: p.Invoices, rejected: p.Rejected, rawCount: p.RawCount, meta: p.Meta}, nil
		},
		ref: func(inv *qonto.ClientInvoice) (string, time.Time) {
			return inv.ID, inv.UpdatedAt
		},
		upsert:  e.upsertInvoice,
		rematch: true,
	})
}

// upsertInvoice refreshes provider-owned fields and lets the workflow catch
// up with provider status changes. Workflow stamps set locally are kept.
func (e *Engine) upsertInvoice(ctx context.Context, inv *qonto.ClientInvoice) (outcome, error) {
	incoming, err := mapInvoice(inv)
	if err != nil {
		return outcomeSkipped, err
	}
	now := e.now()

	existing, err := e.docRepo.FindByQontoID(ctx, inv.ID)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("lookup failed: %w", err)
	}
	if existing == nil {
		incoming.WorkflowStatus = models.WorkflowSynchronized
		incoming.SynchronizedAt = &now
		workflow.FollowProvider(incoming, now)
		if err := e.docRepo.Create(ctx, incoming); err != nil {
			return outcomeSkipped, fmt.Errorf("insert failed: %w", err)
		}
		return outcomeCreated, nil
	}

	// a settled or cancelled document keeps its status even if the provider lags
	if workflow.IsTerminal(existing.WorkflowStatus) {
		incoming.Status = existing.Status
	}
	if !invoiceChanged(existing, incoming) {
		return outcomeSkipped, nil
	}

	existing.DocumentNumber = incoming.DocumentNumber
	existing.Status = incoming.Status
	existing.CustomerName = incoming.CustomerName
	existing.PurchaseOrderNumber = incoming.PurchaseOrderNumber
	existing.Currency = incoming.Currency
	existing.TotalTTC = incoming.TotalTTC
	existing.DocumentDate = incoming.DocumentDate
	existing.DueDate = incoming.DueDate
	if incoming.PaidAt != nil {
		existing.PaidAt = incoming.PaidAt
	}
	existing.SynchronizedAt = &now
	if workflow.FollowProvider(existing, now) {
		e.log.Info().
			Str("invoice", existing.DocumentNumber).
			Str("workflow_status", string(existing.WorkflowStatus)).
			Msg("workflow advanced from provider status")
	}

	if err := e.docRepo.Save(ctx, existing); err != nil {
		return outcomeSkipped, fmt.Errorf("update failed: %w", err)
	}
	return outcomeUpdated, nil
}

func mapInvoice(inv *qonto.ClientInvoice) (*models.FinancialDocument, error) {
	qontoID := inv.ID
	doc := &models.FinancialDocument{
		DocumentNumber:      inv.InvoiceNumber,
		DocumentType:        models.DocumentCustomerInvoice,
		Status:              inv.Status,
		CustomerName:        inv.CustomerName(),
		PurchaseOrderNumber: inv.PurchaseOrderNumber,
		Currency:            strings.ToUpper(inv.Currency),
		TotalTTC:            inv.TotalAmount,
		QontoInvoiceID:      &qontoID,
	}

	var err error
	if doc.DocumentDate, err = parseDate(inv.IssueDate); err != nil {
		return nil, fmt.Errorf("issue_date: %w", err)
	}
	if doc.DueDate, err = parseDate(inv.PaymentDeadline); err != nil {
		return nil, fmt.Errorf("payment_deadline: %w", err)
	}
	if doc.PaidAt, err = parseDate(inv.PaidAt); err != nil {
		return nil, fmt.Errorf("paid_at: %w", err)
	}
	if inv.Status == models.DocumentStatusPaid {
		doc.AmountPaid = inv.TotalAmount
	}
	return doc, nil
}

func invoiceChanged(stored, incoming *models.FinancialDocument) bool {
	return stored.Status != incoming.Status ||
		stored.DocumentNumber != incoming.DocumentNumber ||
		stored.CustomerName != incoming.CustomerName ||
		stored.PurchaseOrderNumber != incoming.PurchaseOrderNumber ||
		!stored.TotalTTC.Equal(incoming.TotalTTC) ||
		!sameTime(stored.DueDate, incoming.DueDate) ||
		!sameTime(stored.DocumentDate, incoming.DocumentDate)
}

// parseDate accepts plain dates and RFC 3339 timestamps; empty means unset.
func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("unrecognised date %q", raw)
	}
	t = t.UTC()
	return &t, nil
}
