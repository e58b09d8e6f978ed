package qontosync

import (
	"context"
	"testing"
	"time"

	"qonto-reconciliation-backend/internal/clients/qonto"
	"qonto-reconciliation-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func qinvoice(id, number, status, total string) qonto.ClientInvoice {
	return qonto.ClientInvoice{
		ID:              id,
		InvoiceNumber:   number,
		Status:          status,
		Currency:        "eur",
		Client:          &qonto.ClientEntity{Name: "Acme"},
		IssueDate:       "2024-02-01",
		PaymentDeadline: "2024-03-01",
		TotalAmount:     decimal.RequireFromString(total),
		UpdatedAt:       time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestSyncInvoices_CreatesAndFollowsProvider(t *testing.T) {
	h := newHarness(t, testConfig())
	h.provider.invoicePages = []*qonto.InvoicesPage{{
		Invoices: []qonto.ClientInvoice{
			qinvoice("q-1", "F-001", "unpaid", "100.00"),
			qinvoice("q-2", "F-002", "paid", "80.00"),
		},
		RawCount: 2,
	}}

	res, err := h.engine.SyncInvoices(context.Background(), Options{Scope: models.ScopeAll})
	require.NoError(t, err)
	assert.Equal(t, models.SyncSuccess, res.Status)
	assert.Equal(t, 2, res.ItemsCreated)

	unpaid, err := h.docs.FindByQontoID(context.Background(), "q-1")
	require.NoError(t, err)
	require.NotNil(t, unpaid)
	assert.Equal(t, models.WorkflowSynchronized, unpaid.WorkflowStatus)
	assert.Equal(t, "EUR", unpaid.Currency)
	assert.Equal(t, "Acme", unpaid.CustomerName)
	require.NotNil(t, unpaid.DueDate)
	assert.Equal(t, "2024-03-01", unpaid.DueDate.Format("2006-01-02"))
	assert.NotNil(t, unpaid.SynchronizedAt)

	paid, err := h.docs.FindByQontoID(context.Background(), "q-2")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowPaid, paid.WorkflowStatus)
	assert.True(t, paid.RemainingDue().IsZero())

	// provider finalizes and then cancels F-001 on its side
	unpaid.WorkflowStatus = models.WorkflowDraftValidated
	require.NoError(t, h.docs.Save(context.Background(), unpaid))
	h.provider.invoicePages = []*qonto.InvoicesPage{{
		Invoices: []qonto.ClientInvoice{
			qinvoice("q-1", "F-001", "cancelled", "100.00"),
			qinvoice("q-2", "F-002", "paid", "80.00"),
		},
		RawCount: 2,
	}}

	res, err = h.engine.SyncInvoices(context.Background(), Options{Scope: models.ScopeAll})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ItemsUpdated)
	assert.Equal(t, 1, res.ItemsSkipped)

	got, err := h.docs.FindByQontoID(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowCancelled, got.WorkflowStatus)
	assert.NotNil(t, got.CancelledAt)
}

func TestSyncInvoices_RecordsRejectedAndBadDates(t *testing.T) {
	h := newHarness(t, testConfig())
	bad := qinvoice("q-2", "F-002", "unpaid", "10.00")
	bad.IssueDate = "01/02/2024"
	h.provider.invoicePages = []*qonto.InvoicesPage{{
		Invoices: []qonto.ClientInvoice{qinvoice("q-1", "F-001", "unpaid", "100.00"), bad},
		Rejected: []qonto.RejectedItem{{ID: "q-3", Reason: "status failed"}},
		RawCount: 3,
	}}

	res, err := h.engine.SyncInvoices(context.Background(), Options{Scope: models.ScopeAll})

	require.NoError(t, err)
	assert.Equal(t, models.SyncPartial, res.Status)
	assert.Equal(t, 1, res.ItemsCreated)
	assert.Equal(t, 2, res.ItemsFailed)
}

func TestSyncInvoices_IncrementalSkipsOlderItems(t *testing.T) {
	h := newHarness(t, testConfig())
	old := qinvoice("q-1", "F-001", "unpaid", "100.00")
	old.UpdatedAt = time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	h.provider.invoicePages = []*qonto.InvoicesPage{{
		Invoices: []qonto.ClientInvoice{old, qinvoice("q-2", "F-002", "unpaid", "5.00")},
		RawCount: 2,
	}}

	res, err := h.engine.SyncInvoices(context.Background(), Options{Scope: models.ScopeIncremental})

	require.NoError(t, err)
	assert.Equal(t, 1, res.ItemsCreated)
	assert.Equal(t, 1, res.ItemsSkipped)
}
