package quotes

import (
	"context"
	"testing"

	"qonto-reconciliation-backend/internal/apperrors"
	"qonto-reconciliation-backend/internal/clients/qonto"
	"qonto-reconciliation-backend/internal/config"
	"qonto-reconciliation-backend/internal/models"
	"qonto-reconciliation-backend/internal/repository"
	"qonto-reconciliation-backend/internal/services/qontosync"
	"qonto-reconciliation-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreateClientQuote(ctx context.Context, params qonto.CreateQuoteParams, idempotencyKey string) (*qonto.ClientQuote, error) {
	args := m.Called(ctx, params, idempotencyKey)
	q, _ := args.Get(0).(*qonto.ClientQuote)
	return q, args.Error(1)
}

func (m *mockProvider) FinalizeClientQuote(ctx context.Context, id string) (*qonto.ClientQuote, error) {
	args := m.Called(ctx, id)
	q, _ := args.Get(0).(*qonto.ClientQuote)
	return q, args.Error(1)
}

type fixture struct {
	svc      *Service
	provider *mockProvider
	docs     *repository.FinancialDocumentRepository
	audit    *repository.AuditRepository
}

func setup(t *testing.T) *fixture {
	db := testutil.NewTestDB(t)
	f := &fixture{
		provider: &mockProvider{},
		docs:     repository.NewFinancialDocumentRepository(db),
		audit:    repository.NewAuditRepository(db),
	}
	store := qontosync.NewEngine(nil, repository.NewBankTransactionRepository(db), f.docs,
		repository.NewSyncRunRepository(db), f.audit, nil, config.SyncConfig{}, zerolog.Nop())
	f.svc = NewService(f.provider, store, f.docs, f.audit, zerolog.Nop())
	t.Cleanup(func() { f.provider.AssertExpectations(t) })
	return f
}

func quoteParams() qonto.CreateQuoteParams {
	return qonto.CreateQuoteParams{
		ClientID:   "cli-1",
		IssueDate:  "2024-05-01",
		ExpiryDate: "2024-06-01",
		Items: []qonto.LineItem{{
			Title:     "Chair",
			Quantity:  "2",
			UnitPrice: qonto.Amount{Value: "50.00", Currency: "EUR"},
			VatRate:   "0.20",
		}},
	}
}

func TestCreate_StoresQuoteAndAudits(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	params := quoteParams()

	f.provider.On("CreateClientQuote", mock.Anything, params, "key-1").
		Return(&qonto.ClientQuote{
			ID:          "qt-1",
			Status:      "pending_approval",
			Currency:    "eur",
			IssueDate:   "2024-05-01",
			ExpiryDate:  "2024-06-01",
			TotalAmount: decimal.RequireFromString("120.00"),
		}, nil).Once()

	doc, err := f.svc.Create(ctx, params, "key-1", "user-3")
	require.NoError(t, err)
	assert.Equal(t, models.DocumentQuote, doc.DocumentType)
	assert.Equal(t, "pending_approval", doc.Status)
	require.NotNil(t, doc.QontoQuoteID)
	assert.Equal(t, "qt-1", *doc.QontoQuoteID)

	entries, err := f.audit.ListForDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionQuoteCreate, entries[0].Action)
	assert.Equal(t, "user-3", entries[0].PerformedBy)
}

func TestCreate_ProviderFailureStoresNothing(t *testing.T) {
	f := setup(t)
	params := quoteParams()
	f.provider.On("CreateClientQuote", mock.Anything, params, "").
		Return(nil, &apperrors.ProviderError{Kind: apperrors.ErrValidation, StatusCode: 422}).Once()

	_, err := f.svc.Create(context.Background(), params, "", "user-3")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	found, err := f.docs.Search(context.Background(), "", nil, true)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestFinalize_MovesDraftQuote(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	qid := "qt-2"
	doc := &models.FinancialDocument{
		DocumentType:   models.DocumentQuote,
		Status:         "pending_approval",
		WorkflowStatus: models.WorkflowSynchronized,
		QontoQuoteID:   &qid,
	}
	require.NoError(t, f.docs.Create(ctx, doc))

	f.provider.On("FinalizeClientQuote", mock.Anything, qid).
		Return(&qonto.ClientQuote{ID: qid, QuoteNumber: "D-002", Status: "finalized"}, nil).Once()

	got, err := f.svc.Finalize(ctx, doc.ID, "user-3")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, "finalized", got.Status)
	assert.Equal(t, "D-002", got.DocumentNumber)

	_, err = f.svc.Finalize(ctx, doc.ID, "user-3")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestFinalize_Rejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	qid := "inv-1"
	invoice := &models.FinancialDocument{
		DocumentType:   models.DocumentCustomerInvoice,
		Status:         models.DocumentStatusDraft,
		WorkflowStatus: models.WorkflowSynchronized,
		QontoInvoiceID: &qid,
	}
	require.NoError(t, f.docs.Create(ctx, invoice))

	_, err := f.svc.Finalize(ctx, invoice.ID, "user-3")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.svc.Finalize(ctx, uuid.New(), "user-3")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	f.provider.AssertNotCalled(t, "FinalizeClientQuote", mock.Anything, mock.Anything)
}
