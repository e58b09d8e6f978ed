package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"qonto-reconciliation-backend/internal/apperrors"
	"qonto-reconciliation-backend/internal/clients/qonto"
	"qonto-reconciliation-backend/internal/models"
	"qonto-reconciliation-backend/internal/repository"
	"qonto-reconciliation-backend/internal/services/attachments"
	"qonto-reconciliation-backend/internal/services/matching"
	"qonto-reconciliation-backend/internal/services/qontosync"
	service "qonto-reconciliation-backend/internal/services/reconciliation"
	"qonto-reconciliation-backend/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(zerolog.Nop()))
	return r
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-User-ID", "user-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", apperrors.NotFound("invoice", "x"), http.StatusNotFound},
		{"conflict", apperrors.Conflict("busy"), http.StatusBadRequest},
		{"validation", apperrors.Validation("bad"), http.StatusBadRequest},
		{"invalid transition", &apperrors.InvalidTransitionError{Entity: "invoice", Current: "paid", Attempted: "sent"}, http.StatusBadRequest},
		{"configuration", apperrors.Configuration("no credentials"), http.StatusServiceUnavailable},
		{"transient", &apperrors.ProviderError{Kind: apperrors.ErrTransient, StatusCode: 503}, http.StatusServiceUnavailable},
		{"provider auth", &apperrors.ProviderError{Kind: apperrors.ErrAuth, StatusCode: 401}, http.StatusBadGateway},
		{"provider not found", &apperrors.ProviderError{Kind: apperrors.ErrNotFound, StatusCode: 404}, http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

type stubHealth struct {
	result qonto.HealthCheckResult
}

func (s stubHealth) HealthCheck(ctx context.Context) qonto.HealthCheckResult {
	return s.result
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		result     qonto.HealthCheckResult
		wantCode   int
		wantStatus string
	}{
		{
			name:       "healthy",
			result:     qonto.HealthCheckResult{Healthy: true, AuthMode: qonto.AuthAPIKey, BankAccountsCount: 2},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name:       "misconfigured",
			result:     qonto.HealthCheckResult{Error: "no credentials", Err: apperrors.Configuration("no credentials")},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "misconfigured",
		},
		{
			name:       "unhealthy",
			result:     qonto.HealthCheckResult{AuthMode: qonto.AuthOAuth, Error: "401", Err: &apperrors.ProviderError{Kind: apperrors.ErrAuth, StatusCode: 401}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter()
			r.GET("/api/health", NewHealthHandler(stubHealth{tt.result}).Check)

			w := do(r, http.MethodGet, "/api/health", "")
			assert.Equal(t, tt.wantCode, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.wantStatus, body["status"])
			if tt.result.Healthy {
				assert.Equal(t, float64(2), body["bankAccountsCount"])
				assert.NotContains(t, body, "error")
			} else {
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

type stubSyncer struct {
	lastOpts     qontosync.Options
	lastResource string
	result       *qontosync.Result
	err          error
	run          *models.SyncRun
}

func (s *stubSyncer) SyncTransactions(ctx context.Context, opts qontosync.Options) (*qontosync.Result, error) {
	s.lastOpts, s.lastResource = opts, models.ResourceTransactions
	return s.result, s.err
}

func (s *stubSyncer) SyncInvoices(ctx context.Context, opts qontosync.Options) (*qontosync.Result, error) {
	s.lastOpts, s.lastResource = opts, models.ResourceClientInvoices
	return s.result, s.err
}

func (s *stubSyncer) SyncCreditNotes(ctx context.Context, opts qontosync.Options) (*qontosync.Result, error) {
	s.lastOpts, s.lastResource = opts, models.ResourceCreditNotes
	return s.result, s.err
}

func (s *stubSyncer) SyncQuotes(ctx context.Context, opts qontosync.Options) (*qontosync.Result, error) {
	s.lastOpts, s.lastResource = opts, models.ResourceQuotes
	return s.result, s.err
}

func (s *stubSyncer) LastRun(ctx context.Context, resource string) (*models.SyncRun, error) {
	if resource == "bogus" {
		return nil, apperrors.Validation("unknown sync resource %q", resource)
	}
	return s.run, nil
}

func syncRouter(s *stubSyncer) *gin.Engine {
	r := newRouter()
	h := NewSyncHandler(s, zerolog.Nop())
	r.POST("/api/sync", h.Trigger)
	r.GET("/api/sync", h.Status)
	return r
}

func TestSyncHandler_Trigger(t *testing.T) {
	s := &stubSyncer{result: &qontosync.Result{Success: true, Status: models.SyncPartial, ItemsCreated: 9, ItemsFailed: 1}}
	r := syncRouter(s)

	w := do(r, http.MethodPost, "/api/sync?scope=all&from=2024-01-01&auto_create_expenses=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "partial", body["status"])
	assert.Equal(t, float64(9), body["itemsCreated"])
	assert.Equal(t, float64(1), body["itemsFailed"])

	assert.Equal(t, models.ResourceTransactions, s.lastResource)
	assert.Equal(t, models.ScopeAll, s.lastOpts.Scope)
	require.NotNil(t, s.lastOpts.FromDate)
	assert.Equal(t, "2024-01-01", s.lastOpts.FromDate.Format("2006-01-02"))
	assert.True(t, s.lastOpts.AutoCreateExpenses)

	for _, resource := range []string{models.ResourceClientInvoices, models.ResourceCreditNotes, models.ResourceQuotes} {
		w = do(r, http.MethodPost, "/api/sync?resource="+resource, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, resource, s.lastResource)
	}
}

func TestSyncHandler_TriggerErrors(t *testing.T) {
	s := &stubSyncer{}
	r := syncRouter(s)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/sync?from=01-02-2024", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/sync?auto_create_expenses=maybe", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/sync?resource=suppliers", "").Code)

	s.err = apperrors.Conflict("a transactions sync is already running")
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/sync", "").Code)

	s.err = nil
	s.result = &qontosync.Result{Success: false, Status: models.SyncFailed, Message: "provider authentication failed"}
	w := do(r, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "failed", decode(t, w)["status"])
}

func TestSyncHandler_Status(t *testing.T) {
	s := &stubSyncer{}
	r := syncRouter(s)

	w := do(r, http.MethodGet, "/api/sync", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Contains(t, body, "lastSync")
	assert.Nil(t, body["lastSync"])

	s.run = &models.SyncRun{ID: uuid.New(), Resource: models.ResourceTransactions, Status: models.SyncSuccess}
	w = do(r, http.MethodGet, "/api/sync?resource=transactions", "")
	require.Equal(t, http.StatusOK, w.Code)
	last := decode(t, w)["lastSync"].(map[string]interface{})
	assert.Equal(t, "success", last["status"])

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/sync?resource=bogus", "").Code)
}

type stubOpener struct {
	file *attachments.File
	err  error
}

func (s stubOpener) Open(ctx context.Context, id string) (*attachments.File, error) {
	return s.file, s.err
}

func TestAttachmentHandler(t *testing.T) {
	r := newRouter()
	r.GET("/api/attachments/:id", NewAttachmentHandler(stubOpener{file: &attachments.File{
		Body:        io.NopCloser(strings.NewReader("%PDF-1.4")),
		ContentType: "application/pdf",
		FileName:    "receipt.pdf",
	}}).Get)

	w := do(r, http.MethodGet, "/api/attachments/att-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.4", w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "private, max-age=300", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "receipt.pdf")

	r = newRouter()
	r.GET("/api/attachments/:id", NewAttachmentHandler(stubOpener{err: &apperrors.ProviderError{Kind: apperrors.ErrNotFound, StatusCode: 404}}).Get)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/attachments/missing", "").Code)
}

type noopProvider struct{}

func (noopProvider) GetClientInvoice(ctx context.Context, id string) (*qonto.ClientInvoice, error) {
	return &qonto.ClientInvoice{ID: id, Status: "unpaid"}, nil
}
func (noopProvider) MarkClientInvoiceAsPaid(ctx context.Context, id string, paidAt time.Time) (*qonto.ClientInvoice, error) {
	return &qonto.ClientInvoice{ID: id, Status: "paid"}, nil
}
func (noopProvider) FinalizeClientInvoice(ctx context.Context, id string) (*qonto.ClientInvoice, error) {
	return &qonto.ClientInvoice{ID: id, Status: "unpaid"}, nil
}
func (noopProvider) SendClientInvoice(ctx context.Context, id string, emails []string) error {
	return nil
}
func (noopProvider) CancelClientInvoice(ctx context.Context, id string) (*qonto.ClientInvoice, error) {
	return &qonto.ClientInvoice{ID: id, Status: "cancelled"}, nil
}
func (noopProvider) DeleteClientInvoice(ctx context.Context, id string) error {
	return nil
}

type stubMatcher struct{}

func (stubMatcher) Run(ctx context.Context) (matching.Result, error) {
	return matching.Result{Examined: 3, Matched: 1}, nil
}

type reconFixture struct {
	router *gin.Engine
	docs   *repository.FinancialDocumentRepository
	txs    *repository.BankTransactionRepository
}

func setupRecon(t *testing.T) *reconFixture {
	db := testutil.NewTestDB(t)
	f := &reconFixture{
		docs: repository.NewFinancialDocumentRepository(db),
		txs:  repository.NewBankTransactionRepository(db),
	}
	svc := service.NewReconciliationService(noopProvider{}, f.docs, f.txs, repository.NewAuditRepository(db), zerolog.Nop())
	h := NewReconciliationHandler(svc, stubMatcher{}, zerolog.Nop())

	r := newRouter()
	api := r.Group("/api")
	api.GET("/invoices", h.SearchInvoices)
	api.POST("/invoices/:id/reconcile", h.ReconcileInvoice)
	api.POST("/invoices/:id/validate-to-draft", h.ValidateToDraft)
	api.POST("/invoices/:id/send", h.SendInvoice)
	api.POST("/matching/run", h.RunMatching)
	api.GET("/transactions", h.ListTransactions)
	api.GET("/transactions/stats", h.TransactionStats)
	api.GET("/transactions/missing-invoices", h.MissingInvoices)
	api.POST("/transactions/update-vat", h.UpdateVat)
	api.POST("/transactions/:id/ignore", h.IgnoreTransaction)
	api.GET("/transactions/:id/history", h.TransactionHistory)
	f.router = r
	return f
}

func (f *reconFixture) invoice(t *testing.T, status string, wf models.WorkflowStatus) *models.FinancialDocument {
	qid := "qinv-" + uuid.NewString()
	doc := &models.FinancialDocument{
		DocumentNumber: "F-2024-007",
		DocumentType:   models.DocumentCustomerInvoice,
		Status:         status,
		WorkflowStatus: wf,
		CustomerName:   "Globex",
		Currency:       "EUR",
		TotalTTC:       decimal.RequireFromString("120.00"),
		QontoInvoiceID: &qid,
	}
	require.NoError(t, f.docs.Create(context.Background(), doc))
	return doc
}

func (f *reconFixture) transaction(t *testing.T, side models.TransactionSide, label string) *models.BankTransaction {
	tx := &models.BankTransaction{
		ExternalTransactionID: "tx-" + uuid.NewString(),
		Amount:                decimal.RequireFromString("120.00"),
		Side:                  side,
		Currency:              "EUR",
		Label:                 label,
		CounterpartyName:      "Globex",
		EmittedAt:             time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC),
		Status:                "completed",
		MatchingStatus:        models.MatchingUnmatched,
	}
	require.NoError(t, f.txs.Create(context.Background(), tx))
	return tx
}

func TestReconcileInvoiceEndpoint(t *testing.T) {
	f := setupRecon(t)
	doc := f.invoice(t, models.DocumentStatusUnpaid, models.WorkflowSent)
	tx := f.transaction(t, models.SideCredit, "VIR GLOBEX")

	w := do(f.router, http.MethodPost, "/api/invoices/"+doc.ID.String()+"/reconcile", `{"transactionId":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(f.router, http.MethodPost, "/api/invoices/not-a-uuid/reconcile", `{"transactionId":"`+tx.ID.String()+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(f.router, http.MethodPost, "/api/invoices/"+uuid.NewString()+"/reconcile", `{"transactionId":"`+tx.ID.String()+`"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(f.router, http.MethodPost, "/api/invoices/"+doc.ID.String()+"/reconcile", `{"transactionId":"`+tx.ID.String()+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	invoice := decode(t, w)["invoice"].(map[string]interface{})
	assert.Equal(t, "paid", invoice["workflow_status"])

	w = do(f.router, http.MethodGet, "/api/transactions/"+tx.ID.String()+"/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	items := decode(t, w)["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "user-42", items[0].(map[string]interface{})["performed_by"])
}

func TestValidateToDraftEndpoint(t *testing.T) {
	f := setupRecon(t)
	doc := f.invoice(t, models.DocumentStatusDraft, models.WorkflowSynchronized)
	path := "/api/invoices/" + doc.ID.String() + "/validate-to-draft"

	w := do(f.router, http.MethodPost, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "draft_validated", decode(t, w)["invoice"].(map[string]interface{})["workflow_status"])

	w = do(f.router, http.MethodPost, path, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "cannot move from")
}

func TestSendInvoiceEndpoint_ValidatesEmails(t *testing.T) {
	f := setupRecon(t)
	doc := f.invoice(t, models.DocumentStatusUnpaid, models.WorkflowFinalized)
	path := "/api/invoices/" + doc.ID.String() + "/send"

	assert.Equal(t, http.StatusBadRequest, do(f.router, http.MethodPost, path, `{"emails":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(f.router, http.MethodPost, path, `{"emails":["not-an-email"]}`).Code)

	w := do(f.router, http.MethodPost, path, `{"emails":["billing@globex.test"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sent", decode(t, w)["invoice"].(map[string]interface{})["workflow_status"])
}

func TestMissingInvoicesEndpoint(t *testing.T) {
	f := setupRecon(t)
	f.transaction(t, models.SideDebit, "CB OFFICE SUPPLIES")
	ignored := f.transaction(t, models.SideDebit, "TRANSFER SAVINGS")

	w := do(f.router, http.MethodPost, "/api/transactions/"+ignored.ID.String()+"/ignore", `{"reason":"internal"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(f.router, http.MethodGet, "/api/transactions/missing-invoices", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = do(f.router, http.MethodGet, "/api/transactions/missing-invoices?format=csv", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "missing-invoices-")

	rows, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, missingInvoiceColumns, rows[0])
	assert.Equal(t, "120.00", rows[1][3])
	assert.Equal(t, "CB OFFICE SUPPLIES", rows[1][6])
}

func TestUpdateVatEndpoint(t *testing.T) {
	f := setupRecon(t)
	tx := f.transaction(t, models.SideDebit, "CB RESTAURANT")

	w := do(f.router, http.MethodPost, "/api/transactions/update-vat", `{"transaction_id":"`+tx.ID.String()+`","vat_rate":20}`)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)["transaction"].(map[string]interface{})
	assert.Equal(t, "manual", got["vat_source"])
	assert.True(t, decimal.RequireFromString(got["amount_ht"].(string)).Equal(decimal.NewFromInt(100)))
	assert.True(t, decimal.RequireFromString(got["vat_amount"].(string)).Equal(decimal.NewFromInt(20)))

	w = do(f.router, http.MethodPost, "/api/transactions/update-vat", `{"transaction_id":"`+tx.ID.String()+`","vat_rate":null}`)
	require.Equal(t, http.StatusOK, w.Code)
	got = decode(t, w)["transaction"].(map[string]interface{})
	assert.Nil(t, got["vat_rate"])
	assert.Nil(t, got["amount_ht"])

	w = do(f.router, http.MethodPost, "/api/transactions/update-vat", `{"transaction_id":"`+tx.ID.String()+`","vat_rate":7}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(f.router, http.MethodPost, "/api/transactions/update-vat", `{"vat_rate":20}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListTransactionsEndpoint(t *testing.T) {
	f := setupRecon(t)
	f.transaction(t, models.SideCredit, "VIR A")
	f.transaction(t, models.SideCredit, "VIR B")
	f.transaction(t, models.SideDebit, "CB C")

	w := do(f.router, http.MethodGet, "/api/transactions?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["items"], 2)
	assert.Equal(t, true, body["has_more"])
	assert.NotEmpty(t, body["next_cursor"])
	stats := body["stats"].(map[string]interface{})
	assert.Equal(t, float64(3), stats["total"])

	w = do(f.router, http.MethodGet, "/api/transactions?status=weird", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(f.router, http.MethodGet, "/api/transactions/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decode(t, w)["unmatched_count"])
}

func TestSearchAndMatchingEndpoints(t *testing.T) {
	f := setupRecon(t)
	f.invoice(t, models.DocumentStatusUnpaid, models.WorkflowFinalized)

	w := do(f.router, http.MethodGet, "/api/invoices?q=glob&workflow_status=finalized,sent", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["items"], 1)

	w = do(f.router, http.MethodPost, "/api/matching/run", "")
	require.Equal(t, http.StatusOK, w.Code)
	result := decode(t, w)["result"].(map[string]interface{})
	assert.Equal(t, float64(1), result["matched"])
}

func TestAttachmentHandler_EscapesFileName(t *testing.T) {
	name := "a\"b\r\nSet-Cookie: x=1.pdf"
	r := newRouter()
	r.GET("/api/attachments/:id", NewAttachmentHandler(stubOpener{file: &attachments.File{
		Body:        io.NopCloser(strings.NewReader("%PDF")),
		ContentType: "application/pdf",
		FileName:    name,
	}}).Get)

	w := do(r, http.MethodGet, "/api/attachments/att-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Values("Set-Cookie"))

	disposition := w.Header().Get("Content-Disposition")
	assert.NotContains(t, disposition, "\r")
	assert.NotContains(t, disposition, "\n")
	kind, params, err := mime.ParseMediaType(disposition)
	require.NoError(t, err)
	assert.Equal(t, "inline", kind)
	assert.Equal(t, name, params["filename"])
}

func TestRequestLogger_HandlersLogWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(&buf)))
	r.GET("/ping", func(c *gin.Context) {
		log := requestLog(c)
		log.Info().Msg("inside handler")
		c.String(http.StatusOK, "pong")
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-7")
	r.ServeHTTP(httptest.NewRecorder(), req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"message":"inside handler"`)
	assert.Contains(t, lines[0], `"request_id":"req-7"`)
	assert.Contains(t, lines[1], `"message":"http request"`)
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	r := newRouter()
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := do(r, http.MethodGet, "/ping", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}

type stubQuotes struct {
	key, actor string
	params     qonto.CreateQuoteParams
	err        error
}

func (s *stubQuotes) Create(ctx context.Context, params qonto.CreateQuoteParams, idempotencyKey, actor string) (*models.FinancialDocument, error) {
	s.params, s.key, s.actor = params, idempotencyKey, actor
	if s.err != nil {
		return nil, s.err
	}
	return &models.FinancialDocument{ID: uuid.New(), DocumentType: models.DocumentQuote, Status: "pending_approval"}, nil
}

func (s *stubQuotes) Finalize(ctx context.Context, id uuid.UUID, actor string) (*models.FinancialDocument, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.FinancialDocument{ID: id, DocumentType: models.DocumentQuote, Status: "finalized"}, nil
}

func TestQuoteHandler(t *testing.T) {
	s := &stubQuotes{}
	h := NewQuoteHandler(s)
	r := newRouter()
	r.POST("/api/quotes", h.Create)
	r.POST("/api/quotes/:id/finalize", h.Finalize)

	req := httptest.NewRequest(http.MethodPost, "/api/quotes",
		strings.NewReader(`{"client_id":"cli-1","issue_date":"2024-05-01","expiry_date":"2024-06-01","items":[{"title":"Chair","quantity":"2","unit_price":{"value":"50.00","currency":"EUR"},"vat_rate":"0.20"}]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "key-7")
	req.Header.Set("X-User-ID", "user-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "pending_approval", decode(t, w)["quote"].(map[string]interface{})["status"])
	assert.Equal(t, "key-7", s.key)
	assert.Equal(t, "user-42", s.actor)
	assert.Equal(t, "cli-1", s.params.ClientID)
	require.Len(t, s.params.Items, 1)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/quotes", `{"items":"nope"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/quotes/not-a-uuid/finalize", "").Code)

	w = do(r, http.MethodPost, "/api/quotes/"+uuid.NewString()+"/finalize", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "finalized", decode(t, w)["quote"].(map[string]interface{})["status"])

	s.err = &apperrors.InvalidTransitionError{Entity: "quote D-1", Current: "accepted", Attempted: "finalized"}
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/quotes/"+uuid.NewString()+"/finalize", "").Code)
}
