// Package qonto is a typed client for the Qonto Business API. It never
// retries; callers decide what a transient failure means for them.
package qonto

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"qonto-reconciliation-backend/internal/apperrors"
	"qonto-reconciliation-backend/internal/config"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type AuthMode string

const (
	AuthNone   AuthMode = ""
	AuthOAuth  AuthMode = "oauth"
	AuthAPIKey AuthMode = "api_key"
)

const idempotencyHeader = "X-Qonto-Idempotency-Key"

// Client for the Qonto API
type Client struct {
	baseURL string
	client  *http.Client
	creds   config.QontoConfig
	log     zerolog.Logger

	mu      sync.RWMutex
	mode    AuthMode
	authErr error
}

// NewClient creates a client and resolves its auth mode. A client without
// usable credentials is still returned; every call then fails with a
// configuration error.
func NewClient(cfg config.QontoConfig, log zerolog.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://thirdparty.qonto.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		creds:   cfg,
		log:     log.With().Str("client", "qonto").Logger(),
	}

	if mode := AuthMode(strings.ToLower(cfg.AuthMode)); mode != AuthNone {
		c.authErr = c.Authenticate(mode)
	} else {
		c.authErr = c.detectMode()
	}
	if c.authErr != nil {
		c.log.Warn().Err(c.authErr).Msg("qonto client is not configured")
	}
	return c
}

func (c *Client) detectMode() error {
	hasOAuth := c.creds.AccessToken != ""
	hasKey := c.creds.OrganizationID != "" && c.creds.APIKey != ""
	switch {
	case hasOAuth && hasKey:
		return apperrors.Configuration("both OAuth and API key credentials are set, choose one with QONTO_AUTH_MODE")
	case hasOAuth:
		return c.Authenticate(AuthOAuth)
	case hasKey:
		return c.Authenticate(AuthAPIKey)
	default:
		return apperrors.Configuration("no Qonto credentials configured")
	}
}

// Authenticate selects the credential set used for every following request.
func (c *Client) Authenticate(mode AuthMode) error {
	var err error
	switch mode {
	case AuthOAuth:
		if c.creds.AccessToken == "" {
			err = apperrors.Configuration("oauth mode requires QONTO_ACCESS_TOKEN")
		}
	case AuthAPIKey:
		if c.creds.OrganizationID == "" || c.creds.APIKey == "" {
			err = apperrors.Configuration("api_key mode requires QONTO_ORGANIZATION_ID and QONTO_API_KEY")
		}
	default:
		err = apperrors.Configuration("unknown auth mode %q", mode)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.mode = AuthNone
		c.authErr = err
		return err
	}
	c.mode = mode
	c.authErr = nil
	return nil
}

// AuthMode returns the selected mode, empty when none is usable.
func (c *Client) AuthMode() AuthMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// ConfigError returns why the client cannot make requests, or nil.
func (c *Client) ConfigError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authErr
}

func (c *Client) authHeader() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.authErr != nil {
		return "", c.authErr
	}
	switch c.mode {
	case AuthOAuth:
		return "Bearer " + c.creds.AccessToken, nil
	case AuthAPIKey:
		return c.creds.OrganizationID + ":" + c.creds.APIKey, nil
	}
	return "", apperrors.Configuration("qonto auth mode not selected")
}

type requestOptions struct {
	query          url.Values
	body           interface{}
	idempotencyKey string
}

// do sends one request and decodes a successful body into out.
func (c *Client) do(ctx context.Context, method, path string, opts requestOptions, out interface{}) error {
	op := method + " " + path

	auth, err := c.authHeader()
	if err != nil {
		return err
	}

	var reader io.Reader
	if opts.body != nil {
		payload, err := json.Marshal(opts.body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.baseURL + path
	if len(opts.query) > 0 {
		endpoint += "?" + opts.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.idempotencyKey != "" {
		req.Header.Set(idempotencyHeader, opts.idempotencyKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("qonto %s: %w", op, ctx.Err())
		}
		return &apperrors.ProviderError{Kind: apperrors.ErrTransient, Op: op, Body: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &apperrors.ProviderError{Kind: apperrors.ErrTransient, StatusCode: resp.StatusCode, Op: op, Body: err.Error()}
	}

	c.log.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("qonto request")

	if resp.StatusCode >= http.StatusBadRequest {
		return &apperrors.ProviderError{
			Kind:       kindForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Op:         op,
			Body:       string(body),
		}
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &apperrors.ProviderError{
			Kind:       apperrors.ErrValidation,
			StatusCode: resp.StatusCode,
			Op:         op,
			Body:       "failed to parse response: " + err.Error(),
		}
	}
	return nil
}

func kindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.ErrAuth
	case status == http.StatusNotFound:
		return apperrors.ErrNotFound
	case status == http.StatusConflict:
		return apperrors.ErrConflict
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return apperrors.ErrTransient
	default:
		return apperrors.ErrValidation
	}
}

// ListBankAccounts returns every account of the organization
func (c *Client) ListBankAccounts(ctx context.Context) ([]BankAccount, error) {
	var resp struct {
		BankAccounts []BankAccount `json:"bank_accounts"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/bank_accounts", requestOptions{}, &resp); err != nil {
		return nil, err
	}
	for _, acc := range resp.BankAccounts {
		if err := validate.Struct(acc); err != nil {
			return nil, &apperrors.ProviderError{Kind: apperrors.ErrValidation, Op: "GET /v2/bank_accounts", Body: describe(err).Error()}
		}
	}
	return resp.BankAccounts, nil
}

// ListTransactions fetches one page of an account's transactions. Entries
// that fail validation land in Rejected instead of failing the page.
func (c *Client) ListTransactions(ctx context.Context, accountID string, params TransactionParams) (*TransactionsPage, error) {
	q := url.Values{}
	q.Set("bank_account_id", accountID)
	for _, s := range params.Status {
		q.Add("status[]", s)
	}
	if params.UpdatedFrom != nil {
		q.Set("updated_at_from", params.UpdatedFrom.UTC().Format(time.RFC3339))
	}
	q.Set("sort_by", "updated_at:asc")
	setPaging(q, params.Page, params.PerPage)

	var resp struct {
		Transactions []json.RawMessage `json:"transactions"`
		Meta         Meta              `json:"meta"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/transactions", requestOptions{query: q}, &resp); err != nil {
		return nil, err
	}

	page := &TransactionsPage{RawCount: len(resp.Transactions), Meta: resp.Meta}
	for _, raw := range resp.Transactions {
		t, err := decodeTransaction(raw)
		if err != nil {
			page.Rejected = append(page.Rejected, RejectedItem{ID: itemID(raw, "transaction_id"), Reason: err.Error()})
			continue
		}
		if t.BankAccountID == "" {
			t.BankAccountID = accountID
		}
		page.Transactions = append(page.Transactions, t)
	}
	return page, nil
}

func (c *Client) ListClientInvoices(ctx context.Context, params InvoiceParams) (*InvoicesPage, error) {
	q := url.Values{}
	if params.Status != "" {
		q.Set("filter[status]", params.Status)
	}
	setPaging(q, params.Page, params.PerPage)

	var resp struct {
		ClientInvoices []json.RawMessage `json:"client_invoices"`
		Meta           Meta              `json:"meta"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/client_invoices", requestOptions{query: q}, &resp); err != nil {
		return nil, err
	}

	page := &InvoicesPage{RawCount: len(resp.ClientInvoices), Meta: resp.Meta}
	for _, raw := range resp.ClientInvoices {
		inv, err := decodeInvoice(raw)
		if err != nil {
			page.Rejected = append(page.Rejected, RejectedItem{ID: itemID(raw, "id"), Reason: err.Error()})
			continue
		}
		page.Invoices = append(page.Invoices, inv)
	}
	return page, nil
}

func (c *Client) GetClientInvoice(ctx context.Context, id string) (*ClientInvoice, error) {
	return c.invoiceCall(ctx, http.MethodGet, "/v2/client_invoices/"+url.PathEscape(id), nil)
}

// FinalizeClientInvoice moves a provider draft to unpaid
func (c *Client) FinalizeClientInvoice(ctx context.Context, id string) (*ClientInvoice, error) {
	return c.invoiceCall(ctx, http.MethodPost, "/v2/client_invoices/"+url.PathEscape(id)+"/finalize", nil)
}

func (c *Client) MarkClientInvoiceAsPaid(ctx context.Context, id string, paidAt time.Time) (*ClientInvoice, error) {
	body := map[string]string{"paid_at": paidAt.UTC().Format("2006-01-02")}
	return c.invoiceCall(ctx, http.MethodPost, "/v2/client_invoices/"+url.PathEscape(id)+"/mark_as_paid", body)
}

func (c *Client) CancelClientInvoice(ctx context.Context, id string) (*ClientInvoice, error) {
	return c.invoiceCall(ctx, http.MethodPost, "/v2/client_invoices/"+url.PathEscape(id)+"/mark_as_canceled", nil)
}

// SendClientInvoice emails the invoice to the given recipients
func (c *Client) SendClientInvoice(ctx context.Context, id string, emails []string) error {
	if len(emails) == 0 {
		return apperrors.Validation("at least one recipient email is required")
	}
	body := map[string][]string{"recipient_emails": emails}
	return c.do(ctx, http.MethodPost, "/v2/client_invoices/"+url.PathEscape(id)+"/send", requestOptions{body: body}, nil)
}

// DeleteClientInvoice removes a provider draft. Finalized invoices must be cancelled instead.
func (c *Client) DeleteClientInvoice(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v2/client_invoices/"+url.PathEscape(id), requestOptions{}, nil)
}

func (c *Client) invoiceCall(ctx context.Context, method, path string, body interface{}) (*ClientInvoice, error) {
	var resp struct {
		ClientInvoice json.RawMessage `json:"client_invoice"`
	}
	if err := c.do(ctx, method, path, requestOptions{body: body}, &resp); err != nil {
		return nil, err
	}
	if len(resp.ClientInvoice) == 0 {
		return nil, &apperrors.ProviderError{Kind: apperrors.ErrValidation, Op: method + " " + path, Body: "response has no client_invoice"}
	}
	inv, err := decodeInvoice(resp.ClientInvoice)
	if err != nil {
		return nil, &apperrors.ProviderError{Kind: apperrors.ErrValidation, Op: method + " " + path, Body: err.Error()}
	}
	return &inv, nil
}

// CreateClientQuote creates a quote. An empty idempotencyKey gets a fresh one.
func (c *Client) CreateClientQuote(ctx context.Context, params CreateQuoteParams, idempotencyKey string) (*ClientQuote, error) {
	if err := validate.Struct(params); err != nil {
		return nil, apperrors.Validation("invalid quote: %v", describe(err))
	}
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	return c.quoteCall(ctx, http.MethodPost, "/v2/quotes", requestOptions{body: params, idempotencyKey: idempotencyKey})
}

// FinalizeClientQuote moves a draft quote to finalized so it can be sent
func (c *Client) FinalizeClientQuote(ctx context.Context, id string) (*ClientQuote, error) {
	return c.quoteCall(ctx, http.MethodPost, "/v2/quotes/"+url.PathEscape(id)+"/finalize", requestOptions{})
}

func (c *Client) quoteCall(ctx context.Context, method, path string, opts requestOptions) (*ClientQuote, error) {
	var resp struct {
		Quote json.RawMessage `json:"quote"`
	}
	if err := c.do(ctx, method, path, opts, &resp); err != nil {
		return nil, err
	}
	if len(resp.Quote) == 0 {
		return nil, &apperrors.ProviderError{Kind: apperrors.ErrValidation, Op: method + " " + path, Body: "response has no quote"}
	}
	q, err := decodeQuote(resp.Quote)
	if err != nil {
		return nil, &apperrors.ProviderError{Kind: apperrors.ErrValidation, Op: method + " " + path, Body: err.Error()}
	}
	return &q, nil
}

// ListClientQuotes fetches one page of quotes, rejecting invalid entries
// individually like the other list calls.
func (c *Client) ListClientQuotes(ctx context.Context, params PageParams) (*QuotesPage, error) {
	q := url.Values{}
	setPaging(q, params.Page, params.PerPage)

	var resp struct {
		Quotes []json.RawMessage `json:"quotes"`
		Meta   Meta              `json:"meta"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/quotes", requestOptions{query: q}, &resp); err != nil {
		return nil, err
	}

	page := &QuotesPage{RawCount: len(resp.Quotes), Meta: resp.Meta}
	for _, raw := range resp.Quotes {
		quote, err := decodeQuote(raw)
		if err != nil {
			page.Rejected = append(page.Rejected, RejectedItem{ID: itemID(raw, "id"), Reason: err.Error()})
			continue
		}
		page.Quotes = append(page.Quotes, quote)
	}
	return page, nil
}

func (c *Client) ListClientCreditNotes(ctx context.Context, params PageParams) (*CreditNotesPage, error) {
	q := url.Values{}
	setPaging(q, params.Page, params.PerPage)

	var resp struct {
		CreditNotes []json.RawMessage `json:"credit_notes"`
		Meta        Meta              `json:"meta"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/credit_notes", requestOptions{query: q}, &resp); err != nil {
		return nil, err
	}

	page := &CreditNotesPage{RawCount: len(resp.CreditNotes), Meta: resp.Meta}
	for _, raw := range resp.CreditNotes {
		cn, err := decodeCreditNote(raw)
		if err != nil {
			page.Rejected = append(page.Rejected, RejectedItem{ID: itemID(raw, "id"), Reason: err.Error()})
			continue
		}
		page.CreditNotes = append(page.CreditNotes, cn)
	}
	return page, nil
}

// GetAttachment returns attachment metadata with a freshly signed URL
func (c *Client) GetAttachment(ctx context.Context, id string) (*Attachment, error) {
	path := "/v2/attachments/" + url.PathEscape(id)
	var resp struct {
		Attachment Attachment `json:"attachment"`
	}
	if err := c.do(ctx, http.MethodGet, path, requestOptions{}, &resp); err != nil {
		return nil, err
	}
	if err := validate.Struct(resp.Attachment); err != nil {
		return nil, &apperrors.ProviderError{Kind: apperrors.ErrValidation, Op: "GET " + path, Body: describe(err).Error()}
	}
	return &resp.Attachment, nil
}

// DownloadURL streams a signed attachment URL. The caller closes the body.
// Signed URLs carry their own credentials, so no auth header is sent.
func (c *Client) DownloadURL(ctx context.Context, signedURL string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return nil, "", apperrors.Validation("invalid attachment url: %v", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", &apperrors.ProviderError{Kind: apperrors.ErrTransient, Op: "GET attachment", Body: err.Error()}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", &apperrors.ProviderError{
			Kind:       kindForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Op:         "GET attachment",
			Body:       string(body),
		}
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// HealthCheck lists bank accounts to verify credentials
func (c *Client) HealthCheck(ctx context.Context) HealthCheckResult {
	result := HealthCheckResult{AuthMode: c.AuthMode(), Timestamp: time.Now().UTC()}

	accounts, err := c.ListBankAccounts(ctx)
	if err != nil {
		result.Error = err.Error()
		result.Err = err
		return result
	}
	result.Healthy = true
	result.BankAccountsCount = len(accounts)
	if len(accounts) > 0 {
		result.SampleAccountID = accounts[0].ID
	}
	return result
}

func setPaging(q url.Values, page, perPage int) {
	if page > 0 {
		q.Set("current_page", strconv.Itoa(page))
	}
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}
}

// IsConfigurationError reports whether err comes from missing or conflicting credentials.
func IsConfigurationError(err error) bool {
	return errors.Is(err, apperrors.ErrConfiguration)
}
