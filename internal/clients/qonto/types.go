package qonto

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// BankAccount is a Qonto bank account. Listed live, never stored.
type BankAccount struct {
	ID                string          `json:"id" validate:"required"`
	Slug              string          `json:"slug"`
	IBAN              string          `json:"iban"`
	BIC               string          `json:"bic"`
	Currency          string          `json:"currency"`
	Balance           decimal.Decimal `json:"balance"`
	AuthorizedBalance decimal.Decimal `json:"authorized_balance"`
	Name              string          `json:"name"`
	Status            string          `json:"status"`
	UpdatedAt         *time.Time      `json:"updated_at"`
}

type Counterparty struct {
	Name string `json:"name"`
	IBAN string `json:"iban"`
	BIC  string `json:"bic"`
}

// Transaction as returned by /v2/transactions. Amount is always positive,
// Side gives the direction.
type Transaction struct {
	TransactionID string           `json:"transaction_id" validate:"required"`
	Amount        decimal.Decimal  `json:"amount"`
	AmountCents   int64            `json:"amount_cents"`
	Currency      string           `json:"currency" validate:"required,len=3"`
	Side          string           `json:"side" validate:"required,oneof=credit debit"`
	OperationType string           `json:"operation_type"`
	Label         string           `json:"label"`
	SettledAt     *time.Time       `json:"settled_at"`
	EmittedAt     time.Time        `json:"emitted_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Status        string           `json:"status" validate:"required,oneof=pending declined reversed completed"`
	Note          string           `json:"note"`
	Reference     string           `json:"reference"`
	VatAmount     *decimal.Decimal `json:"vat_amount"`
	VatRate       *decimal.Decimal `json:"vat_rate"`
	AttachmentIDs []string         `json:"attachment_ids"`
	Counterparty  *Counterparty    `json:"counterparty"`
	BankAccountID string           `json:"bank_account_id"`
	Raw           json.RawMessage  `json:"-"`
}

// TransactionParams filters a transactions page. Page starts at 1.
type TransactionParams struct {
	Status      []string
	UpdatedFrom *time.Time
	Page        int
	PerPage     int
}

type Meta struct {
	CurrentPage int  `json:"current_page"`
	NextPage    *int `json:"next_page"`
	PrevPage    *int `json:"prev_page"`
	TotalPages  int  `json:"total_pages"`
	TotalCount  int  `json:"total_count"`
	PerPage     int  `json:"per_page"`
}

// RejectedItem is a list entry that failed decoding or validation.
type RejectedItem struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// TransactionsPage is one page of transactions. RawCount counts every entry
// the provider returned, rejected ones included, so callers can detect the
// last page.
type TransactionsPage struct {
	Transactions []Transaction
	Rejected     []RejectedItem
	RawCount     int
	Meta         Meta
}

type ClientEntity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Currency  string `json:"currency"`
	VatNumber string `json:"vat_number"`
}

// ClientInvoice is a customer invoice issued from Qonto.
type ClientInvoice struct {
	ID                  string          `json:"id" validate:"required"`
	InvoiceNumber       string          `json:"invoice_number"`
	Status              string          `json:"status" validate:"required,oneof=draft unpaid paid overdue cancelled"`
	Currency            string          `json:"currency"`
	ClientID            string          `json:"client_id"`
	Client              *ClientEntity   `json:"client"`
	IssueDate           string          `json:"issue_date"`
	PaymentDeadline     string          `json:"payment_deadline"`
	PaidAt              string          `json:"paid_at"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	TotalAmountCents    int64           `json:"total_amount_cents"`
	TotalVatAmount      decimal.Decimal `json:"total_vat_amount"`
	SubtotalAmount      decimal.Decimal `json:"subtotal_amount"`
	PurchaseOrderNumber string          `json:"purchase_order_number"`
	AttachmentID        string          `json:"attachment_id"`
	PdfURL              string          `json:"pdf_url"`
	PublicURL           string          `json:"public_url"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	FinalizedAt         *time.Time      `json:"finalized_at"`
	CancelledAt         *time.Time      `json:"cancelled_at"`
}

// CustomerName prefers the embedded client over the bare id.
func (i *ClientInvoice) CustomerName() string {
	if i.Client != nil && i.Client.Name != "" {
		return i.Client.Name
	}
	return ""
}

type InvoiceParams struct {
	Status  string
	Page    int
	PerPage int
}

type InvoicesPage struct {
	Invoices []ClientInvoice
	Rejected []RejectedItem
	RawCount int
	Meta     Meta
}

type LineItem struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Quantity    string `json:"quantity"`
	Unit        string `json:"unit,omitempty"`
	UnitPrice   Amount `json:"unit_price"`
	VatRate     string `json:"vat_rate"`
}

type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type CreateQuoteParams struct {
	ClientID            string     `json:"client_id" validate:"required"`
	Currency            string     `json:"currency,omitempty"`
	IssueDate           string     `json:"issue_date" validate:"required"`
	ExpiryDate          string     `json:"expiry_date" validate:"required"`
	PurchaseOrderNumber string     `json:"purchase_order_number,omitempty"`
	Items               []LineItem `json:"items" validate:"required,min=1"`
}

type ClientQuote struct {
	ID                   string          `json:"id" validate:"required"`
	QuoteNumber          string          `json:"quote_number"`
	Status               string          `json:"status" validate:"required,oneof=draft pending_approval finalized accepted declined expired cancelled"`
	Currency             string          `json:"currency"`
	ClientID             string          `json:"client_id"`
	Client               *ClientEntity   `json:"client"`
	IssueDate            string          `json:"issue_date"`
	ExpiryDate           string          `json:"expiry_date"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	TotalVatAmount       decimal.Decimal `json:"total_vat_amount"`
	PurchaseOrderNumber  string          `json:"purchase_order_number"`
	ConvertedToInvoiceID string          `json:"converted_to_invoice_id"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// ClientCreditNote corrects a client invoice, optionally referenced by InvoiceID.
type ClientCreditNote struct {
	ID               string          `json:"id" validate:"required"`
	CreditNoteNumber string          `json:"credit_note_number"`
	Status           string          `json:"status" validate:"required,oneof=draft finalized"`
	Currency         string          `json:"currency"`
	ClientID         string          `json:"client_id"`
	Client           *ClientEntity   `json:"client"`
	InvoiceID        string          `json:"invoice_id"`
	IssueDate        string          `json:"issue_date"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Reason           string          `json:"reason"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// PageParams pages the list endpoints that take no filter
type PageParams struct {
	Page    int
	PerPage int
}

type QuotesPage struct {
	Quotes   []ClientQuote
	Rejected []RejectedItem
	RawCount int
	Meta     Meta
}

type CreditNotesPage struct {
	CreditNotes []ClientCreditNote
	Rejected    []RejectedItem
	RawCount    int
	Meta        Meta
}

// Attachment URL is signed and expires after about 30 minutes.
type Attachment struct {
	ID              string    `json:"id"`
	URL             string    `json:"url" validate:"required,url"`
	FileName        string    `json:"file_name"`
	FileSize        int64     `json:"file_size"`
	FileContentType string    `json:"file_content_type"`
	CreatedAt       time.Time `json:"created_at"`
}

type HealthCheckResult struct {
	Healthy           bool      `json:"healthy"`
	AuthMode          AuthMode  `json:"authMode"`
	Timestamp         time.Time `json:"timestamp"`
	BankAccountsCount int       `json:"bankAccountsCount,omitempty"`
	SampleAccountID   string    `json:"sampleAccountId,omitempty"`
	Error             string    `json:"error,omitempty"`
	Err               error     `json:"-"`
}
