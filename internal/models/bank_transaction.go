package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type TransactionSide string

const (
	SideCredit TransactionSide = "credit"
	SideDebit  TransactionSide = "debit"
)

type MatchingStatus string

const (
	MatchingUnmatched MatchingStatus = "unmatched"
	MatchingMatched   MatchingStatus = "matched"
	MatchingIgnored   MatchingStatus = "ignored"
)

type VatSource string

const (
	VatSourceNone     VatSource = ""
	VatSourceQontoOCR VatSource = "qonto_ocr"
	VatSourceManual   VatSource = "manual"
)

// BankTransaction mirrors one provider transaction. Amount is absolute; Side
// tells the direction.
type BankTransaction struct {
	ID                    uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalTransactionID string                      `gorm:"uniqueIndex;not null" json:"external_transaction_id"`
	BankAccountID         string                      `gorm:"index" json:"bank_account_id"`
	Amount                decimal.Decimal             `gorm:"type:numeric(14,2);index" json:"amount"`
	Side                  TransactionSide             `gorm:"index" json:"side"`
	Currency              string                      `json:"currency"`
	OperationType         string                      `json:"operation_type"`
	Label                 string                      `json:"label"`
	Reference             string                      `json:"reference"`
	Note                  string                      `json:"note"`
	CounterpartyName      string                      `gorm:"index" json:"counterparty_name"`
	CounterpartyIBAN      string                      `json:"counterparty_iban"`
	EmittedAt             time.Time                   `gorm:"index" json:"emitted_at"`
	SettledAt             *time.Time                  `json:"settled_at"`
	Status                string                      `gorm:"index" json:"status"`
	ProviderUpdatedAt     time.Time                   `json:"provider_updated_at"`
	VatRate               decimal.NullDecimal         `gorm:"type:numeric(5,2)" json:"vat_rate"`
	VatAmount             decimal.NullDecimal         `gorm:"type:numeric(14,2)" json:"vat_amount"`
	AmountHT              decimal.NullDecimal         `gorm:"column:amount_ht;type:numeric(14,2)" json:"amount_ht"`
	VatSource             VatSource                   `json:"vat_source"`
	MatchingStatus        MatchingStatus              `gorm:"index;not null;default:unmatched" json:"matching_status"`
	MatchedDocumentID     *uuid.UUID                  `gorm:"type:uuid;index" json:"matched_document_id"`
	MatchedAt             *time.Time                  `json:"matched_at"`
	ConfidenceScore       float64                     `json:"confidence_score"`
	MatchDetails          datatypes.JSON              `json:"match_details,omitempty"`
	AttachmentIDs         datatypes.JSONSlice[string] `json:"attachment_ids"`
	HasAttachment         bool                        `gorm:"index" json:"has_attachment"`
	RawData               datatypes.JSON              `json:"-"`
	CreatedAt             time.Time                   `json:"created_at"`
	UpdatedAt             time.Time                   `json:"updated_at"`
}

func (t *BankTransaction) IsCredit() bool {
	return t.Side == SideCredit
}

var hundred = decimal.NewFromInt(100)

// SplitVat splits a tax-inclusive amount at rate percent into the net
// amount, rounded to cents, and the tax. net + vat always equals amount.
func SplitVat(amount, rate decimal.Decimal) (net, vat decimal.Decimal) {
	divisor := decimal.NewFromInt(1).Add(rate.Div(hundred))
	net = amount.Div(divisor).Round(2)
	vat = amount.Sub(net)
	return net, vat
}

// ApplyVat sets the three VAT columns from a rate.
func (t *BankTransaction) ApplyVat(rate decimal.Decimal, source VatSource) {
	net, vat := SplitVat(t.Amount, rate)
	t.VatRate = decimal.NewNullDecimal(rate)
	t.AmountHT = decimal.NewNullDecimal(net)
	t.VatAmount = decimal.NewNullDecimal(vat)
	t.VatSource = source
}

// ApplyProviderVat keeps the provider's tax amount and derives the net from
// it. Falls back to the rate when the amount is missing or larger than the
// transaction.
func (t *BankTransaction) ApplyProviderVat(rate decimal.Decimal, vatAmount *decimal.Decimal) {
	if vatAmount == nil || vatAmount.IsNegative() || vatAmount.GreaterThan(t.Amount) {
		t.ApplyVat(rate, VatSourceQontoOCR)
		return
	}
	vat := vatAmount.Round(2)
	t.VatRate = decimal.NewNullDecimal(rate)
	t.VatAmount = decimal.NewNullDecimal(vat)
	t.AmountHT = decimal.NewNullDecimal(t.Amount.Sub(vat))
	t.VatSource = VatSourceQontoOCR
}

func (t *BankTransaction) ClearVat() {
	t.VatRate = decimal.NullDecimal{}
	t.VatAmount = decimal.NullDecimal{}
	t.AmountHT = decimal.NullDecimal{}
	t.VatSource = VatSourceNone
}
