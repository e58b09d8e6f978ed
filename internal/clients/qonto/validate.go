package qonto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeTransaction turns one raw list entry into a validated Transaction.
func decodeTransaction(raw json.RawMessage) (Transaction, error) {
	var t Transaction
	if err := json.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("decode: %w", err)
	}
	if err := validate.Struct(t); err != nil {
		return t, describe(err)
	}
	if t.Amount.IsNegative() {
		return t, fmt.Errorf("amount must be positive, got %s", t.Amount)
	}
	if t.EmittedAt.IsZero() {
		return t, errors.New("emitted_at is missing")
	}
	if t.UpdatedAt.IsZero() {
		return t, errors.New("updated_at is missing")
	}
	t.Raw = append(json.RawMessage(nil), raw...)
	return t, nil
}

func decodeInvoice(raw json.RawMessage) (ClientInvoice, error) {
	var inv ClientInvoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return inv, fmt.Errorf("decode: %w", err)
	}
	inv.Status = normalizeStatus(inv.Status)
	if err := validate.Struct(inv); err != nil {
		return inv, describe(err)
	}
	if inv.TotalAmount.IsNegative() {
		return inv, fmt.Errorf("total_amount must be positive, got %s", inv.TotalAmount)
	}
	return inv, nil
}

func decodeQuote(raw json.RawMessage) (ClientQuote, error) {
	var q ClientQuote
	if err := json.Unmarshal(raw, &q); err != nil {
		return q, fmt.Errorf("decode: %w", err)
	}
	q.Status = normalizeStatus(q.Status)
	if err := validate.Struct(q); err != nil {
		return q, describe(err)
	}
	if q.TotalAmount.IsNegative() {
		return q, fmt.Errorf("total_amount must be positive, got %s", q.TotalAmount)
	}
	return q, nil
}

// decodeCreditNote keeps the amount as sent; credit notes may be signed
// either way depending on the account settings.
func decodeCreditNote(raw json.RawMessage) (ClientCreditNote, error) {
	var cn ClientCreditNote
	if err := json.Unmarshal(raw, &cn); err != nil {
		return cn, fmt.Errorf("decode: %w", err)
	}
	cn.Status = normalizeStatus(cn.Status)
	if err := validate.Struct(cn); err != nil {
		return cn, describe(err)
	}
	return cn, nil
}

// normalizeStatus maps the provider's American spelling onto ours.
func normalizeStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "canceled" {
		return "cancelled"
	}
	return s
}

// itemID pulls an identifier out of an entry that may not decode as a whole.
func itemID(raw json.RawMessage, key string) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	var id string
	if err := json.Unmarshal(fields[key], &id); err != nil {
		return ""
	}
	return id
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
