package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"qonto-reconciliation-backend/internal/models"
	"qonto-reconciliation-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"
	"gorm.io/gorm"
)

// Engine derives matching_status for bank transactions. The amount decides
// the match; name and date only feed the confidence score.
type Engine struct {
	txRepo    *repository.BankTransactionRepository
	docRepo   *repository.FinancialDocumentRepository
	auditRepo *repository.AuditRepository
	epsilon   decimal.Decimal
	log       zerolog.Logger
	now       func() time.Time

	// one pass at a time, two concurrent passes could bind the same invoice twice
	mu sync.Mutex
}

// Result summarizes one matching pass
type Result struct {
	Examined  int `json:"examined"`
	Matched   int `json:"matched"`
	Ambiguous int `json:"ambiguous"`
	Unmatched int `json:"unmatched"`
	Reverted  int `json:"reverted"`
}

func NewEngine(
	txRepo *repository.BankTransactionRepository,
	docRepo *repository.FinancialDocumentRepository,
	auditRepo *repository.AuditRepository,
	epsilon decimal.Decimal,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		txRepo:    txRepo,
		docRepo:   docRepo,
		auditRepo: auditRepo,
		epsilon:   epsilon.Abs(),
		log:       log.With().Str("component", "matching").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type candidate struct {
	doc            *models.FinancialDocument
	nameScore      float64
	dateScore      float64
	ambiguityScore float64
	finalScore     float64
}

// Run re-evaluates every unmatched credit and reverts matches whose invoice
// left the candidate set. Ignored transactions are never touched.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var res Result

	reverted, bound, err := e.revertStale(ctx)
	if err != nil {
		return res, err
	}
	res.Reverted = reverted

	// open invoices that still expect money and are not claimed yet
	docs, err := e.docRepo.ListOpenInvoices(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to load open invoices: %w", err)
	}
	open := make([]*models.FinancialDocument, 0, len(docs))
	for i := range docs {
		if bound[docs[i].ID] || !docs[i].RemainingDue().IsPositive() {
			continue
		}
		open = append(open, &docs[i])
	}

	txs, err := e.txRepo.ListUnmatchedCredits(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to load unmatched credits: %w", err)
	}

	for i := range txs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		tx := &txs[i]
		res.Examined++

		candidates := e.candidatesFor(tx, open, bound)
		switch len(candidates) {
		case 0:
			res.Unmatched++
			continue
		case 1:
		default:
			res.Ambiguous++
			res.Unmatched++
			e.log.Debug().
				Str("transaction_id", tx.ExternalTransactionID).
				Int("candidates", len(candidates)).
				Msg("ambiguous amount, left unmatched")
			continue
		}

		best := candidates[0]
		if err := e.bind(ctx, tx, best, len(candidates)); err != nil {
			return res, err
		}
		bound[best.doc.ID] = true
		res.Matched++
	}

	e.log.Info().
		Int("examined", res.Examined).
		Int("matched", res.Matched).
		Int("ambiguous", res.Ambiguous).
		Int("reverted", res.Reverted).
		Msg("matching pass finished")
	return res, nil
}

// revertStale unbinds matches whose document was archived or cancelled and
// returns the set of documents that stay bound.
func (e *Engine) revertStale(ctx context.Context) (int, map[uuid.UUID]bool, error) {
	bound := make(map[uuid.UUID]bool)

	matched, err := e.txRepo.ListMatched(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load matched transactions: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(matched))
	for _, tx := range matched {
		if tx.MatchedDocumentID != nil {
			ids = append(ids, *tx.MatchedDocumentID)
		}
	}
	docs, err := e.docRepo.ListByIDs(ctx, ids)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load matched documents: %w", err)
	}
	byID := make(map[uuid.UUID]*models.FinancialDocument, len(docs))
	for i := range docs {
		byID[docs[i].ID] = &docs[i]
	}

	reverted := 0
	for i := range matched {
		tx := &matched[i]
		if tx.MatchedDocumentID == nil {
			continue
		}
		doc, ok := byID[*tx.MatchedDocumentID]
		if ok && !doc.IsArchived() && !doc.IsCancelled() {
			bound[doc.ID] = true
			continue
		}
		if err := e.unbind(ctx, tx); err != nil {
			return reverted, nil, err
		}
		reverted++
	}
	return reverted, bound, nil
}

func (e *Engine) candidatesFor(tx *models.BankTransaction, open []*models.FinancialDocument, bound map[uuid.UUID]bool) []candidate {
	var candidates []candidate
	for _, doc := range open {
		if bound[doc.ID] {
			continue
		}
		if tx.Currency != "" && doc.Currency != "" && !strings.EqualFold(tx.Currency, doc.Currency) {
			continue
		}
		if doc.RemainingDue().Sub(tx.Amount).Abs().GreaterThan(e.epsilon) {
			continue
		}
		candidates = append(candidates, candidate{
			doc:       doc,
			nameScore: computeNameSimilarity(counterpartyOf(tx), doc.CustomerName),
			dateScore: computeDateScore(tx.EmittedAt, doc.DueDate),
		})
	}

	// Ambiguity penalty if multiple invoices
	ambiguityScore := 100.0
	if len(candidates) > 1 {
		ambiguityScore = 80.0
	}

	// Final weighted confidence score
	for i := range candidates {
		candidates[i].ambiguityScore = ambiguityScore
		candidates[i].finalScore = math.Min(
			0.6*candidates[i].nameScore+
				0.3*candidates[i].dateScore+
				0.1*candidates[i].ambiguityScore,
			100,
		)
	}
	return candidates
}

func (e *Engine) bind(ctx context.Context, tx *models.BankTransaction, best candidate, count int) error {
	now := e.now()

	// Persist match details
	details := map[string]interface{}{
		"amount_match":     true,
		"invoice_id":       best.doc.ID.String(),
		"invoice_number":   best.doc.DocumentNumber,
		"invoice_name":     best.doc.CustomerName,
		"transaction_name": counterpartyOf(tx),
		"name_score":       best.nameScore,
		"date_score":       best.dateScore,
		"ambiguity_score":  best.ambiguityScore,
		"final_score":      best.finalScore,
		"candidate_count":  count,
		"epsilon":          e.epsilon.String(),
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}

	tx.MatchingStatus = models.MatchingMatched
	tx.MatchedDocumentID = &best.doc.ID
	tx.MatchedAt = &now
	tx.ConfidenceScore = best.finalScore
	tx.MatchDetails = detailsJSON

	return e.docRepo.DB().WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if err := e.txRepo.WithTx(db).Save(ctx, tx); err != nil {
			return fmt.Errorf("failed to save match for %s: %w", tx.ExternalTransactionID, err)
		}
		return e.auditRepo.WithTx(db).Record(ctx, &models.MatchAuditLog{
			TransactionID: &tx.ID,
			DocumentID:    &best.doc.ID,
			Action:        models.ActionAutoMatch,
			NewDocument:   &best.doc.ID,
			PerformedBy:   "system",
			Reason:        fmt.Sprintf("amount %s equals remaining due, confidence %.1f", tx.Amount.StringFixed(2), best.finalScore),
		})
	})
}

func (e *Engine) unbind(ctx context.Context, tx *models.BankTransaction) error {
	previous := tx.MatchedDocumentID

	tx.MatchingStatus = models.MatchingUnmatched
	tx.MatchedDocumentID = nil
	tx.MatchedAt = nil
	tx.ConfidenceScore = 0
	tx.MatchDetails = nil

	return e.docRepo.DB().WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if err := e.txRepo.WithTx(db).Save(ctx, tx); err != nil {
			return fmt.Errorf("failed to revert match for %s: %w", tx.ExternalTransactionID, err)
		}
		return e.auditRepo.WithTx(db).Record(ctx, &models.MatchAuditLog{
			TransactionID:    &tx.ID,
			DocumentID:       previous,
			Action:           models.ActionUnmatch,
			PreviousDocument: previous,
			PerformedBy:      "system",
			Reason:           "invoice archived or cancelled",
		})
	})
}

func counterpartyOf(tx *models.BankTransaction) string {
	if tx.CounterpartyName != "" {
		return tx.CounterpartyName
	}
	return tx.Label
}

// computeNameSimilarity scores 0-100, best token match per invoice token
func computeNameSimilarity(bankName, invoiceName string) float64 {
	bTokens := strings.Fields(normalizeName(bankName))
	iTokens := strings.Fields(normalizeName(invoiceName))

	if len(iTokens) == 0 || len(bTokens) == 0 {
		return 0
	}

	totalScore := 0.0
	for _, invTok := range iTokens {
		best := 0.0
		for _, bankTok := range bTokens {
			a, b := []rune(invTok), []rune(bankTok)
			dist := levenshtein.DistanceForStrings(a, b, levenshtein.DefaultOptions)
			sim := 1 - float64(dist)/float64(len(a)+len(b))
			if sim > best {
				best = sim
			}
		}
		totalScore += best
	}

	return (totalScore / float64(len(iTokens))) * 100
}

func normalizeName(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.TrimSpace(s)
	return s
}

func computeDateScore(txDate time.Time, dueDate *time.Time) float64 {
	if dueDate == nil {
		return 50
	}
	days := math.Abs(txDate.Sub(*dueDate).Hours() / 24)

	switch {
	case days <= 3:
		return 100
	case days <= 7:
		return 80
	case days <= 15:
		return 60
	case days <= 30:
		return 40
	default:
		return 20
	}
}
