package qontosync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"qonto-reconciliation-backend/internal/apperrors"
	"qonto-reconciliation-backend/internal/clients/qonto"
	"qonto-reconciliation-backend/internal/models"
	"qonto-reconciliation-backend/internal/services/matching"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gorm.io/datatypes"
)

// SyncTransactions pulls completed transactions of every bank account.
// The returned error is set only when no run could be started; a run that
// started and then failed comes back as a Result with Success false.
func (e *Engine) SyncTransactions(ctx context.Context, opts Options) (*Result, error) {
	scope, err := normalizeScope(opts.Scope)
	if err != nil {
		return nil, err
	}
	opts.Scope = scope

	from, err := e.resolveFrom(ctx, models.ResourceTransactions, opts)
	if err != nil {
		return nil, err
	}
	run, err := e.begin(ctx, models.ResourceTransactions, scope, from)
	if err != nil {
		return nil, err
	}

	log := e.log.With().Str("sync_run_id", run.ID.String()).Str("scope", string(scope)).Logger()
	log.Info().Time("from", from).Msg("transactions sync started")

	maxPages, budget := e.limits(scope)
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	total := &counters{}
	fatal := e.pullTransactions(ctx, runCtx, from, maxPages, total)

	var (
		staged  int
		matched *matching.Result
	)
	if fatal == nil && ctx.Err() == nil {
		if opts.AutoCreateExpenses || e.cfg.AutoCreateExpenses {
			staged = e.stageExpenses(ctx, total.touchedIDs)
		}
		if e.matcher != nil && (total.created > 0 || total.updated > 0) {
			res, err := e.matcher.Run(ctx)
			if err != nil {
				log.Error().Err(err).Msg("matching pass after sync failed")
				total.runError("matching", err.Error())
			} else {
				matched = &res
			}
		}
	}
	if fatal == nil && ctx.Err() != nil {
		fatal = fmt.Errorf("sync interrupted: %w", ctx.Err())
	}

	result := e.finish(run, total, fatal)
	result.ExpensesStaged = staged
	result.Matching = matched
	return result, nil
}

// pullTransactions fans out over accounts. Only errors that make the whole
// run meaningless are returned; everything else is recorded in c.
func (e *Engine) pullTransactions(parent, ctx context.Context, from time.Time, maxPages int, c *counters) error {
	accounts, err := withRetry(ctx, e, "list bank accounts", func() ([]qonto.BankAccount, error) {
		return e.provider.ListBankAccounts(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to list bank accounts: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	limit := e.cfg.AccountConcurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, acc := range accounts {
		if acc.Status == "closed" {
			continue
		}
		acc := acc
		g.Go(func() error {
			local := &counters{}
			err := e.syncAccount(parent, gctx, acc, from, maxPages, local)

			mu.Lock()
			c.merge(local)
			mu.Unlock()
			return err
		})
	}
	return g.Wait()
}

// syncAccount pages through one account sequentially with its own limiter
// and backoff state.
func (e *Engine) syncAccount(parent, ctx context.Context, acc qonto.BankAccount, from time.Time, maxPages int, c *counters) error {
	log := e.log.With().Str("bank_account_id", acc.ID).Logger()
	limiter := newLimiter(e.cfg.RequestsPerSecond)
	pageSize := e.cfg.PageSize

	for page := 1; ; page++ {
		if page > maxPages {
			c.runError("account:"+acc.ID, fmt.Sprintf("page limit of %d reached, remaining transactions not fetched", maxPages))
			log.Warn().Int("max_pages", maxPages).Msg("page limit reached")
			return nil
		}
		if err := limiter.Wait(ctx); err != nil {
			return e.stopPaging(parent, ctx, acc, c)
		}

		params := qonto.TransactionParams{
			Status:      []string{"completed"},
			UpdatedFrom: &from,
			Page:        page,
			PerPage:     pageSize,
		}
		p, err := withRetry(ctx, e, "list transactions", func() (*qonto.TransactionsPage, error) {
			return e.provider.ListTransactions(ctx, acc.ID, params)
		})
		if err != nil {
			if ctx.Err() != nil {
				return e.stopPaging(parent, ctx, acc, c)
			}
			if isFatal(err) {
				return err
			}
			c.runError("account:"+acc.ID, fmt.Sprintf("page %d: %v", page, err))
			log.Error().Err(err).Int("page", page).Msg("giving up on account")
			return nil
		}

		c.fetched += p.RawCount
		for _, rej := range p.Rejected {
			c.itemFailed(rej.ID, "invalid payload: "+rej.Reason)
		}
		for i := range p.Transactions {
			t := &p.Transactions[i]
			if t.BankAccountID == "" {
				t.BankAccountID = acc.ID
			}
			id, outcome, err := e.upsertTransaction(ctx, t)
			if err != nil {
				if ctx.Err() != nil {
					return e.stopPaging(parent, ctx, acc, c)
				}
				c.itemFailed(t.TransactionID, err.Error())
				continue
			}
			switch outcome {
			case outcomeCreated:
				c.created++
				c.createdIDs = append(c.createdIDs, id)
				c.touchedIDs = append(c.touchedIDs, id)
			case outcomeUpdated:
				c.updated++
				c.touchedIDs = append(c.touchedIDs, id)
			default:
				c.skipped++
			}
		}

		log.Debug().Int("page", page).Int("items", p.RawCount).Msg("page synced")
		if p.RawCount < pageSize {
			return nil
		}
	}
}

// stopPaging records why an account stopped early. A spent budget is a
// partial result; a cancelled caller fails the run.
func (e *Engine) stopPaging(parent, ctx context.Context, acc qonto.BankAccount, c *counters) error {
	if budgetExhausted(parent, ctx) {
		c.runError("account:"+acc.ID, "time budget exhausted, paging stopped")
		return nil
	}
	return ctx.Err()
}

func isFatal(err error) bool {
	return errors.Is(err, apperrors.ErrAuth) || errors.Is(err, apperrors.ErrConfiguration)
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeCreated
	outcomeUpdated
)

// upsertTransaction writes t keyed by its provider id. Matching state and
// manual VAT overrides of an existing row are left alone.
func (e *Engine) upsertTransaction(ctx context.Context, t *qonto.Transaction) (uuid.UUID, outcome, error) {
	incoming := mapTransaction(t)

	existing, err := e.txRepo.FindByExternalID(ctx, t.TransactionID)
	if err != nil {
		return uuid.Nil, outcomeSkipped, fmt.Errorf("lookup failed: %w", err)
	}
	if existing == nil {
		if err := e.txRepo.Create(ctx, incoming); err != nil {
			return uuid.Nil, outcomeSkipped, fmt.Errorf("insert failed: %w", err)
		}
		return incoming.ID, outcomeCreated, nil
	}

	if !hasChanged(existing, incoming) {
		return existing.ID, outcomeSkipped, nil
	}

	existing.BankAccountID = incoming.BankAccountID
	existing.Amount = incoming.Amount
	existing.Side = incoming.Side
	existing.Currency = incoming.Currency
	existing.OperationType = incoming.OperationType
	existing.Label = incoming.Label
	existing.Reference = incoming.Reference
	existing.Note = incoming.Note
	existing.CounterpartyName = incoming.CounterpartyName
	existing.CounterpartyIBAN = incoming.CounterpartyIBAN
	existing.EmittedAt = incoming.EmittedAt
	existing.SettledAt = incoming.SettledAt
	existing.Status = incoming.Status
	existing.ProviderUpdatedAt = incoming.ProviderUpdatedAt
	existing.AttachmentIDs = incoming.AttachmentIDs
	existing.HasAttachment = incoming.HasAttachment
	existing.RawData = incoming.RawData
	if existing.VatSource != models.VatSourceManual {
		existing.VatRate = incoming.VatRate
		existing.VatAmount = incoming.VatAmount
		existing.AmountHT = incoming.AmountHT
		existing.VatSource = incoming.VatSource
	} else if existing.VatRate.Valid {
		// amount may have moved, keep the manual rate consistent with it
		existing.ApplyVat(existing.VatRate.Decimal, models.VatSourceManual)
	}

	if err := e.txRepo.Save(ctx, existing); err != nil {
		return uuid.Nil, outcomeSkipped, fmt.Errorf("update failed: %w", err)
	}
	return existing.ID, outcomeUpdated, nil
}

var notAnalysed = decimal.NewFromInt(-1)

func mapTransaction(t *qonto.Transaction) *models.BankTransaction {
	tx := &models.BankTransaction{
		ExternalTransactionID: t.TransactionID,
		BankAccountID:         t.BankAccountID,
		Amount:                t.Amount.Abs(),
		Side:                  models.TransactionSide(t.Side),
		Currency:              t.Currency,
		OperationType:         t.OperationType,
		Label:                 t.Label,
		Reference:             t.Reference,
		Note:                  t.Note,
		EmittedAt:             t.EmittedAt.UTC(),
		Status:                t.Status,
		ProviderUpdatedAt:     t.UpdatedAt.UTC(),
		MatchingStatus:        models.MatchingUnmatched,
		AttachmentIDs:         datatypes.JSONSlice[string](t.AttachmentIDs),
		HasAttachment:         len(t.AttachmentIDs) > 0,
		RawData:               datatypes.JSON(t.Raw),
	}
	if tx.AttachmentIDs == nil {
		tx.AttachmentIDs = datatypes.JSONSlice[string]{}
	}
	if t.SettledAt != nil {
		settled := t.SettledAt.UTC()
		tx.SettledAt = &settled
	}
	if t.Counterparty != nil {
		tx.CounterpartyName = t.Counterparty.Name
		tx.CounterpartyIBAN = t.Counterparty.IBAN
	}
	// -1 means Qonto could not analyse the receipt
	if t.VatRate != nil && !t.VatRate.Equal(notAnalysed) && !t.VatRate.IsNegative() {
		tx.ApplyProviderVat(*t.VatRate, t.VatAmount)
	}
	return tx
}

func hasChanged(stored, incoming *models.BankTransaction) bool {
	if !stored.Amount.Equal(incoming.Amount) ||
		stored.Side != incoming.Side ||
		stored.Status != incoming.Status ||
		stored.Label != incoming.Label ||
		stored.CounterpartyName != incoming.CounterpartyName ||
		stored.CounterpartyIBAN != incoming.CounterpartyIBAN ||
		!sameTime(stored.SettledAt, incoming.SettledAt) ||
		!sameStrings(stored.AttachmentIDs, incoming.AttachmentIDs) {
		return true
	}
	if stored.VatSource == models.VatSourceManual {
		return false
	}
	return !sameNullDecimal(stored.VatRate, incoming.VatRate) || !sameNullDecimal(stored.VatAmount, incoming.VatAmount)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameNullDecimal(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

// stageExpenses queues unmatched debits touched by this run. Failures are
// logged and never fail the sync.
func (e *Engine) stageExpenses(ctx context.Context, ids []uuid.UUID) int {
	debits, err := e.txRepo.ListUnmatchedDebits(ctx, ids)
	if err != nil {
		e.log.Error().Err(err).Msg("failed to load debits for expense staging")
		return 0
	}

	staged := 0
	for _, tx := range debits {
		created, err := e.auditRepo.StageExpense(ctx, &models.ExpenseCandidate{
			TransactionID: tx.ID,
			Amount:        tx.Amount,
			Label:         tx.Label,
			Counterparty:  tx.CounterpartyName,
			Status:        models.ExpenseCandidatePending,
		})
		if err != nil {
			e.log.Error().Err(err).Str("transaction_id", tx.ExternalTransactionID).Msg("failed to stage expense")
			continue
		}
		if created {
			staged++
		}
	}
	if staged > 0 {
		e.log.Info().Int("expenses", staged).Msg("staged expense candidates for debit transactions")
	}
	return staged
}
