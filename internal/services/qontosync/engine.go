// Package qontosync pulls transactions, client invoices, quotes and credit
// notes from Qonto into the local store and audits every run as a SyncRun.
package qontosync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"qonto-reconciliation-backend/internal/apperrors"
	"qonto-reconciliation-backend/internal/clients/qonto"
	"qonto-reconciliation-backend/internal/config"
	"qonto-reconciliation-backend/internal/models"
	"qonto-reconciliation-backend/internal/repository"
	"qonto-reconciliation-backend/internal/services/matching"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Provider is the part of the Qonto client the engine needs
type Provider interface {
	ListBankAccounts(ctx context.Context) ([]qonto.BankAccount, error)
	ListTransactions(ctx context.Context, accountID string, params qonto.TransactionParams) (*qonto.TransactionsPage, error)
	ListClientInvoices(ctx context.Context, params qonto.InvoiceParams) (*qonto.InvoicesPage, error)
	ListClientQuotes(ctx context.Context, params qonto.PageParams) (*qonto.QuotesPage, error)
	ListClientCreditNotes(ctx context.Context, params qonto.PageParams) (*qonto.CreditNotesPage, error)
}

// Matcher runs the matching pass once new transactions are stored
type Matcher interface {
	Run(ctx context.Context) (matching.Result, error)
}

type Options struct {
	Scope              models.SyncScope
	FromDate           *time.Time
	AutoCreateExpenses bool
}

// Result is what callers and the HTTP layer see of a finished run
type Result struct {
	Success        bool                   `json:"success"`
	SyncRunID      uuid.UUID              `json:"syncRunId"`
	Status         models.SyncRunStatus   `json:"status"`
	ItemsFetched   int                    `json:"itemsFetched"`
	ItemsCreated   int                    `json:"itemsCreated"`
	ItemsUpdated   int                    `json:"itemsUpdated"`
	ItemsSkipped   int                    `json:"itemsSkipped"`
	ItemsFailed    int                    `json:"itemsFailed"`
	DurationMs     int64                  `json:"durationMs"`
	Message        string                 `json:"message"`
	Errors         []models.SyncItemError `json:"errors,omitempty"`
	ExpensesStaged int                    `json:"expensesStaged,omitempty"`
	Matching       *matching.Result       `json:"matching,omitempty"`
}

type Engine struct {
	provider  Provider
	txRepo    *repository.BankTransactionRepository
	docRepo   *repository.FinancialDocumentRepository
	runRepo   *repository.SyncRunRepository
	auditRepo *repository.AuditRepository
	matcher   Matcher
	cfg       config.SyncConfig
	log       zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	// serializes the open-run check and run creation inside this process
	startMu sync.Mutex
}

func NewEngine(
	provider Provider,
	txRepo *repository.BankTransactionRepository,
	docRepo *repository.FinancialDocumentRepository,
	runRepo *repository.SyncRunRepository,
	auditRepo *repository.AuditRepository,
	matcher Matcher,
	cfg config.SyncConfig,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		provider:  provider,
		txRepo:    txRepo,
		docRepo:   docRepo,
		runRepo:   runRepo,
		auditRepo: auditRepo,
		matcher:   matcher,
		cfg:       cfg,
		log:       log.With().Str("component", "qontosync").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
		sleep:     sleepCtx,
	}
}

// LastRun returns the most recent run of resource, or nil
func (e *Engine) LastRun(ctx context.Context, resource string) (*models.SyncRun, error) {
	if resource == "" {
		resource = models.ResourceTransactions
	}
	if !models.KnownResource(resource) {
		return nil, apperrors.Validation("unknown sync resource %q", resource)
	}
	return e.runRepo.Last(ctx, resource)
}

// lockTTL is how long a running run may live before another sync may
// declare it abandoned.
func (e *Engine) lockTTL() time.Duration {
	ttl := e.cfg.TimeoutAll
	if e.cfg.TimeoutIncremental > ttl {
		ttl = e.cfg.TimeoutIncremental
	}
	return ttl + time.Minute
}

func (e *Engine) limits(scope models.SyncScope) (maxPages int, budget time.Duration) {
	if scope == models.ScopeAll {
		return e.cfg.MaxPagesAll, e.cfg.TimeoutAll
	}
	return e.cfg.MaxPagesIncremental, e.cfg.TimeoutIncremental
}

func normalizeScope(scope models.SyncScope) (models.SyncScope, error) {
	switch scope {
	case "":
		return models.ScopeIncremental, nil
	case models.ScopeIncremental, models.ScopeAll:
		return scope, nil
	}
	return "", apperrors.Validation("unknown sync scope %q", scope)
}

// resolveFrom picks the lower bound of the provider's updated_at filter
func (e *Engine) resolveFrom(ctx context.Context, resource string, opts Options) (time.Time, error) {
	if opts.Scope == models.ScopeAll {
		if opts.FromDate != nil {
			return opts.FromDate.UTC(), nil
		}
		return e.cfg.DefaultFromDate, nil
	}

	last, err := e.runRepo.LastSuccessful(ctx, resource)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read sync watermark: %w", err)
	}
	if last != nil && last.FinishedAt != nil {
		return last.FinishedAt.UTC(), nil
	}
	if opts.FromDate != nil {
		return opts.FromDate.UTC(), nil
	}
	return e.cfg.DefaultFromDate, nil
}

// begin expires abandoned runs, refuses to start next to a live one and
// records the new run.
func (e *Engine) begin(ctx context.Context, resource string, scope models.SyncScope, from time.Time) (*models.SyncRun, error) {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	now := e.now()
	expired, err := e.runRepo.ExpireStale(ctx, resource, now.Add(-e.lockTTL()), now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire stale runs: %w", err)
	}
	if expired > 0 {
		e.log.Warn().Str("resource", resource).Int64("runs", expired).Msg("expired abandoned sync runs")
	}

	running, err := e.runRepo.FindRunning(ctx, resource)
	if err != nil {
		return nil, fmt.Errorf("failed to check running syncs: %w", err)
	}
	if running != nil {
		return nil, apperrors.Conflict("a %s sync is already running (run %s, started %s)",
			resource, running.ID, running.StartedAt.Format(time.RFC3339))
	}

	run := &models.SyncRun{
		Resource:  resource,
		Scope:     scope,
		FromDate:  &from,
		StartedAt: now,
		Status:    models.SyncRunning,
		Errors:    []models.SyncItemError{},
	}
	if err := e.runRepo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create sync run: %w", err)
	}
	return run, nil
}

// finish stamps the run with its outcome. It uses a fresh context so an
// interrupted run is still recorded.
func (e *Engine) finish(run *models.SyncRun, c *counters, fatal error) *Result {
	now := e.now()
	run.FinishedAt = &now
	run.DurationMs = now.Sub(run.StartedAt).Milliseconds()
	run.ItemsFetched = c.fetched
	run.ItemsCreated = c.created
	run.ItemsUpdated = c.updated
	run.ItemsSkipped = c.skipped
	run.ItemsFailed = c.failed
	errs := make([]models.SyncItemError, 0, len(c.itemErrors)+len(c.runErrors))
	errs = append(errs, c.itemErrors...)
	run.Errors = append(errs, c.runErrors...)

	switch {
	case fatal != nil:
		run.Status = models.SyncFailed
		run.Message = fatal.Error()
	case c.failed == 0 && len(c.runErrors) == 0:
		run.Status = models.SyncSuccess
		run.Message = fmt.Sprintf("synced %d %s", c.fetched, run.Resource)
	default:
		run.Status = models.SyncPartial
		run.Message = fmt.Sprintf("synced %d %s with %d failed items and %d run errors",
			c.fetched, run.Resource, c.failed, len(c.runErrors))
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.runRepo.Save(saveCtx, run); err != nil {
		e.log.Error().Err(err).Str("sync_run_id", run.ID.String()).Msg("failed to persist sync run outcome")
	}

	e.log.Info().
		Str("sync_run_id", run.ID.String()).
		Str("resource", run.Resource).
		Str("scope", string(run.Scope)).
		Str("status", string(run.Status)).
		Int("fetched", run.ItemsFetched).
		Int("created", run.ItemsCreated).
		Int("updated", run.ItemsUpdated).
		Int("skipped", run.ItemsSkipped).
		Int("failed", run.ItemsFailed).
		Int64("duration_ms", run.DurationMs).
		Msg("sync finished")

	return &Result{
		Success:      run.Status != models.SyncFailed,
		SyncRunID:    run.ID,
		Status:       run.Status,
		ItemsFetched: run.ItemsFetched,
		ItemsCreated: run.ItemsCreated,
		ItemsUpdated: run.ItemsUpdated,
		ItemsSkipped: run.ItemsSkipped,
		ItemsFailed:  run.ItemsFailed,
		DurationMs:   run.DurationMs,
		Message:      run.Message,
		Errors:       run.Errors,
	}
}

// counters accumulate per account and merge into the run total
type counters struct {
	fetched, created, updated, skipped, failed int
	itemErrors                                 []models.SyncItemError
	runErrors                                  []models.SyncItemError
	createdIDs                                 []uuid.UUID
	touchedIDs                                 []uuid.UUID
}

func (c *counters) merge(o *counters) {
	c.fetched += o.fetched
	c.created += o.created
	c.updated += o.updated
	c.skipped += o.skipped
	c.failed += o.failed
	c.itemErrors = append(c.itemErrors, o.itemErrors...)
	c.runErrors = append(c.runErrors, o.runErrors...)
	c.createdIDs = append(c.createdIDs, o.createdIDs...)
	c.touchedIDs = append(c.touchedIDs, o.touchedIDs...)
}

func (c *counters) itemFailed(id, msg string) {
	c.failed++
	c.itemErrors = append(c.itemErrors, models.SyncItemError{ItemID: id, Message: msg})
}

func (c *counters) runError(id, msg string) {
	c.runErrors = append(c.runErrors, models.SyncItemError{ItemID: id, Message: msg})
}

// withRetry retries fn on transient provider errors with exponential backoff
func withRetry[T any](ctx context.Context, e *Engine, op string, fn func() (T, error)) (T, error) {
	delay := e.cfg.RetryDelay
	for attempt := 0; ; attempt++ {
		v, err := fn()
		if err == nil || !apperrors.IsTransient(err) || attempt >= e.cfg.MaxRetries {
			return v, err
		}
		e.log.Warn().Err(err).Str("op", op).Int("attempt", attempt+1).Dur("backoff", delay).Msg("transient provider error, retrying")
		if serr := e.sleep(ctx, delay); serr != nil {
			return v, serr
		}
		delay *= 2
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// budgetExhausted tells a spent time budget apart from a caller cancellation
func budgetExhausted(parent, run context.Context) bool {
	return parent.Err() == nil && errors.Is(run.Err(), context.DeadlineExceeded)
}
