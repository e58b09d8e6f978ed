package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qonto-reconciliation-backend/internal/apperrors"
	"qonto-reconciliation-backend/internal/models"
	"qonto-reconciliation-backend/internal/services/qontosync"

	"github.com/rs/zerolog"
)

type Syncer interface {
	SyncTransactions(ctx context.Context, opts qontosync.Options) (*qontosync.Result, error)
	SyncInvoices(ctx context.Context, opts qontosync.Options) (*qontosync.Result, error)
	SyncCreditNotes(ctx context.Context, opts qontosync.Options) (*qontosync.Result, error)
	SyncQuotes(ctx context.Context, opts qontosync.Options) (*qontosync.Result, error)
}

// stepGrace covers run bookkeeping and the matching pass that follow a
// step's paging budget.
const stepGrace = time.Minute

// IncrementalSyncJob pulls new transactions, then client invoices, credit
// notes and quotes. Each step gets its own deadline so one slow resource
// never eats the next one's budget.
type IncrementalSyncJob struct {
	syncer             Syncer
	budget             time.Duration
	autoCreateExpenses bool
	log                zerolog.Logger
}

// NewIncrementalSyncJob takes the engine's incremental paging budget. The
// engine enforces it per run; the job only adds an outer bound past it.
func NewIncrementalSyncJob(syncer Syncer, budget time.Duration, autoCreateExpenses bool, log zerolog.Logger) *IncrementalSyncJob {
	return &IncrementalSyncJob{
		syncer:             syncer,
		budget:             budget,
		autoCreateExpenses: autoCreateExpenses,
		log:                log.With().Str("job", "qonto_incremental_sync").Logger(),
	}
}

func (j *IncrementalSyncJob) Name() string {
	return "qonto_incremental_sync"
}

func (j *IncrementalSyncJob) Run() error {
	opts := qontosync.Options{Scope: models.ScopeIncremental, AutoCreateExpenses: j.autoCreateExpenses}

	var errs []error
	steps := []struct {
		resource string
		run      func(context.Context, qontosync.Options) (*qontosync.Result, error)
	}{
		{models.ResourceTransactions, j.syncer.SyncTransactions},
		{models.ResourceClientInvoices, j.syncer.SyncInvoices},
		// after invoices so credit notes and quotes can link to them
		{models.ResourceCreditNotes, j.syncer.SyncCreditNotes},
		{models.ResourceQuotes, j.syncer.SyncQuotes},
	}
	for _, step := range steps {
		result, err := j.runStep(step.run, opts)
		switch {
		case errors.Is(err, apperrors.ErrConflict):
			// a manual sync is in progress
			j.log.Warn().Err(err).Str("resource", step.resource).Msg("Sync already running, skipping")
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", step.resource, err))
		case !result.Success:
			errs = append(errs, fmt.Errorf("%s: %s", step.resource, result.Message))
		default:
			j.log.Info().
				Str("resource", step.resource).
				Str("status", string(result.Status)).
				Int("created", result.ItemsCreated).
				Int("updated", result.ItemsUpdated).
				Msg("Scheduled sync done")
		}
	}
	return errors.Join(errs...)
}

func (j *IncrementalSyncJob) runStep(run func(context.Context, qontosync.Options) (*qontosync.Result, error), opts qontosync.Options) (*qontosync.Result, error) {
	ctx := context.Background()
	if j.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.budget+stepGrace)
		defer cancel()
	}
	return run(ctx, opts)
}
