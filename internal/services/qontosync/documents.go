package qontosync

import (
	"context"
	"fmt"
	"time"

	"qonto-reconciliation-backend/internal/clients/qonto"
	"qonto-reconciliation-backend/internal/models"
	"qonto-reconciliation-backend/internal/services/matching"
)

// documentPage is one page of a provider document list
type documentPage[T any] struct {
	items    []T
	rejected []qonto.RejectedItem
	rawCount int
	meta     qonto.Meta
}

// documentSource describes a paged provider document list and how its
// items land in FinancialDocument.
type documentSource[T any] struct {
	resource string
	list     func(ctx context.Context, page, perPage int) (documentPage[T], error)
	ref      func(item *T) (id string, updatedAt time.Time)
	upsert   func(ctx context.Context, item *T) (outcome, error)
	// rematch runs the matching pass after anything changed
	rematch bool
}

// syncDocuments runs one audited sync of a document list. None of these
// endpoints filter on updated_at, so older items are skipped here.
func syncDocuments[T any](ctx context.Context, e *Engine, opts Options, src documentSource[T]) (*Result, error) {
	scope, err := normalizeScope(opts.Scope)
	if err != nil {
		return nil, err
	}
	opts.Scope = scope

	from, err := e.resolveFrom(ctx, src.resource, opts)
	if err != nil {
		return nil, err
	}
	run, err := e.begin(ctx, src.resource, scope, from)
	if err != nil {
		return nil, err
	}

	log := e.log.With().Str("sync_run_id", run.ID.String()).Str("resource", src.resource).Str("scope", string(scope)).Logger()
	log.Info().Time("from", from).Msg("document sync started")

	maxPages, budget := e.limits(scope)
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	total := &counters{}
	fatal := pullDocuments(e, ctx, runCtx, src, from, maxPages, total)

	var matched *matching.Result
	if src.rematch && fatal == nil && ctx.Err() == nil && e.matcher != nil && (total.created > 0 || total.updated > 0) {
		res, err := e.matcher.Run(ctx)
		if err != nil {
			log.Error().Err(err).Msg("matching pass after document sync failed")
			total.runError("matching", err.Error())
		} else {
			matched = &res
		}
	}
	if fatal == nil && ctx.Err() != nil {
		fatal = fmt.Errorf("sync interrupted: %w", ctx.Err())
	}

	result := e.finish(run, total, fatal)
	result.Matching = matched
	return result, nil
}

func pullDocuments[T any](e *Engine, parent, ctx context.Context, src documentSource[T], from time.Time, maxPages int, c *counters) error {
	limiter := newLimiter(e.cfg.RequestsPerSecond)
	pageSize := e.cfg.PageSize
	stop := func() error {
		if budgetExhausted(parent, ctx) {
			c.runError(src.resource, "time budget exhausted, paging stopped")
			return nil
		}
		return ctx.Err()
	}

	for page := 1; ; page++ {
		if page > maxPages {
			c.runError(src.resource, fmt.Sprintf("page limit of %d reached, remaining items not fetched", maxPages))
			return nil
		}
		if err := limiter.Wait(ctx); err != nil {
			return stop()
		}

		p, err := withRetry(ctx, e, "list "+src.resource, func() (documentPage[T], error) {
			return src.list(ctx, page, pageSize)
		})
		if err != nil {
			if ctx.Err() != nil {
				return stop()
			}
			if isFatal(err) || page == 1 {
				return fmt.Errorf("failed to list %s: %w", src.resource, err)
			}
			c.runError(src.resource, fmt.Sprintf("page %d: %v", page, err))
			return nil
		}

		c.fetched += p.rawCount
		for _, rej := range p.rejected {
			c.itemFailed(rej.ID, "invalid payload: "+rej.Reason)
		}
		for i := range p.items {
			item := &p.items[i]
			id, updatedAt := src.ref(item)
			if !updatedAt.IsZero() && updatedAt.Before(from) {
				c.skipped++
				continue
			}
			out, err := src.upsert(ctx, item)
			if err != nil {
				if ctx.Err() != nil {
					return stop()
				}
				c.itemFailed(id, err.Error())
				continue
			}
			switch out {
			case outcomeCreated:
				c.created++
			case outcomeUpdated:
				c.updated++
			default:
				c.skipped++
			}
		}

		if p.rawCount < pageSize || (p.meta.TotalPages > 0 && page >= p.meta.TotalPages) {
			return nil
		}
	}
}

// upsertLinked stores a quote or credit note. These carry no local workflow,
// so provider fields overwrite the stored copy. relatedInvoice is the Qonto
// id of the invoice the document points at, resolved when known locally.
func (e *Engine) upsertLinked(ctx context.Context, existing, incoming *models.FinancialDocument, relatedInvoice string) (*models.FinancialDocument, outcome, error) {
	if relatedInvoice != "" {
		related, err := e.docRepo.FindByQontoID(ctx, relatedInvoice)
		if err != nil {
			return nil, outcomeSkipped, fmt.Errorf("related invoice lookup failed: %w", err)
		}
		if related != nil {
			incoming.RelatedDocumentID = &related.ID
		}
	}
	now := e.now()

	if existing == nil {
		incoming.WorkflowStatus = models.WorkflowSynchronized
		incoming.SynchronizedAt = &now
		if err := e.docRepo.Create(ctx, incoming); err != nil {
			return nil, outcomeSkipped, fmt.Errorf("insert failed: %w", err)
		}
		return incoming, outcomeCreated, nil
	}

	relinked := incoming.RelatedDocumentID != nil &&
		(existing.RelatedDocumentID == nil || *existing.RelatedDocumentID != *incoming.RelatedDocumentID)
	if !invoiceChanged(existing, incoming) && !relinked {
		return existing, outcomeSkipped, nil
	}
	existing.DocumentNumber = incoming.DocumentNumber
	existing.Status = incoming.Status
	existing.CustomerName = incoming.CustomerName
	existing.PurchaseOrderNumber = incoming.PurchaseOrderNumber
	existing.Currency = incoming.Currency
	existing.TotalTTC = incoming.TotalTTC
	existing.DocumentDate = incoming.DocumentDate
	existing.DueDate = incoming.DueDate
	if incoming.RelatedDocumentID != nil {
		existing.RelatedDocumentID = incoming.RelatedDocumentID
	}
	existing.SynchronizedAt = &now
	if err := e.docRepo.Save(ctx, existing); err != nil {
		return nil, outcomeSkipped, fmt.Errorf("update failed: %w", err)
	}
	return existing, outcomeUpdated, nil
}

func entityName(c *qonto.ClientEntity) string {
	if c == nil {
		return ""
	}
	return c.Name
}
