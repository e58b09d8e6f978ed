// Package quotes creates and finalizes client quotes at Qonto and keeps the
// local FinancialDocument copy in step.
package quotes

import (
	"context"
	"fmt"

	"qonto-reconciliation-backend/internal/apperrors"
	"qonto-reconciliation-backend/internal/clients/qonto"
	"qonto-reconciliation-backend/internal/models"
	"qonto-reconciliation-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Provider interface {
	CreateClientQuote(ctx context.Context, params qonto.CreateQuoteParams, idempotencyKey string) (*qonto.ClientQuote, error)
	FinalizeClientQuote(ctx context.Context, id string) (*qonto.ClientQuote, error)
}

// Store upserts a provider quote into FinancialDocument
type Store interface {
	StoreQuote(ctx context.Context, q *qonto.ClientQuote) (*models.FinancialDocument, error)
}

type Service struct {
	provider Provider
	store    Store
	docs     *repository.FinancialDocumentRepository
	audit    *repository.AuditRepository
	log      zerolog.Logger
}

func NewService(provider Provider, store Store, docs *repository.FinancialDocumentRepository, audit *repository.AuditRepository, log zerolog.Logger) *Service {
	return &Service{
		provider: provider,
		store:    store,
		docs:     docs,
		audit:    audit,
		log:      log.With().Str("component", "quotes").Logger(),
	}
}

// Create sends the quote to Qonto and stores the result. Replaying the same
// idempotency key returns the quote Qonto already created.
func (s *Service) Create(ctx context.Context, params qonto.CreateQuoteParams, idempotencyKey, actor string) (*models.FinancialDocument, error) {
	remote, err := s.provider.CreateClientQuote(ctx, params, idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("create quote: %w", err)
	}
	doc, err := s.store.StoreQuote(ctx, remote)
	if err != nil {
		s.log.Error().Err(err).Str("qonto_quote_id", remote.ID).Msg("quote created at Qonto but not stored, next quote sync will catch up")
		return nil, fmt.Errorf("store quote %s: %w", remote.ID, err)
	}
	s.record(ctx, doc, models.ActionQuoteCreate, actor)
	return doc, nil
}

// Finalize locks a draft quote at Qonto so it can be sent to the client
func (s *Service) Finalize(ctx context.Context, id uuid.UUID, actor string) (*models.FinancialDocument, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.DocumentType != models.DocumentQuote {
		return nil, apperrors.Validation("%s %s is not a quote", doc.DocumentType, doc.DocumentNumber)
	}
	if doc.QontoQuoteID == nil {
		return nil, apperrors.Validation("quote %s is not linked to Qonto", doc.DocumentNumber)
	}
	if doc.Status != models.DocumentStatusDraft && doc.Status != "pending_approval" {
		return nil, &apperrors.InvalidTransitionError{
			Entity:    "quote " + doc.DocumentNumber,
			Current:   doc.Status,
			Attempted: "finalized",
		}
	}

	remote, err := s.provider.FinalizeClientQuote(ctx, *doc.QontoQuoteID)
	if err != nil {
		return nil, fmt.Errorf("finalize quote %s: %w", doc.DocumentNumber, err)
	}
	doc, err = s.store.StoreQuote(ctx, remote)
	if err != nil {
		return nil, fmt.Errorf("store quote %s: %w", remote.ID, err)
	}
	s.record(ctx, doc, models.ActionQuoteFinalize, actor)
	return doc, nil
}

// record writes the audit entry. The provider already holds the change, so
// a failed write is logged rather than returned.
func (s *Service) record(ctx context.Context, doc *models.FinancialDocument, action, actor string) {
	err := s.audit.Record(ctx, &models.MatchAuditLog{DocumentID: &doc.ID, Action: action, PerformedBy: actor})
	if err != nil {
		s.log.Error().Err(err).Str("quote", doc.DocumentNumber).Str("action", action).Msg("failed to audit quote action")
	}
}
