// Package workflow is the invoice lifecycle state machine. It only mutates
// the document in memory; persisting is the caller's job.
package workflow

import (
	"time"

	"qonto-reconciliation-backend/internal/apperrors"
	"qonto-reconciliation-backend/internal/models"
)

var transitions = map[models.WorkflowStatus][]models.WorkflowStatus{
	models.WorkflowSynchronized:   {models.WorkflowDraftValidated, models.WorkflowPaid, models.WorkflowCancelled},
	models.WorkflowDraftValidated: {models.WorkflowFinalized, models.WorkflowPaid, models.WorkflowCancelled},
	models.WorkflowFinalized:      {models.WorkflowSent, models.WorkflowPaid, models.WorkflowCancelled},
	models.WorkflowSent:           {models.WorkflowPaid, models.WorkflowCancelled},
	models.WorkflowPaid:           {},
	models.WorkflowCancelled:      {},
}

// CanTransition reports whether the table allows from -> to.
func CanTransition(from, to models.WorkflowStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal is true for paid and cancelled documents.
func IsTerminal(s models.WorkflowStatus) bool {
	return len(transitions[s]) == 0
}

// Apply moves doc to the target status, checking guards and stamping the
// matching audit fields.
func Apply(doc *models.FinancialDocument, to models.WorkflowStatus, actor string, now time.Time) error {
	from := doc.WorkflowStatus
	if doc.IsArchived() {
		return invalid(doc, to, "document is archived")
	}
	if !CanTransition(from, to) {
		return invalid(doc, to, "")
	}

	switch to {
	case models.WorkflowDraftValidated:
		doc.ValidatedToDraftAt = &now
		if actor != "" {
			doc.ValidatedBy = &actor
		}
	case models.WorkflowFinalized:
		if doc.Status == models.DocumentStatusDraft {
			return invalid(doc, to, "provider invoice is still a draft")
		}
		doc.FinalizedAt = &now
	case models.WorkflowSent:
		doc.SentAt = &now
	case models.WorkflowPaid:
		doc.Status = models.DocumentStatusPaid
		doc.AmountPaid = doc.TotalTTC
		if doc.PaidAt == nil {
			doc.PaidAt = &now
		}
	case models.WorkflowCancelled:
		doc.Status = models.DocumentStatusCancelled
		doc.CancelledAt = &now
	}

	doc.WorkflowStatus = to
	return nil
}

// FollowProvider advances doc when the provider status moved on by itself.
// Moves the table forbids are skipped. Returns true when doc changed.
func FollowProvider(doc *models.FinancialDocument, now time.Time) bool {
	var target models.WorkflowStatus
	switch doc.Status {
	case models.DocumentStatusPaid:
		target = models.WorkflowPaid
	case models.DocumentStatusCancelled:
		target = models.WorkflowCancelled
	case models.DocumentStatusUnpaid, models.DocumentStatusOverdue:
		if doc.WorkflowStatus != models.WorkflowDraftValidated {
			return false
		}
		target = models.WorkflowFinalized
	default:
		return false
	}

	if doc.WorkflowStatus == target || !CanTransition(doc.WorkflowStatus, target) {
		return false
	}
	return Apply(doc, target, "", now) == nil
}

func invalid(doc *models.FinancialDocument, to models.WorkflowStatus, reason string) error {
	return &apperrors.InvalidTransitionError{
		Entity:    "invoice " + doc.DocumentNumber,
		Current:   string(doc.WorkflowStatus),
		Attempted: string(to),
		Reason:    reason,
	}
}
