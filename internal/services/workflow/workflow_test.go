package workflow

import (
	"errors"
	"testing"
	"time"

	"qonto-reconciliation-backend/internal/apperrors"
	"qonto-reconciliation-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newDoc(status string, wf models.WorkflowStatus) *models.FinancialDocument {
	return &models.FinancialDocument{
		DocumentNumber: "F-2024-001",
		DocumentType:   models.DocumentCustomerInvoice,
		Status:         status,
		WorkflowStatus: wf,
		TotalTTC:       decimal.RequireFromString("120.00"),
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.WorkflowStatus
		want     bool
	}{
		{models.WorkflowSynchronized, models.WorkflowDraftValidated, true},
		{models.WorkflowDraftValidated, models.WorkflowFinalized, true},
		{models.WorkflowFinalized, models.WorkflowSent, true},
		{models.WorkflowSent, models.WorkflowPaid, true},
		{models.WorkflowSynchronized, models.WorkflowCancelled, true},
		{models.WorkflowSynchronized, models.WorkflowFinalized, false},
		{models.WorkflowDraftValidated, models.WorkflowDraftValidated, false},
		{models.WorkflowSent, models.WorkflowFinalized, false},
		{models.WorkflowPaid, models.WorkflowCancelled, false},
		{models.WorkflowCancelled, models.WorkflowSynchronized, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
	assert.True(t, IsTerminal(models.WorkflowPaid))
	assert.True(t, IsTerminal(models.WorkflowCancelled))
	assert.False(t, IsTerminal(models.WorkflowSent))
}

func TestApply_ValidateToDraftStampsActor(t *testing.T) {
	doc := newDoc(models.DocumentStatusDraft, models.WorkflowSynchronized)

	require.NoError(t, Apply(doc, models.WorkflowDraftValidated, "user-42", now))

	assert.Equal(t, models.WorkflowDraftValidated, doc.WorkflowStatus)
	require.NotNil(t, doc.ValidatedToDraftAt)
	assert.Equal(t, now, *doc.ValidatedToDraftAt)
	require.NotNil(t, doc.ValidatedBy)
	assert.Equal(t, "user-42", *doc.ValidatedBy)

	err := Apply(doc, models.WorkflowDraftValidated, "user-42", now)
	var terr *apperrors.InvalidTransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "draft_validated", terr.Current)
	assert.Equal(t, "draft_validated", terr.Attempted)
}

func TestApply_FinalizeRequiresProviderFinalized(t *testing.T) {
	doc := newDoc(models.DocumentStatusDraft, models.WorkflowDraftValidated)

	err := Apply(doc, models.WorkflowFinalized, "", now)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Nil(t, doc.FinalizedAt)

	doc.Status = models.DocumentStatusUnpaid
	require.NoError(t, Apply(doc, models.WorkflowFinalized, "", now))
	assert.NotNil(t, doc.FinalizedAt)
}

func TestApply_PaidSettlesAmount(t *testing.T) {
	doc := newDoc(models.DocumentStatusUnpaid, models.WorkflowSent)

	require.NoError(t, Apply(doc, models.WorkflowPaid, "", now))

	assert.Equal(t, models.DocumentStatusPaid, doc.Status)
	assert.True(t, doc.AmountPaid.Equal(doc.TotalTTC))
	assert.True(t, doc.RemainingDue().IsZero())
	require.NotNil(t, doc.PaidAt)
}

func TestApply_CancelFromAnyNonTerminal(t *testing.T) {
	for _, wf := range []models.WorkflowStatus{
		models.WorkflowSynchronized,
		models.WorkflowDraftValidated,
		models.WorkflowFinalized,
		models.WorkflowSent,
	} {
		doc := newDoc(models.DocumentStatusUnpaid, wf)
		require.NoError(t, Apply(doc, models.WorkflowCancelled, "", now), wf)
		assert.Equal(t, models.DocumentStatusCancelled, doc.Status)
		assert.NotNil(t, doc.CancelledAt)
	}

	doc := newDoc(models.DocumentStatusPaid, models.WorkflowPaid)
	assert.ErrorIs(t, Apply(doc, models.WorkflowCancelled, "", now), apperrors.ErrInvalidTransition)
}

func TestApply_ArchivedDocumentIsFrozen(t *testing.T) {
	doc := newDoc(models.DocumentStatusUnpaid, models.WorkflowFinalized)
	doc.DeletedAt = &now

	err := Apply(doc, models.WorkflowSent, "", now)

	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Equal(t, models.WorkflowFinalized, doc.WorkflowStatus)
}

func TestFollowProvider(t *testing.T) {
	doc := newDoc(models.DocumentStatusPaid, models.WorkflowSent)
	assert.True(t, FollowProvider(doc, now))
	assert.Equal(t, models.WorkflowPaid, doc.WorkflowStatus)

	doc = newDoc(models.DocumentStatusUnpaid, models.WorkflowDraftValidated)
	assert.True(t, FollowProvider(doc, now))
	assert.Equal(t, models.WorkflowFinalized, doc.WorkflowStatus)

	doc = newDoc(models.DocumentStatusUnpaid, models.WorkflowSynchronized)
	assert.False(t, FollowProvider(doc, now))
	assert.Equal(t, models.WorkflowSynchronized, doc.WorkflowStatus)

	doc = newDoc(models.DocumentStatusCancelled, models.WorkflowPaid)
	assert.False(t, FollowProvider(doc, now))
	assert.Equal(t, models.WorkflowPaid, doc.WorkflowStatus)
}
