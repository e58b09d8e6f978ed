package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderError_UnwrapsToKind(t *testing.T) {
	err := fmt.Errorf("listing accounts: %w", &ProviderError{
		Kind:       ErrAuth,
		StatusCode: 401,
		Body:       `{"message":"invalid token"}`,
		Op:         "GET /v2/bank_accounts",
	})

	assert.True(t, errors.Is(err, ErrAuth))
	assert.False(t, errors.Is(err, ErrNotFound))

	var perr *ProviderError
	assert.True(t, errors.As(err, &perr))
	assert.Equal(t, 401, perr.StatusCode)
	assert.Contains(t, err.Error(), "invalid token")
}

func TestInvalidTransitionError_NamesBothStates(t *testing.T) {
	err := &InvalidTransitionError{Entity: "invoice", Current: "draft_validated", Attempted: "draft_validated"}

	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Contains(t, err.Error(), `"draft_validated"`)
}

func TestHelpers(t *testing.T) {
	assert.True(t, errors.Is(NotFound("invoice", "42"), ErrNotFound))
	assert.True(t, errors.Is(Validation("bad rate %v", 7), ErrValidation))
	assert.True(t, errors.Is(Conflict("busy"), ErrConflict))
	assert.True(t, errors.Is(Configuration("missing key"), ErrConfiguration))
	assert.True(t, IsTransient(&ProviderError{Kind: ErrTransient, StatusCode: 503}))
	assert.False(t, IsTransient(&ProviderError{Kind: ErrNotFound, StatusCode: 404}))
}
