// Package apperrors defines the error taxonomy shared by the provider client,
// the sync engine and the reconciliation services. Callers branch on the
// sentinel kinds with errors.Is; transport code maps them to HTTP statuses.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration means credentials or settings are missing or invalid.
	ErrConfiguration = errors.New("configuration error")
	// ErrAuth means the provider rejected our credentials.
	ErrAuth = errors.New("provider authentication failed")
	// ErrNotFound means a referenced local or external resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means the action collides with current state (duplicate action, running sync).
	ErrConflict = errors.New("conflict")
	// ErrValidation means the input or a provider payload failed validation.
	ErrValidation = errors.New("validation failed")
	// ErrTransient covers network failures, timeouts, 429 and 5xx answers.
	ErrTransient = errors.New("transient provider error")
	// ErrInvalidTransition means a workflow transition is not allowed from the current state.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// ProviderError carries the provider's HTTP status and body verbatim.
type ProviderError struct {
	Kind       error
	StatusCode int
	Body       string
	Op         string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("qonto %s: %v: %s", e.Op, e.Kind, e.Body)
	}
	return fmt.Sprintf("qonto %s: %v (status %d): %s", e.Op, e.Kind, e.StatusCode, e.Body)
}

func (e *ProviderError) Unwrap() error { return e.Kind }

// InvalidTransitionError names the current and the attempted state.
type InvalidTransitionError struct {
	Entity    string
	Current   string
	Attempted string
	Reason    string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("%s cannot move from %q to %q", e.Entity, e.Current, e.Attempted)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// NotFound wraps ErrNotFound with the entity and id that were looked up.
func NotFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}

// Validation wraps ErrValidation with a human-readable message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// Conflict wraps ErrConflict with a human-readable message.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

// Configuration wraps ErrConfiguration with a human-readable message.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConfiguration)
}

// IsTransient reports whether err is worth retrying inside a sync loop.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
