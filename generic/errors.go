/*
errors.go - Centralized error types for the settlement engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages return these values; the HTTP layer maps them to
  status codes without inspecting messages.

ERROR CATEGORIES:
  1. Validation errors - Business rule violations, carried as a list of
     field-scoped warnings keyed by a stable message key
  2. Invocation errors - Persistence or infrastructure faults
  3. Lock errors - See package lock

USAGE:
  Domain code collects warnings and returns them at once:

    v := generic.NewValidator()
    v.CheckField(day.AfterOrEqual(eventDay), "valueDay", generic.ErrKeyCashflowBeforeEqualsDay)
    if err := v.Err(); err != nil {
        return err
    }

SEE ALSO:
  - asset/: Produces validation errors
  - store/sqlstore/: Produces invocation errors
  - api/server.go: Maps errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// =============================================================================
// MESSAGE KEYS - Stable identifiers clients can translate
// =============================================================================

const (
	ErrKeyCashflowRealizeDay       = "error.Cashflow.realizeDay"
	ErrKeyCashflowBeforeEqualsDay  = "error.Cashflow.beforeEqualsDay"
	ErrKeyCashInOutAfterEqualsDay  = "error.CashInOut.afterEqualsDay"
	ErrKeyCashInOutBeforeEqualsDay = "error.CashInOut.beforeEqualsDay"
	ErrKeyCashInOutWithdrawAmount  = "error.CashInOut.withdrawAmount"
	ErrKeyUnprocessing             = "error.ActionStatusType.unprocessing"
	ErrKeyCashBalanceBackdated     = "error.CashBalance.backdated"
	ErrKeyEntityNotFound           = "error.EntityNotFoundException"
	ErrKeyBusinessDayBackward      = "error.BusinessDay.backward"
	ErrKeyCurrency                 = "error.currency"
	ErrKeyAmountPositive           = "error.amount.positive"
	ErrKeyAmountScale              = "error.amount.scale"
	ErrKeyRequired                 = "error.required"
	ErrKeyDay                      = "error.day"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound matches validation errors carrying ErrKeyEntityNotFound.
	ErrNotFound = errors.New("entity not found")

	// ErrInvocation matches every *InvocationError.
	ErrInvocation = errors.New("invocation failed")
)

// =============================================================================
// VALIDATION ERROR - Field-scoped warnings
// =============================================================================

// Warn is one failed rule. Field is empty for global warnings.
type Warn struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Args    []any  `json:"args,omitempty"`
}

func (w Warn) Global() bool { return w.Field == "" }

// ValidationError carries every warning raised by one operation.
type ValidationError struct {
	Warns []Warn
}

// NewValidationError builds a single global warning.
func NewValidationError(message string, args ...any) *ValidationError {
	return &ValidationError{Warns: []Warn{{Message: message, Args: args}}}
}

// NewFieldError builds a single field-scoped warning.
func NewFieldError(field, message string, args ...any) *ValidationError {
	return &ValidationError{Warns: []Warn{{Field: field, Message: message, Args: args}}}
}

// NotFound builds the validation error returned for a missing entity.
func NotFound(entity string, key any) *ValidationError {
	return NewValidationError(ErrKeyEntityNotFound, entity, key)
}

// Error returns the first message.
func (e *ValidationError) Error() string {
	if len(e.Warns) == 0 {
		return ErrValidation.Error()
	}
	w := e.Warns[0]
	if w.Field != "" {
		return fmt.Sprintf("%s: %s", w.Field, w.Message)
	}
	return w.Message
}

func (e *ValidationError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return true
	case ErrNotFound:
		return e.Has(ErrKeyEntityNotFound)
	}
	return false
}

// Has reports whether any warning carries message.
func (e *ValidationError) Has(message string) bool {
	for _, w := range e.Warns {
		if w.Message == message {
			return true
		}
	}
	return false
}

// =============================================================================
// VALIDATOR - Collects warnings before failing
// =============================================================================

type Validator struct {
	warns []Warn
}

func NewValidator() *Validator { return &Validator{} }

// Check adds a global warning unless ok.
func (v *Validator) Check(ok bool, message string, args ...any) *Validator {
	if !ok {
		v.warns = append(v.warns, Warn{Message: message, Args: args})
	}
	return v
}

// CheckField adds a field-scoped warning unless ok.
func (v *Validator) CheckField(ok bool, field, message string, args ...any) *Validator {
	if !ok {
		v.warns = append(v.warns, Warn{Field: field, Message: message, Args: args})
	}
	return v
}

func (v *Validator) HasErrors() bool { return len(v.warns) > 0 }

// Err returns nil when no warning was collected.
func (v *Validator) Err() error {
	if len(v.warns) == 0 {
		return nil
	}
	warns := make([]Warn, len(v.warns))
	copy(warns, v.warns)
	return &ValidationError{Warns: warns}
}

// =============================================================================
// INVOCATION ERROR - Infrastructure faults
// =============================================================================

// InvocationError wraps a persistence or infrastructure failure with the
// operation that raised it.
type InvocationError struct {
	Op  string
	Err error
}

func NewInvocationError(op string, err error) *InvocationError {
	return &InvocationError{Op: op, Err: err}
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

func (e *InvocationError) Is(target error) bool { return target == ErrInvocation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true if the error is due to a violated business rule.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// AsValidation extracts the warnings of a validation error.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Reason renders an error as a short status reason suitable for storage.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if ve, ok := AsValidation(err); ok {
		parts := make([]string, 0, len(ve.Warns))
		for _, w := range ve.Warns {
			parts = append(parts, w.Message)
		}
		msg = strings.Join(parts, ", ")
	}
	return truncateUTF8(msg, maxReason)
}

// maxReason is the width of the status_reason column, in bytes.
const maxReason = 400

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
