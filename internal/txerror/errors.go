// Package txerror defines the typed errors raised while ingesting, converting and
// categorizing transactions.
package txerror

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError is a record-level failure: a canonical field is missing or unparsable.
type ValidationError struct {
	Source string
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: invalid %s: %s", e.Source, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: invalid %s='%s': %s", e.Source, e.Field, e.Value, e.Reason)
}

// TransientError marks a failure worth retrying (timeouts, rate limits, 5xx).
type TransientError struct {
	Operation string
	Err       error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Operation, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError is returned once every attempt of a retried operation has failed.
type RetryExhaustedError struct {
	Operation string
	Attempts  int
	Last      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Operation, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// UnregisteredSourceError is raised when no strategy exists for a source id.
type UnregisteredSourceError struct {
	SourceID   string
	Registered []string
}

func (e *UnregisteredSourceError) Error() string {
	return fmt.Sprintf("no normalizer registered for source '%s' (registered: %s)",
		e.SourceID, strings.Join(e.Registered, ", "))
}

// ConfigError is a setup problem that must stop the run.
type ConfigError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error for %s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error for %s: %s", e.Key, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// MappingLockedError is raised when a processed source's column mapping is edited.
type MappingLockedError struct {
	SourceID string
}

func (e *MappingLockedError) Error() string {
	return fmt.Sprintf("column mapping for source '%s' is locked: source already processed", e.SourceID)
}

// IllegalTransitionError rejects a backward lifecycle move.
type IllegalTransitionError struct {
	TransactionID string
	From          string
	To            string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("transaction %s: illegal status transition %s -> %s", e.TransactionID, e.From, e.To)
}

// RateUnavailableError is attributed to every transaction whose currency had no rate.
type RateUnavailableError struct {
	Currency string
	Err      error
}

func (e *RateUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no exchange rate for %s: %v", e.Currency, e.Err)
	}
	return fmt.Sprintf("no exchange rate for %s", e.Currency)
}

func (e *RateUnavailableError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err (or anything it wraps) is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsValidation reports whether err is a record-level ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConfig reports whether err should abort the run rather than mark a record.
func IsConfig(err error) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return true
	}
	var ue *UnregisteredSourceError
	if errors.As(err, &ue) {
		return true
	}
	var me *MappingLockedError
	return errors.As(err, &me)
}
