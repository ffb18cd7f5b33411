package domain

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/config"
)

// Domain errors
var (
	// Zone errors
	ErrZoneNotFound = errors.New("contract zone not found")

	// Event errors
	ErrEventNotFound     = errors.New("event not found")
	ErrInvalidEventState = errors.New("invalid event state")

	// Blocked date errors
	ErrBlockedDateExists   = errors.New("date is already blocked for this contract zone")
	ErrBlockedDateNotFound = errors.New("blocked date not found")
)

// Validation error codes
const (
	CodeInvalidTimeRange = "INVALID_TIME_RANGE"
	CodeStartTooFar      = "START_TOO_FAR"
	CodeStartTooSoon     = "START_TOO_SOON"
	CodeDurationTooLong  = "DURATION_TOO_LONG"
	CodeNoContractZone   = "NO_CONTRACT_ZONE"
	CodeUnavailableDates = "UNAVAILABLE_DATES"
	CodeMissingField     = "MISSING_FIELD"
	CodeInvalidField     = "INVALID_FIELD"
)

// ValidationError is a user-correctable rejection of an event write
type ValidationError struct {
	Code    string
	Field   string
	Message string
	// Dates lists every conflicting date for CodeUnavailableDates, ascending
	Dates []civil.Date
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a validation error for a field
func NewValidationError(code, field, message string) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: message}
}

// NewNoContractZoneError reports a location outside every active zone
func NewNoContractZoneError() *ValidationError {
	return &ValidationError{
		Code:    CodeNoContractZone,
		Field:   "location",
		Message: "Location must be inside a contract zone.",
	}
}

// NewUnavailableDatesError reports dates that are blocked or full
func NewUnavailableDatesError(dates []civil.Date) *ValidationError {
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = d.String()
	}
	return &ValidationError{
		Code:    CodeUnavailableDates,
		Field:   "start_time",
		Message: fmt.Sprintf("Unavailable dates: [%s]", strings.Join(parts, ", ")),
		Dates:   dates,
	}
}

// ConfigurationError is fatal at startup
type ConfigurationError = config.ConfigurationError

// TransientDependencyError wraps a failure of an external collaborator that
// is safe to retry on the next scheduled run
type TransientDependencyError struct {
	Op  string
	Err error
}

func (e *TransientDependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientDependencyError) Unwrap() error {
	return e.Err
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrZoneNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrBlockedDateNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrInvalidEventState)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrBlockedDateExists)
}

// IsConfigurationError checks if the error is fatal configuration
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsTransientError checks if the error may succeed on a later run
func IsTransientError(err error) bool {
	var te *TransientDependencyError
	return errors.As(err, &te)
}
