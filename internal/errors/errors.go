// Package errors defines the structured error taxonomy shared across the
// signal ingestion, integration adapter, and alerting pipelines.
package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorType classifies an AppError for HTTP mapping, retry policy, and
// safe external messaging.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeDatabase   ErrorType = "database"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeRateLimit  ErrorType = "rate_limit"

	// Domain-specific kinds from spec §7.
	ErrorTypeTenantIsolationViolation ErrorType = "tenant_isolation_violation"
	ErrorTypeProducerNotRegistered    ErrorType = "producer_not_registered"
	ErrorTypeSignalTypeNotAllowed     ErrorType = "signal_type_not_allowed"
	ErrorTypeSignalKindNotAllowed     ErrorType = "signal_kind_not_allowed"
	ErrorTypeSchemaViolation          ErrorType = "schema_violation"
	ErrorTypeGovernanceViolation      ErrorType = "governance_violation"
	ErrorTypeDuplicate                ErrorType = "duplicate"
	ErrorTypeDownstreamFailure        ErrorType = "downstream_failure"
	ErrorTypeCircuitOpen              ErrorType = "circuit_open"
	ErrorTypeInvalidSignature         ErrorType = "invalid_signature"
	ErrorTypeReplayDetected           ErrorType = "replay_detected"
	ErrorTypeTimestampOutOfRange      ErrorType = "timestamp_out_of_range"
	ErrorTypeUpstreamError            ErrorType = "upstream_error"
)

// statusByType maps each ErrorType to its transport-level HTTP status.
var statusByType = map[ErrorType]int{
	ErrorTypeValidation:               http.StatusBadRequest,
	ErrorTypeAuth:                     http.StatusUnauthorized,
	ErrorTypeNotFound:                 http.StatusNotFound,
	ErrorTypeConflict:                 http.StatusConflict,
	ErrorTypeTimeout:                  http.StatusRequestTimeout,
	ErrorTypeRateLimit:                http.StatusTooManyRequests,
	ErrorTypeDatabase:                 http.StatusInternalServerError,
	ErrorTypeNetwork:                  http.StatusInternalServerError,
	ErrorTypeInternal:                 http.StatusInternalServerError,
	ErrorTypeTenantIsolationViolation: http.StatusForbidden,
	ErrorTypeProducerNotRegistered:    http.StatusBadRequest,
	ErrorTypeSignalTypeNotAllowed:     http.StatusUnprocessableEntity,
	ErrorTypeSignalKindNotAllowed:     http.StatusUnprocessableEntity,
	ErrorTypeSchemaViolation:          http.StatusUnprocessableEntity,
	ErrorTypeGovernanceViolation:      http.StatusUnprocessableEntity,
	ErrorTypeDuplicate:                http.StatusOK,
	ErrorTypeDownstreamFailure:        http.StatusInternalServerError,
	ErrorTypeCircuitOpen:              http.StatusServiceUnavailable,
	ErrorTypeInvalidSignature:         http.StatusUnauthorized,
	ErrorTypeReplayDetected:           http.StatusConflict,
	ErrorTypeTimestampOutOfRange:      http.StatusUnauthorized,
	ErrorTypeUpstreamError:            http.StatusBadGateway,
}

// retryableByType captures whether the caller (or an internal worker) may
// retry an error of this kind per spec §7.
var retryableByType = map[ErrorType]bool{
	ErrorTypeDownstreamFailure:   true,
	ErrorTypeRateLimit:           true,
	ErrorTypeCircuitOpen:         true,
	ErrorTypeUpstreamError:       true,
	ErrorTypeTimeout:             true,
	ErrorTypeNetwork:             true,
	ErrorTypeDatabase:            true,
}

// AppError is the structured error carried through the pipeline stages and
// surfaced at the HTTP boundary.
type AppError struct {
	Type       ErrorType
	Message    string
	Details    string
	StatusCode int
	Cause      error
}

func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Details)
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether this error kind may be retried internally.
func (e *AppError) Retryable() bool {
	return retryableByType[e.Type]
}

// WithDetails attaches a plain detail string and returns the same error.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithDetailsf attaches a formatted detail string.
func (e *AppError) WithDetailsf(format string, args ...interface{}) *AppError {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// New creates an AppError of the given type with no cause.
func New(errType ErrorType, message string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		StatusCode: statusForType(errType),
	}
}

// Newf creates an AppError with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *AppError {
	return New(errType, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error, classifying it under errType.
func Wrap(cause error, errType ErrorType, message string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		StatusCode: statusForType(errType),
		Cause:      cause,
	}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(cause error, errType ErrorType, format string, args ...interface{}) *AppError {
	return Wrap(cause, errType, fmt.Sprintf(format, args...))
}

func statusForType(errType ErrorType) int {
	if status, ok := statusByType[errType]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Predefined constructors, mirroring common call sites.

func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message)
}

func NewDatabaseError(operation string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeDatabase, "database operation failed: %s", operation)
}

func NewNotFoundError(resource string) *AppError {
	return Newf(ErrorTypeNotFound, "%s not found", resource)
}

func NewAuthError(message string) *AppError {
	return New(ErrorTypeAuth, message)
}

func NewTimeoutError(operation string) *AppError {
	return Newf(ErrorTypeTimeout, "operation timed out: %s", operation)
}

func NewTenantIsolationViolation(tenantID string) *AppError {
	return Newf(ErrorTypeTenantIsolationViolation, "cross-tenant access denied for tenant %s", tenantID)
}

func NewProducerNotRegistered(producerID string) *AppError {
	return Newf(ErrorTypeProducerNotRegistered, "producer %s is not registered", producerID)
}

func NewSignalTypeNotAllowed(producerID, signalType string) *AppError {
	return Newf(ErrorTypeSignalTypeNotAllowed, "producer %s is not allowed to emit signal_type %s", producerID, signalType)
}

func NewSignalKindNotAllowed(producerID string, signalKind string) *AppError {
	return Newf(ErrorTypeSignalKindNotAllowed, "producer %s is not allowed to emit signal_kind %s", producerID, signalKind)
}

func NewSchemaViolation(signalType string, missing []string) *AppError {
	return Newf(ErrorTypeSchemaViolation, "payload violates contract for %s: missing %s", signalType, strings.Join(missing, ", "))
}

func NewGovernanceViolation(field string) *AppError {
	return Newf(ErrorTypeGovernanceViolation, "disallowed field present: %s", field)
}

func NewDuplicate(signalID string) *AppError {
	return Newf(ErrorTypeDuplicate, "signal_id %s already processed within dedup window", signalID)
}

func NewDownstreamFailure(routingClass string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeDownstreamFailure, "downstream delivery failed for routing class %s", routingClass)
}

func NewCircuitOpen(connectionID string) *AppError {
	return Newf(ErrorTypeCircuitOpen, "circuit breaker open for connection %s", connectionID)
}

func NewInvalidSignature(providerID string) *AppError {
	return Newf(ErrorTypeInvalidSignature, "invalid webhook signature for provider %s", providerID)
}

func NewReplayDetected(connectionID string) *AppError {
	return Newf(ErrorTypeReplayDetected, "replay detected for connection %s", connectionID)
}

func NewTimestampOutOfRange(ageSeconds float64) *AppError {
	return Newf(ErrorTypeTimestampOutOfRange, "event timestamp out of range: %.0fs", ageSeconds)
}

func NewUpstreamError(provider string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeUpstreamError, "upstream error from %s", provider)
}

// IsType reports whether err is an *AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Type == errType
}

// GetType returns the ErrorType of err, or ErrorTypeInternal if err is not
// an *AppError.
func GetType(err error) ErrorType {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// GetStatusCode returns the HTTP status code associated with err.
func GetStatusCode(err error) int {
	if appErr, ok := err.(*AppError); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether err should be retried by an internal worker.
func IsRetryable(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Retryable()
	}
	return false
}

// ErrorMessages holds the externally-visible text for error kinds whose raw
// Message may contain internal detail.
var ErrorMessages = struct {
	ResourceNotFound       string
	AuthenticationFailed   string
	OperationTimeout       string
	RateLimitExceeded      string
	ConcurrentModification string
}{
	ResourceNotFound:       "The requested resource was not found",
	AuthenticationFailed:   "Authentication failed",
	OperationTimeout:       "The operation timed out",
	RateLimitExceeded:      "Rate limit exceeded, please retry later",
	ConcurrentModification: "The resource was modified concurrently",
}

// SafeErrorMessage returns a message safe to surface to external callers,
// hiding internal details for non-validation error kinds.
func SafeErrorMessage(err error) string {
	appErr, ok := err.(*AppError)
	if !ok {
		return "An unexpected error occurred"
	}

	switch appErr.Type {
	case ErrorTypeValidation:
		return appErr.Message
	case ErrorTypeNotFound:
		return ErrorMessages.ResourceNotFound
	case ErrorTypeAuth:
		return ErrorMessages.AuthenticationFailed
	case ErrorTypeTimeout:
		return ErrorMessages.OperationTimeout
	case ErrorTypeRateLimit:
		return ErrorMessages.RateLimitExceeded
	case ErrorTypeConflict:
		return ErrorMessages.ConcurrentModification
	default:
		return "An internal error occurred"
	}
}

// LogFields renders err as a structured field map for logrus.
func LogFields(err error) map[string]interface{} {
	fields := map[string]interface{}{
		"error": err.Error(),
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return fields
	}

	fields["error_type"] = string(appErr.Type)
	fields["status_code"] = appErr.StatusCode
	if appErr.Details != "" {
		fields["error_details"] = appErr.Details
	}
	if appErr.Cause != nil {
		fields["underlying_error"] = appErr.Cause.Error()
	}
	return fields
}

// Chain joins non-nil errors with " -> ", returning nil if none are
// non-nil and the bare error if exactly one is non-nil.
func Chain(errs ...error) error {
	var nonNil []error
	for _, e := range errs {
		if e != nil {
			nonNil = append(nonNil, e)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		parts := make([]string, len(nonNil))
		for i, e := range nonNil {
			parts[i] = e.Error()
		}
		return fmt.Errorf("%s", strings.Join(parts, " -> "))
	}
}
