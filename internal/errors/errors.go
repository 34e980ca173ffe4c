package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound         = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists    = new(ErrCodeAlreadyExists, "resource already exists")
	ErrValidation       = new(ErrCodeValidation, "validation error")
	ErrInvalidOperation = new(ErrCodeInvalidOperation, "invalid operation")
	ErrPermissionDenied = new(ErrCodePermissionDenied, "permission denied")
	ErrHTTPClient       = new(ErrCodeHTTPClient, "http client error")
	ErrDatabase         = new(ErrCodeDatabase, "database error")
	ErrSystem           = new(ErrCodeSystemError, "system error")

	// Reconciliation-path errors. Configuration means the provider is not
	// activated for this merchant, Provider wraps an upstream failure,
	// Verification covers webhook signature failures, Transient covers
	// timeouts and connection errors the poller retries on its next cycle,
	// and MetadataMissing marks a webhook payload without an invoice
	// reference (dropped, never retried).
	ErrConfiguration   = new(ErrCodeConfiguration, "provider not configured")
	ErrProvider        = new(ErrCodeProvider, "provider error")
	ErrVerification    = new(ErrCodeVerification, "verification failed")
	ErrTransient       = new(ErrCodeTransient, "transient network error")
	ErrMetadataMissing = new(ErrCodeMetadataMissing, "payload metadata missing")

	// maps errors to http status codes
	statusCodeMap = map[error]int{
		ErrHTTPClient:       http.StatusInternalServerError,
		ErrDatabase:         http.StatusInternalServerError,
		ErrNotFound:         http.StatusNotFound,
		ErrAlreadyExists:    http.StatusConflict,
		ErrValidation:       http.StatusBadRequest,
		ErrInvalidOperation: http.StatusBadRequest,
		ErrPermissionDenied: http.StatusForbidden,
		ErrSystem:           http.StatusInternalServerError,
		ErrConfiguration:    http.StatusFailedDependency,
		ErrProvider:         http.StatusBadGateway,
		ErrVerification:     http.StatusUnauthorized,
		ErrTransient:        http.StatusServiceUnavailable,
		ErrMetadataMissing:  http.StatusBadRequest,
	}
)

const (
	ErrCodeHTTPClient       = "http_client_error"
	ErrCodeSystemError      = "system_error"
	ErrCodeNotFound         = "not_found"
	ErrCodeAlreadyExists    = "already_exists"
	ErrCodeValidation       = "validation_error"
	ErrCodeInvalidOperation = "invalid_operation"
	ErrCodePermissionDenied = "permission_denied"
	ErrCodeDatabase         = "database_error"
	ErrCodeConfiguration    = "configuration_error"
	ErrCodeProvider         = "provider_error"
	ErrCodeVerification     = "verification_error"
	ErrCodeTransient        = "transient_network_error"
	ErrCodeMetadataMissing  = "metadata_missing"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

// new creates a new InternalError
func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidOperation checks if an error is an invalid operation error
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// IsPermissionDenied checks if an error is a permission denied error
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsHTTPClient checks if an error is an http client error
func IsHTTPClient(err error) bool {
	return errors.Is(err, ErrHTTPClient)
}

// IsConfiguration checks if an error is a provider configuration error
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsProvider checks if an error is an upstream provider error
func IsProvider(err error) bool {
	return errors.Is(err, ErrProvider)
}

// IsVerification checks if an error is a webhook verification error
func IsVerification(err error) bool {
	return errors.Is(err, ErrVerification)
}

// IsTransient checks if an error is a retryable network error
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsMetadataMissing checks if an error marks a payload without an invoice reference
func IsMetadataMissing(err error) bool {
	return errors.Is(err, ErrMetadataMissing)
}

func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}
