// Package apperror provides domain-specific error types for Seif.
// These errors carry an HTTP status code, a user-safe message and, for
// security-relevant failures, a stable reason code that is also written to
// the audit log. The Echo error handler maps them to HTTP responses.
//
// NEVER return raw database, crypto or infrastructure errors to the client.
// Always wrap them in an apperror type or return a generic internal error.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Reason codes shared across plugins. OTP reason codes live in package otp.
const (
	ReasonValidation         = "Validation"
	ReasonNotFoundOrNotOwner = "NotFoundOrNotOwner"
	ReasonDecryptError       = "DecryptError"
	ReasonInvalidCredentials = "InvalidCredentials"
	ReasonNotValidated       = "2FA_NotValidated"
	ReasonNotAdmin           = "NotAdmin"
	ReasonSMTPError          = "SmtpError"
	ReasonNoIdentity         = "AdEmail_NotFound_And_NoCache"
	ReasonInvalidEmail       = "InvalidEmail"
	ReasonException          = "Exception"
)

// AppError is the base error type for all domain errors. It carries an
// HTTP status code, a machine-readable error type, and a human-readable
// message safe to show to the client.
type AppError struct {
	// Code is the HTTP status code (e.g., 404, 400, 500).
	Code int `json:"-"`

	// Type is a machine-readable error classifier (e.g., "not_found").
	Type string `json:"type"`

	// Message is a human-readable description safe for the client.
	Message string `json:"message"`

	// Reason is the audit reason code, empty for errors that are not audited.
	Reason string `json:"reason,omitempty"`

	// Internal holds the underlying error for logging. Never exposed to client.
	Internal error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// WithReason returns a copy of the error carrying the given reason code.
func (e *AppError) WithReason(reason string) *AppError {
	cp := *e
	cp.Reason = reason
	return &cp
}

// --- Constructors for common error types ---

// NewNotFound creates a 404 Not Found error.
func NewNotFound(message string) *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Type:    "not_found",
		Message: message,
	}
}

// NewNotOwned creates the 404 returned for vault records that either do
// not exist or belong to someone else. The two cases are indistinguishable
// to the caller on purpose.
func NewNotOwned() *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Type:    "not_found",
		Message: "record not found",
		Reason:  ReasonNotFoundOrNotOwner,
	}
}

// NewBadRequest creates a 400 Bad Request error.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Type:    "bad_request",
		Message: message,
	}
}

// NewUnauthorized creates a 401 Unauthorized error.
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    "unauthorized",
		Message: message,
	}
}

// NewForbidden creates a 403 Forbidden error.
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:    http.StatusForbidden,
		Type:    "forbidden",
		Message: message,
	}
}

// NewConflict creates a 409 Conflict error.
func NewConflict(message string) *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Type:    "conflict",
		Message: message,
	}
}

// NewTooManyRequests creates a 429 error for cooldowns and lockouts.
func NewTooManyRequests(message, reason string) *AppError {
	return &AppError{
		Code:    http.StatusTooManyRequests,
		Type:    "too_many_requests",
		Message: message,
		Reason:  reason,
	}
}

// NewUnavailable creates a 503 error for transient external failures such
// as mail delivery or directory outages. The message tells the user to
// try again; the cause stays in Internal.
func NewUnavailable(message, reason string, err error) *AppError {
	return &AppError{
		Code:     http.StatusServiceUnavailable,
		Type:     "unavailable",
		Message:  message,
		Reason:   reason,
		Internal: err,
	}
}

// NewDecrypt creates the generic error shown when a stored value cannot be
// decrypted. The crypto error is kept for logs only.
func NewDecrypt(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     "decrypt_error",
		Message:  "the stored value could not be decrypted",
		Reason:   ReasonDecryptError,
		Internal: err,
	}
}

// errMissingContext is the shared internal error for nil precondition checks.
var errMissingContext = errors.New("missing required context")

// NewMissingContext creates a 500 error for handler nil-context guards
// (e.g. session not loaded, dependency not wired). Provides a meaningful
// Internal error for logging instead of nil.
func NewMissingContext() *AppError {
	return NewInternal(errMissingContext)
}

// NewInternal creates a 500 Internal Server Error. The real error is stored
// in Internal for logging but the client only sees a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     "internal_error",
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// NewValidation creates a 422 Unprocessable Entity error for validation
// failures. Validation failures are audited with reason "Validation".
func NewValidation(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnprocessableEntity,
		Type:    "validation_error",
		Message: message,
		Reason:  ReasonValidation,
	}
}

// SafeMessage returns the client-safe error message from an error. If the
// error is an AppError, returns its Message field (which is safe to expose).
// For any other error type, returns a generic message to prevent leaking
// internal details like table names, query structure, or stack traces.
func SafeMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "an unexpected error occurred"
}

// SafeCode returns the HTTP status code from an AppError, or 500 for
// any other error type.
func SafeCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// ReasonOf returns the audit reason carried by err. Errors without one
// are reported as "Exception".
func ReasonOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Reason != "" {
		return appErr.Reason
	}
	return ReasonException
}

// IsNotFound reports whether err is a 404 AppError.
func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == http.StatusNotFound
}
