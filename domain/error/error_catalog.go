package error

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode represents a unique error code. The prefix selects the error class.
type ErrorCode string

const (
	// Authentication Errors (1xxx)
	ErrCodeUnauthorized ErrorCode = "AUTH_1001"
	ErrCodeInvalidToken ErrorCode = "AUTH_1002"

	// Validation Errors (2xxx)
	ErrCodeInvalidRequest   ErrorCode = "VALID_2001"
	ErrCodeInvalidTarget    ErrorCode = "VALID_2002"
	ErrCodeInvalidReference ErrorCode = "VALID_2003"
	ErrCodeTargetMismatch   ErrorCode = "VALID_2004"
	ErrCodeInvalidCursor    ErrorCode = "VALID_2005"

	// State Conflict Errors (3xxx)
	ErrCodeInvalidState    ErrorCode = "CONFLICT_3001"
	ErrCodeVersionConflict ErrorCode = "CONFLICT_3002"

	// Not Found Errors (4xxx)
	ErrCodeChangeNotFound  ErrorCode = "NOTFOUND_4001"
	ErrCodeStagingNotFound ErrorCode = "NOTFOUND_4002"
	ErrCodeStagingExpired  ErrorCode = "NOTFOUND_4003"
	ErrCodeNoPriorVersion  ErrorCode = "NOTFOUND_4004"

	// Server Errors (6xxx)
	ErrCodeInternalServerError ErrorCode = "SERVER_6001"
	ErrCodeStagingCollision    ErrorCode = "SERVER_6002"
	ErrCodeRateLimitExceeded   ErrorCode = "RATE_6003"

	// Permission Errors (7xxx)
	ErrCodeSelfApprovalForbidden ErrorCode = "PERM_7001"
)

// AppError represents a structured application error.
// Messages and details carry identifiers and key names only, never secret values.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the cause error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// Validation errors
func ErrInvalidRequest(details string) *AppError {
	return NewAppError(ErrCodeInvalidRequest, "Invalid request", details, nil)
}

func ErrInvalidTarget(project, env string) *AppError {
	return NewAppError(ErrCodeInvalidTarget, "Unknown project or environment", fmt.Sprintf("Target: %s/%s", project, env), nil)
}

func ErrInvalidReference(reference string, cause error) *AppError {
	return NewAppError(ErrCodeInvalidReference, "Invalid staging reference", fmt.Sprintf("Reference: %s", reference), cause)
}

func ErrTargetMismatch(requested, staged string) *AppError {
	return NewAppError(ErrCodeTargetMismatch, "Staging record belongs to a different target", fmt.Sprintf("Requested: %s, Staged: %s", requested, staged), nil)
}

func ErrInvalidCursor(cause error) *AppError {
	return NewAppError(ErrCodeInvalidCursor, "Invalid pagination token", "", cause)
}

// Not found errors
func ErrChangeNotFound(changeID string) *AppError {
	return NewAppError(ErrCodeChangeNotFound, "Change not found", fmt.Sprintf("Change ID: %s", changeID), nil)
}

func ErrStagingNotFound(reference string) *AppError {
	return NewAppError(ErrCodeStagingNotFound, "Staging record not found", fmt.Sprintf("Reference: %s", reference), nil)
}

func ErrStagingExpired(changeID string) *AppError {
	return NewAppError(ErrCodeStagingExpired, "Staging record expired, propose the change again", fmt.Sprintf("Change ID: %s", changeID), nil)
}

func ErrNoPriorVersion(target string) *AppError {
	return NewAppError(ErrCodeNoPriorVersion, "No previous version to roll back to", fmt.Sprintf("Target: %s", target), nil)
}

// State conflict errors
func ErrInvalidState(changeID, status string) *AppError {
	return NewAppError(ErrCodeInvalidState, "Change is not in a valid state for this action", fmt.Sprintf("Change ID: %s, Status: %s", changeID, status), nil)
}

func ErrVersionConflict(changeID string) *AppError {
	return NewAppError(ErrCodeVersionConflict, "Secret was modified since this change was proposed, propose again", fmt.Sprintf("Change ID: %s", changeID), nil)
}

// Permission errors
func ErrSelfApprovalForbidden(changeID string) *AppError {
	return NewAppError(ErrCodeSelfApprovalForbidden, "You cannot approve your own change", fmt.Sprintf("Change ID: %s", changeID), nil)
}

// Authentication errors
func ErrUnauthorized(details string) *AppError {
	return NewAppError(ErrCodeUnauthorized, "Unauthorized", details, nil)
}

// Server errors
func ErrInternalServerError(details string, cause error) *AppError {
	return NewAppError(ErrCodeInternalServerError, "Internal server error", details, cause)
}

func ErrStagingCollision(changeID string, cause error) *AppError {
	return NewAppError(ErrCodeStagingCollision, "Change identifier collision", fmt.Sprintf("Change ID: %s", changeID), cause)
}

func ErrRateLimitExceeded(window string) *AppError {
	return NewAppError(ErrCodeRateLimitExceeded, "Too many requests", fmt.Sprintf("Window: %s", window), nil)
}

// HasCode reports whether err is an AppError with the given code
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsConflict reports whether err belongs to the state-conflict class
func IsConflict(err error) bool {
	return GetHTTPStatusCode(err) == http.StatusConflict
}

// GetHTTPStatusCode maps an error to its HTTP status code
func GetHTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		code := string(appErr.Code)
		switch {
		case strings.HasPrefix(code, "AUTH_"):
			return http.StatusUnauthorized
		case strings.HasPrefix(code, "VALID_"):
			return http.StatusBadRequest
		case strings.HasPrefix(code, "PERM_"):
			return http.StatusForbidden
		case strings.HasPrefix(code, "NOTFOUND_"):
			return http.StatusNotFound
		case strings.HasPrefix(code, "CONFLICT_"):
			return http.StatusConflict
		case strings.HasPrefix(code, "RATE_"):
			return http.StatusTooManyRequests
		}
	}
	return http.StatusInternalServerError
}
