package error

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode string

// Error codes for different categories
const (
	// Authentication Errors (1xxx)
	ErrCodeInvalidCredentials   ErrorCode = "AUTH_1001"
	ErrCodeProviderFailed       ErrorCode = "AUTH_1002"
	ErrCodeTokenExchangeFailed  ErrorCode = "AUTH_1003"
	ErrCodeFederatedDisabled    ErrorCode = "AUTH_1004"
	ErrCodeInvalidState         ErrorCode = "AUTH_1005"
	ErrCodeRegistrationRejected ErrorCode = "AUTH_1006"

	// Validation Errors (2xxx)
	ErrCodeInvalidEmail    ErrorCode = "VALID_2001"
	ErrCodeMissingPassword ErrorCode = "VALID_2002"
	ErrCodeInvalidRole     ErrorCode = "VALID_2003"
	ErrCodeInvalidRequest  ErrorCode = "VALID_2005"

	// Rate Limiting Errors (3xxx)
	ErrCodeRateLimitExceeded ErrorCode = "RATE_3001"
	ErrCodeIPBlocked         ErrorCode = "RATE_3002"

	// Server Errors (6xxx)
	ErrCodeInternalServerError  ErrorCode = "SERVER_6001"
	ErrCodeExternalServiceError ErrorCode = "SERVER_6004"

	// Authorization Errors (8xxx)
	ErrCodeSessionInvalid ErrorCode = "AUTHZ_8001"
)

// AppError represents a structured application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Field   string    `json:"field,omitempty"`
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

// Is matches any AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
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

// Sentinels for errors.Is comparisons.
var (
	ErrSessionInvalid    = &AppError{Code: ErrCodeSessionInvalid, Message: "Session is no longer valid"}
	ErrFederatedDisabled = &AppError{Code: ErrCodeFederatedDisabled, Message: "Federated sign-in is not configured"}
)

// Validation errors
func ErrValidation(code ErrorCode, field, message string) *AppError {
	return &AppError{Code: code, Message: message, Field: field}
}

func ErrInvalidRequest(details string) *AppError {
	return NewAppError(ErrCodeInvalidRequest, "Invalid request", details, nil)
}

// Authentication errors
func ErrInvalidCredentials(message string) *AppError {
	if message == "" {
		message = "Login failed"
	}
	return NewAppError(ErrCodeInvalidCredentials, message, "", nil)
}

func ErrProviderFailed(cause error) *AppError {
	return NewAppError(ErrCodeProviderFailed, "Sign-in with the identity provider failed", "", cause)
}

func ErrTokenExchangeFailed(message string, cause error) *AppError {
	if message == "" {
		message = "Could not complete federated sign-in"
	}
	return NewAppError(ErrCodeTokenExchangeFailed, message, "", cause)
}

func ErrInvalidState() *AppError {
	return NewAppError(ErrCodeInvalidState, "Sign-in request expired, please try again", "", nil)
}

func ErrRegistrationRejected(message string) *AppError {
	if message == "" {
		message = "Registration failed"
	}
	return NewAppError(ErrCodeRegistrationRejected, message, "", nil)
}

// Rate limiting errors
func ErrRateLimitExceeded(attempts int, window string) *AppError {
	return NewAppError(ErrCodeRateLimitExceeded, "Too many requests", fmt.Sprintf("Attempts: %d, Window: %s", attempts, window), nil)
}

func ErrIPBlocked(ip string) *AppError {
	return NewAppError(ErrCodeIPBlocked, "Too many login attempts. Please try again later.", fmt.Sprintf("IP: %s", ip), nil)
}

// Server errors
func ErrInternal(cause error) *AppError {
	return NewAppError(ErrCodeInternalServerError, "Internal server error", "", cause)
}

func ErrExternalService(message string, cause error) *AppError {
	if message == "" {
		message = "An error occurred"
	}
	return NewAppError(ErrCodeExternalServiceError, message, "", cause)
}

// Category returns the error taxonomy bucket used by the HTTP layer.
func Category(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return "server"
	}
	code := string(appErr.Code)
	switch {
	case len(code) >= 5 && code[:5] == "VALID":
		return "validation"
	case len(code) >= 5 && code[:5] == "AUTHZ":
		return "authorization"
	case len(code) >= 4 && code[:4] == "AUTH":
		return "authentication"
	case len(code) >= 4 && code[:4] == "RATE":
		return "rate_limit"
	default:
		return "server"
	}
}
