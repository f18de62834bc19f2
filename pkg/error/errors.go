package error

import (
	"errors"
	"net/http"

	domainerr "github.com/securemedai/portal/domain/error"
)

// HTTPError is the wire form of an application error.
type HTTPError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
}

func (e *HTTPError) Error() string {
	return e.Message
}

var statusByCode = map[domainerr.ErrorCode]int{
	domainerr.ErrCodeInvalidEmail:         http.StatusUnprocessableEntity,
	domainerr.ErrCodeMissingPassword:      http.StatusUnprocessableEntity,
	domainerr.ErrCodeInvalidRole:          http.StatusUnprocessableEntity,
	domainerr.ErrCodeInvalidRequest:       http.StatusBadRequest,
	domainerr.ErrCodeInvalidCredentials:   http.StatusUnauthorized,
	domainerr.ErrCodeProviderFailed:       http.StatusUnauthorized,
	domainerr.ErrCodeTokenExchangeFailed:  http.StatusUnauthorized,
	domainerr.ErrCodeInvalidState:         http.StatusUnauthorized,
	domainerr.ErrCodeFederatedDisabled:    http.StatusNotFound,
	domainerr.ErrCodeRegistrationRejected: http.StatusBadRequest,
	domainerr.ErrCodeRateLimitExceeded:    http.StatusTooManyRequests,
	domainerr.ErrCodeIPBlocked:            http.StatusTooManyRequests,
	domainerr.ErrCodeSessionInvalid:       http.StatusUnauthorized,
	domainerr.ErrCodeExternalServiceError: http.StatusBadGateway,
}

// upstream is implemented by hospital API failures.
type upstream interface {
	HTTPStatus() int
	UserMessage() string
}

// MapError converts any error into its HTTP representation. Unknown errors
// become a generic 500 so internals never leak to the browser.
func MapError(err error) *HTTPError {
	var appErr *domainerr.AppError
	if errors.As(err, &appErr) {
		status, ok := statusByCode[appErr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		message := appErr.Message
		if status == http.StatusInternalServerError {
			message = "Internal server error"
		}
		return &HTTPError{
			Code:    string(appErr.Code),
			Message: message,
			Field:   appErr.Field,
			Status:  status,
		}
	}

	var up upstream
	if errors.As(err, &up) {
		message := up.UserMessage()
		if message == "" {
			message = "An error occurred"
		}
		return &HTTPError{
			Code:    string(domainerr.ErrCodeExternalServiceError),
			Message: message,
			Status:  up.HTTPStatus(),
		}
	}

	return &HTTPError{
		Code:    string(domainerr.ErrCodeInternalServerError),
		Message: "Internal server error",
		Status:  http.StatusInternalServerError,
	}
}
