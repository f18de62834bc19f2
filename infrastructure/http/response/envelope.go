package response

import (
	"encoding/json"
	"net/http"

	domainerr "github.com/securemedai/portal/domain/error"
	apperr "github.com/securemedai/portal/pkg/error"
)

type Envelope struct {
	Status   bool        `json:"status"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data"`
	Redirect string      `json:"redirect,omitempty"`
}

// ErrorData is the data payload of a failed request.
type ErrorData struct {
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

func WriteJSON(w http.ResponseWriter, statusCode int, envelope Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(envelope)
}

func Success(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	WriteJSON(w, statusCode, Envelope{Status: true, Message: message, Data: data})
}

func Error(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, Envelope{Message: message})
}

// Redirect answers a JSON request with the path the client should navigate to.
func Redirect(w http.ResponseWriter, statusCode int, message, path string, data interface{}) {
	WriteJSON(w, statusCode, Envelope{Status: statusCode < http.StatusBadRequest, Message: message, Data: data, Redirect: path})
}

// FromError writes err using its mapped status and code.
func FromError(w http.ResponseWriter, err error) {
	mapped := apperr.MapError(err)
	WriteJSON(w, mapped.Status, Envelope{
		Message: mapped.Message,
		Data:    ErrorData{Code: mapped.Code, Field: mapped.Field},
	})
}

// SessionExpired tells an API client that its session ended and where to
// sign in again.
func SessionExpired(w http.ResponseWriter, loginPath string) {
	mapped := apperr.MapError(domainerr.ErrSessionInvalid)
	WriteJSON(w, http.StatusUnauthorized, Envelope{
		Message:  mapped.Message,
		Data:     ErrorData{Code: mapped.Code},
		Redirect: loginPath,
	})
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, message)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message)
}

func TooManyRequests(w http.ResponseWriter, message string) {
	Error(w, http.StatusTooManyRequests, message)
}

func InternalServerError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, message)
}
