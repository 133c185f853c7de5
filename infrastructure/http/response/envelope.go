package response

import (
	"encoding/json"
	"errors"
	"net/http"

	domainerr "github.com/fixora/secret-review/domain/error"
)

type Envelope struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Details string      `json:"details,omitempty"`
	Data    interface{} `json:"data"`
}

func WriteJSON(w http.ResponseWriter, statusCode int, envelope Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(envelope)
}

func Success(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	WriteJSON(w, statusCode, Envelope{Status: true, Message: message, Data: data})
}

func Error(w http.ResponseWriter, statusCode int, code domainerr.ErrorCode, message string) {
	WriteJSON(w, statusCode, Envelope{Status: false, Message: message, Code: string(code)})
}

// FromError writes the classified failure for err. Unclassified errors become a
// generic 500 so infrastructure messages never reach the caller.
func FromError(w http.ResponseWriter, err error) {
	var appErr *domainerr.AppError
	if !errors.As(err, &appErr) {
		InternalServerError(w, "Internal server error")
		return
	}
	WriteJSON(w, domainerr.GetHTTPStatusCode(appErr), Envelope{
		Status:  false,
		Message: appErr.Message,
		Code:    string(appErr.Code),
		Details: appErr.Details,
	})
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, domainerr.ErrCodeInvalidRequest, message)
}

func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, domainerr.ErrCodeUnauthorized, message)
}

func TooManyRequests(w http.ResponseWriter, message string) {
	Error(w, http.StatusTooManyRequests, domainerr.ErrCodeRateLimitExceeded, message)
}

func InternalServerError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, domainerr.ErrCodeInternalServerError, message)
}
