// internal/app/features/errors/errors.go
package errors

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Body is the JSON shape of every error response.
type Body struct {
	Error      string   `json:"error"`
	Message    string   `json:"message,omitempty"`
	Violations []string `json:"violations,omitempty"`
	Detail     any      `json:"detail,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Write writes an error body whose code is the status text.
func Write(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, Body{Error: Code(status), Message: msg})
}

// Code is the machine-readable error code for status.
func Code(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "invalid"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	return "internal"
}

// Handler serves the router's fallback responses.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// NotFound answers unknown routes.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	Write(w, http.StatusNotFound, "no route for "+r.Method+" "+r.URL.Path)
}

// MethodNotAllowed answers known routes called with the wrong method.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	Write(w, http.StatusMethodNotAllowed, r.Method+" is not allowed here")
}

// ErrorLogger logs unexpected failures and hides their text from clients.
type ErrorLogger struct {
	log *zap.Logger
}

func NewErrorLogger(log *zap.Logger) *ErrorLogger {
	return &ErrorLogger{log: log}
}

// HandleServerError logs err and writes a 500 with a generic message.
func (e *ErrorLogger) HandleServerError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	e.log.Error(msg,
		zap.Error(err),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path))
	Write(w, http.StatusInternalServerError, msg)
}
