// Package httpx writes the JSON response envelope shared by every API handler.
package httpx

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// Error codes carried in the envelope.
const (
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
)

// Envelope is the top-level JSON body of every API response.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Meta    any        `json:"meta,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Now is the clock used for error timestamps.
var Now = time.Now

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// OK sends a success envelope with status 200.
func OK(w http.ResponseWriter, data any) {
	Success(w, http.StatusOK, data, nil)
}

// Success sends a success envelope.
func Success(w http.ResponseWriter, status int, data any, meta any) {
	JSON(w, status, Envelope{Success: true, Data: data, Meta: meta})
}

// Error sends an error envelope.
func Error(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, Envelope{
		Success: false,
		Error: &ErrorBody{
			Code:      code,
			Message:   message,
			Details:   details,
			Timestamp: Now().UTC().Format(time.RFC3339),
		},
	})
}

// Unauthorized sends a 401 UNAUTHORIZED envelope.
func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, CodeUnauthorized, message, nil)
}

// Forbidden sends a 403 FORBIDDEN envelope.
func Forbidden(w http.ResponseWriter, message string, details any) {
	Error(w, http.StatusForbidden, CodeForbidden, message, details)
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
