package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to error envelopes.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Error(w, http.StatusNotFound, CodeNotFound, err.Error(), nil)
	case errors.Is(err, ErrDuplicate):
		Error(w, http.StatusConflict, CodeConflict, err.Error(), nil)
	case errors.Is(err, ErrValidation):
		Error(w, http.StatusBadRequest, CodeValidationFailed, err.Error(), nil)
	case errors.Is(err, ErrForbidden):
		Forbidden(w, err.Error(), nil)
	case errors.Is(err, ErrUnauthorized):
		Unauthorized(w, err.Error())
	default:
		Error(w, http.StatusInternalServerError, CodeInternal, "internal error", nil)
	}
}
