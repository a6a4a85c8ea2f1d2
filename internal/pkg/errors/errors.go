package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeNotRestorable     = "NOT_RESTORABLE"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeUnavailable       = "UNAVAILABLE"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// Domain errors shared by every engine package. NotFound is used both for
// missing entities and for entities owned by another tenant.
var (
	ErrUnauthorized  = stderrors.New("unauthorized")
	ErrForbidden     = stderrors.New("forbidden")
	ErrNotFound      = stderrors.New("not found")
	ErrConflict      = stderrors.New("conflict")
	ErrNotRestorable = stderrors.New("this change cannot be restored")
	ErrUnavailable   = stderrors.New("service unavailable")
)

// ValidationError carries per-field messages back to the client.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(message string, fields map[string]string) *ValidationError {
	return &ValidationError{Message: message, Fields: fields}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return stderrors.As(err, &v)
}

func WriteError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
		Details: details,
	})
}

// WriteDomainError maps an engine error onto the JSON error envelope.
// Unknown errors are logged and reported as 500 without their text.
func WriteDomainError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	switch {
	case stderrors.As(err, &verr):
		WriteError(w, http.StatusUnprocessableEntity, ErrCodeInvalidInput, verr.Message, verr.Fields)
	case stderrors.Is(err, ErrUnauthorized):
		WriteError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication required", nil)
	case stderrors.Is(err, ErrForbidden):
		WriteError(w, http.StatusForbidden, ErrCodeForbidden, "You do not have access to this business", nil)
	case stderrors.Is(err, ErrNotFound):
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "Not found", nil)
	case stderrors.Is(err, ErrNotRestorable):
		WriteError(w, http.StatusUnprocessableEntity, ErrCodeNotRestorable, ErrNotRestorable.Error(), nil)
	case stderrors.Is(err, ErrConflict):
		WriteError(w, http.StatusConflict, ErrCodeConflict, err.Error(), nil)
	case stderrors.Is(err, ErrUnavailable):
		WriteError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error(), nil)
	default:
		log.Error().Err(err).Msg("unhandled error")
		WriteError(w, http.StatusInternalServerError, ErrCodeInternal, "Internal server error", nil)
	}
}
