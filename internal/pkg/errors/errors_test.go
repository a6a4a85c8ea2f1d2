package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized, ErrCodeUnauthorized},
		{"forbidden wrapped", fmt.Errorf("membership: %w", ErrForbidden), http.StatusForbidden, ErrCodeForbidden},
		{"not found", ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"not restorable", ErrNotRestorable, http.StatusUnprocessableEntity, ErrCodeNotRestorable},
		{"conflict", fmt.Errorf("%w: form was modified", ErrConflict), http.StatusConflict, ErrCodeConflict},
		{"unavailable", fmt.Errorf("assistant: %w", ErrUnavailable), http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"validation", NewValidationError("bad", map[string]string{"title": "required"}), http.StatusUnprocessableEntity, ErrCodeInvalidInput},
		{"unknown", fmt.Errorf("disk full"), http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteDomainError(rr, tt.err)

			assert.Equal(t, tt.status, rr.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestIsValidation(t *testing.T) {
	assert.False(t, IsValidation(nil))
	assert.True(t, IsValidation(fmt.Errorf("wrap: %w", NewValidationError("x", nil))))
	assert.False(t, IsValidation(ErrNotFound))
}
