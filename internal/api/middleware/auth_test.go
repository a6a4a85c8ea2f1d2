package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formsmith/internal/engine/permissions"
	"formsmith/internal/platform/auth"
	"formsmith/internal/platform/config"
)

func TestAuthMiddleware(t *testing.T) {
	tokens := auth.NewTokenService(config.JWTConfig{Secret: "test-secret", Issuer: "formsmith", AccessTokenTTL: time.Hour})
	mw := NewAuthMiddleware(tokens)

	token, err := tokens.GenerateAccessToken("user_1", "ada@acme.test")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			mw.Handle(func(w http.ResponseWriter, r *http.Request) {
				id, ok := permissions.IdentityFromContext(r.Context())
				require.True(t, ok)
				assert.Equal(t, "user_1", id.UserID)
				assert.Equal(t, "ada@acme.test", id.Email)
				w.WriteHeader(http.StatusOK)
			})(rr, req)
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}
