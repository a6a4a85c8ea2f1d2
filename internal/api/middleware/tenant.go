package middleware

import (
	"net/http"

	"formsmith/internal/engine/permissions"
	"formsmith/internal/pkg/errors"
)

// BusinessHeader carries the tenant id when the query string does not.
const BusinessHeader = "X-Business-ID"

// BusinessID returns the tenant the request acts for: the business_id query
// parameter, then the X-Business-ID header. Empty means the caller's
// personal account.
func BusinessID(r *http.Request) string {
	if id := r.URL.Query().Get("business_id"); id != "" {
		return id
	}
	return r.Header.Get(BusinessHeader)
}

type BusinessScope struct {
	resolver *permissions.Resolver
}

func NewBusinessScope(resolver *permissions.Resolver) *BusinessScope {
	return &BusinessScope{resolver: resolver}
}

// Handle authorizes the caller for the requested business once and caches
// the scope on the context for the services downstream. Requires
// AuthMiddleware to have run.
func (m *BusinessScope) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := m.resolver.Authorize(r.Context(), BusinessID(r))
		if err != nil {
			errors.WriteDomainError(w, err)
			return
		}
		next(w, r.WithContext(permissions.WithScope(r.Context(), scope)))
	}
}

// RequireAdmin rejects callers without the elevated role in the scoped
// business.
func RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, ok := permissions.ScopeFromContext(r.Context())
		if !ok {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "No business scope found", nil)
			return
		}
		if err := scope.RequireAdmin(); err != nil {
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
			return
		}
		next(w, r)
	}
}
