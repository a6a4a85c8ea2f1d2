package middleware

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formsmith/internal/engine/permissions"
	"formsmith/internal/platform/repositories"
)

func TestBusinessScope(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	resolver, err := permissions.NewResolver(repositories.NewOrganizationRepository(db), repositories.NewMembershipRepository(db))
	require.NoError(t, err)
	mw := NewBusinessScope(resolver)

	request := func(userID, target string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if userID != "" {
			req = req.WithContext(permissions.WithIdentity(req.Context(), permissions.Identity{UserID: userID}))
		}
		return req
	}

	t.Run("member of organization", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM organizations WHERE clerk_id = ?").
			WithArgs("org_123").
			WillReturnRows(sqlmock.NewRows([]string{"clerk_id", "name", "slug", "image_url", "created_at", "updated_at"}).
				AddRow("org_123", "Test Org", "test-org", "", 1, 1))
		mock.ExpectQuery("SELECT (.+) FROM organization_members WHERE organization_id = \\? AND user_id = \\?").
			WithArgs("org_123", "user_1").
			WillReturnRows(sqlmock.NewRows([]string{"organization_id", "user_id", "role", "created_at", "updated_at"}).
				AddRow("org_123", "user_1", "org:admin", 1, 1))

		var got *permissions.Scope
		rr := httptest.NewRecorder()
		mw.Handle(func(w http.ResponseWriter, r *http.Request) {
			got, _ = permissions.ScopeFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		})(rr, request("user_1", "/api/v1/forms?business_id=org_123"))

		assert.Equal(t, http.StatusOK, rr.Code)
		require.NotNil(t, got)
		assert.Equal(t, "org_123", got.BusinessID)
		assert.True(t, got.IsAdmin())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("header selects business", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM organizations WHERE clerk_id = ?").
			WithArgs("org_999").
			WillReturnError(sql.ErrNoRows)

		req := request("user_1", "/api/v1/forms")
		req.Header.Set(BusinessHeader, "org_999")
		rr := httptest.NewRecorder()
		mw.Handle(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not be called")
		})(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("personal account needs no lookup", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mw.Handle(func(w http.ResponseWriter, r *http.Request) {
			scope, ok := permissions.ScopeFromContext(r.Context())
			require.True(t, ok)
			assert.Equal(t, "user_1", scope.BusinessID)
			w.WriteHeader(http.StatusNoContent)
		})(rr, request("user_1", "/api/v1/forms"))

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("anonymous", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mw.Handle(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not be called")
		})(rr, request("", "/api/v1/forms"))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestRequireAdmin(t *testing.T) {
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

	rr := httptest.NewRecorder()
	RequireAdmin(ok)(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	resolver, err := permissions.NewResolver(repositories.NewOrganizationRepository(db), repositories.NewMembershipRepository(db))
	require.NoError(t, err)

	ctx := permissions.WithIdentity(context.Background(), permissions.Identity{UserID: "user_1"})
	scope, err := resolver.Authorize(ctx, "")
	require.NoError(t, err)

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(permissions.WithScope(ctx, scope))
	RequireAdmin(ok)(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
