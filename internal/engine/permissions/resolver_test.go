package permissions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "formsmith/internal/pkg/errors"
	"formsmith/internal/platform/database/dbtest"
	"formsmith/internal/platform/models"
	"formsmith/internal/platform/repositories"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	db := dbtest.New(t)
	ctx := context.Background()

	orgs := repositories.NewOrganizationRepository(db)
	members := repositories.NewMembershipRepository(db)
	require.NoError(t, orgs.Upsert(ctx, &models.Organization{ID: "org_1", Name: "Acme"}))
	require.NoError(t, members.Upsert(ctx, &models.Membership{OrganizationID: "org_1", UserID: "admin_1", Role: models.RoleAdmin}))
	require.NoError(t, members.Upsert(ctx, &models.Membership{OrganizationID: "org_1", UserID: "member_1", Role: models.RoleMember}))
	require.NoError(t, members.Upsert(ctx, &models.Membership{OrganizationID: "org_1", UserID: "guest_1", Role: "org:guest"}))

	r, err := NewResolver(orgs, members)
	require.NoError(t, err)
	return r
}

func as(userID string) context.Context {
	return WithIdentity(context.Background(), Identity{UserID: userID})
}

func TestResolveIdentity(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.ResolveIdentity(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	id, err := r.ResolveIdentity(as("user_1"))
	require.NoError(t, err)
	assert.Equal(t, "user_1", id.UserID)
}

func TestResolveMembership(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	m, err := r.ResolveMembership(ctx, "org_1", "member_1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, m.Role)

	_, err = r.ResolveMembership(ctx, "org_missing", "member_1")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = r.ResolveMembership(ctx, "org_1", "stranger")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	m, err = r.ResolveMembership(ctx, "org_1", "guest_1")
	require.NoError(t, err, "custom roles still count as membership")
	assert.Equal(t, "org:guest", m.Role)
}

func TestRequireAdmin(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		businessID string
		userID     string
		wantErr    error
	}{
		{"personal account", "user_1", "user_1", nil},
		{"org admin", "org_1", "admin_1", nil},
		{"org member", "org_1", "member_1", apperrors.ErrForbidden},
		{"non member", "org_1", "stranger", apperrors.ErrForbidden},
		{"missing org", "org_2", "admin_1", apperrors.ErrForbidden},
		{"custom role", "org_1", "guest_1", apperrors.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.RequireAdmin(ctx, tt.businessID, tt.userID)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestAuthorize(t *testing.T) {
	r := newTestResolver(t)

	t.Run("personal account skips membership", func(t *testing.T) {
		s, err := r.Authorize(as("user_1"), "user_1")
		require.NoError(t, err)
		assert.True(t, s.IsPersonal())
		assert.True(t, s.IsAdmin())
	})

	t.Run("empty business means personal", func(t *testing.T) {
		s, err := r.Authorize(as("user_1"), "")
		require.NoError(t, err)
		assert.Equal(t, "user_1", s.BusinessID)
	})

	t.Run("member", func(t *testing.T) {
		s, err := r.Authorize(as("member_1"), "org_1")
		require.NoError(t, err)
		assert.False(t, s.IsPersonal())
		assert.ErrorIs(t, s.RequireAdmin(), apperrors.ErrForbidden)
	})

	t.Run("admin", func(t *testing.T) {
		s, err := r.Authorize(as("admin_1"), "org_1")
		require.NoError(t, err)
		assert.NoError(t, s.RequireAdmin())
	})

	t.Run("stranger", func(t *testing.T) {
		_, err := r.Authorize(as("stranger"), "org_1")
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("anonymous", func(t *testing.T) {
		_, err := r.Authorize(context.Background(), "org_1")
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("cached scope reused", func(t *testing.T) {
		cached := &Scope{Identity: Identity{UserID: "stranger"}, BusinessID: "org_1"}
		ctx := WithScope(as("stranger"), cached)
		s, err := r.Authorize(ctx, "org_1")
		require.NoError(t, err)
		assert.Same(t, cached, s)
	})
}

func TestAuthorizeOwned(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.AuthorizeOwned(as("member_1"), "org_1", "org_1")
	assert.NoError(t, err)

	_, err = r.AuthorizeOwned(as("member_1"), "org_1", "org_other")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = r.AuthorizeOwned(as("user_1"), "user_1", "org_1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

type formMap map[string]*models.Form

func (m formMap) GetByID(_ context.Context, id string) (*models.Form, error) {
	return m[id], nil
}

func TestAuthorizeFormOrder(t *testing.T) {
	r := newTestResolver(t)
	forms := formMap{
		"frm_org":  {ID: "frm_org", BusinessID: "org_1"},
		"frm_mine": {ID: "frm_mine", BusinessID: "user_1"},
	}

	tests := []struct {
		name       string
		ctx        context.Context
		formID     string
		businessID string
		wantErr    error
	}{
		{"anonymous before lookup", context.Background(), "frm_missing", "org_1", apperrors.ErrUnauthorized},
		{"missing form before membership", as("stranger"), "frm_missing", "org_1", apperrors.ErrNotFound},
		{"non member", as("stranger"), "frm_org", "org_1", apperrors.ErrForbidden},
		{"foreign tenant", as("member_1"), "frm_mine", "org_1", apperrors.ErrNotFound},
		{"member", as("member_1"), "frm_org", "org_1", nil},
		{"owner", as("user_1"), "frm_mine", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, form, err := r.AuthorizeForm(tt.ctx, forms, tt.formID, tt.businessID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.formID, form.ID)
			assert.Equal(t, form.BusinessID, scope.BusinessID)
		})
	}
}

func TestAuthorizeCustomRoleIsMember(t *testing.T) {
	r := newTestResolver(t)

	scope, err := r.Authorize(as("guest_1"), "org_1")
	require.NoError(t, err)
	assert.False(t, scope.IsAdmin())
	assert.ErrorIs(t, scope.RequireAdmin(), apperrors.ErrForbidden)
}
