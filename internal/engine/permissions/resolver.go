// Package permissions decides whether a caller may act for a business.
//
// A business is either the caller's personal account (business id equal to
// the user id) or an organization the caller belongs to. Role permissions
// are evaluated with casbin so new roles only need new policy lines.
package permissions

import (
	"context"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	apperrors "formsmith/internal/pkg/errors"
	"formsmith/internal/platform/models"
)

// ActionAdmin is the elevated action checked against the role policy.
const ActionAdmin = "admin"

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

var defaultPolicies = [][]string{
	{models.RoleAdmin, "business", ActionAdmin},
}

type OrganizationStore interface {
	GetByID(ctx context.Context, id string) (*models.Organization, error)
}

type MembershipStore interface {
	Get(ctx context.Context, orgID, userID string) (*models.Membership, error)
}

type Resolver struct {
	orgs     OrganizationStore
	members  MembershipStore
	enforcer *casbin.Enforcer
}

func NewResolver(orgs OrganizationStore, members MembershipStore) (*Resolver, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("load rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	for _, p := range defaultPolicies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("add policy: %w", err)
		}
	}
	return &Resolver{orgs: orgs, members: members, enforcer: e}, nil
}

// ResolveIdentity returns the authenticated caller or ErrUnauthorized.
func (r *Resolver) ResolveIdentity(ctx context.Context) (Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return Identity{}, apperrors.ErrUnauthorized
	}
	return id, nil
}

// ResolveMembership fails with ErrForbidden when the organization is unknown
// or the user is not one of its members. Any role counts as membership;
// only admin checks look at the role.
func (r *Resolver) ResolveMembership(ctx context.Context, orgID, userID string) (*models.Membership, error) {
	org, err := r.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}
	if org == nil {
		return nil, apperrors.ErrForbidden
	}

	m, err := r.members.Get(ctx, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	if m == nil {
		return nil, apperrors.ErrForbidden
	}
	return m, nil
}

// RequireAdmin passes for the caller's own account and for organization
// members holding the elevated role.
func (r *Resolver) RequireAdmin(ctx context.Context, businessID, userID string) error {
	if businessID == userID {
		return nil
	}
	m, err := r.ResolveMembership(ctx, businessID, userID)
	if err != nil {
		return err
	}
	if !r.allowed(m.Role, ActionAdmin) {
		return apperrors.ErrForbidden
	}
	return nil
}

// Authorize resolves the caller and, when acting for someone else's
// business, their membership in it. An empty businessID means the caller's
// personal account. A scope already cached on ctx for the same business is
// reused.
func (r *Resolver) Authorize(ctx context.Context, businessID string) (*Scope, error) {
	id, err := r.ResolveIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if businessID == "" {
		businessID = id.UserID
	}

	if s, ok := ScopeFromContext(ctx); ok && s.BusinessID == businessID && s.Identity.UserID == id.UserID {
		return s, nil
	}

	scope := &Scope{Identity: id, BusinessID: businessID}
	if businessID == id.UserID {
		scope.admin = true
		return scope, nil
	}

	m, err := r.ResolveMembership(ctx, businessID, id.UserID)
	if err != nil {
		return nil, err
	}
	scope.Membership = m
	scope.admin = r.allowed(m.Role, ActionAdmin)
	return scope, nil
}

// AuthorizeOwned is Authorize followed by an ownership check on a resource
// that belongs to ownerBusinessID. A mismatch is reported as ErrNotFound so
// resources of other tenants stay invisible.
func (r *Resolver) AuthorizeOwned(ctx context.Context, businessID, ownerBusinessID string) (*Scope, error) {
	scope, err := r.Authorize(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if ownerBusinessID != scope.BusinessID {
		return nil, apperrors.ErrNotFound
	}
	return scope, nil
}

// FormGetter loads a form by id, returning nil when it does not exist.
type FormGetter interface {
	GetByID(ctx context.Context, id string) (*models.Form, error)
}

// AuthorizeForm checks, in order: identity, that the form exists,
// membership in businessID, and that the form belongs to businessID.
// Missing and foreign forms both yield ErrNotFound.
func (r *Resolver) AuthorizeForm(ctx context.Context, forms FormGetter, formID, businessID string) (*Scope, *models.Form, error) {
	if _, err := r.ResolveIdentity(ctx); err != nil {
		return nil, nil, err
	}
	form, err := forms.GetByID(ctx, formID)
	if err != nil {
		return nil, nil, fmt.Errorf("load form: %w", err)
	}
	if form == nil {
		return nil, nil, apperrors.ErrNotFound
	}
	scope, err := r.AuthorizeOwned(ctx, businessID, form.BusinessID)
	if err != nil {
		return nil, nil, err
	}
	return scope, form, nil
}

func (r *Resolver) allowed(role, action string) bool {
	ok, err := r.enforcer.Enforce(role, "business", action)
	return err == nil && ok
}
