package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"formsmith/internal/platform/database"
	"formsmith/internal/platform/models"
)

func now() int64 {
	return time.Now().UnixMilli()
}

type OrganizationRepository struct {
	db database.DBTX
}

func NewOrganizationRepository(db database.DBTX) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Upsert inserts the organization or refreshes its profile fields.
func (r *OrganizationRepository) Upsert(ctx context.Context, org *models.Organization) error {
	ts := now()
	if org.CreatedAt == 0 {
		org.CreatedAt = ts
	}
	org.UpdatedAt = ts

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO organizations (clerk_id, name, slug, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (clerk_id) DO UPDATE SET
			name = excluded.name, slug = excluded.slug, image_url = excluded.image_url, updated_at = excluded.updated_at
	`, org.ID, org.Name, org.Slug, org.ImageURL, org.CreatedAt, org.UpdatedAt)
	return err
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	org := &models.Organization{}
	err := r.db.QueryRowContext(ctx, `
		SELECT clerk_id, name, slug, image_url, created_at, updated_at
		FROM organizations WHERE clerk_id = ?
	`, id).Scan(&org.ID, &org.Name, &org.Slug, &org.ImageURL, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return org, nil
}

// Delete removes the organization; memberships cascade.
func (r *OrganizationRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM organizations WHERE clerk_id = ?`, id)
	return err
}

type MembershipRepository struct {
	db database.DBTX
}

func NewMembershipRepository(db database.DBTX) *MembershipRepository {
	return &MembershipRepository{db: db}
}

func (r *MembershipRepository) Upsert(ctx context.Context, m *models.Membership) error {
	ts := now()
	if m.CreatedAt == 0 {
		m.CreatedAt = ts
	}
	m.UpdatedAt = ts

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO organization_members (organization_id, user_id, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (organization_id, user_id) DO UPDATE SET role = excluded.role, updated_at = excluded.updated_at
	`, m.OrganizationID, m.UserID, m.Role, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r *MembershipRepository) Get(ctx context.Context, orgID, userID string) (*models.Membership, error) {
	m := &models.Membership{}
	err := r.db.QueryRowContext(ctx, `
		SELECT organization_id, user_id, role, created_at, updated_at
		FROM organization_members WHERE organization_id = ? AND user_id = ?
	`, orgID, userID).Scan(&m.OrganizationID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func (r *MembershipRepository) Delete(ctx context.Context, orgID, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM organization_members WHERE organization_id = ? AND user_id = ?`, orgID, userID)
	return err
}

func (r *MembershipRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM organization_members WHERE user_id = ?`, userID)
	return err
}

type UserRepository struct {
	db database.DBTX
}

func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	ts := now()
	if user.CreatedAt == 0 {
		user.CreatedAt = ts
	}
	user.UpdatedAt = ts

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (clerk_id, email, first_name, last_name, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (clerk_id) DO UPDATE SET
			email = excluded.email, first_name = excluded.first_name, last_name = excluded.last_name,
			image_url = excluded.image_url, updated_at = excluded.updated_at
	`, user.ID, user.Email, user.FirstName, user.LastName, user.ImageURL, user.CreatedAt, user.UpdatedAt)
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, `
		SELECT clerk_id, email, first_name, last_name, image_url, created_at, updated_at
		FROM users WHERE clerk_id = ?
	`, id).Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.ImageURL, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// GetByIDs returns the profiles that exist, keyed by id. Missing ids are
// simply absent from the map.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	users := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT clerk_id, email, first_name, last_name, image_url, created_at, updated_at
		FROM users WHERE clerk_id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.ImageURL, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users[u.ID] = u
	}
	return users, rows.Err()
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE clerk_id = ?`, id)
	return err
}
