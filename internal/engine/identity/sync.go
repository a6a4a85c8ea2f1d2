// Package identity mirrors users, organizations and memberships from the
// identity provider's webhook events.
package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"formsmith/internal/platform/database"
	"formsmith/internal/platform/models"
	"formsmith/internal/platform/repositories"
)

const (
	UserCreated       = "user.created"
	UserUpdated       = "user.updated"
	UserDeleted       = "user.deleted"
	OrgCreated        = "organization.created"
	OrgUpdated        = "organization.updated"
	OrgDeleted        = "organization.deleted"
	MembershipCreated = "organizationMembership.created"
	MembershipUpdated = "organizationMembership.updated"
	MembershipDeleted = "organizationMembership.deleted"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type emailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

type userData struct {
	ID                    string         `json:"id"`
	FirstName             *string        `json:"first_name"`
	LastName              *string        `json:"last_name"`
	ImageURL              string         `json:"image_url"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	EmailAddresses        []emailAddress `json:"email_addresses"`
}

func (u userData) primaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

type orgData struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ImageURL string `json:"image_url"`
}

type membershipData struct {
	Role           string  `json:"role"`
	Organization   orgData `json:"organization"`
	PublicUserData struct {
		UserID string `json:"user_id"`
	} `json:"public_user_data"`
}

type Syncer struct {
	db *sql.DB
}

func NewSyncer(db *sql.DB) *Syncer {
	return &Syncer{db: db}
}

// Apply upserts or deletes the mirror records an event describes. Unknown
// event types are ignored.
func (s *Syncer) Apply(ctx context.Context, e Event) error {
	switch e.Type {
	case UserCreated, UserUpdated:
		var u userData
		if err := decode(e, &u); err != nil {
			return err
		}
		return repositories.NewUserRepository(s.db).Upsert(ctx, &models.User{
			ID:        u.ID,
			Email:     u.primaryEmail(),
			FirstName: deref(u.FirstName),
			LastName:  deref(u.LastName),
			ImageURL:  u.ImageURL,
		})

	case UserDeleted:
		var u userData
		if err := decode(e, &u); err != nil {
			return err
		}
		return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
			if err := repositories.NewMembershipRepository(tx).DeleteByUser(ctx, u.ID); err != nil {
				return err
			}
			return repositories.NewUserRepository(tx).Delete(ctx, u.ID)
		})

	case OrgCreated, OrgUpdated:
		var o orgData
		if err := decode(e, &o); err != nil {
			return err
		}
		return repositories.NewOrganizationRepository(s.db).Upsert(ctx, o.model())

	case OrgDeleted:
		var o orgData
		if err := decode(e, &o); err != nil {
			return err
		}
		return repositories.NewOrganizationRepository(s.db).Delete(ctx, o.ID)

	case MembershipCreated, MembershipUpdated:
		var m membershipData
		if err := decode(e, &m); err != nil {
			return err
		}
		if m.Organization.ID == "" || m.PublicUserData.UserID == "" {
			return fmt.Errorf("%s: missing organization or user id", e.Type)
		}
		return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
			orgs := repositories.NewOrganizationRepository(tx)
			org, err := orgs.GetByID(ctx, m.Organization.ID)
			if err != nil {
				return err
			}
			// membership events can arrive before the organization event
			if org == nil {
				if err := orgs.Upsert(ctx, m.Organization.model()); err != nil {
					return err
				}
			}
			return repositories.NewMembershipRepository(tx).Upsert(ctx, &models.Membership{
				OrganizationID: m.Organization.ID,
				UserID:         m.PublicUserData.UserID,
				Role:           m.Role,
			})
		})

	case MembershipDeleted:
		var m membershipData
		if err := decode(e, &m); err != nil {
			return err
		}
		return repositories.NewMembershipRepository(s.db).Delete(ctx, m.Organization.ID, m.PublicUserData.UserID)

	default:
		log.Debug().Str("type", e.Type).Msg("ignoring identity event")
		return nil
	}
}

func (o orgData) model() *models.Organization {
	return &models.Organization{ID: o.ID, Name: o.Name, Slug: o.Slug, ImageURL: o.ImageURL}
}

func decode(e Event, v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
