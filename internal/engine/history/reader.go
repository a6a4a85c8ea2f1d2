package history

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strconv"

	"formsmith/internal/engine/permissions"
	apperrors "formsmith/internal/pkg/errors"
	"formsmith/internal/platform/models"
	"formsmith/internal/platform/repositories"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type UserLookup interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)
}

// UserProfile is the public part of the acting user's profile.
type UserProfile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	ImageURL string `json:"image_url,omitempty"`
}

// EnrichedEntry is an entry with the acting user's profile; User is nil
// when no profile is known.
type EnrichedEntry struct {
	*Entry
	User *UserProfile `json:"user"`
}

type Page struct {
	Entries    []*EnrichedEntry `json:"entries"`
	NextCursor string           `json:"next_cursor,omitempty"`
	HasMore    bool             `json:"has_more"`
}

type Reader struct {
	db       *sql.DB
	resolver *permissions.Resolver
	users    UserLookup
}

func NewReader(db *sql.DB, resolver *permissions.Resolver, users UserLookup) *Reader {
	return &Reader{db: db, resolver: resolver, users: users}
}

// List returns one page of formID's history, newest first. Cursors come
// from a previous page's NextCursor; an empty cursor starts at the newest
// entry.
func (r *Reader) List(ctx context.Context, formID, businessID, cursor string, limit int) (*Page, error) {
	if _, _, err := r.resolver.AuthorizeForm(ctx, repositories.NewFormRepository(r.db), formID, businessID); err != nil {
		return nil, err
	}

	before, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	entries, err := store{db: r.db}.page(ctx, formID, before, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	page := &Page{Entries: make([]*EnrichedEntry, 0, limit)}
	if len(entries) > limit {
		entries = entries[:limit]
		page.HasMore = true
		page.NextCursor = EncodeCursor(entries[len(entries)-1].Seq)
	}

	profiles, err := r.profiles(ctx, entries)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		page.Entries = append(page.Entries, &EnrichedEntry{Entry: e, User: profiles[e.UserID]})
	}
	return page, nil
}

func (r *Reader) profiles(ctx context.Context, entries []*Entry) (map[string]*UserProfile, error) {
	seen := map[string]bool{}
	var ids []string
	for _, e := range entries {
		if !seen[e.UserID] {
			seen[e.UserID] = true
			ids = append(ids, e.UserID)
		}
	}

	users, err := r.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load user profiles: %w", err)
	}

	out := make(map[string]*UserProfile, len(users))
	for id, u := range users {
		out[id] = &UserProfile{ID: u.ID, Name: u.FullName(), Email: u.Email, ImageURL: u.ImageURL}
	}
	return out, nil
}

// Recent returns the n newest entries of a form without authorization. The
// assistant uses it to build model context after it has authorized the call.
func Recent(ctx context.Context, db *sql.DB, formID string, n int) ([]*Entry, error) {
	return store{db: db}.page(ctx, formID, 0, n)
}

func EncodeCursor(seq int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(seq, 10)))
}

// DecodeCursor returns 0 for an empty cursor.
func DecodeCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, apperrors.NewValidationError("invalid cursor", map[string]string{"cursor": "malformed"})
	}
	seq, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || seq <= 0 {
		return 0, apperrors.NewValidationError("invalid cursor", map[string]string{"cursor": "malformed"})
	}
	return seq, nil
}
