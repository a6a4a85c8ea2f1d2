package forms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"formsmith/internal/platform/models"
	"formsmith/internal/platform/repositories"
)

const fieldCacheTTL = 5 * time.Minute

type cachedFields struct {
	version  int
	fields   []*models.Field
	cachedAt time.Time
}

// FieldCache keeps the field lists of hot public forms. Entries are keyed
// by form version, which every field mutation bumps, so a hit is never
// stale. Cached slices are shared and must not be modified.
type FieldCache struct {
	store sync.Map // map[form_id]*cachedFields
	ttl   time.Duration
}

func NewFieldCache(ttl time.Duration) *FieldCache {
	return &FieldCache{ttl: ttl}
}

func (c *FieldCache) Get(formID string, version int) ([]*models.Field, bool) {
	val, ok := c.store.Load(formID)
	if !ok {
		return nil, false
	}

	entry := val.(*cachedFields)
	if entry.version != version || time.Since(entry.cachedAt) > c.ttl {
		c.store.Delete(formID)
		return nil, false
	}
	return entry.fields, true
}

func (c *FieldCache) Set(formID string, version int, fields []*models.Field) {
	c.store.Store(formID, &cachedFields{version: version, fields: fields, cachedAt: time.Now()})
}

func (c *FieldCache) Invalidate(formID string) {
	c.store.Delete(formID)
}

// publicFields returns form's fields through the cache.
func (s *Service) publicFields(ctx context.Context, form *models.Form) ([]*models.Field, error) {
	if fields, ok := s.fields.Get(form.ID, form.Version); ok {
		return fields, nil
	}
	fields, err := repositories.NewFieldRepository(s.db).ListByForm(ctx, form.ID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	s.fields.Set(form.ID, form.Version, fields)
	return fields, nil
}
