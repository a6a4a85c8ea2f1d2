package permissions

import "context"

type ctxKey int

const (
	identityKey ctxKey = iota
	scopeKey
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Email  string
}

// WithIdentity attaches the authenticated caller to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, false
	}
	return id, true
}

// WithScope caches an authorized scope for the rest of the request.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey, s)
}

func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey).(*Scope)
	return s, ok && s != nil
}
