package gateway

import (
	"context"

	"github.com/JawadKotaichh/aubus/internal/auth"
	"github.com/JawadKotaichh/aubus/internal/storage"
)

// SessionResolver maps a bearer token to the identity it was issued to. The
// gateway checks the in-memory cache first and falls back to the database so
// a restarted process still honors tokens issued before the restart.
type SessionResolver struct {
	Memory *auth.InMemoryStore
	DB     *storage.IdentityStore
}

func NewSessionResolver(memory *auth.InMemoryStore, db *storage.IdentityStore) *SessionResolver {
	return &SessionResolver{Memory: memory, DB: db}
}

func (r *SessionResolver) Resolve(ctx context.Context, token string) (auth.Identity, bool) {
	if token == "" {
		return auth.Identity{}, false
	}
	if ident, ok := r.Memory.Lookup(token); ok {
		return ident, true
	}
	if r.DB == nil {
		return auth.Identity{}, false
	}
	ident, ok, err := r.DB.Lookup(ctx, token)
	if err != nil || !ok {
		return auth.Identity{}, false
	}
	r.Memory.Seed(ident)
	return ident, true
}
