package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JawadKotaichh/aubus/internal/auth"
)

// IdentityStore persists auth.Identity rows so sessions survive a restart
// and admin tooling can enumerate issued tokens.
type IdentityStore struct {
	pool *pgxpool.Pool
}

func NewIdentityStore(pool *pgxpool.Pool) *IdentityStore {
	return &IdentityStore{pool: pool}
}

func (s *IdentityStore) Save(ctx context.Context, ident auth.Identity, ttl time.Duration) (auth.Identity, error) {
	var expires *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expires = &t
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO identities (id, role, token, expires_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role, token = EXCLUDED.token, expires_at = EXCLUDED.expires_at
`, ident.ID, ident.Role, ident.Token, expires)
	if err != nil {
		return auth.Identity{}, err
	}
	ident.ExpiresAt = expires
	return ident, nil
}

func (s *IdentityStore) Lookup(ctx context.Context, token string) (auth.Identity, bool, error) {
	var ident auth.Identity
	var expires *time.Time
	err := s.pool.QueryRow(ctx, `
SELECT id, role, token, expires_at FROM identities WHERE token = $1
`, token).Scan(&ident.ID, &ident.Role, &ident.Token, &expires)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.Identity{}, false, nil
		}
		return auth.Identity{}, false, err
	}
	if expires != nil && expires.Before(time.Now()) {
		return auth.Identity{}, false, nil
	}
	ident.ExpiresAt = expires
	return ident, true, nil
}

func (s *IdentityStore) All(ctx context.Context) ([]auth.Identity, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, role, token, expires_at FROM identities`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []auth.Identity
	for rows.Next() {
		var ident auth.Identity
		var expires *time.Time
		if err := rows.Scan(&ident.ID, &ident.Role, &ident.Token, &expires); err != nil {
			return nil, err
		}
		ident.ExpiresAt = expires
		out = append(out, ident)
	}
	return out, rows.Err()
}
