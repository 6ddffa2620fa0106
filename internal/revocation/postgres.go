package revocation

import (
	"context"
	"time"
)

type revokedTokenStore interface {
	InsertRevokedToken(ctx context.Context, tokenHash string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, tokenHash string) (bool, error)
	DeleteExpiredRevokedTokens(ctx context.Context) (int64, error)
}

// PostgresRegistry keeps revocations in the revoked_tokens table. Postgres has
// no per-row TTL, so reads filter on expires_at and a Sweeper deletes dead rows.
type PostgresRegistry struct {
	store revokedTokenStore
	now   func() time.Time
}

func NewPostgresRegistry(store revokedTokenStore) *PostgresRegistry {
	return &PostgresRegistry{store: store, now: time.Now}
}

func (r *PostgresRegistry) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	if !expiresAt.After(r.now()) {
		return nil
	}
	return r.store.InsertRevokedToken(ctx, HashToken(token), expiresAt)
}

func (r *PostgresRegistry) IsRevoked(ctx context.Context, token string) (bool, error) {
	return r.store.IsTokenRevoked(ctx, HashToken(token))
}

func (r *PostgresRegistry) Sweep(ctx context.Context) (int64, error) {
	return r.store.DeleteExpiredRevokedTokens(ctx)
}
