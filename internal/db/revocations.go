package db

import (
	"context"
	"time"
)

// InsertRevokedToken is idempotent: a second revoke of the same hash keeps the
// later expiry.
func (db *Postgres) InsertRevokedToken(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	query := `
		INSERT INTO revoked_tokens (token_hash, expires_at, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (token_hash) DO UPDATE
		SET expires_at = GREATEST(revoked_tokens.expires_at, EXCLUDED.expires_at)
	`
	_, err := db.Pool.Exec(ctx, query, tokenHash, expiresAt)
	return err
}

// IsTokenRevoked ignores rows past their expiry even if the sweeper has not
// removed them yet.
func (db *Postgres) IsTokenRevoked(ctx context.Context, tokenHash string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM revoked_tokens
			WHERE token_hash = $1 AND expires_at > NOW()
		)
	`
	var revoked bool
	if err := db.Pool.QueryRow(ctx, query, tokenHash).Scan(&revoked); err != nil {
		return false, err
	}
	return revoked, nil
}

func (db *Postgres) DeleteExpiredRevokedTokens(ctx context.Context) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
