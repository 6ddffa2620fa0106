// Package revocation records session tokens that were invalidated before
// their natural expiry. Entries are keyed by the SHA-256 of the token and
// disappear once the token's own expiry has passed.
package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type Registry interface {
	// Revoke is a no-op for tokens whose expiry has already passed.
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// HashToken returns the hex SHA-256 of a raw token, used as the storage key.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
