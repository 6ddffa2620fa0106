package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/socialhub/backend/internal/model"
	"github.com/socialhub/backend/internal/revocation"
)

// Authorizer admits a request only when its token verifies and is absent from
// the revocation registry. A registry failure rejects the request.
type Authorizer struct {
	issuer   *TokenIssuer
	registry revocation.Registry
	timeout  time.Duration
}

func NewAuthorizer(issuer *TokenIssuer, registry revocation.Registry, timeout time.Duration) *Authorizer {
	return &Authorizer{issuer: issuer, registry: registry, timeout: timeout}
}

func (a *Authorizer) Authorize(ctx context.Context, token string) (*model.AuthUser, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthorized
	}

	claims, err := a.issuer.Verify(token)
	if err != nil {
		return nil, err
	}

	revoked, err := withStorage(ctx, a.timeout, func(ctx context.Context) (bool, error) {
		return a.registry.IsRevoked(ctx, token)
	})
	if err != nil {
		return nil, &unavailableError{op: "check revocation", err: err}
	}
	if revoked {
		return nil, ErrRevoked
	}

	return &model.AuthUser{
		ID:        claims.Subject,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Revoke records token as revoked until its own expiry. Expired tokens are
// accepted and ignored; tokens that fail signature checks are rejected.
func (a *Authorizer) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return invalid("token", "token required")
	}

	claims, err := a.issuer.Verify(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil
		}
		return err
	}

	_, err = withStorage(ctx, a.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.registry.Revoke(ctx, token, claims.ExpiresAt.Time)
	})
	if err != nil {
		return &unavailableError{op: "revoke token", err: err}
	}
	return nil
}

// unavailableError marks any registry failure as ErrServiceUnavailable while
// keeping the cause reachable for logging.
type unavailableError struct {
	op  string
	err error
}

func (e *unavailableError) Error() string {
	return ErrServiceUnavailable.Error() + ": " + e.op + ": " + e.err.Error()
}

func (e *unavailableError) Is(target error) bool {
	return target == ErrServiceUnavailable
}

func (e *unavailableError) Unwrap() error {
	return e.err
}
