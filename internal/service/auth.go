package service

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/socialhub/backend/internal/config"
	"github.com/socialhub/backend/internal/model"
	"github.com/socialhub/backend/internal/revocation"
)

// Token transports accepted by AUTH_TOKEN_TRANSPORT.
const (
	TransportBearer = "bearer"
	TransportCookie = "cookie"
	TransportBoth   = "both"
)

const minBcryptCost = 10

type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   int
}

// Session is the result of a successful register or login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *model.UserView
}

type AuthService struct {
	credentials *CredentialStore
	issuer      *TokenIssuer
	authorizer  *Authorizer
	notifier    Notifier
	pending     sync.WaitGroup
	transport   string
	expose      bool
	cookieCfg   CookieConfig
	logger      *zap.Logger
}

func NewAuthService(repo UserRepository, registry revocation.Registry, notifier Notifier, cfg config.AuthConfig, logger *zap.Logger) (*AuthService, error) {
	lifetime, err := time.ParseDuration(cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JWT_EXPIRES_IN", ErrMisconfigured)
	}

	cost, err := strconv.Atoi(strings.TrimSpace(cfg.BcryptCost))
	if err != nil || cost < minBcryptCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: BCRYPT_COST must be between %d and %d", ErrMisconfigured, minBcryptCost, bcrypt.MaxCost)
	}

	storageTimeout, err := time.ParseDuration(cfg.StorageTimeout)
	if err != nil || storageTimeout <= 0 {
		return nil, fmt.Errorf("%w: invalid STORAGE_TIMEOUT", ErrMisconfigured)
	}

	resetTTL, err := time.ParseDuration(cfg.ResetTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid PASSWORD_RESET_TTL", ErrMisconfigured)
	}

	verifyTTL, err := time.ParseDuration(cfg.VerifyTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid EMAIL_VERIFY_TTL", ErrMisconfigured)
	}

	transport := strings.ToLower(strings.TrimSpace(cfg.TokenTransport))
	switch transport {
	case "":
		transport = TransportBoth
	case TransportBearer, TransportCookie, TransportBoth:
	default:
		return nil, fmt.Errorf("%w: AUTH_TOKEN_TRANSPORT must be bearer, cookie or both", ErrMisconfigured)
	}

	cookieSecure, err := parseBool(cfg.CookieSecure, true)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid AUTH_COOKIE_SECURE", ErrMisconfigured)
	}

	cookieSameSite, err := parseSameSite(cfg.CookieSameSite)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid AUTH_COOKIE_SAMESITE", ErrMisconfigured)
	}

	if cookieSameSite == http.SameSiteNoneMode && !cookieSecure {
		return nil, fmt.Errorf("%w: SameSite=None requires Secure cookie", ErrMisconfigured)
	}

	expose, err := parseBool(cfg.ExposeTokens, false)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid AUTH_EXPOSE_TOKENS", ErrMisconfigured)
	}

	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		cookieName = "token"
	}
	cookiePath := cfg.CookiePath
	if strings.TrimSpace(cookiePath) == "" {
		cookiePath = "/"
	}

	issuer, err := NewTokenIssuer(cfg.JWTSecret, lifetime)
	if err != nil {
		return nil, err
	}

	credentials, err := NewCredentialStore(repo, CredentialOptions{
		BcryptCost:     cost,
		StorageTimeout: storageTimeout,
		ResetTokenTTL:  resetTTL,
		VerifyTokenTTL: verifyTTL,
	})
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}

	return &AuthService{
		credentials: credentials,
		issuer:      issuer,
		authorizer:  NewAuthorizer(issuer, registry, storageTimeout),
		notifier:    notifier,
		transport:   transport,
		expose:      expose,
		cookieCfg: CookieConfig{
			Name:     cookieName,
			Path:     cookiePath,
			Domain:   cfg.CookieDomain,
			Secure:   cookieSecure,
			SameSite: cookieSameSite,
			MaxAge:   int(lifetime.Seconds()),
		},
		logger: logger,
	}, nil
}

func (s *AuthService) CookieConfig() CookieConfig {
	return s.cookieCfg
}

func (s *AuthService) Transport() string {
	return s.transport
}

// ExposeTokens reports whether reset and verification tokens may be returned
// to the caller.
func (s *AuthService) ExposeTokens() bool {
	return s.expose
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	user, err := s.credentials.Register(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return s.newSession(user)
}

func (s *AuthService) Login(ctx context.Context, identifier, password string) (*Session, error) {
	user, err := s.credentials.VerifyCredentials(ctx, identifier, password)
	if err != nil {
		return nil, err
	}
	return s.newSession(user)
}

// Logout revokes token until its own expiry. Expired and already revoked
// tokens succeed without error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.authorizer.Revoke(ctx, token)
}

func (s *AuthService) Authorize(ctx context.Context, token string) (*model.AuthUser, error) {
	return s.authorizer.Authorize(ctx, token)
}

func (s *AuthService) Me(ctx context.Context, userID string) (*model.UserView, error) {
	return s.credentials.GetUser(ctx, userID)
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, upd model.ProfileUpdate) (*model.UserView, error) {
	return s.credentials.UpdateProfile(ctx, userID, upd)
}

func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	return s.credentials.ChangePassword(ctx, userID, currentPassword, newPassword)
}

// RequestPasswordReset hands a reset token to the notifier in the background.
// The returned token is empty for unknown emails.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	n, err := s.credentials.RequestPasswordReset(ctx, email)
	if err != nil {
		return "", err
	}
	if n == nil {
		return "", nil
	}
	s.dispatch(ctx, n)
	return n.Token, nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.credentials.ResetPassword(ctx, token, newPassword)
}

func (s *AuthService) RequestEmailVerification(ctx context.Context, userID string) (string, error) {
	n, err := s.credentials.RequestEmailVerification(ctx, userID)
	if err != nil {
		return "", err
	}
	s.dispatch(ctx, n)
	return n.Token, nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	return s.credentials.VerifyEmail(ctx, token)
}

// dispatch delivers n off the request path so the response takes the same
// time whether or not a notification was sent.
func (s *AuthService) dispatch(ctx context.Context, n *model.Notification) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		deliver(context.WithoutCancel(ctx), s.notifier, n, s.logger)
	}()
}

// Wait blocks until in-flight notifications finish.
func (s *AuthService) Wait() {
	s.pending.Wait()
}

func (s *AuthService) newSession(user *model.UserView) (*Session, error) {
	issued, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{Token: issued.Token, ExpiresAt: issued.ExpiresAt, User: user}, nil
}

func parseBool(value string, fallback bool) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, err
	}
	return parsed, nil
}

func parseSameSite(value string) (http.SameSite, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return http.SameSiteLaxMode, nil
	}
	switch value {
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, ErrInvalidInput
	}
}
