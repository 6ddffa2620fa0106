package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/socialhub/backend/internal/db"
	"github.com/socialhub/backend/internal/model"
	"github.com/socialhub/backend/internal/revocation"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 30
	minPasswordLength = 6
	// bcrypt ignores input past 72 bytes.
	maxPasswordLength = 72
	maxBioLength      = 500
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// UserRepository is the persistence port of the credential store.
type UserRepository interface {
	CreateUser(ctx context.Context, u model.NewUser) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	FindIdentityConflicts(ctx context.Context, email, username string) (bool, bool, error)
	TouchLastLogin(ctx context.Context, id string) (time.Time, error)
	UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) (bool, error)
	SetPasswordResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	ConsumePasswordResetToken(ctx context.Context, tokenHash, passwordHash string) (bool, error)
	SetEmailVerifyToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) (bool, error)
	ConsumeEmailVerifyToken(ctx context.Context, tokenHash string) (bool, error)
}

type CredentialOptions struct {
	BcryptCost     int
	StorageTimeout time.Duration
	ResetTokenTTL  time.Duration
	VerifyTokenTTL time.Duration
}

type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	Bio             string
	ProfileImageURL string
}

// CredentialStore owns user identities and password verification.
type CredentialStore struct {
	repo      UserRepository
	opts      CredentialOptions
	dummyHash []byte
	now       func() time.Time
}

func NewCredentialStore(repo UserRepository, opts CredentialOptions) (*CredentialStore, error) {
	if opts.BcryptCost < bcrypt.MinCost || opts.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: bcrypt cost %d out of range", ErrMisconfigured, opts.BcryptCost)
	}
	if opts.StorageTimeout <= 0 || opts.ResetTokenTTL <= 0 || opts.VerifyTokenTTL <= 0 {
		return nil, fmt.Errorf("%w: durations must be positive", ErrMisconfigured)
	}

	// Compared against on unknown identifiers so a miss costs the same as a
	// wrong password.
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), opts.BcryptCost)
	if err != nil {
		return nil, err
	}

	return &CredentialStore{repo: repo, opts: opts, dummyHash: dummy, now: time.Now}, nil
}

func (s *CredentialStore) Register(ctx context.Context, in RegisterInput) (*model.UserView, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)
	in.Bio = strings.TrimSpace(in.Bio)
	in.ProfileImageURL = strings.TrimSpace(in.ProfileImageURL)

	if err := validateRegistration(in); err != nil {
		return nil, err
	}

	type conflicts struct{ email, username bool }
	found, err := withStorage(ctx, s.opts.StorageTimeout, func(ctx context.Context) (conflicts, error) {
		e, u, err := s.repo.FindIdentityConflicts(ctx, in.Email, in.Username)
		return conflicts{email: e, username: u}, err
	})
	if err != nil {
		return nil, storageError("check identity conflicts", err)
	}
	if found.email {
		return nil, ErrEmailTaken
	}
	if found.username {
		return nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.opts.BcryptCost)
	if err != nil {
		return nil, err
	}

	user, err := withStorage(ctx, s.opts.StorageTimeout, func(ctx context.Context) (*model.User, error) {
		return s.repo.CreateUser(ctx, model.NewUser{
			ID:              uuid.NewString(),
			Username:        in.Username,
			Email:           in.Email,
			PasswordHash:    string(hash),
			Bio:             in.Bio,
			ProfileImageURL: in.ProfileImageURL,
			Role:            model.RoleUser,
		})
	})
	if err != nil {
		// Lost a race with a concurrent registration.
		if constraint, ok := db.UniqueViolation(err); ok {
			if strings.Contains(constraint, "email") {
				return nil, ErrEmailTaken
			}
			return nil, ErrUsernameTaken
		}
		return nil, storageError("create user", err)
	}

	return user.View(), nil
}

// VerifyCredentials accepts an email (anything containing '@') or a username.
// Unknown identifiers, inactive accounts and wrong passwords all return
// ErrUnauthorized.
func (s *CredentialStore) VerifyCredentials(ctx context.Context, identifier, password string) (*model.UserView, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrUnauthorized
	}

	user, err := withStorage(ctx, s.opts.StorageTimeout, func(ctx context.Context) (*model.User, error) {
		if strings.Contains(identifier, "@") {
			return s.repo.GetUserByEmail(ctx, normalizeEmail(identifier))
		}
		return s.repo.GetUserByUsername(ctx, identifier)
	})
	if err != nil {
		if db.IsNoRows(err) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, ErrUnauthorized
		}
		return nil, storageError("lookup user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrUnauthorized
	}
	if !user.IsActive {
		return nil, ErrUnauthorized
	}

	at, err := withStorage(ctx, s.opts.StorageTimeout, func(ctx context.Context) (time.Time, error) {
		return s.repo.TouchLastLogin(ctx, user.ID)
	})
	if err != nil {
		return nil, storageError("update last login", err)
	}
	user.LastLoginAt = &at

	return user.View(), nil
}

func (s *CredentialStore) GetUser(ctx context.Context, userID string) (*model.UserView, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.View(), nil
}

func (s *CredentialStore) UpdateProfile(ctx context.Context, userID string, upd model.ProfileUpdate) (*model.UserView, error) {
	if upd.Username != nil {
		username := strings.TrimSpace(*upd.Username)
		if err := validateUsername(username); err != nil {
			return nil, err
		}
		upd.Username = &username
	}
	if upd.Bio != nil {
		bio := strings.TrimSpace(*upd.Bio)
		if len(bio) > maxBioLength {
			return nil, invalid("bio", fmt.Sprintf("must be at most %d characters", maxBioLength))
		}
		upd.Bio = &bio
	}
	if upd.ProfileImageURL != nil {
		imageURL := strings.TrimSpace(*upd.ProfileImageURL)
		if err := validateImageURL(imageURL); err != nil {
			return nil, err
		}
		upd.ProfileImageURL = &imageURL
	}

	if upd.Empty() {
		return s.GetUser(ctx, userID)
	}

	user, err := withStorage(ctx, s.opts.StorageTimeout, func(ctx context.Context) (*model.User, error) {
		return s.repo.UpdateProfile(ctx, userID, upd)
	})
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		if _, ok := db.UniqueViolation(err); ok {
			return nil, ErrUsernameTaken
		}
		return nil, storageError("update profile", err)
	}
	return user.View(), nil
}

func (s *CredentialStore) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrUnauthorized
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.opts.BcryptCost)
	if err != nil {
		return err
	}

	updated, err := withStorage(ctx, s.opts.StorageTimeout, func(ctx context.Context) (bool, error) {
		return s.repo.UpdatePasswordHash(ctx, userID, string(hash))
	})
	if err != nil {
		return storageError("update password", err)
	}
	if !updated {
		return ErrNotFound
	}
	return nil
}

// RequestPasswordReset issues a one-time reset token for the account using
// email. It returns nil when no account matches; callers must not reveal
// which case occurred.
func (s *CredentialStore) RequestPasswordReset(ctx context.Context, email string) (*model.Notification, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, invalid("email", "must be a valid email address")
	}

	user, err := withStorage(ctx, s.opts.StorageTimeout, func(ctx context.Context) (*model.User, error) {
		return s.repo.GetUserByEmail(ctx, email)
	})
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, storageError("lookup user", err)
	}

	token, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}
	expiresAt := s.now().Add(s.opts.ResetTokenTTL)

	_, err = withStorage(ctx, s.opts.StorageTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.repo.SetPasswordResetToken(ctx, user.ID, revocation.HashToken(token), expiresAt)
	})
	if err != nil {
		return nil, storageError("store reset token", err)
	}
	return newNotification(model.NotificationPasswordReset, user, token, expiresAt), nil
}

func (s *CredentialStore) ResetPassword(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(token) == "" {
		return invalid("token", "is required")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.opts.BcryptCost)
	if err != nil {
		return err
	}

	ok, err := withStorage(ctx, s.opts.StorageTimeout, func(ctx context.Context) (bool, error) {
		return s.repo.ConsumePasswordResetToken(ctx, revocation.HashToken(token), string(hash))
	})
	if err != nil {
		return storageError("reset password", err)
	}
	if !ok {
		return invalid("token", "invalid or expired token")
	}
	return nil
}

func (s *CredentialStore) RequestEmailVerification(ctx context.Context, userID string) (*model.Notification, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	token, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}
	expiresAt := s.now().Add(s.opts.VerifyTokenTTL)

	ok, err := withStorage(ctx, s.opts.StorageTimeout, func(ctx context.Context) (bool, error) {
		return s.repo.SetEmailVerifyToken(ctx, userID, revocation.HashToken(token), expiresAt)
	})
	if err != nil {
		return nil, storageError("store verification token", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return newNotification(model.NotificationEmailVerification, user, token, expiresAt), nil
}

func (s *CredentialStore) VerifyEmail(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return invalid("token", "is required")
	}

	ok, err := withStorage(ctx, s.opts.StorageTimeout, func(ctx context.Context) (bool, error) {
		return s.repo.ConsumeEmailVerifyToken(ctx, revocation.HashToken(token))
	})
	if err != nil {
		return storageError("verify email", err)
	}
	if !ok {
		return invalid("token", "invalid or expired token")
	}
	return nil
}

func (s *CredentialStore) loadUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := withStorage(ctx, s.opts.StorageTimeout, func(ctx context.Context) (*model.User, error) {
		return s.repo.GetUserByID(ctx, userID)
	})
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, storageError("load user", err)
	}
	return user, nil
}

func newNotification(kind string, user *model.User, token string, expiresAt time.Time) *model.Notification {
	return &model.Notification{
		Kind:      kind,
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Token:     token,
		ExpiresAt: expiresAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegistration(in RegisterInput) error {
	if in.Username == "" {
		return invalid("username", "is required")
	}
	if in.Email == "" {
		return invalid("email", "is required")
	}
	if in.Password == "" {
		return invalid("password", "is required")
	}
	if !validEmail(in.Email) {
		return invalid("email", "must be a valid email address")
	}
	if err := validateUsername(in.Username); err != nil {
		return err
	}
	if err := validatePassword(in.Password); err != nil {
		return err
	}
	if len(in.Bio) > maxBioLength {
		return invalid("bio", fmt.Sprintf("must be at most %d characters", maxBioLength))
	}
	return validateImageURL(in.ProfileImageURL)
}

// validateUsername rejects '@' so login can tell emails from usernames.
func validateUsername(username string) error {
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return invalid("username", fmt.Sprintf("must be %d to %d characters", minUsernameLength, maxUsernameLength))
	}
	if strings.ContainsAny(username, "@ \t\r\n") {
		return invalid("username", "must not contain '@' or whitespace")
	}
	if hasControl(username) {
		return invalid("username", "must not contain control characters")
	}
	return nil
}

// validEmail is a shape check for callers that bypass request binding.
func validEmail(email string) bool {
	return emailPattern.MatchString(email) && !hasControl(email)
}

func hasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return invalid("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordLength {
		return invalid("password", fmt.Sprintf("must be at most %d bytes", maxPasswordLength))
	}
	return nil
}

func validateImageURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("profileImageUrl", "must be an http(s) URL")
	}
	return nil
}

func newOpaqueToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
