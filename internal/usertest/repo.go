// Package usertest provides an in-memory users table for tests that need a
// service.UserRepository. It reports unique violations the same way Postgres
// does so callers exercise the real conflict mapping.
package usertest

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/socialhub/backend/internal/model"
)

// Repo mimics the users table, including its unique constraints.
type Repo struct {
	mu    sync.Mutex
	users map[string]*model.User
	reset map[string]pendingToken
	email map[string]pendingToken

	// Now drives token expiry checks.
	Now func() time.Time
	// Err, when set, is returned from every call.
	Err error
	// SkipConflictCheck makes FindIdentityConflicts report none so the
	// unique-violation path of CreateUser is reachable.
	SkipConflictCheck bool
}

type pendingToken struct {
	userID    string
	expiresAt time.Time
}

func NewRepo() *Repo {
	return &Repo{
		users: make(map[string]*model.User),
		reset: make(map[string]pendingToken),
		email: make(map[string]pendingToken),
		Now:   time.Now,
	}
}

func (f *Repo) CreateUser(ctx context.Context, u model.NewUser) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return nil, &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
		}
		if existing.Username == u.Username {
			return nil, &pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"}
		}
	}
	now := f.Now()
	user := &model.User{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		PasswordHash:    u.PasswordHash,
		Bio:             u.Bio,
		ProfileImageURL: u.ProfileImageURL,
		Role:            u.Role,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	f.users[u.ID] = user
	copied := *user
	return &copied, nil
}

func (f *Repo) find(match func(*model.User) bool) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	for _, u := range f.users {
		if match(u) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *Repo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.ID == id })
}

func (f *Repo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Email == email })
}

func (f *Repo) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Username == username })
}

func (f *Repo) FindIdentityConflicts(ctx context.Context, email, username string) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, false, f.Err
	}
	if f.SkipConflictCheck {
		return false, false, nil
	}
	var emailTaken, usernameTaken bool
	for _, u := range f.users {
		emailTaken = emailTaken || u.Email == email
		usernameTaken = usernameTaken || u.Username == username
	}
	return emailTaken, usernameTaken, nil
}

func (f *Repo) TouchLastLogin(ctx context.Context, id string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return time.Time{}, f.Err
	}
	u, ok := f.users[id]
	if !ok {
		return time.Time{}, pgx.ErrNoRows
	}
	now := f.Now()
	u.LastLoginAt = &now
	return now, nil
}

func (f *Repo) UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if upd.Username != nil {
		for _, other := range f.users {
			if other.ID != id && other.Username == *upd.Username {
				return nil, &pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"}
			}
		}
		u.Username = *upd.Username
	}
	if upd.Bio != nil {
		u.Bio = *upd.Bio
	}
	if upd.ProfileImageURL != nil {
		u.ProfileImageURL = *upd.ProfileImageURL
	}
	u.UpdatedAt = f.Now()
	copied := *u
	return &copied, nil
}

func (f *Repo) UpdatePasswordHash(ctx context.Context, id, passwordHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	u, ok := f.users[id]
	if !ok {
		return false, nil
	}
	u.PasswordHash = passwordHash
	return true, nil
}

func (f *Repo) SetPasswordResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.reset[tokenHash] = pendingToken{userID: id, expiresAt: expiresAt}
	return nil
}

func (f *Repo) ConsumePasswordResetToken(ctx context.Context, tokenHash, passwordHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	tok, ok := f.reset[tokenHash]
	if !ok || !f.Now().Before(tok.expiresAt) {
		return false, nil
	}
	delete(f.reset, tokenHash)
	f.users[tok.userID].PasswordHash = passwordHash
	return true, nil
}

func (f *Repo) SetEmailVerifyToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	if _, ok := f.users[id]; !ok {
		return false, nil
	}
	f.email[tokenHash] = pendingToken{userID: id, expiresAt: expiresAt}
	return true, nil
}

func (f *Repo) ConsumeEmailVerifyToken(ctx context.Context, tokenHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	tok, ok := f.email[tokenHash]
	if !ok || !f.Now().Before(tok.expiresAt) {
		return false, nil
	}
	delete(f.email, tokenHash)
	f.users[tok.userID].EmailVerified = true
	return true, nil
}

func (f *Repo) SetActive(id string, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id].IsActive = active
}

// HasResetToken reports whether a password reset entry is stored under key.
func (f *Repo) HasResetToken(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.reset[key]
	return ok
}
