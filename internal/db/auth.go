package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/socialhub/backend/internal/model"
)

const userColumns = `id, username, email, password_hash, bio, profile_image_url, role,
	is_active, email_verified, last_login_at, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Bio,
		&user.ProfileImageURL,
		&user.Role,
		&user.IsActive,
		&user.EmailVerified,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *Postgres) CreateUser(ctx context.Context, u model.NewUser) (*model.User, error) {
	query := `
		INSERT INTO users (id, username, email, password_hash, bio, profile_image_url, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING ` + userColumns
	return scanUser(db.Pool.QueryRow(ctx, query,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Bio, u.ProfileImageURL, u.Role,
	))
}

func (db *Postgres) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(db.Pool.QueryRow(ctx, query, id))
}

// GetUserByEmail expects an already normalized (lower-cased) email.
func (db *Postgres) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(db.Pool.QueryRow(ctx, query, email))
}

func (db *Postgres) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(db.Pool.QueryRow(ctx, query, username))
}

// FindIdentityConflicts reports which of email and username are already taken.
func (db *Postgres) FindIdentityConflicts(ctx context.Context, email, username string) (bool, bool, error) {
	query := `
		SELECT
			EXISTS (SELECT 1 FROM users WHERE email = $1),
			EXISTS (SELECT 1 FROM users WHERE username = $2)
	`
	var emailTaken, usernameTaken bool
	if err := db.Pool.QueryRow(ctx, query, email, username).Scan(&emailTaken, &usernameTaken); err != nil {
		return false, false, err
	}
	return emailTaken, usernameTaken, nil
}

func (db *Postgres) TouchLastLogin(ctx context.Context, id string) (time.Time, error) {
	query := `
		UPDATE users
		SET last_login_at = NOW()
		WHERE id = $1
		RETURNING last_login_at
	`
	var at time.Time
	if err := db.Pool.QueryRow(ctx, query, id).Scan(&at); err != nil {
		return time.Time{}, err
	}
	return at, nil
}

// UpdateProfile keeps the stored value for every nil field.
func (db *Postgres) UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error) {
	query := `
		UPDATE users
		SET username = COALESCE($2, username),
			bio = COALESCE($3, bio),
			profile_image_url = COALESCE($4, profile_image_url),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	return scanUser(db.Pool.QueryRow(ctx, query, id, upd.Username, upd.Bio, upd.ProfileImageURL))
}

func (db *Postgres) UpdatePasswordHash(ctx context.Context, id, passwordHash string) (bool, error) {
	query := `
		UPDATE users
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := db.Pool.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (db *Postgres) SetPasswordResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	query := `
		UPDATE users
		SET password_reset_token_hash = $2, password_reset_expires_at = $3
		WHERE id = $1
	`
	_, err := db.Pool.Exec(ctx, query, id, tokenHash, expiresAt)
	return err
}

// ConsumePasswordResetToken swaps the password and clears the token in one
// statement, so a reset token works at most once.
func (db *Postgres) ConsumePasswordResetToken(ctx context.Context, tokenHash, passwordHash string) (bool, error) {
	query := `
		UPDATE users
		SET password_hash = $2,
			password_reset_token_hash = NULL,
			password_reset_expires_at = NULL,
			updated_at = NOW()
		WHERE password_reset_token_hash = $1 AND password_reset_expires_at > NOW()
	`
	tag, err := db.Pool.Exec(ctx, query, tokenHash, passwordHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (db *Postgres) SetEmailVerifyToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) (bool, error) {
	query := `
		UPDATE users
		SET email_verify_token_hash = $2, email_verify_expires_at = $3
		WHERE id = $1
	`
	tag, err := db.Pool.Exec(ctx, query, id, tokenHash, expiresAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (db *Postgres) ConsumeEmailVerifyToken(ctx context.Context, tokenHash string) (bool, error) {
	query := `
		UPDATE users
		SET email_verified = TRUE,
			email_verify_token_hash = NULL,
			email_verify_expires_at = NULL,
			updated_at = NOW()
		WHERE email_verify_token_hash = $1 AND email_verify_expires_at > NOW()
	`
	tag, err := db.Pool.Exec(ctx, query, tokenHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
