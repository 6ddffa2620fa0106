package model

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the stored identity. PasswordHash never leaves the service layer.
type User struct {
	ID              string
	Username        string
	Email           string
	PasswordHash    string
	Bio             string
	ProfileImageURL string
	Role            string
	IsActive        bool
	EmailVerified   bool
	LastLoginAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UserView is the outward projection of User.
type UserView struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	Bio             string     `json:"bio"`
	ProfileImageURL string     `json:"profileImageUrl"`
	Role            string     `json:"role"`
	IsActive        bool       `json:"isActive"`
	EmailVerified   bool       `json:"emailVerified"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func (u *User) View() *UserView {
	return &UserView{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		Bio:             u.Bio,
		ProfileImageURL: u.ProfileImageURL,
		Role:            u.Role,
		IsActive:        u.IsActive,
		EmailVerified:   u.EmailVerified,
		LastLoginAt:     u.LastLoginAt,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// NewUser carries the fields persisted on registration.
type NewUser struct {
	ID              string
	Username        string
	Email           string
	PasswordHash    string
	Bio             string
	ProfileImageURL string
	Role            string
}

// ProfileUpdate applies only non-nil fields.
type ProfileUpdate struct {
	Username        *string `json:"username"`
	Bio             *string `json:"bio"`
	ProfileImageURL *string `json:"profileImageUrl"`
}

func (p ProfileUpdate) Empty() bool {
	return p.Username == nil && p.Bio == nil && p.ProfileImageURL == nil
}

// AuthUser is the decoded subject of an authorized request.
type AuthUser struct {
	ID        string
	TokenID   string
	ExpiresAt time.Time
}

type RegisterRequest struct {
	Username        string `json:"username" binding:"required"`
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required"`
	Bio             string `json:"bio"`
	ProfileImageURL string `json:"profileImageUrl"`
}

type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

type VerifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}
