package model

import "time"

const (
	NotificationPasswordReset     = "password_reset"
	NotificationEmailVerification = "email_verification"
)

// Notification carries a one-time token to the account owner.
type Notification struct {
	Kind      string
	UserID    string
	Username  string
	Email     string
	Token     string
	ExpiresAt time.Time
}

type WebhookHeader struct {
	Key   string
	Value string
}
