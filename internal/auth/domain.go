package auth

import "time"

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionInfo describes a login recorded in user_sessions.
type SessionInfo struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	IP        string
	UserAgent string
}

// NewUserInput creates an account, used by the seed script.
type NewUserInput struct {
	Email    string `validate:"required,email"`
	Name     string `validate:"required,max=120"`
	Password string `validate:"required,min=8"`
	Role     string `validate:"required,oneof=admin staff"`
}
