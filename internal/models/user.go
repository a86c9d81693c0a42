package models

import (
	"strings"
	"time"
)

// User represents a registered account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never expose this to the client
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Sanitized returns a copy of the user without the password hash.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

// RegisterInput is the payload accepted by the registration endpoint.
type RegisterInput struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Credentials is the payload accepted by the login endpoint.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileUpdate carries the fields a user may change on their own account.
// Nil fields are left untouched.
type ProfileUpdate struct {
	Username        *string `json:"username,omitempty"`
	Name            *string `json:"name,omitempty"`
	Email           *string `json:"email,omitempty"`
	CurrentPassword *string `json:"currentPassword,omitempty"`
	NewPassword     *string `json:"newPassword,omitempty"`
}

// ChangesPassword reports whether a new password was supplied.
func (p ProfileUpdate) ChangesPassword() bool {
	return p.NewPassword != nil && *p.NewPassword != ""
}

// NormalizeEmail trims and lower-cases an address so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
