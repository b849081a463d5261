package domain

import (
	"strings"
	"time"
)

// Identity models a registered account. The password credential is owned by
// the credential store and never serialised.
type Identity struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username"`
	NormalizedUsername string    `json:"-"`
	Email              string    `json:"email,omitempty"`
	FullName           string    `json:"full_name,omitempty"`
	PasswordHash       string    `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// PublicUser is the sanitized view of an Identity returned to clients.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// Public strips everything a client must not see.
func (i *Identity) Public() *PublicUser {
	if i == nil {
		return nil
	}
	return &PublicUser{
		ID:       i.ID,
		Username: i.Username,
		Email:    i.Email,
		FullName: i.FullName,
	}
}

// Normalize returns the comparison form used for usernames, emails and role
// names. Lookups are case-insensitive through this form.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
