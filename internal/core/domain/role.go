package domain

import "time"

const (
	RoleAdmin   = "Admin"
	RoleGerente = "Gerente"
)

// Role is a named permission group. Names are unique by normalized form.
type Role struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	NormalizedName string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// RoleUpdateOutcome tags the result of a user-role mutation.
type RoleUpdateOutcome string

const (
	RoleUpdateApplied      RoleUpdateOutcome = "applied"
	RoleUpdateUserNotFound RoleUpdateOutcome = "user_not_found"
)

// RoleUpdateResult reports what UpdateUserRole did. A missing user is a
// result, not an error; the transport decides how to present it.
type RoleUpdateResult struct {
	Outcome RoleUpdateOutcome
	// Changed is false when the assignment was already in the requested state.
	Changed bool
}

// Found reports whether the target identity existed.
func (r RoleUpdateResult) Found() bool {
	return r.Outcome != RoleUpdateUserNotFound
}

// RoleChange is an audit record of an applied assignment mutation.
type RoleChange struct {
	UserID    string
	Username  string
	Role      string
	Action    string // "add" or "remove"
	Timestamp time.Time
}

const (
	RoleActionAdd    = "add"
	RoleActionRemove = "remove"
)
