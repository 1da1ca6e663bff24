package domain

import (
	"strings"
	"time"
)

// Role labels carried on a user record. The wire representation is a
// comma-joined string, matching the legacy schema.
const (
	RoleUser  = "User"
	RoleAdmin = "Admin"
)

// Source tags record how an account was provisioned.
const (
	SourceLocal    = "Local"
	SourceFacebook = "Facebook"
)

// User mirrors the persisted representation in the users table.
type User struct {
	ID           string
	Username     string
	Email        string
	Phone        string
	PasswordHash string
	Roles        []string
	Source       string
	Preferences  map[string]any
	ResetCode    *string
	ResetExpires *time.Time
	FirstName    *string
	LastName     *string
	RegisteredAt time.Time
}

// HasRole reports whether the user carries the given role label.
func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user carries the Admin role.
func (u User) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

// HasOpenResetChallenge reports whether an unexpired reset challenge exists
// at the supplied reference time. ResetCode and ResetExpires are always both
// set or both nil.
func (u User) HasOpenResetChallenge(now time.Time) bool {
	return u.ResetCode != nil && u.ResetExpires != nil && u.ResetExpires.After(now)
}

// JoinRoles renders a role set in the comma-joined wire form.
func JoinRoles(roles []string) string {
	return strings.Join(roles, ",")
}

// SplitRoles parses the comma-joined wire form into a role set, dropping
// empty entries.
func SplitRoles(raw string) []string {
	parts := strings.Split(raw, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		roles = append(roles, p)
	}
	return roles
}
