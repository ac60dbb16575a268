package domain

import (
	"strings"
	"time"
)

type User struct {
	ID           string
	Name         string
	Email        string // trimmed and lowercased, unique
	PasswordHash string // argon2 encoded
	Roles        []Role // never empty
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the projection of a User that is safe to hand to clients.
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Roles []Role `json:"roles"`
}

func (u User) Public() PublicUser {
	roles := make([]Role, len(u.Roles))
	copy(roles, u.Roles)
	return PublicUser{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Roles: roles,
	}
}

// NormalizeEmail is applied on every write and lookup so that addresses
// compare case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
