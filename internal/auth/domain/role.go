package domain

import (
	"errors"
	"fmt"
)

// Role is a closed set; anything not listed in AllRoles is rejected.
type Role string

const (
	RoleUser   Role = "user"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

var ErrUnknownRole = errors.New("unknown role")

// AllRoles lists every valid role in ascending privilege order.
var AllRoles = []Role{RoleUser, RoleEditor, RoleAdmin}

// DefaultRoles is assigned to freshly registered users.
func DefaultRoles() []Role { return []Role{RoleUser} }

func (r Role) String() string { return string(r) }

func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// ParseRoles validates and de-duplicates a role list, preserving order.
// An empty list is an error because a user must always hold at least one role.
func ParseRoles(raw []string) ([]Role, error) {
	if len(raw) == 0 {
		return nil, errors.New("at least one role is required")
	}
	out := make([]Role, 0, len(raw))
	seen := make(map[Role]struct{}, len(raw))
	for _, s := range raw {
		r, err := ParseRole(s)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

func RoleStrings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

// HasAnyRole reports whether have and want intersect.
func HasAnyRole(have []Role, want ...Role) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}
