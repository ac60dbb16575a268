package http

import (
	"github.com/aussiebroadwan/quill/internal/auth/domain"
	"github.com/aussiebroadwan/quill/pkg/httpx"
)

// requireRole admits callers whose token carries at least one of roles.
// Must be chained after httpx.AuthnMiddleware.
func requireRole(roles ...domain.Role) httpx.Middleware {
	return httpx.RequireAnyRole(domain.RoleStrings(roles)...)
}
