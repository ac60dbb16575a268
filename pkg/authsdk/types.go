package authsdk

import "time"

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	// Error is a stable machine-readable code such as "invalid_grant".
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error.
	ErrorDescription string `json:"error_description,omitempty"`

	// Details maps request field names to validation messages.
	Details map[string]string `json:"details,omitempty"`
}

// ============================================================================
// Auth Types
// ============================================================================

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest is the optional body of POST /api/auth/refresh and
// POST /api/auth/logout. Browsers send the refresh cookie instead.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// LogoutResponse is returned by POST /api/auth/logout. Found is false when
// the secret was unknown, already rotated away or missing.
type LogoutResponse struct {
	Found   bool   `json:"found"`
	Message string `json:"message"`
}

// AuthResponse is returned by register, login and refresh.
type AuthResponse struct {
	// AccessToken is the signed JWT to send as "Authorization: Bearer".
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int `json:"expires_in"`

	// RefreshToken is the opaque single-use refresh secret. It is also set
	// as an HttpOnly cookie.
	RefreshToken string `json:"refresh_token"`

	// RefreshExpiresAt is when the refresh secret stops being accepted.
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`

	User UserResponse `json:"user"`
}

// ============================================================================
// User Types
// ============================================================================

// UserResponse is the public projection of a user account.
type UserResponse struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// HasRole reports whether the user holds role.
func (u UserResponse) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// SetRolesRequest is the body of PUT /api/users/{id}/roles.
type SetRolesRequest struct {
	Roles []string `json:"roles"`
}

// SetActiveRequest is the body of PUT /api/users/{id}/active.
type SetActiveRequest struct {
	Active *bool `json:"active"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the state of each dependency on /readyz.
type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
}
