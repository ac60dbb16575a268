package domain

import "time"

// AuthResult is what register, login and refresh hand back to the transport
// layer: a signed access token, a fresh refresh secret and the public user.
type AuthResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	ExpiresIn        time.Duration
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             PublicUser
}
