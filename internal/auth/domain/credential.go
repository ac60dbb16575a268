package domain

import "time"

// Credential models a stored refresh token record. The opaque secret itself
// is handed to the client once and only its fingerprint is kept.
type Credential struct {
	ID           string
	UserID       string
	TokenHash    string // deterministic fingerprint (base64url SHA-256)
	ExpiresAt    time.Time
	Revoked      bool
	RevokedAt    time.Time // zero until revoked
	SupersededBy string    // ID of the credential minted when this one was rotated
	CreatedAt    time.Time
}

// Usable reports whether the record may still be exchanged at now.
func (c Credential) Usable(now time.Time) bool {
	return !c.Revoked && now.Before(c.ExpiresAt)
}
