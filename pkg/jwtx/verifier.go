package jwtx

import "errors"

// Signer issues compact JWTs for a set of claims.
type Signer interface {
	Sign(Claims) (string, error)
}

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

var (
	// ErrInvalidToken wraps every verification failure. Callers should not
	// branch on the underlying cause when talking to clients.
	ErrInvalidToken = errors.New("jwtx: invalid token")

	ErrWeakSecret = errors.New("jwtx: signing secret too short")
)
