package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the smallest HMAC secret accepted, matching the
// SHA-256 block output size.
const MinSecretLength = 32

// HS256Options configures an HS256Codec.
type HS256Options struct {
	// Secret is the shared HMAC key. It is copied at construction.
	Secret []byte

	// Issuer is stamped into "iss" and enforced on verify when non-empty.
	Issuer string

	// AccessTTL is the lifetime of tokens minted by SignAccess. Zero means
	// DefaultAccessTokenTTL.
	AccessTTL time.Duration

	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// HS256Codec signs and verifies access tokens with a single server-held
// secret. It holds no mutable state and is safe for concurrent use.
type HS256Codec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

var (
	_ Signer   = (*HS256Codec)(nil)
	_ Verifier = (*HS256Codec)(nil)
)

func NewHS256Codec(opts HS256Options) (*HS256Codec, error) {
	if len(opts.Secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrWeakSecret, MinSecretLength, len(opts.Secret))
	}
	if opts.AccessTTL < 0 {
		return nil, errors.New("jwtx: access ttl must not be negative")
	}

	ttl := opts.AccessTTL
	if ttl == 0 {
		ttl = DefaultAccessTokenTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(now),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}

	secret := make([]byte, len(opts.Secret))
	copy(secret, opts.Secret)

	return &HS256Codec{
		secret: secret,
		issuer: opts.Issuer,
		ttl:    ttl,
		now:    now,
		parser: jwt.NewParser(parserOpts...),
	}, nil
}

// TTL returns the lifetime applied by SignAccess.
func (c *HS256Codec) TTL() time.Duration { return c.ttl }

// SignAccess mints an access token for the given identity using the
// codec's clock, issuer and TTL.
func (c *HS256Codec) SignAccess(subject, email string, roles []string) (string, Claims, error) {
	claims := NewAccessClaims(subject, email, roles, c.ttl, c.issuer, c.now())
	token, err := c.Sign(claims)
	if err != nil {
		return "", Claims{}, err
	}
	return token, claims, nil
}

// Sign creates a compact HS256 token for claims as given.
func (c *HS256Codec) Sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer and expiry. Every failure wraps
// ErrInvalidToken.
func (c *HS256Codec) Verify(tokenStr string) (Claims, error) {
	var claims Claims
	token, err := c.parser.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
