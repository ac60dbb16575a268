package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/quill/internal/auth/domain"
	"github.com/aussiebroadwan/quill/internal/auth/store"
	"github.com/aussiebroadwan/quill/pkg/cryptox"
	"github.com/aussiebroadwan/quill/pkg/idx"
	"github.com/aussiebroadwan/quill/pkg/jwtx"
	"github.com/aussiebroadwan/quill/pkg/slogx"
)

// maxMintAttempts bounds retries when a freshly minted refresh secret
// collides with an existing fingerprint.
const maxMintAttempts = 3

// AccessSigner mints access tokens for an identity.
type AccessSigner interface {
	SignAccess(subject, email string, roles []string) (string, jwtx.Claims, error)
}

// TokenService builds auth responses and rotates refresh credentials.
type TokenService struct {
	Signer     AccessSigner
	Store      store.Store
	RefreshTTL time.Duration

	// ReuseDetection revokes every credential of a user when a secret that
	// was already rotated is presented again.
	ReuseDetection bool

	// SingleSession revokes a user's other credentials whenever Issue runs,
	// so only the newest login can refresh.
	SingleSession bool

	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *TokenService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

// Issue signs an access token and persists a brand new refresh credential
// for u. Existing credentials of u are left untouched unless SingleSession
// is set.
func (s *TokenService) Issue(ctx context.Context, u domain.User) (*domain.AuthResult, error) {
	now := s.now()
	if s.SingleSession {
		if _, err := s.Store.Credentials().RevokeUserCredentials(ctx, u.ID, now); err != nil {
			return nil, fmt.Errorf("revoke previous credentials: %w", err)
		}
	}
	return s.issue(ctx, u, idx.New().String(), now)
}

// Rotate exchanges a refresh secret for a new access token and a new
// secret. The presented secret is consumed atomically, so it succeeds at
// most once even under concurrent use.
func (s *TokenService) Rotate(ctx context.Context, secret string) (*domain.AuthResult, error) {
	if secret == "" {
		return nil, ErrInvalidRefresh
	}

	l := slogx.FromContext(ctx)
	now := s.now()
	hash := cryptox.FingerprintToken(secret)
	successorID := idx.New().String()

	consumed, err := s.Store.Credentials().ConsumeCredential(ctx, hash, successorID, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.detectReuse(ctx, hash, now)
			return nil, ErrInvalidRefresh
		}
		return nil, fmt.Errorf("consume refresh credential: %w", err)
	}

	user, err := s.Store.Users().GetUserByID(ctx, consumed.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.Active {
		l.Info("refresh rejected for inactive user", "user_id", user.ID)
		return nil, ErrInvalidRefresh
	}

	res, err := s.issue(ctx, user, successorID, now)
	if err != nil {
		return nil, err
	}

	l.Debug("refresh credential rotated", "user_id", user.ID, "credential_id", consumed.ID, "successor_id", successorID)
	return res, nil
}

// Logout deletes the credential behind secret and reports whether it
// existed. Unknown or empty secrets are not an error.
func (s *TokenService) Logout(ctx context.Context, secret string) (bool, error) {
	if secret == "" {
		return false, nil
	}
	found, err := s.Store.Credentials().DeleteCredential(ctx, cryptox.FingerprintToken(secret))
	if err != nil {
		return false, fmt.Errorf("delete refresh credential: %w", err)
	}
	return found, nil
}

// RevokeAll revokes every active credential of userID.
func (s *TokenService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	return s.Store.Credentials().RevokeUserCredentials(ctx, userID, s.now())
}

func (s *TokenService) issue(
	ctx context.Context,
	u domain.User,
	credentialID string,
	now time.Time,
) (*domain.AuthResult, error) {
	access, claims, err := s.Signer.SignAccess(u.ID, u.Email, domain.RoleStrings(u.Roles))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	expiresAt := now.Add(s.refreshTTL())

	for attempt := 1; ; attempt++ {
		secret, err := cryptox.NewRefreshSecret()
		if err != nil {
			return nil, err
		}

		err = s.Store.Credentials().CreateCredential(ctx, domain.Credential{
			ID:        credentialID,
			UserID:    u.ID,
			TokenHash: cryptox.FingerprintToken(secret),
			ExpiresAt: expiresAt,
			CreatedAt: now,
		})
		if errors.Is(err, store.ErrAlreadyExists) && attempt < maxMintAttempts {
			slogx.FromContext(ctx).Warn("refresh secret collision, minting again", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("store refresh credential: %w", err)
		}

		return &domain.AuthResult{
			AccessToken:      access,
			AccessExpiresAt:  claims.ExpiresAt.Time,
			ExpiresIn:        claims.ExpiresAt.Sub(claims.IssuedAt.Time),
			RefreshToken:     secret,
			RefreshExpiresAt: expiresAt,
			User:             u.Public(),
		}, nil
	}
}

func (s *TokenService) detectReuse(ctx context.Context, hash string, now time.Time) {
	if !s.ReuseDetection {
		return
	}

	rec, err := s.Store.Credentials().GetCredential(ctx, hash)
	if err != nil || !rec.Revoked || rec.SupersededBy == "" {
		return
	}

	l := slogx.FromContext(ctx)
	n, err := s.Store.Credentials().RevokeUserCredentials(ctx, rec.UserID, now)
	if err != nil {
		l.Error("failed to revoke credentials after refresh reuse", "user_id", rec.UserID, "err", err)
		return
	}
	l.Warn("rotated refresh secret presented again, revoked user credentials",
		"user_id", rec.UserID,
		"credential_id", rec.ID,
		"revoked", n,
	)
}
