package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/quill/internal/auth/domain"
	"github.com/aussiebroadwan/quill/internal/auth/store"
	"github.com/aussiebroadwan/quill/pkg/cryptox"
	"github.com/aussiebroadwan/quill/pkg/idx"
	"github.com/aussiebroadwan/quill/pkg/slogx"
)

type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AccountService owns user records: registration, password checks and the
// admin-only role and activation changes.
type AccountService struct {
	Store  store.Store
	Hasher *cryptox.PasswordHasher

	dummyOnce sync.Once
	dummyHash string
}

func NewAccountService(st store.Store, hasher *cryptox.PasswordHasher) *AccountService {
	return &AccountService{Store: st, Hasher: hasher}
}

// Register creates an active user with the default role set.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = domain.NormalizeEmail(in.Email)
	if err := validateStruct(in); err != nil {
		return domain.User{}, err
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Roles:        domain.DefaultRoles(),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	slogx.FromContext(ctx).Info("user registered", "user_id", u.ID)
	return u, nil
}

// Authenticate checks an email and password pair. Unknown emails and wrong
// passwords produce the same error and take comparable time.
func (s *AccountService) Authenticate(ctx context.Context, in LoginInput) (domain.User, error) {
	in.Email = domain.NormalizeEmail(in.Email)
	if err := validateStruct(in); err != nil {
		return domain.User{}, err
	}

	u, err := s.Store.Users().GetUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = s.Hasher.Verify(in.Password, s.dummy())
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}

	if err := s.Hasher.Verify(in.Password, u.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			slogx.FromContext(ctx).Error("stored password hash unreadable", "user_id", u.ID, "err", err)
		}
		return domain.User{}, ErrInvalidCredentials
	}

	if !u.Active {
		return domain.User{}, ErrInactive
	}
	return u, nil
}

// Profile returns the user behind an authenticated subject.
func (s *AccountService) Profile(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return u, nil
}

// SetRoles replaces a user's roles. Unknown role names are rejected rather
// than dropped. Tokens already issued keep their old roles until expiry.
func (s *AccountService) SetRoles(ctx context.Context, userID string, raw []string) (domain.User, error) {
	roles, err := domain.ParseRoles(raw)
	if err != nil {
		return domain.User{}, fieldError("roles", err.Error())
	}

	if err := s.Store.Users().UpdateUserRoles(ctx, userID, roles); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user roles updated", "user_id", userID, "roles", domain.RoleStrings(roles))
	return s.Profile(ctx, userID)
}

// SetActive flips the active flag. Deactivation also revokes every refresh
// credential so the user is signed out once their access token lapses.
func (s *AccountService) SetActive(ctx context.Context, userID string, active bool) error {
	if err := s.Store.Users().SetUserActive(ctx, userID, active); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	l := slogx.FromContext(ctx)
	if active {
		l.Info("user activated", "user_id", userID)
		return nil
	}

	n, err := s.Store.Credentials().RevokeUserCredentials(ctx, userID, time.Now())
	if err != nil {
		return fmt.Errorf("revoke credentials: %w", err)
	}
	l.Info("user deactivated", "user_id", userID, "revoked_credentials", n)
	return nil
}

// EnsureAdmin creates the seed administrator, or grants admin to an existing
// account with that email. It reports whether anything changed.
func (s *AccountService) EnsureAdmin(ctx context.Context, in RegisterInput) (bool, error) {
	existing, err := s.Store.Users().GetUserByEmail(ctx, domain.NormalizeEmail(in.Email))
	switch {
	case err == nil:
		if domain.HasAnyRole(existing.Roles, domain.RoleAdmin) {
			return false, nil
		}
		if err := s.Store.Users().UpdateUserRoles(ctx, existing.ID, withAdmin(existing.Roles)); err != nil {
			return false, err
		}
		return true, nil
	case !errors.Is(err, store.ErrNotFound):
		return false, err
	}

	u, err := s.Register(ctx, in)
	if err != nil {
		return false, err
	}
	if err := s.Store.Users().UpdateUserRoles(ctx, u.ID, withAdmin(u.Roles)); err != nil {
		return false, err
	}
	return true, nil
}

// withAdmin adds the admin role on top of whatever the account already holds.
func withAdmin(roles []domain.Role) []domain.Role {
	return append(slices.Clip(roles), domain.RoleAdmin)
}

// dummy returns a valid hash used to keep the unknown-email path as slow
// as a real password check.
func (s *AccountService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.Hasher.Hash(idx.New().String())
	})
	return s.dummyHash
}
