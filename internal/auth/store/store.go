package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/quill/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, mongo)
// implement this and expose sub-repositories to keep concerns tidy and
// testable.
type Store interface {
	Users() Users
	Credentials() Credentials

	// ApplyMigrations brings the schema (tables, indexes) up to date.
	ApplyMigrations(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backing connection is still alive.
	Ping(ctx context.Context) error
}

type Users interface {
	// CreateUser inserts a new user (id is provided by app via ULID).
	// A taken email returns ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail expects an already normalized email.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// UpdateUserRoles replaces the role set and bumps updated_at.
	UpdateUserRoles(ctx context.Context, id string, roles []domain.Role) error

	// SetUserActive flips the active flag and bumps updated_at.
	SetUserActive(ctx context.Context, id string, active bool) error
}

// Credentials persists refresh credential records keyed by the fingerprint
// of the refresh secret. Every "active" check means not revoked and
// expires_at strictly after now.
type Credentials interface {
	// CreateCredential stores a new record. A hash collision returns
	// ErrAlreadyExists.
	CreateCredential(ctx context.Context, c domain.Credential) error

	// FindActiveCredential returns the record only while it is active.
	FindActiveCredential(ctx context.Context, hash string, now time.Time) (domain.Credential, error)

	// ConsumeCredential revokes the record if and only if it is active,
	// recording successorID, as one atomic step, and returns the consumed
	// record. When the record is not active it returns ErrNotFound; of two
	// concurrent callers exactly one succeeds.
	ConsumeCredential(ctx context.Context, hash, successorID string, now time.Time) (domain.Credential, error)

	// RevokeCredential marks the record revoked. Revoking a revoked record is
	// a no-op.
	RevokeCredential(ctx context.Context, hash string, now time.Time) error

	// DeleteCredential removes the record and reports whether it existed.
	DeleteCredential(ctx context.Context, hash string) (bool, error)

	// GetCredential returns the record in whatever state it is in.
	GetCredential(ctx context.Context, hash string) (domain.Credential, error)

	// RevokeUserCredentials revokes every active record owned by userID.
	RevokeUserCredentials(ctx context.Context, userID string, now time.Time) (int64, error)

	// DeleteExpiredCredentials is housekeeping. Backends with native expiry
	// may report zero.
	DeleteExpiredCredentials(ctx context.Context, now time.Time) (int64, error)
}

// CredentialBackend is a Credentials implementation with its own connection,
// used when refresh credentials live outside the primary store.
type CredentialBackend interface {
	Credentials
	Ping(ctx context.Context) error
	Close() error
}
