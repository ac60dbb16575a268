// Package storetest holds the behavioural contract every store driver must
// satisfy. Driver packages call these from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/quill/internal/auth/domain"
	"github.com/aussiebroadwan/quill/internal/auth/store"
	"github.com/aussiebroadwan/quill/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty, migrated store. Cleanup is the factory's job.
type Factory func(t *testing.T) store.Store

// Options relaxes assertions for backends that expire records on their own.
type Options struct {
	// NativeExpiry means expired records may disappear before housekeeping
	// runs, so purge counts are an upper bound.
	NativeExpiry bool
}

func SeedUser(t *testing.T, st store.Store, email string) domain.User {
	t.Helper()

	u := domain.User{
		ID:           idx.New().String(),
		Name:         "Test User",
		Email:        email,
		PasswordHash: "$argon2id$stub",
		Roles:        domain.DefaultRoles(),
		Active:       true,
	}
	require.NoError(t, st.Users().CreateUser(context.Background(), u))
	return u
}

func SeedCredential(t *testing.T, st store.Store, userID, hash string, expiresAt time.Time) domain.Credential {
	t.Helper()

	c := domain.Credential{
		ID:        idx.New().String(),
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: expiresAt,
	}
	require.NoError(t, st.Credentials().CreateCredential(context.Background(), c))
	return c
}

// RunUsers exercises store.Users.
func RunUsers(t *testing.T, newStore Factory) {
	ctx := context.Background()
	st := newStore(t)

	u := SeedUser(t, st, "ada@example.com")

	t.Run("get by id and email", func(t *testing.T) {
		byID, err := st.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, u.Email, byID.Email)
		require.Equal(t, []domain.Role{domain.RoleUser}, byID.Roles)
		require.True(t, byID.Active)
		require.False(t, byID.CreatedAt.IsZero())

		byEmail, err := st.Users().GetUserByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		require.Equal(t, u.ID, byEmail.ID)
	})

	t.Run("duplicate email", func(t *testing.T) {
		dup := u
		dup.ID = idx.New().String()
		err := st.Users().CreateUser(ctx, dup)
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := st.Users().GetUserByID(ctx, "nope")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = st.Users().GetUserByEmail(ctx, "nope@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("update roles and active flag", func(t *testing.T) {
		roles := []domain.Role{domain.RoleEditor, domain.RoleAdmin}
		require.NoError(t, st.Users().UpdateUserRoles(ctx, u.ID, roles))
		require.NoError(t, st.Users().SetUserActive(ctx, u.ID, false))

		got, err := st.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, roles, got.Roles)
		require.False(t, got.Active)

		require.ErrorIs(t, st.Users().SetUserActive(ctx, "nope", true), store.ErrNotFound)
		require.ErrorIs(t, st.Users().UpdateUserRoles(ctx, "nope", roles), store.ErrNotFound)
	})
}

// RunCredentials exercises store.Credentials.
func RunCredentials(t *testing.T, newStore Factory, opts Options) {
	ctx := context.Background()
	now := time.Now()

	t.Run("duplicate hash", func(t *testing.T) {
		st := newStore(t)
		u := SeedUser(t, st, "a@x.com")
		SeedCredential(t, st, u.ID, "hash-1", now.Add(time.Hour))

		err := st.Credentials().CreateCredential(ctx, domain.Credential{
			ID:        idx.New().String(),
			UserID:    u.ID,
			TokenHash: "hash-1",
			ExpiresAt: now.Add(time.Hour),
		})
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("find active skips expired and revoked", func(t *testing.T) {
		st := newStore(t)
		u := SeedUser(t, st, "a@x.com")
		live := SeedCredential(t, st, u.ID, "live", now.Add(time.Hour))
		SeedCredential(t, st, u.ID, "expired", now.Add(-time.Second))
		SeedCredential(t, st, u.ID, "revoked", now.Add(time.Hour))
		require.NoError(t, st.Credentials().RevokeCredential(ctx, "revoked", now))

		got, err := st.Credentials().FindActiveCredential(ctx, "live", now)
		require.NoError(t, err)
		require.Equal(t, live.ID, got.ID)
		require.Equal(t, u.ID, got.UserID)
		require.False(t, got.Revoked)
		require.Equal(t, live.ExpiresAt.UnixMilli(), got.ExpiresAt.UnixMilli())

		_, err = st.Credentials().FindActiveCredential(ctx, "expired", now)
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = st.Credentials().FindActiveCredential(ctx, "revoked", now)
		require.ErrorIs(t, err, store.ErrNotFound)

		// Expiry is exclusive: a record expiring exactly now is unusable.
		_, err = st.Credentials().FindActiveCredential(ctx, "live", live.ExpiresAt)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		st := newStore(t)
		u := SeedUser(t, st, "a@x.com")
		SeedCredential(t, st, u.ID, "h", now.Add(time.Hour))

		require.NoError(t, st.Credentials().RevokeCredential(ctx, "h", now))
		require.NoError(t, st.Credentials().RevokeCredential(ctx, "h", now.Add(time.Minute)))

		got, err := st.Credentials().GetCredential(ctx, "h")
		require.NoError(t, err)
		require.True(t, got.Revoked)
		require.Equal(t, now.UnixMilli(), got.RevokedAt.UnixMilli())

		require.ErrorIs(t, st.Credentials().RevokeCredential(ctx, "missing", now), store.ErrNotFound)
	})

	t.Run("consume succeeds once", func(t *testing.T) {
		st := newStore(t)
		u := SeedUser(t, st, "a@x.com")
		SeedCredential(t, st, u.ID, "h", now.Add(time.Hour))

		got, err := st.Credentials().ConsumeCredential(ctx, "h", "next-id", now)
		require.NoError(t, err)
		require.Equal(t, u.ID, got.UserID)
		require.True(t, got.Revoked)
		require.Equal(t, "next-id", got.SupersededBy)

		_, err = st.Credentials().ConsumeCredential(ctx, "h", "other-id", now)
		require.ErrorIs(t, err, store.ErrNotFound)

		stored, err := st.Credentials().GetCredential(ctx, "h")
		require.NoError(t, err)
		require.Equal(t, "next-id", stored.SupersededBy)
	})

	t.Run("consume rejects expired and unknown", func(t *testing.T) {
		st := newStore(t)
		u := SeedUser(t, st, "a@x.com")
		SeedCredential(t, st, u.ID, "h", now.Add(-time.Minute))

		_, err := st.Credentials().ConsumeCredential(ctx, "h", "next", now)
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = st.Credentials().ConsumeCredential(ctx, "unknown", "next", now)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("concurrent consume has one winner", func(t *testing.T) {
		st := newStore(t)
		u := SeedUser(t, st, "a@x.com")
		SeedCredential(t, st, u.ID, "h", now.Add(time.Hour))

		const callers = 16
		var (
			wg              sync.WaitGroup
			winners, losers atomic.Int32
		)
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := st.Credentials().ConsumeCredential(ctx, "h", idx.New().String(), now)
				switch {
				case err == nil:
					winners.Add(1)
				case errors.Is(err, store.ErrNotFound):
					losers.Add(1)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), winners.Load())
		require.Equal(t, int32(callers-1), losers.Load())
	})

	t.Run("delete reports whether found", func(t *testing.T) {
		st := newStore(t)
		u := SeedUser(t, st, "a@x.com")
		SeedCredential(t, st, u.ID, "h", now.Add(time.Hour))

		found, err := st.Credentials().DeleteCredential(ctx, "h")
		require.NoError(t, err)
		require.True(t, found)

		found, err = st.Credentials().DeleteCredential(ctx, "h")
		require.NoError(t, err)
		require.False(t, found)

		_, err = st.Credentials().GetCredential(ctx, "h")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("revoke all for user", func(t *testing.T) {
		st := newStore(t)
		a := SeedUser(t, st, "a@x.com")
		b := SeedUser(t, st, "b@x.com")
		SeedCredential(t, st, a.ID, "a1", now.Add(time.Hour))
		SeedCredential(t, st, a.ID, "a2", now.Add(time.Hour))
		SeedCredential(t, st, b.ID, "b1", now.Add(time.Hour))
		require.NoError(t, st.Credentials().RevokeCredential(ctx, "a2", now))

		n, err := st.Credentials().RevokeUserCredentials(ctx, a.ID, now)
		require.NoError(t, err)
		require.Equal(t, int64(1), n, "already revoked records are not counted")

		_, err = st.Credentials().FindActiveCredential(ctx, "a1", now)
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = st.Credentials().FindActiveCredential(ctx, "b1", now)
		require.NoError(t, err)

		n, err = st.Credentials().RevokeUserCredentials(ctx, "nobody", now)
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("delete expired", func(t *testing.T) {
		st := newStore(t)
		u := SeedUser(t, st, "a@x.com")
		SeedCredential(t, st, u.ID, "old", now.Add(-time.Hour))
		SeedCredential(t, st, u.ID, "new", now.Add(time.Hour))

		n, err := st.Credentials().DeleteExpiredCredentials(ctx, now)
		require.NoError(t, err)
		if opts.NativeExpiry {
			require.LessOrEqual(t, n, int64(1))
		} else {
			require.Equal(t, int64(1), n)
		}

		_, err = st.Credentials().GetCredential(ctx, "old")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = st.Credentials().GetCredential(ctx, "new")
		require.NoError(t, err)
	})
}
