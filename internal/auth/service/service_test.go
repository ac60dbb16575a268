package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/quill/internal/auth/domain"
	"github.com/aussiebroadwan/quill/internal/auth/store"
	"github.com/aussiebroadwan/quill/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/quill/pkg/cryptox"
	"github.com/aussiebroadwan/quill/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store    store.Store
	codec    *jwtx.HS256Codec
	tokens   *TokenService
	accounts *AccountService
	clock    *clock
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations(context.Background()))

	clk := &clock{t: time.Now()}
	codec, err := jwtx.NewHS256Codec(jwtx.HS256Options{
		Secret: []byte("test-secret-test-secret-test-secret!"),
		Issuer: "quill-auth",
		Now:    clk.Now,
	})
	require.NoError(t, err)

	return &testEnv{
		store: st,
		codec: codec,
		tokens: &TokenService{
			Signer:     codec,
			Store:      st,
			RefreshTTL: 7 * 24 * time.Hour,
			Now:        clk.Now,
		},
		accounts: NewAccountService(st, cryptox.NewPasswordHasher("pepper")),
		clock:    clk,
	}
}

func (e *testEnv) register(t *testing.T, email string) (domain.User, *domain.AuthResult) {
	t.Helper()
	u, err := e.accounts.Register(context.Background(), RegisterInput{
		Name:     "Ada",
		Email:    email,
		Password: "secret1",
	})
	require.NoError(t, err)
	res, err := e.tokens.Issue(context.Background(), u)
	require.NoError(t, err)
	return u, res
}

func TestIssue(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u, first := env.register(t, "a@x.com")

	require.NotEmpty(t, first.AccessToken)
	require.Len(t, first.RefreshToken, 43)
	require.Equal(t, 15*time.Minute, first.ExpiresIn)
	require.Equal(t, domain.PublicUser{
		ID:    u.ID,
		Name:  "Ada",
		Email: "a@x.com",
		Roles: []domain.Role{domain.RoleUser},
	}, first.User)

	claims, err := env.codec.Verify(first.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.Subject)
	require.Equal(t, []string{"user"}, claims.Roles)

	rec, err := env.store.Credentials().FindActiveCredential(ctx, cryptox.FingerprintToken(first.RefreshToken), env.clock.Now())
	require.NoError(t, err)
	require.Equal(t, u.ID, rec.UserID)
	require.WithinDuration(t, env.clock.Now().Add(7*24*time.Hour), rec.ExpiresAt, time.Millisecond)

	second, err := env.tokens.Issue(ctx, u)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken, "every issue mints a fresh record")

	_, err = env.store.Credentials().FindActiveCredential(ctx, cryptox.FingerprintToken(first.RefreshToken), env.clock.Now())
	require.NoError(t, err, "earlier credentials stay valid")
}

func TestIssue_SingleSession(t *testing.T) {
	env := newTestEnv(t)
	env.tokens.SingleSession = true
	u, first := env.register(t, "a@x.com")

	_, err := env.tokens.Issue(context.Background(), u)
	require.NoError(t, err)

	_, err = env.tokens.Rotate(context.Background(), first.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

// collidingStore reports the next fails credential inserts as duplicates.
type collidingStore struct {
	store.Store
	creds *collidingCredentials
}

func (s collidingStore) Credentials() store.Credentials { return s.creds }

type collidingCredentials struct {
	store.Credentials
	fails int
}

func (c *collidingCredentials) CreateCredential(ctx context.Context, cred domain.Credential) error {
	if c.fails > 0 {
		c.fails--
		return store.ErrAlreadyExists
	}
	return c.Credentials.CreateCredential(ctx, cred)
}

func TestIssue_SecretCollision(t *testing.T) {
	ctx := context.Background()

	t.Run("retries with a new secret", func(t *testing.T) {
		env := newTestEnv(t)
		u, _ := env.register(t, "a@x.com")
		env.tokens.Store = collidingStore{
			Store: env.store,
			creds: &collidingCredentials{Credentials: env.store.Credentials(), fails: maxMintAttempts - 1},
		}

		res, err := env.tokens.Issue(ctx, u)
		require.NoError(t, err)

		_, err = env.store.Credentials().FindActiveCredential(ctx, cryptox.FingerprintToken(res.RefreshToken), env.clock.Now())
		require.NoError(t, err)
	})

	t.Run("gives up after bounded attempts", func(t *testing.T) {
		env := newTestEnv(t)
		u, _ := env.register(t, "a@x.com")
		env.tokens.Store = collidingStore{
			Store: env.store,
			creds: &collidingCredentials{Credentials: env.store.Credentials(), fails: maxMintAttempts},
		}

		_, err := env.tokens.Issue(ctx, u)
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})
}

func TestRotate_SingleUse(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u, issued := env.register(t, "a@x.com")

	env.clock.Advance(time.Hour)
	rotated, err := env.tokens.Rotate(ctx, issued.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, issued.RefreshToken, rotated.RefreshToken)
	require.NotEqual(t, issued.AccessToken, rotated.AccessToken)
	require.Equal(t, u.ID, rotated.User.ID)
	require.Equal(t, env.clock.Now().Add(7*24*time.Hour), rotated.RefreshExpiresAt, "fresh TTL from rotation time")

	_, err = env.tokens.Rotate(ctx, issued.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	again, err := env.tokens.Rotate(ctx, rotated.RefreshToken)
	require.NoError(t, err)

	_, err = env.tokens.Rotate(ctx, issued.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	old, err := env.store.Credentials().GetCredential(ctx, cryptox.FingerprintToken(issued.RefreshToken))
	require.NoError(t, err)
	require.True(t, old.Revoked)
	successor, err := env.store.Credentials().GetCredential(ctx, cryptox.FingerprintToken(rotated.RefreshToken))
	require.NoError(t, err)
	require.Equal(t, successor.ID, old.SupersededBy)
	require.NotEmpty(t, again.RefreshToken)
}

func TestRotate_Concurrent(t *testing.T) {
	env := newTestEnv(t)
	_, issued := env.register(t, "a@x.com")

	const callers = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		errs []error
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.tokens.Rotate(context.Background(), issued.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, ok)
	require.Len(t, errs, callers-1)
	for _, err := range errs {
		require.ErrorIs(t, err, ErrInvalidRefresh)
	}
}

func TestRotate_Rejects(t *testing.T) {
	ctx := context.Background()

	t.Run("empty and unknown", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.tokens.Rotate(ctx, "")
		require.ErrorIs(t, err, ErrInvalidRefresh)
		_, err = env.tokens.Rotate(ctx, "never-issued")
		require.ErrorIs(t, err, ErrInvalidRefresh)
	})

	t.Run("expired", func(t *testing.T) {
		env := newTestEnv(t)
		_, issued := env.register(t, "a@x.com")

		env.clock.Advance(7*24*time.Hour + time.Second)
		_, err := env.tokens.Rotate(ctx, issued.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidRefresh)
	})

	t.Run("inactive user", func(t *testing.T) {
		env := newTestEnv(t)
		u, issued := env.register(t, "a@x.com")
		fresh, err := env.tokens.Issue(ctx, u)
		require.NoError(t, err)

		require.NoError(t, env.store.Users().SetUserActive(ctx, u.ID, false))
		_, err = env.tokens.Rotate(ctx, fresh.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidRefresh)

		// Deactivation through the account service revokes everything.
		require.NoError(t, env.accounts.SetActive(ctx, u.ID, false))
		require.NoError(t, env.accounts.SetActive(ctx, u.ID, true))
		_, err = env.tokens.Rotate(ctx, issued.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidRefresh)
	})
}

func TestRotate_ReuseDetection(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled keeps successor valid", func(t *testing.T) {
		env := newTestEnv(t)
		_, issued := env.register(t, "a@x.com")

		rotated, err := env.tokens.Rotate(ctx, issued.RefreshToken)
		require.NoError(t, err)
		_, err = env.tokens.Rotate(ctx, issued.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidRefresh)

		_, err = env.tokens.Rotate(ctx, rotated.RefreshToken)
		require.NoError(t, err)
	})

	t.Run("enabled revokes the user's credentials", func(t *testing.T) {
		env := newTestEnv(t)
		env.tokens.ReuseDetection = true
		_, issued := env.register(t, "a@x.com")

		rotated, err := env.tokens.Rotate(ctx, issued.RefreshToken)
		require.NoError(t, err)
		_, err = env.tokens.Rotate(ctx, issued.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidRefresh)

		_, err = env.tokens.Rotate(ctx, rotated.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidRefresh)
	})

	t.Run("logged out secret is not treated as reuse", func(t *testing.T) {
		env := newTestEnv(t)
		env.tokens.ReuseDetection = true
		u, issued := env.register(t, "a@x.com")
		other, err := env.tokens.Issue(ctx, u)
		require.NoError(t, err)

		found, err := env.tokens.Logout(ctx, issued.RefreshToken)
		require.NoError(t, err)
		require.True(t, found)

		_, err = env.tokens.Rotate(ctx, issued.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidRefresh)
		_, err = env.tokens.Rotate(ctx, other.RefreshToken)
		require.NoError(t, err)
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, issued := env.register(t, "a@x.com")

	found, err := env.tokens.Logout(ctx, issued.RefreshToken)
	require.NoError(t, err)
	require.True(t, found)

	found, err = env.tokens.Logout(ctx, issued.RefreshToken)
	require.NoError(t, err)
	require.False(t, found)

	found, err = env.tokens.Logout(ctx, "")
	require.NoError(t, err)
	require.False(t, found)

	_, err = env.tokens.Rotate(ctx, issued.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	u, err := env.accounts.Register(ctx, RegisterInput{Name: "  Ada  ", Email: "  Ada@X.com ", Password: "secret1"})
	require.NoError(t, err)
	require.Equal(t, "Ada", u.Name)
	require.Equal(t, "ada@x.com", u.Email)
	require.True(t, u.Active)
	require.Equal(t, domain.DefaultRoles(), u.Roles)
	require.NotEqual(t, "secret1", u.PasswordHash)

	_, err = env.accounts.Register(ctx, RegisterInput{Name: "Imposter", Email: "ADA@x.com", Password: "secret1"})
	require.ErrorIs(t, err, ErrEmailTaken)

	tests := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{"missing name", RegisterInput{Email: "b@x.com", Password: "secret1"}, "name"},
		{"bad email", RegisterInput{Name: "B", Email: "nope", Password: "secret1"}, "email"},
		{"short password", RegisterInput{Name: "B", Email: "b@x.com", Password: "12345"}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.accounts.Register(ctx, tt.in)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			require.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u, _ := env.register(t, "a@x.com")

	got, err := env.accounts.Authenticate(ctx, LoginInput{Email: "A@X.COM", Password: "secret1"})
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = env.accounts.Authenticate(ctx, LoginInput{Email: "a@x.com", Password: "wrong!"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.accounts.Authenticate(ctx, LoginInput{Email: "ghost@x.com", Password: "secret1"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	var verr *ValidationError
	_, err = env.accounts.Authenticate(ctx, LoginInput{Email: "a@x.com"})
	require.ErrorAs(t, err, &verr)

	require.NoError(t, env.accounts.SetActive(ctx, u.ID, false))
	_, err = env.accounts.Authenticate(ctx, LoginInput{Email: "a@x.com", Password: "secret1"})
	require.ErrorIs(t, err, ErrInactive)
}

func TestRegisterLoginRefreshScenario(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.tokens.SingleSession = true

	_, registered := env.register(t, "a@x.com")

	user, err := env.accounts.Authenticate(ctx, LoginInput{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)
	loggedIn, err := env.tokens.Issue(ctx, user)
	require.NoError(t, err)
	require.NotEqual(t, registered.RefreshToken, loggedIn.RefreshToken)

	_, err = env.tokens.Rotate(ctx, registered.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh, "login superseded the registration credential")

	next, err := env.tokens.Rotate(ctx, loggedIn.RefreshToken)
	require.NoError(t, err)
	_, err = env.tokens.Rotate(ctx, next.RefreshToken)
	require.NoError(t, err)
	_, err = env.tokens.Rotate(ctx, loggedIn.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestSetRoles(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u, _ := env.register(t, "a@x.com")

	updated, err := env.accounts.SetRoles(ctx, u.ID, []string{"editor", "admin", "editor"})
	require.NoError(t, err)
	require.Equal(t, []domain.Role{domain.RoleEditor, domain.RoleAdmin}, updated.Roles)

	var verr *ValidationError
	_, err = env.accounts.SetRoles(ctx, u.ID, []string{"superuser"})
	require.ErrorAs(t, err, &verr)
	_, err = env.accounts.SetRoles(ctx, u.ID, nil)
	require.ErrorAs(t, err, &verr)

	_, err = env.accounts.SetRoles(ctx, "missing", []string{"user"})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	in := RegisterInput{Name: "Root", Email: "root@x.com", Password: "rootpass"}

	changed, err := env.accounts.EnsureAdmin(ctx, in)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = env.accounts.EnsureAdmin(ctx, in)
	require.NoError(t, err)
	require.False(t, changed)

	u, err := env.accounts.Authenticate(ctx, LoginInput{Email: in.Email, Password: in.Password})
	require.NoError(t, err)
	require.Equal(t, []domain.Role{domain.RoleUser, domain.RoleAdmin}, u.Roles, "seeded admins keep the default role")

	// Promotes an existing account.
	plain, _ := env.register(t, "plain@x.com")
	changed, err = env.accounts.EnsureAdmin(ctx, RegisterInput{Name: "x", Email: "plain@x.com", Password: "ignored"})
	require.NoError(t, err)
	require.True(t, changed)
	promoted, err := env.accounts.Profile(ctx, plain.ID)
	require.NoError(t, err)
	require.Equal(t, u.Roles, promoted.Roles, "seeding and promotion grant the same roles")
}

func TestHousekeeping(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u, _ := env.register(t, "a@x.com")

	require.NoError(t, env.store.Credentials().CreateCredential(ctx, domain.Credential{
		ID:        "expired-1",
		UserID:    u.ID,
		TokenHash: "expired-hash",
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	hk := NewHousekeepingService(env.store, slog.New(slog.DiscardHandler), 0)
	require.Equal(t, time.Hour, hk.Interval)

	n, err := hk.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	hk.Start()
	hk.Stop()
}
